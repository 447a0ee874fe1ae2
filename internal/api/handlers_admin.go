package api

import (
	"fmt"
	"net/http"

	"salonbook/internal/auth"
	"salonbook/internal/domain"
	"salonbook/internal/export"
	"salonbook/internal/models"
)

func (s *HTTPServer) handleCreateProfessional(w http.ResponseWriter, r *http.Request) {
	var p models.Professional
	if err := decodeJSON(w, r, &p); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	if err := s.deps.Catalog.CreateProfessional(r.Context(), auth.SessionFromContext(r.Context()), &p); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusCreated, &p)
}

func (s *HTTPServer) handleDeactivateProfessional(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	if err := s.deps.Catalog.DeactivateProfessional(r.Context(), auth.SessionFromContext(r.Context()), id); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"deactivated": true})
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Users.ListUsers(r.Context(), auth.SessionFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, users)
}

type roleRequest struct {
	Role string `json:"role"`
}

func (s *HTTPServer) handleSetRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	u, err := s.deps.Users.SetRole(r.Context(), auth.SessionFromContext(r.Context()), id, req.Role)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, u)
}

func reservationFilter(r *http.Request) (models.ReservationFilter, error) {
	var f models.ReservationFilter
	from, to, err := dateRange(r)
	if err != nil {
		return f, err
	}
	status, err := queryStatus(r)
	if err != nil {
		return f, err
	}
	professionalID, err := queryID(r, "professional_id")
	if err != nil {
		return f, err
	}
	clientID, err := queryID(r, "client_id")
	if err != nil {
		return f, err
	}
	return models.ReservationFilter{
		ProfessionalID: professionalID,
		ClientID:       clientID,
		From:           from,
		To:             to,
		Status:         status,
	}, nil
}

func (s *HTTPServer) handleAdminReservations(w http.ResponseWriter, r *http.Request) {
	filter, err := reservationFilter(r)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	list, err := s.deps.Bookings.ListAll(r.Context(), auth.SessionFromContext(r.Context()), filter)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, bookingViews(list))
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}
	filter, err := reservationFilter(r)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(filter)))
	if err := s.deps.Exporter.WriteTo(r.Context(), w, filter); err != nil {
		// Книга собирается до записи, так что ответ еще не начат
		s.logger.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("Export failed")
		w.Header().Del("Content-Disposition")
		writeError(w, http.StatusInternalServerError, domain.PublicMessage(err))
	}
}

func (s *HTTPServer) handleNormalize(w http.ResponseWriter, r *http.Request) {
	professionalID, err := queryID(r, "professional_id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	result, err := s.deps.Slots.NormalizeOverrides(r.Context(), professionalID)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, result)
}
