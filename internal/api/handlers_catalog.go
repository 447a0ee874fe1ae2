package api

import (
	"net/http"

	"salonbook/internal/auth"
	"salonbook/internal/models"
	"salonbook/internal/service"
)

func (s *HTTPServer) handleUpdateProfessional(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	var upd service.ProfessionalUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	p, err := s.deps.Catalog.UpdateProfessional(r.Context(), auth.SessionFromContext(r.Context()), id, upd)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

type serviceRequest struct {
	Name            string  `json:"name"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration_minutes"`
	Category        string  `json:"category"`
	IsActive        *bool   `json:"is_active,omitempty"`
}

func (req serviceRequest) model(id, professionalID int64) *models.Service {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &models.Service{
		ID:              id,
		ProfessionalID:  professionalID,
		Name:            req.Name,
		Price:           req.Price,
		DurationMinutes: req.DurationMinutes,
		Category:        req.Category,
		IsActive:        active,
	}
}

func (s *HTTPServer) handleCreateService(w http.ResponseWriter, r *http.Request) {
	professionalID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	var req serviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	svc := req.model(0, professionalID)
	if err := s.deps.Catalog.CreateService(r.Context(), auth.SessionFromContext(r.Context()), svc); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusCreated, svc)
}

func (s *HTTPServer) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	var req serviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	// Владелец услуги подставляется сервисом
	svc := req.model(id, 0)
	if err := s.deps.Catalog.UpdateService(r.Context(), auth.SessionFromContext(r.Context()), svc); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, svc)
}

func (s *HTTPServer) handleDeactivateService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	if err := s.deps.Catalog.DeactivateService(r.Context(), auth.SessionFromContext(r.Context()), id); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"deactivated": true})
}
