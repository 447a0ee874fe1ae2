package api

import (
	"fmt"
	"net/http"
	"time"

	"salonbook/internal/auth"
	"salonbook/internal/domain"
	"salonbook/internal/models"

	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) handleClientBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	res, err := s.deps.Bookings.CreateClientBooking(r.Context(), auth.SessionFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusCreated, bookingView(res))
}

func (s *HTTPServer) handleMyReservations(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Bookings.ListForClient(r.Context(), auth.SessionFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, bookingViews(list))
}

func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	res, err := s.deps.Bookings.GetReservation(r.Context(), auth.SessionFromContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, bookingView(res))
}

// transitionRequest carries the version the caller last saw; 0 skips the check.
type transitionRequest struct {
	Version int64 `json:"version"`
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	var req transitionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeServiceError(w, r, s.logger, err)
			return
		}
	}

	ctx := r.Context()
	sess := auth.SessionFromContext(ctx)
	var res *models.Reservation
	switch action := chi.URLParam(r, "action"); action {
	case "confirm":
		res, err = s.deps.Bookings.ConfirmBooking(ctx, sess, id, req.Version)
	case "decline":
		res, err = s.deps.Bookings.DeclineBooking(ctx, sess, id, req.Version)
	case "complete":
		res, err = s.deps.Bookings.CompleteBooking(ctx, sess, id, req.Version)
	case "cancel":
		res, err = s.deps.Bookings.CancelBooking(ctx, sess, id, req.Version)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown action %q", action))
		return
	}
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, bookingView(res))
}

func (s *HTTPServer) handleProfessionalReservations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	status, err := queryStatus(r)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	list, err := s.deps.Bookings.ListForProfessional(r.Context(), auth.SessionFromContext(r.Context()), id, from, to, status)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, bookingViews(list))
}

type overrideRequest struct {
	StartAt time.Time `json:"start_at"`
	Status  string    `json:"status"`
}

func (s *HTTPServer) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	var req overrideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	target, err := models.ParseOverrideStatus(req.Status)
	if err != nil {
		writeServiceError(w, r, s.logger, fmt.Errorf("%w: %v", domain.ErrInvalidStatus, err))
		return
	}
	if req.StartAt.IsZero() {
		writeServiceError(w, r, s.logger, fmt.Errorf("%w: start_at is required", domain.ErrInvalidInput))
		return
	}

	o, err := s.deps.Slots.SetSlotStatus(r.Context(), auth.SessionFromContext(r.Context()), id, req.StartAt, target, s.now())
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	// nil: слот вернулся к значению по умолчанию
	writeData(w, http.StatusOK, map[string]any{"override": o, "status": target})
}

func (s *HTTPServer) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	at, err := queryTimestamp(r, "start_at")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	if err := s.deps.Slots.ClearSlotOverride(r.Context(), auth.SessionFromContext(r.Context()), id, at, s.now()); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (s *HTTPServer) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	if !auth.SessionFromContext(r.Context()).CanManageProfessional(id) {
		writeServiceError(w, r, s.logger, domain.ErrForbidden)
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	if from.IsZero() || to.IsZero() {
		writeServiceError(w, r, s.logger, fmt.Errorf("%w: from and to are required", domain.ErrInvalidInput))
		return
	}
	list, err := s.deps.Slots.ListOverrides(r.Context(), id, from, to)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, list)
}
