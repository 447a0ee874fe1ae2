package api

import (
	"fmt"
	"net/http"
	"time"

	"salonbook/internal/auth"
	"salonbook/internal/domain"
	"salonbook/internal/models"
	"salonbook/internal/service"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (s *HTTPServer) issue(w http.ResponseWriter, r *http.Request, u *models.User, status int) {
	sess, err := s.deps.Users.SessionFor(r.Context(), u)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	token, expires, err := s.deps.Sessions.Issue(sess)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, status, sessionResponse{Token: token, ExpiresAt: expires, User: u})
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	u, err := s.deps.Users.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	s.issue(w, r, u, http.StatusCreated)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	u, err := s.deps.Users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	s.issue(w, r, u, http.StatusOK)
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, auth.SessionFromContext(r.Context()))
}

func (s *HTTPServer) handleListProfessionals(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	list, err := s.deps.Catalog.ListProfessionals(r.Context(), auth.SessionFromContext(r.Context()), includeInactive)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (s *HTTPServer) handleGetProfessional(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	p, err := s.deps.Catalog.GetProfessional(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	list, err := s.deps.Catalog.ListServices(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

type slotsResponse struct {
	ProfessionalID int64             `json:"professional_id"`
	Date           string            `json:"date"`
	Slots          []models.TimeSlot `json:"slots"`
}

// handleSlots resolves the professional's day. A load failure is an error
// response, never an invented day.
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	date, err := queryDate(r, "date")
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	if date.IsZero() {
		writeServiceError(w, r, s.logger, fmt.Errorf("%w: date is required", domain.ErrInvalidInput))
		return
	}

	slots, err := s.deps.Slots.Slots(r.Context(), id, date, s.now())
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusOK, slotsResponse{
		ProfessionalID: id,
		Date:           date.Format(models.DateLayout),
		Slots:          slots,
	})
}

func (s *HTTPServer) handleGuestBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	res, err := s.deps.Bookings.CreateGuestBooking(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeData(w, http.StatusCreated, bookingView(res))
}

// reservationView adds the informational response deadline.
type reservationView struct {
	*models.Reservation
	RespondBy *time.Time `json:"respond_by,omitempty"`
}

func bookingView(r *models.Reservation) reservationView {
	v := reservationView{Reservation: r}
	if r.Status == models.StatusPending {
		deadline := r.ResponseDeadline()
		v.RespondBy = &deadline
	}
	return v
}

func bookingViews(list []*models.Reservation) []reservationView {
	out := make([]reservationView, 0, len(list))
	for _, r := range list {
		out = append(out, bookingView(r))
	}
	return out
}
