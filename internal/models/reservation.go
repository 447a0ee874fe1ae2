package models

import (
	"fmt"
	"time"
)

// ReservationStatus is the lifecycle state of a booking request.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusDeclined  ReservationStatus = "declined"
	StatusCompleted ReservationStatus = "completed"
	StatusCancelled ReservationStatus = "cancelled"
)

// ActiveReservationStatuses block their slot.
var ActiveReservationStatuses = []ReservationStatus{StatusPending, StatusConfirmed}

// ParseReservationStatus rejects anything outside the closed set.
func ParseReservationStatus(s string) (ReservationStatus, error) {
	st := ReservationStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown reservation status %q", s)
	}
	return st, nil
}

func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusDeclined, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether a reservation in this state occupies its slot.
func (s ReservationStatus) IsActive() bool {
	switch s {
	case StatusPending, StatusConfirmed:
		return true
	case StatusDeclined, StatusCompleted, StatusCancelled:
		return false
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case StatusDeclined, StatusCompleted, StatusCancelled:
		return true
	case StatusPending, StatusConfirmed:
		return false
	default:
		return true
	}
}

// CanTransitionTo encodes pending -> {confirmed, declined, cancelled} and
// confirmed -> {completed, cancelled}.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusDeclined || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusCancelled
	case StatusDeclined, StatusCompleted, StatusCancelled:
		return false
	default:
		return false
	}
}

type Reservation struct {
	ID             int64             `json:"id"`
	ClientID       *int64            `json:"client_id,omitempty"`
	ClientName     string            `json:"client_name"`
	ClientEmail    string            `json:"client_email"`
	ClientPhone    string            `json:"client_phone,omitempty"`
	Guest          bool              `json:"guest"`
	ProfessionalID int64             `json:"professional_id"`
	ServiceID      *int64            `json:"service_id,omitempty"`
	ScheduledAt    time.Time         `json:"scheduled_at"`
	Status         ReservationStatus `json:"status"`
	Notes          string            `json:"notes,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Version        int64             `json:"version"`
}

// ResponseDeadline is shown to clients as "expires in N minutes". It does not
// transition anything by itself.
func (r *Reservation) ResponseDeadline() time.Time {
	return r.CreatedAt.Add(ResponseWindow)
}

// BookingRequest carries the fields both creation paths must supply.
type BookingRequest struct {
	ProfessionalID int64     `json:"professional_id"`
	ServiceID      *int64    `json:"service_id,omitempty"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	ClientName     string    `json:"client_name"`
	ClientEmail    string    `json:"client_email"`
	ClientPhone    string    `json:"client_phone,omitempty"`
	Notes          string    `json:"notes,omitempty"`
}

// ReservationFilter narrows reservation listings.
type ReservationFilter struct {
	ProfessionalID int64
	ClientID       int64
	From           time.Time
	To             time.Time
	Status         ReservationStatus
}
