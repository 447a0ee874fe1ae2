package domain

import "salonbook/internal/models"

// Session identifies the caller of a service operation. It is passed explicitly
// into every call; a nil *Session means an anonymous (guest) caller.
type Session struct {
	UserID         int64
	Email          string
	Name           string
	Role           models.Role
	ProfessionalID int64
}

func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == models.RoleAdmin
}

func (s *Session) IsAuthenticated() bool {
	return s != nil && s.UserID != 0
}

// CanManageProfessional reports whether the caller may act on the
// professional's availability, services and incoming requests.
func (s *Session) CanManageProfessional(professionalID int64) bool {
	if s == nil {
		return false
	}
	switch s.Role {
	case models.RoleAdmin:
		return true
	case models.RoleProfessional:
		return s.ProfessionalID != 0 && s.ProfessionalID == professionalID
	case models.RoleClient:
		return false
	default:
		return false
	}
}

// OwnsReservation reports whether the caller created the reservation.
func (s *Session) OwnsReservation(r *models.Reservation) bool {
	return s.IsAuthenticated() && r.ClientID != nil && *r.ClientID == s.UserID
}

// UserIDOrZero is the acting user's id for audit fields; 0 for guests and jobs.
func (s *Session) UserIDOrZero() int64 {
	if s == nil {
		return 0
	}
	return s.UserID
}
