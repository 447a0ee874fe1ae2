package domain

import "errors"

// Validation errors.
var (
	ErrInvalidName    = errors.New("name is required")
	ErrInvalidEmail   = errors.New("a valid email is required")
	ErrInvalidPhone   = errors.New("a valid phone number is required")
	ErrInvalidSlot    = errors.New("time is not a slot in the professional's working window")
	ErrInvalidStatus  = errors.New("unknown status")
	ErrInvalidInput   = errors.New("invalid input")
	ErrWeakPassword   = errors.New("password must be at least 8 characters")
	ErrDateTooFar     = errors.New("date is too far in the future")
	ErrInvalidService = errors.New("service is not offered by this professional")
)

// Business rule rejections.
var (
	ErrNotFound               = errors.New("not found")
	ErrSlotUnavailable        = errors.New("this time slot is no longer available")
	ErrSlotBooked             = errors.New("slot has a reservation and cannot be changed")
	ErrPastSlot               = errors.New("slot is in the past")
	ErrInvalidTransition      = errors.New("reservation cannot move to that status")
	ErrConcurrentModification = errors.New("reservation was changed by someone else, reload and retry")
	ErrEmailTaken             = errors.New("email is already registered")
	ErrProfessionalInactive   = errors.New("professional is not accepting bookings")
)

// Access errors.
var (
	ErrUnauthorized       = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrForbidden          = errors.New("not allowed")
)

var ErrRateLimited = errors.New("too many reservations, try again later")

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindRateLimited
)

// Kind classifies err so transports can pick a status code.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrInvalidPhone),
		errors.Is(err, ErrInvalidSlot), errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrWeakPassword), errors.Is(err, ErrDateTooFar), errors.Is(err, ErrInvalidService):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrSlotBooked), errors.Is(err, ErrPastSlot),
		errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConcurrentModification),
		errors.Is(err, ErrEmailTaken), errors.Is(err, ErrProfessionalInactive):
		return KindConflict
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindInternal
	}
}

// PublicMessage is the text safe to show a user for err.
func PublicMessage(err error) string {
	if Kind(err) == KindInternal {
		return "internal error, please try again"
	}
	return err.Error()
}
