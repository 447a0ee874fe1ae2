package bot

import (
	"errors"

	"salonbook/internal/domain"
)

const (
	msgSlowDown   = "⚠️ Too many messages. Please wait a moment."
	msgNotLinked  = "This chat is not linked to a professional yet. Ask an admin to set telegram_chat_id to %d."
	msgNoAccount  = "Your professional profile has no user account. Ask an admin to link one."
	msgNoPending  = "No pending requests."
	msgUnknownCmd = "Unknown command. Try /help."
)

func errorMessage(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, domain.ErrConcurrentModification):
		return "⚠️ This request was changed elsewhere. Use /pending to reload."
	case errors.Is(err, domain.ErrInvalidTransition):
		return "⚠️ This request has already been handled."
	case errors.Is(err, domain.ErrNotFound):
		return "⚠️ Reservation not found."
	case errors.Is(err, domain.ErrForbidden):
		return "⛔ This reservation belongs to someone else."
	case errors.Is(err, domain.ErrUnauthorized):
		return msgNoAccount
	case errors.Is(err, domain.ErrInvalidInput):
		return "⚠️ This button is no longer valid."
	}

	return "❌ Something went wrong. Please try again later."
}
