package bot

import (
	"context"

	"salonbook/internal/domain"
	"salonbook/internal/metrics"
	"salonbook/internal/models"
	"salonbook/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// handleCallbackQuery applies a Confirm/Decline button press. The version in
// the button must still match, so a decision made elsewhere is never overwritten.
func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	chatID := callback.Message.Chat.ID
	logger := zerolog.Ctx(ctx).With().Int64("chat_id", chatID).Str("data", callback.Data).Logger()

	action, id, version, err := service.ParseDecisionCallback(callback.Data)
	if err != nil {
		metrics.IncBotCommand("callback", "invalid")
		b.answer(callback.ID, errorMessage(err))
		return
	}

	p, sess, err := b.professionalFor(ctx, chatID)
	if err != nil {
		metrics.IncBotCommand(action, "error")
		b.answer(callback.ID, b.commandError(chatID, err))
		return
	}

	var res *models.Reservation
	switch action {
	case service.CallbackConfirm:
		res, err = b.bookings.ConfirmBooking(ctx, sess, id, version)
	case service.CallbackDecline:
		res, err = b.bookings.DeclineBooking(ctx, sess, id, version)
	}
	if err != nil {
		metrics.IncBotCommand(action, "error")
		if domain.Kind(err) == domain.KindInternal {
			logger.Error().Err(err).Msg("Decision failed")
		}
		b.answer(callback.ID, errorMessage(err))
		return
	}
	metrics.IncBotCommand(action, "ok")

	// Сначала гасим "часики", потом переписываем карточку без кнопок
	b.answer(callback.ID, "Reservation "+string(res.Status))
	if err := b.tg.MarkDecided(chatID, callback.Message.MessageID, b.card(ctx, p, res)); err != nil {
		logger.Error().Err(err).Int64("reservation_id", res.ID).Msg("Failed to update request message")
	}
	logger.Info().Int64("reservation_id", res.ID).Str("status", string(res.Status)).Msg("Decision recorded")
}
