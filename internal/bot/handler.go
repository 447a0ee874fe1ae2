package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/metrics"
	"salonbook/internal/models"
	"salonbook/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const helpText = `Commands:
/today - today's slots
/tomorrow - tomorrow's slots
/pending - booking requests waiting for your answer
/help - this message`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	command := msg.Command()
	logger := zerolog.Ctx(ctx).With().Int64("chat_id", chatID).Str("command", command).Logger()

	var err error
	switch command {
	case "start":
		err = b.handleStart(ctx, chatID)
	case "help":
		b.send(chatID, helpText)
	case "today":
		err = b.handleSchedule(ctx, chatID, 0)
	case "tomorrow":
		err = b.handleSchedule(ctx, chatID, 1)
	case "pending":
		err = b.handlePending(ctx, chatID)
	default:
		b.send(chatID, msgUnknownCmd)
		return
	}

	if err != nil {
		metrics.IncBotCommand(command, "error")
		if domain.Kind(err) == domain.KindInternal {
			logger.Error().Err(err).Msg("Command failed")
		}
		b.send(chatID, b.commandError(chatID, err))
		return
	}
	metrics.IncBotCommand(command, "ok")
}

func (b *Bot) commandError(chatID int64, err error) string {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Sprintf(msgNotLinked, chatID)
	}
	return errorMessage(err)
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) error {
	p, _, err := b.professionalFor(ctx, chatID)
	if err != nil {
		return err
	}
	b.send(chatID, fmt.Sprintf("Hello, %s! New booking requests will arrive here.\n\n%s", p.Name, helpText))
	return nil
}

// handleSchedule shows the resolved slots offset days from today in the
// professional's own timezone.
func (b *Bot) handleSchedule(ctx context.Context, chatID int64, offset int) error {
	p, _, err := b.professionalFor(ctx, chatID)
	if err != nil {
		return err
	}
	now := b.now()
	date := now.In(b.slots.Location(p)).AddDate(0, 0, offset)
	slots, err := b.slots.Slots(ctx, p.ID, date, now)
	if err != nil {
		return err
	}
	_, err = b.tg.SendSchedule(chatID, date, slots)
	return err
}

// handlePending re-sends every upcoming pending request with fresh buttons.
func (b *Bot) handlePending(ctx context.Context, chatID int64) error {
	p, sess, err := b.professionalFor(ctx, chatID)
	if err != nil {
		return err
	}
	list, err := b.bookings.ListForProfessional(ctx, sess, p.ID, b.now(), time.Time{}, models.StatusPending)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		b.send(chatID, msgNoPending)
		return nil
	}
	for _, r := range list {
		if _, err := b.tg.SendReservationRequest(chatID, b.card(ctx, p, r)); err != nil {
			return fmt.Errorf("send pending request %d: %w", r.ID, err)
		}
	}
	return nil
}

func (b *Bot) card(ctx context.Context, p *models.Professional, r *models.Reservation) service.ReservationCard {
	card := service.ReservationCard{Reservation: r, Location: b.slots.Location(p)}
	if r.ServiceID != nil {
		if svc, err := b.directory.GetService(ctx, *r.ServiceID); err == nil {
			card.ServiceName = svc.Name
		}
	}
	return card
}
