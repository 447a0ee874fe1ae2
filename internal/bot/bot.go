package bot

import (
	"context"
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/metrics"
	"salonbook/internal/models"
	"salonbook/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Directory resolves which professional a chat belongs to.
type Directory interface {
	GetProfessionalByTelegramChat(ctx context.Context, chatID int64) (*models.Professional, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
}

// Bookings is the part of the booking service the bot drives.
type Bookings interface {
	ConfirmBooking(ctx context.Context, sess *domain.Session, id, version int64) (*models.Reservation, error)
	DeclineBooking(ctx context.Context, sess *domain.Session, id, version int64) (*models.Reservation, error)
	ListForProfessional(ctx context.Context, sess *domain.Session, professionalID int64, from, to time.Time, status models.ReservationStatus) ([]*models.Reservation, error)
}

// Schedule is the availability view the bot shows, laid out in the
// professional's timezone with the salon-wide fallback.
type Schedule interface {
	domain.SlotReader
	Location(p *models.Professional) *time.Location
}

// RateLimit bounds how many updates one chat may send per window.
type RateLimit struct {
	Messages int
	Window   time.Duration
}

// Bot lets a professional see the day and answer booking requests from Telegram.
type Bot struct {
	tg        *service.TelegramService
	directory Directory
	bookings  Bookings
	slots     Schedule
	limiter   domain.RateLimiter
	rateLimit RateLimit
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewBot(
	tg *service.TelegramService,
	directory Directory,
	bookings Bookings,
	slots Schedule,
	limiter domain.RateLimiter,
	rateLimit RateLimit,
	logger *zerolog.Logger,
) *Bot {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Bot{
		tg:        tg,
		directory: directory,
		bookings:  bookings,
		slots:     slots,
		limiter:   limiter,
		rateLimit: rateLimit,
		logger:    logger,
		now:       time.Now,
	}
}

// Start polls for updates until ctx is done or the channel closes.
func (b *Bot) Start(ctx context.Context) {
	updates := b.tg.Updates(60)

	b.logger.Info().Str("username", b.tg.Username()).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving Telegram updates (best-effort).
func (b *Bot) Stop() {
	if b == nil || b.tg == nil {
		return
	}
	b.tg.Stop()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		metrics.ObserveBotUpdate(time.Since(start).Seconds())
	}()

	// Создаем контекст для обработки каждого обновления
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		chatID := updateChatID(update)
		if chatID == 0 {
			return
		}

		if !b.allow(updateCtx, chatID) {
			l.Warn().Int64("chat_id", chatID).Msg("Rate limit exceeded")
			if update.CallbackQuery != nil {
				b.answer(update.CallbackQuery.ID, msgSlowDown)
			} else {
				b.send(chatID, msgSlowDown)
			}
			return
		}

		if update.CallbackQuery != nil {
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
			return
		}
		if update.Message == nil || !update.Message.IsCommand() {
			return
		}
		b.handleCommand(updateCtx, update.Message)
	})
}

func updateChatID(update tgbotapi.Update) int64 {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID
	default:
		return 0
	}
}

// professionalFor maps a chat onto its professional and a session acting as them.
func (b *Bot) professionalFor(ctx context.Context, chatID int64) (*models.Professional, *domain.Session, error) {
	p, err := b.directory.GetProfessionalByTelegramChat(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	if p.UserID == nil {
		return p, nil, domain.ErrUnauthorized
	}
	return p, &domain.Session{
		UserID:         *p.UserID,
		Name:           p.Name,
		Role:           models.RoleProfessional,
		ProfessionalID: p.ID,
	}, nil
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.tg.SendText(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) answer(callbackID, text string) {
	if err := b.tg.AnswerCallback(callbackID, text); err != nil {
		b.logger.Error().Err(err).Msg("Failed to answer callback")
	}
}
