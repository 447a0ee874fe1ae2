package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/models"
	"salonbook/internal/service"

	"github.com/rs/zerolog"
)

// CatalogReader is what delivery handlers look up about a reservation.
type CatalogReader interface {
	GetProfessional(ctx context.Context, id int64) (*models.Professional, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
}

// EmailHandler tells the client about their reservation.
type EmailHandler struct {
	sender  EmailSender
	catalog CatalogReader
	loc     *time.Location
}

func NewEmailHandler(sender EmailSender, catalog CatalogReader, loc *time.Location) *EmailHandler {
	return &EmailHandler{sender: sender, catalog: catalog, loc: loc}
}

func (h *EmailHandler) Deliver(ctx context.Context, p models.NotificationPayload) error {
	pro, err := h.catalog.GetProfessional(ctx, p.Reservation.ProfessionalID)
	if err != nil {
		return fmt.Errorf("load professional: %w", err)
	}
	msg, ok := ClientEmail(p, pro.Name, pro.Location(h.loc))
	if !ok {
		return nil
	}
	return h.sender.Send(ctx, msg)
}

// TelegramHandler tells the professional about requests and changes they did
// not make themselves.
type TelegramHandler struct {
	tg      *service.TelegramService
	catalog CatalogReader
	loc     *time.Location
	logger  *zerolog.Logger
}

func NewTelegramHandler(tg *service.TelegramService, catalog CatalogReader, loc *time.Location, logger *zerolog.Logger) *TelegramHandler {
	return &TelegramHandler{tg: tg, catalog: catalog, loc: loc, logger: logger}
}

func (h *TelegramHandler) Deliver(ctx context.Context, p models.NotificationPayload) error {
	switch p.Event {
	case models.NotifyCreated, models.NotifyCancelled, models.NotifyExpired:
	default:
		return nil
	}

	pro, err := h.catalog.GetProfessional(ctx, p.Reservation.ProfessionalID)
	if err != nil {
		return fmt.Errorf("load professional: %w", err)
	}
	if pro.TelegramChatID == 0 {
		h.logger.Debug().Int64("professional_id", pro.ID).Msg("Professional has no Telegram chat, skipping")
		return nil
	}

	card := service.ReservationCard{
		Reservation: &p.Reservation,
		Location:    pro.Location(h.loc),
	}
	if p.Reservation.ServiceID != nil {
		svc, err := h.catalog.GetService(ctx, *p.Reservation.ServiceID)
		switch {
		case err == nil:
			card.ServiceName = svc.Name
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("load service: %w", err)
		}
	}

	if p.Event == models.NotifyCreated {
		_, err = h.tg.SendReservationRequest(pro.TelegramChatID, card)
	} else {
		_, err = h.tg.SendReservationUpdate(pro.TelegramChatID, card, p.Event)
	}
	return err
}
