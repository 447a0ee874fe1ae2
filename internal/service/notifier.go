package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"salonbook/internal/domain"
	"salonbook/internal/models"

	"github.com/rs/zerolog"
)

// OutboxNotifier records one notification task per enabled channel. Delivery
// happens later in the notification worker.
type OutboxNotifier struct {
	queue    domain.NotificationQueue
	channels []string
	logger   *zerolog.Logger
}

func NewOutboxNotifier(queue domain.NotificationQueue, channels []string, logger *zerolog.Logger) *OutboxNotifier {
	return &OutboxNotifier{queue: queue, channels: channels, logger: logger}
}

// NotifyEvent maps a status change to the notification event name.
func NotifyEvent(status models.ReservationStatus) string {
	switch status {
	case models.StatusPending:
		return models.NotifyCreated
	case models.StatusConfirmed:
		return models.NotifyConfirmed
	case models.StatusDeclined:
		return models.NotifyDeclined
	case models.StatusCompleted:
		return models.NotifyCompleted
	case models.StatusCancelled:
		return models.NotifyCancelled
	default:
		return string(status)
	}
}

func (n *OutboxNotifier) ReservationChanged(ctx context.Context, r *models.Reservation, event string) error {
	if len(n.channels) == 0 {
		return nil
	}

	raw, err := json.Marshal(models.NotificationPayload{Event: event, Reservation: *r})
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	var errs []error
	for _, channel := range n.channels {
		task := &models.NotificationTask{
			Channel:       channel,
			ReservationID: r.ID,
			Payload:       string(raw),
			Status:        models.TaskPending,
		}
		if err := n.queue.CreateNotificationTask(ctx, task); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", channel, err))
			continue
		}
		n.logger.Debug().
			Int64("task_id", task.ID).
			Int64("reservation_id", r.ID).
			Str("channel", channel).
			Str("event", event).
			Msg("Notification enqueued")
	}
	return errors.Join(errs...)
}
