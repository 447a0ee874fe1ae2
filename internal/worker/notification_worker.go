package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/metrics"
	"salonbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const deadLetterKey = "salonbook:notifications:deadletter"

// Handler delivers one reservation change over a single channel.
type Handler interface {
	Deliver(ctx context.Context, p models.NotificationPayload) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, p models.NotificationPayload) error

func (f HandlerFunc) Deliver(ctx context.Context, p models.NotificationPayload) error {
	return f(ctx, p)
}

// NotificationWorker drains notification_queue and hands tasks to channel handlers.
type NotificationWorker struct {
	queue        domain.NotificationQueue
	handlers     map[string]Handler
	redis        *redis.Client
	retryPolicy  RetryPolicy
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
	now          func() time.Time
}

// NewNotificationWorker builds a worker with sane defaults. redisClient may be nil.
func NewNotificationWorker(queue domain.NotificationQueue, handlers map[string]Handler, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *NotificationWorker {
	if handlers == nil {
		handlers = make(map[string]Handler)
	}

	return &NotificationWorker{
		queue:        queue,
		handlers:     handlers,
		redis:        redisClient,
		retryPolicy:  retry.withDefaults(),
		pollInterval: 2 * time.Second,
		batchSize:    20,
		logger:       logger,
		now:          time.Now,
	}
}

// Channels lists the channels this worker can deliver, for the outbox notifier.
func (w *NotificationWorker) Channels() []string {
	out := make([]string, 0, len(w.handlers))
	for _, ch := range []string{models.ChannelTelegram, models.ChannelEmail, models.ChannelSheets} {
		if _, ok := w.handlers[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Start polls until ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Strs("channels", w.Channels()).Msg("Notification worker started")
	defer w.logger.Info().Msg("Notification worker stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		n, err := w.ProcessBatch(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("Fetch pending notifications failed")
		}
		if n == w.batchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessBatch handles up to batchSize due tasks and returns how many it saw.
func (w *NotificationWorker) ProcessBatch(ctx context.Context) (int, error) {
	tasks, err := w.queue.GetPendingNotificationTasks(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for i := range tasks {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks), nil
}

func (w *NotificationWorker) processTask(ctx context.Context, task *models.NotificationTask) {
	var payload models.NotificationPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		w.dead(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	handler, ok := w.handlers[task.Channel]
	if !ok {
		w.dead(ctx, task, fmt.Errorf("no handler for channel %q", task.Channel))
		return
	}

	if err := handler.Deliver(ctx, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.queue.MarkNotificationDone(ctx, task.ID); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark notification done failed")
	}
	metrics.IncNotification(task.Channel, "sent")
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, task *models.NotificationTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.dead(ctx, task, cause)
		return
	}

	next := w.now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.queue.MarkNotificationRetry(ctx, task.ID, attempt, next, cause.Error()); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark notification retry failed")
	}
	metrics.IncNotification(task.Channel, "retry")
	w.logger.Warn().Err(cause).
		Int64("task_id", task.ID).
		Str("channel", task.Channel).
		Int("attempt", attempt).
		Time("next_retry_at", next).
		Msg("Notification delivery failed, will retry")
}

func (w *NotificationWorker) dead(ctx context.Context, task *models.NotificationTask, cause error) {
	if err := w.queue.MarkNotificationDead(ctx, task.ID, cause.Error()); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark notification dead failed")
	}
	metrics.IncNotification(task.Channel, "dead")
	w.logger.Error().Err(cause).
		Int64("task_id", task.ID).
		Str("channel", task.Channel).
		Int64("reservation_id", task.ReservationID).
		Msg("Notification moved to dead letter")
	w.pushDeadLetter(ctx, task, cause)
}

func (w *NotificationWorker) pushDeadLetter(ctx context.Context, task *models.NotificationTask, cause error) {
	if w.redis == nil {
		return
	}
	msg := cause.Error()
	task.LastError = &msg
	task.Status = models.TaskDeadLetter
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Encode dead letter failed")
		return
	}
	if err := w.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Dead letter push failed")
	}
}
