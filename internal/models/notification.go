package models

import "time"

// Notification channels handled by the worker.
const (
	ChannelTelegram = "telegram"
	ChannelEmail    = "email"
	ChannelSheets   = "sheets"
)

// Notification task states in notification_queue.
const (
	TaskPending    = "pending"
	TaskRetry      = "retry"
	TaskDone       = "done"
	TaskDeadLetter = "dead"
)

// NotificationTask represents a queued delivery for one reservation change.
type NotificationTask struct {
	ID            int64      `json:"id"`
	Channel       string     `json:"channel"`
	ReservationID int64      `json:"reservation_id"`
	Payload       string     `json:"payload"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	LastError     *string    `json:"last_error"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at"`
	NextRetryAt   *time.Time `json:"next_retry_at"`
}

// Reservation events carried in notification payloads.
const (
	NotifyCreated   = "created"
	NotifyConfirmed = "confirmed"
	NotifyDeclined  = "declined"
	NotifyCompleted = "completed"
	NotifyCancelled = "cancelled"
	NotifyExpired   = "expired"
)

// NotificationPayload is stored as JSON in NotificationTask.Payload.
type NotificationPayload struct {
	Event       string      `json:"event"`
	Reservation Reservation `json:"reservation"`
}
