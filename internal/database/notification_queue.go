package database

import (
	"context"
	"fmt"
	"time"

	"salonbook/internal/models"
)

func (db *DB) CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error {
	query := `INSERT INTO notification_queue (channel, reservation_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	if task.Status == "" {
		task.Status = models.TaskPending
	}
	result, err := db.ExecContext(ctx, query,
		task.Channel,
		task.ReservationID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		task.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now
	return nil
}

func (db *DB) GetPendingNotificationTasks(ctx context.Context, limit int) ([]models.NotificationTask, error) {
	query := `SELECT id, channel, reservation_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
              FROM notification_queue
              WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.TaskPending, models.TaskRetry, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending notification tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.NotificationTask
	for rows.Next() {
		var t models.NotificationTask
		err := rows.Scan(
			&t.ID, &t.Channel, &t.ReservationID, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (db *DB) MarkNotificationDone(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE notification_queue SET status = ?, last_error = NULL, next_retry_at = NULL, processed_at = ? WHERE id = ?`,
		models.TaskDone, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification done: %w", err)
	}
	return nil
}

func (db *DB) MarkNotificationRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, errMsg string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE notification_queue SET status = ?, retry_count = ?, next_retry_at = ?, last_error = ? WHERE id = ?`,
		models.TaskRetry, retryCount, utc(nextRetryAt), errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification retry: %w", err)
	}
	return nil
}

func (db *DB) MarkNotificationDead(ctx context.Context, id int64, errMsg string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE notification_queue SET status = ?, last_error = ?, next_retry_at = NULL, processed_at = ? WHERE id = ?`,
		models.TaskDeadLetter, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification dead: %w", err)
	}
	return nil
}
