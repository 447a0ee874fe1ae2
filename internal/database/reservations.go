package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"salonbook/internal/models"
)

const reservationColumns = `id, client_id, client_name, client_email, client_phone, guest,
	professional_id, service_id, scheduled_at, status, notes, created_at, updated_at, version`

func scanReservation(row rowScanner) (*models.Reservation, error) {
	r := &models.Reservation{}
	var status string
	err := row.Scan(
		&r.ID, &r.ClientID, &r.ClientName, &r.ClientEmail, &r.ClientPhone, &r.Guest,
		&r.ProfessionalID, &r.ServiceID, &r.ScheduledAt, &status, &r.Notes,
		&r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	r.Status = models.ReservationStatus(status)
	return r, nil
}

func scanReservations(rows *sql.Rows) ([]*models.Reservation, error) {
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateReservation inserts a reservation. The partial unique index on
// (professional_id, scheduled_at) for active statuses is the final arbiter
// between concurrent bookings of the same slot: the loser gets ErrSlotTaken.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	query := `INSERT INTO reservations (
				client_id, client_name, client_email, client_phone, guest,
				professional_id, service_id, scheduled_at, status, notes,
				created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	if r.Status == "" {
		r.Status = models.StatusPending
	}
	result, err := db.ExecContext(ctx, query,
		r.ClientID,
		r.ClientName,
		r.ClientEmail,
		r.ClientPhone,
		r.Guest,
		r.ProfessionalID,
		r.ServiceID,
		utc(r.ScheduledAt),
		string(r.Status),
		r.Notes,
		now,
		now,
		1,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	r.ScheduledAt = utc(r.ScheduledAt)
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1
	return nil
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	r, err := scanReservation(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// UpdateReservationStatusWithVersion applies a status change only if the row
// still carries fromVersion.
func (db *DB) UpdateReservationStatusWithVersion(ctx context.Context, id, fromVersion int64, status models.ReservationStatus) error {
	query := `UPDATE reservations SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, string(status), time.Now().UTC(), id, fromVersion)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to update reservation status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) ListReservations(ctx context.Context, filter models.ReservationFilter) ([]*models.Reservation, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.ProfessionalID != 0 {
		conds = append(conds, "professional_id = ?")
		args = append(args, filter.ProfessionalID)
	}
	if filter.ClientID != 0 {
		conds = append(conds, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if !filter.From.IsZero() {
		conds = append(conds, "scheduled_at >= ?")
		args = append(args, utc(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "scheduled_at < ?")
		args = append(args, utc(filter.To))
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY scheduled_at ASC, id ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return scanReservations(rows)
}

// GetActiveReservationsInRange returns pending and confirmed reservations of a
// professional with from <= scheduled_at < to.
func (db *DB) GetActiveReservationsInRange(ctx context.Context, professionalID int64, from, to time.Time) ([]*models.Reservation, error) {
	args := []interface{}{professionalID, utc(from), utc(to)}
	marks := make([]string, 0, len(models.ActiveReservationStatuses))
	for _, st := range models.ActiveReservationStatuses {
		marks = append(marks, "?")
		args = append(args, string(st))
	}
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE professional_id = ? AND scheduled_at >= ? AND scheduled_at < ?
                AND status IN (` + strings.Join(marks, ", ") + `)
              ORDER BY scheduled_at ASC`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get active reservations: %w", err)
	}
	return scanReservations(rows)
}

func (db *DB) GetPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE status = ? AND created_at < ? ORDER BY created_at ASC`
	rows, err := db.QueryContext(ctx, query, string(models.StatusPending), utc(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to get stale pending reservations: %w", err)
	}
	return scanReservations(rows)
}
