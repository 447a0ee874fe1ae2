package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"salonbook/internal/models"
)

const overrideColumns = `id, professional_id, start_at, end_at, status, created_at, updated_at`

func scanOverride(row rowScanner) (*models.AvailabilityOverride, error) {
	o := &models.AvailabilityOverride{}
	var status string
	if err := row.Scan(&o.ID, &o.ProfessionalID, &o.StartAt, &o.EndAt, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = models.OverrideStatus(status)
	return o, nil
}

func scanOverrides(rows *sql.Rows) ([]*models.AvailabilityOverride, error) {
	defer rows.Close()

	var out []*models.AvailabilityOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetOverridesInRange returns overrides of a professional starting in [from, to).
func (db *DB) GetOverridesInRange(ctx context.Context, professionalID int64, from, to time.Time) ([]*models.AvailabilityOverride, error) {
	query := `SELECT ` + overrideColumns + ` FROM availability_overrides
              WHERE professional_id = ? AND start_at >= ? AND start_at < ?
              ORDER BY start_at ASC`
	rows, err := db.QueryContext(ctx, query, professionalID, utc(from), utc(to))
	if err != nil {
		return nil, fmt.Errorf("failed to get overrides: %w", err)
	}
	return scanOverrides(rows)
}

func (db *DB) GetOverrideAt(ctx context.Context, professionalID int64, start time.Time) (*models.AvailabilityOverride, error) {
	query := `SELECT ` + overrideColumns + ` FROM availability_overrides WHERE professional_id = ? AND start_at = ?`
	o, err := scanOverride(db.QueryRowContext(ctx, query, professionalID, utc(start)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get override: %w", err)
	}
	return o, nil
}

func (db *DB) CreateOverride(ctx context.Context, o *models.AvailabilityOverride) error {
	query := `INSERT INTO availability_overrides (professional_id, start_at, end_at, status, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query, o.ProfessionalID, utc(o.StartAt), utc(o.EndAt), string(o.Status), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create override: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	o.ID = id
	o.StartAt = utc(o.StartAt)
	o.EndAt = utc(o.EndAt)
	o.CreatedAt = now
	o.UpdatedAt = now
	return nil
}

func (db *DB) UpdateOverrideStatus(ctx context.Context, id int64, status models.OverrideStatus) error {
	result, err := db.ExecContext(ctx,
		`UPDATE availability_overrides SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update override: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) DeleteOverride(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM availability_overrides WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetIrregularOverrides returns overrides whose span, in whole seconds, is not
// exactly one slot; the same rule as AvailabilityOverride.Regular.
// professionalID 0 scans every professional.
func (db *DB) GetIrregularOverrides(ctx context.Context, professionalID int64) ([]*models.AvailabilityOverride, error) {
	query := `SELECT ` + overrideColumns + ` FROM availability_overrides
              WHERE ROUND((julianday(end_at) - julianday(start_at)) * 86400) != ?`
	args := []interface{}{int(models.SlotDuration / time.Second)}
	if professionalID != 0 {
		query += ` AND professional_id = ?`
		args = append(args, professionalID)
	}
	query += ` ORDER BY professional_id, start_at`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get irregular overrides: %w", err)
	}
	return scanOverrides(rows)
}

// ReplaceOverrides deletes the given overrides and inserts replacements in one
// transaction. A replacement whose start is already taken by a kept override is skipped.
func (db *DB) ReplaceOverrides(ctx context.Context, remove []int64, add []*models.AvailabilityOverride) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range remove {
			if _, err := tx.ExecContext(ctx, `DELETE FROM availability_overrides WHERE id = ?`, id); err != nil {
				return fmt.Errorf("failed to delete override %d: %w", id, err)
			}
		}

		now := time.Now().UTC()
		for _, o := range add {
			result, err := tx.ExecContext(ctx,
				`INSERT INTO availability_overrides (professional_id, start_at, end_at, status, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?)
                 ON CONFLICT(professional_id, start_at) DO NOTHING`,
				o.ProfessionalID, utc(o.StartAt), utc(o.EndAt), string(o.Status), now, now)
			if err != nil {
				return fmt.Errorf("failed to insert override: %w", err)
			}
			if rows, _ := result.RowsAffected(); rows == 1 {
				if id, err := result.LastInsertId(); err == nil {
					o.ID = id
				}
				o.CreatedAt = now
				o.UpdatedAt = now
			}
		}
		return nil
	})
}
