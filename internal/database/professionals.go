package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"salonbook/internal/models"
)

const professionalColumns = `id, user_id, name, bio, working_open, working_close, timezone,
	telegram_chat_id, is_active, created_at, updated_at`

func scanProfessional(row rowScanner) (*models.Professional, error) {
	p := &models.Professional{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.Bio, &p.WorkingHours.Open, &p.WorkingHours.Close,
		&p.Timezone, &p.TelegramChatID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (db *DB) CreateProfessional(ctx context.Context, p *models.Professional) error {
	query := `INSERT INTO professionals (
				user_id, name, bio, working_open, working_close, timezone,
				telegram_chat_id, is_active, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		p.UserID, p.Name, p.Bio, p.WorkingHours.Open, p.WorkingHours.Close, p.Timezone,
		p.TelegramChatID, p.IsActive, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create professional: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (db *DB) UpdateProfessional(ctx context.Context, p *models.Professional) error {
	query := `UPDATE professionals SET
				user_id = ?, name = ?, bio = ?, working_open = ?, working_close = ?, timezone = ?,
				telegram_chat_id = ?, is_active = ?, updated_at = ?
			WHERE id = ?`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		p.UserID, p.Name, p.Bio, p.WorkingHours.Open, p.WorkingHours.Close, p.Timezone,
		p.TelegramChatID, p.IsActive, now, p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update professional: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("professional %d: %w", p.ID, ErrNotFound)
	}
	p.UpdatedAt = now
	return nil
}

func (db *DB) getProfessionalBy(ctx context.Context, where string, arg interface{}) (*models.Professional, error) {
	query := `SELECT ` + professionalColumns + ` FROM professionals WHERE ` + where
	p, err := scanProfessional(db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get professional: %w", err)
	}
	return p, nil
}

func (db *DB) GetProfessional(ctx context.Context, id int64) (*models.Professional, error) {
	return db.getProfessionalBy(ctx, "id = ?", id)
}

func (db *DB) GetProfessionalByUserID(ctx context.Context, userID int64) (*models.Professional, error) {
	return db.getProfessionalBy(ctx, "user_id = ?", userID)
}

func (db *DB) GetProfessionalByTelegramChat(ctx context.Context, chatID int64) (*models.Professional, error) {
	if chatID == 0 {
		return nil, ErrNotFound
	}
	return db.getProfessionalBy(ctx, "telegram_chat_id = ? AND is_active = 1", chatID)
}

func (db *DB) ListProfessionals(ctx context.Context, activeOnly bool) ([]*models.Professional, error) {
	query := `SELECT ` + professionalColumns + ` FROM professionals`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list professionals: %w", err)
	}
	defer rows.Close()

	var out []*models.Professional
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan professional: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) DeactivateProfessional(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `UPDATE professionals SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate professional: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}
