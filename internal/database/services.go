package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"salonbook/internal/models"
)

const serviceColumns = `id, professional_id, name, price, duration_minutes, category, is_active, created_at, updated_at`

func scanService(row rowScanner) (*models.Service, error) {
	s := &models.Service{}
	err := row.Scan(&s.ID, &s.ProfessionalID, &s.Name, &s.Price, &s.DurationMinutes,
		&s.Category, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (db *DB) CreateService(ctx context.Context, s *models.Service) error {
	query := `INSERT INTO services (professional_id, name, price, duration_minutes, category, is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		s.ProfessionalID, s.Name, s.Price, s.DurationMinutes, s.Category, s.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	s.ID = id
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

func (db *DB) UpdateService(ctx context.Context, s *models.Service) error {
	query := `UPDATE services SET name = ?, price = ?, duration_minutes = ?, category = ?, is_active = ?, updated_at = ?
              WHERE id = ?`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query, s.Name, s.Price, s.DurationMinutes, s.Category, s.IsActive, now, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("service %d: %w", s.ID, ErrNotFound)
	}
	s.UpdatedAt = now
	return nil
}

func (db *DB) GetService(ctx context.Context, id int64) (*models.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = ?`
	s, err := scanService(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return s, nil
}

// ListServices lists services; professionalID 0 lists every professional's.
func (db *DB) ListServices(ctx context.Context, professionalID int64, activeOnly bool) ([]*models.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE 1 = 1`
	var args []interface{}
	if professionalID != 0 {
		query += ` AND professional_id = ?`
		args = append(args, professionalID)
	}
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY category ASC, name ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var out []*models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *DB) DeactivateService(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `UPDATE services SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate service: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}
