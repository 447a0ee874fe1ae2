package models

import (
	"fmt"
	"time"
)

// WorkingHours is a daily open/close window in the professional's timezone.
type WorkingHours struct {
	Open  string `json:"open" yaml:"open"`
	Close string `json:"close" yaml:"close"`
}

// Bounds returns open and close as offsets from midnight.
func (w WorkingHours) Bounds() (time.Duration, time.Duration, error) {
	open, err := parseClock(w.Open)
	if err != nil {
		return 0, 0, fmt.Errorf("open: %w", err)
	}
	closeAt, err := parseClock(w.Close)
	if err != nil {
		return 0, 0, fmt.Errorf("close: %w", err)
	}
	if closeAt <= open {
		return 0, 0, fmt.Errorf("close %s must be after open %s", w.Close, w.Open)
	}
	return open, closeAt, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

type Professional struct {
	ID             int64        `json:"id"`
	UserID         *int64       `json:"user_id,omitempty"`
	Name           string       `json:"name"`
	Bio            string       `json:"bio,omitempty"`
	WorkingHours   WorkingHours `json:"working_hours"`
	Timezone       string       `json:"timezone"`
	TelegramChatID int64        `json:"-"`
	IsActive       bool         `json:"is_active"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Location falls back to fallback when the timezone is empty or unknown.
func (p *Professional) Location(fallback *time.Location) *time.Location {
	if p.Timezone != "" {
		if loc, err := time.LoadLocation(p.Timezone); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

type Service struct {
	ID              int64     `json:"id"`
	ProfessionalID  int64     `json:"professional_id"`
	Name            string    `json:"name"`
	Price           float64   `json:"price"`
	DurationMinutes int       `json:"duration_minutes"`
	Category        string    `json:"category"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
