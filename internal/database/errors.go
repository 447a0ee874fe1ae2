package database

import (
	"errors"
	"fmt"

	"salonbook/internal/domain"
)

var (
	ErrNotFound               = domain.ErrNotFound
	ErrSlotTaken              = fmt.Errorf("active reservation exists: %w", domain.ErrSlotUnavailable)
	ErrConcurrentModification = domain.ErrConcurrentModification
	ErrDuplicate              = errors.New("record already exists")
)
