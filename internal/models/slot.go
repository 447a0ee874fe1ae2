package models

import (
	"fmt"
	"time"
)

// SlotStatus is the resolved state of one 30-minute slot.
type SlotStatus string

const (
	SlotAvailable   SlotStatus = "available"
	SlotBusy        SlotStatus = "busy"
	SlotBooked      SlotStatus = "booked"
	SlotUnavailable SlotStatus = "unavailable"
)

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotAvailable, SlotBusy, SlotBooked, SlotUnavailable:
		return true
	default:
		return false
	}
}

// Bookable reports whether a client may request this slot.
func (s SlotStatus) Bookable() bool {
	switch s {
	case SlotAvailable:
		return true
	case SlotBusy, SlotBooked, SlotUnavailable:
		return false
	default:
		return false
	}
}

// TimeSlot is derived on every read and never stored.
type TimeSlot struct {
	Time     string     `json:"time"`
	Datetime time.Time  `json:"datetime"`
	Status   SlotStatus `json:"status"`
}

// OverrideStatus is what a professional may assign to a slot by hand.
type OverrideStatus string

const (
	OverrideAvailable   OverrideStatus = "available"
	OverrideBusy        OverrideStatus = "busy"
	OverrideUnavailable OverrideStatus = "unavailable"
)

func ParseOverrideStatus(s string) (OverrideStatus, error) {
	st := OverrideStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown override status %q", s)
	}
	return st, nil
}

func (s OverrideStatus) Valid() bool {
	switch s {
	case OverrideAvailable, OverrideBusy, OverrideUnavailable:
		return true
	default:
		return false
	}
}

// SlotStatus maps an override onto the resolved slot status.
func (s OverrideStatus) SlotStatus() SlotStatus {
	switch s {
	case OverrideAvailable:
		return SlotAvailable
	case OverrideBusy:
		return SlotBusy
	case OverrideUnavailable:
		return SlotUnavailable
	default:
		return SlotUnavailable
	}
}

type AvailabilityOverride struct {
	ID             int64          `json:"id"`
	ProfessionalID int64          `json:"professional_id"`
	StartAt        time.Time      `json:"start_at"`
	EndAt          time.Time      `json:"end_at"`
	Status         OverrideStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Regular reports whether the override covers exactly one slot, to the second.
func (o *AvailabilityOverride) Regular() bool {
	return o.EndAt.Sub(o.StartAt).Round(time.Second) == SlotDuration
}
