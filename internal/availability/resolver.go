// Package availability turns working hours, reservations and professional
// overrides into per-slot statuses, and applies override changes.
package availability

import (
	"fmt"
	"time"

	"salonbook/internal/models"
)

// DayInput is everything the resolver needs for one professional and one day.
// Date's calendar fields (year, month, day) are taken as-is and interpreted in
// Location.
type DayInput struct {
	Date         time.Time
	Location     *time.Location
	Hours        models.WorkingHours
	Reservations []*models.Reservation
	Overrides    []*models.AvailabilityOverride
	Now          time.Time
}

// SlotTimes returns the start of every slot t of the day with t+SlotDuration <= close.
func SlotTimes(date time.Time, loc *time.Location, hours models.WorkingHours) ([]time.Time, error) {
	open, closeAt, err := hours.Bounds()
	if err != nil {
		return nil, fmt.Errorf("working hours: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}

	y, m, d := date.Date()
	var out []time.Time
	for off := open; off+models.SlotDuration <= closeAt; off += models.SlotDuration {
		out = append(out, time.Date(y, m, d,
			int(off/time.Hour), int(off%time.Hour/time.Minute), 0, 0, loc))
	}
	return out, nil
}

// Resolve computes the ordered slot list for a day. It has no side effects.
func Resolve(in DayInput) ([]models.TimeSlot, error) {
	times, err := SlotTimes(in.Date, in.Location, in.Hours)
	if err != nil {
		return nil, err
	}

	booked := make(map[int64]struct{}, len(in.Reservations))
	for _, r := range in.Reservations {
		if r.Status.IsActive() {
			booked[r.ScheduledAt.Unix()] = struct{}{}
		}
	}

	// Строгое сопоставление: начало совпадает и длительность ровно один слот
	overrides := make(map[int64]models.OverrideStatus, len(in.Overrides))
	for _, o := range in.Overrides {
		if o.Regular() {
			overrides[o.StartAt.Unix()] = o.Status
		}
	}

	slots := make([]models.TimeSlot, 0, len(times))
	for _, t := range times {
		slots = append(slots, models.TimeSlot{
			Time:     t.Format(models.TimeLayout),
			Datetime: t,
			Status:   resolveSlot(t, in.Now, booked, overrides),
		})
	}
	return slots, nil
}

func resolveSlot(t, now time.Time, booked map[int64]struct{}, overrides map[int64]models.OverrideStatus) models.SlotStatus {
	if _, ok := booked[t.Unix()]; ok {
		return models.SlotBooked
	}
	if t.Before(now) {
		return models.SlotBusy
	}
	if status, ok := overrides[t.Unix()]; ok {
		return status.SlotStatus()
	}
	return models.SlotAvailable
}

// splitOverride cuts an override into slot-sized pieces that lie on the
// day's slot grid. complete is false when part of the range fell off-grid.
func splitOverride(o *models.AvailabilityOverride, loc *time.Location, hours models.WorkingHours) (pieces []*models.AvailabilityOverride, complete bool, err error) {
	span := o.EndAt.Sub(o.StartAt)
	if span <= 0 {
		return nil, false, nil
	}

	first := o.StartAt.In(loc)
	last := o.EndAt.In(loc)
	for day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc); !day.After(last); day = day.AddDate(0, 0, 1) {
		times, err := SlotTimes(day, loc, hours)
		if err != nil {
			return nil, false, err
		}
		for _, t := range times {
			end := t.Add(models.SlotDuration)
			if t.Before(o.StartAt) || end.After(o.EndAt) {
				continue
			}
			pieces = append(pieces, &models.AvailabilityOverride{
				ProfessionalID: o.ProfessionalID,
				StartAt:        t,
				EndAt:          end,
				Status:         o.Status,
			})
		}
	}

	return pieces, time.Duration(len(pieces))*models.SlotDuration == span, nil
}
