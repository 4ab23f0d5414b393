package policy

import (
	"fmt"
	"time"
)

// Policy describes the working calendar: which days carry slots and how a
// working day is cut into fixed-duration windows. It is pure configuration;
// the same Policy always enumerates the same days and windows.
type Policy struct {
	StartHour    int
	EndHour      int
	SlotDuration time.Duration
	HorizonDays  int
	Location     *time.Location
}

// Window is a slot's time-of-day range, expressed as offsets from midnight.
type Window struct {
	Start time.Duration
	End   time.Duration
}

func (p Policy) Validate() error {
	if p.Location == nil {
		return fmt.Errorf("policy: location is required")
	}
	if p.StartHour < 0 || p.EndHour > 24 || p.StartHour >= p.EndHour {
		return fmt.Errorf("policy: invalid working hours %d-%d", p.StartHour, p.EndHour)
	}
	if p.SlotDuration <= 0 {
		return fmt.Errorf("policy: slot duration must be positive")
	}
	if p.HorizonDays <= 0 {
		return fmt.Errorf("policy: horizon must be positive")
	}
	return nil
}

// BusinessDays enumerates the next HorizonDays business days starting from
// now's date in the operating timezone. Weekends are skipped. Today counts
// as the first business day only while now is before the end hour;
// afterwards the horizon starts tomorrow.
func (p Policy) BusinessDays(now time.Time) []time.Time {
	local := now.In(p.Location)
	current := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.Location)
	if local.Hour() >= p.EndHour {
		current = current.AddDate(0, 0, 1)
	}

	days := make([]time.Time, 0, p.HorizonDays)
	for len(days) < p.HorizonDays {
		if wd := current.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, current)
		}
		current = current.AddDate(0, 0, 1)
	}
	return days
}

// DailySlots enumerates the slot windows of one working day in order.
// A trailing interval shorter than SlotDuration is dropped, never emitted
// as a short slot.
func (p Policy) DailySlots() []Window {
	dayStart := time.Duration(p.StartHour) * time.Hour
	dayEnd := time.Duration(p.EndHour) * time.Hour

	var windows []Window
	for start := dayStart; start+p.SlotDuration <= dayEnd; start += p.SlotDuration {
		windows = append(windows, Window{Start: start, End: start + p.SlotDuration})
	}
	return windows
}
