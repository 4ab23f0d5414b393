package policy

import (
	"testing"
	"time"
)

func testPolicy(t *testing.T) Policy {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return Policy{
		StartHour:    9,
		EndHour:      16,
		SlotDuration: 30 * time.Minute,
		HorizonDays:  5,
		Location:     loc,
	}
}

func TestPolicy_DailySlots(t *testing.T) {
	t.Parallel()

	t.Run("nine to four with half-hour slots yields fourteen windows", func(t *testing.T) {
		p := testPolicy(t)

		windows := p.DailySlots()
		if len(windows) != 14 {
			t.Fatalf("expected 14 windows, got %d", len(windows))
		}
		if windows[0].Start != 9*time.Hour {
			t.Fatalf("expected first window at 09:00, got %v", windows[0].Start)
		}
		if last := windows[len(windows)-1]; last.Start != 15*time.Hour+30*time.Minute || last.End != 16*time.Hour {
			t.Fatalf("expected last window 15:30-16:00, got %v-%v", last.Start, last.End)
		}
		for _, w := range windows {
			if w.End-w.Start != p.SlotDuration {
				t.Fatalf("window %v-%v is not slot-sized", w.Start, w.End)
			}
		}
	})

	t.Run("trailing partial interval is dropped", func(t *testing.T) {
		p := testPolicy(t)
		p.SlotDuration = 45 * time.Minute

		windows := p.DailySlots()
		// 7 working hours hold nine 45-minute slots, 15:45-16:00 is dropped.
		if len(windows) != 9 {
			t.Fatalf("expected 9 windows, got %d", len(windows))
		}
		if last := windows[len(windows)-1]; last.End > 16*time.Hour {
			t.Fatalf("window past end of day: %v", last.End)
		}
	})

	t.Run("enumeration is deterministic", func(t *testing.T) {
		p := testPolicy(t)
		first := p.DailySlots()
		second := p.DailySlots()
		if len(first) != len(second) {
			t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
		}
		for i := range first {
			if first[i] != second[i] {
				t.Fatalf("window %d differs: %v vs %v", i, first[i], second[i])
			}
		}
	})
}

func TestPolicy_BusinessDays(t *testing.T) {
	t.Parallel()

	t.Run("skips weekends", func(t *testing.T) {
		p := testPolicy(t)
		// Friday morning.
		now := time.Date(2025, 1, 10, 10, 0, 0, 0, p.Location)

		days := p.BusinessDays(now)
		if len(days) != 5 {
			t.Fatalf("expected 5 days, got %d", len(days))
		}
		want := []time.Time{
			time.Date(2025, 1, 10, 0, 0, 0, 0, p.Location),
			time.Date(2025, 1, 13, 0, 0, 0, 0, p.Location),
			time.Date(2025, 1, 14, 0, 0, 0, 0, p.Location),
			time.Date(2025, 1, 15, 0, 0, 0, 0, p.Location),
			time.Date(2025, 1, 16, 0, 0, 0, 0, p.Location),
		}
		for i, d := range days {
			if !d.Equal(want[i]) {
				t.Fatalf("day %d: expected %v, got %v", i, want[i], d)
			}
			if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
				t.Fatalf("weekend day emitted: %v", d)
			}
		}
	})

	t.Run("today included before end hour", func(t *testing.T) {
		p := testPolicy(t)
		now := time.Date(2025, 1, 13, 15, 59, 0, 0, p.Location)

		days := p.BusinessDays(now)
		if !days[0].Equal(time.Date(2025, 1, 13, 0, 0, 0, 0, p.Location)) {
			t.Fatalf("expected today first, got %v", days[0])
		}
	})

	t.Run("today excluded after end hour", func(t *testing.T) {
		p := testPolicy(t)
		now := time.Date(2025, 1, 13, 16, 0, 0, 0, p.Location)

		days := p.BusinessDays(now)
		if !days[0].Equal(time.Date(2025, 1, 14, 0, 0, 0, 0, p.Location)) {
			t.Fatalf("expected tomorrow first, got %v", days[0])
		}
	})

	t.Run("weekend start rolls to monday", func(t *testing.T) {
		p := testPolicy(t)
		// Saturday.
		now := time.Date(2025, 1, 11, 12, 0, 0, 0, p.Location)

		days := p.BusinessDays(now)
		if !days[0].Equal(time.Date(2025, 1, 13, 0, 0, 0, 0, p.Location)) {
			t.Fatalf("expected monday first, got %v", days[0])
		}
	})
}

func TestPolicy_Validate(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	if err := p.Validate(); err != nil {
		t.Fatalf("expected valid policy, got %v", err)
	}

	bad := p
	bad.StartHour = 16
	bad.EndHour = 9
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for inverted hours")
	}

	bad = p
	bad.SlotDuration = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero duration")
	}

	bad = p
	bad.Location = nil
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for missing location")
	}
}
