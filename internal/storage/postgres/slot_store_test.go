package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vtishina/consult-bot/internal/domain"
	"github.com/vtishina/consult-bot/internal/policy"
	"github.com/vtishina/consult-bot/internal/testutil"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		t.Fatalf("parse day: %v", err)
	}
	return d
}

func TestSlotStore_Seed(t *testing.T) {
	pool := testutil.NewTestPool(t)
	store := NewSlotStore(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	windows := policy.Policy{
		StartHour:    9,
		EndHour:      16,
		SlotDuration: 30 * time.Minute,
		HorizonDays:  2,
		Location:     time.UTC,
	}.DailySlots()

	t.Run("creates one slot per day and window", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		days := []time.Time{day(t, "2025-01-13"), day(t, "2025-01-14")}
		stats, err := store.Seed(ctx, days, windows, day(t, "2025-01-13"))
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		if stats.Created != 28 {
			t.Fatalf("expected 28 created, got %d", stats.Created)
		}

		slots, err := store.ListAvailable(ctx, days[0], days[1])
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(slots) != 28 {
			t.Fatalf("expected 28 available, got %d", len(slots))
		}
		for i := 1; i < len(slots); i++ {
			if slots[i].StartAt.Before(slots[i-1].StartAt) {
				t.Fatalf("slots out of order at %d", i)
			}
		}
	})

	t.Run("seeding twice is a no-op", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		days := []time.Time{day(t, "2025-01-13")}
		if _, err := store.Seed(ctx, days, windows, day(t, "2025-01-13")); err != nil {
			t.Fatalf("seed: %v", err)
		}
		stats, err := store.Seed(ctx, days, windows, day(t, "2025-01-13"))
		if err != nil {
			t.Fatalf("second seed: %v", err)
		}
		if stats.Created != 0 {
			t.Fatalf("expected no new slots, got %d", stats.Created)
		}
	})

	t.Run("does not regress held or booked slots", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		days := []time.Time{day(t, "2025-01-13")}
		if _, err := store.Seed(ctx, days, windows, day(t, "2025-01-13")); err != nil {
			t.Fatalf("seed: %v", err)
		}
		slots, err := store.ListAvailable(ctx, days[0], days[0])
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		token := uuid.NewString()
		held, err := store.TryHold(ctx, slots[0].ID, token, time.Now().Add(time.Minute))
		if err != nil {
			t.Fatalf("try hold: %v", err)
		}

		if _, err := store.Seed(ctx, days, windows, day(t, "2025-01-13")); err != nil {
			t.Fatalf("re-seed: %v", err)
		}
		got, err := store.GetSlot(ctx, held.ID)
		if err != nil {
			t.Fatalf("get slot: %v", err)
		}
		if got.State != domain.SlotStateHeld || got.HolderToken != token {
			t.Fatalf("re-seed regressed held slot: %+v", got)
		}
	})

	t.Run("expires past never-booked slots", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		past := day(t, "2025-01-10")
		if _, err := store.Seed(ctx, []time.Time{past}, windows, past); err != nil {
			t.Fatalf("seed past: %v", err)
		}

		today := day(t, "2025-01-13")
		stats, err := store.Seed(ctx, []time.Time{today}, windows, today)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		if stats.Expired != 14 {
			t.Fatalf("expected 14 expired, got %d", stats.Expired)
		}

		slots, err := store.ListAvailable(ctx, past, past)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(slots) != 0 {
			t.Fatalf("expected no available past slots, got %d", len(slots))
		}
	})
}

func TestSlotStore_TryHold(t *testing.T) {
	pool := testutil.NewTestPool(t)
	store := NewSlotStore(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	d := day(t, "2025-01-13")
	newSlot := func(t *testing.T, ctx context.Context, hour int) string {
		return testutil.InsertSlot(t, ctx, pool, d,
			d.Add(time.Duration(hour)*time.Hour), d.Add(time.Duration(hour)*time.Hour+30*time.Minute),
			"available")
	}

	t.Run("holds an available slot", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := newSlot(t, ctx, 9)

		token := uuid.NewString()
		expires := time.Now().Add(2 * time.Minute).UTC()
		slot, err := store.TryHold(ctx, id, token, expires)
		if err != nil {
			t.Fatalf("try hold: %v", err)
		}
		if slot.State != domain.SlotStateHeld || slot.HolderToken != token {
			t.Fatalf("unexpected slot: %+v", slot)
		}
	})

	t.Run("exactly one concurrent hold wins", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := newSlot(t, ctx, 9)

		const attempts = 8
		errs := make(chan error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.TryHold(ctx, id, uuid.NewString(), time.Now().Add(time.Minute))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		var wins, losses int
		for err := range errs {
			switch err {
			case nil:
				wins++
			case domain.ErrSlotUnavailable:
				losses++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if wins != 1 || losses != attempts-1 {
			t.Fatalf("expected 1 winner and %d losers, got %d/%d", attempts-1, wins, losses)
		}
	})

	t.Run("held, booked and expired slots are unavailable", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		heldID := newSlot(t, ctx, 9)
		testutil.HoldSlot(t, ctx, pool, heldID, uuid.NewString(), time.Now().Add(time.Minute))
		expiredID := testutil.InsertSlot(t, ctx, pool, d, d.Add(10*time.Hour), d.Add(10*time.Hour+30*time.Minute), "expired")

		for _, id := range []string{heldID, expiredID} {
			if _, err := store.TryHold(ctx, id, uuid.NewString(), time.Now().Add(time.Minute)); err != domain.ErrSlotUnavailable {
				t.Fatalf("expected ErrSlotUnavailable for %s, got %v", id, err)
			}
		}
	})

	t.Run("missing and malformed ids", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		if _, err := store.TryHold(ctx, uuid.NewString(), uuid.NewString(), time.Now().Add(time.Minute)); err != domain.ErrSlotNotFound {
			t.Fatalf("expected ErrSlotNotFound, got %v", err)
		}
		if _, err := store.TryHold(ctx, "not-a-uuid", uuid.NewString(), time.Now().Add(time.Minute)); err != domain.ErrInvalidID {
			t.Fatalf("expected ErrInvalidID, got %v", err)
		}
	})
}

func TestSlotStore_Confirm(t *testing.T) {
	pool := testutil.NewTestPool(t)
	store := NewSlotStore(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	d := day(t, "2025-01-13")
	booking := func(slotID string) domain.Booking {
		return domain.Booking{
			ID:                  uuid.NewString(),
			SlotID:              slotID,
			Client:              domain.Client{ChatID: 617492, DisplayName: "Anna"},
			Status:              domain.BookingStatusConfirmed,
			ExternalCalendarRef: "evt-1",
			CreatedAt:           time.Now().UTC(),
		}
	}

	t.Run("books a held slot and attaches the booking", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertSlot(t, ctx, pool, d, d.Add(9*time.Hour), d.Add(9*time.Hour+30*time.Minute), "available")

		token := uuid.NewString()
		now := time.Now().UTC()
		if _, err := store.TryHold(ctx, id, token, now.Add(2*time.Minute)); err != nil {
			t.Fatalf("try hold: %v", err)
		}

		b := booking(id)
		if err := store.Confirm(ctx, id, token, b, now); err != nil {
			t.Fatalf("confirm: %v", err)
		}

		slot, err := store.GetSlot(ctx, id)
		if err != nil {
			t.Fatalf("get slot: %v", err)
		}
		if slot.State != domain.SlotStateBooked || slot.BookingID != b.ID {
			t.Fatalf("unexpected slot after confirm: %+v", slot)
		}
		if slot.HolderToken != "" {
			t.Fatalf("expected holder cleared, got %q", slot.HolderToken)
		}

		stored, err := store.GetBooking(ctx, id)
		if err != nil {
			t.Fatalf("get booking: %v", err)
		}
		if stored == nil || stored.ID != b.ID || stored.ExternalCalendarRef != "evt-1" {
			t.Fatalf("unexpected booking: %+v", stored)
		}
	})

	t.Run("rejects wrong owner token", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertSlot(t, ctx, pool, d, d.Add(9*time.Hour), d.Add(9*time.Hour+30*time.Minute), "available")

		now := time.Now().UTC()
		if _, err := store.TryHold(ctx, id, uuid.NewString(), now.Add(2*time.Minute)); err != nil {
			t.Fatalf("try hold: %v", err)
		}

		if err := store.Confirm(ctx, id, uuid.NewString(), booking(id), now); err != domain.ErrHoldMismatch {
			t.Fatalf("expected ErrHoldMismatch, got %v", err)
		}
	})

	t.Run("rejects expired hold", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertSlot(t, ctx, pool, d, d.Add(9*time.Hour), d.Add(9*time.Hour+30*time.Minute), "available")

		token := uuid.NewString()
		now := time.Now().UTC()
		if _, err := store.TryHold(ctx, id, token, now.Add(time.Second)); err != nil {
			t.Fatalf("try hold: %v", err)
		}

		if err := store.Confirm(ctx, id, token, booking(id), now.Add(2*time.Second)); err != domain.ErrHoldExpired {
			t.Fatalf("expected ErrHoldExpired, got %v", err)
		}
	})

	t.Run("rejects unheld slot", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertSlot(t, ctx, pool, d, d.Add(9*time.Hour), d.Add(9*time.Hour+30*time.Minute), "available")

		if err := store.Confirm(ctx, id, uuid.NewString(), booking(id), time.Now().UTC()); err != domain.ErrHoldMismatch {
			t.Fatalf("expected ErrHoldMismatch, got %v", err)
		}
	})
}

func TestSlotStore_ReleaseAndSweep(t *testing.T) {
	pool := testutil.NewTestPool(t)
	store := NewSlotStore(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	d := day(t, "2025-01-13")

	t.Run("release with owner token", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertSlot(t, ctx, pool, d, d.Add(9*time.Hour), d.Add(9*time.Hour+30*time.Minute), "available")

		token := uuid.NewString()
		now := time.Now().UTC()
		if _, err := store.TryHold(ctx, id, token, now.Add(time.Minute)); err != nil {
			t.Fatalf("try hold: %v", err)
		}

		// Wrong token before expiry is a no-op.
		if err := store.Release(ctx, id, uuid.NewString(), now); err != nil {
			t.Fatalf("release wrong token: %v", err)
		}
		slot, _ := store.GetSlot(ctx, id)
		if slot.State != domain.SlotStateHeld {
			t.Fatalf("expected slot still held, got %s", slot.State)
		}

		if err := store.Release(ctx, id, token, now); err != nil {
			t.Fatalf("release: %v", err)
		}
		slot, _ = store.GetSlot(ctx, id)
		if slot.State != domain.SlotStateAvailable || slot.HolderToken != "" {
			t.Fatalf("expected slot available, got %+v", slot)
		}
	})

	t.Run("expired hold releasable with any token", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertSlot(t, ctx, pool, d, d.Add(9*time.Hour), d.Add(9*time.Hour+30*time.Minute), "available")

		now := time.Now().UTC()
		testutil.HoldSlot(t, ctx, pool, id, uuid.NewString(), now.Add(-time.Second))

		if err := store.Release(ctx, id, uuid.NewString(), now); err != nil {
			t.Fatalf("release: %v", err)
		}
		slot, _ := store.GetSlot(ctx, id)
		if slot.State != domain.SlotStateAvailable {
			t.Fatalf("expected slot available, got %s", slot.State)
		}
	})

	t.Run("sweep reclaims only expired holds", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		expiredID := testutil.InsertSlot(t, ctx, pool, d, d.Add(9*time.Hour), d.Add(9*time.Hour+30*time.Minute), "available")
		liveID := testutil.InsertSlot(t, ctx, pool, d, d.Add(10*time.Hour), d.Add(10*time.Hour+30*time.Minute), "available")

		now := time.Now().UTC()
		testutil.HoldSlot(t, ctx, pool, expiredID, uuid.NewString(), now.Add(-time.Second))
		testutil.HoldSlot(t, ctx, pool, liveID, uuid.NewString(), now.Add(time.Minute))

		n, err := store.SweepExpiredHolds(ctx, now)
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 reclaimed, got %d", n)
		}

		expired, _ := store.GetSlot(ctx, expiredID)
		if expired.State != domain.SlotStateAvailable {
			t.Fatalf("expected expired hold reclaimed, got %s", expired.State)
		}
		live, _ := store.GetSlot(ctx, liveID)
		if live.State != domain.SlotStateHeld {
			t.Fatalf("expected live hold kept, got %s", live.State)
		}

		// Idempotent.
		n, err = store.SweepExpiredHolds(ctx, now)
		if err != nil {
			t.Fatalf("second sweep: %v", err)
		}
		if n != 0 {
			t.Fatalf("expected nothing to reclaim, got %d", n)
		}
	})
}
