package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vtishina/consult-bot/internal/clock"
	"github.com/vtishina/consult-bot/internal/domain"
)

// SlotStore is the authoritative slot record. TryHold, Confirm and Release
// must be atomic with respect to each other per slot; TryHold is the single
// linearization point that prevents double booking.
type SlotStore interface {
	ListAvailable(ctx context.Context, from, to time.Time) ([]domain.Slot, error)
	GetSlot(ctx context.Context, slotID string) (domain.Slot, error)
	TryHold(ctx context.Context, slotID, ownerToken string, expiresAt time.Time) (domain.Slot, error)
	Confirm(ctx context.Context, slotID, ownerToken string, booking domain.Booking, now time.Time) error
	Release(ctx context.Context, slotID, ownerToken string, now time.Time) error
}

type ReservationEngine struct {
	store        SlotStore
	calendar     CalendarSync
	notifier     Notifier
	clock        clock.Clock
	logger       *slog.Logger
	holdTTL      time.Duration
	syncTimeout  time.Duration
	eventSummary string
}

const (
	defaultHoldTTL      = 2 * time.Minute
	defaultSyncTimeout  = 15 * time.Second
	defaultEventSummary = "Консультация"
)

func NewReservationEngine(store SlotStore, cal CalendarSync, clk clock.Clock, logger *slog.Logger, opts ...EngineOption) *ReservationEngine {
	e := &ReservationEngine{
		store:        store,
		calendar:     cal,
		clock:        clk,
		logger:       logger,
		holdTTL:      defaultHoldTTL,
		syncTimeout:  defaultSyncTimeout,
		eventSummary: defaultEventSummary,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type EngineOption func(*ReservationEngine)

// WithHoldTTL overrides how long a hold shields a slot while the calendar
// sync is in flight. Must comfortably exceed the sync timeout.
func WithHoldTTL(d time.Duration) EngineOption {
	return func(e *ReservationEngine) {
		if d > 0 {
			e.holdTTL = d
		}
	}
}

// WithSyncTimeout bounds the external calendar call so a hanging request
// cannot keep a slot held indefinitely.
func WithSyncTimeout(d time.Duration) EngineOption {
	return func(e *ReservationEngine) {
		if d > 0 {
			e.syncTimeout = d
		}
	}
}

// WithNotifier attaches the operator notification port.
func WithNotifier(n Notifier) EngineOption {
	return func(e *ReservationEngine) {
		e.notifier = n
	}
}

// WithEventSummary overrides the summary of created calendar events.
func WithEventSummary(s string) EngineOption {
	return func(e *ReservationEngine) {
		if s != "" {
			e.eventSummary = s
		}
	}
}

// OfferSlots lists the currently available slots in the date range,
// ordered by date then start time. Pure read.
func (e *ReservationEngine) OfferSlots(ctx context.Context, from, to time.Time) ([]domain.Slot, error) {
	return e.store.ListAvailable(ctx, from, to)
}

// Slot returns the current record of one slot.
func (e *ReservationEngine) Slot(ctx context.Context, slotID string) (domain.Slot, error) {
	return e.store.GetSlot(ctx, slotID)
}

// Reserve runs the full reservation protocol for one slot: hold, mirror to
// the external calendar, confirm. On sync failure the hold is released and
// the slot becomes available again. Exactly one concurrent caller per slot
// can succeed.
//
// A reservation that started always runs to completion; cancellation of
// the surrounding request does not abort the in-flight attempt.
func (e *ReservationEngine) Reserve(ctx context.Context, slotID string, client domain.Client) (domain.Booking, error) {
	ctx = context.WithoutCancel(ctx)

	ownerToken := uuid.NewString()
	now := e.clock.Now()

	slot, err := e.store.TryHold(ctx, slotID, ownerToken, now.Add(e.holdTTL))
	if err != nil {
		if err == domain.ErrSlotUnavailable {
			return domain.Booking{}, domain.ErrSlotTaken
		}
		return domain.Booking{}, err
	}

	booking := domain.Booking{
		ID:        uuid.NewString(),
		SlotID:    slot.ID,
		Client:    client,
		Status:    domain.BookingStatusPendingSync,
		CreatedAt: now,
	}

	syncCtx, cancel := context.WithTimeout(ctx, e.syncTimeout)
	ref, err := e.calendar.CreateEvent(syncCtx, CalendarEvent{
		Summary: e.eventSummary,
		Start:   slot.StartAt,
		End:     slot.EndAt,
	})
	cancel()
	if err != nil {
		booking.Status = domain.BookingStatusSyncFailed
		if relErr := e.store.Release(ctx, slot.ID, ownerToken, e.clock.Now()); relErr != nil {
			e.logger.Error("release after sync failure failed",
				"slot_id", slot.ID, "error", relErr)
		}
		e.logger.Warn("calendar sync failed, slot released",
			"slot_id", slot.ID, "error", err)
		return booking, domain.ErrSyncUnavailable
	}

	booking.ExternalCalendarRef = ref
	booking.Status = domain.BookingStatusConfirmed

	if err := e.store.Confirm(ctx, slot.ID, ownerToken, booking, e.clock.Now()); err != nil {
		// The external event already exists; it is not rolled back because
		// the failure may be a transient confirm timeout and deleting a
		// legitimately confirmed appointment is worse than a duplicate
		// calendar entry. Left for manual reconciliation.
		e.logger.Error("reservation lost race after calendar event was created",
			"slot_id", slot.ID, "calendar_event", ref, "error", err)
		return domain.Booking{}, domain.ErrLostRace
	}

	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, booking, slot); err != nil {
			e.logger.Warn("operator notification failed",
				"slot_id", slot.ID, "booking_id", booking.ID, "error", err)
		}
	}

	return booking, nil
}

// CancelHold abandons a hold before confirmation, returning the slot to
// the available pool. No-op if the slot is not held by ownerToken.
func (e *ReservationEngine) CancelHold(ctx context.Context, slotID, ownerToken string) error {
	return e.store.Release(ctx, slotID, ownerToken, e.clock.Now())
}
