package app

import (
	"context"
	"time"

	"github.com/vtishina/consult-bot/internal/domain"
)

// CalendarEvent is what the engine asks the external calendar to record.
type CalendarEvent struct {
	Summary string
	Start   time.Time
	End     time.Time
}

// CalendarSync mirrors a confirmed reservation into the external calendar
// and returns a durable event reference. Called at most once per
// reservation attempt; the engine never retries automatically.
type CalendarSync interface {
	CreateEvent(ctx context.Context, event CalendarEvent) (string, error)
}

// Notifier delivers a reservation-confirmed event to the operator.
// Best-effort: failures never affect the reservation outcome.
type Notifier interface {
	Notify(ctx context.Context, booking domain.Booking, slot domain.Slot) error
}
