package domain

import "time"

type BookingStatus string

const (
	BookingStatusPendingSync BookingStatus = "pending_sync"
	BookingStatusConfirmed   BookingStatus = "confirmed"
	BookingStatusSyncFailed  BookingStatus = "sync_failed"
)

// Booking is a confirmed reservation of a slot by a specific client.
type Booking struct {
	ID     string
	SlotID string
	Client Client
	Status BookingStatus
	// ExternalCalendarRef is the event id returned by the external
	// calendar; empty until the sync call succeeds.
	ExternalCalendarRef string
	CreatedAt           time.Time
}

// Client identifies the requesting user. ChatID is the transport-level
// identity (opaque to the core), DisplayName is what the operator sees.
type Client struct {
	ChatID      int64
	DisplayName string
}
