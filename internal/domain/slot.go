package domain

import "time"

type SlotState string

const (
	SlotStateAvailable SlotState = "available"
	SlotStateHeld      SlotState = "held"
	SlotStateBooked    SlotState = "booked"
	SlotStateExpired   SlotState = "expired"
)

// Slot is a fixed-duration schedulable unit of working time.
// Slots are generated in bulk from the working-calendar policy and are
// never deleted; past slots that were never booked end up Expired.
type Slot struct {
	ID      string
	Date    time.Time // midnight in the operating timezone
	StartAt time.Time
	EndAt   time.Time
	State   SlotState

	// HolderToken and HoldExpiresAt are set only while State is held.
	HolderToken   string
	HoldExpiresAt time.Time

	// BookingID is set once the slot reaches booked.
	BookingID string

	CreatedAt time.Time
}

// SeedStats reports the effect of one horizon seeding pass.
type SeedStats struct {
	Created int
	Expired int
}
