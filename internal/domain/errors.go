package domain

import "errors"

// Store-level failures.
var (
	ErrSlotNotFound    = errors.New("slot not found")
	ErrSlotUnavailable = errors.New("slot unavailable")
	ErrHoldExpired     = errors.New("hold expired")
	ErrHoldMismatch    = errors.New("hold owner mismatch")
	ErrInvalidID       = errors.New("invalid id")
)

// Reservation outcomes surfaced to transports.
var (
	// ErrSlotTaken means another client won the hold race; the slot list
	// should be re-offered.
	ErrSlotTaken = errors.New("slot already taken")
	// ErrLostRace means the hold expired between calendar sync and
	// confirm; the external event may exist without a booked slot.
	ErrLostRace = errors.New("reservation lost race")
	// ErrSyncUnavailable means the external calendar call failed or timed
	// out; the slot was released.
	ErrSyncUnavailable = errors.New("calendar sync unavailable")
)
