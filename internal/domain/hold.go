package domain

import "time"

// Hold is a time-boxed exclusive claim on a slot pending confirmation.
// It exists only between a successful try-hold and the matching confirm
// or release.
type Hold struct {
	SlotID     string
	OwnerToken string
	ExpiresAt  time.Time
}

// Active reports whether the hold is still claimable at the given instant.
func (h Hold) Active(now time.Time) bool {
	return h.ExpiresAt.After(now)
}
