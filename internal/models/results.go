package models

import "time"

// AvailabilityResult is returned when a provider submits a window.
type AvailabilityResult struct {
	Availability *Availability `json:"availability"`
	Slots        []*Slot       `json:"slots"`
}

// Hold is a freshly created reservation on a slot.
type Hold struct {
	ReservationID int64     `json:"reservation_id"`
	SlotID        int64     `json:"slot_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// SweepResult summarizes one expiry sweep.
type SweepResult struct {
	Released int `json:"released"`
	Failed   int `json:"failed"`
}

// ExpiryCursor is the position of the last hold seen while paging through
// expired reservations in (expires_at, id) order.
type ExpiryCursor struct {
	ExpiresAt time.Time
	ID        int64
}
