package models

import "time"

type Reservation struct {
	ID          int64      `json:"id"`
	SlotID      int64      `json:"slot_id"`
	ClientID    int64      `json:"client_id"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (r *Reservation) IsConfirmed() bool {
	return r.ConfirmedAt != nil
}

// IsExpired reports whether an unconfirmed hold can no longer be confirmed at now.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.ConfirmedAt == nil && !r.ExpiresAt.After(now)
}

// IsActive reports whether the reservation is an unexpired, unconfirmed hold.
func (r *Reservation) IsActive(now time.Time) bool {
	return r.ConfirmedAt == nil && r.ExpiresAt.After(now)
}
