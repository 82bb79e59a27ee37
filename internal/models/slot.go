package models

import "time"

// SlotStatus is the lifecycle state of a bookable slot.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotReserved  SlotStatus = "reserved"
	SlotConfirmed SlotStatus = "confirmed"
)

var slotTransitions = map[SlotStatus][]SlotStatus{
	SlotAvailable: {SlotReserved},
	SlotReserved:  {SlotConfirmed, SlotAvailable},
}

// Valid reports whether s is one of the known statuses.
func (s SlotStatus) Valid() bool {
	switch s {
	case SlotAvailable, SlotReserved, SlotConfirmed:
		return true
	}
	return false
}

// CanTransition reports whether a slot may move from one status to another.
// Confirmed is terminal.
func CanTransition(from, to SlotStatus) bool {
	for _, next := range slotTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Slot struct {
	ID            int64      `json:"id"`
	ProviderID    int64      `json:"provider_id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Status        SlotStatus `json:"status"`
	ReservationID *int64     `json:"reservation_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Linked reports whether the slot's reservation link agrees with its status.
func (s *Slot) Linked() bool {
	if s.Status == SlotAvailable {
		return s.ReservationID == nil
	}
	return s.ReservationID != nil
}
