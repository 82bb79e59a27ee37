package service

import (
	"time"

	"slotbook/internal/config"
	"slotbook/internal/domain"
	"slotbook/internal/models"
)

// Policy is the set of booking rules the engine enforces.
type Policy struct {
	SlotDuration time.Duration
	LeadTime     time.Duration
	HoldDuration time.Duration
	SweepGrace   time.Duration
	SweepBatch   int
}

func DefaultPolicy() Policy {
	return Policy{
		SlotDuration: models.DefaultSlotDuration,
		LeadTime:     models.DefaultLeadTime,
		HoldDuration: models.DefaultHoldDuration,
		SweepBatch:   models.DefaultSweepBatchSize,
	}
}

func PolicyFromConfig(cfg config.SchedulingConfig) Policy {
	return Policy{
		SlotDuration: cfg.SlotDuration,
		LeadTime:     cfg.LeadTime,
		HoldDuration: cfg.HoldDuration,
		SweepGrace:   cfg.SweepGrace,
		SweepBatch:   cfg.SweepBatch,
	}
}

// GenerateSlots cuts [start, end) into consecutive slots of the given
// duration. A trailing remainder shorter than one slot is dropped.
func GenerateSlots(providerID int64, start, end time.Time, duration time.Duration) ([]*models.Slot, error) {
	if !start.Before(end) {
		return nil, domain.ErrInvalidRange
	}
	if duration <= 0 {
		return nil, domain.Invalid("slot duration must be positive")
	}

	start, end = start.UTC(), end.UTC()
	slots := make([]*models.Slot, 0, int(end.Sub(start)/duration))
	for current := start; ; current = current.Add(duration) {
		slotEnd := current.Add(duration)
		if slotEnd.After(end) {
			break
		}
		slots = append(slots, &models.Slot{
			ProviderID: providerID,
			StartTime:  current,
			EndTime:    slotEnd,
			Status:     models.SlotAvailable,
		})
	}
	return slots, nil
}
