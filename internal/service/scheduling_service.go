package service

import (
	"context"
	"errors"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/metrics"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
)

// SchedulingService runs the slot lifecycle: availability submission,
// holds, confirmations and the release of expired holds.
type SchedulingService struct {
	store    domain.Store
	eventBus domain.EventPublisher
	clock    domain.Clock
	policy   Policy
	logger   *zerolog.Logger
}

var _ domain.Scheduler = (*SchedulingService)(nil)

func NewSchedulingService(store domain.Store, eventBus domain.EventPublisher, clock domain.Clock, policy Policy, logger *zerolog.Logger) *SchedulingService {
	if clock == nil {
		clock = domain.RealClock{}
	}
	if policy.SlotDuration <= 0 {
		policy.SlotDuration = models.DefaultSlotDuration
	}
	if policy.HoldDuration <= 0 {
		policy.HoldDuration = models.DefaultHoldDuration
	}
	if policy.SweepBatch <= 0 {
		policy.SweepBatch = models.DefaultSweepBatchSize
	}
	return &SchedulingService{
		store:    store,
		eventBus: eventBus,
		clock:    clock,
		policy:   policy,
		logger:   logger,
	}
}

func (s *SchedulingService) Policy() Policy {
	return s.policy
}

// SubmitAvailability records a provider's window and its generated slots
// in one transaction.
func (s *SchedulingService) SubmitAvailability(ctx context.Context, providerID int64, start, end time.Time) (*models.AvailabilityResult, error) {
	slots, err := GenerateSlots(providerID, start, end, s.policy.SlotDuration)
	if err != nil {
		return nil, err
	}

	availability := &models.Availability{ProviderID: providerID, StartTime: start.UTC(), EndTime: end.UTC()}
	err = s.store.WithTx(ctx, func(tx domain.StoreTx) error {
		if _, err := tx.GetProvider(ctx, providerID); err != nil {
			return err
		}
		if err := tx.CreateAvailability(ctx, availability); err != nil {
			return err
		}
		return tx.CreateSlots(ctx, slots)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("provider_id", providerID).
		Int64("availability_id", availability.ID).
		Int("slots", len(slots)).
		Msg("Availability submitted")

	s.publishEvent(events.EventAvailabilitySubmitted, events.AvailabilityEventPayload{
		AvailabilityID: availability.ID,
		ProviderID:     providerID,
		StartTime:      availability.StartTime,
		EndTime:        availability.EndTime,
		SlotCount:      len(slots),
	})

	return &models.AvailabilityResult{Availability: availability, Slots: slots}, nil
}

// ListAvailableSlots returns the provider's available slots ordered by start time.
func (s *SchedulingService) ListAvailableSlots(ctx context.Context, providerID int64) ([]*models.Slot, error) {
	if _, err := s.store.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return s.store.ListSlotsByStatus(ctx, providerID, models.SlotAvailable)
}

// ReserveSlot places a time-limited hold on a slot for a client.
// A slot starting within the lead time is refused with ErrLeadTimeViolation
// whatever its status.
func (s *SchedulingService) ReserveSlot(ctx context.Context, clientID, slotID int64) (*models.Hold, error) {
	now := s.clock.Now().UTC()

	var (
		hold *models.Hold
		slot *models.Slot
	)
	err := s.store.WithTx(ctx, func(tx domain.StoreTx) error {
		if _, err := tx.GetClient(ctx, clientID); err != nil {
			return err
		}

		var err error
		slot, err = tx.GetSlot(ctx, slotID)
		if errors.Is(err, domain.ErrSlotNotFound) {
			return domain.ErrSlotUnavailable
		}
		if err != nil {
			return err
		}

		if slot.StartTime.Sub(now) < s.policy.LeadTime {
			return domain.ErrLeadTimeViolation
		}
		if slot.Status != models.SlotAvailable {
			return domain.ErrSlotUnavailable
		}

		reservation := &models.Reservation{
			SlotID:    slotID,
			ClientID:  clientID,
			ExpiresAt: now.Add(s.policy.HoldDuration),
		}
		if err := tx.CreateReservation(ctx, reservation); err != nil {
			return err
		}

		ok, err := tx.TryTransition(ctx, slotID, models.SlotAvailable, models.SlotReserved, reservation.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrSlotUnavailable
		}

		hold = &models.Hold{ReservationID: reservation.ID, SlotID: slotID, ExpiresAt: reservation.ExpiresAt}
		return nil
	})
	if err != nil {
		metrics.IncHold(resultLabel(err))
		s.logger.Debug().Err(err).Int64("client_id", clientID).Int64("slot_id", slotID).Msg("Hold refused")
		return nil, err
	}
	metrics.IncHold(metrics.ResultOK)

	s.logger.Info().
		Int64("client_id", clientID).
		Int64("slot_id", slotID).
		Int64("reservation_id", hold.ReservationID).
		Time("expires_at", hold.ExpiresAt).
		Msg("Slot reserved")

	expiresAt := hold.ExpiresAt
	s.publishEvent(events.EventSlotReserved, events.SlotEventPayload{
		SlotID:        slotID,
		ProviderID:    slot.ProviderID,
		ReservationID: hold.ReservationID,
		ClientID:      clientID,
		Status:        string(models.SlotReserved),
		StartTime:     slot.StartTime,
		ExpiresAt:     &expiresAt,
	})

	return hold, nil
}

// ConfirmReservation turns a live hold into a booking. Confirming an
// already confirmed reservation succeeds and keeps the original timestamp.
func (s *SchedulingService) ConfirmReservation(ctx context.Context, clientID, reservationID int64) (*models.Reservation, error) {
	now := s.clock.Now().UTC()

	var (
		reservation *models.Reservation
		repeated    bool
	)
	err := s.store.WithTx(ctx, func(tx domain.StoreTx) error {
		if _, err := tx.GetClient(ctx, clientID); err != nil {
			return err
		}

		var err error
		reservation, err = tx.GetClientReservation(ctx, clientID, reservationID)
		if err != nil {
			return err
		}

		if reservation.IsConfirmed() {
			repeated = true
			return nil
		}
		if reservation.IsExpired(now) {
			return domain.ErrReservationExpired
		}

		ok, err := tx.MarkReservationConfirmed(ctx, reservation.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentModification
		}

		ok, err = tx.TryTransition(ctx, reservation.SlotID, models.SlotReserved, models.SlotConfirmed, reservation.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentModification
		}

		reservation.ConfirmedAt = &now
		return nil
	})
	if err != nil {
		metrics.IncConfirmation(resultLabel(err))
		return nil, err
	}
	metrics.IncConfirmation(metrics.ResultOK)

	if repeated {
		s.logger.Debug().Int64("reservation_id", reservationID).Msg("Reservation already confirmed")
		return reservation, nil
	}

	s.logger.Info().
		Int64("client_id", clientID).
		Int64("reservation_id", reservationID).
		Int64("slot_id", reservation.SlotID).
		Msg("Reservation confirmed")

	s.publishEvent(events.EventReservationConfirmed, events.SlotEventPayload{
		SlotID:        reservation.SlotID,
		ReservationID: reservation.ID,
		ClientID:      clientID,
		Status:        string(models.SlotConfirmed),
		ExpiresAt:     &reservation.ExpiresAt,
		ConfirmedAt:   reservation.ConfirmedAt,
	})

	return reservation, nil
}

// ExpireStaleReservations releases unconfirmed holds whose expiry is at or
// before now minus the sweep grace. Candidates are read in pages of
// SweepBatch until a short page comes back, so one call drains every stale
// hold. Each reservation is released in its own transaction; a failure is
// logged and counted without stopping the sweep. Only a failure to list
// candidates is returned as an error.
func (s *SchedulingService) ExpireStaleReservations(ctx context.Context) (*models.SweepResult, error) {
	started := time.Now()
	cutoff := s.clock.Now().UTC().Add(-s.policy.SweepGrace)

	result := &models.SweepResult{}
	defer func() {
		metrics.AddReleased(result.Released)
		metrics.ObserveSweep(time.Since(started))
	}()

	var after *models.ExpiryCursor
	for ctx.Err() == nil {
		page, err := s.store.ListExpiredReservations(ctx, cutoff, after, s.policy.SweepBatch)
		if err != nil {
			s.logger.Error().Err(err).Int("released", result.Released).Msg("Failed to list expired reservations")
			return nil, err
		}

		for _, candidate := range page {
			if ctx.Err() != nil {
				break
			}
			s.sweepOne(ctx, candidate, cutoff, result)
		}

		if len(page) < s.policy.SweepBatch {
			break
		}
		last := page[len(page)-1]
		after = &models.ExpiryCursor{ExpiresAt: last.ExpiresAt, ID: last.ID}
	}

	if result.Released > 0 || result.Failed > 0 {
		s.logger.Info().
			Int("released", result.Released).
			Int("failed", result.Failed).
			Time("cutoff", cutoff).
			Msg("Expired reservations swept")
	}

	return result, nil
}

func (s *SchedulingService) sweepOne(ctx context.Context, candidate *models.Reservation, cutoff time.Time, result *models.SweepResult) {
	released, err := s.release(ctx, candidate.ID, cutoff)
	if err != nil {
		result.Failed++
		s.logger.Error().Err(err).
			Int64("reservation_id", candidate.ID).
			Int64("slot_id", candidate.SlotID).
			Msg("Failed to release expired reservation")
		return
	}
	if !released {
		return
	}

	result.Released++
	s.publishEvent(events.EventReservationReleased, events.SlotEventPayload{
		SlotID:        candidate.SlotID,
		ReservationID: candidate.ID,
		ClientID:      candidate.ClientID,
		Status:        string(models.SlotAvailable),
		ExpiresAt:     &candidate.ExpiresAt,
	})
}

// release frees one reservation's slot and deletes the reservation. It
// re-reads the row inside the transaction so a concurrent confirm or sweep
// that committed first wins; in that case it reports false.
func (s *SchedulingService) release(ctx context.Context, reservationID int64, cutoff time.Time) (bool, error) {
	var released bool
	err := s.store.WithTx(ctx, func(tx domain.StoreTx) error {
		reservation, err := tx.GetReservation(ctx, reservationID)
		if errors.Is(err, domain.ErrReservationNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if reservation.IsConfirmed() || reservation.ExpiresAt.After(cutoff) {
			return nil
		}

		ok, err := tx.TryTransition(ctx, reservation.SlotID, models.SlotReserved, models.SlotAvailable, reservation.ID)
		if err != nil {
			return err
		}
		if !ok {
			s.logger.Warn().
				Int64("reservation_id", reservation.ID).
				Int64("slot_id", reservation.SlotID).
				Msg("Expired reservation is not linked to a reserved slot, deleting orphan")
		}

		released, err = tx.DeleteReservation(ctx, reservation.ID)
		return err
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

func (s *SchedulingService) publishEvent(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}

func resultLabel(err error) string {
	switch domain.KindOf(err) {
	case domain.KindStorage, domain.KindUnknown:
		return metrics.ResultError
	default:
		return metrics.ResultRejected
	}
}
