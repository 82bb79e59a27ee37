package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"slotbook/internal/database"
	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSchedulingLifecycle(t *testing.T) {
	env := newTestEnv(t, DefaultPolicy())
	ctx := context.Background()

	provider := env.provider(t)
	client := env.client(t, "ada@example.com")

	// 2024-08-23T08:00Z to 09:00Z, 48 hours after the test clock
	start := time.Date(2024, 8, 23, 8, 0, 0, 0, time.UTC)
	res, err := env.scheduler.SubmitAvailability(ctx, provider.ID, start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, res.Slots, 4)
	assert.NotZero(t, res.Availability.ID)

	available, err := env.scheduler.ListAvailableSlots(ctx, provider.ID)
	require.NoError(t, err)
	require.Len(t, available, 4)
	for i, s := range available {
		assert.Equal(t, models.SlotAvailable, s.Status)
		assert.True(t, s.StartTime.Equal(start.Add(time.Duration(i)*15*time.Minute)))
	}
	first := available[0]

	hold, err := env.scheduler.ReserveSlot(ctx, client.ID, first.ID)
	require.NoError(t, err)
	assert.True(t, hold.ExpiresAt.Equal(testNow.Add(30*time.Minute)))

	_, err = env.scheduler.ReserveSlot(ctx, client.ID, first.ID)
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)

	available, err = env.scheduler.ListAvailableSlots(ctx, provider.ID)
	require.NoError(t, err)
	assert.Len(t, available, 3)

	// let the hold lapse and sweep it
	env.clock.Advance(31 * time.Minute)
	sweep, err := env.scheduler.ExpireStaleReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Released)
	assert.Zero(t, sweep.Failed)

	slot, err := env.db.GetSlot(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotAvailable, slot.Status)
	assert.Nil(t, slot.ReservationID)
	_, err = env.db.GetReservation(ctx, hold.ReservationID)
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)

	// hold again and confirm in time
	hold, err = env.scheduler.ReserveSlot(ctx, client.ID, first.ID)
	require.NoError(t, err)
	env.clock.Advance(10 * time.Minute)

	confirmed, err := env.scheduler.ConfirmReservation(ctx, client.ID, hold.ReservationID)
	require.NoError(t, err)
	require.NotNil(t, confirmed.ConfirmedAt)
	confirmedAt := *confirmed.ConfirmedAt
	assert.True(t, confirmedAt.Equal(env.clock.Now()))

	slot, err = env.db.GetSlot(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotConfirmed, slot.Status)
	require.NotNil(t, slot.ReservationID)
	assert.Equal(t, hold.ReservationID, *slot.ReservationID)

	// re-confirming is idempotent and keeps the original stamp, even past expiry
	env.clock.Advance(time.Hour)
	again, err := env.scheduler.ConfirmReservation(ctx, client.ID, hold.ReservationID)
	require.NoError(t, err)
	require.NotNil(t, again.ConfirmedAt)
	assert.True(t, again.ConfirmedAt.Equal(confirmedAt))

	// confirmed reservations are never swept
	sweep, err = env.scheduler.ExpireStaleReservations(ctx)
	require.NoError(t, err)
	assert.Zero(t, sweep.Released)

	env.bus.AssertCalled(t, "PublishJSON", events.EventAvailabilitySubmitted, mock.Anything)
	env.bus.AssertCalled(t, "PublishJSON", events.EventSlotReserved, mock.Anything)
	env.bus.AssertCalled(t, "PublishJSON", events.EventReservationReleased, mock.Anything)
	env.bus.AssertNumberOfCalls(t, "PublishJSON", 5)
}

func TestSubmitAvailability_Errors(t *testing.T) {
	env := newTestEnv(t, DefaultPolicy())
	ctx := context.Background()
	start := testNow.Add(48 * time.Hour)

	_, err := env.scheduler.SubmitAvailability(ctx, 404, start, start.Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	p := env.provider(t)
	_, err = env.scheduler.SubmitAvailability(ctx, p.ID, start, start)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	// nothing was persisted by the failed submissions
	slots, err := env.scheduler.ListAvailableSlots(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSubmitAvailability_DuplicatesAreNotMerged(t *testing.T) {
	env := newTestEnv(t, DefaultPolicy())
	p := env.provider(t)

	env.window(t, p.ID, 48*time.Hour, 30*time.Minute)
	env.window(t, p.ID, 48*time.Hour, 30*time.Minute)

	slots, err := env.scheduler.ListAvailableSlots(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, slots, 4)
}

func TestListAvailableSlots_UnknownProvider(t *testing.T) {
	env := newTestEnv(t, DefaultPolicy())
	_, err := env.scheduler.ListAvailableSlots(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestReserveSlot_Errors(t *testing.T) {
	env := newTestEnv(t, DefaultPolicy())
	ctx := context.Background()
	p := env.provider(t)
	c := env.client(t, "grace@example.com")
	slots := env.window(t, p.ID, 48*time.Hour, 30*time.Minute)

	t.Run("UnknownClient", func(t *testing.T) {
		_, err := env.scheduler.ReserveSlot(ctx, 999, slots[0].ID)
		assert.ErrorIs(t, err, domain.ErrClientNotFound)
	})

	t.Run("UnknownSlot", func(t *testing.T) {
		_, err := env.scheduler.ReserveSlot(ctx, c.ID, 999)
		assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
	})

	t.Run("NoPartialStateOnFailure", func(t *testing.T) {
		reservations, err := env.clients.ListClientReservations(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, reservations)
	})
}

func TestReserveSlot_LeadTime(t *testing.T) {
	env := newTestEnv(t, DefaultPolicy())
	ctx := context.Background()
	p := env.provider(t)
	c := env.client(t, "alan@example.com")
	other := env.client(t, "kurt@example.com")

	t.Run("ExactlyLeadTimeIsAllowed", func(t *testing.T) {
		slots := env.window(t, p.ID, 24*time.Hour, 15*time.Minute)
		_, err := env.scheduler.ReserveSlot(ctx, c.ID, slots[0].ID)
		assert.NoError(t, err)
	})

	t.Run("JustInsideLeadTime", func(t *testing.T) {
		slots := env.window(t, p.ID, 24*time.Hour-time.Second, 15*time.Minute)
		_, err := env.scheduler.ReserveSlot(ctx, c.ID, slots[0].ID)
		assert.ErrorIs(t, err, domain.ErrLeadTimeViolation)
	})

	t.Run("WinsOverUnavailable", func(t *testing.T) {
		slots := env.window(t, p.ID, 25*time.Hour, 15*time.Minute)
		_, err := env.scheduler.ReserveSlot(ctx, c.ID, slots[0].ID)
		require.NoError(t, err)

		env.clock.Advance(2 * time.Hour)
		_, err = env.scheduler.ReserveSlot(ctx, other.ID, slots[0].ID)
		assert.ErrorIs(t, err, domain.ErrLeadTimeViolation)
		assert.Equal(t, domain.KindPolicy, domain.KindOf(err))
	})

	t.Run("PastSlot", func(t *testing.T) {
		slots := env.window(t, p.ID, -time.Hour, 15*time.Minute)
		_, err := env.scheduler.ReserveSlot(ctx, c.ID, slots[0].ID)
		assert.ErrorIs(t, err, domain.ErrLeadTimeViolation)
	})
}

func TestReserveSlot_CustomPolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy.LeadTime = time.Hour
	policy.HoldDuration = 5 * time.Minute
	env := newTestEnv(t, policy)
	p := env.provider(t)
	c := env.client(t, "edsger@example.com")

	slots := env.window(t, p.ID, 2*time.Hour, 15*time.Minute)
	hold, err := env.scheduler.ReserveSlot(context.Background(), c.ID, slots[0].ID)
	require.NoError(t, err)
	assert.True(t, hold.ExpiresAt.Equal(testNow.Add(5*time.Minute)))
}

func TestConfirmReservation_Errors(t *testing.T) {
	env := newTestEnv(t, DefaultPolicy())
	ctx := context.Background()
	p := env.provider(t)
	owner := env.client(t, "owner@example.com")
	stranger := env.client(t, "stranger@example.com")
	slots := env.window(t, p.ID, 48*time.Hour, 30*time.Minute)

	hold, err := env.scheduler.ReserveSlot(ctx, owner.ID, slots[0].ID)
	require.NoError(t, err)

	t.Run("UnknownClient", func(t *testing.T) {
		_, err := env.scheduler.ConfirmReservation(ctx, 999, hold.ReservationID)
		assert.ErrorIs(t, err, domain.ErrClientNotFound)
	})

	t.Run("NotOwner", func(t *testing.T) {
		_, err := env.scheduler.ConfirmReservation(ctx, stranger.ID, hold.ReservationID)
		assert.ErrorIs(t, err, domain.ErrReservationNotFound)
	})

	t.Run("UnknownReservation", func(t *testing.T) {
		_, err := env.scheduler.ConfirmReservation(ctx, owner.ID, hold.ReservationID+100)
		assert.ErrorIs(t, err, domain.ErrReservationNotFound)
	})

	t.Run("ExpiredAtBoundary", func(t *testing.T) {
		env.clock.Advance(30 * time.Minute)
		_, err := env.scheduler.ConfirmReservation(ctx, owner.ID, hold.ReservationID)
		assert.ErrorIs(t, err, domain.ErrReservationExpired)

		// the failed confirm left everything as it was
		slot, err := env.db.GetSlot(ctx, slots[0].ID)
		require.NoError(t, err)
		assert.Equal(t, models.SlotReserved, slot.Status)
		r, err := env.db.GetReservation(ctx, hold.ReservationID)
		require.NoError(t, err)
		assert.Nil(t, r.ConfirmedAt)
	})

	t.Run("AfterSweep", func(t *testing.T) {
		_, err := env.scheduler.ExpireStaleReservations(ctx)
		require.NoError(t, err)

		_, err = env.scheduler.ConfirmReservation(ctx, owner.ID, hold.ReservationID)
		assert.ErrorIs(t, err, domain.ErrReservationNotFound)
	})
}

func TestExpireStaleReservations_Idempotent(t *testing.T) {
	env := newTestEnv(t, DefaultPolicy())
	ctx := context.Background()
	p := env.provider(t)
	c := env.client(t, "barbara@example.com")
	slots := env.window(t, p.ID, 48*time.Hour, time.Hour)

	for _, s := range slots[:3] {
		_, err := env.scheduler.ReserveSlot(ctx, c.ID, s.ID)
		require.NoError(t, err)
	}
	env.clock.Advance(30 * time.Minute)

	first, err := env.scheduler.ExpireStaleReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Released)

	second, err := env.scheduler.ExpireStaleReservations(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Released)
	assert.Zero(t, second.Failed)

	available, err := env.scheduler.ListAvailableSlots(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, available, 4)
}

func TestExpireStaleReservations_DrainsAllPages(t *testing.T) {
	policy := DefaultPolicy()
	policy.SweepBatch = 2
	env := newTestEnv(t, policy)
	ctx := context.Background()
	p := env.provider(t)
	c := env.client(t, "ada@example.com")
	slots := env.window(t, p.ID, 48*time.Hour, 75*time.Minute)
	require.Len(t, slots, 5)

	for _, s := range slots {
		_, err := env.scheduler.ReserveSlot(ctx, c.ID, s.ID)
		require.NoError(t, err)
	}
	env.clock.Advance(31 * time.Minute)

	first, err := env.scheduler.ExpireStaleReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Released)
	assert.Zero(t, first.Failed)

	second, err := env.scheduler.ExpireStaleReservations(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Released)

	available, err := env.scheduler.ListAvailableSlots(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, available, 5)
}

func TestExpireStaleReservations_FailedRowDoesNotStallPaging(t *testing.T) {
	policy := DefaultPolicy()
	policy.SweepBatch = 2
	env := newTestEnv(t, policy)
	ctx := context.Background()
	p := env.provider(t)
	c := env.client(t, "grace@example.com")
	slots := env.window(t, p.ID, 48*time.Hour, 75*time.Minute)

	for _, s := range slots {
		_, err := env.scheduler.ReserveSlot(ctx, c.ID, s.ID)
		require.NoError(t, err)
	}
	env.clock.Advance(time.Hour)

	logger := zerolog.Nop()
	flaky := &flakyStore{Store: env.db, failTx: map[int]bool{1: true}}
	sweeper := NewSchedulingService(flaky, env.bus, env.clock, policy, &logger)

	res, err := sweeper.ExpireStaleReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Released)
	assert.Equal(t, 1, res.Failed)
	// pages of 2, 2, 1: the pending failed row is not read again
	assert.Equal(t, 3, flaky.listCalls)

	res, err = env.scheduler.ExpireStaleReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Released)
}

func TestExpireStaleReservations_Grace(t *testing.T) {
	policy := DefaultPolicy()
	policy.SweepGrace = 30 * time.Minute
	env := newTestEnv(t, policy)
	ctx := context.Background()
	p := env.provider(t)
	c := env.client(t, "john@example.com")
	slots := env.window(t, p.ID, 48*time.Hour, 15*time.Minute)

	_, err := env.scheduler.ReserveSlot(ctx, c.ID, slots[0].ID)
	require.NoError(t, err)

	env.clock.Advance(45 * time.Minute)
	res, err := env.scheduler.ExpireStaleReservations(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Released)

	env.clock.Advance(15 * time.Minute)
	res, err = env.scheduler.ExpireStaleReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Released)
}

// flakyStore fails selected transactions and listings.
type flakyStore struct {
	domain.Store
	mu        sync.Mutex
	txCalls   int
	failTx    map[int]bool
	listErr   error
	listCalls int
}

func (f *flakyStore) WithTx(ctx context.Context, fn func(tx domain.StoreTx) error) error {
	f.mu.Lock()
	f.txCalls++
	fail := f.failTx[f.txCalls]
	f.mu.Unlock()
	if fail {
		return &domain.StorageError{Op: "begin transaction", Err: errors.New("database is locked")}
	}
	return f.Store.WithTx(ctx, fn)
}

func (f *flakyStore) ListExpiredReservations(ctx context.Context, cutoff time.Time, after *models.ExpiryCursor, limit int) ([]*models.Reservation, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.ListExpiredReservations(ctx, cutoff, after, limit)
}

func TestExpireStaleReservations_IsolatesFailures(t *testing.T) {
	env := newTestEnv(t, DefaultPolicy())
	ctx := context.Background()
	p := env.provider(t)
	c := env.client(t, "frances@example.com")
	slots := env.window(t, p.ID, 48*time.Hour, 45*time.Minute)

	for _, s := range slots {
		_, err := env.scheduler.ReserveSlot(ctx, c.ID, s.ID)
		require.NoError(t, err)
	}
	env.clock.Advance(time.Hour)

	logger := zerolog.Nop()
	flaky := &flakyStore{Store: env.db, failTx: map[int]bool{2: true}}
	sweeper := NewSchedulingService(flaky, env.bus, env.clock, DefaultPolicy(), &logger)

	res, err := sweeper.ExpireStaleReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Released)
	assert.Equal(t, 1, res.Failed)

	// the failed one was left whole and is picked up next time
	var reserved int
	for _, s := range slots {
		slot, err := env.db.GetSlot(ctx, s.ID)
		require.NoError(t, err)
		if slot.Status == models.SlotReserved {
			assert.True(t, slot.Linked())
			reserved++
		}
	}
	assert.Equal(t, 1, reserved)

	res, err = env.scheduler.ExpireStaleReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Released)
}

func TestExpireStaleReservations_ListFailure(t *testing.T) {
	env := newTestEnv(t, DefaultPolicy())
	logger := zerolog.Nop()
	listErr := &domain.StorageError{Op: "list expired reservations", Err: errors.New("disk I/O error")}
	flaky := &flakyStore{Store: env.db, listErr: listErr}
	sweeper := NewSchedulingService(flaky, env.bus, env.clock, DefaultPolicy(), &logger)

	_, err := sweeper.ExpireStaleReservations(context.Background())
	assert.Equal(t, domain.KindStorage, domain.KindOf(err))
}

func TestReserveSlot_Concurrent(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "slots.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	env := newTestEnvWithDB(t, db, DefaultPolicy())
	ctx := context.Background()
	p := env.provider(t)
	slots := env.window(t, p.ID, 48*time.Hour, 15*time.Minute)

	const numGoroutines = 10
	clients := make([]*models.Client, numGoroutines)
	for i := range clients {
		clients[i] = env.client(t, "c"+string(rune('a'+i))+"@example.com")
	}

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(clientID int64) {
			defer wg.Done()
			_, err := env.scheduler.ReserveSlot(ctx, clientID, slots[0].ID)
			results <- err
		}(clients[i].ID)
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
	}
	assert.Equal(t, 1, successCount, "exactly one hold should succeed")

	slot, err := db.GetSlot(ctx, slots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotReserved, slot.Status)
	assert.True(t, slot.Linked())
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	env := newTestEnv(t, DefaultPolicy())
	logger := zerolog.Nop()
	bus := new(mockPublisher)
	bus.On("PublishJSON", mock.Anything, mock.Anything).Return(errors.New("subscriber down"))
	scheduler := NewSchedulingService(env.db, bus, env.clock, DefaultPolicy(), &logger)

	p := env.provider(t)
	start := testNow.Add(48 * time.Hour)
	res, err := scheduler.SubmitAvailability(context.Background(), p.ID, start, start.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Len(t, res.Slots, 1)
	bus.AssertExpectations(t)
}

// slotsFailStore lets CreateAvailability through and fails CreateSlots in
// the same transaction.
type slotsFailStore struct {
	domain.Store
}

type slotsFailTx struct {
	domain.StoreTx
}

func (s slotsFailStore) WithTx(ctx context.Context, fn func(tx domain.StoreTx) error) error {
	return s.Store.WithTx(ctx, func(tx domain.StoreTx) error {
		return fn(slotsFailTx{StoreTx: tx})
	})
}

func (slotsFailTx) CreateSlots(context.Context, []*models.Slot) error {
	return &domain.StorageError{Op: "create slots", Err: errors.New("disk full")}
}

func TestSubmitAvailability_RollsBackOnSlotFailure(t *testing.T) {
	env := newTestEnv(t, DefaultPolicy())
	ctx := context.Background()
	p := env.provider(t)

	logger := zerolog.Nop()
	scheduler := NewSchedulingService(slotsFailStore{Store: env.db}, env.bus, env.clock, DefaultPolicy(), &logger)

	start := testNow.Add(48 * time.Hour)
	_, err := scheduler.SubmitAvailability(ctx, p.ID, start, start.Add(time.Hour))
	assert.Equal(t, domain.KindStorage, domain.KindOf(err))

	var availabilities int
	require.NoError(t, env.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM availabilities`).Scan(&availabilities))
	assert.Zero(t, availabilities)

	slots, err := env.providers.ListProviderSlots(ctx, p.ID, start.Add(-time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestConfirmRacesSweep(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "race.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	env := newTestEnvWithDB(t, db, DefaultPolicy())
	ctx := context.Background()
	p := env.provider(t)
	c := env.client(t, "barbara@example.com")
	slots := env.window(t, p.ID, 48*time.Hour, 75*time.Minute)

	// the sweeper sees every hold as expired while the client still sees it live
	late := &fakeClock{now: testNow.Add(31 * time.Minute)}
	sweeper := NewSchedulingService(db, env.bus, late, DefaultPolicy(), &logger)

	for _, s := range slots {
		hold, err := env.scheduler.ReserveSlot(ctx, c.ID, s.ID)
		require.NoError(t, err)

		var (
			wg         sync.WaitGroup
			start      = make(chan struct{})
			confirmErr error
			sweepRes   *models.SweepResult
			sweepErr   error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, confirmErr = env.scheduler.ConfirmReservation(ctx, c.ID, hold.ReservationID)
		}()
		go func() {
			defer wg.Done()
			<-start
			sweepRes, sweepErr = sweeper.ExpireStaleReservations(ctx)
		}()
		close(start)
		wg.Wait()

		require.NoError(t, sweepErr)
		slot, err := db.GetSlot(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, slot.Linked())

		if confirmErr == nil {
			assert.Zero(t, sweepRes.Released)
			assert.Equal(t, models.SlotConfirmed, slot.Status)
			continue
		}
		assert.ErrorIs(t, confirmErr, domain.ErrReservationNotFound)
		assert.Equal(t, 1, sweepRes.Released)
		assert.Equal(t, models.SlotAvailable, slot.Status)
	}
}
