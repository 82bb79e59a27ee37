package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentHolds(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	f := seed(t, db, 1)
	slotID := f.slots[0].ID

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			results <- db.WithTx(ctx, func(tx domain.StoreTx) error {
				slot, err := tx.GetSlot(ctx, slotID)
				if err != nil {
					return err
				}
				if slot.Status != models.SlotAvailable {
					return domain.ErrSlotUnavailable
				}
				r := &models.Reservation{SlotID: slotID, ClientID: f.client.ID, ExpiresAt: time.Now().UTC().Add(30 * time.Minute)}
				if err := tx.CreateReservation(ctx, r); err != nil {
					return err
				}
				ok, err := tx.TryTransition(ctx, slotID, models.SlotAvailable, models.SlotReserved, r.ID)
				if err != nil {
					return err
				}
				if !ok {
					return domain.ErrSlotUnavailable
				}
				return nil
			})
		}()
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
	assert.Equal(t, 1, successCount, "exactly one hold should win the slot")

	// losers rolled back their reservation rows
	reservations, err := db.ListClientReservations(ctx, f.client.ID)
	require.NoError(t, err)
	assert.Len(t, reservations, 1)

	slot, err := db.GetSlot(ctx, slotID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotReserved, slot.Status)
	require.NotNil(t, slot.ReservationID)
	assert.Equal(t, reservations[0].ID, *slot.ReservationID)
}
