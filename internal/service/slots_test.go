package service

import (
	"testing"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSlots_Tiling(t *testing.T) {
	start := time.Date(2024, 8, 23, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		length time.Duration
		want   int
	}{
		{"one hour", time.Hour, 4},
		{"exactly one slot", 15 * time.Minute, 1},
		{"trailing remainder dropped", 70 * time.Minute, 4},
		{"shorter than a slot", 14 * time.Minute, 0},
		{"full day", 24 * time.Hour, 96},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end := start.Add(tt.length)
			slots, err := GenerateSlots(9, start, end, 15*time.Minute)
			require.NoError(t, err)
			require.Len(t, slots, tt.want)

			cursor := start
			for _, s := range slots {
				assert.Equal(t, int64(9), s.ProviderID)
				assert.Equal(t, models.SlotAvailable, s.Status)
				assert.Nil(t, s.ReservationID)
				assert.True(t, s.StartTime.Equal(cursor), "slots must be contiguous")
				assert.Equal(t, 15*time.Minute, s.EndTime.Sub(s.StartTime))
				assert.False(t, s.EndTime.After(end))
				cursor = s.EndTime
			}
			// the uncovered tail is shorter than one slot
			assert.Less(t, end.Sub(cursor), 15*time.Minute)
		})
	}
}

func TestGenerateSlots_InvalidRange(t *testing.T) {
	start := time.Date(2024, 8, 23, 8, 0, 0, 0, time.UTC)

	_, err := GenerateSlots(1, start, start, 15*time.Minute)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = GenerateSlots(1, start, start.Add(-time.Hour), 15*time.Minute)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = GenerateSlots(1, start, start.Add(time.Hour), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGenerateSlots_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	start := time.Date(2024, 8, 23, 11, 0, 0, 0, loc)

	slots, err := GenerateSlots(1, start, start.Add(30*time.Minute), 15*time.Minute)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, time.UTC, slots[0].StartTime.Location())
	assert.Equal(t, 8, slots[0].StartTime.Hour())
}

func TestPolicyDefaults(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 15*time.Minute, p.SlotDuration)
	assert.Equal(t, 24*time.Hour, p.LeadTime)
	assert.Equal(t, 30*time.Minute, p.HoldDuration)
	assert.Zero(t, p.SweepGrace)
}
