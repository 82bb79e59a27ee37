package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"slotbook/internal/database"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type testEnv struct {
	db        *database.DB
	clock     *fakeClock
	bus       *mockPublisher
	scheduler *SchedulingService
	providers *ProviderService
	clients   *ClientService
}

var testNow = time.Date(2024, 8, 21, 8, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T, policy Policy) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newTestEnvWithDB(t, db, policy)
}

func newTestEnvWithDB(t *testing.T, db *database.DB, policy Policy) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	clock := &fakeClock{now: testNow}
	bus := new(mockPublisher)
	bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil).Maybe()

	return &testEnv{
		db:        db,
		clock:     clock,
		bus:       bus,
		scheduler: NewSchedulingService(db, bus, clock, policy, &logger),
		providers: NewProviderService(db, clock, &logger),
		clients:   NewClientService(db, &logger),
	}
}

func (e *testEnv) provider(t *testing.T) *models.Provider {
	t.Helper()
	p, err := e.providers.CreateProvider(context.Background(), "Dr. Hopper")
	require.NoError(t, err)
	return p
}

func (e *testEnv) client(t *testing.T, email string) *models.Client {
	t.Helper()
	c := &models.Client{Name: "Client " + email, Email: email, PhoneNumber: "555-0100"}
	require.NoError(t, e.clients.CreateClient(context.Background(), c))
	return c
}

// window submits availability starting at offset from the test clock.
func (e *testEnv) window(t *testing.T, providerID int64, offset, length time.Duration) []*models.Slot {
	t.Helper()
	start := e.clock.Now().Add(offset)
	res, err := e.scheduler.SubmitAvailability(context.Background(), providerID, start, start.Add(length))
	require.NoError(t, err)
	return res.Slots
}
