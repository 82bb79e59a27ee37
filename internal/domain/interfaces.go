package domain

import (
	"context"
	"time"

	"slotbook/internal/models"
)

// StoreTx is the set of store operations available inside a transaction.
// The same operations are available outside one on Store.
type StoreTx interface {
	GetProvider(ctx context.Context, id int64) (*models.Provider, error)
	GetClient(ctx context.Context, id int64) (*models.Client, error)
	GetClientByEmail(ctx context.Context, email string) (*models.Client, error)
	GetSlot(ctx context.Context, id int64) (*models.Slot, error)
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	GetClientReservation(ctx context.Context, clientID, reservationID int64) (*models.Reservation, error)

	CreateAvailability(ctx context.Context, availability *models.Availability) error
	CreateSlots(ctx context.Context, slots []*models.Slot) error
	ListSlotsByStatus(ctx context.Context, providerID int64, status models.SlotStatus) ([]*models.Slot, error)

	CreateReservation(ctx context.Context, reservation *models.Reservation) error
	MarkReservationConfirmed(ctx context.Context, id int64, at time.Time) (bool, error)
	DeleteReservation(ctx context.Context, id int64) (bool, error)

	// TryTransition moves a slot from one status to another only if it is
	// still in from, linking or unlinking reservationID as the target status
	// requires. It reports whether the row changed.
	TryTransition(ctx context.Context, slotID int64, from, to models.SlotStatus, reservationID int64) (bool, error)

	CreateProvider(ctx context.Context, provider *models.Provider) error
	UpdateProvider(ctx context.Context, provider *models.Provider) error
	DeleteProvider(ctx context.Context, id int64) error
	CountBookedSlots(ctx context.Context, providerID int64) (int, error)

	CreateClient(ctx context.Context, client *models.Client) error
	UpdateClient(ctx context.Context, client *models.Client) error
	DeleteClient(ctx context.Context, id int64) error
	CountClientReservations(ctx context.Context, clientID int64) (int, error)
}

// Store is the durable slot store.
type Store interface {
	StoreTx

	// WithTx runs fn in a transaction, committing if fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx StoreTx) error) error

	ListProviders(ctx context.Context) ([]*models.Provider, error)
	ListClients(ctx context.Context) ([]*models.Client, error)
	ListClientReservations(ctx context.Context, clientID int64) ([]*models.Reservation, error)
	ListProviderSlots(ctx context.Context, providerID int64, from, to time.Time) ([]*models.SlotDetail, error)
	ListExpiredReservations(ctx context.Context, cutoff time.Time, after *models.ExpiryCursor, limit int) ([]*models.Reservation, error)
	Ping(ctx context.Context) error
}

// Locker grants short-lived exclusive leases across processes.
type Locker interface {
	// TryLock acquires key for ttl. It returns a token identifying the owner,
	// or ErrLeaseHeld if someone else owns the lease.
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Scheduler is the slot lifecycle and reservation engine.
type Scheduler interface {
	SubmitAvailability(ctx context.Context, providerID int64, start, end time.Time) (*models.AvailabilityResult, error)
	ListAvailableSlots(ctx context.Context, providerID int64) ([]*models.Slot, error)
	ReserveSlot(ctx context.Context, clientID, slotID int64) (*models.Hold, error)
	ConfirmReservation(ctx context.Context, clientID, reservationID int64) (*models.Reservation, error)
	ExpireStaleReservations(ctx context.Context) (*models.SweepResult, error)
}

type ProviderService interface {
	CreateProvider(ctx context.Context, name string) (*models.Provider, error)
	GetProvider(ctx context.Context, id int64) (*models.Provider, error)
	ListProviders(ctx context.Context) ([]*models.Provider, error)
	RenameProvider(ctx context.Context, id int64, name string) (*models.Provider, error)
	DeleteProvider(ctx context.Context, id int64) error
	ListProviderSlots(ctx context.Context, providerID int64, from, to time.Time) ([]*models.SlotDetail, error)
}

type ClientService interface {
	CreateClient(ctx context.Context, client *models.Client) error
	GetClient(ctx context.Context, id int64) (*models.Client, error)
	ListClients(ctx context.Context) ([]*models.Client, error)
	UpdateClient(ctx context.Context, id int64, patch *models.Client) (*models.Client, error)
	DeleteClient(ctx context.Context, id int64) error
	ListClientReservations(ctx context.Context, clientID int64) ([]*models.Reservation, error)
}
