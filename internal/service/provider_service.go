package service

import (
	"context"
	"strings"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
)

// defaultExportWindow is used when a slot listing has no explicit end.
const defaultExportWindow = 30 * 24 * time.Hour

type ProviderService struct {
	store  domain.Store
	clock  domain.Clock
	logger *zerolog.Logger
}

var _ domain.ProviderService = (*ProviderService)(nil)

func NewProviderService(store domain.Store, clock domain.Clock, logger *zerolog.Logger) *ProviderService {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &ProviderService{store: store, clock: clock, logger: logger}
}

func (s *ProviderService) CreateProvider(ctx context.Context, name string) (*models.Provider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Invalid("provider name is required")
	}

	p := &models.Provider{Name: name}
	if err := s.store.CreateProvider(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("provider_id", p.ID).Msg("Provider created")
	return p, nil
}

func (s *ProviderService) GetProvider(ctx context.Context, id int64) (*models.Provider, error) {
	return s.store.GetProvider(ctx, id)
}

func (s *ProviderService) ListProviders(ctx context.Context) ([]*models.Provider, error) {
	providers, err := s.store.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	if providers == nil {
		providers = []*models.Provider{}
	}
	return providers, nil
}

func (s *ProviderService) RenameProvider(ctx context.Context, id int64, name string) (*models.Provider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Invalid("provider name is required")
	}

	var provider *models.Provider
	err := s.store.WithTx(ctx, func(tx domain.StoreTx) error {
		p, err := tx.GetProvider(ctx, id)
		if err != nil {
			return err
		}
		p.Name = name
		if err := tx.UpdateProvider(ctx, p); err != nil {
			return err
		}
		provider = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return provider, nil
}

// DeleteProvider removes a provider with its availability and slots. It is
// refused while any of its slots is reserved or confirmed.
func (s *ProviderService) DeleteProvider(ctx context.Context, id int64) error {
	err := s.store.WithTx(ctx, func(tx domain.StoreTx) error {
		if _, err := tx.GetProvider(ctx, id); err != nil {
			return err
		}
		booked, err := tx.CountBookedSlots(ctx, id)
		if err != nil {
			return err
		}
		if booked > 0 {
			return domain.ErrProviderHasBookings
		}
		return tx.DeleteProvider(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int64("provider_id", id).Msg("Provider deleted")
	return nil
}

// ListProviderSlots returns every slot of the provider starting in [from, to)
// with its reservation details. A zero from means now; a zero to means 30
// days after from.
func (s *ProviderService) ListProviderSlots(ctx context.Context, providerID int64, from, to time.Time) ([]*models.SlotDetail, error) {
	if from.IsZero() {
		from = s.clock.Now().UTC()
	}
	if to.IsZero() {
		to = from.Add(defaultExportWindow)
	}
	if !from.Before(to) {
		return nil, domain.ErrInvalidRange
	}

	if _, err := s.store.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return s.store.ListProviderSlots(ctx, providerID, from, to)
}
