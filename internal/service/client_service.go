package service

import (
	"context"
	"net/mail"
	"strings"

	"slotbook/internal/domain"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
)

type ClientService struct {
	store  domain.Store
	logger *zerolog.Logger
}

var _ domain.ClientService = (*ClientService)(nil)

func NewClientService(store domain.Store, logger *zerolog.Logger) *ClientService {
	return &ClientService{store: store, logger: logger}
}

// CreateClient registers a client. Emails are unique, compared case-insensitively.
func (s *ClientService) CreateClient(ctx context.Context, client *models.Client) error {
	if err := normalizeClient(client); err != nil {
		return err
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return err
	}
	s.logger.Info().Int64("client_id", client.ID).Msg("Client created")
	return nil
}

func (s *ClientService) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	return s.store.GetClient(ctx, id)
}

func (s *ClientService) ListClients(ctx context.Context) ([]*models.Client, error) {
	clients, err := s.store.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	if clients == nil {
		clients = []*models.Client{}
	}
	return clients, nil
}

// UpdateClient applies the non-empty fields of patch to the client.
func (s *ClientService) UpdateClient(ctx context.Context, id int64, patch *models.Client) (*models.Client, error) {
	var updated *models.Client
	err := s.store.WithTx(ctx, func(tx domain.StoreTx) error {
		current, err := tx.GetClient(ctx, id)
		if err != nil {
			return err
		}
		if v := strings.TrimSpace(patch.Name); v != "" {
			current.Name = v
		}
		if v := strings.TrimSpace(patch.Email); v != "" {
			current.Email = v
		}
		if v := strings.TrimSpace(patch.PhoneNumber); v != "" {
			current.PhoneNumber = v
		}
		if err := normalizeClient(current); err != nil {
			return err
		}
		if err := tx.UpdateClient(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteClient removes a client that holds no reservations.
func (s *ClientService) DeleteClient(ctx context.Context, id int64) error {
	return s.store.WithTx(ctx, func(tx domain.StoreTx) error {
		if _, err := tx.GetClient(ctx, id); err != nil {
			return err
		}
		count, err := tx.CountClientReservations(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrClientHasReservations
		}
		return tx.DeleteClient(ctx, id)
	})
}

func (s *ClientService) ListClientReservations(ctx context.Context, clientID int64) ([]*models.Reservation, error) {
	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	return s.store.ListClientReservations(ctx, clientID)
}

func normalizeClient(c *models.Client) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.PhoneNumber = strings.TrimSpace(c.PhoneNumber)

	if c.Name == "" {
		return domain.Invalid("client name is required")
	}
	if c.Email == "" {
		return domain.Invalid("client email is required")
	}
	if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		return domain.Invalid("client email is malformed")
	}
	return nil
}
