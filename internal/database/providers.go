package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

// CreateProvider inserts a new provider.
func (s store) CreateProvider(ctx context.Context, p *models.Provider) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO providers (name, created_at, updated_at) VALUES (?, ?, ?)`,
		p.Name, now, now)
	if err != nil {
		return domain.WrapStorage("create provider", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.WrapStorage("create provider", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (s store) GetProvider(ctx context.Context, id int64) (*models.Provider, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM providers WHERE id = ?`, id)
	p, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProviderNotFound
	}
	if err != nil {
		return nil, domain.WrapStorage("get provider", err)
	}
	return p, nil
}

func (s store) ListProviders(ctx context.Context) ([]*models.Provider, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM providers ORDER BY id`)
	if err != nil {
		return nil, domain.WrapStorage("list providers", err)
	}
	defer rows.Close()

	var providers []*models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, domain.WrapStorage("scan provider", err)
		}
		providers = append(providers, p)
	}
	return providers, domain.WrapStorage("list providers", rows.Err())
}

// UpdateProvider renames a provider.
func (s store) UpdateProvider(ctx context.Context, p *models.Provider) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`UPDATE providers SET name = ?, updated_at = ? WHERE id = ?`, p.Name, now, p.ID)
	if err != nil {
		return domain.WrapStorage("update provider", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return domain.WrapStorage("update provider", err)
	}
	if !ok {
		return domain.ErrProviderNotFound
	}
	p.UpdatedAt = now
	return nil
}

// DeleteProvider removes a provider together with its availability and slots.
func (s store) DeleteProvider(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id)
	if err != nil {
		return domain.WrapStorage("delete provider", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return domain.WrapStorage("delete provider", err)
	}
	if !ok {
		return domain.ErrProviderNotFound
	}
	return nil
}

// CountBookedSlots counts the provider's slots that are reserved or confirmed.
func (s store) CountBookedSlots(ctx context.Context, providerID int64) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM slots WHERE provider_id = ? AND status != ?`,
		providerID, models.SlotAvailable).Scan(&count)
	if err != nil {
		return 0, domain.WrapStorage("count booked slots", err)
	}
	return count, nil
}

func scanProvider(row rowScanner) (*models.Provider, error) {
	var p models.Provider
	if err := row.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
