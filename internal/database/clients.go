package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

const clientColumns = `id, name, email, phone_number, created_at, updated_at`

// CreateClient inserts a new client. A duplicate email yields ErrDuplicateEmail.
func (s store) CreateClient(ctx context.Context, c *models.Client) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO clients (name, email, phone_number, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.Email, c.PhoneNumber, now, now)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateEmail
	}
	if err != nil {
		return domain.WrapStorage("create client", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.WrapStorage("create client", err)
	}
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (s store) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrClientNotFound
	}
	if err != nil {
		return nil, domain.WrapStorage("get client", err)
	}
	return c, nil
}

func (s store) GetClientByEmail(ctx context.Context, email string) (*models.Client, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE email = ?`, email)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrClientNotFound
	}
	if err != nil {
		return nil, domain.WrapStorage("get client by email", err)
	}
	return c, nil
}

func (s store) ListClients(ctx context.Context) ([]*models.Client, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY id`)
	if err != nil {
		return nil, domain.WrapStorage("list clients", err)
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, domain.WrapStorage("scan client", err)
		}
		clients = append(clients, c)
	}
	return clients, domain.WrapStorage("list clients", rows.Err())
}

func (s store) UpdateClient(ctx context.Context, c *models.Client) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`UPDATE clients SET name = ?, email = ?, phone_number = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Email, c.PhoneNumber, now, c.ID)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateEmail
	}
	if err != nil {
		return domain.WrapStorage("update client", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return domain.WrapStorage("update client", err)
	}
	if !ok {
		return domain.ErrClientNotFound
	}
	c.UpdatedAt = now
	return nil
}

func (s store) DeleteClient(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return domain.WrapStorage("delete client", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return domain.WrapStorage("delete client", err)
	}
	if !ok {
		return domain.ErrClientNotFound
	}
	return nil
}

func (s store) CountClientReservations(ctx context.Context, clientID int64) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE client_id = ?`, clientID).Scan(&count)
	if err != nil {
		return 0, domain.WrapStorage("count client reservations", err)
	}
	return count, nil
}

func scanClient(row rowScanner) (*models.Client, error) {
	var c models.Client
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.PhoneNumber, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
