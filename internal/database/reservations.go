package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

const reservationColumns = `id, slot_id, client_id, expires_at, confirmed_at, created_at`

// CreateReservation inserts a hold. The slot must be linked separately with TryTransition.
func (s store) CreateReservation(ctx context.Context, r *models.Reservation) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO reservations (slot_id, client_id, expires_at, confirmed_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.SlotID, r.ClientID, r.ExpiresAt.UTC(), nullableTime(r.ConfirmedAt), now)
	if err != nil {
		return domain.WrapStorage("create reservation", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.WrapStorage("create reservation", err)
	}
	r.ID = id
	r.CreatedAt = now
	return nil
}

func (s store) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, domain.WrapStorage("get reservation", err)
	}
	return r, nil
}

// GetClientReservation returns the reservation only if clientID owns it.
func (s store) GetClientReservation(ctx context.Context, clientID, reservationID int64) (*models.Reservation, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ? AND client_id = ?`,
		reservationID, clientID)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, domain.WrapStorage("get client reservation", err)
	}
	return r, nil
}

// MarkReservationConfirmed stamps confirmed_at once; it reports false if the
// reservation is missing or already confirmed.
func (s store) MarkReservationConfirmed(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE reservations SET confirmed_at = ? WHERE id = ? AND confirmed_at IS NULL`,
		at.UTC(), id)
	if err != nil {
		return false, domain.WrapStorage("confirm reservation", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return false, domain.WrapStorage("confirm reservation", err)
	}
	return ok, nil
}

// DeleteReservation removes an unconfirmed reservation. Confirmed rows are
// never deleted.
func (s store) DeleteReservation(ctx context.Context, id int64) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM reservations WHERE id = ? AND confirmed_at IS NULL`, id)
	if err != nil {
		return false, domain.WrapStorage("delete reservation", err)
	}
	ok, err := rowsAffected(res)
	if err != nil {
		return false, domain.WrapStorage("delete reservation", err)
	}
	return ok, nil
}

// ListExpiredReservations returns up to limit unconfirmed reservations
// expiring at or before cutoff, ordered by (expires_at, id) and starting
// strictly after the cursor when one is given.
func (s store) ListExpiredReservations(ctx context.Context, cutoff time.Time, after *models.ExpiryCursor, limit int) ([]*models.Reservation, error) {
	if limit <= 0 {
		limit = models.DefaultSweepBatchSize
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations
		 WHERE confirmed_at IS NULL AND expires_at <= ?`
	args := []any{cutoff.UTC()}
	if after != nil {
		query += ` AND (expires_at > ? OR (expires_at = ? AND id > ?))`
		args = append(args, after.ExpiresAt.UTC(), after.ExpiresAt.UTC(), after.ID)
	}
	query += ` ORDER BY expires_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapStorage("list expired reservations", err)
	}
	defer rows.Close()
	return collectReservations(rows)
}

func (s store) ListClientReservations(ctx context.Context, clientID int64) ([]*models.Reservation, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE client_id = ? ORDER BY id`, clientID)
	if err != nil {
		return nil, domain.WrapStorage("list client reservations", err)
	}
	defer rows.Close()
	return collectReservations(rows)
}

func collectReservations(rows *sql.Rows) ([]*models.Reservation, error) {
	reservations := make([]*models.Reservation, 0)
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, domain.WrapStorage("scan reservation", err)
		}
		reservations = append(reservations, r)
	}
	return reservations, domain.WrapStorage("scan reservations", rows.Err())
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r           models.Reservation
		confirmedAt sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.SlotID, &r.ClientID, &r.ExpiresAt, &confirmedAt, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ConfirmedAt = timePtr(confirmedAt)
	return &r, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
