package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

const slotColumns = `id, provider_id, start_time, end_time, status, reservation_id, created_at, updated_at`

// CreateAvailability inserts an availability window.
func (s store) CreateAvailability(ctx context.Context, a *models.Availability) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO availabilities (provider_id, start_time, end_time, created_at) VALUES (?, ?, ?, ?)`,
		a.ProviderID, a.StartTime.UTC(), a.EndTime.UTC(), now)
	if err != nil {
		return domain.WrapStorage("create availability", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.WrapStorage("create availability", err)
	}
	a.ID = id
	a.CreatedAt = now
	return nil
}

// CreateSlots inserts generated slots and fills in their ids.
func (s store) CreateSlots(ctx context.Context, slots []*models.Slot) error {
	now := time.Now().UTC()
	for _, slot := range slots {
		if slot.Status == "" {
			slot.Status = models.SlotAvailable
		}
		res, err := s.q.ExecContext(ctx,
			`INSERT INTO slots (provider_id, start_time, end_time, status, reservation_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			slot.ProviderID, slot.StartTime.UTC(), slot.EndTime.UTC(), string(slot.Status),
			nullableID(slot.ReservationID), now, now)
		if err != nil {
			return domain.WrapStorage("create slot", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return domain.WrapStorage("create slot", err)
		}
		slot.ID = id
		slot.CreatedAt = now
		slot.UpdatedAt = now
	}
	return nil
}

func (s store) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id)
	slot, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSlotNotFound
	}
	if err != nil {
		return nil, domain.WrapStorage("get slot", err)
	}
	return slot, nil
}

// ListSlotsByStatus returns a provider's slots in the given status ordered by start time.
func (s store) ListSlotsByStatus(ctx context.Context, providerID int64, status models.SlotStatus) ([]*models.Slot, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+slotColumns+` FROM slots
		 WHERE provider_id = ? AND status = ?
		 ORDER BY start_time ASC, id ASC`,
		providerID, string(status))
	if err != nil {
		return nil, domain.WrapStorage("list slots", err)
	}
	defer rows.Close()

	slots := make([]*models.Slot, 0)
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, domain.WrapStorage("scan slot", err)
		}
		slots = append(slots, slot)
	}
	return slots, domain.WrapStorage("list slots", rows.Err())
}

// TryTransition is a compare-and-set on the slot status. The update only
// applies while the slot is still in from; reservationID is linked when
// reserving and must match the current link for confirm and release.
func (s store) TryTransition(ctx context.Context, slotID int64, from, to models.SlotStatus, reservationID int64) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	now := time.Now().UTC()
	var (
		res sql.Result
		err error
	)
	switch to {
	case models.SlotReserved:
		res, err = s.q.ExecContext(ctx,
			`UPDATE slots SET status = ?, reservation_id = ?, updated_at = ?
			 WHERE id = ? AND status = ? AND reservation_id IS NULL`,
			string(to), reservationID, now, slotID, string(from))
	case models.SlotConfirmed:
		res, err = s.q.ExecContext(ctx,
			`UPDATE slots SET status = ?, updated_at = ?
			 WHERE id = ? AND status = ? AND reservation_id = ?`,
			string(to), now, slotID, string(from), reservationID)
	case models.SlotAvailable:
		res, err = s.q.ExecContext(ctx,
			`UPDATE slots SET status = ?, reservation_id = NULL, updated_at = ?
			 WHERE id = ? AND status = ? AND reservation_id = ?`,
			string(to), now, slotID, string(from), reservationID)
	}
	if err != nil {
		return false, domain.WrapStorage("transition slot", err)
	}

	ok, err := rowsAffected(res)
	if err != nil {
		return false, domain.WrapStorage("transition slot", err)
	}
	return ok, nil
}

// ListProviderSlots returns every slot of a provider starting in [from, to),
// joined with its reservation and client.
func (s store) ListProviderSlots(ctx context.Context, providerID int64, from, to time.Time) ([]*models.SlotDetail, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT s.id, s.provider_id, s.start_time, s.end_time, s.status, s.reservation_id,
		        s.created_at, s.updated_at, r.client_id, c.name, r.expires_at, r.confirmed_at
		 FROM slots s
		 LEFT JOIN reservations r ON r.id = s.reservation_id
		 LEFT JOIN clients c ON c.id = r.client_id
		 WHERE s.provider_id = ? AND s.start_time >= ? AND s.start_time < ?
		 ORDER BY s.start_time ASC, s.id ASC`,
		providerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, domain.WrapStorage("list provider slots", err)
	}
	defer rows.Close()

	var details []*models.SlotDetail
	for rows.Next() {
		var (
			d           models.SlotDetail
			status      string
			resID       sql.NullInt64
			clientID    sql.NullInt64
			clientName  sql.NullString
			expiresAt   sql.NullTime
			confirmedAt sql.NullTime
		)
		err := rows.Scan(&d.ID, &d.ProviderID, &d.StartTime, &d.EndTime, &status, &resID,
			&d.CreatedAt, &d.UpdatedAt, &clientID, &clientName, &expiresAt, &confirmedAt)
		if err != nil {
			return nil, domain.WrapStorage("scan provider slot", err)
		}
		d.Status = models.SlotStatus(status)
		d.ReservationID = int64Ptr(resID)
		d.ClientID = int64Ptr(clientID)
		d.ClientName = clientName.String
		d.ExpiresAt = timePtr(expiresAt)
		d.ConfirmedAt = timePtr(confirmedAt)
		details = append(details, &d)
	}
	return details, domain.WrapStorage("list provider slots", rows.Err())
}

func scanSlot(row rowScanner) (*models.Slot, error) {
	var (
		slot   models.Slot
		status string
		resID  sql.NullInt64
	)
	err := row.Scan(&slot.ID, &slot.ProviderID, &slot.StartTime, &slot.EndTime,
		&status, &resID, &slot.CreatedAt, &slot.UpdatedAt)
	if err != nil {
		return nil, err
	}
	slot.Status = models.SlotStatus(status)
	slot.ReservationID = int64Ptr(resID)
	return &slot, nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
