package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/wavelane/studio-booking/internal/model"
)

// RevenueRepo persists revenue records.  The booking_id column carries a
// unique key, which is the at-most-once settlement guard: two concurrent
// webhook retries can both pass a "does not exist" read, but only one
// insert succeeds; the loser observes ErrDuplicateSettlement.
type RevenueRepo struct {
	db *sql.DB
}

// NewRevenueRepo returns a RevenueRepo bound to the database.
func NewRevenueRepo(db *sql.DB) *RevenueRepo { return &RevenueRepo{db: db} }

const revenueColumns = `id, booking_id, order_id, provider_kind, provider_id,
	breakdown, subtotal_cents, commission_rate, commission_cents, earnings_cents,
	status, refunds, adjustments, payouts, audit, created_at, updated_at`

func scanRevenue(row interface{ Scan(...any) error }) (*model.Revenue, error) {
	var rv model.Revenue
	var breakdown, refunds, adjustments, payouts, audit []byte
	err := row.Scan(&rv.ID, &rv.BookingID, &rv.OrderID, &rv.Provider.Kind, &rv.Provider.ID,
		&breakdown, &rv.SubtotalCents, &rv.CommissionRate, &rv.CommissionCents, &rv.EarningsCents,
		&rv.Status, &refunds, &adjustments, &payouts, &audit, &rv.CreatedAt, &rv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	for _, pair := range []struct {
		raw []byte
		dst any
	}{
		{breakdown, &rv.Breakdown},
		{refunds, &rv.Refunds},
		{adjustments, &rv.Adjustments},
		{payouts, &rv.Payouts},
		{audit, &rv.Audit},
	} {
		if len(pair.raw) > 0 {
			if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
				return nil, err
			}
		}
	}
	return &rv, nil
}

// Create inserts a revenue record exactly once per booking.  A duplicate
// booking_id maps to ErrDuplicateSettlement; the existing record is left
// untouched.
func (r *RevenueRepo) Create(ctx context.Context, rv *model.Revenue) error {
	breakdown, err := json.Marshal(rv.Breakdown)
	if err != nil {
		return err
	}
	refunds, _ := json.Marshal(rv.Refunds)
	adjustments, _ := json.Marshal(rv.Adjustments)
	payouts, _ := json.Marshal(rv.Payouts)
	audit, _ := json.Marshal(rv.Audit)
	const q = `INSERT INTO revenues
		(booking_id, order_id, provider_kind, provider_id, breakdown,
		 subtotal_cents, commission_rate, commission_cents, earnings_cents,
		 status, refunds, adjustments, payouts, audit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, rv.BookingID, rv.OrderID,
		rv.Provider.Kind, rv.Provider.ID, breakdown,
		rv.SubtotalCents, rv.CommissionRate, rv.CommissionCents, rv.EarningsCents,
		rv.Status, refunds, adjustments, payouts, audit)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateSettlement
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rv.ID = uint64(id)
	return nil
}

// GetByBookingID loads the revenue record for a booking, if any.
func (r *RevenueRepo) GetByBookingID(ctx context.Context, bookingID uint64) (*model.Revenue, error) {
	const q = `SELECT ` + revenueColumns + ` FROM revenues WHERE booking_id = ?`
	return scanRevenue(r.db.QueryRowContext(ctx, q, bookingID))
}

// Mutate loads a revenue record under a row lock, applies fn to it and
// writes back the mutable fields (status and the appended arrays).  The
// settled totals are never rewritten.  fn returning an error aborts the
// transaction unchanged.
func (r *RevenueRepo) Mutate(ctx context.Context, revenueID uint64, fn func(*model.Revenue) error) (*model.Revenue, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	const sel = `SELECT ` + revenueColumns + ` FROM revenues WHERE id = ? FOR UPDATE`
	rv, err := scanRevenue(tx.QueryRowContext(ctx, sel, revenueID))
	if err != nil {
		return nil, err
	}
	if err := fn(rv); err != nil {
		return nil, err
	}
	if err := writeMutable(ctx, tx, rv); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return rv, nil
}

func writeMutable(ctx context.Context, tx *sql.Tx, rv *model.Revenue) error {
	refunds, _ := json.Marshal(rv.Refunds)
	adjustments, _ := json.Marshal(rv.Adjustments)
	payouts, _ := json.Marshal(rv.Payouts)
	audit, _ := json.Marshal(rv.Audit)
	const upd = `UPDATE revenues SET status = ?, refunds = ?, adjustments = ?,
		payouts = ?, audit = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, upd, rv.Status, refunds, adjustments, payouts, audit, rv.ID)
	return err
}

// MutatePayable locks every payable revenue record of a provider oldest
// first, applies fn across the set and writes back each record fn marked
// dirty by returning it.  Used by payout requests that drain multiple
// records until the requested amount is satisfied.
func (r *RevenueRepo) MutatePayable(ctx context.Context, p model.ProviderRef, fn func([]*model.Revenue) ([]*model.Revenue, error)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	const sel = `SELECT ` + revenueColumns + ` FROM revenues
		WHERE provider_kind = ? AND provider_id = ? AND status IN ('CONFIRMED')
		ORDER BY created_at, id FOR UPDATE`
	rows, err := tx.QueryContext(ctx, sel, p.Kind, p.ID)
	if err != nil {
		return err
	}
	records := make([]*model.Revenue, 0)
	for rows.Next() {
		rv, err := scanRevenue(rows)
		if err != nil {
			rows.Close()
			return err
		}
		records = append(records, rv)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	dirty, err := fn(records)
	if err != nil {
		return err
	}
	for _, rv := range dirty {
		if err := writeMutable(ctx, tx, rv); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// NotFound reports whether err means the revenue row was absent.
func NotFound(err error) bool { return errors.Is(err, sql.ErrNoRows) }
