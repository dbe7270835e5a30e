package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/wavelane/studio-booking/internal/model"
)

// PaymentRepo persists payment records keyed by the globally unique
// gateway order id.  Snapshot and history are stored as JSON columns; the
// snapshot never changes after the payment completes, only status and
// refund fields move.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a PaymentRepo bound to the database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// isDuplicateKey reports whether err is a MySQL unique-constraint
// violation (error 1062).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// Create inserts a new payment record at checkout initiation.  The order
// id carries a unique key; a duplicate insert surfaces as a duplicate-key
// error to the caller.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	snap, err := json.Marshal(p.Snapshot)
	if err != nil {
		return err
	}
	hist, err := json.Marshal(p.History)
	if err != nil {
		return err
	}
	const q = `INSERT INTO payments
		(order_id, booking_id, status, amount_cents, currency, snapshot, history)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, p.OrderID, p.BookingID, p.Status,
		p.AmountCents, p.Currency, snap, hist)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

const paymentColumns = `id, order_id, booking_id, payment_id, status, amount_cents,
	currency, snapshot, history, refund_cents, refund_reason, refunded_at,
	created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (*model.Payment, error) {
	var p model.Payment
	var paymentID, refundReason sql.NullString
	var refundedAt sql.NullTime
	var snap, hist []byte
	err := row.Scan(&p.ID, &p.OrderID, &p.BookingID, &paymentID, &p.Status,
		&p.AmountCents, &p.Currency, &snap, &hist,
		&p.RefundCents, &refundReason, &refundedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.PaymentID = paymentID.String
	p.RefundReason = refundReason.String
	if refundedAt.Valid {
		t := refundedAt.Time
		p.RefundedAt = &t
	}
	if len(snap) > 0 {
		if err := json.Unmarshal(snap, &p.Snapshot); err != nil {
			return nil, err
		}
	}
	if len(hist) > 0 {
		if err := json.Unmarshal(hist, &p.History); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// RecordEvent appends a status-change entry to the payment's history and
// moves its status, all under a row lock so concurrent webhook retries
// serialize their history writes.  Terminal payments accept no further
// status changes; a redelivered event for the current status is recorded
// in the history once and otherwise ignored.
func (r *PaymentRepo) RecordEvent(ctx context.Context, orderID string, status model.PaymentStatus, gatewayPaymentID, actor, reason string, at time.Time) error {
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
	const sel = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = ? FOR UPDATE`
	p, err := scanPayment(tx.QueryRowContext(ctx, sel, orderID))
	if err != nil {
		return err
	}
	terminal := p.Status == model.PaymentRefunded || p.Status == model.PaymentChargeback || p.Status == model.PaymentFailed
	if terminal || p.Status == status {
		// No status change; nothing to write.
		_ = tx.Rollback()
		return nil
	}
	// Completed payments only move to refund or chargeback states.
	if p.Status == model.PaymentCompleted && status != model.PaymentRefunded && status != model.PaymentChargeback {
		_ = tx.Rollback()
		return nil
	}
	p.History = append(p.History, model.PaymentEvent{Status: status, Actor: actor, Reason: reason, At: at.UTC()})
	hist, err := json.Marshal(p.History)
	if err != nil {
		return err
	}
	const upd = `UPDATE payments SET status = ?, payment_id = COALESCE(NULLIF(?, ''), payment_id), history = ?
		WHERE order_id = ?`
	if _, err := tx.ExecContext(ctx, upd, status, gatewayPaymentID, hist, orderID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// MarkRefunded records a refund amount against a completed payment.  The
// refund may never exceed the charged amount.
func (r *PaymentRepo) MarkRefunded(ctx context.Context, orderID string, refundCents int64, reason string, at time.Time) error {
	const q = `UPDATE payments SET status = ?, refund_cents = refund_cents + ?,
		refund_reason = ?, refunded_at = ?
		WHERE order_id = ? AND refund_cents + ? <= amount_cents`
	res, err := r.db.ExecContext(ctx, q, model.PaymentRefunded, refundCents,
		reason, at.UTC(), orderID, refundCents)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("refund exceeds charged amount or payment missing")
	}
	return nil
}
