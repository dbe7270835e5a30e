package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/wavelane/studio-booking/internal/model"
)

// BookingRepo provides persistence for bookings.  All timestamps are
// stored in UTC.  Status transitions are written with status-scoped
// UPDATE statements so that concurrent webhook retries, administrative
// actions and the expiry sweep can never move a booking backwards.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions that
// span repositories.
func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingColumns = `id, client_id, provider_kind, provider_id, starts_at, ends_at,
	service_name, price_cents, currency, status, order_id, payment_id,
	cancel_reason, refund_cents, completed_at, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (*model.Booking, error) {
	var b model.Booking
	var orderID, paymentID, cancelReason sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.ClientID, &b.Provider.Kind, &b.Provider.ID, &b.StartsAt, &b.EndsAt,
		&b.ServiceName, &b.PriceCents, &b.Currency, &b.Status, &orderID, &paymentID,
		&cancelReason, &b.RefundCents, &completedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.OrderID = orderID.String
	b.PaymentID = paymentID.String
	b.CancelReason = cancelReason.String
	if completedAt.Valid {
		t := completedAt.Time
		b.CompletedAt = &t
	}
	return &b, nil
}

// statusSet renders a status list as a quoted SQL IN list.  The sets below
// are derived from the model's transition table and predicates, so the
// status-scoped queries cannot drift from the state machine.
func statusSet(statuses []model.BookingStatus) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = "'" + string(s) + "'"
	}
	return strings.Join(parts, ",")
}

var (
	blockingStatusSet    = statusSet(model.BlockingStatuses())
	provisionalStatusSet = statusSet(model.ProvisionalStatuses())
	confirmableStatusSet = statusSet(model.ConfirmableStatuses())
	terminalStatusSet    = statusSet(model.TerminalStatuses())
)

// CreateWithConflictCheck inserts a new booking after re-running the
// overlap query against blocking bookings inside the same transaction.
// The advisory availability check performed at request time is not
// authoritative; this re-check under a range lock closes the race between
// two simultaneous requests for the same window.  On conflict it returns
// ErrSlotUnavailable and inserts nothing.
func (r *BookingRepo) CreateWithConflictCheck(ctx context.Context, b *model.Booking) error {
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
	conflictQ := `SELECT id FROM bookings
		WHERE provider_kind = ? AND provider_id = ?
		  AND status IN (` + blockingStatusSet + `)
		  AND starts_at < ? AND ends_at > ?
		LIMIT 1 FOR UPDATE`
	var existing uint64
	err = tx.QueryRowContext(ctx, conflictQ,
		b.Provider.Kind, b.Provider.ID, b.EndsAt.UTC(), b.StartsAt.UTC(),
	).Scan(&existing)
	if err == nil {
		return ErrSlotUnavailable
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	const ins = `INSERT INTO bookings
		(client_id, provider_kind, provider_id, starts_at, ends_at,
		 service_name, price_cents, currency, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, ins,
		b.ClientID, b.Provider.Kind, b.Provider.ID, b.StartsAt.UTC(), b.EndsAt.UTC(),
		b.ServiceName, b.PriceCents, b.Currency, b.Status,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByID loads a booking.  Returns ErrBookingNotFound when no row exists.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// HasBlockingOverlap runs the advisory conflict read used by the
// availability checker.  It does not lock anything; the authoritative
// check happens again inside CreateWithConflictCheck.
func (r *BookingRepo) HasBlockingOverlap(ctx context.Context, p model.ProviderRef, start, end time.Time) (bool, error) {
	q := `SELECT COUNT(*) FROM bookings
		WHERE provider_kind = ? AND provider_id = ?
		  AND status IN (` + blockingStatusSet + `)
		  AND starts_at < ? AND ends_at > ?`
	var n int
	err := r.db.QueryRowContext(ctx, q, p.Kind, p.ID, end.UTC(), start.UTC()).Scan(&n)
	return n > 0, err
}

// BookedSlot is one entry in the public booked-slots listing.
type BookedSlot struct {
	StartsAt time.Time           `json:"starts_at"`
	EndsAt   time.Time           `json:"ends_at"`
	Status   model.BookingStatus `json:"status"`
}

// ListBookedSlots returns the occupied windows for a provider on a given
// day, ordered by start time.  Only blocking and payment-pending bookings
// are listed; abandoned reservations are omitted.
func (r *BookingRepo) ListBookedSlots(ctx context.Context, p model.ProviderRef, day time.Time) ([]BookedSlot, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	q := `SELECT starts_at, ends_at, status FROM bookings
		WHERE provider_kind = ? AND provider_id = ?
		  AND status IN (` + blockingStatusSet + `,'` + string(model.StatusPaymentPending) + `')
		  AND starts_at < ? AND ends_at > ?
		ORDER BY starts_at`
	rows, err := r.db.QueryContext(ctx, q, p.Kind, p.ID, dayEnd, dayStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	slots := make([]BookedSlot, 0)
	for rows.Next() {
		var s BookedSlot
		if err := rows.Scan(&s.StartsAt, &s.EndsAt, &s.Status); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// SetOrderID records the gateway order id generated at checkout initiation
// and moves the booking to PAYMENT_PENDING while it is still provisional.
func (r *BookingRepo) SetOrderID(ctx context.Context, bookingID uint64, orderID string) error {
	const q = `UPDATE bookings SET order_id = ?, status = ?
		WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, orderID, model.StatusPaymentPending,
		bookingID, model.StatusReservationPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrInvalidTransition
	}
	return nil
}

// Confirm moves a booking to CONFIRMED and records the gateway payment id.
// The status-scoped UPDATE makes confirmation both forward-only and
// idempotent under concurrent webhook retries; it returns (false, nil)
// when the booking was already confirmed or later, which callers treat as
// an idempotent no-op.
func (r *BookingRepo) Confirm(ctx context.Context, bookingID uint64, paymentID string) (bool, error) {
	q := `UPDATE bookings SET status = ?, payment_id = ?
		WHERE id = ? AND status IN (` + confirmableStatusSet + `)`
	res, err := r.db.ExecContext(ctx, q, model.StatusConfirmed, paymentID, bookingID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkPaymentFailed records a failed or cancelled payment attempt.  The
// status-scoped WHERE clause guarantees a late failure notification never
// regresses a booking that has already been confirmed.
func (r *BookingRepo) MarkPaymentFailed(ctx context.Context, bookingID uint64) (bool, error) {
	q := `UPDATE bookings SET status = ?
		WHERE id = ? AND status IN (` + provisionalStatusSet + `)`
	res, err := r.db.ExecContext(ctx, q, model.StatusPaymentFailed, bookingID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Cancel writes the cancellation outcome.  The final status is CANCELLED
// for a zero refund and REFUNDED once a non-zero refund request has been
// accepted.  Terminal states are excluded in the WHERE clause so a
// concurrent completion wins over a racing cancellation.
func (r *BookingRepo) Cancel(ctx context.Context, bookingID uint64, final model.BookingStatus, reason string, refundCents int64) (bool, error) {
	q := `UPDATE bookings SET status = ?, cancel_reason = ?, refund_cents = ?
		WHERE id = ? AND status NOT IN (` + terminalStatusSet + `)`
	res, err := r.db.ExecContext(ctx, q, final, reason, refundCents, bookingID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Complete marks a confirmed booking completed and stamps the completion
// time.  Only CONFIRMED bookings qualify.
func (r *BookingRepo) Complete(ctx context.Context, bookingID uint64, at time.Time) (bool, error) {
	const q = `UPDATE bookings SET status = ?, completed_at = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, model.StatusCompleted, at.UTC(), bookingID, model.StatusConfirmed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteExpiredReservations removes bookings still in a provisional unpaid
// state created before the cutoff.  That covers abandoned checkouts that
// reached PAYMENT_PENDING but never produced a gateway event, not just bare
// reservations.  The status is checked inside the DELETE itself, so a
// booking confirmed between selection and deletion is never removed, and
// the sweep is safe to run concurrently with itself and with payment
// processing.  Payment rows for swept bookings are kept as an audit trail.
func (r *BookingRepo) DeleteExpiredReservations(ctx context.Context, cutoff time.Time) (int64, error) {
	q := `DELETE FROM bookings
		WHERE status IN (` + provisionalStatusSet + `) AND created_at < ?`
	res, err := r.db.ExecContext(ctx, q, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByClient returns a client's bookings newest first.
func (r *BookingRepo) ListByClient(ctx context.Context, clientID uint64) ([]model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings
		WHERE client_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
