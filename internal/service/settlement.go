package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/wavelane/studio-booking/internal/model"
	"github.com/wavelane/studio-booking/internal/payhere"
	"github.com/wavelane/studio-booking/internal/repository"
)

// ErrManualReconciliation marks a payment event that could not be applied
// automatically, typically a success notification for a booking already
// removed by the expiry sweep.  It is logged with full context and the
// delivery is still acknowledged so the gateway stops retrying.
var ErrManualReconciliation = errors.New("manual reconciliation required")

// SettlementResult reports what a settlement computation produced.
type SettlementResult struct {
	SubtotalCents   int64
	CommissionCents int64
	EarningsCents   int64
}

// ComputeSettlement derives the commission split for a breakdown.  It is
// a pure function: the subtotal is the sum of the breakdown lines, the
// commission is the subtotal at the given rate (rounded to the nearest
// cent) and the earnings are the remainder.
func ComputeSettlement(b model.Breakdown, rate float64) SettlementResult {
	subtotal := b.SubtotalCents()
	commission := int64(math.Round(float64(subtotal) * rate))
	return SettlementResult{
		SubtotalCents:   subtotal,
		CommissionCents: commission,
		EarningsCents:   subtotal - commission,
	}
}

// SlotBreakdown builds the breakdown for a plain slot booking: one line
// for the reserved time, priced at the booking price.
func SlotBreakdown(b *model.Booking) model.Breakdown {
	hours := b.EndsAt.Sub(b.StartsAt).Hours()
	rate := b.PriceCents
	if hours > 0 {
		rate = int64(math.Round(float64(b.PriceCents) / hours))
	}
	return model.Breakdown{
		Hours:     hours,
		RateCents: rate,
		Lines: []model.BreakdownLine{{
			Kind:        "slot",
			Description: fmt.Sprintf("%s (%.1fh)", b.ServiceName, hours),
			AmountCents: b.PriceCents,
		}},
	}
}

// Store interfaces consumed by the coordinator.  The repository types
// satisfy them; tests substitute fakes.

type bookingStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	Confirm(ctx context.Context, bookingID uint64, paymentID string) (bool, error)
	MarkPaymentFailed(ctx context.Context, bookingID uint64) (bool, error)
}

type paymentStore interface {
	RecordEvent(ctx context.Context, orderID string, status model.PaymentStatus, gatewayPaymentID, actor, reason string, at time.Time) error
}

type revenueStore interface {
	Create(ctx context.Context, rv *model.Revenue) error
	GetByBookingID(ctx context.Context, bookingID uint64) (*model.Revenue, error)
	Mutate(ctx context.Context, revenueID uint64, fn func(*model.Revenue) error) (*model.Revenue, error)
	MutatePayable(ctx context.Context, p model.ProviderRef, fn func([]*model.Revenue) ([]*model.Revenue, error)) error
}

type walletStore interface {
	AddTransaction(ctx context.Context, userID uint64, t *model.WalletTransaction) error
}

// Notifier is the outbound notification collaborator.  Dispatch is
// fire-and-forget: failures are logged by the implementation and never
// roll back settlement.
type Notifier interface {
	Notify(ctx context.Context, userID uint64, kind, title, message string, data map[string]any)
}

// Coordinator performs the settlement pipeline for a confirmed payment as
// one logical unit: forward-only booking confirmation, payment record
// update, revenue creation and wallet credit, then notification.  Every
// step is individually idempotent (status-scoped updates, unique keys),
// so a crash between steps is recovered by the gateway redelivering the
// notification and the pipeline replaying: already-completed steps no-op.
type Coordinator struct {
	bookings       bookingStore
	payments       paymentStore
	revenues       revenueStore
	wallets        walletStore
	notifier       Notifier
	commissionRate float64
	clock          Clock
}

// NewCoordinator wires a settlement Coordinator.  The commission rate is
// the single configured source of truth; call sites never carry their own
// default.
func NewCoordinator(bookings bookingStore, payments paymentStore, revenues revenueStore, wallets walletStore, notifier Notifier, commissionRate float64, clock Clock) *Coordinator {
	if clock == nil {
		clock = systemClock{}
	}
	return &Coordinator{
		bookings:       bookings,
		payments:       payments,
		revenues:       revenues,
		wallets:        wallets,
		notifier:       notifier,
		commissionRate: commissionRate,
		clock:          clock,
	}
}

// HandleNotification applies a verified gateway notification.  Signature
// verification has already happened in the adapter; this method maps the
// event and dispatches to the per-event flows.  Unknown events are
// ignored.
func (c *Coordinator) HandleNotification(ctx context.Context, n payhere.Notification) error {
	bookingID, ok := n.BookingID()
	if !ok {
		log.Printf("settlement: notification without booking correlation order_id=%s", n.OrderID)
		return fmt.Errorf("%w: order %s has no booking correlation", ErrManualReconciliation, n.OrderID)
	}
	event := payhere.MapStatusCode(n.StatusCode)
	switch event {
	case payhere.EventSuccess:
		return c.handleSuccess(ctx, bookingID, n)
	case payhere.EventPending:
		// Recorded in the payment history only; the booking does not move.
		return c.payments.RecordEvent(ctx, n.OrderID, model.PaymentPending, n.PaymentID, "gateway", "", c.clock.Now())
	case payhere.EventFailed, payhere.EventCancelled:
		return c.handleFailure(ctx, bookingID, n, event)
	case payhere.EventChargeback:
		return c.handleChargeback(ctx, bookingID, n)
	default:
		return nil
	}
}

func (c *Coordinator) handleSuccess(ctx context.Context, bookingID uint64, n payhere.Notification) error {
	booking, err := c.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			// Likely expired and swept before the notification arrived.
			log.Printf("settlement: payment success for missing booking id=%d order_id=%s amount=%s, manual reconciliation",
				bookingID, n.OrderID, n.Amount)
			return fmt.Errorf("%w: booking %d not found for order %s", ErrManualReconciliation, bookingID, n.OrderID)
		}
		return err
	}
	if cents, perr := n.AmountCents(); perr != nil || cents != booking.PriceCents {
		// The signature already authenticated the amount string, so a
		// mismatch means the gateway collected something other than the
		// booking price.  Money moved; an operator has to sort it out.
		log.Printf("settlement: amount mismatch booking_id=%d order_id=%s amount=%q price=%d, manual reconciliation",
			bookingID, n.OrderID, n.Amount, booking.PriceCents)
		return fmt.Errorf("%w: amount %q does not match booking %d", ErrManualReconciliation, n.Amount, bookingID)
	}
	confirmed, err := c.bookings.Confirm(ctx, bookingID, n.PaymentID)
	if err != nil {
		return err
	}
	if !confirmed && booking.Status.Terminal() {
		// Cancelled or refunded before the success arrived; settlement
		// must not resurrect it.
		log.Printf("settlement: success for terminal booking id=%d status=%s order_id=%s, manual reconciliation",
			bookingID, booking.Status, n.OrderID)
		return fmt.Errorf("%w: booking %d already %s", ErrManualReconciliation, bookingID, booking.Status)
	}
	if !confirmed && booking.Status.CanTransition(model.StatusConfirmed) {
		// The snapshot looked confirmable yet the status-scoped update
		// matched nothing: either a concurrent delivery confirmed the
		// booking first, or the expiry sweep deleted it between the read
		// and the update.  Re-read to tell the two apart.
		booking, err = c.bookings.GetByID(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrBookingNotFound) {
				log.Printf("settlement: booking swept during confirmation id=%d order_id=%s amount=%s, manual reconciliation",
					bookingID, n.OrderID, n.Amount)
				return fmt.Errorf("%w: booking %d removed during settlement of order %s", ErrManualReconciliation, bookingID, n.OrderID)
			}
			return err
		}
		if booking.Status.Terminal() {
			log.Printf("settlement: success for terminal booking id=%d status=%s order_id=%s, manual reconciliation",
				bookingID, booking.Status, n.OrderID)
			return fmt.Errorf("%w: booking %d already %s", ErrManualReconciliation, bookingID, booking.Status)
		}
	}
	if err := c.payments.RecordEvent(ctx, n.OrderID, model.PaymentCompleted, n.PaymentID, "gateway", "", c.clock.Now()); err != nil {
		return err
	}
	rv, err := c.settle(ctx, booking, n.OrderID)
	if err != nil {
		return err
	}
	if err := c.credit(ctx, booking, rv); err != nil {
		return err
	}
	if confirmed && c.notifier != nil {
		c.notifier.Notify(ctx, booking.Provider.ID, "booking_confirmed",
			"Booking confirmed",
			fmt.Sprintf("Booking #%d was paid and confirmed", booking.ID),
			map[string]any{"booking_id": booking.ID, "order_id": n.OrderID, "earnings_cents": rv.EarningsCents})
		c.notifier.Notify(ctx, booking.ClientID, "payment_received",
			"Payment received",
			fmt.Sprintf("Your payment for booking #%d was received", booking.ID),
			map[string]any{"booking_id": booking.ID, "order_id": n.OrderID})
	}
	return nil
}

// settle creates the revenue record exactly once.  A duplicate creation
// returns the existing record so the credit step can still run; without
// it a crash between revenue creation and wallet credit could never be
// recovered.
func (c *Coordinator) settle(ctx context.Context, b *model.Booking, orderID string) (*model.Revenue, error) {
	breakdown := SlotBreakdown(b)
	res := ComputeSettlement(breakdown, c.commissionRate)
	rv := &model.Revenue{
		BookingID:       b.ID,
		OrderID:         orderID,
		Provider:        b.Provider,
		Breakdown:       breakdown,
		SubtotalCents:   res.SubtotalCents,
		CommissionRate:  c.commissionRate,
		CommissionCents: res.CommissionCents,
		EarningsCents:   res.EarningsCents,
		Status:          model.RevenueConfirmed,
		Audit: []model.AuditEntry{{
			Action: "settled",
			Detail: fmt.Sprintf("order %s subtotal %d commission %d", orderID, res.SubtotalCents, res.CommissionCents),
			At:     c.clock.Now().UTC(),
		}},
	}
	err := c.revenues.Create(ctx, rv)
	if err == nil {
		return rv, nil
	}
	if errors.Is(err, repository.ErrDuplicateSettlement) {
		log.Printf("settlement: revenue already exists booking_id=%d order_id=%s, treating as no-op", b.ID, orderID)
		return c.revenues.GetByBookingID(ctx, b.ID)
	}
	return nil, err
}

// credit applies the provider's wallet credit with the (booking id,
// CREDIT) idempotency key; a retried settlement cannot double-credit.
func (c *Coordinator) credit(ctx context.Context, b *model.Booking, rv *model.Revenue) error {
	t := &model.WalletTransaction{
		Type:        model.TxCredit,
		Status:      model.TxCompleted,
		AmountCents: rv.SubtotalCents,
		NetCents:    rv.EarningsCents,
		Commission: model.Commission{
			Rate:        rv.CommissionRate,
			AmountCents: rv.CommissionCents,
		},
		BookingID:   b.ID,
		OrderID:     rv.OrderID,
		Description: fmt.Sprintf("earnings for booking #%d", b.ID),
	}
	err := c.wallets.AddTransaction(ctx, b.Provider.ID, t)
	if errors.Is(err, repository.ErrDuplicateCredit) {
		log.Printf("settlement: wallet already credited booking_id=%d, treating as no-op", b.ID)
		return nil
	}
	return err
}

func (c *Coordinator) handleFailure(ctx context.Context, bookingID uint64, n payhere.Notification, event payhere.Event) error {
	moved, err := c.bookings.MarkPaymentFailed(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return nil // nothing to unwind for a failed payment on a swept booking
		}
		return err
	}
	if !moved {
		// Already confirmed or terminal; a late failure never regresses it.
		return nil
	}
	return c.payments.RecordEvent(ctx, n.OrderID, model.PaymentFailed, n.PaymentID, "gateway", string(event), c.clock.Now())
}

// handleChargeback marks the revenue disputed and records the payment
// event.  Funds recovery is an administrative flow, not automated here.
func (c *Coordinator) handleChargeback(ctx context.Context, bookingID uint64, n payhere.Notification) error {
	if err := c.payments.RecordEvent(ctx, n.OrderID, model.PaymentChargeback, n.PaymentID, "gateway", "chargeback", c.clock.Now()); err != nil {
		return err
	}
	rv, err := c.revenues.GetByBookingID(ctx, bookingID)
	if err != nil {
		if repository.NotFound(err) {
			log.Printf("settlement: chargeback without revenue booking_id=%d order_id=%s, manual reconciliation", bookingID, n.OrderID)
			return fmt.Errorf("%w: chargeback for unsettled booking %d", ErrManualReconciliation, bookingID)
		}
		return err
	}
	_, err = c.revenues.Mutate(ctx, rv.ID, func(r *model.Revenue) error {
		r.Status = model.RevenueDisputed
		r.Audit = append(r.Audit, model.AuditEntry{
			Action: "chargeback",
			Detail: fmt.Sprintf("order %s", n.OrderID),
			At:     c.clock.Now().UTC(),
		})
		return nil
	})
	return err
}

// Refund validates and appends a refund entry to a revenue record.  The
// sum of all refunds can never exceed the settled subtotal; a fully
// refunded record moves to REFUNDED.  Gateway-side processing is manual,
// so the entry stays provisional until confirmed out of band.
func (c *Coordinator) Refund(ctx context.Context, revenueID uint64, amountCents int64, reason string, requestedBy uint64) (*model.Revenue, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", ErrValidation)
	}
	return c.revenues.Mutate(ctx, revenueID, func(r *model.Revenue) error {
		if r.RefundedCents()+amountCents > r.SubtotalCents {
			return fmt.Errorf("%w: refund exceeds settled amount", ErrValidation)
		}
		r.Refunds = append(r.Refunds, model.Refund{
			AmountCents: amountCents,
			Reason:      reason,
			Status:      "pending_manual",
			RequestedBy: requestedBy,
			At:          c.clock.Now().UTC(),
		})
		if r.RefundedCents() == r.SubtotalCents {
			r.Status = model.RevenueRefunded
		}
		r.Audit = append(r.Audit, model.AuditEntry{
			Action: "refund",
			Actor:  requestedBy,
			Detail: fmt.Sprintf("amount %d: %s", amountCents, reason),
			At:     c.clock.Now().UTC(),
		})
		return nil
	})
}

var adjustmentKinds = map[string]bool{"tip": true, "discount": true, "fee": true, "correction": true}

// Adjust appends a signed adjustment.  Settled totals are untouched; only
// the derived net-earnings figure shifts.
func (c *Coordinator) Adjust(ctx context.Context, revenueID uint64, amountCents int64, kind, reason string, by uint64) (*model.Revenue, error) {
	if amountCents == 0 || !adjustmentKinds[kind] {
		return nil, fmt.Errorf("%w: invalid adjustment", ErrValidation)
	}
	return c.revenues.Mutate(ctx, revenueID, func(r *model.Revenue) error {
		r.Adjustments = append(r.Adjustments, model.Adjustment{
			AmountCents: amountCents,
			Kind:        kind,
			Reason:      reason,
			By:          by,
			At:          c.clock.Now().UTC(),
		})
		r.Audit = append(r.Audit, model.AuditEntry{
			Action: "adjustment",
			Actor:  by,
			Detail: fmt.Sprintf("%s %d: %s", kind, amountCents, reason),
			At:     c.clock.Now().UTC(),
		})
		return nil
	})
}

// ErrPayoutExceedsPayable rejects payout requests above the provider's
// combined payable balance.
var ErrPayoutExceedsPayable = errors.New("payout exceeds payable earnings")

// RequestPayout draws the requested amount across the provider's
// confirmed revenue records, oldest first, deducting from each until the
// request is satisfied.  The combined payable balance caps the request.
func (c *Coordinator) RequestPayout(ctx context.Context, p model.ProviderRef, amountCents int64, requestedBy uint64) error {
	if amountCents <= 0 {
		return fmt.Errorf("%w: payout amount must be positive", ErrValidation)
	}
	return c.revenues.MutatePayable(ctx, p, func(records []*model.Revenue) ([]*model.Revenue, error) {
		var payable int64
		for _, r := range records {
			payable += r.PayableCents()
		}
		if amountCents > payable {
			return nil, ErrPayoutExceedsPayable
		}
		remaining := amountCents
		dirty := make([]*model.Revenue, 0, len(records))
		for _, r := range records {
			if remaining == 0 {
				break
			}
			slice := r.PayableCents()
			if slice == 0 {
				continue
			}
			if slice > remaining {
				slice = remaining
			}
			r.Payouts = append(r.Payouts, model.Payout{
				AmountCents: slice,
				Status:      "requested",
				RequestedBy: requestedBy,
				At:          c.clock.Now().UTC(),
			})
			r.Audit = append(r.Audit, model.AuditEntry{
				Action: "payout_requested",
				Actor:  requestedBy,
				Detail: fmt.Sprintf("amount %d", slice),
				At:     c.clock.Now().UTC(),
			})
			remaining -= slice
			dirty = append(dirty, r)
		}
		return dirty, nil
	})
}
