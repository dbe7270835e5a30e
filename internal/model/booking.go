package model

import (
	"errors"
	"time"
)

// BookingStatus enumerates the lifecycle states of a booking.  The main
// path runs RESERVATION_PENDING → PAYMENT_PENDING → CONFIRMED → COMPLETED;
// CANCELLED, REFUNDED and PAYMENT_FAILED are side branches.  Transitions
// are forward-only: a booking that has reached CONFIRMED never moves back
// to an earlier state, regardless of the order in which gateway
// notifications arrive.
type BookingStatus string

const (
	StatusReservationPending BookingStatus = "RESERVATION_PENDING"
	StatusPaymentPending     BookingStatus = "PAYMENT_PENDING"
	StatusConfirmed          BookingStatus = "CONFIRMED"
	StatusCompleted          BookingStatus = "COMPLETED"
	StatusCancelled          BookingStatus = "CANCELLED"
	StatusRefunded           BookingStatus = "REFUNDED"
	StatusPaymentFailed      BookingStatus = "PAYMENT_FAILED"
)

// allStatuses fixes a canonical order for the derived status lists below,
// so the SQL sets built from them are stable.
var allStatuses = []BookingStatus{
	StatusReservationPending,
	StatusPaymentPending,
	StatusPaymentFailed,
	StatusConfirmed,
	StatusCompleted,
	StatusCancelled,
	StatusRefunded,
}

// transitions is the allowed-edge table of the state machine.  Any edge
// not listed is a guard violation.
var transitions = map[BookingStatus][]BookingStatus{
	StatusReservationPending: {StatusPaymentPending, StatusConfirmed, StatusPaymentFailed, StatusCancelled},
	StatusPaymentPending:     {StatusConfirmed, StatusPaymentFailed, StatusCancelled},
	StatusPaymentFailed:      {StatusConfirmed, StatusCancelled},
	StatusConfirmed:          {StatusCompleted, StatusCancelled, StatusRefunded},
	StatusCancelled:          {},
	StatusRefunded:           {},
	StatusCompleted:          {},
}

// ErrInvalidTransition is returned when a requested state change violates
// the transition table or the forward-only rule.
var ErrInvalidTransition = errors.New("invalid booking transition")

// CanTransition reports whether moving from s to next is a legal edge.
func (s BookingStatus) CanTransition(next BookingStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s BookingStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Blocking reports whether a booking in state s occupies its time slot for
// the purposes of availability checking.  Provisional reservations do not
// block; confirmed and completed bookings do.
func (s BookingStatus) Blocking() bool {
	return s == StatusConfirmed || s == StatusCompleted
}

// Provisional reports whether s is an unpaid pre-confirmation state.  A
// booking that stays provisional past the reservation TTL is abandoned and
// eligible for the expiry sweep.
func (s BookingStatus) Provisional() bool {
	return s == StatusReservationPending || s == StatusPaymentPending
}

func statusesWhere(pred func(BookingStatus) bool) []BookingStatus {
	var out []BookingStatus
	for _, s := range allStatuses {
		if pred(s) {
			out = append(out, s)
		}
	}
	return out
}

// BlockingStatuses lists the states that occupy a slot.
func BlockingStatuses() []BookingStatus {
	return statusesWhere(BookingStatus.Blocking)
}

// TerminalStatuses lists the states that admit no further transitions.
func TerminalStatuses() []BookingStatus {
	return statusesWhere(BookingStatus.Terminal)
}

// ProvisionalStatuses lists the unpaid states the expiry sweep may remove.
func ProvisionalStatuses() []BookingStatus {
	return statusesWhere(BookingStatus.Provisional)
}

// ConfirmableStatuses lists the states from which a payment success may
// confirm a booking, derived from the transition table so the persistence
// layer's status-scoped updates cannot drift from it.
func ConfirmableStatuses() []BookingStatus {
	return statusesWhere(func(s BookingStatus) bool {
		return s.CanTransition(StatusConfirmed)
	})
}

// ProviderKind discriminates the two provider variants a booking can
// reference.
type ProviderKind string

const (
	ProviderStudio ProviderKind = "STUDIO"
	ProviderArtist ProviderKind = "ARTIST"
)

// ProviderRef is a tagged reference to exactly one provider, either a
// studio or an artist.  Modelling the pair as a single value removes the
// "exactly one of two optional ids must be set" invariant from every call
// site.
type ProviderRef struct {
	Kind ProviderKind `json:"kind"`
	ID   uint64       `json:"id"`
}

// Valid reports whether the reference names a known kind and a non-zero id.
func (p ProviderRef) Valid() bool {
	return (p.Kind == ProviderStudio || p.Kind == ProviderArtist) && p.ID != 0
}

// Booking is one reservation of a provider's time by a client.
//
// Fields:
//  ID           – primary key identifier.
//  ClientID     – user who requested the slot.
//  Provider     – studio or artist whose time is reserved.
//  StartsAt     – beginning of the reserved window (UTC).
//  EndsAt       – end of the reserved window; always after StartsAt.
//  ServiceName  – priced service description shown at checkout.
//  PriceCents   – agreed price in cents.
//  Currency     – ISO currency code, e.g. "LKR".
//  Status       – current lifecycle state.
//  OrderID      – gateway order id once checkout has been initiated.
//  PaymentID    – gateway payment id set on payment success.
//  CancelReason – free-text reason recorded on cancellation.
//  RefundCents  – refund granted on cancellation, per the tiering rules.
//  CompletedAt  – when the provider marked the session complete.
type Booking struct {
	ID           uint64        `json:"id"`
	ClientID     uint64        `json:"client_id"`
	Provider     ProviderRef   `json:"provider"`
	StartsAt     time.Time     `json:"starts_at"`
	EndsAt       time.Time     `json:"ends_at"`
	ServiceName  string        `json:"service_name"`
	PriceCents   int64         `json:"price_cents"`
	Currency     string        `json:"currency"`
	Status       BookingStatus `json:"status"`
	OrderID      string        `json:"order_id,omitempty"`
	PaymentID    string        `json:"payment_id,omitempty"`
	CancelReason string        `json:"cancel_reason,omitempty"`
	RefundCents  int64         `json:"refund_cents"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// RefundTier computes the refund owed when a booking priced at priceCents
// and starting at start is cancelled at now:
//
//  more than 7 days before start  – full refund
//  between 24 hours and 7 days    – 50%
//  under 24 hours                 – none
func RefundTier(start, now time.Time, priceCents int64) int64 {
	lead := start.Sub(now)
	switch {
	case lead > 7*24*time.Hour:
		return priceCents
	case lead > 24*time.Hour:
		return priceCents / 2
	default:
		return 0
	}
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect.  Back-to-back windows sharing a boundary do
// not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
