package model

import "time"

// RevenueStatus enumerates the settlement states of a revenue record.
type RevenueStatus string

const (
	RevenuePending   RevenueStatus = "PENDING"
	RevenueConfirmed RevenueStatus = "CONFIRMED"
	RevenueDisputed  RevenueStatus = "DISPUTED"
	RevenueRefunded  RevenueStatus = "REFUNDED"
	RevenuePaidOut   RevenueStatus = "PAID_OUT"
)

// BreakdownLine is one itemized component of a settlement breakdown:
// the slot itself, an additional service, equipment rental or an add-on.
type BreakdownLine struct {
	Kind        string `json:"kind"` // "slot", "service", "equipment", "addon"
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
}

// Breakdown carries the itemized composition of a settled booking.  Hours
// and RateCents describe the slot line; the subtotal is always the sum of
// the Lines and is computed, never stored independently of them.
type Breakdown struct {
	Hours     float64         `json:"hours"`
	RateCents int64           `json:"rate_cents"`
	Lines     []BreakdownLine `json:"lines"`
}

// SubtotalCents sums the breakdown lines.
func (b Breakdown) SubtotalCents() int64 {
	var total int64
	for _, l := range b.Lines {
		total += l.AmountCents
	}
	return total
}

// Refund is an appended refund entry on a revenue record.  The status is
// provisional ("pending_manual") until the out-of-band gateway refund is
// confirmed by an administrator.
type Refund struct {
	AmountCents int64     `json:"amount_cents"`
	Reason      string    `json:"reason"`
	Status      string    `json:"status"` // "pending_manual", "confirmed"
	RequestedBy uint64    `json:"requested_by"`
	At          time.Time `json:"at"`
}

// Adjustment is a signed correction that shifts derived net earnings
// without touching the settled subtotal or commission.
type Adjustment struct {
	AmountCents int64     `json:"amount_cents"` // signed
	Kind        string    `json:"kind"`         // "tip", "discount", "fee", "correction"
	Reason      string    `json:"reason"`
	By          uint64    `json:"by"`
	At          time.Time `json:"at"`
}

// Payout is a payout request entry drawn against a revenue record.
type Payout struct {
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"` // "requested", "completed", "rejected"
	RequestedBy uint64    `json:"requested_by"`
	At          time.Time `json:"at"`
}

// AuditEntry records one mutating action against a revenue record.
type AuditEntry struct {
	Action string    `json:"action"`
	Actor  uint64    `json:"actor"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Revenue is the settlement artifact for a confirmed booking, one-to-one
// with the booking (uniqueness enforced at the storage layer).  Settled
// totals are immutable; refunds, adjustments and payouts only append.
type Revenue struct {
	ID              uint64        `json:"id"`
	BookingID       uint64        `json:"booking_id"`
	OrderID         string        `json:"order_id"`
	Provider        ProviderRef   `json:"provider"`
	Breakdown       Breakdown     `json:"breakdown"`
	SubtotalCents   int64         `json:"subtotal_cents"`
	CommissionRate  float64       `json:"commission_rate"`
	CommissionCents int64         `json:"commission_cents"`
	EarningsCents   int64         `json:"earnings_cents"`
	Status          RevenueStatus `json:"status"`
	Refunds         []Refund      `json:"refunds"`
	Adjustments     []Adjustment  `json:"adjustments"`
	Payouts         []Payout      `json:"payouts"`
	Audit           []AuditEntry  `json:"audit"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// RefundedCents sums all refund entries regardless of confirmation status;
// a provisional refund already reduces what can be paid out.
func (r *Revenue) RefundedCents() int64 {
	var total int64
	for _, rf := range r.Refunds {
		total += rf.AmountCents
	}
	return total
}

// AdjustedCents sums the signed adjustment entries.
func (r *Revenue) AdjustedCents() int64 {
	var total int64
	for _, a := range r.Adjustments {
		total += a.AmountCents
	}
	return total
}

// PaidOutCents sums payout entries that are not rejected.  Requested
// payouts count against the payable balance to prevent double-requesting.
func (r *Revenue) PaidOutCents() int64 {
	var total int64
	for _, p := range r.Payouts {
		if p.Status != "rejected" {
			total += p.AmountCents
		}
	}
	return total
}

// PayableCents is the amount still available for payout from this record:
// earnings − refunds + adjustments − prior payouts, floored at zero.
func (r *Revenue) PayableCents() int64 {
	p := r.EarningsCents - r.RefundedCents() + r.AdjustedCents() - r.PaidOutCents()
	if p < 0 {
		return 0
	}
	return p
}
