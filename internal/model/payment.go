package model

import "time"

// PaymentStatus enumerates the states of a payment record.  REFUNDED,
// CHARGEBACK and FAILED are terminal.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
	PaymentChargeback PaymentStatus = "CHARGEBACK"
)

// PaymentSnapshot freezes the client, provider and service details as they
// were when checkout was initiated.  Once the payment completes, these
// fields never change; only status and refund fields may move afterwards.
type PaymentSnapshot struct {
	ClientID    uint64      `json:"client_id"`
	Provider    ProviderRef `json:"provider"`
	ServiceName string      `json:"service_name"`
	StartsAt    time.Time   `json:"starts_at"`
	EndsAt      time.Time   `json:"ends_at"`
}

// PaymentEvent is one entry in a payment's status-change history.
type PaymentEvent struct {
	Status PaymentStatus `json:"status"`
	Actor  string        `json:"actor"` // "gateway", "admin", "system"
	Reason string        `json:"reason,omitempty"`
	At     time.Time     `json:"at"`
}

// Payment is the immutable-by-convention snapshot of a booking's financial
// attempt, keyed by the globally unique gateway order id.
//
// Fields:
//  OrderID      – unique gateway order id, set at checkout initiation.
//  BookingID    – booking being paid for.
//  PaymentID    – gateway payment id, set by the success notification.
//  Status       – current payment status.
//  AmountCents  – charged amount in cents.
//  Currency     – ISO currency code.
//  Snapshot     – frozen checkout-time details.
//  History      – append-only status-change log.
//  RefundCents  – total refunded amount; never exceeds AmountCents.
//  RefundReason – reason recorded with the refund.
//  RefundedAt   – when the refund was recorded.
type Payment struct {
	ID           uint64          `json:"id"`
	OrderID      string          `json:"order_id"`
	BookingID    uint64          `json:"booking_id"`
	PaymentID    string          `json:"payment_id,omitempty"`
	Status       PaymentStatus   `json:"status"`
	AmountCents  int64           `json:"amount_cents"`
	Currency     string          `json:"currency"`
	Snapshot     PaymentSnapshot `json:"snapshot"`
	History      []PaymentEvent  `json:"history"`
	RefundCents  int64           `json:"refund_cents"`
	RefundReason string          `json:"refund_reason,omitempty"`
	RefundedAt   *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
