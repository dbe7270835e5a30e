// Package repository implements MySQL persistence for bookings, payments,
// revenue records and wallets.  This file defines sentinel error values
// reused across repositories so that the service and handler layers can
// distinguish failure scenarios with errors.Is instead of string matching.
package repository

import "errors"

// ErrBookingNotFound is returned when a booking id or order id resolves to
// no row.  The webhook path treats this as a reconciliation case rather
// than a hard failure.
var ErrBookingNotFound = errors.New("booking not found")

// ErrSlotUnavailable is returned when the authoritative conflict check
// inside the booking-creation transaction finds an overlapping booking in
// a blocking status.
var ErrSlotUnavailable = errors.New("slot unavailable")

// ErrDuplicateSettlement is returned when a revenue record already exists
// for a booking.  Settlement treats it as an idempotent no-op.
var ErrDuplicateSettlement = errors.New("duplicate settlement")

// ErrDuplicateCredit is returned when a (booking id, CREDIT) ledger entry
// already exists for a wallet.  The caller must not re-apply the credit.
var ErrDuplicateCredit = errors.New("duplicate wallet credit")

// ErrInsufficientBalance is returned when a withdrawal exceeds the
// wallet's available balance.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrBelowMinimum is returned when a withdrawal is below the wallet's
// configured minimum amount.
var ErrBelowMinimum = errors.New("withdrawal below minimum")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate this into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrTransactionNotFound is returned when a wallet transaction id does
// not resolve to a row.
var ErrTransactionNotFound = errors.New("wallet transaction not found")

// ErrNotProcessable is returned when an administrative action targets a
// ledger row that is not in a processable state, e.g. settling a
// withdrawal that already reached a terminal status.
var ErrNotProcessable = errors.New("transaction not processable")
