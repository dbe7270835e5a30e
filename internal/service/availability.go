// Package service contains the business operations of the marketplace:
// availability checking, booking lifecycle, settlement, wallet ledger
// operations and the reservation expiry sweep.  Services depend on narrow
// store interfaces satisfied by the repository layer so the logic can be
// exercised against hand-written fakes.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/wavelane/studio-booking/internal/model"
)

// ErrValidation wraps malformed input rejected before any state is read
// or written.
var ErrValidation = errors.New("validation failed")

// windowLister supplies a provider's declared availability windows.
type windowLister interface {
	ListForProvider(ctx context.Context, p model.ProviderRef) ([]model.AvailabilityWindow, error)
}

// overlapChecker answers the advisory blocking-booking conflict read.
type overlapChecker interface {
	HasBlockingOverlap(ctx context.Context, p model.ProviderRef, start, end time.Time) (bool, error)
}

// Checker decides whether a requested time window is free for a provider.
// The answer combines the provider's declared availability (or default
// business hours when none is declared) with the absence of a conflicting
// blocking booking.  The check is advisory: booking creation re-validates
// the conflict atomically inside its own transaction.
type Checker struct {
	windows  windowLister
	bookings overlapChecker
}

// NewChecker builds an availability Checker.
func NewChecker(windows windowLister, bookings overlapChecker) *Checker {
	return &Checker{windows: windows, bookings: bookings}
}

// WindowFree reports whether the provider can take the requested window.
// It mutates nothing.
func (c *Checker) WindowFree(ctx context.Context, p model.ProviderRef, start, end time.Time) (bool, error) {
	if !p.Valid() || !end.After(start) {
		return false, ErrValidation
	}
	declared, err := c.windows.ListForProvider(ctx, p)
	if err != nil {
		return false, err
	}
	if !windowDeclared(declared, start, end) {
		return false, nil
	}
	conflict, err := c.bookings.HasBlockingOverlap(ctx, p, start, end)
	if err != nil {
		return false, err
	}
	return !conflict, nil
}

// windowDeclared reports whether any declared window covers the request,
// falling back to default business hours when the provider has declared
// nothing at all.
func windowDeclared(declared []model.AvailabilityWindow, start, end time.Time) bool {
	if len(declared) == 0 {
		return model.WithinBusinessHours(start, end)
	}
	for _, w := range declared {
		if w.Covers(start, end) {
			return true
		}
	}
	return false
}
