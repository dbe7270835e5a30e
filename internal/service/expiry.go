package service

import (
	"context"
	"log"
	"time"
)

// Clock abstracts time so the sweep and settlement flows run under test
// with a fake clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// reservationDeleter is the single storage operation the sweep needs.
// The query it maps to is status-scoped, which makes a sweep pass
// idempotent and safe to run concurrently with payment processing.
type reservationDeleter interface {
	DeleteExpiredReservations(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExpirySweeper deletes bookings that stayed in an unpaid provisional
// state past the reservation TTL without a gateway event, covering both
// bare reservations and abandoned checkouts.
type ExpirySweeper struct {
	store    reservationDeleter
	clock    Clock
	ttl      time.Duration
	interval time.Duration
}

// NewExpirySweeper builds a sweeper.  ttl is how long an unpaid
// reservation may live (15 minutes in production); interval is the sweep
// period (5 minutes).
func NewExpirySweeper(store reservationDeleter, clock Clock, ttl, interval time.Duration) *ExpirySweeper {
	if clock == nil {
		clock = systemClock{}
	}
	return &ExpirySweeper{store: store, clock: clock, ttl: ttl, interval: interval}
}

// SweepOnce runs a single pass and returns the number of reservations
// removed.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.ttl)
	return s.store.DeleteExpiredReservations(ctx, cutoff)
}

// Run sweeps on the configured interval until the context is cancelled.
// It is intended to run as a goroutine started from main.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("expiry-sweep: stopping: %v", ctx.Err())
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				log.Printf("expiry-sweep: sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("expiry-sweep: removed %d expired reservations", n)
			}
		}
	}
}
