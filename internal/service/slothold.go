package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wavelane/studio-booking/internal/model"
)

// SlotHolds is the advisory, TTL-backed hold channel for contested slots.
// A hold is purely informational: it lets a second client see that
// someone is mid-checkout on a window and improves the experience, but it
// never replaces the authoritative conflict check performed inside the
// booking-creation transaction.  A nil Redis client disables holds
// entirely and every acquire succeeds.
type SlotHolds struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSlotHolds builds the advisory hold channel.  rdb may be nil.
func NewSlotHolds(rdb *redis.Client, ttl time.Duration) *SlotHolds {
	return &SlotHolds{rdb: rdb, ttl: ttl}
}

func holdKey(p model.ProviderRef, start, end time.Time) string {
	return fmt.Sprintf("hold:%s:%d:%d:%d", p.Kind, p.ID, start.UTC().Unix(), end.UTC().Unix())
}

// Acquire attempts to place a hold for the window on behalf of userID.
// It returns false when another user already holds an overlapping-exact
// window.  Errors degrade to success; the authoritative check still
// protects correctness.
func (s *SlotHolds) Acquire(ctx context.Context, userID uint64, p model.ProviderRef, start, end time.Time) bool {
	if s.rdb == nil {
		return true
	}
	ok, err := s.rdb.SetNX(ctx, holdKey(p, start, end), userID, s.ttl).Result()
	if err != nil {
		log.Printf("slot-hold: acquire failed, continuing without hold: %v", err)
		return true
	}
	if !ok {
		// Allow re-entry by the same holder (e.g. a retried create call).
		holder, err := s.rdb.Get(ctx, holdKey(p, start, end)).Uint64()
		if err == nil && holder == userID {
			return true
		}
	}
	return ok
}

// Release drops the hold after the booking is created or abandoned.  The
// TTL cleans up after crashed clients regardless.
func (s *SlotHolds) Release(ctx context.Context, p model.ProviderRef, start, end time.Time) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, holdKey(p, start, end)).Err(); err != nil {
		log.Printf("slot-hold: release failed (hold will expire): %v", err)
	}
}
