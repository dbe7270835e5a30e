package model

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to BookingStatus
		want     bool
	}{
		{StatusReservationPending, StatusPaymentPending, true},
		{StatusReservationPending, StatusConfirmed, true},
		{StatusPaymentPending, StatusConfirmed, true},
		{StatusPaymentPending, StatusPaymentFailed, true},
		{StatusPaymentFailed, StatusConfirmed, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusRefunded, true},
		{StatusConfirmed, StatusPaymentPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusRefunded, StatusConfirmed, false},
		{StatusCompleted, StatusConfirmed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []BookingStatus{StatusCancelled, StatusRefunded, StatusCompleted} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []BookingStatus{StatusReservationPending, StatusPaymentPending, StatusConfirmed, StatusPaymentFailed} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestBlockingStates(t *testing.T) {
	if !StatusConfirmed.Blocking() || !StatusCompleted.Blocking() {
		t.Error("confirmed and completed bookings must block the slot")
	}
	if StatusReservationPending.Blocking() || StatusPaymentPending.Blocking() || StatusCancelled.Blocking() {
		t.Error("provisional and cancelled bookings must not block the slot")
	}
}

func equalStatuses(a, b []BookingStatus) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStatusSets(t *testing.T) {
	if got := BlockingStatuses(); !equalStatuses(got, []BookingStatus{StatusConfirmed, StatusCompleted}) {
		t.Errorf("BlockingStatuses() = %v", got)
	}
	if got := TerminalStatuses(); !equalStatuses(got, []BookingStatus{StatusCompleted, StatusCancelled, StatusRefunded}) {
		t.Errorf("TerminalStatuses() = %v", got)
	}
	// An abandoned checkout sits in PAYMENT_PENDING; it must be eligible
	// for the expiry sweep just like a bare reservation.
	if got := ProvisionalStatuses(); !equalStatuses(got, []BookingStatus{StatusReservationPending, StatusPaymentPending}) {
		t.Errorf("ProvisionalStatuses() = %v", got)
	}
	if got := ConfirmableStatuses(); !equalStatuses(got, []BookingStatus{StatusReservationPending, StatusPaymentPending, StatusPaymentFailed}) {
		t.Errorf("ConfirmableStatuses() = %v", got)
	}
}

func TestProviderRefValid(t *testing.T) {
	tests := []struct {
		name string
		ref  ProviderRef
		want bool
	}{
		{"studio", ProviderRef{ProviderStudio, 7}, true},
		{"artist", ProviderRef{ProviderArtist, 1}, true},
		{"zero id", ProviderRef{ProviderStudio, 0}, false},
		{"unknown kind", ProviderRef{"VENUE", 3}, false},
		{"empty", ProviderRef{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ref.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRefundTier(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		lead  time.Duration
		price int64
		want  int64
	}{
		{"ten days out, full refund", 10 * 24 * time.Hour, 5000, 5000},
		{"two days out, half refund", 2 * 24 * time.Hour, 5000, 2500},
		{"ten hours out, no refund", 10 * time.Hour, 5000, 0},
		{"exactly 7 days is half, not full", 7 * 24 * time.Hour, 5000, 2500},
		{"exactly 24h is none", 24 * time.Hour, 5000, 0},
		{"already started", -time.Hour, 5000, 0},
		{"odd amount halves down", 2 * 24 * time.Hour, 501, 250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RefundTier(now.Add(tt.lead), now, tt.price)
			if got != tt.want {
				t.Errorf("RefundTier(lead=%v, price=%d) = %d, want %d", tt.lead, tt.price, got, tt.want)
			}
		})
	}
}

func TestOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h := func(n int) time.Time { return base.Add(time.Duration(n) * time.Hour) }
	tests := []struct {
		name                   string
		aS, aE, bS, bE         time.Time
		want                   bool
	}{
		{"identical", h(0), h(2), h(0), h(2), true},
		{"partial", h(0), h(2), h(1), h(3), true},
		{"contained", h(0), h(4), h(1), h(2), true},
		{"back to back", h(0), h(2), h(2), h(4), false},
		{"disjoint", h(0), h(1), h(3), h(4), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.aS, tt.aE, tt.bS, tt.bE); got != tt.want {
				t.Errorf("Overlaps = %v, want %v", got, tt.want)
			}
		})
	}
}
