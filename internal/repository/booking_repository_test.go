package repository

import (
	"testing"
)

// The status sets embedded in the SQL are derived from the model's state
// machine; these assertions pin the rendered form the queries rely on.
func TestStatusSetsMatchStateMachine(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"blocking", blockingStatusSet, `'CONFIRMED','COMPLETED'`},
		{"confirmable", confirmableStatusSet, `'RESERVATION_PENDING','PAYMENT_PENDING','PAYMENT_FAILED'`},
		{"terminal", terminalStatusSet, `'COMPLETED','CANCELLED','REFUNDED'`},
		// The expiry sweep must reach abandoned checkouts, not only bare
		// reservations: an unpaid booking moves to PAYMENT_PENDING the
		// moment checkout is initiated and would otherwise live forever.
		{"provisional", provisionalStatusSet, `'RESERVATION_PENDING','PAYMENT_PENDING'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s set = %s, want %s", tt.name, tt.got, tt.want)
			}
		})
	}
}
