package payhere

import (
	"testing"
	"time"
)

func testClient() *Client {
	return New("1211149", "SECRET", "https://app.example/return", "https://app.example/cancel", "https://app.example/notify")
}

func TestBuildCheckoutHash(t *testing.T) {
	c := testClient()
	ck := c.BuildCheckout("booking_42_1700000000000", "Studio session", "LKR", 500000,
		"Client", "42", "client-42@example.invalid", 42)

	// Vector computed independently from the documented formula
	// MD5(merchant_id + order_id + amount + currency + upper(MD5(secret))).
	if ck.Hash != "86A7F45E68948CC2CA90EFDEA1EA3602" {
		t.Errorf("Hash = %s", ck.Hash)
	}
	if ck.Amount != "5000.00" {
		t.Errorf("Amount = %q, want 5000.00", ck.Amount)
	}
	if ck.Custom1 != "42" {
		t.Errorf("Custom1 = %q, want 42", ck.Custom1)
	}
	if ck.NotifyURL != "https://app.example/notify" {
		t.Errorf("NotifyURL = %q", ck.NotifyURL)
	}
}

func TestVerify(t *testing.T) {
	c := testClient()
	n := Notification{
		MerchantID: "1211149",
		OrderID:    "booking_42_1700000000000",
		Amount:     "5000.00",
		Currency:   "LKR",
		StatusCode: 2,
		MD5Sig:     "86A7F45E68948CC2CA90EFDEA1EA3602",
	}
	if err := c.Verify(n); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// Lowercase signature must still verify.
	n.MD5Sig = "86a7f45e68948cc2ca90efdea1ea3602"
	if err := c.Verify(n); err != nil {
		t.Fatalf("Verify lowercase: %v", err)
	}

	// The status code is not part of the signature; a failure notification
	// carries the same md5sig as a success for the same order and amount.
	n.StatusCode = -2
	if err := c.Verify(n); err != nil {
		t.Fatalf("Verify with different status code: %v", err)
	}
	n.StatusCode = 2

	// Tampered amount.
	n.Amount = "1.00"
	if err := c.Verify(n); err != ErrSignatureMismatch {
		t.Errorf("tampered amount accepted: err = %v", err)
	}

	// Tampered order id.
	n.Amount = "5000.00"
	n.OrderID = "booking_43_1700000000000"
	if err := c.Verify(n); err != ErrSignatureMismatch {
		t.Errorf("tampered order id accepted: err = %v", err)
	}
}

func TestOrderIDRoundTrip(t *testing.T) {
	at := time.UnixMilli(1700000000000).UTC()
	id := OrderID(42, at)
	if id != "booking_42_1700000000000" {
		t.Fatalf("OrderID = %q", id)
	}
	booking, ok := BookingIDFromOrder(id)
	if !ok || booking != 42 {
		t.Errorf("BookingIDFromOrder(%q) = %d, %v", id, booking, ok)
	}
}

func TestBookingIDFromOrderRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"", "booking_", "order_42_1", "booking_x_1", "booking_0_1", "booking_42"} {
		if _, ok := BookingIDFromOrder(bad); ok {
			t.Errorf("BookingIDFromOrder(%q) accepted", bad)
		}
	}
}

func TestNotificationBookingID(t *testing.T) {
	n := Notification{Custom1: "7", OrderID: "booking_42_1"}
	if id, ok := n.BookingID(); !ok || id != 7 {
		t.Errorf("custom_1 should win, got %d %v", id, ok)
	}
	n.Custom1 = ""
	if id, ok := n.BookingID(); !ok || id != 42 {
		t.Errorf("order id fallback, got %d %v", id, ok)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{500000, "5000.00"},
		{1, "0.01"},
		{250, "2.50"},
		{99, "0.99"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.cents); got != tt.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestAmountCents(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"5000.00", 500000, true},
		{"5000", 500000, true},
		{"2.5", 250, true},
		{"0.01", 1, true},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, err := Notification{Amount: tt.in}.AmountCents()
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("AmountCents(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Errorf("AmountCents(%q) accepted", tt.in)
		}
	}
}

func TestMapStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want Event
	}{
		{2, EventSuccess},
		{0, EventPending},
		{-1, EventCancelled},
		{-2, EventFailed},
		{-3, EventChargeback},
		{99, EventUnknown},
	}
	for _, tt := range tests {
		if got := MapStatusCode(tt.code); got != tt.want {
			t.Errorf("MapStatusCode(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}
