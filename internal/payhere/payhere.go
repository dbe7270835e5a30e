// Package payhere implements the outbound checkout construction and the
// inbound notification verification for the PayHere payment gateway.  The
// gateway speaks form-encoded HTTP with MD5 signatures; nothing in this
// package touches storage, so every function is a pure computation over
// its inputs plus the configured merchant credentials.
package payhere

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// Event is the internal meaning of a gateway status code.
type Event string

const (
	EventSuccess    Event = "success"
	EventPending    Event = "pending"
	EventCancelled  Event = "cancelled"
	EventFailed     Event = "failed"
	EventChargeback Event = "chargeback"
	EventUnknown    Event = "unknown"
)

// ErrSignatureMismatch is returned when an inbound notification's md5sig
// does not match the locally computed signature.  Callers must reject the
// notification without mutating any state.
var ErrSignatureMismatch = errors.New("payhere: signature mismatch")

// Client carries the merchant credentials and return URLs used to build
// checkout payloads and verify notifications.
type Client struct {
	MerchantID string
	secretHash string // upper-case MD5 of the merchant secret, precomputed
	ReturnURL  string
	CancelURL  string
	NotifyURL  string
}

// New builds a Client.  The merchant secret is digested once here; the
// plain secret is not retained.
func New(merchantID, merchantSecret, returnURL, cancelURL, notifyURL string) *Client {
	return &Client{
		MerchantID: merchantID,
		secretHash: md5Upper(merchantSecret),
		ReturnURL:  returnURL,
		CancelURL:  cancelURL,
		NotifyURL:  notifyURL,
	}
}

// Checkout is the outbound payload handed to the client so it can redirect
// the payer to the gateway.  Field names follow the gateway's form fields.
type Checkout struct {
	MerchantID string `json:"merchant_id"`
	ReturnURL  string `json:"return_url"`
	CancelURL  string `json:"cancel_url"`
	NotifyURL  string `json:"notify_url"`
	OrderID    string `json:"order_id"`
	Items      string `json:"items"`
	Currency   string `json:"currency"`
	Amount     string `json:"amount"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Custom1    string `json:"custom_1"` // booking id correlation
	Hash       string `json:"hash"`
}

// OrderID derives the unique gateway order id for a booking attempt.
func OrderID(bookingID uint64, now time.Time) string {
	return fmt.Sprintf("booking_%d_%d", bookingID, now.UnixMilli())
}

// BookingIDFromOrder parses the booking id back out of an order id.  It
// is a fallback for notifications whose custom_1 field is missing.
func BookingIDFromOrder(orderID string) (uint64, bool) {
	parts := strings.Split(orderID, "_")
	if len(parts) != 3 || parts[0] != "booking" {
		return 0, false
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// FormatAmount renders cents as the two-decimal string the gateway hashes.
func FormatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// BuildCheckout constructs the signed checkout payload for a booking.  The
// checkout hash covers merchant id, order id, amount, currency and the
// secret digest.
func (c *Client) BuildCheckout(orderID, items, currency string, amountCents int64, firstName, lastName, email string, bookingID uint64) Checkout {
	amount := FormatAmount(amountCents)
	return Checkout{
		MerchantID: c.MerchantID,
		ReturnURL:  c.ReturnURL,
		CancelURL:  c.CancelURL,
		NotifyURL:  c.NotifyURL,
		OrderID:    orderID,
		Items:      items,
		Currency:   currency,
		Amount:     amount,
		Custom1:    strconv.FormatUint(bookingID, 10),
		FirstName:  firstName,
		LastName:   lastName,
		Email:      email,
		Hash:       md5Upper(c.MerchantID + orderID + amount + currency + c.secretHash),
	}
}

// Notification is the parsed form body of an inbound gateway callback.
type Notification struct {
	MerchantID string
	OrderID    string
	PaymentID  string
	StatusCode int
	Amount     string // gateway-formatted, e.g. "5000.00"
	Currency   string
	Custom1    string // booking id echoed back from checkout
	MD5Sig     string
}

// BookingID resolves the booking the notification refers to, preferring
// the custom_1 correlation field and falling back to the order id format.
func (n Notification) BookingID() (uint64, bool) {
	if id, err := strconv.ParseUint(n.Custom1, 10, 64); err == nil && id != 0 {
		return id, true
	}
	return BookingIDFromOrder(n.OrderID)
}

// AmountCents parses the gateway amount string into cents.
func (n Notification) AmountCents() (int64, error) {
	whole, frac, ok := strings.Cut(n.Amount, ".")
	if !ok {
		frac = "00"
	}
	if len(frac) == 1 {
		frac += "0"
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("payhere: bad amount %q: %w", n.Amount, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("payhere: bad amount %q: %w", n.Amount, err)
	}
	return w*100 + f, nil
}

// Verify recomputes the notification signature over merchant id, order id,
// amount, currency and the secret digest, and compares it with the received
// md5sig case-insensitively.  On mismatch the event must be discarded
// without mutating state.
func (c *Client) Verify(n Notification) error {
	local := md5Upper(n.MerchantID + n.OrderID + n.Amount + n.Currency + c.secretHash)
	if !strings.EqualFold(local, n.MD5Sig) {
		return ErrSignatureMismatch
	}
	return nil
}

// MapStatusCode translates a gateway status code into an internal event.
// Unknown codes are logged and mapped to EventUnknown so that callers can
// ignore them without failing the delivery.
func MapStatusCode(code int) Event {
	switch code {
	case 2:
		return EventSuccess
	case 0:
		return EventPending
	case -1:
		return EventCancelled
	case -2:
		return EventFailed
	case -3:
		return EventChargeback
	default:
		log.Printf("payhere: unknown status code %d", code)
		return EventUnknown
	}
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
