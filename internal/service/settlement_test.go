package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/wavelane/studio-booking/internal/model"
	"github.com/wavelane/studio-booking/internal/payhere"
	"github.com/wavelane/studio-booking/internal/repository"
)

// Fakes implementing the coordinator's store interfaces in memory.  They
// reproduce the repositories' idempotency behaviour: status-scoped
// confirmation, duplicate-key errors on revenue and credit.

type fakeClock struct{ at time.Time }

func (f *fakeClock) Now() time.Time { return f.at }

type fakeBookings struct {
	byID map[uint64]*model.Booking
	// sweepOnConfirm deletes the row inside Confirm, reproducing the
	// expiry sweep racing the settlement between its read and its update.
	sweepOnConfirm bool
}

func (f *fakeBookings) GetByID(_ context.Context, id uint64) (*model.Booking, error) {
	b, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookings) Confirm(_ context.Context, id uint64, paymentID string) (bool, error) {
	b, ok := f.byID[id]
	if !ok {
		return false, repository.ErrBookingNotFound
	}
	if f.sweepOnConfirm {
		delete(f.byID, id)
		return false, nil
	}
	switch b.Status {
	case model.StatusReservationPending, model.StatusPaymentPending, model.StatusPaymentFailed:
		b.Status = model.StatusConfirmed
		b.PaymentID = paymentID
		return true, nil
	}
	return false, nil
}

func (f *fakeBookings) MarkPaymentFailed(_ context.Context, id uint64) (bool, error) {
	b, ok := f.byID[id]
	if !ok {
		return false, repository.ErrBookingNotFound
	}
	switch b.Status {
	case model.StatusReservationPending, model.StatusPaymentPending:
		b.Status = model.StatusPaymentFailed
		return true, nil
	}
	return false, nil
}

type recordedEvent struct {
	orderID string
	status  model.PaymentStatus
}

type fakePayments struct {
	events []recordedEvent
}

func (f *fakePayments) RecordEvent(_ context.Context, orderID string, status model.PaymentStatus, _, _, _ string, _ time.Time) error {
	f.events = append(f.events, recordedEvent{orderID, status})
	return nil
}

type fakeRevenues struct {
	byBooking map[uint64]*model.Revenue
	nextID    uint64
}

func (f *fakeRevenues) Create(_ context.Context, rv *model.Revenue) error {
	if _, ok := f.byBooking[rv.BookingID]; ok {
		return repository.ErrDuplicateSettlement
	}
	f.nextID++
	rv.ID = f.nextID
	f.byBooking[rv.BookingID] = rv
	return nil
}

func (f *fakeRevenues) GetByBookingID(_ context.Context, bookingID uint64) (*model.Revenue, error) {
	rv, ok := f.byBooking[bookingID]
	if !ok {
		return nil, fmt.Errorf("revenue for booking %d: %w", bookingID, sql.ErrNoRows)
	}
	return rv, nil
}

func (f *fakeRevenues) Mutate(_ context.Context, revenueID uint64, fn func(*model.Revenue) error) (*model.Revenue, error) {
	for _, rv := range f.byBooking {
		if rv.ID == revenueID {
			if err := fn(rv); err != nil {
				return nil, err
			}
			return rv, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRevenues) MutatePayable(_ context.Context, p model.ProviderRef, fn func([]*model.Revenue) ([]*model.Revenue, error)) error {
	var records []*model.Revenue
	for _, rv := range f.byBooking {
		if rv.Provider == p && rv.Status == model.RevenueConfirmed {
			records = append(records, rv)
		}
	}
	_, err := fn(records)
	return err
}

type fakeWallets struct {
	credits []*model.WalletTransaction
}

func (f *fakeWallets) AddTransaction(_ context.Context, userID uint64, t *model.WalletTransaction) error {
	for _, c := range f.credits {
		if c.BookingID == t.BookingID && c.Type == t.Type && t.Type == model.TxCredit {
			return repository.ErrDuplicateCredit
		}
	}
	f.credits = append(f.credits, t)
	return nil
}

type sentNote struct {
	userID uint64
	kind   string
}

type fakeNotifier struct {
	sent []sentNote
}

func (f *fakeNotifier) Notify(_ context.Context, userID uint64, kind, _, _ string, _ map[string]any) {
	f.sent = append(f.sent, sentNote{userID, kind})
}

type coordFixture struct {
	bookings *fakeBookings
	payments *fakePayments
	revenues *fakeRevenues
	wallets  *fakeWallets
	notifier *fakeNotifier
	coord    *Coordinator
}

func newCoordFixture(t *testing.T, bookings ...*model.Booking) *coordFixture {
	t.Helper()
	f := &coordFixture{
		bookings: &fakeBookings{byID: map[uint64]*model.Booking{}},
		payments: &fakePayments{},
		revenues: &fakeRevenues{byBooking: map[uint64]*model.Revenue{}},
		wallets:  &fakeWallets{},
		notifier: &fakeNotifier{},
	}
	for _, b := range bookings {
		f.bookings.byID[b.ID] = b
	}
	clock := &fakeClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.coord = NewCoordinator(f.bookings, f.payments, f.revenues, f.wallets, f.notifier, 0.071, clock)
	return f
}

func pendingBooking() *model.Booking {
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	return &model.Booking{
		ID:          42,
		ClientID:    7,
		Provider:    model.ProviderRef{Kind: model.ProviderStudio, ID: 9},
		StartsAt:    start,
		EndsAt:      start.Add(2 * time.Hour),
		ServiceName: "Recording session",
		PriceCents:  500000,
		Currency:    "LKR",
		Status:      model.StatusPaymentPending,
		OrderID:     "booking_42_1700000000000",
	}
}

func successNotification() payhere.Notification {
	return payhere.Notification{
		MerchantID: "M",
		OrderID:    "booking_42_1700000000000",
		PaymentID:  "PH-1",
		StatusCode: 2,
		Amount:     "5000.00",
		Currency:   "LKR",
		Custom1:    "42",
	}
}

func TestComputeSettlement(t *testing.T) {
	b := model.Breakdown{Lines: []model.BreakdownLine{{Kind: "slot", AmountCents: 500000}}}
	res := ComputeSettlement(b, 0.071)
	if res.SubtotalCents != 500000 {
		t.Errorf("subtotal = %d", res.SubtotalCents)
	}
	if res.CommissionCents != 35500 {
		t.Errorf("commission = %d, want 35500", res.CommissionCents)
	}
	if res.EarningsCents != 464500 {
		t.Errorf("earnings = %d, want 464500", res.EarningsCents)
	}
	if res.CommissionCents+res.EarningsCents != res.SubtotalCents {
		t.Error("split does not sum to subtotal")
	}
}

func TestComputeSettlementRounding(t *testing.T) {
	// 333.33 at 7.1% is 23.66643; the commission rounds to the nearest
	// cent and earnings absorb the remainder so the split always sums.
	b := model.Breakdown{Lines: []model.BreakdownLine{{AmountCents: 33333}}}
	res := ComputeSettlement(b, 0.071)
	if res.CommissionCents != 2367 {
		t.Errorf("commission = %d, want 2367", res.CommissionCents)
	}
	if res.CommissionCents+res.EarningsCents != 33333 {
		t.Error("split does not sum to subtotal")
	}
}

func TestHandleSuccessSettlesOnce(t *testing.T) {
	f := newCoordFixture(t, pendingBooking())
	n := successNotification()

	if err := f.coord.HandleNotification(context.Background(), n); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}
	if got := f.bookings.byID[42].Status; got != model.StatusConfirmed {
		t.Errorf("booking status = %s, want CONFIRMED", got)
	}
	rv := f.revenues.byBooking[42]
	if rv == nil {
		t.Fatal("no revenue created")
	}
	if rv.CommissionCents != 35500 || rv.EarningsCents != 464500 {
		t.Errorf("split = %d/%d", rv.CommissionCents, rv.EarningsCents)
	}
	if len(f.wallets.credits) != 1 {
		t.Fatalf("credits = %d, want 1", len(f.wallets.credits))
	}
	if c := f.wallets.credits[0]; c.NetCents != 464500 || c.BookingID != 42 {
		t.Errorf("credit = %+v", c)
	}
	if len(f.notifier.sent) != 2 {
		t.Errorf("notifications = %d, want provider+client", len(f.notifier.sent))
	}
}

func TestHandleSuccessReplayIsIdempotent(t *testing.T) {
	f := newCoordFixture(t, pendingBooking())
	n := successNotification()

	// The gateway redelivers; every replay must no-op cleanly.
	for i := 0; i < 3; i++ {
		if err := f.coord.HandleNotification(context.Background(), n); err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
	}
	if len(f.revenues.byBooking) != 1 {
		t.Errorf("revenues = %d, want 1", len(f.revenues.byBooking))
	}
	if len(f.wallets.credits) != 1 {
		t.Errorf("credits = %d, want 1", len(f.wallets.credits))
	}
	// Only the first delivery, which actually confirmed, notifies.
	if len(f.notifier.sent) != 2 {
		t.Errorf("notifications = %d, want 2", len(f.notifier.sent))
	}
}

func TestHandleSuccessRecoversPartialSettlement(t *testing.T) {
	// Crash scenario: revenue was created but the wallet credit never
	// happened.  The redelivered notification must complete the credit.
	f := newCoordFixture(t, pendingBooking())
	f.revenues.byBooking[42] = &model.Revenue{
		ID: 1, BookingID: 42, OrderID: "booking_42_1700000000000",
		Provider:      model.ProviderRef{Kind: model.ProviderStudio, ID: 9},
		SubtotalCents: 500000, CommissionRate: 0.071,
		CommissionCents: 35500, EarningsCents: 464500,
		Status: model.RevenueConfirmed,
	}
	if err := f.coord.HandleNotification(context.Background(), successNotification()); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}
	if len(f.wallets.credits) != 1 {
		t.Fatalf("credits = %d, want 1", len(f.wallets.credits))
	}
	if f.wallets.credits[0].NetCents != 464500 {
		t.Errorf("credit net = %d", f.wallets.credits[0].NetCents)
	}
}

func TestHandleSuccessMissingBooking(t *testing.T) {
	f := newCoordFixture(t)
	err := f.coord.HandleNotification(context.Background(), successNotification())
	if !errors.Is(err, ErrManualReconciliation) {
		t.Errorf("err = %v, want ErrManualReconciliation", err)
	}
	if len(f.revenues.byBooking) != 0 || len(f.wallets.credits) != 0 {
		t.Error("missing booking must not settle anything")
	}
}

func TestHandleSuccessSweptMidFlight(t *testing.T) {
	// The sweep removes the booking between the settlement's read and its
	// status-scoped confirmation.  The update matches nothing and the
	// pipeline must stop at manual reconciliation instead of settling a
	// booking that no longer exists.
	f := newCoordFixture(t, pendingBooking())
	f.bookings.sweepOnConfirm = true

	err := f.coord.HandleNotification(context.Background(), successNotification())
	if !errors.Is(err, ErrManualReconciliation) {
		t.Errorf("err = %v, want ErrManualReconciliation", err)
	}
	if len(f.revenues.byBooking) != 0 {
		t.Error("revenue created for a swept booking")
	}
	if len(f.wallets.credits) != 0 {
		t.Error("wallet credited for a swept booking")
	}
}

func TestHandleSuccessAmountMismatch(t *testing.T) {
	f := newCoordFixture(t, pendingBooking())
	n := successNotification()
	n.Amount = "1.00"

	err := f.coord.HandleNotification(context.Background(), n)
	if !errors.Is(err, ErrManualReconciliation) {
		t.Errorf("err = %v, want ErrManualReconciliation", err)
	}
	if f.bookings.byID[42].Status != model.StatusPaymentPending {
		t.Errorf("booking moved to %s on a mismatched amount", f.bookings.byID[42].Status)
	}
	if len(f.revenues.byBooking) != 0 || len(f.wallets.credits) != 0 {
		t.Error("mismatched amount must not settle anything")
	}
}

func TestLatePendingDoesNotRegress(t *testing.T) {
	b := pendingBooking()
	b.Status = model.StatusConfirmed
	f := newCoordFixture(t, b)

	n := successNotification()
	n.StatusCode = 0 // pending, arriving after success
	if err := f.coord.HandleNotification(context.Background(), n); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}
	if f.bookings.byID[42].Status != model.StatusConfirmed {
		t.Errorf("booking regressed to %s", f.bookings.byID[42].Status)
	}
}

func TestLateFailureDoesNotRegressConfirmed(t *testing.T) {
	b := pendingBooking()
	b.Status = model.StatusConfirmed
	f := newCoordFixture(t, b)

	n := successNotification()
	n.StatusCode = -2
	if err := f.coord.HandleNotification(context.Background(), n); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}
	if f.bookings.byID[42].Status != model.StatusConfirmed {
		t.Errorf("booking regressed to %s", f.bookings.byID[42].Status)
	}
	if len(f.payments.events) != 0 {
		t.Error("late failure must not be recorded as the payment outcome")
	}
}

func TestHandleFailureMarksBooking(t *testing.T) {
	f := newCoordFixture(t, pendingBooking())
	n := successNotification()
	n.StatusCode = -2
	if err := f.coord.HandleNotification(context.Background(), n); err != nil {
		t.Fatalf("HandleNotification: %v", err)
	}
	if f.bookings.byID[42].Status != model.StatusPaymentFailed {
		t.Errorf("status = %s, want PAYMENT_FAILED", f.bookings.byID[42].Status)
	}
	if len(f.payments.events) != 1 || f.payments.events[0].status != model.PaymentFailed {
		t.Errorf("events = %+v", f.payments.events)
	}
}

func TestChargebackDisputesRevenue(t *testing.T) {
	b := pendingBooking()
	f := newCoordFixture(t, b)
	if err := f.coord.HandleNotification(context.Background(), successNotification()); err != nil {
		t.Fatalf("settle: %v", err)
	}
	n := successNotification()
	n.StatusCode = -3
	if err := f.coord.HandleNotification(context.Background(), n); err != nil {
		t.Fatalf("chargeback: %v", err)
	}
	if f.revenues.byBooking[42].Status != model.RevenueDisputed {
		t.Errorf("revenue status = %s, want DISPUTED", f.revenues.byBooking[42].Status)
	}
}

func TestRefundCapsAtSubtotal(t *testing.T) {
	f := newCoordFixture(t, pendingBooking())
	if err := f.coord.HandleNotification(context.Background(), successNotification()); err != nil {
		t.Fatalf("settle: %v", err)
	}
	rv := f.revenues.byBooking[42]

	if _, err := f.coord.Refund(context.Background(), rv.ID, 300000, "partial", 1); err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if _, err := f.coord.Refund(context.Background(), rv.ID, 300000, "too much", 1); !errors.Is(err, ErrValidation) {
		t.Errorf("over-refund accepted: %v", err)
	}
	if _, err := f.coord.Refund(context.Background(), rv.ID, 200000, "rest", 1); err != nil {
		t.Fatalf("second refund: %v", err)
	}
	if rv.Status != model.RevenueRefunded {
		t.Errorf("fully refunded record status = %s", rv.Status)
	}
	if rv.Refunds[0].Status != "pending_manual" {
		t.Errorf("refund entry status = %s, want pending_manual", rv.Refunds[0].Status)
	}
}

func TestAdjustValidatesKind(t *testing.T) {
	f := newCoordFixture(t, pendingBooking())
	if err := f.coord.HandleNotification(context.Background(), successNotification()); err != nil {
		t.Fatalf("settle: %v", err)
	}
	rv := f.revenues.byBooking[42]

	if _, err := f.coord.Adjust(context.Background(), rv.ID, 5000, "tip", "great session", 1); err != nil {
		t.Fatalf("tip: %v", err)
	}
	if _, err := f.coord.Adjust(context.Background(), rv.ID, 5000, "bribe", "", 1); !errors.Is(err, ErrValidation) {
		t.Errorf("invalid kind accepted: %v", err)
	}
	if _, err := f.coord.Adjust(context.Background(), rv.ID, 0, "tip", "", 1); !errors.Is(err, ErrValidation) {
		t.Errorf("zero amount accepted: %v", err)
	}
	if got := rv.AdjustedCents(); got != 5000 {
		t.Errorf("AdjustedCents = %d", got)
	}
}

func TestRequestPayoutDrainsOldestFirst(t *testing.T) {
	f := newCoordFixture(t, pendingBooking())
	if err := f.coord.HandleNotification(context.Background(), successNotification()); err != nil {
		t.Fatalf("settle: %v", err)
	}
	p := model.ProviderRef{Kind: model.ProviderStudio, ID: 9}

	if err := f.coord.RequestPayout(context.Background(), p, 464500, 9); err != nil {
		t.Fatalf("payout: %v", err)
	}
	if got := f.revenues.byBooking[42].PayableCents(); got != 0 {
		t.Errorf("payable after full payout = %d", got)
	}
	if err := f.coord.RequestPayout(context.Background(), p, 1, 9); !errors.Is(err, ErrPayoutExceedsPayable) {
		t.Errorf("drained provider paid again: %v", err)
	}
}
