package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wavelane/studio-booking/internal/model"
	"github.com/wavelane/studio-booking/internal/payhere"
	"github.com/wavelane/studio-booking/internal/repository"
)

// ErrCancelWindowClosed is returned when a client tries to cancel with
// less than 24 hours left before the booking starts.
var ErrCancelWindowClosed = errors.New("cannot cancel within 24 hours of start")

// ErrNotStarted is returned when completion is attempted before the
// booked window has begun.
var ErrNotStarted = errors.New("booking has not started yet")

// Directory is the catalog/identity collaborator: it supplies the
// provider's published hourly rate and the client details embedded in the
// checkout payload.  Profile storage itself lives outside this service.
type Directory interface {
	HourlyRateCents(ctx context.Context, p model.ProviderRef) (int64, error)
	ClientInfo(ctx context.Context, userID uint64) (first, last, email string, err error)
}

// StaticDirectory is the default Directory used when no catalog service
// is attached: one flat hourly rate, anonymous client details.
type StaticDirectory struct {
	RateCents int64
}

func (d StaticDirectory) HourlyRateCents(ctx context.Context, p model.ProviderRef) (int64, error) {
	return d.RateCents, nil
}

func (d StaticDirectory) ClientInfo(ctx context.Context, userID uint64) (string, string, string, error) {
	return "Client", fmt.Sprintf("%d", userID), fmt.Sprintf("client-%d@example.invalid", userID), nil
}

type bookingWriter interface {
	CreateWithConflictCheck(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	SetOrderID(ctx context.Context, bookingID uint64, orderID string) error
	Cancel(ctx context.Context, bookingID uint64, final model.BookingStatus, reason string, refundCents int64) (bool, error)
	Complete(ctx context.Context, bookingID uint64, at time.Time) (bool, error)
}

type paymentWriter interface {
	Create(ctx context.Context, p *model.Payment) error
	MarkRefunded(ctx context.Context, orderID string, refundCents int64, reason string, at time.Time) error
}

type revenueFinder interface {
	GetByBookingID(ctx context.Context, bookingID uint64) (*model.Revenue, error)
}

// Bookings owns the booking lifecycle operations exposed to the API:
// create with checkout instructions, cancel with tiered refund, complete.
type Bookings struct {
	store      bookingWriter
	payments   paymentWriter
	revenues   revenueFinder
	checker    *Checker
	holds      *SlotHolds
	gateway    *payhere.Client
	directory  Directory
	settlement *Coordinator
	notifier   Notifier
	currency   string
	clock      Clock
}

// NewBookings wires the booking service.
func NewBookings(store bookingWriter, payments paymentWriter, revenues revenueFinder,
	checker *Checker, holds *SlotHolds, gateway *payhere.Client, directory Directory,
	settlement *Coordinator, notifier Notifier, currency string, clock Clock) *Bookings {
	if clock == nil {
		clock = systemClock{}
	}
	return &Bookings{
		store: store, payments: payments, revenues: revenues,
		checker: checker, holds: holds, gateway: gateway, directory: directory,
		settlement: settlement, notifier: notifier, currency: currency, clock: clock,
	}
}

// CreateRequest is the input for a new booking.
type CreateRequest struct {
	ClientID    uint64
	Provider    model.ProviderRef
	StartsAt    time.Time
	EndsAt      time.Time
	ServiceName string
}

// CreateResult pairs the created booking with its checkout instructions.
type CreateResult struct {
	Booking  *model.Booking   `json:"booking"`
	Checkout payhere.Checkout `json:"checkout"`
}

// Create validates the window, runs the advisory availability check,
// creates the booking (the authoritative conflict re-check happens inside
// the creation transaction) and initiates checkout.  The returned
// checkout payload is handed to the client for redirection to the
// gateway.
func (s *Bookings) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	now := s.clock.Now()
	if !req.Provider.Valid() || !req.EndsAt.After(req.StartsAt) || req.StartsAt.Before(now) {
		return nil, fmt.Errorf("%w: invalid booking window", ErrValidation)
	}
	if req.ServiceName == "" {
		return nil, fmt.Errorf("%w: service name required", ErrValidation)
	}
	free, err := s.checker.WindowFree(ctx, req.Provider, req.StartsAt, req.EndsAt)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, repository.ErrSlotUnavailable
	}
	if s.holds != nil && !s.holds.Acquire(ctx, req.ClientID, req.Provider, req.StartsAt, req.EndsAt) {
		return nil, repository.ErrSlotUnavailable
	}
	rate, err := s.directory.HourlyRateCents(ctx, req.Provider)
	if err != nil {
		return nil, err
	}
	hours := req.EndsAt.Sub(req.StartsAt).Hours()
	price := int64(math.Round(float64(rate) * hours))
	booking := &model.Booking{
		ClientID:    req.ClientID,
		Provider:    req.Provider,
		StartsAt:    req.StartsAt.UTC(),
		EndsAt:      req.EndsAt.UTC(),
		ServiceName: req.ServiceName,
		PriceCents:  price,
		Currency:    s.currency,
		Status:      model.StatusReservationPending,
	}
	if err := s.store.CreateWithConflictCheck(ctx, booking); err != nil {
		// Losing the authoritative check must not leave the advisory hold
		// blocking the window for the rest of its TTL.
		if s.holds != nil {
			s.holds.Release(ctx, req.Provider, req.StartsAt, req.EndsAt)
		}
		return nil, err
	}
	orderID := payhere.OrderID(booking.ID, now)
	payment := &model.Payment{
		OrderID:     orderID,
		BookingID:   booking.ID,
		Status:      model.PaymentPending,
		AmountCents: price,
		Currency:    s.currency,
		Snapshot: model.PaymentSnapshot{
			ClientID:    booking.ClientID,
			Provider:    booking.Provider,
			ServiceName: booking.ServiceName,
			StartsAt:    booking.StartsAt,
			EndsAt:      booking.EndsAt,
		},
		History: []model.PaymentEvent{{
			Status: model.PaymentPending,
			Actor:  "system",
			Reason: "checkout initiated",
			At:     now.UTC(),
		}},
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	if err := s.store.SetOrderID(ctx, booking.ID, orderID); err != nil {
		return nil, err
	}
	booking.OrderID = orderID
	booking.Status = model.StatusPaymentPending
	first, last, email, err := s.directory.ClientInfo(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	checkout := s.gateway.BuildCheckout(orderID, booking.ServiceName, s.currency,
		price, first, last, email, booking.ID)
	return &CreateResult{Booking: booking, Checkout: checkout}, nil
}

// Cancel applies the cancellation rules for a booking.  Client-initiated
// cancellations require more than 24 hours of lead time.  For a paid
// booking the refund follows the tiering in model.RefundTier; a non-zero
// refund moves the booking to REFUNDED after the refund request is
// recorded against the payment and revenue records, a zero refund leaves
// it CANCELLED.
func (s *Bookings) Cancel(ctx context.Context, bookingID, actorID uint64, role, reason string) (*model.Booking, error) {
	booking, err := s.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	clientInitiated := role == "CLIENT"
	if clientInitiated && booking.ClientID != actorID {
		return nil, repository.ErrForbidden
	}
	if booking.Status.Terminal() {
		return nil, model.ErrInvalidTransition
	}
	now := s.clock.Now()
	if clientInitiated && booking.StartsAt.Sub(now) <= 24*time.Hour {
		return nil, ErrCancelWindowClosed
	}
	var refund int64
	if booking.Status == model.StatusConfirmed {
		refund = model.RefundTier(booking.StartsAt, now, booking.PriceCents)
	}
	final := model.StatusCancelled
	if refund > 0 {
		final = model.StatusRefunded
	}
	moved, err := s.store.Cancel(ctx, bookingID, final, reason, refund)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, model.ErrInvalidTransition
	}
	if refund > 0 {
		if err := s.payments.MarkRefunded(ctx, booking.OrderID, refund, reason, now); err != nil {
			return nil, err
		}
		if rv, err := s.revenues.GetByBookingID(ctx, bookingID); err == nil {
			if _, err := s.settlement.Refund(ctx, rv.ID, refund, reason, actorID); err != nil {
				return nil, err
			}
		} else if !repository.NotFound(err) {
			return nil, err
		}
	}
	booking.Status = final
	booking.CancelReason = reason
	booking.RefundCents = refund
	if s.notifier != nil {
		s.notifier.Notify(ctx, booking.Provider.ID, "booking_cancelled",
			"Booking cancelled",
			fmt.Sprintf("Booking #%d was cancelled: %s", booking.ID, reason),
			map[string]any{"booking_id": booking.ID, "refund_cents": refund})
	}
	return booking, nil
}

// Complete marks a confirmed booking completed once its start time has
// passed.  Only the provider (or an administrator) completes bookings.
func (s *Bookings) Complete(ctx context.Context, bookingID, actorID uint64, role string) (*model.Booking, error) {
	booking, err := s.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	providerInitiated := role == string(model.ProviderStudio) || role == string(model.ProviderArtist)
	if providerInitiated && booking.Provider.ID != actorID {
		return nil, repository.ErrForbidden
	}
	if booking.Status != model.StatusConfirmed {
		return nil, model.ErrInvalidTransition
	}
	now := s.clock.Now()
	if now.Before(booking.StartsAt) {
		return nil, ErrNotStarted
	}
	moved, err := s.store.Complete(ctx, bookingID, now)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, model.ErrInvalidTransition
	}
	booking.Status = model.StatusCompleted
	completedAt := now.UTC()
	booking.CompletedAt = &completedAt
	if s.notifier != nil {
		s.notifier.Notify(ctx, booking.ClientID, "booking_completed",
			"Session completed",
			fmt.Sprintf("Booking #%d was marked completed", booking.ID),
			map[string]any{"booking_id": booking.ID})
	}
	return booking, nil
}
