package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/wavelane/studio-booking/internal/model"
	"github.com/wavelane/studio-booking/internal/repository"
	"github.com/wavelane/studio-booking/internal/service"
)

// BookingHandler serves the booking lifecycle and the public slot listing.
type BookingHandler struct {
	Bookings *service.Bookings
	Repo     *repository.BookingRepo
	Windows  *repository.AvailabilityRepo
}

func NewBookingHandler(bookings *service.Bookings, repo *repository.BookingRepo, windows *repository.AvailabilityRepo) *BookingHandler {
	if bookings == nil || repo == nil || windows == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: bookings, Repo: repo, Windows: windows}
}

// Create books a slot for the authenticated client and returns the booking
// together with the gateway checkout payload.
func (h *BookingHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		ProviderKind string    `json:"provider_kind"`
		ProviderID   uint64    `json:"provider_id"`
		StartsAt     time.Time `json:"starts_at"`
		EndsAt       time.Time `json:"ends_at"`
		ServiceName  string    `json:"service_name"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.Bookings.Create(c.Request().Context(), service.CreateRequest{
		ClientID:    userID,
		Provider:    model.ProviderRef{Kind: model.ProviderKind(body.ProviderKind), ID: body.ProviderID},
		StartsAt:    body.StartsAt,
		EndsAt:      body.EndsAt,
		ServiceName: body.ServiceName,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Cancel applies the tiered refund policy.  Clients may only cancel their
// own bookings and only more than 24 hours before the start time; admins
// may cancel any booking at any point before it becomes terminal.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&body) // reason is optional
	b, err := h.Bookings.Cancel(c.Request().Context(), id, userID, getRole(c), body.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": b})
}

// Complete marks a confirmed booking as fulfilled.  Only the provider who
// owns the booking (or an admin) may do this, and not before the session
// has started.
func (h *BookingHandler) Complete(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	b, err := h.Bookings.Complete(c.Request().Context(), id, userID, getRole(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"booking": b})
}

// ListMine returns the authenticated client's bookings, newest first.
func (h *BookingHandler) ListMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.Repo.ListByClient(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": list})
}

// ListSlots is the public booked-slots listing for one provider and day.
func (h *BookingHandler) ListSlots(c echo.Context) error {
	p, err := providerFromPath(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	day, err := time.Parse("2006-01-02", c.QueryParam("date"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
	}
	slots, err := h.Repo.ListBookedSlots(c.Request().Context(), p, day)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"date": c.QueryParam("date"), "slots": slots})
}

// ListWindows returns a provider's declared availability windows.
func (h *BookingHandler) ListWindows(c echo.Context) error {
	p, err := providerFromPath(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	windows, err := h.Windows.ListForProvider(c.Request().Context(), p)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"windows": windows})
}

// CreateWindow declares an availability window for the authenticated
// provider.  The provider id is taken from the token, never from the body.
func (h *BookingHandler) CreateWindow(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Weekday     *int    `json:"weekday"`
		Date        *string `json:"date"`
		StartMinute int     `json:"start_minute"`
		EndMinute   int     `json:"end_minute"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.StartMinute < 0 || body.EndMinute > 24*60 || body.StartMinute >= body.EndMinute {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid minute range"})
	}
	if (body.Weekday == nil) == (body.Date == nil) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "exactly one of weekday or date is required"})
	}
	w := model.AvailabilityWindow{
		Provider:    model.ProviderRef{Kind: roleToKind(getRole(c)), ID: userID},
		Weekday:     body.Weekday,
		StartMinute: body.StartMinute,
		EndMinute:   body.EndMinute,
	}
	if body.Weekday != nil && (*body.Weekday < 0 || *body.Weekday > 6) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "weekday must be 0-6"})
	}
	if body.Date != nil {
		d, err := time.Parse("2006-01-02", *body.Date)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
		}
		w.Date = &d
	}
	if !w.Provider.Valid() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "providers only"})
	}
	if err := h.Windows.Create(c.Request().Context(), &w); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"window": w})
}

// DeleteWindow removes one of the authenticated provider's windows.
func (h *BookingHandler) DeleteWindow(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	p := model.ProviderRef{Kind: roleToKind(getRole(c)), ID: userID}
	if !p.Valid() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "providers only"})
	}
	if err := h.Windows.Delete(c.Request().Context(), id, p); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": id})
}

// roleToKind maps the provider roles onto provider kinds.  Non-provider
// roles map to an invalid ref, which callers reject.
func roleToKind(role string) model.ProviderKind {
	switch role {
	case "STUDIO":
		return model.ProviderStudio
	case "ARTIST":
		return model.ProviderArtist
	}
	return ""
}
