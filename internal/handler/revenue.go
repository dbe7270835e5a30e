package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wavelane/studio-booking/internal/model"
	"github.com/wavelane/studio-booking/internal/service"
)

// RevenueHandler exposes the settlement operations: admin refunds and
// adjustments on individual revenue records, and provider payout requests.
type RevenueHandler struct {
	Coordinator *service.Coordinator
}

func NewRevenueHandler(coordinator *service.Coordinator) *RevenueHandler {
	if coordinator == nil {
		panic("nil dependency passed to NewRevenueHandler")
	}
	return &RevenueHandler{Coordinator: coordinator}
}

// Refund records a provisional refund against a settled revenue record.
// Refunds stay pending_manual until the gateway transfer is confirmed
// out of band.
func (h *RevenueHandler) Refund(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var body struct {
		AmountCents int64  `json:"amount_cents"`
		Reason      string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	rv, err := h.Coordinator.Refund(c.Request().Context(), id, body.AmountCents, body.Reason, adminID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"revenue": rv})
}

// Adjust applies a signed adjustment (tip, discount, fee or correction)
// to a revenue record.
func (h *RevenueHandler) Adjust(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var body struct {
		AmountCents int64  `json:"amount_cents"`
		Kind        string `json:"kind"`
		Reason      string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	rv, err := h.Coordinator.Adjust(c.Request().Context(), id, body.AmountCents, body.Kind, body.Reason, adminID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"revenue": rv})
}

// RequestPayout drains payable earnings across the authenticated
// provider's revenue records, oldest first.
func (h *RevenueHandler) RequestPayout(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	p := model.ProviderRef{Kind: roleToKind(getRole(c)), ID: userID}
	if !p.Valid() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "providers only"})
	}
	var body struct {
		AmountCents int64 `json:"amount_cents"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.AmountCents <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount_cents must be positive"})
	}
	if err := h.Coordinator.RequestPayout(c.Request().Context(), p, body.AmountCents, userID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "requested", "amount_cents": body.AmountCents})
}
