package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/wavelane/studio-booking/internal/payhere"
	"github.com/wavelane/studio-booking/internal/repository"
	"github.com/wavelane/studio-booking/internal/service"
)

// WebhookHandler receives the gateway's server-to-server payment
// notifications.  The route is public; authenticity comes from the md5
// signature, not from a session.
type WebhookHandler struct {
	Gateway     *payhere.Client
	Coordinator *service.Coordinator
}

func NewWebhookHandler(gateway *payhere.Client, coordinator *service.Coordinator) *WebhookHandler {
	if gateway == nil || coordinator == nil {
		panic("nil dependency passed to NewWebhookHandler")
	}
	return &WebhookHandler{Gateway: gateway, Coordinator: coordinator}
}

// Notify parses the form-encoded callback, verifies its signature and runs
// the settlement pipeline.  The gateway retries on any non-200, so every
// accepted outcome answers 200, including idempotent replays and bookings
// that need manual reconciliation.  Only bad signatures and malformed
// payloads are rejected.
func (h *WebhookHandler) Notify(c echo.Context) error {
	code, err := strconv.Atoi(c.FormValue("status_code"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status_code"})
	}
	n := payhere.Notification{
		MerchantID: c.FormValue("merchant_id"),
		OrderID:    c.FormValue("order_id"),
		PaymentID:  c.FormValue("payment_id"),
		StatusCode: code,
		Amount:     c.FormValue("payhere_amount"),
		Currency:   c.FormValue("payhere_currency"),
		Custom1:    c.FormValue("custom_1"),
		MD5Sig:     c.FormValue("md5sig"),
	}
	if n.OrderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing order_id"})
	}
	if err := h.Gateway.Verify(n); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "signature mismatch"})
	}

	err = h.Coordinator.HandleNotification(c.Request().Context(), n)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	case errors.Is(err, service.ErrManualReconciliation):
		// Acknowledged so the gateway stops retrying; an operator follows up.
		c.Logger().Errorf("payment notify: manual reconciliation for order %s: %v", n.OrderID, err)
		return c.JSON(http.StatusOK, echo.Map{"status": "accepted", "note": "manual reconciliation"})
	case errors.Is(err, repository.ErrDuplicateSettlement),
		errors.Is(err, repository.ErrDuplicateCredit):
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	}
	return writeError(c, err)
}
