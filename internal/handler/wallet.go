package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/wavelane/studio-booking/internal/model"
	"github.com/wavelane/studio-booking/internal/repository"
	"github.com/wavelane/studio-booking/internal/service"
)

// WalletHandler serves provider wallets and the withdrawal flow.
type WalletHandler struct {
	Wallets *service.Wallets
}

func NewWalletHandler(wallets *service.Wallets) *WalletHandler {
	if wallets == nil {
		panic("nil dependency passed to NewWalletHandler")
	}
	return &WalletHandler{Wallets: wallets}
}

// Get returns the authenticated provider's wallet, creating it lazily on
// first access.
func (h *WalletHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	w, err := h.Wallets.Get(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"wallet": w})
}

// ListTransactions returns the wallet ledger newest first, with optional
// type/status filters and limit/offset pagination.
func (h *WalletHandler) ListTransactions(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var f repository.TransactionFilter
	f.Type = model.TransactionType(c.QueryParam("type"))
	f.Status = model.TransactionStatus(c.QueryParam("status"))
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Offset = n
		}
	}
	list, err := h.Wallets.ListTransactions(c.Request().Context(), userID, f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": list, "count": len(list)})
}

// RequestWithdrawal opens a pending withdrawal against the available
// balance.  Bank details default to the ones stored on the wallet.
func (h *WalletHandler) RequestWithdrawal(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		AmountCents int64             `json:"amount_cents"`
		Bank        model.BankDetails `json:"bank"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	tx, err := h.Wallets.RequestWithdrawal(c.Request().Context(), userID, body.AmountCents, body.Bank)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"withdrawal": tx})
}

// ProcessWithdrawal is the admin decision on a pending withdrawal.  An
// approval completes it; a rejection fails it and books a compensating
// credit back onto the wallet.
func (h *WalletHandler) ProcessWithdrawal(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var body struct {
		Action  string `json:"action"` // APPROVE or FAIL
		Remarks string `json:"remarks"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	var approve bool
	switch body.Action {
	case "APPROVE":
		approve = true
	case "FAIL":
		approve = false
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "action must be APPROVE or FAIL"})
	}
	tx, err := h.Wallets.ProcessWithdrawal(c.Request().Context(), id, approve, adminID, body.Remarks)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"withdrawal": tx})
}
