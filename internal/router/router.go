package router // router wires URL paths to handlers and middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/wavelane/studio-booking/internal/handler"
	"github.com/wavelane/studio-booking/internal/middleware"
)

// Deps carries everything the route table needs.
type Deps struct {
	Bookings  *handler.BookingHandler
	Wallets   *handler.WalletHandler
	Revenues  *handler.RevenueHandler
	Webhook   *handler.WebhookHandler
	JWTSecret string
}

// Register attaches all routes to the Echo instance.  Three surfaces:
// public (health, slot listing, the gateway webhook), authenticated
// client/provider routes, and admin routes.
func Register(e *echo.Echo, d Deps) {
	// Public.  The webhook authenticates via its md5 signature, never a JWT.
	e.GET("/healthz", handler.Health)
	e.GET("/v1/providers/:kind/:id/slots", d.Bookings.ListSlots)
	e.GET("/v1/providers/:kind/:id/windows", d.Bookings.ListWindows)
	e.POST("/v1/payments/notify", d.Webhook.Notify)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(d.JWTSecret))

	// Booking lifecycle.  Creation is client-only; cancel is shared between
	// the owning client and admins, with the handler enforcing ownership.
	auth.POST("/bookings", d.Bookings.Create, middleware.RequireRole("CLIENT"))
	auth.GET("/bookings", d.Bookings.ListMine, middleware.RequireRole("CLIENT"))
	auth.POST("/bookings/:id/cancel", d.Bookings.Cancel, middleware.RequireRole("CLIENT", "ADMIN"))
	auth.POST("/bookings/:id/complete", d.Bookings.Complete, middleware.RequireRole("STUDIO", "ARTIST", "ADMIN"))

	// Provider self-service: availability windows, wallet, payouts.
	provider := middleware.RequireRole("STUDIO", "ARTIST")
	auth.POST("/availability", d.Bookings.CreateWindow, provider)
	auth.DELETE("/availability/:id", d.Bookings.DeleteWindow, provider)
	auth.GET("/wallet", d.Wallets.Get, provider)
	auth.GET("/wallet/transactions", d.Wallets.ListTransactions, provider)
	auth.POST("/wallet/withdrawals", d.Wallets.RequestWithdrawal, provider)
	auth.POST("/payouts", d.Revenues.RequestPayout, provider)

	// Admin settlement operations.
	admin := auth.Group("/admin", middleware.RequireRole("ADMIN"))
	admin.POST("/withdrawals/:id", d.Wallets.ProcessWithdrawal)
	admin.POST("/revenues/:id/refunds", d.Revenues.Refund)
	admin.POST("/revenues/:id/adjustments", d.Revenues.Adjust)
}
