package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/wavelane/studio-booking/internal/config"
	"github.com/wavelane/studio-booking/internal/database"
	"github.com/wavelane/studio-booking/internal/handler"
	"github.com/wavelane/studio-booking/internal/payhere"
	"github.com/wavelane/studio-booking/internal/queue"
	"github.com/wavelane/studio-booking/internal/repository"
	"github.com/wavelane/studio-booking/internal/router"
	"github.com/wavelane/studio-booking/internal/service"
)

func main() {
	// .env is for local development; in production the variables come from
	// the environment and the file is simply absent.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; advisory slot holds disabled")
	}

	clock := service.SystemClock()
	gateway := payhere.New(cfg.MerchantID, cfg.MerchantSecret, cfg.ReturnURL, cfg.CancelURL, cfg.NotifyURL)

	bookingRepo := repository.NewBookingRepo(db)
	availRepo := repository.NewAvailabilityRepo(db)
	paymentRepo := repository.NewPaymentRepo(db)
	revenueRepo := repository.NewRevenueRepo(db)
	walletRepo := repository.NewWalletRepo(db)

	notifier := service.NewQueueNotifier(clock)
	checker := service.NewChecker(availRepo, bookingRepo)
	reservationTTL := time.Duration(cfg.ReservationTTLMin) * time.Minute
	holds := service.NewSlotHolds(rdb, reservationTTL)
	coordinator := service.NewCoordinator(bookingRepo, paymentRepo, revenueRepo, walletRepo,
		notifier, cfg.CommissionRate, clock)
	bookings := service.NewBookings(bookingRepo, paymentRepo, revenueRepo,
		checker, holds, gateway, service.StaticDirectory{RateCents: cfg.DefaultHourlyRateCents},
		coordinator, notifier, cfg.Currency, clock)
	wallets := service.NewWallets(walletRepo, notifier, cfg.MinWithdrawalCents, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Abandoned reservations are swept in the background so expired holds
	// stop blocking the slot listing.
	sweeper := service.NewExpirySweeper(bookingRepo, clock,
		reservationTTL, time.Duration(cfg.SweepIntervalMin)*time.Minute)
	go sweeper.Run(ctx)

	// Notification dispatch consumer.  Reconnects on its own; a broker
	// outage only delays notifications.
	go func() {
		if err := queue.StartNotificationConsumer(); err != nil {
			log.Printf("notification consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	router.Register(e, router.Deps{
		Bookings:  handler.NewBookingHandler(bookings, bookingRepo, availRepo),
		Wallets:   handler.NewWalletHandler(wallets),
		Revenues:  handler.NewRevenueHandler(coordinator),
		Webhook:   handler.NewWebhookHandler(gateway, coordinator),
		JWTSecret: cfg.JWTSecret,
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
