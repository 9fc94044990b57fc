package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"

	"github.com/olehbas/marshrut/internal/adapters/http"
	"github.com/olehbas/marshrut/internal/adapters/liqpay"
	natsadapter "github.com/olehbas/marshrut/internal/adapters/nats"
	"github.com/olehbas/marshrut/internal/adapters/postgres"
	"github.com/olehbas/marshrut/internal/adapters/valkey"
	"github.com/olehbas/marshrut/internal/core/domain"
	"github.com/olehbas/marshrut/internal/core/ports"
	"github.com/olehbas/marshrut/internal/core/usecases"
	"github.com/olehbas/marshrut/internal/pkg/config"
	"github.com/olehbas/marshrut/internal/pkg/logging"
	"github.com/olehbas/marshrut/internal/pkg/telemetry"
	"github.com/olehbas/marshrut/internal/scheduler"
	"github.com/olehbas/marshrut/internal/workflows"
)

func main() {
	cfg, err := config.Load("marshrut-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go db.ReportPoolStats(ctx, 15*time.Second)

	// Session store
	sessions, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		log.Fatalf("valkey: %v", err)
	}
	defer sessions.Close()

	// Outbound notifications
	notifier, err := natsadapter.NewNotifier(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer notifier.Close()

	// Payment gateway
	gateway := liqpay.New(cfg.Gateway.URL, cfg.Gateway.PublicKey, cfg.Gateway.PrivateKey, cfg.Gateway.Timeout())

	// Refund escalation (optional: bookings degrade to urgent logs)
	var escalator *workflows.Escalator
	tc, err := client.Dial(client.Options{HostPort: cfg.Temporal.HostPort})
	if err != nil {
		slog.Warn("temporal unavailable, refund escalation disabled", "error", err)
	} else {
		defer tc.Close()
		escalator = workflows.NewEscalator(tc, cfg.Temporal.TaskQueue)
	}

	// Repos
	routeRepo := postgres.NewRouteRepo(db)
	reservationRepo := postgres.NewReservationRepo(db)
	actionRepo := postgres.NewActionRepo(db)
	userRepo := postgres.NewUserRepo(db)
	categoryRepo := postgres.NewCategoryRepo(db)

	// Scheduler driver doubles as the ActionScheduler port.
	driver := scheduler.NewDriver(actionRepo, scheduler.WithPollInterval(cfg.Scheduler.PollInterval()))

	// Use cases
	routeSvc := usecases.NewRouteService(routeRepo)
	inventorySvc := usecases.NewInventoryService(routeRepo, reservationRepo)
	bookingSvc := usecases.NewBookingService(
		routeSvc, reservationRepo, userRepo, categoryRepo,
		gateway, notifier, driver, escalatorOrNil(escalator),
		usecases.WithPaymentTTL(cfg.Scheduler.PaymentTTL()),
	)

	driver.Register(domain.PurposePaymentTimeout, bookingSvc.HandlePaymentTimeout)
	driver.Register(domain.PurposeReminder3H, bookingSvc.HandleReminder)
	driver.Register(domain.PurposeReminder1H, bookingSvc.HandleReminder)
	driver.Register(domain.PurposePostTripFollowup, bookingSvc.HandleFollowup)
	go driver.Run(ctx)

	deps := &http.Dependencies{
		Routes:    routeSvc,
		Inventory: inventorySvc,
		Bookings:  bookingSvc,
		Gateway:   gateway,
		Notifier:  notifier,
		DB:        db,
		Sessions:  sessions,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024,
		AppName:      "Marshrut API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())
	cancel()

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// escalatorOrNil keeps the BookingService constructor's interface
// argument truly nil when Temporal is down, instead of a typed nil.
func escalatorOrNil(e *workflows.Escalator) ports.RefundEscalator {
	if e == nil {
		return nil
	}
	return e
}
