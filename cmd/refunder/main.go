package main

import (
	"context"
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/olehbas/marshrut/internal/adapters/liqpay"
	natsadapter "github.com/olehbas/marshrut/internal/adapters/nats"
	"github.com/olehbas/marshrut/internal/adapters/postgres"
	"github.com/olehbas/marshrut/internal/pkg/config"
	"github.com/olehbas/marshrut/internal/pkg/logging"
	"github.com/olehbas/marshrut/internal/scheduler"
	"github.com/olehbas/marshrut/internal/workflows"
)

func main() {
	cfg, err := config.Load("marshrut-refunder")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("info", "json")

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	notifier, err := natsadapter.NewNotifier(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer notifier.Close()

	gateway := liqpay.New(cfg.Gateway.URL, cfg.Gateway.PublicKey, cfg.Gateway.PrivateKey, cfg.Gateway.Timeout())

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort: cfg.Temporal.HostPort,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.RefundEscalationWorkflow)
	w.RegisterActivity(&workflows.RefundActivities{
		Reservations: postgres.NewReservationRepo(db),
		Gateway:      gateway,
		Notifier:     notifier,
		Scheduler:    scheduler.NewDriver(postgres.NewActionRepo(db)),
	})

	log.Println("refunder worker started")
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
