package http

import (
	"github.com/olehbas/marshrut/internal/adapters/liqpay"
	natsadapter "github.com/olehbas/marshrut/internal/adapters/nats"
	"github.com/olehbas/marshrut/internal/adapters/postgres"
	"github.com/olehbas/marshrut/internal/adapters/valkey"
	"github.com/olehbas/marshrut/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Routes    *usecases.RouteService
	Inventory *usecases.InventoryService
	Bookings  *usecases.BookingService
	Gateway   *liqpay.Client
	Notifier  *natsadapter.Notifier
	DB        *postgres.DB
	Sessions  *valkey.Store
}
