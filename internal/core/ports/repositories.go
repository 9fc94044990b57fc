package ports

import (
	"context"
	"time"

	"github.com/olehbas/marshrut/internal/core/domain"
)

// RouteRepository persists routes, stops, prices, and disallowed pairs.
// Route writes happen in the back-office; the core only reads them, except
// for the price-matrix sync rule.
type RouteRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.Route, error)
	GetByID(ctx context.Context, id int64) (*domain.Route, error)
	ListActive(ctx context.Context, date time.Time) ([]domain.Route, error)

	// UpsertZeroPrice creates a zero-fare matrix entry for a pair unless
	// one already exists; configured fares are never overwritten.
	UpsertZeroPrice(ctx context.Context, routeID int64, pair domain.PairKey) error
	// DeletePricesNotIn removes matrix rows referencing stations that are
	// no longer stops of the route.
	DeletePricesNotIn(ctx context.Context, routeID int64, stationIDs []int64) error
}

// ReservationRepository persists reservation units.
type ReservationRepository interface {
	// CreateGroup atomically re-checks segment availability for every unit
	// and inserts them, serialized against concurrent creations on the same
	// route. Returns domain.ErrCapacityExceeded when the segment cannot
	// hold the whole group.
	CreateGroup(ctx context.Context, route *domain.Route, units []*domain.ReservationUnit) error

	GetByID(ctx context.Context, id int64) (*domain.ReservationUnit, error)
	GetByCode(ctx context.Context, kind domain.UnitKind, code string) (*domain.ReservationUnit, error)
	ListByGroup(ctx context.Context, groupID string) ([]domain.ReservationUnit, error)
	ListActiveByRoute(ctx context.Context, routeID int64) ([]domain.ReservationUnit, error)
	ListArchivedByOwner(ctx context.Context, ownerID int64, kind domain.UnitKind) ([]domain.ReservationUnit, error)

	// UpdateState persists a lifecycle transition already validated by the
	// domain state machine. PaymentRef and PaidAt are written for PAID.
	UpdateState(ctx context.Context, unit *domain.ReservationUnit) error
}

// ActionRepository is the durable store behind the delayed-action scheduler.
type ActionRepository interface {
	// Upsert registers an action, replacing any pending action with the
	// same key.
	Upsert(ctx context.Context, action *domain.ScheduledAction) error
	// Delete cancels a pending action; absent keys are a no-op.
	Delete(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (*domain.ScheduledAction, error)
	// ClaimDue removes and returns up to limit actions with fire_at <= now.
	// A claimed action is owned by the caller; it never fires twice from
	// the store.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledAction, error)
}

// UserRepository persists end-user identities and their saved people.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	FindOrCreatePerson(ctx context.Context, ownerID int64, p domain.Person) (*domain.Person, error)
}

// CategoryRepository resolves passenger categories and their discounts.
type CategoryRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.PassengerCategory, error)
	List(ctx context.Context) ([]domain.PassengerCategory, error)
}
