package usecases

import (
	"context"
	"fmt"

	"github.com/olehbas/marshrut/internal/core/domain"
	"github.com/olehbas/marshrut/internal/core/ports"
)

// InventoryService is the seat/capacity ledger: it answers how many units
// of a kind are free on an arbitrary origin→destination sub-segment.
//
// Display reads go through here without locking. The booking-time
// re-check is atomic inside ReservationRepository.CreateGroup, which
// serializes against concurrent creations for the same route.
type InventoryService struct {
	routes       ports.RouteRepository
	reservations ports.ReservationRepository
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService(routes ports.RouteRepository, reservations ports.ReservationRepository) *InventoryService {
	return &InventoryService{routes: routes, reservations: reservations}
}

// AvailableUnits counts free units for the half-open segment
// [originIndex, destIndex). An existing non-cancelled unit consumes one
// of them iff its own segment overlaps the query segment.
func (s *InventoryService) AvailableUnits(ctx context.Context, route *domain.Route, kind domain.UnitKind, originIndex, destIndex int) (int, error) {
	if originIndex >= destIndex {
		return 0, fmt.Errorf("%w: [%d, %d)", domain.ErrInvalidSegment, originIndex, destIndex)
	}

	units, err := s.reservations.ListActiveByRoute(ctx, route.ID)
	if err != nil {
		return 0, fmt.Errorf("list reservations for route %d: %w", route.ID, err)
	}

	return domain.AvailableUnits(route.CapacityFor(kind), units, kind, originIndex, destIndex), nil
}

// AvailableByCodes resolves route and station codes before counting.
// Convenience entry point for display surfaces.
func (s *InventoryService) AvailableByCodes(ctx context.Context, routeCode, fromCode, toCode string, kind domain.UnitKind) (int, error) {
	route, err := s.routes.GetByCode(ctx, routeCode)
	if err != nil {
		return 0, fmt.Errorf("get route %s: %w", routeCode, err)
	}

	origin, ok := route.StopByStation(fromCode)
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrStopNotOnRoute, fromCode)
	}
	dest, ok := route.StopByStation(toCode)
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrStopNotOnRoute, toCode)
	}

	return s.AvailableUnits(ctx, route, kind, origin.Index, dest.Index)
}
