package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/olehbas/marshrut/internal/core/domain"
	"github.com/olehbas/marshrut/internal/core/ports"
)

// RouteService exposes the read side of the route/segment model and the
// price-matrix sync rule. Route, stop, and fare writes belong to the
// back-office; the core never mutates them beyond SyncPriceMatrix.
type RouteService struct {
	routes ports.RouteRepository
}

// NewRouteService creates a new RouteService.
func NewRouteService(routes ports.RouteRepository) *RouteService {
	return &RouteService{routes: routes}
}

// GetRoute loads an active route with its stops, price matrix, and
// denylist.
func (s *RouteService) GetRoute(ctx context.Context, code string) (*domain.Route, error) {
	route, err := s.routes.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get route %s: %w", code, err)
	}
	if !route.Active {
		return nil, domain.ErrRouteInactive
	}
	return route, nil
}

// GetRouteByID loads a route by primary key regardless of its active
// flag; scheduled actions reference routes that may have been retired
// since booking.
func (s *RouteService) GetRouteByID(ctx context.Context, id int64) (*domain.Route, error) {
	route, err := s.routes.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get route %d: %w", id, err)
	}
	return route, nil
}

// ListForDate returns the active routes departing on the given date.
func (s *RouteService) ListForDate(ctx context.Context, date time.Time) ([]domain.Route, error) {
	routes, err := s.routes.ListActive(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list routes for %s: %w", date.Format("2006-01-02"), err)
	}
	return routes, nil
}

// GetStop resolves a station code to its stop on the route.
func (s *RouteService) GetStop(route *domain.Route, stationCode string) (domain.Stop, error) {
	stop, ok := route.StopByStation(stationCode)
	if !ok {
		return domain.Stop{}, fmt.Errorf("%w: %s", domain.ErrStopNotOnRoute, stationCode)
	}
	return stop, nil
}

// PriceFor returns the configured fares for an origin/destination stop
// pair. A missing matrix entry is a configuration gap, not a zero fare.
func (s *RouteService) PriceFor(route *domain.Route, origin, dest domain.Stop) (domain.Price, error) {
	pair := domain.PairKey{FromStationID: origin.Station.ID, ToStationID: dest.Station.ID}
	price, ok := route.Prices[pair]
	if !ok {
		return domain.Price{}, fmt.Errorf("%w: %s -> %s", domain.ErrPriceNotConfigured,
			origin.Station.Code, dest.Station.Code)
	}
	return price, nil
}

// IsAllowed reports whether the pair may be sold: origin must precede
// destination and the pair must not be denylisted.
func (s *RouteService) IsAllowed(route *domain.Route, origin, dest domain.Stop) bool {
	if origin.Index >= dest.Index {
		return false
	}
	pair := domain.PairKey{FromStationID: origin.Station.ID, ToStationID: dest.Station.ID}
	return !route.Disallowed[pair]
}

// SyncPriceMatrix reconciles the price matrix with the current stop
// sequence: every origin<destination pair gets a zero-fare row unless a
// row already exists, and rows referencing stations no longer on the
// route are removed. Configured fares for surviving pairs are untouched.
// Invoked after every stop-sequence change.
func (s *RouteService) SyncPriceMatrix(ctx context.Context, routeID int64) error {
	route, err := s.routes.GetByID(ctx, routeID)
	if err != nil {
		return fmt.Errorf("load route %d: %w", routeID, err)
	}

	stationIDs := make([]int64, 0, len(route.Stops))
	for _, stop := range route.Stops {
		stationIDs = append(stationIDs, stop.Station.ID)
	}
	if err := s.routes.DeletePricesNotIn(ctx, routeID, stationIDs); err != nil {
		return fmt.Errorf("prune stale prices: %w", err)
	}

	for i, from := range route.Stops {
		for j, to := range route.Stops {
			if i >= j {
				continue
			}
			pair := domain.PairKey{FromStationID: from.Station.ID, ToStationID: to.Station.ID}
			if _, ok := route.Prices[pair]; ok {
				continue
			}
			if err := s.routes.UpsertZeroPrice(ctx, routeID, pair); err != nil {
				return fmt.Errorf("seed zero price %v: %w", pair, err)
			}
		}
	}
	return nil
}
