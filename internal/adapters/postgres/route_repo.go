package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/olehbas/marshrut/internal/core/domain"
)

// RouteRepo implements ports.RouteRepository.
type RouteRepo struct {
	db *DB
}

func NewRouteRepo(db *DB) *RouteRepo {
	return &RouteRepo{db: db}
}

func (r *RouteRepo) GetByCode(ctx context.Context, code string) (*domain.Route, error) {
	return r.getOne(ctx, `WHERE code = $1`, code)
}

func (r *RouteRepo) GetByID(ctx context.Context, id int64) (*domain.Route, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *RouteRepo) getOne(ctx context.Context, where string, arg any) (*domain.Route, error) {
	rt := &domain.Route{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, code, active, regular, COALESCE(bus_name, ''), seat_capacity, package_capacity
		FROM routes `+where, arg).
		Scan(&rt.ID, &rt.Code, &rt.Active, &rt.Regular, &rt.BusName, &rt.SeatCapacity, &rt.PackageCapacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRouteNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadStops(ctx, rt); err != nil {
		return nil, err
	}
	if err := r.loadPrices(ctx, rt); err != nil {
		return nil, err
	}
	return rt, r.loadDisallowed(ctx, rt)
}

// ListActive returns active routes departing on the given calendar day.
func (r *RouteRepo) ListActive(ctx context.Context, date time.Time) ([]domain.Route, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT DISTINCT r.id
		FROM routes r
		JOIN route_stops rs ON rs.route_id = r.id AND rs.stop_index = 1
		WHERE r.active AND rs.departure_time::date = $1::date
		ORDER BY r.id
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	routes := make([]domain.Route, 0, len(ids))
	for _, id := range ids {
		rt, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		routes = append(routes, *rt)
	}
	return routes, nil
}

func (r *RouteRepo) loadStops(ctx context.Context, rt *domain.Route) error {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT rs.stop_index, rs.departure_time,
		       s.id, s.code, s.name, s.town, s.lat, s.lon, s.popular
		FROM route_stops rs
		JOIN stations s ON s.id = rs.station_id
		WHERE rs.route_id = $1
		ORDER BY rs.stop_index
	`, rt.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var st domain.Stop
		if err := rows.Scan(&st.Index, &st.DepartureTime,
			&st.Station.ID, &st.Station.Code, &st.Station.Name, &st.Station.Town,
			&st.Station.Lat, &st.Station.Lon, &st.Station.Popular); err != nil {
			return err
		}
		rt.Stops = append(rt.Stops, st)
	}
	return rows.Err()
}

func (r *RouteRepo) loadPrices(ctx context.Context, rt *domain.Route) error {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT from_station_id, to_station_id, ticket_price, package_price
		FROM prices WHERE route_id = $1
	`, rt.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	rt.Prices = make(map[domain.PairKey]domain.Price)
	for rows.Next() {
		var k domain.PairKey
		var p domain.Price
		if err := rows.Scan(&k.FromStationID, &k.ToStationID, &p.Ticket, &p.Package); err != nil {
			return err
		}
		rt.Prices[k] = p
	}
	return rows.Err()
}

func (r *RouteRepo) loadDisallowed(ctx context.Context, rt *domain.Route) error {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT from_station_id, to_station_id
		FROM disallowed_pairs WHERE route_id = $1
	`, rt.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	rt.Disallowed = make(map[domain.PairKey]bool)
	for rows.Next() {
		var k domain.PairKey
		if err := rows.Scan(&k.FromStationID, &k.ToStationID); err != nil {
			return err
		}
		rt.Disallowed[k] = true
	}
	return rows.Err()
}

// UpsertZeroPrice inserts a zero-fare row for the pair; configured
// fares are never overwritten.
func (r *RouteRepo) UpsertZeroPrice(ctx context.Context, routeID int64, pair domain.PairKey) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO prices (route_id, from_station_id, to_station_id, ticket_price, package_price)
		VALUES ($1, $2, $3, 0, 0)
		ON CONFLICT (route_id, from_station_id, to_station_id) DO NOTHING
	`, routeID, pair.FromStationID, pair.ToStationID)
	return err
}

// DeletePricesNotIn removes matrix rows referencing stations that are
// no longer stops of the route.
func (r *RouteRepo) DeletePricesNotIn(ctx context.Context, routeID int64, stationIDs []int64) error {
	_, err := r.db.Pool.Exec(ctx, `
		DELETE FROM prices
		WHERE route_id = $1
		  AND (from_station_id <> ALL($2::bigint[]) OR to_station_id <> ALL($2::bigint[]))
	`, routeID, stationIDs)
	return err
}
