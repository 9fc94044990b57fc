package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/olehbas/marshrut/internal/core/domain"
)

// ReservationRepo implements ports.ReservationRepository.
type ReservationRepo struct {
	db *DB
}

func NewReservationRepo(db *DB) *ReservationRepo {
	return &ReservationRepo{db: db}
}

// CreateGroup inserts every unit of a booking inside one transaction.
// A per-route advisory lock serializes concurrent bookings so the
// availability re-check and the inserts are atomic.
func (r *ReservationRepo) CreateGroup(ctx context.Context, route *domain.Route, units []*domain.ReservationUnit) error {
	if len(units) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, route.ID); err != nil {
		return err
	}

	// All units of a group share one segment and kind; one count covers them.
	head := units[0]
	var occupied int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM reservation_units
		WHERE route_id = $1
		  AND kind = $2
		  AND state <> 'CANCELLED'
		  AND origin_index < $3
		  AND destination_index > $4
	`, route.ID, head.Kind, head.DestinationIndex, head.OriginIndex).Scan(&occupied)
	if err != nil {
		return err
	}

	if occupied+len(units) > route.CapacityFor(head.Kind) {
		return domain.ErrCapacityExceeded
	}

	for _, u := range units {
		var passengerID, senderID, receiverID, categoryID any
		if u.Passenger != nil {
			passengerID = u.Passenger.ID
		}
		if u.Sender != nil {
			senderID = u.Sender.ID
		}
		if u.Receiver != nil {
			receiverID = u.Receiver.ID
		}
		if u.CategoryID != 0 {
			categoryID = u.CategoryID
		}

		err := tx.QueryRow(ctx, `
			INSERT INTO reservation_units
				(code, kind, route_id, group_id, owner_id,
				 passenger_id, sender_id, receiver_id, category_id,
				 origin_index, destination_index, origin_station_id, dest_station_id,
				 departure_at, arrival_at, state, price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			RETURNING id, created_at
		`, u.Code, u.Kind, u.RouteID, u.GroupID, u.OwnerID,
			passengerID, senderID, receiverID, categoryID,
			u.OriginIndex, u.DestinationIndex, u.OriginStationID, u.DestStationID,
			u.DepartureAt, u.ArrivalAt, u.State, u.Price).Scan(&u.ID, &u.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert unit %s: %w", u.Code, err)
		}
	}

	return tx.Commit(ctx)
}

func (r *ReservationRepo) GetByID(ctx context.Context, id int64) (*domain.ReservationUnit, error) {
	return r.getOne(ctx, `WHERE u.id = $1`, id)
}

func (r *ReservationRepo) GetByCode(ctx context.Context, kind domain.UnitKind, code string) (*domain.ReservationUnit, error) {
	return r.getOne(ctx, `WHERE u.kind = $1 AND u.code = $2`, kind, code)
}

func (r *ReservationRepo) getOne(ctx context.Context, where string, args ...any) (*domain.ReservationUnit, error) {
	rows, err := r.db.Pool.Query(ctx, selectUnits+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, domain.ErrUnitNotFound
	}
	u, err := scanUnit(rows)
	if err != nil {
		return nil, err
	}
	return u, rows.Err()
}

func (r *ReservationRepo) ListByGroup(ctx context.Context, groupID string) ([]domain.ReservationUnit, error) {
	return r.list(ctx, `WHERE u.group_id = $1 ORDER BY u.id`, groupID)
}

func (r *ReservationRepo) ListActiveByRoute(ctx context.Context, routeID int64) ([]domain.ReservationUnit, error) {
	return r.list(ctx, `WHERE u.route_id = $1 AND u.state <> 'CANCELLED' ORDER BY u.id`, routeID)
}

func (r *ReservationRepo) ListArchivedByOwner(ctx context.Context, ownerID int64, kind domain.UnitKind) ([]domain.ReservationUnit, error) {
	return r.list(ctx, `
		WHERE u.owner_id = $1 AND u.kind = $2
		  AND (u.state = 'CANCELLED' OR u.arrival_at < now())
		ORDER BY u.departure_at DESC`, ownerID, kind)
}

func (r *ReservationRepo) list(ctx context.Context, where string, args ...any) ([]domain.ReservationUnit, error) {
	rows, err := r.db.Pool.Query(ctx, selectUnits+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []domain.ReservationUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *u)
	}
	return units, rows.Err()
}

func (r *ReservationRepo) UpdateState(ctx context.Context, unit *domain.ReservationUnit) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE reservation_units
		SET state = $1, payment_ref = NULLIF($2, ''), paid_at = $3
		WHERE id = $4
	`, unit.State, unit.PaymentRef, unit.PaidAt, unit.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUnitNotFound
	}
	return nil
}

const selectUnits = `
	SELECT u.id, u.code, u.kind, u.route_id, u.group_id, u.owner_id,
	       u.category_id, u.origin_index, u.destination_index,
	       u.origin_station_id, u.dest_station_id,
	       u.departure_at, u.arrival_at, u.state, u.price,
	       COALESCE(u.payment_ref, ''), u.created_at, u.paid_at,
	       pp.id, pp.name, pp.surname, pp.phone,
	       sp.id, sp.name, sp.surname, sp.phone,
	       rp.id, rp.name, rp.surname, rp.phone
	FROM reservation_units u
	LEFT JOIN persons pp ON pp.id = u.passenger_id
	LEFT JOIN persons sp ON sp.id = u.sender_id
	LEFT JOIN persons rp ON rp.id = u.receiver_id
	`

func scanUnit(rows pgx.Rows) (*domain.ReservationUnit, error) {
	var (
		u          domain.ReservationUnit
		categoryID *int64
		passenger  = personScan{}
		sender     = personScan{}
		receiver   = personScan{}
	)
	err := rows.Scan(
		&u.ID, &u.Code, &u.Kind, &u.RouteID, &u.GroupID, &u.OwnerID,
		&categoryID, &u.OriginIndex, &u.DestinationIndex,
		&u.OriginStationID, &u.DestStationID,
		&u.DepartureAt, &u.ArrivalAt, &u.State, &u.Price,
		&u.PaymentRef, &u.CreatedAt, &u.PaidAt,
		&passenger.id, &passenger.name, &passenger.surname, &passenger.phone,
		&sender.id, &sender.name, &sender.surname, &sender.phone,
		&receiver.id, &receiver.name, &receiver.surname, &receiver.phone,
	)
	if err != nil {
		return nil, err
	}
	if categoryID != nil {
		u.CategoryID = *categoryID
	}
	u.Passenger = passenger.person()
	u.Sender = sender.person()
	u.Receiver = receiver.person()
	return &u, nil
}

type personScan struct {
	id      *int64
	name    *string
	surname *string
	phone   *string
}

func (p personScan) person() *domain.Person {
	if p.id == nil {
		return nil
	}
	out := &domain.Person{ID: *p.id}
	if p.name != nil {
		out.Name = *p.name
	}
	if p.surname != nil {
		out.Surname = *p.surname
	}
	if p.phone != nil {
		out.Phone = *p.phone
	}
	return out
}
