package domain

import (
	"fmt"
	"time"
)

// UnitKind distinguishes the two sellable resources.
type UnitKind string

const (
	KindTicket  UnitKind = "ticket"
	KindPackage UnitKind = "package"
)

// UnitState is the reservation lifecycle state.
type UnitState string

const (
	StateBookedUnpaid UnitState = "BOOKED_UNPAID"
	StatePaid         UnitState = "PAID"
	StatePaidOnBoard  UnitState = "PAID_ON_BOARD"
	StateCancelled    UnitState = "CANCELLED"
)

// ReservationUnit is one sold seat or package slot on a route segment.
// Price is computed at booking time and never recomputed.
type ReservationUnit struct {
	ID               int64      `json:"id"`
	Code             string     `json:"code"`
	Kind             UnitKind   `json:"kind"`
	RouteID          int64      `json:"route_id"`
	GroupID          string     `json:"group_id"`
	OwnerID          int64      `json:"owner_id"`
	Passenger        *Person    `json:"passenger,omitempty"`
	Sender           *Person    `json:"sender,omitempty"`
	Receiver         *Person    `json:"receiver,omitempty"`
	CategoryID       int64      `json:"category_id,omitempty"`
	OriginIndex      int        `json:"origin_index"`
	DestinationIndex int        `json:"destination_index"`
	OriginStationID  int64      `json:"origin_station_id"`
	DestStationID    int64      `json:"dest_station_id"`
	DepartureAt      time.Time  `json:"departure_at"`
	ArrivalAt        time.Time  `json:"arrival_at"`
	State            UnitState  `json:"state"`
	Price            int64      `json:"price"`
	PaymentRef       string     `json:"payment_ref,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
}

// Active reports whether the unit still consumes segment capacity.
func (u *ReservationUnit) Active() bool {
	return u.State != StateCancelled
}

var allowedTransitions = map[UnitState][]UnitState{
	StateBookedUnpaid: {StatePaid, StatePaidOnBoard, StateCancelled},
	StatePaid:         {StateCancelled},
	StatePaidOnBoard:  {StateCancelled},
	StateCancelled:    {},
}

// TransitionTo moves the unit to the next lifecycle state. States may not
// be skipped and CANCELLED is terminal.
func (u *ReservationUnit) TransitionTo(next UnitState) error {
	for _, s := range allowedTransitions[u.State] {
		if s == next {
			u.State = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, u.State, next)
}
