package domain

import (
	"fmt"
	"time"
)

// Station is a point where a route can pick up or drop off.
type Station struct {
	ID      int64   `json:"id"`
	Code    string  `json:"code"`
	Name    string  `json:"name"`
	Town    string  `json:"town"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Popular bool    `json:"popular"`
}

// MapLink returns a maps URL for the station's boarding point, or an
// empty string when no coordinates are configured.
func (s Station) MapLink() string {
	if s.Lat == 0 && s.Lon == 0 {
		return ""
	}
	return fmt.Sprintf("https://www.google.com/maps?q=%.6f,%.6f", s.Lat, s.Lon)
}

// Stop is one entry in a route's ordered stop sequence.
// Index starts at 1 and increases strictly along the route.
type Stop struct {
	Index         int       `json:"index"`
	Station       Station   `json:"station"`
	DepartureTime time.Time `json:"departure_time"`
}

// PairKey identifies an (origin, destination) station pair on a route.
type PairKey struct {
	FromStationID int64
	ToStationID   int64
}

// Price holds the configured fares for one station pair.
// A zero fare means the pair is not sellable.
type Price struct {
	Ticket  int64 `json:"ticket"`
	Package int64 `json:"package"`
}

// Route is a scheduled multi-stop bus run. Stops are ordered by Index;
// Prices and Disallowed are keyed by station pair.
type Route struct {
	ID              int64             `json:"id"`
	Code            string            `json:"code"`
	Active          bool              `json:"active"`
	Regular         bool              `json:"regular"`
	BusName         string            `json:"bus_name"`
	SeatCapacity    int               `json:"seat_capacity"`
	PackageCapacity int               `json:"package_capacity"`
	Stops           []Stop            `json:"stops"`
	Prices          map[PairKey]Price `json:"-"`
	Disallowed      map[PairKey]bool  `json:"-"`
}

// StopByStation returns the stop for a station code, or false if the
// station is not on the route.
func (r *Route) StopByStation(code string) (Stop, bool) {
	for _, s := range r.Stops {
		if s.Station.Code == code {
			return s, true
		}
	}
	return Stop{}, false
}

// StopAt returns the stop with the given sequence index.
func (r *Route) StopAt(index int) (Stop, bool) {
	for _, s := range r.Stops {
		if s.Index == index {
			return s, true
		}
	}
	return Stop{}, false
}

// CapacityFor returns the unit pool size for a reservation kind.
func (r *Route) CapacityFor(kind UnitKind) int {
	if kind == KindPackage {
		return r.PackageCapacity
	}
	return r.SeatCapacity
}

// Person is a passenger, package sender, or package receiver.
type Person struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Phone   string `json:"phone,omitempty"`
}

// User is the end-user identity that owns reservations and sessions.
type User struct {
	ID                   int64  `json:"id"`
	FullName             string `json:"full_name"`
	Phone                string `json:"phone"`
	Language             string `json:"language"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
}

// PassengerCategory carries a fare discount (adult, child, student, …).
type PassengerCategory struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	DiscountPercent int    `json:"discount_percent"`
}

// Payment is the gateway's view of a completed payment.
type Payment struct {
	PaymentID     string `json:"payment_id"`
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
	PayerCardMask string `json:"payer_card_mask"`
	Status        string `json:"status"`
}
