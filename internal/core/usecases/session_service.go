package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/olehbas/marshrut/internal/core/domain"
	"github.com/olehbas/marshrut/internal/core/ports"
)

// Step is the conversation position inside a booking dialogue.
type Step string

const (
	StepOrigin      Step = "origin"
	StepDestination Step = "destination"
	StepDate        Step = "date"
	StepPassengers  Step = "passengers"
	StepPayment     Step = "payment"
)

const (
	sessionTTL       = 30 * time.Minute
	travelDateLayout = "02.01.2006"
	maxGroupSize     = 10
	sessionKeyPrefix = "session:"
)

// PassengerDraft is one in-progress passenger entry.
type PassengerDraft struct {
	Name       string `json:"name"`
	Surname    string `json:"surname"`
	CategoryID int64  `json:"category_id"`
}

// BookingDraft is the strongly-typed partial booking a user builds step
// by step. It lives in the TTL store; an abandoned draft simply expires.
type BookingDraft struct {
	Step            Step             `json:"step"`
	Kind            domain.UnitKind  `json:"kind"`
	OriginCode      string           `json:"origin_code"`
	DestinationCode string           `json:"destination_code"`
	TravelDate      string           `json:"travel_date,omitempty"`
	RouteCode       string           `json:"route_code,omitempty"`
	Passengers      []PassengerDraft `json:"passengers,omitempty"`
	Sender          *domain.Person   `json:"sender,omitempty"`
	Receiver        *domain.Person   `json:"receiver,omitempty"`
}

// SessionService drives the per-user booking dialogue. Each transition
// validates the input against the current step; cancel at any step only
// clears session state, since no reservation unit exists before the
// final step.
type SessionService struct {
	store     ports.SessionStore
	routes    *RouteService
	inventory *InventoryService
}

// NewSessionService creates a new SessionService.
func NewSessionService(store ports.SessionStore, routes *RouteService, inventory *InventoryService) *SessionService {
	return &SessionService{store: store, routes: routes, inventory: inventory}
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("%s%d", sessionKeyPrefix, userID)
}

// Start opens a fresh draft, replacing any previous one.
func (s *SessionService) Start(ctx context.Context, userID int64, kind domain.UnitKind) (*BookingDraft, error) {
	draft := &BookingDraft{Step: StepOrigin, Kind: kind}
	if err := s.save(ctx, userID, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// Current returns the user's in-progress draft, or nil after expiry.
// A store failure is reported, not mistaken for an expired session.
func (s *SessionService) Current(ctx context.Context, userID int64) (*BookingDraft, error) {
	data, err := s.store.Get(ctx, sessionKey(userID))
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var draft BookingDraft
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &draft, nil
}

// ChooseOrigin records the origin station and advances to destination.
func (s *SessionService) ChooseOrigin(ctx context.Context, userID int64, stationCode string) (*BookingDraft, error) {
	draft, err := s.require(ctx, userID, StepOrigin)
	if err != nil {
		return nil, err
	}
	if stationCode == "" {
		return nil, fmt.Errorf("origin station is required")
	}
	draft.OriginCode = stationCode
	draft.Step = StepDestination
	return draft, s.save(ctx, userID, draft)
}

// ChooseDestination records the destination and advances to the date step.
func (s *SessionService) ChooseDestination(ctx context.Context, userID int64, stationCode string) (*BookingDraft, error) {
	draft, err := s.require(ctx, userID, StepDestination)
	if err != nil {
		return nil, err
	}
	if stationCode == "" || stationCode == draft.OriginCode {
		return nil, fmt.Errorf("destination must differ from origin")
	}
	draft.DestinationCode = stationCode
	draft.Step = StepDate
	return draft, s.save(ctx, userID, draft)
}

// ChooseDate parses the travel date and advances to passenger intake.
func (s *SessionService) ChooseDate(ctx context.Context, userID int64, input string) (*BookingDraft, error) {
	draft, err := s.require(ctx, userID, StepDate)
	if err != nil {
		return nil, err
	}
	date, err := time.Parse(travelDateLayout, strings.TrimSpace(input))
	if err != nil {
		return nil, fmt.Errorf("date must look like 24.08.2026: %w", err)
	}
	draft.TravelDate = date.Format(travelDateLayout)
	draft.Step = StepPassengers
	return draft, s.save(ctx, userID, draft)
}

// RouteOptions lists the active routes on the drafted date that serve
// the drafted segment in order and are not denylisted for it.
func (s *SessionService) RouteOptions(ctx context.Context, userID int64) ([]domain.Route, error) {
	draft, err := s.require(ctx, userID, StepPassengers)
	if err != nil {
		return nil, err
	}
	date, err := time.Parse(travelDateLayout, draft.TravelDate)
	if err != nil {
		return nil, fmt.Errorf("corrupt travel date %q: %w", draft.TravelDate, err)
	}
	routes, err := s.routes.ListForDate(ctx, date)
	if err != nil {
		return nil, err
	}

	var out []domain.Route
	for i := range routes {
		r := &routes[i]
		origin, ok := r.StopByStation(draft.OriginCode)
		if !ok {
			continue
		}
		dest, ok := r.StopByStation(draft.DestinationCode)
		if !ok {
			continue
		}
		if !s.routes.IsAllowed(r, origin, dest) {
			continue
		}
		out = append(out, routes[i])
	}
	return out, nil
}

// ChooseRoute pins the draft to a concrete route offering the segment.
func (s *SessionService) ChooseRoute(ctx context.Context, userID int64, routeCode string) (*BookingDraft, error) {
	draft, err := s.require(ctx, userID, StepPassengers)
	if err != nil {
		return nil, err
	}
	route, err := s.routes.GetRoute(ctx, routeCode)
	if err != nil {
		return nil, err
	}
	origin, err := s.routes.GetStop(route, draft.OriginCode)
	if err != nil {
		return nil, err
	}
	dest, err := s.routes.GetStop(route, draft.DestinationCode)
	if err != nil {
		return nil, err
	}
	if !s.routes.IsAllowed(route, origin, dest) {
		return nil, domain.ErrPairNotAllowed
	}
	draft.RouteCode = routeCode
	return draft, s.save(ctx, userID, draft)
}

// AddPassenger appends one passenger, bounded by the free units on the
// drafted segment.
func (s *SessionService) AddPassenger(ctx context.Context, userID int64, fullName string, categoryID int64) (*BookingDraft, error) {
	draft, err := s.require(ctx, userID, StepPassengers)
	if err != nil {
		return nil, err
	}
	if draft.RouteCode == "" {
		return nil, fmt.Errorf("choose a route before adding passengers")
	}

	parts := strings.Fields(fullName)
	if len(parts) < 2 {
		return nil, fmt.Errorf("passenger needs a name and a surname")
	}

	free, err := s.inventory.AvailableByCodes(ctx, draft.RouteCode, draft.OriginCode, draft.DestinationCode, domain.KindTicket)
	if err != nil {
		return nil, err
	}
	if len(draft.Passengers)+1 > free || len(draft.Passengers)+1 > maxGroupSize {
		return nil, fmt.Errorf("%w: %d seats free", domain.ErrCapacityExceeded, free)
	}

	draft.Passengers = append(draft.Passengers, PassengerDraft{
		Name:       parts[0],
		Surname:    strings.Join(parts[1:], " "),
		CategoryID: categoryID,
	})
	return draft, s.save(ctx, userID, draft)
}

// SetParties records the sender/receiver of a package draft.
func (s *SessionService) SetParties(ctx context.Context, userID int64, sender, receiver domain.Person) (*BookingDraft, error) {
	draft, err := s.require(ctx, userID, StepPassengers)
	if err != nil {
		return nil, err
	}
	if draft.Kind != domain.KindPackage {
		return nil, fmt.Errorf("sender/receiver only apply to package bookings")
	}
	draft.Sender = &sender
	draft.Receiver = &receiver
	return draft, s.save(ctx, userID, draft)
}

// Proceed advances a completed passenger step to payment.
func (s *SessionService) Proceed(ctx context.Context, userID int64) (*BookingDraft, error) {
	draft, err := s.require(ctx, userID, StepPassengers)
	if err != nil {
		return nil, err
	}
	switch draft.Kind {
	case domain.KindTicket:
		if len(draft.Passengers) == 0 {
			return nil, fmt.Errorf("add at least one passenger")
		}
	case domain.KindPackage:
		if draft.Sender == nil || draft.Receiver == nil {
			return nil, fmt.Errorf("sender and receiver are required")
		}
	}
	draft.Step = StepPayment
	return draft, s.save(ctx, userID, draft)
}

// Cancel drops the draft. Nothing beyond session state is released here;
// once units exist, cleanup belongs to the payment-timeout path.
func (s *SessionService) Cancel(ctx context.Context, userID int64) error {
	return s.store.Delete(ctx, sessionKey(userID))
}

// ToBookRequest converts a payment-ready draft into saga intake.
func (d *BookingDraft) ToBookRequest(ownerID int64, payOnBoard bool) BookRequest {
	req := BookRequest{
		RouteCode:   d.RouteCode,
		FromStation: d.OriginCode,
		ToStation:   d.DestinationCode,
		OwnerID:     ownerID,
		Kind:        d.Kind,
		PayOnBoard:  payOnBoard,
	}
	for _, p := range d.Passengers {
		req.Passengers = append(req.Passengers, PassengerInput{
			Name:       p.Name,
			Surname:    p.Surname,
			CategoryID: p.CategoryID,
		})
	}
	if d.Kind == domain.KindPackage && d.Sender != nil && d.Receiver != nil {
		req.Package = &PackageInput{Sender: *d.Sender, Receiver: *d.Receiver}
	}
	return req
}

func (s *SessionService) require(ctx context.Context, userID int64, step Step) (*BookingDraft, error) {
	draft, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, fmt.Errorf("no booking in progress")
	}
	if draft.Step != step {
		return nil, fmt.Errorf("expected step %s, session is at %s", step, draft.Step)
	}
	return draft, nil
}

func (s *SessionService) save(ctx context.Context, userID int64, draft *BookingDraft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.store.Set(ctx, sessionKey(userID), data, sessionTTL)
}
