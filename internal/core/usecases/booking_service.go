package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/olehbas/marshrut/internal/core/domain"
	"github.com/olehbas/marshrut/internal/core/ports"
	"github.com/olehbas/marshrut/internal/pkg/metrics"
)

const (
	defaultPaymentTTL = 10 * time.Minute

	reminderLongOffset  = 3 * time.Hour
	reminderShortOffset = 1 * time.Hour
	followupOffset      = 5 * time.Minute
)

// PassengerInput describes one seat buyer in a booking request.
type PassengerInput struct {
	Name       string
	Surname    string
	CategoryID int64
}

// PackageInput describes the sender/receiver pair for a package booking.
type PackageInput struct {
	Sender   domain.Person
	Receiver domain.Person
}

// BookRequest is the intake for both payment paths.
type BookRequest struct {
	RouteCode   string
	FromStation string
	ToStation   string
	OwnerID     int64
	Kind        domain.UnitKind
	Passengers  []PassengerInput
	Package     *PackageInput
	PayOnBoard  bool
}

// Invoice references a group of units awaiting online payment.
type Invoice struct {
	GroupID     string
	Units       []domain.ReservationUnit
	TotalAmount int64 // minor currency units, as the provider expects
	PayBefore   time.Time
}

// BookingService orchestrates intake, price computation, invoice
// issuance, provider confirmation, and the compensating refund path.
type BookingService struct {
	routes       *RouteService
	reservations ports.ReservationRepository
	users        ports.UserRepository
	categories   ports.CategoryRepository
	gateway      ports.PaymentGateway
	notifier     ports.Notifier
	scheduler    ports.ActionScheduler
	escalator    ports.RefundEscalator

	paymentTTL time.Duration
	now        func() time.Time
}

// BookingOption configures a BookingService.
type BookingOption func(*BookingService)

// WithPaymentTTL overrides the unpaid-reservation window.
func WithPaymentTTL(d time.Duration) BookingOption {
	return func(s *BookingService) {
		if d > 0 {
			s.paymentTTL = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) BookingOption {
	return func(s *BookingService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	routes *RouteService,
	reservations ports.ReservationRepository,
	users ports.UserRepository,
	categories ports.CategoryRepository,
	gateway ports.PaymentGateway,
	notifier ports.Notifier,
	scheduler ports.ActionScheduler,
	escalator ports.RefundEscalator,
	opts ...BookingOption,
) *BookingService {
	s := &BookingService{
		routes:       routes,
		reservations: reservations,
		users:        users,
		categories:   categories,
		gateway:      gateway,
		notifier:     notifier,
		scheduler:    scheduler,
		escalator:    escalator,
		paymentTTL:   defaultPaymentTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book validates the segment, quotes frozen per-unit prices, and creates
// the whole group atomically against the route's capacity. The online
// path returns an invoice and arms the payment timeout; the pay-on-board
// path confirms immediately and schedules the downstream actions.
func (s *BookingService) Book(ctx context.Context, req BookRequest) (*Invoice, error) {
	route, err := s.routes.GetRoute(ctx, req.RouteCode)
	if err != nil {
		return nil, err
	}

	origin, err := s.routes.GetStop(route, req.FromStation)
	if err != nil {
		return nil, err
	}
	dest, err := s.routes.GetStop(route, req.ToStation)
	if err != nil {
		return nil, err
	}
	if origin.Index >= dest.Index {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidSegment, req.FromStation, req.ToStation)
	}
	if !s.routes.IsAllowed(route, origin, dest) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrPairNotAllowed, req.FromStation, req.ToStation)
	}

	price, err := s.routes.PriceFor(route, origin, dest)
	if err != nil {
		return nil, err
	}
	baseFare := price.Ticket
	if req.Kind == domain.KindPackage {
		baseFare = price.Package
	}
	if baseFare <= 0 {
		// A zero fare marks the pair as not sellable.
		return nil, fmt.Errorf("%w: zero fare for %s -> %s", domain.ErrPriceNotConfigured,
			req.FromStation, req.ToStation)
	}

	units, err := s.buildUnits(ctx, req, route, origin, dest, baseFare)
	if err != nil {
		return nil, err
	}

	if err := s.reservations.CreateGroup(ctx, route, units); err != nil {
		if errors.Is(err, domain.ErrCapacityExceeded) {
			metrics.BookingsTotal.WithLabelValues(string(req.Kind), "capacity").Inc()
		}
		return nil, err
	}
	metrics.BookingsTotal.WithLabelValues(string(req.Kind), "ok").Inc()

	invoice := &Invoice{
		GroupID:   units[0].GroupID,
		PayBefore: s.now().Add(s.paymentTTL),
	}
	for _, u := range units {
		invoice.TotalAmount += u.Price * 100
	}

	if req.PayOnBoard {
		for _, u := range units {
			if err := u.TransitionTo(domain.StatePaidOnBoard); err != nil {
				return nil, err
			}
			if err := s.reservations.UpdateState(ctx, u); err != nil {
				return nil, fmt.Errorf("mark pay-on-board: %w", err)
			}
		}
		// Snapshot after the transitions so the caller sees the
		// persisted states.
		for _, u := range units {
			invoice.Units = append(invoice.Units, *u)
		}
		s.scheduleDownstream(ctx, invoice.Units)
		return invoice, nil
	}

	for _, u := range units {
		invoice.Units = append(invoice.Units, *u)
	}

	timeout := &domain.ScheduledAction{
		Key:     domain.ActionKey(domain.PurposePaymentTimeout, invoice.GroupID),
		FireAt:  invoice.PayBefore,
		Purpose: domain.PurposePaymentTimeout,
		Kind:    req.Kind,
		GroupID: invoice.GroupID,
		OwnerID: req.OwnerID,
	}
	if err := s.scheduler.Schedule(ctx, timeout); err != nil {
		return nil, fmt.Errorf("arm payment timeout: %w", err)
	}
	return invoice, nil
}

func (s *BookingService) buildUnits(ctx context.Context, req BookRequest, route *domain.Route, origin, dest domain.Stop, baseFare int64) ([]*domain.ReservationUnit, error) {
	groupID := uuid.NewString()
	created := s.now()

	unit := func() *domain.ReservationUnit {
		return &domain.ReservationUnit{
			Kind:             req.Kind,
			RouteID:          route.ID,
			GroupID:          groupID,
			OwnerID:          req.OwnerID,
			OriginIndex:      origin.Index,
			DestinationIndex: dest.Index,
			OriginStationID:  origin.Station.ID,
			DestStationID:    dest.Station.ID,
			DepartureAt:      origin.DepartureTime,
			ArrivalAt:        dest.DepartureTime,
			State:            domain.StateBookedUnpaid,
			Price:            baseFare,
			CreatedAt:        created,
		}
	}

	switch req.Kind {
	case domain.KindTicket:
		if len(req.Passengers) == 0 {
			return nil, fmt.Errorf("ticket booking needs at least one passenger")
		}
		units := make([]*domain.ReservationUnit, 0, len(req.Passengers))
		for _, p := range req.Passengers {
			category, err := s.categories.GetByID(ctx, p.CategoryID)
			if err != nil {
				return nil, fmt.Errorf("passenger category %d: %w", p.CategoryID, err)
			}
			person, err := s.users.FindOrCreatePerson(ctx, req.OwnerID, domain.Person{
				Name:    p.Name,
				Surname: p.Surname,
			})
			if err != nil {
				return nil, fmt.Errorf("resolve passenger: %w", err)
			}
			u := unit()
			u.Code = uuid.NewString()
			u.Passenger = person
			u.CategoryID = category.ID
			u.Price = domain.Quote(baseFare, category.DiscountPercent)
			units = append(units, u)
		}
		return units, nil

	case domain.KindPackage:
		if req.Package == nil {
			return nil, fmt.Errorf("package booking needs sender and receiver")
		}
		sender, err := s.users.FindOrCreatePerson(ctx, req.OwnerID, req.Package.Sender)
		if err != nil {
			return nil, fmt.Errorf("resolve sender: %w", err)
		}
		receiver, err := s.users.FindOrCreatePerson(ctx, req.OwnerID, req.Package.Receiver)
		if err != nil {
			return nil, fmt.Errorf("resolve receiver: %w", err)
		}
		u := unit()
		u.Code = uuid.NewString()[:12]
		u.Sender = sender
		u.Receiver = receiver
		return []*domain.ReservationUnit{u}, nil

	default:
		return nil, fmt.Errorf("unknown unit kind %q", req.Kind)
	}
}

// PreConfirm verifies every unit of a group still exists and is awaiting
// payment. The provider's pre-confirmation must reject stale groups
// instead of collecting money for freed seats.
func (s *BookingService) PreConfirm(ctx context.Context, groupID string) error {
	units, err := s.reservations.ListByGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("list group %s: %w", groupID, err)
	}
	if len(units) == 0 {
		return domain.ErrStaleReservation
	}
	for i := range units {
		if units[i].State != domain.StateBookedUnpaid {
			return fmt.Errorf("%w: unit %s is %s", domain.ErrStaleReservation,
				units[i].Code, units[i].State)
		}
	}
	return nil
}

// ConfirmPaid finalizes the online path: marks the whole group PAID with
// the provider's payment reference, disarms the payment timeout, delivers
// the tickets, and schedules reminders and the post-trip follow-up.
func (s *BookingService) ConfirmPaid(ctx context.Context, groupID, paymentRef string) error {
	if err := s.PreConfirm(ctx, groupID); err != nil {
		return err
	}

	units, err := s.reservations.ListByGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("list group %s: %w", groupID, err)
	}

	paidAt := s.now()
	for i := range units {
		u := &units[i]
		if err := u.TransitionTo(domain.StatePaid); err != nil {
			return err
		}
		u.PaymentRef = paymentRef
		u.PaidAt = &paidAt
		if err := s.reservations.UpdateState(ctx, u); err != nil {
			return fmt.Errorf("mark paid %s: %w", u.Code, err)
		}
	}

	if err := s.scheduler.Cancel(ctx, domain.ActionKey(domain.PurposePaymentTimeout, groupID)); err != nil {
		slog.Warn("cancel payment timeout failed", "group_id", groupID, "error", err)
	}

	s.deliver(ctx, units)
	s.scheduleDownstream(ctx, units)
	return nil
}

// Archive lists the owner's finished units: cancelled, or trips that
// have already arrived.
func (s *BookingService) Archive(ctx context.Context, ownerID int64, kind domain.UnitKind) ([]domain.ReservationUnit, error) {
	return s.reservations.ListArchivedByOwner(ctx, ownerID, kind)
}

// Cancel runs the compensating refund path for one unit. A PAID unit is
// refunded through the gateway first; if the gateway call fails the unit
// stays PAID with its reminders intact and the refund is escalated.
// Unpaid and pay-on-board units skip the gateway entirely.
func (s *BookingService) Cancel(ctx context.Context, unitID int64) error {
	unit, err := s.reservations.GetByID(ctx, unitID)
	if err != nil {
		return fmt.Errorf("%w: id %d", domain.ErrUnitNotFound, unitID)
	}

	if unit.State == domain.StatePaid {
		if err := s.refund(ctx, unit); err != nil {
			return err
		}
	}

	if err := unit.TransitionTo(domain.StateCancelled); err != nil {
		return err
	}
	if err := s.reservations.UpdateState(ctx, unit); err != nil {
		return fmt.Errorf("cancel %s: %w", unit.Code, err)
	}

	s.cancelActions(ctx, unit)
	metrics.UnitsCancelled.WithLabelValues("user").Inc()
	return nil
}

func (s *BookingService) refund(ctx context.Context, unit *domain.ReservationUnit) error {
	payment, err := s.gateway.FetchPayment(ctx, unit.PaymentRef)
	if err != nil {
		s.escalateRefund(ctx, unit)
		return fmt.Errorf("fetch payment %s: %w", unit.PaymentRef, err)
	}
	if err := s.gateway.Refund(ctx, payment.OrderID, payment.Amount); err != nil {
		s.escalateRefund(ctx, unit)
		return fmt.Errorf("refund order %s: %w", payment.OrderID, err)
	}
	return nil
}

func (s *BookingService) escalateRefund(ctx context.Context, unit *domain.ReservationUnit) {
	// Money is already collected; a dropped refund is urgent.
	if s.escalator == nil {
		slog.Error("refund failed with no escalation path", "unit", unit.Code, "payment_ref", unit.PaymentRef)
		return
	}
	if err := s.escalator.EscalateRefund(ctx, unit.ID, unit.PaymentRef); err != nil {
		slog.Error("refund escalation failed", "unit", unit.Code, "payment_ref", unit.PaymentRef, "error", err)
	}
}

func (s *BookingService) cancelActions(ctx context.Context, unit *domain.ReservationUnit) {
	keys := []string{
		domain.ActionKey(domain.PurposeReminder3H, unit.Code),
		domain.ActionKey(domain.PurposeReminder1H, unit.Code),
	}
	for _, key := range keys {
		if err := s.scheduler.Cancel(ctx, key); err != nil {
			slog.Warn("cancel scheduled action failed", "key", key, "error", err)
		}
	}

	// The follow-up is group-scoped: drop it once no active unit remains.
	units, err := s.reservations.ListByGroup(ctx, unit.GroupID)
	if err != nil {
		slog.Warn("list group for followup cleanup failed", "group_id", unit.GroupID, "error", err)
		return
	}
	for i := range units {
		if units[i].Active() {
			return
		}
	}
	key := domain.ActionKey(domain.PurposePostTripFollowup, unit.GroupID)
	if err := s.scheduler.Cancel(ctx, key); err != nil {
		slog.Warn("cancel scheduled action failed", "key", key, "error", err)
	}
}

func (s *BookingService) deliver(ctx context.Context, units []domain.ReservationUnit) {
	if len(units) == 0 {
		return
	}
	ownerID := units[0].OwnerID
	if err := s.notifier.SendMessage(ctx, ownerID, "Thank you for your order. Your tickets are below."); err != nil {
		slog.Warn("delivery message failed", "owner_id", ownerID, "error", err)
	}
	for i := range units {
		u := &units[i]
		if err := s.notifier.SendDocument(ctx, ownerID, u.Code, renderUnitSummary(u)); err != nil {
			slog.Warn("document delivery failed", "unit", u.Code, "error", err)
		}
	}
}

// renderUnitSummary produces the plain-text stand-in for the rendered
// ticket/package document. Image rendering belongs to the excluded
// transport layer.
func renderUnitSummary(u *domain.ReservationUnit) []byte {
	return []byte(fmt.Sprintf(
		"%s %s\ndeparture: %s\narrival: %s\nprice: %d UAH\n",
		u.Kind, u.Code,
		u.DepartureAt.Format("02.01.2006 15:04"),
		u.ArrivalAt.Format("02.01.2006 15:04"),
		u.Price,
	))
}

func (s *BookingService) scheduleDownstream(ctx context.Context, units []domain.ReservationUnit) {
	for i := range units {
		u := &units[i]
		reminders := []struct {
			purpose domain.ActionPurpose
			offset  time.Duration
		}{
			{domain.PurposeReminder3H, reminderLongOffset},
			{domain.PurposeReminder1H, reminderShortOffset},
		}
		for _, r := range reminders {
			action := &domain.ScheduledAction{
				Key:      domain.ActionKey(r.purpose, u.Code),
				FireAt:   u.DepartureAt.Add(-r.offset),
				Purpose:  r.purpose,
				Kind:     u.Kind,
				UnitCode: u.Code,
				OwnerID:  u.OwnerID,
			}
			if err := s.scheduler.Schedule(ctx, action); err != nil {
				slog.Warn("schedule reminder failed", "key", action.Key, "error", err)
			}
		}
	}

	group := units[0]
	followup := &domain.ScheduledAction{
		Key:     domain.ActionKey(domain.PurposePostTripFollowup, group.GroupID),
		FireAt:  group.DepartureAt.Add(followupOffset),
		Purpose: domain.PurposePostTripFollowup,
		Kind:    group.Kind,
		GroupID: group.GroupID,
		OwnerID: group.OwnerID,
	}
	if err := s.scheduler.Schedule(ctx, followup); err != nil {
		slog.Warn("schedule followup failed", "key", followup.Key, "error", err)
	}
}

// HandlePaymentTimeout fires when no confirmation arrived inside the
// payment window: every still-unpaid unit of the group is cancelled so
// its capacity is released, and the owner is told the window expired.
func (s *BookingService) HandlePaymentTimeout(ctx context.Context, action domain.ScheduledAction) error {
	units, err := s.reservations.ListByGroup(ctx, action.GroupID)
	if err != nil {
		return fmt.Errorf("list group %s: %w", action.GroupID, err)
	}

	expired := 0
	for i := range units {
		u := &units[i]
		if u.State != domain.StateBookedUnpaid {
			continue
		}
		if err := u.TransitionTo(domain.StateCancelled); err != nil {
			return err
		}
		if err := s.reservations.UpdateState(ctx, u); err != nil {
			return fmt.Errorf("expire unit %s: %w", u.Code, err)
		}
		expired++
		metrics.UnitsCancelled.WithLabelValues("payment_timeout").Inc()
	}
	if expired == 0 {
		return nil
	}

	slog.Info("payment window expired", "group_id", action.GroupID, "units", expired)
	if err := s.notifier.SendMessage(ctx, action.OwnerID, "The payment was cancelled: the booking window has expired."); err != nil {
		slog.Warn("timeout notification failed", "owner_id", action.OwnerID, "error", err)
	}
	return nil
}

// HandleReminder fires the pre-departure reminders. A cancelled or
// missing unit is a silent no-op, as is an owner who muted notifications.
func (s *BookingService) HandleReminder(ctx context.Context, action domain.ScheduledAction) error {
	unit, err := s.reservations.GetByCode(ctx, action.Kind, action.UnitCode)
	if err != nil {
		if errors.Is(err, domain.ErrUnitNotFound) {
			return nil
		}
		return fmt.Errorf("load unit %s: %w", action.UnitCode, err)
	}
	if !unit.Active() {
		return nil
	}

	owner, err := s.users.GetByID(ctx, unit.OwnerID)
	if err != nil {
		return fmt.Errorf("load owner %d: %w", unit.OwnerID, err)
	}
	if !owner.NotificationsEnabled {
		return nil
	}

	text := fmt.Sprintf("Reminder: your trip departs at %s.", unit.DepartureAt.Format("15:04"))
	if route, err := s.routes.GetRouteByID(ctx, unit.RouteID); err == nil {
		if stop, ok := route.StopAt(unit.OriginIndex); ok {
			if link := stop.Station.MapLink(); link != "" {
				text += " Boarding point: " + link
			}
		}
	}
	if err := s.notifier.SendMessage(ctx, owner.ID, text); err != nil {
		slog.Warn("reminder delivery failed", "unit", unit.Code, "error", err)
	}
	return nil
}

// HandleFollowup fires once after arrival for a group with at least one
// active unit.
func (s *BookingService) HandleFollowup(ctx context.Context, action domain.ScheduledAction) error {
	units, err := s.reservations.ListByGroup(ctx, action.GroupID)
	if err != nil {
		return fmt.Errorf("list group %s: %w", action.GroupID, err)
	}
	for i := range units {
		if units[i].Active() {
			if err := s.notifier.SendMessage(ctx, action.OwnerID, "Thank you for travelling with us! How was your trip?"); err != nil {
				slog.Warn("followup delivery failed", "group_id", action.GroupID, "error", err)
			}
			return nil
		}
	}
	return nil
}
