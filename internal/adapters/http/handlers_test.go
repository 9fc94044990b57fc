package http_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/olehbas/marshrut/internal/adapters/http"
	"github.com/olehbas/marshrut/internal/adapters/liqpay"
	"github.com/olehbas/marshrut/internal/core/domain"
	"github.com/olehbas/marshrut/internal/core/usecases"
)

// ---- Mock repositories ----

type mockRouteRepo struct {
	route *domain.Route
}

func (m *mockRouteRepo) GetByCode(ctx context.Context, code string) (*domain.Route, error) {
	if m.route != nil && m.route.Code == code {
		return m.route, nil
	}
	return nil, domain.ErrRouteNotFound
}

func (m *mockRouteRepo) GetByID(ctx context.Context, id int64) (*domain.Route, error) {
	if m.route != nil && m.route.ID == id {
		return m.route, nil
	}
	return nil, domain.ErrRouteNotFound
}

func (m *mockRouteRepo) ListActive(ctx context.Context, date time.Time) ([]domain.Route, error) {
	return nil, nil
}

func (m *mockRouteRepo) UpsertZeroPrice(ctx context.Context, routeID int64, pair domain.PairKey) error {
	return nil
}

func (m *mockRouteRepo) DeletePricesNotIn(ctx context.Context, routeID int64, stationIDs []int64) error {
	return nil
}

type mockReservations struct {
	mu    sync.Mutex
	seq   int64
	units map[int64]domain.ReservationUnit
}

func newMockReservations() *mockReservations {
	return &mockReservations{units: make(map[int64]domain.ReservationUnit)}
}

func (m *mockReservations) CreateGroup(ctx context.Context, route *domain.Route, units []*domain.ReservationUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var existing []domain.ReservationUnit
	for _, u := range m.units {
		if u.RouteID == route.ID {
			existing = append(existing, u)
		}
	}
	head := units[0]
	occupied := domain.CountOverlapping(existing, head.Kind, head.OriginIndex, head.DestinationIndex)
	if occupied+len(units) > route.CapacityFor(head.Kind) {
		return domain.ErrCapacityExceeded
	}
	for _, u := range units {
		m.seq++
		u.ID = m.seq
		m.units[u.ID] = *u
	}
	return nil
}

func (m *mockReservations) GetByID(ctx context.Context, id int64) (*domain.ReservationUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[id]
	if !ok {
		return nil, domain.ErrUnitNotFound
	}
	return &u, nil
}

func (m *mockReservations) GetByCode(ctx context.Context, kind domain.UnitKind, code string) (*domain.ReservationUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.units {
		if u.Kind == kind && u.Code == code {
			u := u
			return &u, nil
		}
	}
	return nil, domain.ErrUnitNotFound
}

func (m *mockReservations) ListByGroup(ctx context.Context, groupID string) ([]domain.ReservationUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ReservationUnit
	for id := int64(1); id <= m.seq; id++ {
		if u, ok := m.units[id]; ok && u.GroupID == groupID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockReservations) ListActiveByRoute(ctx context.Context, routeID int64) ([]domain.ReservationUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ReservationUnit
	for _, u := range m.units {
		if u.RouteID == routeID && u.Active() {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockReservations) ListArchivedByOwner(ctx context.Context, ownerID int64, kind domain.UnitKind) ([]domain.ReservationUnit, error) {
	return nil, nil
}

func (m *mockReservations) UpdateState(ctx context.Context, unit *domain.ReservationUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.units[unit.ID]; !ok {
		return domain.ErrUnitNotFound
	}
	m.units[unit.ID] = *unit
	return nil
}

type mockUsers struct{ seq int64 }

func (m *mockUsers) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return &domain.User{ID: id, NotificationsEnabled: true}, nil
}

func (m *mockUsers) FindOrCreatePerson(ctx context.Context, ownerID int64, p domain.Person) (*domain.Person, error) {
	m.seq++
	out := p
	out.ID = m.seq
	return &out, nil
}

type mockCategories struct{}

func (m *mockCategories) GetByID(ctx context.Context, id int64) (*domain.PassengerCategory, error) {
	return &domain.PassengerCategory{ID: id, Name: "adult"}, nil
}

func (m *mockCategories) List(ctx context.Context) ([]domain.PassengerCategory, error) {
	return nil, nil
}

type mockGateway struct{}

func (m *mockGateway) FetchPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return &domain.Payment{PaymentID: paymentID, OrderID: paymentID, Amount: 35000, Status: "success"}, nil
}

func (m *mockGateway) Refund(ctx context.Context, orderID string, amount int64) error { return nil }

type mockNotifier struct{}

func (m *mockNotifier) SendMessage(ctx context.Context, userID int64, text string) error { return nil }
func (m *mockNotifier) SendDocument(ctx context.Context, userID int64, caption string, document []byte) error {
	return nil
}

type mockScheduler struct{}

func (m *mockScheduler) Schedule(ctx context.Context, action *domain.ScheduledAction) error {
	return nil
}
func (m *mockScheduler) Cancel(ctx context.Context, key string) error { return nil }

// ---- Fixtures ----

func testRoute() *domain.Route {
	base := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	route := &domain.Route{
		ID:              1,
		Code:            "KV-LV",
		Active:          true,
		SeatCapacity:    5,
		PackageCapacity: 2,
		Prices:          make(map[domain.PairKey]domain.Price),
		Disallowed:      make(map[domain.PairKey]bool),
	}
	for i, code := range []string{"A", "B", "C"} {
		route.Stops = append(route.Stops, domain.Stop{
			Index:         i + 1,
			Station:       domain.Station{ID: int64(i + 1), Code: code},
			DepartureTime: base.Add(time.Duration(i) * time.Hour),
		})
	}
	for i := 1; i <= 3; i++ {
		for j := i + 1; j <= 3; j++ {
			route.Prices[domain.PairKey{FromStationID: int64(i), ToStationID: int64(j)}] = domain.Price{Ticket: 350, Package: 150}
		}
	}
	return route
}

type fixture struct {
	app          *fiber.App
	gateway      *liqpay.Client
	bookings     *usecases.BookingService
	reservations *mockReservations
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	routeRepo := &mockRouteRepo{route: testRoute()}
	reservations := newMockReservations()
	gateway := liqpay.New("http://example.invalid", "pub", "secret", time.Second)

	routes := usecases.NewRouteService(routeRepo)
	inventory := usecases.NewInventoryService(routeRepo, reservations)
	bookings := usecases.NewBookingService(
		routes, reservations, &mockUsers{}, &mockCategories{},
		&mockGateway{}, &mockNotifier{}, &mockScheduler{}, nil,
	)

	deps := &handler.Dependencies{
		Routes:    routes,
		Inventory: inventory,
		Bookings:  bookings,
		Gateway:   gateway,
	}

	app := fiber.New()
	handler.SetupRoutes(app, deps)

	return &fixture{app: app, gateway: gateway, bookings: bookings, reservations: reservations}
}

func (f *fixture) book(t *testing.T) string {
	t.Helper()
	inv, err := f.bookings.Book(context.Background(), usecases.BookRequest{
		RouteCode:   "KV-LV",
		FromStation: "A",
		ToStation:   "C",
		OwnerID:     42,
		Kind:        domain.KindTicket,
		Passengers:  []usecases.PassengerInput{{Name: "Olha", Surname: "K", CategoryID: 1}},
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return inv.GroupID
}

// ---- Tests ----

func TestAvailabilityHandler(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("GET", "/v1/routes/KV-LV/availability?from=A&to=C", nil)
	resp, err := f.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Free int `json:"free"`
	}
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Free != 5 {
		t.Errorf("free = %d, want 5", body.Free)
	}
}

func TestAvailabilityHandler_Validation(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("GET", "/v1/routes/KV-LV/availability?from=A", nil)
	resp, _ := f.app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Errorf("missing to: status = %d, want 400", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/v1/routes/NO-PE/availability?from=A&to=C", nil)
	resp, _ = f.app.Test(req, -1)
	if resp.StatusCode != 404 {
		t.Errorf("unknown route: status = %d, want 404", resp.StatusCode)
	}
}

func TestPaymentCallback_InvalidSignature(t *testing.T) {
	f := newFixture(t)

	data := base64.StdEncoding.EncodeToString([]byte(`{"status":"success","order_id":"g1"}`))
	form := url.Values{"data": {data}, "signature": {"forged"}}

	req := httptest.NewRequest("POST", "/v1/payments/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := f.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 403 {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestPaymentCallback_ConfirmsGroup(t *testing.T) {
	f := newFixture(t)
	groupID := f.book(t)

	raw, _ := json.Marshal(map[string]any{"status": "success", "order_id": groupID, "payment_id": 987})
	data := base64.StdEncoding.EncodeToString(raw)
	form := url.Values{"data": {data}, "signature": {f.gateway.Sign(data)}}

	req := httptest.NewRequest("POST", "/v1/payments/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := f.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	units, _ := f.reservations.ListByGroup(context.Background(), groupID)
	for _, u := range units {
		if u.State != domain.StatePaid {
			t.Errorf("unit %s state = %s, want PAID", u.Code, u.State)
		}
	}
}

func TestPaymentCallback_StaleGroupConflicts(t *testing.T) {
	f := newFixture(t)

	raw, _ := json.Marshal(map[string]any{"status": "success", "order_id": "no-such-group"})
	data := base64.StdEncoding.EncodeToString(raw)
	form := url.Values{"data": {data}, "signature": {f.gateway.Sign(data)}}

	req := httptest.NewRequest("POST", "/v1/payments/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, _ := f.app.Test(req, -1)
	if resp.StatusCode != 409 {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestPaymentCallback_FailureStatusIgnored(t *testing.T) {
	f := newFixture(t)
	groupID := f.book(t)

	raw, _ := json.Marshal(map[string]any{"status": "failure", "order_id": groupID})
	data := base64.StdEncoding.EncodeToString(raw)
	form := url.Values{"data": {data}, "signature": {f.gateway.Sign(data)}}

	req := httptest.NewRequest("POST", "/v1/payments/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, _ := f.app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	// The group must stay armed for a retry inside the window.
	units, _ := f.reservations.ListByGroup(context.Background(), groupID)
	for _, u := range units {
		if u.State != domain.StateBookedUnpaid {
			t.Errorf("unit %s state = %s, want BOOKED_UNPAID", u.Code, u.State)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	f := newFixture(t)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestLoggerFromCtx(t *testing.T) {
	if handler.LoggerFromCtx(context.Background()) == nil {
		t.Fatal("want the default logger outside a request")
	}

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("requestid", "req-1")
		return c.Next()
	})
	app.Use(handler.RequestIDLogMiddleware())
	app.Get("/scoped", func(c *fiber.Ctx) error {
		if handler.LoggerFromCtx(c.UserContext()) == nil {
			t.Error("no request-scoped logger")
		}
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/scoped", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
