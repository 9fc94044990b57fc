package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/olehbas/marshrut/internal/core/domain"
	"github.com/olehbas/marshrut/internal/core/usecases"
)

// memSessionStore ignores TTLs; expiry behaviour belongs to the real
// Valkey store.
type memSessionStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{data: make(map[string][]byte)}
}

func (m *memSessionStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memSessionStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memSessionStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func sessionFixture(t *testing.T) (*usecases.SessionService, *domain.Route) {
	t.Helper()
	route := testRoute(5, 2)
	routes := usecases.NewRouteService(&mockRouteRepo{
		getByCodeFn: func(ctx context.Context, code string) (*domain.Route, error) {
			if code == route.Code {
				return route, nil
			}
			return nil, domain.ErrRouteNotFound
		},
	})
	inventory, _ := inventoryFixture(route)
	return usecases.NewSessionService(newMemSessionStore(), routes, inventory), route
}

func TestSession_TicketFlow(t *testing.T) {
	svc, _ := sessionFixture(t)
	ctx := context.Background()
	const userID = int64(42)

	draft, err := svc.Start(ctx, userID, domain.KindTicket)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if draft.Step != usecases.StepOrigin {
		t.Fatalf("step = %s, want origin", draft.Step)
	}

	if _, err := svc.ChooseOrigin(ctx, userID, "A"); err != nil {
		t.Fatalf("origin: %v", err)
	}
	if _, err := svc.ChooseDestination(ctx, userID, "C"); err != nil {
		t.Fatalf("destination: %v", err)
	}
	if _, err := svc.ChooseDate(ctx, userID, "01.09.2026"); err != nil {
		t.Fatalf("date: %v", err)
	}
	if _, err := svc.ChooseRoute(ctx, userID, "KV-LV"); err != nil {
		t.Fatalf("route: %v", err)
	}
	if _, err := svc.AddPassenger(ctx, userID, "Olha Kovalenko", 1); err != nil {
		t.Fatalf("passenger: %v", err)
	}

	draft, err = svc.Proceed(ctx, userID)
	if err != nil {
		t.Fatalf("proceed: %v", err)
	}
	if draft.Step != usecases.StepPayment {
		t.Fatalf("step = %s, want payment", draft.Step)
	}

	req := draft.ToBookRequest(userID, false)
	if req.RouteCode != "KV-LV" || req.FromStation != "A" || req.ToStation != "C" {
		t.Errorf("book request = %+v", req)
	}
	if len(req.Passengers) != 1 || req.Passengers[0].Surname != "Kovalenko" {
		t.Errorf("passengers = %+v", req.Passengers)
	}
}

func TestSession_StepOrderEnforced(t *testing.T) {
	svc, _ := sessionFixture(t)
	ctx := context.Background()
	const userID = int64(42)

	if _, err := svc.ChooseOrigin(ctx, userID, "A"); err == nil {
		t.Fatal("origin without a session must fail")
	}

	if _, err := svc.Start(ctx, userID, domain.KindTicket); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.ChooseDate(ctx, userID, "01.09.2026"); err == nil {
		t.Fatal("date at the origin step must fail")
	}
	if _, err := svc.ChooseOrigin(ctx, userID, "A"); err != nil {
		t.Fatalf("origin: %v", err)
	}
	if _, err := svc.ChooseDestination(ctx, userID, "A"); err == nil {
		t.Fatal("destination equal to origin must fail")
	}
}

func TestSession_BadDate(t *testing.T) {
	svc, _ := sessionFixture(t)
	ctx := context.Background()
	const userID = int64(42)

	_, _ = svc.Start(ctx, userID, domain.KindTicket)
	_, _ = svc.ChooseOrigin(ctx, userID, "A")
	_, _ = svc.ChooseDestination(ctx, userID, "C")

	if _, err := svc.ChooseDate(ctx, userID, "2026-09-01"); err == nil {
		t.Fatal("ISO date must be rejected, format is 02.01.2006")
	}
	if _, err := svc.ChooseDate(ctx, userID, " 01.09.2026 "); err != nil {
		t.Fatalf("padded date: %v", err)
	}
}

func TestSession_PassengerBoundedByInventory(t *testing.T) {
	route := testRoute(2, 2)
	routes := usecases.NewRouteService(&mockRouteRepo{
		getByCodeFn: func(ctx context.Context, code string) (*domain.Route, error) {
			return route, nil
		},
	})
	inventory, _ := inventoryFixture(route)
	svc := usecases.NewSessionService(newMemSessionStore(), routes, inventory)

	ctx := context.Background()
	const userID = int64(42)
	_, _ = svc.Start(ctx, userID, domain.KindTicket)
	_, _ = svc.ChooseOrigin(ctx, userID, "A")
	_, _ = svc.ChooseDestination(ctx, userID, "C")
	_, _ = svc.ChooseDate(ctx, userID, "01.09.2026")
	if _, err := svc.ChooseRoute(ctx, userID, "KV-LV"); err != nil {
		t.Fatalf("route: %v", err)
	}

	if _, err := svc.AddPassenger(ctx, userID, "P One", 1); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := svc.AddPassenger(ctx, userID, "P Two", 1); err != nil {
		t.Fatalf("second: %v", err)
	}
	if _, err := svc.AddPassenger(ctx, userID, "P Three", 1); err == nil {
		t.Fatal("third passenger must exceed the 2-seat inventory")
	}
}

func TestSession_CancelDropsDraftOnly(t *testing.T) {
	svc, _ := sessionFixture(t)
	ctx := context.Background()
	const userID = int64(42)

	_, _ = svc.Start(ctx, userID, domain.KindTicket)
	if err := svc.Cancel(ctx, userID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	draft, err := svc.Current(ctx, userID)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if draft != nil {
		t.Fatal("draft survives cancel")
	}
}

func TestSession_RouteOptionsFilterBySegment(t *testing.T) {
	serving := testRoute(5, 2)

	noSegment := testRoute(5, 2)
	noSegment.ID = 8
	noSegment.Code = "KV-OD"
	noSegment.Stops = noSegment.Stops[2:] // starts at C, cannot serve A->C

	denied := testRoute(5, 2)
	denied.ID = 9
	denied.Code = "KV-TE"
	denied.Disallowed[domain.PairKey{FromStationID: 1, ToStationID: 3}] = true

	repo := &mockRouteRepo{
		listActiveFn: func(ctx context.Context, date time.Time) ([]domain.Route, error) {
			return []domain.Route{*serving, *noSegment, *denied}, nil
		},
	}
	routes := usecases.NewRouteService(repo)
	inventory, _ := inventoryFixture(serving)
	svc := usecases.NewSessionService(newMemSessionStore(), routes, inventory)

	ctx := context.Background()
	const userID = int64(42)
	_, _ = svc.Start(ctx, userID, domain.KindTicket)
	_, _ = svc.ChooseOrigin(ctx, userID, "A")
	_, _ = svc.ChooseDestination(ctx, userID, "C")
	_, _ = svc.ChooseDate(ctx, userID, "01.09.2026")

	options, err := svc.RouteOptions(ctx, userID)
	if err != nil {
		t.Fatalf("route options: %v", err)
	}
	if len(options) != 1 || options[0].Code != "KV-LV" {
		t.Fatalf("options = %v, want only KV-LV", options)
	}
}

type failingSessionStore struct{}

func (failingSessionStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errStoreDown
}
func (failingSessionStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errStoreDown
}
func (failingSessionStore) Delete(ctx context.Context, key string) error {
	return errStoreDown
}

var errStoreDown = errors.New("store down")

func TestSession_StoreFailureIsNotExpiry(t *testing.T) {
	routes := usecases.NewRouteService(&mockRouteRepo{})
	inventory, _ := inventoryFixture(testRoute(5, 2))
	svc := usecases.NewSessionService(failingSessionStore{}, routes, inventory)

	draft, err := svc.Current(context.Background(), 42)
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("want the store error surfaced, got draft=%v err=%v", draft, err)
	}
}
