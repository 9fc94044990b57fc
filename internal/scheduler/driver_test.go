package scheduler_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/olehbas/marshrut/internal/core/domain"
	"github.com/olehbas/marshrut/internal/scheduler"
)

// memActions mirrors the store contract: Upsert replaces by key and
// ClaimDue removes what it returns.
type memActions struct {
	mu      sync.Mutex
	actions map[string]domain.ScheduledAction
}

func newMemActions() *memActions {
	return &memActions{actions: make(map[string]domain.ScheduledAction)}
}

func (m *memActions) Upsert(ctx context.Context, a *domain.ScheduledAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[a.Key] = *a
	return nil
}

func (m *memActions) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actions, key)
	return nil
}

func (m *memActions) Get(ctx context.Context, key string) (*domain.ScheduledAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[key]
	if !ok {
		return nil, domain.ErrActionNotFound
	}
	return &a, nil
}

func (m *memActions) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []domain.ScheduledAction
	for _, a := range m.actions {
		if !a.FireAt.After(now) {
			due = append(due, a)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].FireAt.Before(due[j].FireAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	for _, a := range due {
		delete(m.actions, a.Key)
	}
	return due, nil
}

func (m *memActions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.actions)
}

func TestSchedule_ReplacesByKey(t *testing.T) {
	store := newMemActions()
	driver := scheduler.NewDriver(store)
	ctx := context.Background()

	first := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	if err := driver.Schedule(ctx, &domain.ScheduledAction{
		Key: "reminder_3h:u1", FireAt: first, Purpose: domain.PurposeReminder3H,
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	moved := first.Add(2 * time.Hour)
	if err := driver.Schedule(ctx, &domain.ScheduledAction{
		Key: "reminder_3h:u1", FireAt: moved, Purpose: domain.PurposeReminder3H,
	}); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	if store.count() != 1 {
		t.Fatalf("store has %d actions, want 1", store.count())
	}
	a, err := store.Get(ctx, "reminder_3h:u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !a.FireAt.Equal(moved) {
		t.Errorf("fire_at = %v, want %v (last writer wins)", a.FireAt, moved)
	}
}

func TestSchedule_RequiresKey(t *testing.T) {
	driver := scheduler.NewDriver(newMemActions())
	if err := driver.Schedule(context.Background(), &domain.ScheduledAction{}); err == nil {
		t.Fatal("keyless action must be rejected")
	}
}

func TestCancel_AbsentKeyIsNoop(t *testing.T) {
	driver := scheduler.NewDriver(newMemActions())
	if err := driver.Cancel(context.Background(), "payment_timeout:nope"); err != nil {
		t.Fatalf("cancel of absent key: %v", err)
	}
}

func TestTick_FiresDueActionsOnce(t *testing.T) {
	store := newMemActions()
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	driver := scheduler.NewDriver(store, scheduler.WithClock(func() time.Time { return now }))

	var mu sync.Mutex
	fired := map[string]int{}
	driver.Register(domain.PurposeReminder3H, func(ctx context.Context, a domain.ScheduledAction) error {
		mu.Lock()
		defer mu.Unlock()
		fired[a.Key]++
		return nil
	})

	ctx := context.Background()
	_ = driver.Schedule(ctx, &domain.ScheduledAction{
		Key: "reminder_3h:due", FireAt: now.Add(-time.Minute), Purpose: domain.PurposeReminder3H,
	})
	_ = driver.Schedule(ctx, &domain.ScheduledAction{
		Key: "reminder_3h:future", FireAt: now.Add(time.Hour), Purpose: domain.PurposeReminder3H,
	})

	driver.Tick(ctx)
	driver.Tick(ctx)

	if fired["reminder_3h:due"] != 1 {
		t.Errorf("due action fired %d times, want exactly 1", fired["reminder_3h:due"])
	}
	if fired["reminder_3h:future"] != 0 {
		t.Error("future action fired early")
	}
	if store.count() != 1 {
		t.Errorf("store has %d actions, want the future one only", store.count())
	}
}

func TestTick_HandlerFailureIsNotFatal(t *testing.T) {
	store := newMemActions()
	now := time.Now()
	driver := scheduler.NewDriver(store, scheduler.WithClock(func() time.Time { return now }))

	var fired []string
	driver.Register(domain.PurposePaymentTimeout, func(ctx context.Context, a domain.ScheduledAction) error {
		panic("handler bug")
	})
	driver.Register(domain.PurposeReminder1H, func(ctx context.Context, a domain.ScheduledAction) error {
		fired = append(fired, a.Key)
		return nil
	})

	ctx := context.Background()
	_ = driver.Schedule(ctx, &domain.ScheduledAction{
		Key: "payment_timeout:g1", FireAt: now.Add(-2 * time.Minute), Purpose: domain.PurposePaymentTimeout,
	})
	_ = driver.Schedule(ctx, &domain.ScheduledAction{
		Key: "reminder_1h:u1", FireAt: now.Add(-time.Minute), Purpose: domain.PurposeReminder1H,
	})

	driver.Tick(ctx)

	if len(fired) != 1 || fired[0] != "reminder_1h:u1" {
		t.Errorf("fired = %v, panicking sibling must not stop the batch", fired)
	}
	if store.count() != 0 {
		t.Errorf("store has %d actions, want 0", store.count())
	}
}

func TestCancel_DuringFlightWindow(t *testing.T) {
	store := newMemActions()
	now := time.Now()
	driver := scheduler.NewDriver(store, scheduler.WithClock(func() time.Time { return now }))

	// Cancelling after the claim cannot stop the handler; the handler's
	// live-state re-check owns that window. Here the cancel lands first,
	// so nothing fires.
	fired := 0
	driver.Register(domain.PurposeReminder3H, func(ctx context.Context, a domain.ScheduledAction) error {
		fired++
		return nil
	})

	ctx := context.Background()
	_ = driver.Schedule(ctx, &domain.ScheduledAction{
		Key: "reminder_3h:u1", FireAt: now.Add(-time.Minute), Purpose: domain.PurposeReminder3H,
	})
	_ = driver.Cancel(ctx, "reminder_3h:u1")

	driver.Tick(ctx)
	if fired != 0 {
		t.Errorf("cancelled action fired %d times", fired)
	}
}
