// Package scheduler drives durable, keyed, one-shot delayed actions.
//
// Actions live in a persistent store so reminder horizons and payment
// timeouts survive restarts and deploys. The driver polls for due
// entries, claims them (a claimed entry is removed from the store and
// can never fire twice from it), and dispatches to the handler
// registered for the action's purpose.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/olehbas/marshrut/internal/core/domain"
	"github.com/olehbas/marshrut/internal/core/ports"
	"github.com/olehbas/marshrut/internal/pkg/logging"
	"github.com/olehbas/marshrut/internal/pkg/metrics"
)

// Handler processes one fired action. Handlers must tolerate a second
// accidental firing: they re-check live state and treat a cancelled or
// missing unit as a silent no-op.
type Handler func(ctx context.Context, action domain.ScheduledAction) error

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 50
)

// Driver polls the durable store and fires due actions. It also
// implements ports.ActionScheduler, so usecases schedule and cancel
// through the same component that fires.
type Driver struct {
	actions      ports.ActionRepository
	handlers     map[domain.ActionPurpose]Handler
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time
	log          *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithPollInterval overrides how often due actions are claimed.
func WithPollInterval(d time.Duration) Option {
	return func(dr *Driver) {
		if d > 0 {
			dr.pollInterval = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(dr *Driver) {
		if now != nil {
			dr.now = now
		}
	}
}

// NewDriver creates a Driver over a durable action store.
func NewDriver(actions ports.ActionRepository, opts ...Option) *Driver {
	d := &Driver{
		actions:      actions,
		handlers:     make(map[domain.ActionPurpose]Handler),
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		now:          time.Now,
		log:          logging.Component("scheduler"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register binds a handler to a purpose. Must be called before Run.
func (d *Driver) Register(purpose domain.ActionPurpose, h Handler) {
	d.handlers[purpose] = h
}

// Schedule registers an action, replacing any pending one with the same
// key (last writer wins on the fire time).
func (d *Driver) Schedule(ctx context.Context, action *domain.ScheduledAction) error {
	if action.Key == "" {
		return fmt.Errorf("scheduled action needs a key")
	}
	return d.actions.Upsert(ctx, action)
}

// Cancel drops a pending action. Absent keys are a no-op, including an
// action whose firing is already in progress: a claim removes the row
// first, so cancelling after the handler started cannot stop it. The
// handler's own live-state re-check covers that window.
func (d *Driver) Cancel(ctx context.Context, key string) error {
	return d.actions.Delete(ctx, key)
}

// Run polls until the context is cancelled. Handler failures are logged,
// never fatal: a broken reminder must not take the driver down.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.log.Info("scheduler driver started", "poll_interval", d.pollInterval.String())
	for {
		select {
		case <-ctx.Done():
			d.log.Info("scheduler driver stopped")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick claims and dispatches every currently-due action once.
func (d *Driver) Tick(ctx context.Context) {
	for {
		due, err := d.actions.ClaimDue(ctx, d.now(), d.batchSize)
		if err != nil {
			d.log.Error("claim due actions failed", "error", err)
			return
		}
		if len(due) == 0 {
			return
		}
		for _, action := range due {
			d.dispatch(ctx, action)
		}
		if len(due) < d.batchSize {
			return
		}
	}
}

func (d *Driver) dispatch(ctx context.Context, action domain.ScheduledAction) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("action handler panicked", "key", action.Key, "panic", r)
		}
	}()

	h, ok := d.handlers[action.Purpose]
	if !ok {
		d.log.Warn("no handler for action purpose", "key", action.Key, "purpose", action.Purpose)
		return
	}

	if err := h(ctx, action); err != nil {
		d.log.Error("action handler failed", "key", action.Key, "purpose", action.Purpose, "error", err)
		metrics.ActionsFired.WithLabelValues(string(action.Purpose), "error").Inc()
		return
	}
	metrics.ActionsFired.WithLabelValues(string(action.Purpose), "ok").Inc()
}
