package ports

import (
	"context"
	"time"

	"github.com/olehbas/marshrut/internal/core/domain"
)

// PaymentGateway is the narrow view of the external payment provider.
// Both calls have a bounded timeout and a single attempt; a timeout
// surfaces as domain.ErrGatewayUnavailable.
type PaymentGateway interface {
	FetchPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
	Refund(ctx context.Context, orderID string, amount int64) error
}

// Notifier delivers outbound messages and documents through the chat
// transport. Fire-and-forget: failures are logged by callers, not retried.
type Notifier interface {
	SendMessage(ctx context.Context, userID int64, text string) error
	SendDocument(ctx context.Context, userID int64, caption string, document []byte) error
}

// ActionScheduler registers and cancels durable one-shot actions.
type ActionScheduler interface {
	Schedule(ctx context.Context, action *domain.ScheduledAction) error
	Cancel(ctx context.Context, key string) error
}

// SessionStore holds per-user conversation state with TTL semantics.
type SessionStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RefundEscalator hands a failed refund to an out-of-band retry pipeline.
// Money has already been collected, so a dropped escalation is urgent.
type RefundEscalator interface {
	EscalateRefund(ctx context.Context, unitID int64, paymentID string) error
}
