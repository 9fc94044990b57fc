package workflows

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/olehbas/marshrut/internal/core/domain"
	"github.com/olehbas/marshrut/internal/core/ports"
)

// RefundActivities holds the activity implementations for the refund
// escalation workflow.
type RefundActivities struct {
	Reservations ports.ReservationRepository
	Gateway      ports.PaymentGateway
	Notifier     ports.Notifier
	Scheduler    ports.ActionScheduler

	// OpsUserID receives the alert when refund retries run out.
	OpsUserID int64
}

// LookupRefundable returns the amount still owed for the unit, or zero
// when the escalation is stale (unit gone, already cancelled, or the
// payment already reversed).
func (a *RefundActivities) LookupRefundable(ctx context.Context, unitID int64, paymentID string) (int64, error) {
	unit, err := a.Reservations.GetByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, domain.ErrUnitNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("load unit %d: %w", unitID, err)
	}
	if unit.State != domain.StatePaid {
		return 0, nil
	}

	payment, err := a.Gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		return 0, fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}
	if payment.Status == "reversed" {
		return 0, nil
	}
	return payment.Amount, nil
}

// ExecuteRefund pushes the refund through the gateway. Temporal's retry
// policy owns the backoff.
func (a *RefundActivities) ExecuteRefund(ctx context.Context, paymentID string, amount int64) error {
	payment, err := a.Gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}
	if err := a.Gateway.Refund(ctx, payment.OrderID, amount); err != nil {
		return fmt.Errorf("refund order %s: %w", payment.OrderID, err)
	}
	return nil
}

// ReleaseUnit cancels the unit now that its money is back, and drops
// the reminders that would otherwise fire for a dead reservation.
func (a *RefundActivities) ReleaseUnit(ctx context.Context, unitID int64) error {
	unit, err := a.Reservations.GetByID(ctx, unitID)
	if err != nil {
		if errors.Is(err, domain.ErrUnitNotFound) {
			return nil
		}
		return fmt.Errorf("load unit %d: %w", unitID, err)
	}
	if unit.State == domain.StateCancelled {
		return nil
	}

	if err := unit.TransitionTo(domain.StateCancelled); err != nil {
		return err
	}
	if err := a.Reservations.UpdateState(ctx, unit); err != nil {
		return fmt.Errorf("cancel %s: %w", unit.Code, err)
	}

	for _, key := range []string{
		domain.ActionKey(domain.PurposeReminder3H, unit.Code),
		domain.ActionKey(domain.PurposeReminder1H, unit.Code),
	} {
		if err := a.Scheduler.Cancel(ctx, key); err != nil {
			log.Printf("cancel action %s: %v", key, err)
		}
	}
	return nil
}

// NotifyRefunded tells the owner their money is on its way back.
func (a *RefundActivities) NotifyRefunded(ctx context.Context, unitID int64) error {
	unit, err := a.Reservations.GetByID(ctx, unitID)
	if err != nil {
		return nil
	}
	return a.Notifier.SendMessage(ctx, unit.OwnerID,
		fmt.Sprintf("Your reservation %s was cancelled and the payment refunded.", unit.Code))
}

// AlertOperator pages a human once automatic retries are exhausted.
func (a *RefundActivities) AlertOperator(ctx context.Context, unitID int64, paymentID string) error {
	if a.OpsUserID == 0 {
		log.Printf("REFUND STUCK → unit=%d payment=%s (no ops user configured)", unitID, paymentID)
		return nil
	}
	return a.Notifier.SendMessage(ctx, a.OpsUserID,
		fmt.Sprintf("URGENT: refund for unit %d (payment %s) failed after all retries.", unitID, paymentID))
}
