package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// RefundEscalationInput is the input for the refund escalation workflow.
type RefundEscalationInput struct {
	UnitID    int64
	PaymentID string
}

// RefundEscalationWorkflow retries a refund that failed on the hot
// booking path. Money has already been collected, so the retry policy
// is generous; only after it is exhausted does the workflow alert the
// operator. The unit is cancelled only once the gateway confirms the
// refund, never before.
func RefundEscalationWorkflow(ctx workflow.Context, input RefundEscalationInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting refund escalation", "unitID", input.UnitID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Minute,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Hour,
			MaximumAttempts:    10,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: re-read the payment; a stale escalation for an already
	// refunded or cancelled unit ends here.
	var amount int64
	err := workflow.ExecuteActivity(ctx, "LookupRefundable", input.UnitID, input.PaymentID).Get(ctx, &amount)
	if err != nil {
		return err
	}
	if amount == 0 {
		logger.Info("Nothing left to refund", "unitID", input.UnitID)
		return nil
	}

	// Step 2: retry the refund against the gateway.
	err = workflow.ExecuteActivity(ctx, "ExecuteRefund", input.PaymentID, amount).Get(ctx, nil)
	if err != nil {
		logger.Warn("refund retries exhausted, alerting operator", "error", err)
		_ = workflow.ExecuteActivity(ctx, "AlertOperator", input.UnitID, input.PaymentID).Get(ctx, nil)
		return err
	}

	// Step 3: refund confirmed — release the unit and tell the owner.
	err = workflow.ExecuteActivity(ctx, "ReleaseUnit", input.UnitID).Get(ctx, nil)
	if err != nil {
		return err
	}
	_ = workflow.ExecuteActivity(ctx, "NotifyRefunded", input.UnitID).Get(ctx, nil)

	logger.Info("Refund escalation complete", "unitID", input.UnitID)
	return nil
}
