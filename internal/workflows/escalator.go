package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
)

// Escalator implements ports.RefundEscalator by starting a
// RefundEscalationWorkflow. The workflow ID is derived from the unit so
// a double escalation of the same refund dedupes on the server.
type Escalator struct {
	temporal  client.Client
	taskQueue string
}

func NewEscalator(c client.Client, taskQueue string) *Escalator {
	return &Escalator{temporal: c, taskQueue: taskQueue}
}

func (e *Escalator) EscalateRefund(ctx context.Context, unitID int64, paymentID string) error {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("refund-unit-%d", unitID),
		TaskQueue: e.taskQueue,
	}
	_, err := e.temporal.ExecuteWorkflow(ctx, opts, RefundEscalationWorkflow, RefundEscalationInput{
		UnitID:    unitID,
		PaymentID: paymentID,
	})
	if err != nil {
		return fmt.Errorf("start refund workflow: %w", err)
	}
	return nil
}
