package domain

import "time"

// ActionPurpose selects the handler a scheduled action fires into.
type ActionPurpose string

const (
	PurposePaymentTimeout   ActionPurpose = "payment_timeout"
	PurposeReminder3H       ActionPurpose = "reminder_3h"
	PurposeReminder1H       ActionPurpose = "reminder_1h"
	PurposePostTripFollowup ActionPurpose = "post_trip_followup"
)

// ScheduledAction is a durable, keyed, one-shot future callback. At most
// one action exists per key; scheduling again for the same key replaces
// the pending one.
type ScheduledAction struct {
	Key      string        `json:"key"`
	FireAt   time.Time     `json:"fire_at"`
	Purpose  ActionPurpose `json:"purpose"`
	Kind     UnitKind      `json:"kind,omitempty"`
	UnitCode string        `json:"unit_code,omitempty"`
	GroupID  string        `json:"group_id,omitempty"`
	OwnerID  int64         `json:"owner_id,omitempty"`
}

// ActionKey builds the stable business key "<purpose>:<ref>" under which
// an action can be replaced or cancelled idempotently.
func ActionKey(purpose ActionPurpose, ref string) string {
	return string(purpose) + ":" + ref
}
