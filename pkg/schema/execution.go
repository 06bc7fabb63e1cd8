package schema

import "time"

// ExecutionStatus represents the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusSkipped   ExecutionStatus = "skipped"
)

// IsTerminal reports whether the execution will never run again.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusSkipped
}

// ActionStatus is the outcome of one attempted action.
type ActionStatus string

const (
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

// TriggerData is the opaque payload snapshot a trigger carries.
type TriggerData map[string]any

// String returns data[key] when it is a non-empty string.
func (d TriggerData) String(key string) string {
	if d == nil {
		return ""
	}
	s, _ := d[key].(string)
	return s
}

// Well-known trigger_data keys.
const (
	KeyClientID  = "client_id"
	KeyVendorID  = "vendor_id"
	KeyRequestID = "request_id"
	KeyOfferID   = "offer_id"
	KeyOrderID   = "order_id"
	KeyCategory  = "category"
)

// WorkflowExecution is one run of a rule's action list against one trigger payload.
type WorkflowExecution struct {
	ID              string          `json:"id"`
	RuleID          string          `json:"rule_id"`
	TriggerType     string          `json:"trigger_type"`
	TriggerData     TriggerData     `json:"trigger_data"`
	ExecutedActions []ActionResult  `json:"executed_actions"`
	Status          ExecutionStatus `json:"status"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
	DuplicateOf     string          `json:"duplicate_of,omitempty"`
	ScheduledFor    *time.Time      `json:"scheduled_for,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// ActionResult records the outcome of one declared action.
type ActionResult struct {
	Action     WorkflowAction `json:"action"`
	Status     ActionStatus   `json:"status"`
	Error      string         `json:"error,omitempty"`
	Skipped    bool           `json:"skipped,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	ExecutedAt time.Time      `json:"executed_at"`
}
