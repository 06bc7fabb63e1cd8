package schema

import "time"

// ActionType enumerates the kinds of actions a rule can declare.
type ActionType string

const (
	ActionSendNotification ActionType = "send_notification"
	ActionAutoAssign       ActionType = "auto_assign"
	ActionEscalateApproval ActionType = "escalate_approval"
	ActionAutoApprove      ActionType = "auto_approve"
	ActionCreateTask       ActionType = "create_task"
	ActionUpdateStatus     ActionType = "update_status"
)

// KnownActionTypes lists every action type with a built-in handler.
var KnownActionTypes = []ActionType{
	ActionSendNotification,
	ActionAutoAssign,
	ActionEscalateApproval,
	ActionAutoApprove,
	ActionCreateTask,
	ActionUpdateStatus,
}

// WorkflowRule binds a trigger type to an ordered list of actions.
type WorkflowRule struct {
	ID                string           `json:"id" yaml:"id"`
	Name              string           `json:"name" yaml:"name"`
	Description       string           `json:"description,omitempty" yaml:"description,omitempty"`
	TriggerType       string           `json:"trigger_type" yaml:"trigger_type"`
	TriggerConditions map[string]any   `json:"trigger_conditions,omitempty" yaml:"trigger_conditions,omitempty"`
	Actions           []WorkflowAction `json:"actions" yaml:"actions"`
	Priority          int              `json:"priority" yaml:"priority"`
	DelayMinutes      int              `json:"delay_minutes,omitempty" yaml:"delay_minutes,omitempty"`
	Active            bool             `json:"is_active" yaml:"is_active"`
	CreatedAt         time.Time        `json:"created_at" yaml:"-"`
	UpdatedAt         time.Time        `json:"updated_at" yaml:"-"`
}

// WorkflowAction is one typed, parameterized step of a rule.
type WorkflowAction struct {
	Type   ActionType     `json:"type" yaml:"type"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// StringParam returns params[key] when it is a non-empty string.
func (a WorkflowAction) StringParam(key string) string {
	if a.Params == nil {
		return ""
	}
	s, _ := a.Params[key].(string)
	return s
}

// StringsParam returns params[key] as a string slice. Non-string items are dropped.
func (a WorkflowAction) StringsParam(key string) []string {
	if a.Params == nil {
		return nil
	}
	switch v := a.Params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
