package actions

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/internal/templater"
	"github.com/rendis/procura/pkg/schema"
)

// Action is one typed side-effecting handler a rule can invoke.
type Action interface {
	Type() schema.ActionType
	Describe() string
	Execute(ctx context.Context, input Input) (*Output, error)
}

// Input is everything a handler sees for one action of one execution.
type Input struct {
	ExecutionID string                `json:"execution_id"`
	RuleID      string                `json:"rule_id"`
	Action      schema.WorkflowAction `json:"action"`
	TriggerData schema.TriggerData    `json:"trigger_data"`
}

// Output summarizes what a handler did. Data is free-form and only logged and audited.
type Output struct {
	Data map[string]any `json:"data,omitempty"`
}

// Info is a summary of a registered action for listing.
type Info struct {
	Type        schema.ActionType `json:"type"`
	Description string            `json:"description,omitempty"`
}

// Deps are the collaborators shared by the built-in handlers.
type Deps struct {
	Store     store.Store
	Templater *templater.Templater
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = func() string { return uuid.New().String() }
	}
	if d.Templater == nil {
		d.Templater = templater.New(nil, d.Logger)
	}
	return d
}

func output(kv ...any) *Output {
	data := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			data[k] = kv[i+1]
		}
	}
	return &Output{Data: data}
}

// noop reports an action that had nothing to do with this payload.
func noop(reason string) *Output {
	return output("skipped", true, "reason", reason)
}

// decodeParams maps the free-form params onto a typed struct via its json tags.
func decodeParams(params map[string]any, dst any) error {
	if len(params) == 0 {
		return nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "encode params: %s", err.Error()).WithCause(err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid params: %s", err.Error()).WithCause(err)
	}
	return nil
}

func metadata(in Input, extra map[string]any) json.RawMessage {
	m := map[string]any{
		"execution_id": in.ExecutionID,
		"rule_id":      in.RuleID,
		"action_type":  string(in.Action.Type),
	}
	for k, v := range extra {
		m[k] = v
	}
	b, _ := json.Marshal(m)
	return b
}
