package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/pkg/schema"
)

// EventAppender is satisfied by the Store; the FSM emits audit events through it.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.ExecutionEvent) error
}

// ValidExecutionTransitions defines the allowed execution status transitions.
var ValidExecutionTransitions = map[schema.ExecutionStatus][]schema.ExecutionStatus{
	schema.ExecutionStatusPending:   {schema.ExecutionStatusRunning, schema.ExecutionStatusSkipped},
	schema.ExecutionStatusRunning:   {schema.ExecutionStatusCompleted, schema.ExecutionStatusSkipped},
	schema.ExecutionStatusCompleted: {},
	schema.ExecutionStatusSkipped:   {},
}

// ExecutionFSM guards execution status transitions and records them in the audit log.
type ExecutionFSM struct {
	appender EventAppender
	logger   *slog.Logger
}

// NewExecutionFSM creates an FSM that emits events via appender.
func NewExecutionFSM(appender EventAppender, logger *slog.Logger) *ExecutionFSM {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecutionFSM{appender: appender, logger: logger}
}

// Transition validates from -> to, runs persist, then appends the matching event.
// persist is the conditional store write that actually moves the row; when it
// fails nothing is emitted. A failed event append after a successful persist is
// logged, not returned: the row has already moved.
func (f *ExecutionFSM) Transition(ctx context.Context, executionID string, from, to schema.ExecutionStatus,
	persist func() error, payload *store.EventPayload) error {
	if !CanTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid execution transition: %s -> %s", from, to).
			WithDetails(map[string]any{"execution_id": executionID, "from": string(from), "to": string(to)})
	}

	if persist != nil {
		if err := persist(); err != nil {
			var se *schema.Error
			if errors.As(err, &se) {
				return err
			}
			return schema.NewErrorf(schema.ErrCodeStore, "persist %s -> %s: %s", from, to, err.Error()).WithCause(err)
		}
	}

	eventType := executionEventType(to)
	if eventType == "" {
		return nil
	}
	event := &store.ExecutionEvent{ExecutionID: executionID, Type: eventType, ActionIndex: -1}
	if payload != nil {
		event.Payload, _ = json.Marshal(payload)
	}
	if err := f.appender.AppendEvent(ctx, event); err != nil {
		f.logger.ErrorContext(ctx, "append execution event failed", "event_type", eventType, "error", err)
	}
	return nil
}

// CanTransition reports whether from -> to is a legal execution transition.
func CanTransition(from, to schema.ExecutionStatus) bool {
	return slices.Contains(ValidExecutionTransitions[from], to)
}

func executionEventType(to schema.ExecutionStatus) string {
	switch to {
	case schema.ExecutionStatusRunning:
		return store.EventExecutionStarted
	case schema.ExecutionStatusCompleted:
		return store.EventExecutionCompleted
	case schema.ExecutionStatusSkipped:
		return store.EventExecutionSkipped
	default:
		return ""
	}
}
