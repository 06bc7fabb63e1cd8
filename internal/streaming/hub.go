// Package streaming fans execution audit events out to live subscribers.
package streaming

import (
	"context"
	"encoding/json"

	"github.com/rendis/procura/internal/store"
)

// StreamEvent is one audit event as seen by a live subscriber.
type StreamEvent struct {
	ExecutionID string          `json:"execution_id"`
	ActionIndex int             `json:"action_index"`
	EventType   string          `json:"event_type"`
	Sequence    int64           `json:"sequence"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// FromAuditEvent converts a persisted audit event.
func FromAuditEvent(e *store.ExecutionEvent) StreamEvent {
	return StreamEvent{
		ExecutionID: e.ExecutionID,
		ActionIndex: e.ActionIndex,
		EventType:   e.Type,
		Sequence:    e.Sequence,
		Payload:     e.Payload,
	}
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	ExecutionID string   `json:"execution_id,omitempty"`
	EventTypes  []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for execution events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
