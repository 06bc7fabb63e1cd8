package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/procura/pkg/schema"
)

// AppendEvent appends an event with a monotonically increasing per-execution sequence.
// The connection pool is capped at one, so the read of MAX(sequence) and the insert
// cannot interleave with another writer.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *ExecutionEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM execution_events WHERE execution_id = ?`, event.ExecutionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO execution_events (execution_id, event_type, action_index, payload, sequence, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ExecutionID, event.Type, event.ActionIndex, nullRaw(event.Payload), seq, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	event.Sequence = seq
	return nil
}

// ListEvents returns every event of an execution ordered by sequence.
func (s *LibSQLStore) ListEvents(ctx context.Context, executionID string) ([]*ExecutionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, event_type, action_index, payload, sequence, timestamp
		 FROM execution_events WHERE execution_id = ? ORDER BY sequence ASC`, executionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*ExecutionEvent
	for rows.Next() {
		e := &ExecutionEvent{}
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.ExecutionID, &e.Type, &e.ActionIndex, &payload, &e.Sequence, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ActionState is the per-action view reconstructed from the audit log.
type ActionState struct {
	Index      int               `json:"index"`
	Type       schema.ActionType `json:"type,omitempty"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	DurationMs int64             `json:"duration_ms,omitempty"`
	At         time.Time         `json:"at"`
}

// EventPayload is the JSON body the engine stores on action events.
type EventPayload struct {
	ActionType  schema.ActionType `json:"action_type,omitempty"`
	Error       string            `json:"error,omitempty"`
	DurationMs  int64             `json:"duration_ms,omitempty"`
	DuplicateOf string            `json:"duplicate_of,omitempty"`
}

// ReplayActions folds an execution's events into per-action states, indexed by
// position in the rule's action list. Returns an error if sequence gaps are detected.
func ReplayActions(ctx context.Context, s Store, executionID string) ([]*ActionState, error) {
	events, err := s.ListEvents(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("list events for replay: %w", err)
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in execution %s: expected %d, got %d", executionID, expected, e.Sequence)
		}
	}

	byIndex := make(map[int]*ActionState)
	var order []int
	for _, e := range events {
		if e.ActionIndex < 0 {
			continue
		}
		var status string
		switch e.Type {
		case EventActionCompleted:
			status = string(schema.ActionStatusCompleted)
		case EventActionFailed:
			status = string(schema.ActionStatusFailed)
		case EventActionSkipped:
			status = "skipped"
		default:
			continue
		}

		st, ok := byIndex[e.ActionIndex]
		if !ok {
			st = &ActionState{Index: e.ActionIndex}
			byIndex[e.ActionIndex] = st
			order = append(order, e.ActionIndex)
		}
		st.Status = status
		st.At = e.Timestamp
		if len(e.Payload) > 0 {
			var p EventPayload
			if err := json.Unmarshal(e.Payload, &p); err == nil {
				st.Type = p.ActionType
				st.Error = p.Error
				st.DurationMs = p.DurationMs
			}
		}
	}

	out := make([]*ActionState, 0, len(order))
	for _, idx := range order {
		out = append(out, byIndex[idx])
	}
	return out, nil
}
