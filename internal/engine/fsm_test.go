package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/pkg/schema"
)

// mockAppender records appended events for assertions.
type mockAppender struct {
	mu     sync.Mutex
	events []*store.ExecutionEvent
	err    error
}

func (m *mockAppender) AppendEvent(_ context.Context, event *store.ExecutionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func TestExecutionFSM_ValidTransitions(t *testing.T) {
	app := &mockAppender{}
	fsm := NewExecutionFSM(app, nil)
	ctx := context.Background()

	require.NoError(t, fsm.Transition(ctx, "exec-1", schema.ExecutionStatusPending, schema.ExecutionStatusRunning, nil, nil))
	require.NoError(t, fsm.Transition(ctx, "exec-1", schema.ExecutionStatusRunning, schema.ExecutionStatusCompleted, nil, nil))

	require.Len(t, app.events, 2)
	assert.Equal(t, store.EventExecutionStarted, app.events[0].Type)
	assert.Equal(t, store.EventExecutionCompleted, app.events[1].Type)
	assert.Equal(t, -1, app.events[0].ActionIndex)
	assert.Equal(t, "exec-1", app.events[1].ExecutionID)
}

func TestExecutionFSM_InvalidTransitions(t *testing.T) {
	fsm := NewExecutionFSM(&mockAppender{}, nil)
	ctx := context.Background()

	cases := []struct {
		from, to schema.ExecutionStatus
	}{
		{schema.ExecutionStatusPending, schema.ExecutionStatusCompleted},
		{schema.ExecutionStatusCompleted, schema.ExecutionStatusRunning},
		{schema.ExecutionStatusCompleted, schema.ExecutionStatusSkipped},
		{schema.ExecutionStatusSkipped, schema.ExecutionStatusRunning},
		{schema.ExecutionStatusRunning, schema.ExecutionStatusPending},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			persisted := false
			err := fsm.Transition(ctx, "exec-1", tc.from, tc.to, func() error { persisted = true; return nil }, nil)
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidTransition))
			assert.False(t, persisted, "persist must not run for an illegal transition")
		})
	}
}

func TestExecutionFSM_PersistFailureEmitsNothing(t *testing.T) {
	app := &mockAppender{}
	fsm := NewExecutionFSM(app, nil)

	err := fsm.Transition(context.Background(), "exec-1", schema.ExecutionStatusPending, schema.ExecutionStatusRunning,
		func() error { return errors.New("disk full") }, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeStore))
	assert.Empty(t, app.events)
}

func TestExecutionFSM_PersistStructuredErrorPassesThrough(t *testing.T) {
	fsm := NewExecutionFSM(&mockAppender{}, nil)

	err := fsm.Transition(context.Background(), "exec-1", schema.ExecutionStatusPending, schema.ExecutionStatusRunning,
		func() error { return schema.NewError(schema.ErrCodeConflict, "already running") }, nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
}

func TestExecutionFSM_AppendFailureIsLogged(t *testing.T) {
	fsm := NewExecutionFSM(&mockAppender{err: errors.New("audit down")}, nil)

	err := fsm.Transition(context.Background(), "exec-1", schema.ExecutionStatusPending, schema.ExecutionStatusSkipped, nil, nil)
	assert.NoError(t, err)
}

func TestExecutionFSM_SkipPayload(t *testing.T) {
	app := &mockAppender{}
	fsm := NewExecutionFSM(app, nil)

	require.NoError(t, fsm.Transition(context.Background(), "exec-2", schema.ExecutionStatusPending, schema.ExecutionStatusSkipped,
		nil, &store.EventPayload{DuplicateOf: "exec-1"}))
	require.Len(t, app.events, 1)
	assert.Equal(t, store.EventExecutionSkipped, app.events[0].Type)

	var p store.EventPayload
	require.NoError(t, json.Unmarshal(app.events[0].Payload, &p))
	assert.Equal(t, "exec-1", p.DuplicateOf)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(schema.ExecutionStatusPending, schema.ExecutionStatusRunning))
	assert.True(t, CanTransition(schema.ExecutionStatusPending, schema.ExecutionStatusSkipped))
	assert.True(t, CanTransition(schema.ExecutionStatusRunning, schema.ExecutionStatusSkipped))
	assert.False(t, CanTransition("bogus", schema.ExecutionStatusRunning))
}
