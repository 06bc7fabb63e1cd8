package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/procura/pkg/schema"
)

func payload(t *testing.T, p EventPayload) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(p)
	require.NoError(t, err)
	return b
}

func TestAppendEvent_MonotonicSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := &ExecutionEvent{ExecutionID: "exec-1", Type: EventActionCompleted, ActionIndex: i}
		require.NoError(t, s.AppendEvent(ctx, e))
		assert.Equal(t, int64(i+1), e.Sequence, "sequence should be monotonic")
		assert.NotZero(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestAppendEvent_ExecutionScopedSequences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &ExecutionEvent{ExecutionID: "exec-a", Type: EventExecutionStarted, ActionIndex: -1}
	b := &ExecutionEvent{ExecutionID: "exec-b", Type: EventExecutionStarted, ActionIndex: -1}
	require.NoError(t, s.AppendEvent(ctx, a))
	require.NoError(t, s.AppendEvent(ctx, b))
	assert.Equal(t, int64(1), a.Sequence)
	assert.Equal(t, int64(1), b.Sequence)
}

func TestAppendEvent_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_ = s.AppendEvent(ctx, &ExecutionEvent{ExecutionID: "exec-c", Type: EventActionCompleted, ActionIndex: idx})
		}(i)
	}
	wg.Wait()

	events, err := s.ListEvents(ctx, "exec-c")
	require.NoError(t, err)
	require.Len(t, events, 10)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
	}
}

func TestListEvents_PayloadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, &ExecutionEvent{
		ExecutionID: "exec-1",
		Type:        EventActionFailed,
		ActionIndex: 0,
		Payload:     payload(t, EventPayload{ActionType: schema.ActionCreateTask, Error: "boom"}),
	}))

	events, err := s.ListEvents(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"action_type":"create_task","error":"boom"}`, string(events[0].Payload))
}

func TestReplayActions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	events := []*ExecutionEvent{
		{ExecutionID: "exec-1", Type: EventExecutionStarted, ActionIndex: -1},
		{ExecutionID: "exec-1", Type: EventActionCompleted, ActionIndex: 0,
			Payload: payload(t, EventPayload{ActionType: schema.ActionSendNotification, DurationMs: 3})},
		{ExecutionID: "exec-1", Type: EventActionFailed, ActionIndex: 1,
			Payload: payload(t, EventPayload{ActionType: schema.ActionCreateTask, Error: "boom"})},
		{ExecutionID: "exec-1", Type: EventActionSkipped, ActionIndex: 2,
			Payload: payload(t, EventPayload{ActionType: "unknown_type"})},
		{ExecutionID: "exec-1", Type: EventExecutionCompleted, ActionIndex: -1},
	}
	for _, e := range events {
		require.NoError(t, s.AppendEvent(ctx, e))
	}

	states, err := ReplayActions(ctx, s, "exec-1")
	require.NoError(t, err)
	require.Len(t, states, 3)

	assert.Equal(t, 0, states[0].Index)
	assert.Equal(t, "completed", states[0].Status)
	assert.Equal(t, schema.ActionSendNotification, states[0].Type)
	assert.Equal(t, int64(3), states[0].DurationMs)

	assert.Equal(t, "failed", states[1].Status)
	assert.Equal(t, "boom", states[1].Error)

	assert.Equal(t, "skipped", states[2].Status)
	assert.Equal(t, schema.ActionType("unknown_type"), states[2].Type)
}

func TestReplayActions_Empty(t *testing.T) {
	s := newTestStore(t)
	states, err := ReplayActions(context.Background(), s, "nothing")
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestReplayActions_SequenceGap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, &ExecutionEvent{ExecutionID: "exec-gap", Type: EventExecutionStarted, ActionIndex: -1}))
	_, err := s.DB().ExecContext(ctx,
		`INSERT INTO execution_events (execution_id, event_type, action_index, sequence, timestamp) VALUES (?, ?, ?, ?, ?)`,
		"exec-gap", EventActionCompleted, 0, 3, time.Now().UTC())
	require.NoError(t, err)

	_, err = ReplayActions(ctx, s, "exec-gap")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeStore))
}
