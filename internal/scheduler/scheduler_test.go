package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/procura/internal/engine"
	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/pkg/schema"
)

// mockSchedulerStore serves due executions for scheduler tests.
type mockSchedulerStore struct {
	store.Store
	mu      sync.Mutex
	due     []*schema.WorkflowExecution
	listErr error
	lastNow time.Time
}

func (m *mockSchedulerStore) ListDueExecutions(_ context.Context, now time.Time, limit int) ([]*schema.WorkflowExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastNow = now
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := m.due
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type recordingRunner struct {
	mu    sync.Mutex
	calls []engine.Invocation
	block chan struct{}
	err   error
	count atomic.Int32
}

func (r *recordingRunner) Execute(_ context.Context, inv engine.Invocation) (*engine.Result, error) {
	r.count.Add(1)
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.calls = append(r.calls, inv)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return &engine.Result{Success: true, ExecutionID: inv.ExecutionID, Status: schema.ExecutionStatusCompleted}, nil
}

func dueExec(id string) *schema.WorkflowExecution {
	at := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	return &schema.WorkflowExecution{
		ID:           id,
		RuleID:       "rule-1",
		TriggerType:  "offer_submitted",
		TriggerData:  schema.TriggerData{"offer_id": "O-" + id},
		Status:       schema.ExecutionStatusPending,
		ScheduledFor: &at,
	}
}

func TestSweep_RunsDueExecutions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := &mockSchedulerStore{due: []*schema.WorkflowExecution{dueExec("e1"), dueExec("e2")}}
	r := &recordingRunner{}
	s := New(st, r, Config{PoolSize: 2, Now: func() time.Time { return now }}, nil)
	defer s.Stop()

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	s.Wait()

	assert.Equal(t, now, st.lastNow)
	require.Len(t, r.calls, 2)
	ids := []string{r.calls[0].ExecutionID, r.calls[1].ExecutionID}
	assert.ElementsMatch(t, []string{"e1", "e2"}, ids)
	for _, c := range r.calls {
		assert.Equal(t, "offer_submitted", c.TriggerType)
		assert.Equal(t, "O-"+c.ExecutionID, c.TriggerData.String("offer_id"))
	}
	assert.Equal(t, int64(2), s.Metrics().Completed)
}

func TestSweep_SkipsInFlight(t *testing.T) {
	st := &mockSchedulerStore{due: []*schema.WorkflowExecution{dueExec("e1")}}
	r := &recordingRunner{block: make(chan struct{})}
	s := New(st, r, Config{PoolSize: 2}, nil)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Eventually(t, func() bool { return r.count.Load() == 1 }, time.Second, 5*time.Millisecond)

	n, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "an execution already running must not be resubmitted")

	close(r.block)
	s.Wait()
	assert.Equal(t, int32(1), r.count.Load())
	assert.Equal(t, int64(1), s.Metrics().Deduped)
}

func TestSweep_BatchSize(t *testing.T) {
	st := &mockSchedulerStore{due: []*schema.WorkflowExecution{dueExec("e1"), dueExec("e2"), dueExec("e3")}}
	r := &recordingRunner{}
	s := New(st, r, Config{BatchSize: 2}, nil)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	s.Wait()
}

func TestSweep_StoreError(t *testing.T) {
	st := &mockSchedulerStore{listErr: errors.New("db closed")}
	s := New(st, &recordingRunner{}, Config{}, nil)

	_, err := s.Sweep(context.Background())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeStore))
}

func TestSweep_RunnerErrorCountsAsFailed(t *testing.T) {
	st := &mockSchedulerStore{due: []*schema.WorkflowExecution{dueExec("e1")}}
	r := &recordingRunner{err: schema.NewError(schema.ErrCodeNotFound, "rule deleted")}
	s := New(st, r, Config{}, nil)

	_, err := s.Sweep(context.Background())
	require.NoError(t, err)
	s.Wait()
	assert.Equal(t, int64(1), s.Metrics().Failed)
}

func TestSweep_ConflictIsNotAFailure(t *testing.T) {
	st := &mockSchedulerStore{due: []*schema.WorkflowExecution{dueExec("e1")}}
	r := &recordingRunner{err: schema.NewError(schema.ErrCodeConflict, "already running")}
	s := New(st, r, Config{}, nil)

	_, err := s.Sweep(context.Background())
	require.NoError(t, err)
	s.Wait()
	assert.Equal(t, int64(0), s.Metrics().Failed)
	assert.Equal(t, int64(1), s.Metrics().Completed)
}

func TestStart_RunsInitialSweep(t *testing.T) {
	st := &mockSchedulerStore{due: []*schema.WorkflowExecution{dueExec("e1")}}
	r := &recordingRunner{}
	s := New(st, r, Config{Spec: "@every 1h"}, nil)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return r.count.Load() == 1 }, time.Second, 5*time.Millisecond)

	assert.Error(t, s.Start(context.Background()), "second start must fail")
	s.Stop()
	s.Stop()
}

func TestStart_InvalidSpec(t *testing.T) {
	s := New(&mockSchedulerStore{}, &recordingRunner{}, Config{Spec: "every now and then"}, nil)
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}
