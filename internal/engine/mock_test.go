package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rendis/procura/internal/actions"
	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/pkg/schema"
)

// mockStore is a minimal in-memory Store covering what the controller and the
// notification handlers touch.
type mockStore struct {
	store.Store

	mu            sync.Mutex
	rules         map[string]*schema.WorkflowRule
	executions    map[string]*schema.WorkflowExecution
	keys          map[string]string
	events        []*store.ExecutionEvent
	profiles      []*store.UserProfile
	notifications []*store.Notification
	appendErr     error
}

func newMockStore() *mockStore {
	return &mockStore{
		rules:      make(map[string]*schema.WorkflowRule),
		executions: make(map[string]*schema.WorkflowExecution),
		keys:       make(map[string]string),
	}
}

func (m *mockStore) addRule(r *schema.WorkflowRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = r
}

func (m *mockStore) addExecution(e *schema.WorkflowExecution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Status == "" {
		e.Status = schema.ExecutionStatusPending
	}
	m.executions[e.ID] = e
}

func (m *mockStore) execution(id string) *schema.WorkflowExecution {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.executions[id]
	return &cp
}

func (m *mockStore) eventTypes(executionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		if e.ExecutionID == executionID {
			out = append(out, e.Type)
		}
	}
	return out
}

func (m *mockStore) GetRule(_ context.Context, id string) (*schema.WorkflowRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow rule %q not found", id)
	}
	cp := *r
	return &cp, nil
}

func (m *mockStore) GetExecution(_ context.Context, id string) (*schema.WorkflowExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow execution %q not found", id)
	}
	cp := *e
	return &cp, nil
}

func (m *mockStore) transition(id string, from []schema.ExecutionStatus, apply func(e *schema.WorkflowExecution)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "workflow execution %q not found", id)
	}
	for _, f := range from {
		if e.Status == f {
			apply(e)
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeConflict, "workflow execution %q is %s", id, e.Status)
}

func (m *mockStore) StartExecution(_ context.Context, id string, at time.Time) error {
	return m.transition(id, []schema.ExecutionStatus{schema.ExecutionStatusPending}, func(e *schema.WorkflowExecution) {
		e.Status = schema.ExecutionStatusRunning
		e.StartedAt = &at
	})
}

func (m *mockStore) CompleteExecution(_ context.Context, id string, o store.ExecutionOutcome) error {
	return m.transition(id, []schema.ExecutionStatus{schema.ExecutionStatusRunning}, func(e *schema.WorkflowExecution) {
		e.Status = schema.ExecutionStatusCompleted
		e.ExecutedActions = o.ExecutedActions
		e.ExecutionTimeMs = o.ExecutionTimeMs
		at := o.CompletedAt
		e.CompletedAt = &at
	})
}

func (m *mockStore) SkipExecution(_ context.Context, id, duplicateOf string, at time.Time) error {
	return m.transition(id, []schema.ExecutionStatus{schema.ExecutionStatusPending, schema.ExecutionStatusRunning},
		func(e *schema.WorkflowExecution) {
			e.Status = schema.ExecutionStatusSkipped
			e.DuplicateOf = duplicateOf
			e.CompletedAt = &at
		})
}

func (m *mockStore) ClaimIdempotencyKey(_ context.Context, key, executionID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.keys[key]
	if !ok {
		m.keys[key] = executionID
		owner = executionID
	}
	if e, ok := m.executions[executionID]; ok {
		e.IdempotencyKey = key
	}
	return owner, owner == executionID, nil
}

func (m *mockStore) AppendEvent(_ context.Context, event *store.ExecutionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	var seq int64
	for _, e := range m.events {
		if e.ExecutionID == event.ExecutionID {
			seq = e.Sequence
		}
	}
	event.Sequence = seq + 1
	event.Timestamp = time.Now().UTC()
	m.events = append(m.events, event)
	return nil
}

func (m *mockStore) ListEvents(_ context.Context, executionID string) ([]*store.ExecutionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.ExecutionEvent
	for _, e := range m.events {
		if e.ExecutionID == executionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) ListUserProfiles(_ context.Context, f store.ProfileFilter) ([]*store.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.UserProfile
	for _, p := range m.profiles {
		if f.Role == "" || p.Role == f.Role {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockStore) CreateNotifications(_ context.Context, ns []*store.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, ns...)
	return nil
}

// funcAction is a test handler backed by a closure.
type funcAction struct {
	typ schema.ActionType
	fn  func(ctx context.Context, in actions.Input) (*actions.Output, error)
}

func (a *funcAction) Type() schema.ActionType { return a.typ }
func (a *funcAction) Describe() string        { return "test action " + string(a.typ) }
func (a *funcAction) Execute(ctx context.Context, in actions.Input) (*actions.Output, error) {
	return a.fn(ctx, in)
}

func okAction(t schema.ActionType) *funcAction {
	return &funcAction{typ: t, fn: func(context.Context, actions.Input) (*actions.Output, error) {
		return &actions.Output{}, nil
	}}
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestController(s *mockStore, cfg Config, handlers ...actions.Action) *Controller {
	reg := actions.NewRegistry()
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			panic(err)
		}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return testNow }
	}
	return NewController(s, actions.NewDispatcher(reg, nil), cfg, nil)
}
