package actions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/pkg/schema"
)

// mockStore records the writes the handlers make. Unimplemented methods panic
// through the embedded nil interface.
type mockStore struct {
	store.Store

	mu            sync.Mutex
	profiles      []*store.UserProfile
	candidates    []*store.VendorCandidate
	offers        map[string]*store.Offer
	notifications []*store.Notification
	tasks         []*store.AutomatedTask
	offerUpdates  []store.OfferApprovalUpdate
	requestStatus map[string]string
	orderStatus   map[string]string

	notifyErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		offers:        make(map[string]*store.Offer),
		requestStatus: make(map[string]string),
		orderStatus:   make(map[string]string),
	}
}

func (m *mockStore) addAdmins(ids ...string) {
	for _, id := range ids {
		m.profiles = append(m.profiles, &store.UserProfile{ID: id, Role: store.RoleAdmin})
	}
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

func (m *mockStore) ListVendorCandidates(_ context.Context, _ string) ([]*store.VendorCandidate, error) {
	return m.candidates, nil
}

func (m *mockStore) CreateNotifications(_ context.Context, ns []*store.Notification) error {
	if m.notifyErr != nil {
		return m.notifyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, ns...)
	return nil
}

func (m *mockStore) GetOffer(_ context.Context, id string) (*store.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "offer %q not found", id)
	}
	cp := *o
	return &cp, nil
}

func (m *mockStore) UpdateOfferApproval(_ context.Context, id string, u store.OfferApprovalUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "offer %q not found", id)
	}
	if o.ApprovalState != u.From {
		return schema.NewErrorf(schema.ErrCodeConflict, "offer %q is no longer %s", id, u.From)
	}
	m.offerUpdates = append(m.offerUpdates, u)
	o.ApprovalState = u.To
	o.AdminApprovalStatus, o.ClientApprovalStatus = u.To.Tracks()
	if u.ClientApprovedAt != nil {
		o.ClientApprovedAt = u.ClientApprovedAt
	}
	if u.AdminApprovedAt != nil {
		o.AdminApprovedAt = u.AdminApprovedAt
	}
	return nil
}

func (m *mockStore) CreateTask(_ context.Context, t *store.AutomatedTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, t)
	return nil
}

func (m *mockStore) UpdateRequestApprovalStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requestStatus[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "request %q not found", id)
	}
	m.requestStatus[id] = status
	return nil
}

func (m *mockStore) UpdateOrderStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orderStatus[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "order %q not found", id)
	}
	m.orderStatus[id] = status
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testDeps(s store.Store) Deps {
	n := 0
	var mu sync.Mutex
	return Deps{
		Store: s,
		Now:   func() time.Time { return fixedNow },
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("id-%d", n)
		},
	}
}

func input(t schema.ActionType, params map[string]any, data schema.TriggerData) Input {
	return Input{
		ExecutionID: "exec-1",
		RuleID:      "rule-1",
		Action:      schema.WorkflowAction{Type: t, Params: params},
		TriggerData: data,
	}
}

func recipients(ns []*store.Notification) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.UserID
	}
	return out
}
