package actions

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/pkg/schema"
)

func candidate(id string, score float64, verification string, cats ...string) *store.VendorCandidate {
	return &store.VendorCandidate{
		VendorID:           id,
		QualityScore:       score,
		Role:               store.RoleVendor,
		Categories:         cats,
		VerificationStatus: verification,
	}
}

func TestAutoAssign_SmartMatching(t *testing.T) {
	ms := newMockStore()
	for i := 0; i < 7; i++ {
		ms.candidates = append(ms.candidates, candidate(fmt.Sprintf("v%d", i), 3.0+float64(i)*0.2, store.VerificationApproved, "IT"))
	}
	ms.candidates = append(ms.candidates,
		candidate("low", 2.5, store.VerificationApproved, "IT"),
		candidate("unverified", 5.0, store.VerificationPending, "IT"),
		candidate("wrong-cat", 5.0, store.VerificationApproved, "Catering"),
	)
	a := NewAutoAssignAction(testDeps(ms))

	out, err := a.Execute(context.Background(), input(schema.ActionAutoAssign,
		map[string]any{"method": "smart_matching"},
		schema.TriggerData{"request_id": "R1", "category": "IT"}))
	require.NoError(t, err)
	assert.Equal(t, 5, out.Data["vendors"])

	require.Len(t, ms.notifications, 5)
	assert.Equal(t, []string{"v6", "v5", "v4", "v3", "v2"}, recipients(ms.notifications))
	for _, n := range ms.notifications {
		assert.Equal(t, PriorityHigh, n.Priority)
		assert.Equal(t, TypeOpportunity, n.Type)
		assert.Contains(t, string(n.Metadata), `"rationale"`)
		assert.Contains(t, string(n.Metadata), `"quality_score"`)
	}
}

func TestAutoAssign_Preconditions(t *testing.T) {
	ms := newMockStore()
	ms.candidates = []*store.VendorCandidate{candidate("v1", 4.0, store.VerificationApproved, "IT")}
	a := NewAutoAssignAction(testDeps(ms))

	cases := []struct {
		name   string
		params map[string]any
		data   schema.TriggerData
	}{
		{"wrong method", map[string]any{"method": "round_robin"}, schema.TriggerData{"request_id": "R1", "category": "IT"}},
		{"no request", map[string]any{"method": "smart_matching"}, schema.TriggerData{"category": "IT"}},
		{"no category", map[string]any{"method": "smart_matching"}, schema.TriggerData{"request_id": "R1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := a.Execute(context.Background(), input(schema.ActionAutoAssign, tc.params, tc.data))
			require.NoError(t, err)
			assert.Equal(t, true, out.Data["skipped"])
		})
	}
	assert.Empty(t, ms.notifications)
}

func TestAutoAssign_NoEligibleVendors(t *testing.T) {
	ms := newMockStore()
	a := NewAutoAssignAction(testDeps(ms))
	out, err := a.Execute(context.Background(), input(schema.ActionAutoAssign,
		map[string]any{"method": "smart_matching"}, schema.TriggerData{"request_id": "R1", "category": "IT"}))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Data["vendors"])
}
