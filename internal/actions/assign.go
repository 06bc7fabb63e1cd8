package actions

import (
	"context"
	"fmt"

	"github.com/rendis/procura/internal/ranking"
	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/pkg/schema"
)

// MethodSmartMatching is the only assignment method auto_assign acts on.
const MethodSmartMatching = "smart_matching"

// AutoAssignAction offers a new request to the best-ranked vendors of its category.
// It acts only when params.method is "smart_matching" and the payload carries
// request_id and category.
type AutoAssignAction struct {
	deps Deps
}

// NewAutoAssignAction creates the auto_assign handler.
func NewAutoAssignAction(deps Deps) *AutoAssignAction {
	return &AutoAssignAction{deps: deps.withDefaults()}
}

func (a *AutoAssignAction) Type() schema.ActionType { return schema.ActionAutoAssign }

func (a *AutoAssignAction) Describe() string {
	return "Offer a request to the top-rated approved vendors of its category"
}

func (a *AutoAssignAction) Execute(ctx context.Context, in Input) (*Output, error) {
	if in.Action.StringParam("method") != MethodSmartMatching {
		return noop("method is not smart_matching"), nil
	}
	requestID := in.TriggerData.String(schema.KeyRequestID)
	category := in.TriggerData.String(schema.KeyCategory)
	if requestID == "" || category == "" {
		return noop("request_id and category are required"), nil
	}

	candidates, err := a.deps.Store.ListVendorCandidates(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list vendor candidates: %w", err)
	}
	selected := ranking.Rank(candidates, category, ranking.DefaultLimit)
	if len(selected) == 0 {
		return output("vendors", 0), nil
	}

	batch := make([]*store.Notification, 0, len(selected))
	vendorIDs := make([]string, 0, len(selected))
	for _, sel := range selected {
		c := sel.Candidate
		vendorIDs = append(vendorIDs, c.VendorID)
		batch = append(batch, &store.Notification{
			ID:       a.deps.NewID(),
			UserID:   c.VendorID,
			Title:    "New Opportunity Available",
			Message:  fmt.Sprintf("A new %s request matches your profile (quality score %.1f).", category, c.QualityScore),
			Type:     TypeOpportunity,
			Category: CategoryAutomation,
			Priority: PriorityHigh,
			Metadata: metadata(in, map[string]any{
				"request_id":    requestID,
				"quality_score": c.QualityScore,
				"rationale":     sel.Rationale,
			}),
			CreatedAt: a.deps.Now(),
		})
	}
	if err := a.deps.Store.CreateNotifications(ctx, batch); err != nil {
		return nil, fmt.Errorf("notify matched vendors: %w", err)
	}
	return output("vendors", len(vendorIDs), "vendor_ids", vendorIDs), nil
}
