package actions

import (
	"context"
	"fmt"

	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/internal/templater"
	"github.com/rendis/procura/pkg/schema"
)

// Approval modes accepted in params.mode.
const (
	ApproveModeCombined = "combined"
	ApproveModeTwoParty = "two_party"
)

// AutoApproveAction approves the offer named by trigger_data.offer_id and
// notifies the vendor with the offer_auto_approved template.
//
// In the default combined mode only level "admin" acts: one update sets both
// approval tracks to approved and stamps client_approved_at. Other levels are a
// no-op. With mode "two_party", params.level ("admin" or "client") selects one
// track and each call is exactly one transition of the offer approval state
// machine (see schema.NextApproval).
type AutoApproveAction struct {
	deps Deps
}

// NewAutoApproveAction creates the auto_approve handler.
func NewAutoApproveAction(deps Deps) *AutoApproveAction {
	return &AutoApproveAction{deps: deps.withDefaults()}
}

func (a *AutoApproveAction) Type() schema.ActionType { return schema.ActionAutoApprove }

func (a *AutoApproveAction) Describe() string {
	return "Approve an offer on the admin or client track and notify the vendor"
}

func (a *AutoApproveAction) Execute(ctx context.Context, in Input) (*Output, error) {
	offerID := in.TriggerData.String(schema.KeyOfferID)
	if offerID == "" {
		return noop("offer_id is required"), nil
	}
	level := schema.ApprovalLevel(in.Action.StringParam("level"))
	mode := in.Action.StringParam("mode")
	if mode == "" {
		mode = ApproveModeCombined
	}

	var update store.OfferApprovalUpdate
	var offer *store.Offer
	var err error
	switch mode {
	case ApproveModeCombined:
		if level != schema.ApprovalLevelAdmin {
			return noop("combined approval only acts on level admin"), nil
		}
		if offer, err = a.deps.Store.GetOffer(ctx, offerID); err != nil {
			return nil, err
		}
		if offer.ApprovalState == schema.ApprovalApproved {
			return noop("offer already approved"), nil
		}
		now := a.deps.Now()
		update = store.OfferApprovalUpdate{
			From:             offer.ApprovalState,
			To:               schema.ApprovalApproved,
			AdminApprovedAt:  &now,
			ClientApprovedAt: &now,
		}
	case ApproveModeTwoParty:
		if level != schema.ApprovalLevelAdmin && level != schema.ApprovalLevelClient {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "level must be admin or client, got %q", level)
		}
		if offer, err = a.deps.Store.GetOffer(ctx, offerID); err != nil {
			return nil, err
		}
		to, err := schema.NextApproval(offer.ApprovalState, level)
		if err != nil {
			return nil, err
		}
		now := a.deps.Now()
		update = store.OfferApprovalUpdate{From: offer.ApprovalState, To: to}
		if level == schema.ApprovalLevelClient {
			update.ClientApprovedAt = &now
		} else {
			update.AdminApprovedAt = &now
		}
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "mode must be %s or %s, got %q",
			ApproveModeCombined, ApproveModeTwoParty, mode)
	}

	if err := a.deps.Store.UpdateOfferApproval(ctx, offerID, update); err != nil {
		return nil, err
	}

	vendorID := offer.VendorID
	if vendorID == "" {
		vendorID = in.TriggerData.String(schema.KeyVendorID)
	}
	if vendorID != "" {
		if err := a.notifyVendor(ctx, in, vendorID); err != nil {
			return nil, err
		}
	}
	return output("offer_id", offerID, "from", string(update.From), "to", string(update.To)), nil
}

func (a *AutoApproveAction) notifyVendor(ctx context.Context, in Input, vendorID string) error {
	msg, err := a.deps.Templater.Render(ctx, templater.KeyOfferAutoApproved, in.TriggerData, templater.Overrides{})
	if err != nil {
		return err
	}
	n := &store.Notification{
		ID:        a.deps.NewID(),
		UserID:    vendorID,
		Title:     msg.Title,
		Message:   msg.Message,
		Type:      TypeWorkflow,
		Category:  CategoryAutomation,
		Priority:  PriorityMedium,
		Metadata:  metadata(in, map[string]any{"template": templater.KeyOfferAutoApproved}),
		CreatedAt: a.deps.Now(),
	}
	if err := a.deps.Store.CreateNotifications(ctx, []*store.Notification{n}); err != nil {
		return fmt.Errorf("notify vendor: %w", err)
	}
	return nil
}
