package actions

import (
	"context"
	"fmt"

	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/internal/templater"
	"github.com/rendis/procura/pkg/schema"
)

// EscalateAction sends an urgent notification to every admin when
// params.escalate_to is "admin". params.template defaults to approval_escalated.
type EscalateAction struct {
	deps Deps
}

// NewEscalateAction creates the escalate_approval handler.
func NewEscalateAction(deps Deps) *EscalateAction {
	return &EscalateAction{deps: deps.withDefaults()}
}

func (a *EscalateAction) Type() schema.ActionType { return schema.ActionEscalateApproval }

func (a *EscalateAction) Describe() string {
	return "Escalate a pending approval to all admins with an urgent notification"
}

func (a *EscalateAction) Execute(ctx context.Context, in Input) (*Output, error) {
	if in.Action.StringParam("escalate_to") != RecipientAdmin {
		return noop("escalate_to is not admin"), nil
	}

	admins, err := adminIDs(ctx, a.deps.Store)
	if err != nil {
		return nil, err
	}
	if len(admins) == 0 {
		return output("notifications", 0), nil
	}

	key := in.Action.StringParam("template")
	if key == "" {
		key = templater.KeyApprovalEscalated
	}
	msg, err := a.deps.Templater.Render(ctx, key, in.TriggerData, templater.Overrides{
		Title:   in.Action.StringParam("title"),
		Message: in.Action.StringParam("message"),
	})
	if err != nil {
		return nil, err
	}

	batch := make([]*store.Notification, 0, len(admins))
	for _, id := range admins {
		batch = append(batch, &store.Notification{
			ID:        a.deps.NewID(),
			UserID:    id,
			Title:     msg.Title,
			Message:   msg.Message,
			Type:      TypeEscalation,
			Category:  CategoryAutomation,
			Priority:  PriorityUrgent,
			Metadata:  metadata(in, map[string]any{"template": key}),
			CreatedAt: a.deps.Now(),
		})
	}
	if err := a.deps.Store.CreateNotifications(ctx, batch); err != nil {
		return nil, fmt.Errorf("notify admins: %w", err)
	}
	return output("notifications", len(batch)), nil
}
