package actions

import (
	"context"
	"fmt"

	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/internal/templater"
	"github.com/rendis/procura/pkg/schema"
)

// Notification categories, priorities and types written by the handlers.
const (
	CategoryAutomation = "automation"

	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"

	TypeWorkflow    = "workflow"
	TypeOpportunity = "opportunity"
	TypeEscalation  = "escalation"
)

// Symbolic recipient roles accepted in params.recipients.
const (
	RecipientClient = "client"
	RecipientVendor = "vendor"
	RecipientAdmin  = "admin"
)

// NotifyAction sends a templated notification to the users behind a list of
// symbolic roles.
//
// Params:
//   - template:   template key; unknown keys use a generic text
//   - recipients: any of "client", "vendor", "admin"
//   - title, message: optional overrides, may contain ${{ jq }} placeholders
type NotifyAction struct {
	deps Deps
}

// NewNotifyAction creates the send_notification handler.
func NewNotifyAction(deps Deps) *NotifyAction {
	return &NotifyAction{deps: deps.withDefaults()}
}

func (a *NotifyAction) Type() schema.ActionType { return schema.ActionSendNotification }

func (a *NotifyAction) Describe() string {
	return "Notify the client, vendor and/or all admins using a message template"
}

func (a *NotifyAction) Execute(ctx context.Context, in Input) (*Output, error) {
	userIDs, err := resolveRecipients(ctx, a.deps.Store, in.Action.StringsParam("recipients"), in.TriggerData)
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return output("notifications", 0), nil
	}

	key := in.Action.StringParam("template")
	msg, err := a.deps.Templater.Render(ctx, key, in.TriggerData, templater.Overrides{
		Title:   in.Action.StringParam("title"),
		Message: in.Action.StringParam("message"),
	})
	if err != nil {
		return nil, err
	}

	batch := make([]*store.Notification, 0, len(userIDs))
	for _, uid := range userIDs {
		batch = append(batch, &store.Notification{
			ID:        a.deps.NewID(),
			UserID:    uid,
			Title:     msg.Title,
			Message:   msg.Message,
			Type:      TypeWorkflow,
			Category:  CategoryAutomation,
			Priority:  PriorityMedium,
			Metadata:  metadata(in, map[string]any{"template": key}),
			CreatedAt: a.deps.Now(),
		})
	}
	if err := a.deps.Store.CreateNotifications(ctx, batch); err != nil {
		return nil, fmt.Errorf("create notifications: %w", err)
	}
	return output("notifications", len(batch), "template", key), nil
}

// resolveRecipients expands symbolic roles into user ids, in role order.
// Duplicates are kept: a user reached through two roles is notified twice.
func resolveRecipients(ctx context.Context, s store.Store, roles []string, data schema.TriggerData) ([]string, error) {
	var ids []string
	for _, role := range roles {
		switch role {
		case RecipientClient:
			if id := data.String(schema.KeyClientID); id != "" {
				ids = append(ids, id)
			}
		case RecipientVendor:
			if id := data.String(schema.KeyVendorID); id != "" {
				ids = append(ids, id)
			}
		case RecipientAdmin:
			admins, err := adminIDs(ctx, s)
			if err != nil {
				return nil, err
			}
			ids = append(ids, admins...)
		}
	}
	return ids, nil
}

func adminIDs(ctx context.Context, s store.Store) ([]string, error) {
	profiles, err := s.ListUserProfiles(ctx, store.ProfileFilter{Role: store.RoleAdmin})
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}
	return ids, nil
}
