package actions

import (
	"context"

	"github.com/rendis/procura/pkg/schema"
)

// UpdateStatusAction overwrites the status of a request or an order.
//
// Params: entity_type ("request" or "order"), status, and optional entity_id.
// Without entity_id the id comes from trigger_data.request_id or .order_id.
// Any status string is accepted; transitions are not checked.
type UpdateStatusAction struct {
	deps Deps
}

// NewUpdateStatusAction creates the update_status handler.
func NewUpdateStatusAction(deps Deps) *UpdateStatusAction {
	return &UpdateStatusAction{deps: deps.withDefaults()}
}

func (a *UpdateStatusAction) Type() schema.ActionType { return schema.ActionUpdateStatus }

func (a *UpdateStatusAction) Describe() string {
	return "Set a request's admin approval status or an order's status"
}

func (a *UpdateStatusAction) Execute(ctx context.Context, in Input) (*Output, error) {
	entityType := in.Action.StringParam("entity_type")
	status := in.Action.StringParam("status")
	if status == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "status is required")
	}

	var idKey string
	switch entityType {
	case "request":
		idKey = schema.KeyRequestID
	case "order":
		idKey = schema.KeyOrderID
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported entity_type %q", entityType)
	}

	id := in.Action.StringParam("entity_id")
	if id == "" {
		id = in.TriggerData.String(idKey)
	}
	if id == "" {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "%s requires entity_id or trigger_data.%s", entityType, idKey)
	}

	var err error
	if entityType == "request" {
		err = a.deps.Store.UpdateRequestApprovalStatus(ctx, id, status)
	} else {
		err = a.deps.Store.UpdateOrderStatus(ctx, id, status)
	}
	if err != nil {
		return nil, err
	}
	return output("entity_type", entityType, "entity_id", id, "status", status), nil
}
