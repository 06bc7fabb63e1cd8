package actions

import (
	"context"
	"fmt"
	"time"

	"dario.cat/mergo"

	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/pkg/schema"
)

// Assignment policies for create_task.
const (
	AssignmentClientDefault   = "client_default"
	AssignmentVendorIfPresent = "vendor_if_present"
	AssignmentRuleSpecified   = "rule_specified"
)

type taskParams struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	DueInDays   int    `json:"due_in_days"`
	Assignment  string `json:"assignment"`
	AssignTo    string `json:"assign_to"`
}

var taskDefaults = taskParams{
	Title:      "Automated follow-up",
	Priority:   PriorityMedium,
	DueInDays:  7,
	Assignment: AssignmentClientDefault,
}

// CreateTaskAction records an automated_tasks row linked to the execution.
//
// The assignee follows params.assignment:
//   - client_default (default): trigger_data.client_id
//   - vendor_if_present: trigger_data.vendor_id, else client_id
//   - rule_specified: the party named by params.assign_to ("client" or "vendor")
//
// The task references request_id when present, else offer_id.
type CreateTaskAction struct {
	deps Deps
}

// NewCreateTaskAction creates the create_task handler.
func NewCreateTaskAction(deps Deps) *CreateTaskAction {
	return &CreateTaskAction{deps: deps.withDefaults()}
}

func (a *CreateTaskAction) Type() schema.ActionType { return schema.ActionCreateTask }

func (a *CreateTaskAction) Describe() string {
	return "Create a follow-up task assigned by an explicit policy"
}

func (a *CreateTaskAction) Execute(ctx context.Context, in Input) (*Output, error) {
	var p taskParams
	if err := decodeParams(in.Action.Params, &p); err != nil {
		return nil, err
	}
	if err := mergo.Merge(&p, taskDefaults); err != nil {
		return nil, fmt.Errorf("apply task defaults: %w", err)
	}

	assignee, err := assignee(p, in.TriggerData)
	if err != nil {
		return nil, err
	}

	refType, refID := reference(in.TriggerData)
	now := a.deps.Now()
	due := now.Add(time.Duration(p.DueInDays) * 24 * time.Hour)
	task := &store.AutomatedTask{
		ID:            a.deps.NewID(),
		ExecutionID:   in.ExecutionID,
		Title:         p.Title,
		Description:   p.Description,
		AssignedTo:    assignee,
		ReferenceType: refType,
		ReferenceID:   refID,
		Priority:      p.Priority,
		Status:        "pending",
		DueDate:       &due,
		CreatedAt:     now,
	}
	if err := a.deps.Store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return output("task_id", task.ID, "assigned_to", assignee, "priority", task.Priority), nil
}

func assignee(p taskParams, data schema.TriggerData) (string, error) {
	client := data.String(schema.KeyClientID)
	vendor := data.String(schema.KeyVendorID)
	switch p.Assignment {
	case AssignmentClientDefault:
		return client, nil
	case AssignmentVendorIfPresent:
		if vendor != "" {
			return vendor, nil
		}
		return client, nil
	case AssignmentRuleSpecified:
		switch p.AssignTo {
		case RecipientClient:
			return client, nil
		case RecipientVendor:
			return vendor, nil
		default:
			return "", schema.NewErrorf(schema.ErrCodeValidation,
				"assign_to must be client or vendor for rule_specified assignment, got %q", p.AssignTo)
		}
	default:
		return "", schema.NewErrorf(schema.ErrCodeValidation, "unknown assignment policy %q", p.Assignment)
	}
}

func reference(data schema.TriggerData) (refType, refID string) {
	if id := data.String(schema.KeyRequestID); id != "" {
		return "request", id
	}
	if id := data.String(schema.KeyOfferID); id != "" {
		return "offer", id
	}
	return "", ""
}
