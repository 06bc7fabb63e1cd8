// Package templater turns a notification template key and a trigger payload
// into the title and message shown to the recipient.
package templater

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rendis/procura/internal/expressions"
	"github.com/rendis/procura/pkg/schema"
)

// Template keys with built-in text.
const (
	KeyNewRequestAvailable = "new_request_available"
	KeyApprovalEscalated   = "approval_escalated"
	KeyDeadlineWarning     = "deadline_warning"
	KeyOfferAutoApproved   = "offer_auto_approved"
)

// Rendered is a resolved notification text.
type Rendered struct {
	Title   string
	Message string
}

// Overrides replace the built-in title or message when non-empty. They may use
// the same ${{ }} placeholders as the built-in templates.
type Overrides struct {
	Title   string
	Message string
}

var builtin = map[string]Rendered{
	KeyNewRequestAvailable: {
		Title:   "New Request Available",
		Message: `A new request in ${{ .category // "your category" }} is available for bidding.`,
	},
	KeyApprovalEscalated: {
		Title:   "Approval Escalated",
		Message: `An approval for ${{ .request_id // .offer_id // "a pending item" }} has been escalated and needs your attention.`,
	},
	KeyDeadlineWarning: {
		Title:   "Deadline Approaching",
		Message: `The deadline for ${{ .request_id // .order_id // "one of your items" }} is approaching.`,
	},
	KeyOfferAutoApproved: {
		Title:   "Offer Approved",
		Message: `Your offer ${{ .offer_id // "" }} has been approved automatically.`,
	},
}

var fallback = Rendered{
	Title:   "Workflow Notification",
	Message: "An automated workflow action has been triggered.",
}

// Known reports whether key has built-in text.
func Known(key string) bool {
	_, ok := builtin[key]
	return ok
}

// Templater renders notification templates. Safe for concurrent use.
type Templater struct {
	interp *expressions.Interpolator
	logger *slog.Logger
}

// New creates a Templater. Placeholders are evaluated with jq.
func New(jq *expressions.GoJQEngine, logger *slog.Logger) *Templater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Templater{interp: expressions.NewInterpolator(jq), logger: logger}
}

// Render resolves key against data. Unknown keys use a generic fallback.
// Only a malformed template is an error; placeholders that fail to evaluate
// render empty and are logged at debug.
func (t *Templater) Render(ctx context.Context, key string, data schema.TriggerData, ov Overrides) (Rendered, error) {
	tpl, ok := builtin[key]
	if !ok {
		tpl = fallback
	}
	if ov.Title != "" {
		tpl.Title = ov.Title
	}
	if ov.Message != "" {
		tpl.Message = ov.Message
	}

	title, err := t.render(ctx, key, tpl.Title, data)
	if err != nil {
		return Rendered{}, err
	}
	msg, err := t.render(ctx, key, tpl.Message, data)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Title: title, Message: msg}, nil
}

func (t *Templater) render(ctx context.Context, key, text string, data schema.TriggerData) (string, error) {
	out, err := t.interp.Render(ctx, text, map[string]any(data))
	if err == nil {
		return out, nil
	}
	var pe *expressions.PlaceholderError
	if !errors.As(err, &pe) {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "template %q: %s", key, err.Error()).WithCause(err)
	}
	t.logger.DebugContext(ctx, "template placeholder failed", "template", key, "error", err)
	return out, nil
}
