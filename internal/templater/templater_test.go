package templater

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/procura/internal/expressions"
	"github.com/rendis/procura/pkg/schema"
)

func newTemplater() *Templater {
	return New(expressions.NewGoJQEngine(), nil)
}

func TestRender_KnownKeys(t *testing.T) {
	tp := newTemplater()
	ctx := context.Background()

	r, err := tp.Render(ctx, KeyNewRequestAvailable, schema.TriggerData{"category": "IT"}, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "New Request Available", r.Title)
	assert.Equal(t, "A new request in IT is available for bidding.", r.Message)

	r, err = tp.Render(ctx, KeyNewRequestAvailable, schema.TriggerData{}, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "A new request in your category is available for bidding.", r.Message)

	r, err = tp.Render(ctx, KeyApprovalEscalated, schema.TriggerData{"offer_id": "O1"}, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "Approval Escalated", r.Title)
	assert.Contains(t, r.Message, "O1")

	r, err = tp.Render(ctx, KeyDeadlineWarning, schema.TriggerData{"order_id": "ORD-9"}, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "The deadline for ORD-9 is approaching.", r.Message)

	r, err = tp.Render(ctx, KeyOfferAutoApproved, schema.TriggerData{"offer_id": "O1"}, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "Offer Approved", r.Title)
	assert.Equal(t, "Your offer O1 has been approved automatically.", r.Message)
}

func TestRender_UnknownKeyFallsBack(t *testing.T) {
	r, err := newTemplater().Render(context.Background(), "no_such_template", nil, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "Workflow Notification", r.Title)
	assert.Equal(t, "An automated workflow action has been triggered.", r.Message)
	assert.False(t, Known("no_such_template"))
	assert.True(t, Known(KeyDeadlineWarning))
}

func TestRender_Overrides(t *testing.T) {
	r, err := newTemplater().Render(context.Background(), KeyNewRequestAvailable,
		schema.TriggerData{"request_id": "R7"},
		Overrides{Title: "Heads up: ${{ .request_id }}"})
	require.NoError(t, err)
	assert.Equal(t, "Heads up: R7", r.Title)
	assert.Contains(t, r.Message, "your category")
}

func TestRender_FailingPlaceholderRendersEmpty(t *testing.T) {
	r, err := newTemplater().Render(context.Background(), "x", nil,
		Overrides{Message: `before ${{ error("nope") }}after`})
	require.NoError(t, err)
	assert.Equal(t, "before after", r.Message)
}

func TestRender_MalformedOverride(t *testing.T) {
	_, err := newTemplater().Render(context.Background(), KeyDeadlineWarning, nil,
		Overrides{Message: "broken ${{ .a"})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}
