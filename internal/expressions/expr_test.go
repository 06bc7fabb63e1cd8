package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/procura/pkg/schema"
)

func TestExpr_TopLevelAndDataBinding(t *testing.T) {
	e := NewExprEngine()
	assert.Equal(t, "expr", e.Name())
	data := map[string]any{"category": "IT", "amount": 1500.0}

	ok, err := EvaluateBool(context.Background(), e, `category == "IT" && amount > 1000`, data)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvaluateBool(context.Background(), e, `data.amount < 1000`, data)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpr_UndefinedIsNil(t *testing.T) {
	e := NewExprEngine()
	ok, err := EvaluateBool(context.Background(), e, `vendor_id == nil`, map[string]any{"client_id": "c1"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpr_CachedProgramServesDifferentPayloads(t *testing.T) {
	e := NewExprEngine()
	expression := `category in ["IT", "Office"]`

	ok, err := EvaluateBool(context.Background(), e, expression, map[string]any{"category": "IT"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvaluateBool(context.Background(), e, expression, map[string]any{"category": "Catering", "extra": 1})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpr_Errors(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(context.Background(), `category ==`, nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = EvaluateBool(context.Background(), e, `1 + 1`, nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}
