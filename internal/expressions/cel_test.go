package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/procura/pkg/schema"
)

func newCEL(t *testing.T) *CELEngine {
	t.Helper()
	e, err := NewCELEngine()
	require.NoError(t, err)
	return e
}

func TestCEL_Name(t *testing.T) {
	assert.Equal(t, "cel", newCEL(t).Name())
}

func TestCEL_PayloadCondition(t *testing.T) {
	e := newCEL(t)
	data := map[string]any{"category": "IT", "amount": 2500.0}

	out, err := e.Evaluate(context.Background(), `data.category == "IT" && data.amount > 1000.0`, data)
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(context.Background(), `data.category == "Catering"`, data)
	require.NoError(t, err)
	assert.Equal(t, false, out)
}

func TestCEL_HasMacro(t *testing.T) {
	e := newCEL(t)
	ok, err := EvaluateBool(context.Background(), e, `has(data.vendor_id)`, map[string]any{"client_id": "c1"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCEL_MissingKeyFails(t *testing.T) {
	e := newCEL(t)
	_, err := e.Evaluate(context.Background(), `data.missing == "x"`, map[string]any{})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExecution))
}

func TestCEL_NilData(t *testing.T) {
	e := newCEL(t)
	out, err := e.Evaluate(context.Background(), `size(data) == 0`, nil)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_CompileError(t *testing.T) {
	e := newCEL(t)
	_, err := e.Evaluate(context.Background(), `data.category ==`, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(context.Background(), "", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestCEL_EvaluateBoolRejectsNonBool(t *testing.T) {
	e := newCEL(t)
	_, err := EvaluateBool(context.Background(), e, `data.category`, map[string]any{"category": "IT"})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestCEL_ConcurrentCache(t *testing.T) {
	e := newCEL(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := EvaluateBool(context.Background(), e, `data.n > 1.0`, map[string]any{"n": 2.0})
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()
	assert.Len(t, e.cache.progs, 1)
}
