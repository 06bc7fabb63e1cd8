package expressions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rendis/procura/pkg/schema"
)

const (
	openMarker  = "${{"
	closeMarker = "}}"
)

// Interpolator renders text templates whose ${{ ... }} placeholders hold jq
// queries evaluated against the trigger payload, e.g.
// "New request in ${{ .category // \"your category\" }}".
type Interpolator struct {
	jq *GoJQEngine
}

// NewInterpolator creates an Interpolator backed by the given jq engine.
// A nil engine gets a private one.
func NewInterpolator(jq *GoJQEngine) *Interpolator {
	if jq == nil {
		jq = NewGoJQEngine()
	}
	return &Interpolator{jq: jq}
}

// Render replaces every placeholder in tpl.
//
// Malformed templates (unclosed, nested or empty placeholders) fail with a
// VALIDATION_ERROR and no output. A placeholder whose query fails or yields null
// renders as the empty string; the rendered text is still returned together with
// the joined *PlaceholderError values so callers can log them.
func (in *Interpolator) Render(ctx context.Context, tpl string, data map[string]any) (string, error) {
	if !strings.Contains(tpl, openMarker) {
		return tpl, nil
	}

	var out strings.Builder
	out.Grow(len(tpl))
	var evalErrs []error

	rest := tpl
	for {
		idx := strings.Index(rest, openMarker)
		if idx == -1 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:idx])
		body := rest[idx+len(openMarker):]

		end := strings.Index(body, closeMarker)
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeValidation, "unclosed ${{ placeholder")
		}
		query := strings.TrimSpace(body[:end])
		if strings.Contains(query, openMarker) {
			return "", schema.NewError(schema.ErrCodeValidation, "nested ${{ placeholders are not allowed")
		}
		if query == "" {
			return "", schema.NewError(schema.ErrCodeValidation, "empty ${{ }} placeholder")
		}

		val, err := in.jq.Evaluate(ctx, query, data)
		if err != nil {
			evalErrs = append(evalErrs, &PlaceholderError{Query: query, Err: err})
		} else {
			out.WriteString(inline(val))
		}
		rest = body[end+len(closeMarker):]
	}

	return out.String(), errors.Join(evalErrs...)
}

// PlaceholderError reports a placeholder whose query failed to compile or run.
type PlaceholderError struct {
	Query string
	Err   error
}

func (e *PlaceholderError) Error() string {
	return fmt.Sprintf("placeholder ${{ %s }}: %s", e.Query, e.Err.Error())
}

func (e *PlaceholderError) Unwrap() error { return e.Err }

// HasPlaceholders reports whether s contains a ${{ marker.
func HasPlaceholders(s string) bool {
	return strings.Contains(s, openMarker)
}

// inline formats a jq result for embedding in text. Strings are written as-is,
// whole numbers without a fraction, and composites as compact JSON.
func inline(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
