package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	executionIDKey ctxKey = iota
	ruleIDKey
	actionTypeKey
	triggerTypeKey
)

// correlationAttrs maps each context key to the attribute name it is logged under,
// in output order.
var correlationAttrs = []struct {
	key  ctxKey
	name string
}{
	{executionIDKey, "execution_id"},
	{ruleIDKey, "rule_id"},
	{actionTypeKey, "action_type"},
	{triggerTypeKey, "trigger_type"},
}

// WithExecutionID returns a context with the execution ID set.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

// WithRuleID returns a context with the rule ID set.
func WithRuleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ruleIDKey, id)
}

// WithActionType returns a context with the action type set.
func WithActionType(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, actionTypeKey, t)
}

// WithTriggerType returns a context with the trigger type set.
func WithTriggerType(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, triggerTypeKey, t)
}

// ExecutionID extracts the execution ID from the context, or "" if absent.
func ExecutionID(ctx context.Context) string { return value(ctx, executionIDKey) }

// RuleID extracts the rule ID from the context, or "" if absent.
func RuleID(ctx context.Context) string { return value(ctx, ruleIDKey) }

// ActionType extracts the action type from the context, or "" if absent.
func ActionType(ctx context.Context) string { return value(ctx, actionTypeKey) }

// TriggerType extracts the trigger type from the context, or "" if absent.
func TriggerType(ctx context.Context) string { return value(ctx, triggerTypeKey) }

func value(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}

// WithExecution sets the execution and rule IDs on the context at once.
func WithExecution(ctx context.Context, executionID, ruleID string) context.Context {
	return WithRuleID(WithExecutionID(ctx, executionID), ruleID)
}

// attrs returns the non-empty correlation attributes carried by ctx.
func attrs(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	for _, ca := range correlationAttrs {
		if v := value(ctx, ca.key); v != "" {
			out = append(out, slog.String(ca.name, v))
		}
	}
	return out
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range attrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, injecting correlation IDs from the
// context into every record. Use with logger.InfoContext(ctx, ...).
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(attrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(as []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(as)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps a config string to a slog level. Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the process logger: a JSON or text handler wrapped in a CorrelationHandler.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var inner slog.Handler
	if strings.EqualFold(format, "text") {
		inner = slog.NewTextHandler(w, opts)
	} else {
		inner = slog.NewJSONHandler(w, opts)
	}
	return slog.New(NewCorrelationHandler(inner))
}
