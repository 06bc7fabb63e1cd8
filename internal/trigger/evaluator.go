package trigger

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/procura/internal/engine"
	"github.com/rendis/procura/internal/expressions"
	"github.com/rendis/procura/internal/logging"
	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/pkg/schema"
)

// Reserved trigger_conditions keys holding boolean expressions over the payload.
const (
	CondExpr = "$expr"
	CondCEL  = "$cel"
)

// Runner runs a pending execution. Satisfied by *engine.Controller.
type Runner interface {
	Execute(ctx context.Context, inv engine.Invocation) (*engine.Result, error)
}

// Outcome reports what firing a trigger did for one matching rule.
type Outcome struct {
	RuleID       string         `json:"rule_id"`
	ExecutionID  string         `json:"execution_id"`
	ScheduledFor *time.Time     `json:"scheduled_for,omitempty"`
	Result       *engine.Result `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Evaluator selects the active rules a trigger matches and starts an execution
// for each of them.
type Evaluator struct {
	store  store.Store
	runner Runner
	cel    expressions.Engine
	expr   expressions.Engine
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(e *Evaluator) { e.now = now } }

// WithIDs overrides the execution id generator.
func WithIDs(newID func() string) Option { return func(e *Evaluator) { e.newID = newID } }

// NewEvaluator creates an Evaluator. The CEL environment is built once here.
func NewEvaluator(s store.Store, runner Runner, logger *slog.Logger, opts ...Option) (*Evaluator, error) {
	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Evaluator{
		store:  s,
		runner: runner,
		cel:    celEngine,
		expr:   expressions.NewExprEngine(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Fire evaluates every active rule for triggerType against data, highest
// priority first. Rules with a delay get a scheduled execution and are left for
// the scheduler; the rest run immediately. A rule whose conditions fail to
// evaluate or whose execution fails is reported in its Outcome and does not
// stop the others.
func (e *Evaluator) Fire(ctx context.Context, triggerType string, data schema.TriggerData) ([]Outcome, error) {
	if triggerType == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "trigger_type is required")
	}
	ctx = logging.WithTriggerType(ctx, triggerType)

	rules, err := e.store.ListRules(ctx, store.RuleFilter{TriggerType: triggerType, ActiveOnly: true})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list rules: %s", err.Error()).WithCause(err)
	}

	outcomes := make([]Outcome, 0, len(rules))
	for _, rule := range rules {
		rctx := logging.WithRuleID(ctx, rule.ID)
		ok, err := e.Matches(rctx, rule, data)
		if err != nil {
			e.logger.WarnContext(rctx, "trigger condition failed to evaluate", "error", err)
			outcomes = append(outcomes, Outcome{RuleID: rule.ID, Error: err.Error()})
			continue
		}
		if !ok {
			continue
		}
		outcomes = append(outcomes, e.start(rctx, rule, triggerType, data))
	}

	e.logger.InfoContext(ctx, "trigger fired", "rules", len(rules), "matched", len(outcomes))
	return outcomes, nil
}

func (e *Evaluator) start(ctx context.Context, rule *schema.WorkflowRule, triggerType string, data schema.TriggerData) Outcome {
	now := e.now()
	exec := &schema.WorkflowExecution{
		ID:          e.newID(),
		RuleID:      rule.ID,
		TriggerType: triggerType,
		TriggerData: data,
		Status:      schema.ExecutionStatusPending,
		CreatedAt:   now,
	}
	if rule.DelayMinutes > 0 {
		at := now.Add(time.Duration(rule.DelayMinutes) * time.Minute)
		exec.ScheduledFor = &at
	}
	out := Outcome{RuleID: rule.ID, ExecutionID: exec.ID, ScheduledFor: exec.ScheduledFor}

	if err := e.store.CreateExecution(ctx, exec); err != nil {
		e.logger.ErrorContext(ctx, "create execution failed", "error", err)
		out.Error = err.Error()
		return out
	}
	if exec.ScheduledFor != nil {
		e.logger.InfoContext(logging.WithExecutionID(ctx, exec.ID), "execution deferred",
			"scheduled_for", exec.ScheduledFor.Format(time.RFC3339))
		return out
	}

	res, err := e.runner.Execute(ctx, engine.Invocation{TriggerType: triggerType, TriggerData: data, ExecutionID: exec.ID})
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Result = res
	return out
}

// Matches reports whether data satisfies every entry of rule.trigger_conditions.
// Plain keys compare for equality with data[key] (a list value means "one of");
// $expr and $cel hold boolean expressions. No conditions always match.
func (e *Evaluator) Matches(ctx context.Context, rule *schema.WorkflowRule, data schema.TriggerData) (bool, error) {
	for key, want := range rule.TriggerConditions {
		switch key {
		case CondExpr, CondCEL:
			src, ok := want.(string)
			if !ok {
				return false, schema.NewErrorf(schema.ErrCodeValidation, "%s condition must be a string", key)
			}
			eng := e.expr
			if key == CondCEL {
				eng = e.cel
			}
			ok, err := expressions.EvaluateBool(ctx, eng, src, data)
			if err != nil || !ok {
				return false, err
			}
		default:
			if !matchValue(want, data[key]) {
				return false, nil
			}
		}
	}
	return true, nil
}

func matchValue(want, got any) bool {
	if got == nil {
		return want == nil
	}
	if list, ok := want.([]any); ok {
		if _, gotList := got.([]any); !gotList {
			for _, w := range list {
				if matchValue(w, got) {
					return true
				}
			}
			return false
		}
	}
	if wf, ok := toFloat(want); ok {
		gf, ok := toFloat(got)
		return ok && wf == gf
	}
	return reflect.DeepEqual(want, got)
}

// toFloat normalises the numeric kinds JSON and YAML decoding produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
