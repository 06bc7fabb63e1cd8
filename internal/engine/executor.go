package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/rendis/procura/internal/actions"
	"github.com/rendis/procura/internal/logging"
	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/pkg/schema"
)

// DefaultActionTimeout bounds a single handler invocation.
const DefaultActionTimeout = 30 * time.Second

// ParamTimeoutSeconds overrides the action timeout for one action.
const ParamTimeoutSeconds = "timeout_seconds"

// Invocation is the request to run one execution.
type Invocation struct {
	TriggerType string             `json:"trigger_type"`
	TriggerData schema.TriggerData `json:"trigger_data"`
	ExecutionID string             `json:"execution_id"`
}

// Result is returned by Execute with the execution outcome.
type Result struct {
	Success         bool                   `json:"success"`
	ExecutionID     string                 `json:"execution_id"`
	Status          schema.ExecutionStatus `json:"status"`
	ExecutedActions int                    `json:"executed_actions"`
	ExecutionTimeMs int64                  `json:"execution_time_ms"`
	Skipped         bool                   `json:"skipped,omitempty"`
	DuplicateOf     string                 `json:"duplicate_of,omitempty"`
	Actions         []schema.ActionResult  `json:"actions,omitempty"`
}

// Config holds controller settings.
type Config struct {
	ActionTimeout time.Duration
	Breaker       BreakerConfig
	Now           func() time.Time
}

// Controller runs a rule's actions for one execution. Actions run sequentially in
// declared order; a failing action is recorded and never stops its siblings.
//
// A handler that outlives its timeout is abandoned, not stopped: its goroutine
// keeps running and may still commit writes after the action was recorded as
// failed with TIMEOUT_ERROR. Handlers should honor ctx to avoid that.
type Controller struct {
	store      store.Store
	dispatcher *actions.Dispatcher
	fsm        *ExecutionFSM
	breakers   *Breakers
	config     Config
	logger     *slog.Logger
}

// NewController creates a Controller with the given dependencies.
func NewController(s store.Store, d *actions.Dispatcher, cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Controller{
		store:      s,
		dispatcher: d,
		fsm:        NewExecutionFSM(s, logger),
		breakers:   NewBreakers(cfg.Breaker, cfg.Now),
		config:     cfg,
		logger:     logger,
	}
}

// Breakers exposes the per-action-type circuit breakers.
func (c *Controller) Breakers() *Breakers { return c.breakers }

// Execute runs the execution named by inv. Only a missing execution or rule, a
// concurrent run, or a store failure outside the action loop is returned as an
// error; action failures are reported inside the Result.
func (c *Controller) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	if inv.ExecutionID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "execution_id is required")
	}

	exec, err := c.store.GetExecution(ctx, inv.ExecutionID)
	if err != nil {
		return nil, storeError("load execution", err)
	}
	rule, err := c.store.GetRule(ctx, exec.RuleID)
	if err != nil {
		return nil, storeError("load rule", err)
	}

	triggerType := inv.TriggerType
	if triggerType == "" {
		triggerType = exec.TriggerType
	}
	data := inv.TriggerData
	if len(data) == 0 {
		data = exec.TriggerData
	}

	ctx = logging.WithTriggerType(logging.WithExecution(ctx, exec.ID, rule.ID), triggerType)

	switch exec.Status {
	case schema.ExecutionStatusCompleted, schema.ExecutionStatusSkipped:
		c.logger.InfoContext(ctx, "execution already finished, returning stored outcome", "status", string(exec.Status))
		return resultFrom(exec), nil
	case schema.ExecutionStatusRunning:
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "execution %q is already running", exec.ID).
			WithDetails(map[string]any{"execution_id": exec.ID})
	}

	if key := IdempotencyKey(rule.ID, triggerType, data); key != "" {
		owner, claimed, err := c.store.ClaimIdempotencyKey(ctx, key, exec.ID)
		if err != nil {
			return nil, storeError("claim idempotency key", err)
		}
		if !claimed {
			return c.skipDuplicate(ctx, exec, owner)
		}
	}

	startedAt := c.config.Now()
	if err := c.fsm.Transition(ctx, exec.ID, schema.ExecutionStatusPending, schema.ExecutionStatusRunning,
		func() error { return c.store.StartExecution(ctx, exec.ID, startedAt) }, nil); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "execution started", "actions", len(rule.Actions))

	results := make([]schema.ActionResult, 0, len(rule.Actions))
	var first, last time.Time
	for i, action := range rule.Actions {
		res := c.runAction(ctx, exec.ID, rule.ID, i, action, data)
		if i == 0 {
			first = res.ExecutedAt
		}
		last = res.ExecutedAt.Add(time.Duration(res.DurationMs) * time.Millisecond)
		results = append(results, res)
	}
	elapsed := last.Sub(first).Milliseconds()

	outcome := store.ExecutionOutcome{
		ExecutedActions: results,
		ExecutionTimeMs: elapsed,
		CompletedAt:     c.config.Now(),
	}
	if err := c.fsm.Transition(ctx, exec.ID, schema.ExecutionStatusRunning, schema.ExecutionStatusCompleted,
		func() error { return c.store.CompleteExecution(ctx, exec.ID, outcome) }, nil); err != nil {
		c.logger.ErrorContext(ctx, "failed to record execution outcome", "error", err)
		return nil, err
	}

	failed := 0
	for _, r := range results {
		if r.Status == schema.ActionStatusFailed {
			failed++
		}
	}
	c.logger.InfoContext(ctx, "execution completed",
		"actions", len(results), "failed", failed, "execution_time_ms", elapsed)

	return &Result{
		Success:         true,
		ExecutionID:     exec.ID,
		Status:          schema.ExecutionStatusCompleted,
		ExecutedActions: len(results),
		ExecutionTimeMs: elapsed,
		Actions:         results,
	}, nil
}

func (c *Controller) skipDuplicate(ctx context.Context, exec *schema.WorkflowExecution, owner string) (*Result, error) {
	if err := c.fsm.Transition(ctx, exec.ID, exec.Status, schema.ExecutionStatusSkipped,
		func() error { return c.store.SkipExecution(ctx, exec.ID, owner, c.config.Now()) },
		&store.EventPayload{DuplicateOf: owner}); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "duplicate trigger, execution skipped", "duplicate_of", owner)
	return &Result{
		Success:     true,
		ExecutionID: exec.ID,
		Status:      schema.ExecutionStatusSkipped,
		Skipped:     true,
		DuplicateOf: owner,
	}, nil
}

type dispatchOutcome struct {
	handled bool
	out     *actions.Output
	err     error
}

// runAction invokes one action under its own deadline and turns every way it
// can go wrong into a failed ActionResult.
func (c *Controller) runAction(ctx context.Context, executionID, ruleID string, index int,
	action schema.WorkflowAction, data schema.TriggerData) schema.ActionResult {
	ctx = logging.WithActionType(ctx, string(action.Type))
	started := c.config.Now()
	res := schema.ActionResult{Action: action, ExecutedAt: started}

	known := c.dispatcher.Registry().Has(action.Type)
	var o dispatchOutcome
	if known {
		if err := c.breakers.Allow(action.Type); err != nil {
			o = dispatchOutcome{handled: true, err: err}
		}
	}
	if o.err == nil {
		o = c.dispatch(ctx, actions.Input{
			ExecutionID: executionID,
			RuleID:      ruleID,
			Action:      action,
			TriggerData: data,
		}, c.timeoutFor(action))
		if known {
			switch {
			case o.err == nil:
				c.breakers.Success(action.Type)
			case CountsAsFailure(o.err):
				if c.breakers.Failure(action.Type) == CircuitOpen {
					c.logger.WarnContext(ctx, "circuit opened for action type")
				}
			default:
				c.breakers.Release(action.Type)
			}
		}
	}
	res.DurationMs = c.config.Now().Sub(started).Milliseconds()

	eventType := store.EventActionCompleted
	switch {
	case o.err != nil:
		res.Status = schema.ActionStatusFailed
		res.Error = o.err.Error()
		eventType = store.EventActionFailed
		c.logger.WarnContext(ctx, "action failed", "index", index, "error", o.err)
	case !o.handled || skippedOutput(o.out):
		res.Status = schema.ActionStatusCompleted
		res.Skipped = true
		eventType = store.EventActionSkipped
	default:
		res.Status = schema.ActionStatusCompleted
		c.logger.DebugContext(ctx, "action completed", "index", index, "duration_ms", res.DurationMs)
	}

	payload, _ := json.Marshal(store.EventPayload{ActionType: action.Type, Error: res.Error, DurationMs: res.DurationMs})
	if err := c.store.AppendEvent(ctx, &store.ExecutionEvent{
		ExecutionID: executionID,
		Type:        eventType,
		ActionIndex: index,
		Payload:     payload,
	}); err != nil {
		c.logger.ErrorContext(ctx, "append action event failed", "index", index, "error", err)
	}
	return res
}

// dispatch runs the handler on its own goroutine so a handler that ignores its
// context still cannot hold the execution past the deadline.
func (c *Controller) dispatch(ctx context.Context, in actions.Input, timeout time.Duration) dispatchOutcome {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan dispatchOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- dispatchOutcome{handled: true, err: schema.NewErrorf(schema.ErrCodeExecution,
					"handler panicked: %v", r).WithAction(in.Action.Type)}
			}
		}()
		handled, out, err := c.dispatcher.Dispatch(actx, in)
		done <- dispatchOutcome{handled: handled, out: out, err: err}
	}()

	select {
	case o := <-done:
		return o
	case <-actx.Done():
		if ctx.Err() != nil {
			return dispatchOutcome{handled: true, err: schema.NewErrorf(schema.ErrCodeExecution,
				"cancelled: %s", ctx.Err().Error()).WithAction(in.Action.Type).WithCause(ctx.Err())}
		}
		return dispatchOutcome{handled: true, err: schema.NewErrorf(schema.ErrCodeTimeout,
			"timed out after %s", timeout).WithAction(in.Action.Type).WithCause(actx.Err())}
	}
}

func (c *Controller) timeoutFor(action schema.WorkflowAction) time.Duration {
	var secs float64
	switch v := action.Params[ParamTimeoutSeconds].(type) {
	case float64:
		secs = v
	case int:
		secs = float64(v)
	case int64:
		secs = float64(v)
	}
	if secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return c.config.ActionTimeout
}

func skippedOutput(out *actions.Output) bool {
	if out == nil {
		return false
	}
	skipped, _ := out.Data["skipped"].(bool)
	return skipped
}

func resultFrom(exec *schema.WorkflowExecution) *Result {
	return &Result{
		Success:         true,
		ExecutionID:     exec.ID,
		Status:          exec.Status,
		ExecutedActions: len(exec.ExecutedActions),
		ExecutionTimeMs: exec.ExecutionTimeMs,
		Skipped:         exec.Status == schema.ExecutionStatusSkipped,
		DuplicateOf:     exec.DuplicateOf,
		Actions:         exec.ExecutedActions,
	}
}

// storeError keeps structured errors (NOT_FOUND, CONFLICT) and wraps anything else as STORE_ERROR.
func storeError(op string, err error) error {
	var se *schema.Error
	if errors.As(err, &se) {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}

// Status is the read model served by the status surfaces.
type Status struct {
	Execution *schema.WorkflowExecution `json:"execution"`
	Actions   []*store.ActionState      `json:"actions"`
}

// Status loads an execution with its per-action audit trail.
func (c *Controller) Status(ctx context.Context, executionID string) (*Status, error) {
	exec, err := c.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, storeError("load execution", err)
	}
	states, err := store.ReplayActions(ctx, c.store, executionID)
	if err != nil {
		return nil, storeError("replay audit log", err)
	}
	if states == nil {
		states = []*store.ActionState{}
	}
	return &Status{Execution: exec, Actions: states}, nil
}
