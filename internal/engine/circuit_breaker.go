package engine

import (
	"sync"
	"time"

	"github.com/rendis/procura/pkg/schema"
)

// CircuitState is the state of one action type's breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the per-action-type circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	// Zero or less disables breaking.
	FailureThreshold int
	// Cooldown is how long an open circuit rejects calls before letting one probe through.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the defaults used by the serve command. Breaking
// is off until a threshold is configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 0,
		Cooldown:         30 * time.Second,
	}
}

// configErrorCodes are handler errors caused by rule params or entity state
// rather than a failing downstream. They never move a breaker.
var configErrorCodes = []string{
	schema.ErrCodeValidation,
	schema.ErrCodeInvalidTransition,
	schema.ErrCodeNotFound,
	schema.ErrCodeConflict,
}

// CountsAsFailure reports whether a handler error should count toward opening
// the action type's circuit.
func CountsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	for _, code := range configErrorCodes {
		if schema.IsCode(err, code) {
			return false
		}
	}
	return true
}

type breaker struct {
	mu          sync.Mutex
	state       CircuitState
	failures    int
	openedAt    time.Time
	probeIssued bool
}

// BreakerSnapshot is a point-in-time view of one breaker.
type BreakerSnapshot struct {
	ActionType          schema.ActionType `json:"action_type"`
	State               string            `json:"state"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
}

// Breakers holds one circuit breaker per action type. A handler whose downstream
// keeps failing is short-circuited for the cooldown instead of being invoked
// again for every execution.
type Breakers struct {
	mu       sync.Mutex
	breakers map[schema.ActionType]*breaker
	config   BreakerConfig
	now      func() time.Time
}

// NewBreakers creates an empty breaker set.
func NewBreakers(config BreakerConfig, now func() time.Time) *Breakers {
	if now == nil {
		now = time.Now
	}
	return &Breakers{
		breakers: make(map[schema.ActionType]*breaker),
		config:   config,
		now:      now,
	}
}

// Allow returns nil when an action of type t may run, or a CIRCUIT_OPEN error.
// After the cooldown, exactly one probe is admitted; its outcome closes or
// re-opens the circuit.
func (b *Breakers) Allow(t schema.ActionType) error {
	if b.config.FailureThreshold <= 0 {
		return nil
	}
	cb := b.get(t)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		elapsed := b.now().Sub(cb.openedAt)
		if elapsed < b.config.Cooldown {
			return schema.NewErrorf(schema.ErrCodeCircuitOpen,
				"circuit open after %d consecutive failures", cb.failures).
				WithAction(t).
				WithDetails(map[string]any{
					"consecutive_failures": cb.failures,
					"retry_in":             (b.config.Cooldown - elapsed).String(),
				})
		}
		cb.state = CircuitHalfOpen
		cb.probeIssued = true
		return nil
	case CircuitHalfOpen:
		if cb.probeIssued {
			return schema.NewError(schema.ErrCodeCircuitOpen, "circuit half-open, probe in flight").WithAction(t)
		}
		cb.probeIssued = true
	}
	return nil
}

// Success closes the circuit for t.
func (b *Breakers) Success(t schema.ActionType) {
	cb := b.get(t)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.probeIssued = false
}

// Failure records a failure for t and returns the resulting state.
func (b *Breakers) Failure(t schema.ActionType) CircuitState {
	cb := b.get(t)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == CircuitHalfOpen ||
		(b.config.FailureThreshold > 0 && cb.failures >= b.config.FailureThreshold) {
		cb.state = CircuitOpen
		cb.openedAt = b.now()
		cb.probeIssued = false
	}
	return cb.state
}

// Release ends a half-open probe whose outcome says nothing about the
// downstream, so the next call may probe again. Other states are untouched.
func (b *Breakers) Release(t schema.ActionType) {
	cb := b.get(t)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitHalfOpen {
		cb.probeIssued = false
	}
}

// State returns the current state for t.
func (b *Breakers) State(t schema.ActionType) CircuitState {
	cb := b.get(t)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot lists every breaker that has seen traffic.
func (b *Breakers) Snapshot() []BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BreakerSnapshot, 0, len(b.breakers))
	for t, cb := range b.breakers {
		cb.mu.Lock()
		out = append(out, BreakerSnapshot{ActionType: t, State: cb.state.String(), ConsecutiveFailures: cb.failures})
		cb.mu.Unlock()
	}
	return out
}

func (b *Breakers) get(t schema.ActionType) *breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[t]
	if !ok {
		cb = &breaker{}
		b.breakers[t] = cb
	}
	return cb
}
