package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/procura/internal/engine"
	"github.com/rendis/procura/internal/logging"
	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/pkg/schema"
)

// Defaults for the deferred-execution sweep.
const (
	DefaultSpec      = "@every 30s"
	DefaultPoolSize  = 4
	DefaultBatchSize = 100
)

// Runner runs one execution. Satisfied by *engine.Controller.
type Runner interface {
	Execute(ctx context.Context, inv engine.Invocation) (*engine.Result, error)
}

// Config configures the Scheduler.
type Config struct {
	Spec      string // cron spec for the sweep, e.g. "@every 30s" or "*/1 * * * *"
	PoolSize  int
	BatchSize int
	Now       func() time.Time
}

// Scheduler periodically picks up pending executions whose scheduled_for has
// passed and runs them on a bounded worker pool. An execution already in flight
// is not submitted twice.
type Scheduler struct {
	store  store.Store
	runner Runner
	pool   *engine.WorkerPool
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// New creates a Scheduler.
func New(s store.Store, runner Runner, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:  s,
		runner: runner,
		pool:   engine.NewWorkerPool(cfg.PoolSize),
		config: cfg,
		logger: logger,
	}
}

// Start registers the sweep with cron, runs one sweep immediately and returns.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New()
	if _, err := c.AddFunc(s.config.Spec, func() { s.sweepAndLog(runCtx) }); err != nil {
		cancel()
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid scheduler spec %q: %s", s.config.Spec, err.Error()).WithCause(err)
	}
	s.cron = c
	s.cancel = cancel

	s.sweepAndLog(runCtx)
	c.Start()
	s.logger.Info("scheduler started", slog.String("spec", s.config.Spec), slog.Int("pool_size", s.config.PoolSize))
	return nil
}

// Stop halts the cron loop, cancels running sweeps and waits for in-flight executions.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	cancel()
	s.pool.Shutdown()
	s.logger.Info("scheduler stopped")
}

// Sweep submits every due execution to the pool and returns how many were
// accepted. Executions already in flight are skipped.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	due, err := s.store.ListDueExecutions(ctx, s.config.Now(), s.config.BatchSize)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeStore, "list due executions: %s", err.Error()).WithCause(err)
	}

	submitted := 0
	for _, exec := range due {
		accepted, err := s.pool.Submit(ctx, exec.ID, func(ctx context.Context) error {
			return s.run(ctx, exec)
		})
		if err != nil {
			return submitted, err
		}
		if accepted {
			submitted++
		}
	}
	return submitted, nil
}

// Wait blocks until every submitted execution has finished.
func (s *Scheduler) Wait() { s.pool.Wait() }

// Metrics returns the worker pool counters.
func (s *Scheduler) Metrics() engine.PoolMetrics { return s.pool.Metrics() }

func (s *Scheduler) sweepAndLog(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("scheduler sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("deferred executions submitted", slog.Int("count", n))
	}
}

func (s *Scheduler) run(ctx context.Context, exec *schema.WorkflowExecution) error {
	ctx = logging.WithExecution(ctx, exec.ID, exec.RuleID)
	res, err := s.runner.Execute(ctx, engine.Invocation{
		TriggerType: exec.TriggerType,
		TriggerData: exec.TriggerData,
		ExecutionID: exec.ID,
	})
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeConflict) {
			s.logger.DebugContext(ctx, "deferred execution picked up elsewhere")
			return nil
		}
		s.logger.ErrorContext(ctx, "deferred execution failed", "error", err)
		return err
	}
	s.logger.InfoContext(ctx, "deferred execution finished",
		"status", string(res.Status), "executed_actions", res.ExecutedActions)
	return nil
}
