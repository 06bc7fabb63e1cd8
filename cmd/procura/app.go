package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rendis/procura/internal/actions"
	"github.com/rendis/procura/internal/api"
	"github.com/rendis/procura/internal/engine"
	"github.com/rendis/procura/internal/expressions"
	"github.com/rendis/procura/internal/logging"
	"github.com/rendis/procura/internal/rules"
	"github.com/rendis/procura/internal/scheduler"
	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/internal/streaming"
	"github.com/rendis/procura/internal/templater"
	"github.com/rendis/procura/internal/trigger"
	"github.com/rendis/procura/internal/validation"
	"github.com/rendis/procura/pkg/mcp"
)

// app is the wired process: one store, one controller, and the surfaces on top.
type app struct {
	cfg        Config
	logger     *slog.Logger
	db         *store.LibSQLStore
	hub        *streaming.MemoryHub
	store      store.Store
	registry   *actions.Registry
	controller *engine.Controller
	evaluator  *trigger.Evaluator
	validator  *validation.Validator
	scheduler  *scheduler.Scheduler
}

func newLogger(cfg Config) *slog.Logger {
	// stdout carries the MCP protocol, so logs always go to stderr.
	return logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}

// openStore opens and migrates the database.
func openStore(ctx context.Context, cfg Config) (*store.LibSQLStore, error) {
	if !strings.Contains(cfg.DBPath, "://") {
		dir := filepath.Dir(strings.TrimPrefix(cfg.DBPath, "file:"))
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := store.NewLibSQLStore(cfg.dsn())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func newApp(ctx context.Context, cfg Config, logger *slog.Logger) (*app, error) {
	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	hub := streaming.NewMemoryHub()
	s := streaming.NewPublishingStore(db, hub, logger)

	registry := actions.NewRegistry()
	deps := actions.Deps{
		Store:     s,
		Templater: templater.New(expressions.NewGoJQEngine(), logger),
		Logger:    logger,
	}
	if err := actions.RegisterBuiltins(registry, deps); err != nil {
		db.Close()
		return nil, fmt.Errorf("register actions: %w", err)
	}

	controller := engine.NewController(s, actions.NewDispatcher(registry, logger), engine.Config{
		ActionTimeout: time.Duration(cfg.ActionTimeout),
		Breaker: engine.BreakerConfig{
			FailureThreshold: cfg.CircuitFailureThreshold,
			Cooldown:         time.Duration(cfg.CircuitCooldown),
		},
	}, logger)

	evaluator, err := trigger.NewEvaluator(s, controller, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("trigger evaluator: %w", err)
	}

	validator, err := validation.New(registry)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("validator: %w", err)
	}

	sched := scheduler.New(s, controller, scheduler.Config{
		Spec:     cfg.SchedulerSpec,
		PoolSize: cfg.SchedulerPoolSize,
	}, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		hub:        hub,
		store:      s,
		registry:   registry,
		controller: controller,
		evaluator:  evaluator,
		validator:  validator,
		scheduler:  sched,
	}, nil
}

// loadRulesFile installs cfg.RulesFile at startup when one is configured.
func (a *app) loadRulesFile(ctx context.Context) error {
	if a.cfg.RulesFile == "" {
		return nil
	}
	list, err := rules.LoadFile(a.cfg.RulesFile)
	if err != nil {
		return err
	}
	report, err := rules.Install(ctx, a.store, a.validator, list)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "rules loaded", "file", a.cfg.RulesFile, "count", len(report.Loaded), "warnings", len(report.Warnings))
	return nil
}

func (a *app) apiServer() *api.Server {
	return api.NewServer(api.Deps{
		Store:     a.store,
		Executor:  a.controller,
		Triggers:  a.evaluator,
		Validator: a.validator,
		Hub:       a.hub,
		Breakers:  a.controller.Breakers(),
		Logger:    a.logger,
	})
}

func (a *app) mcpServer() *mcp.Server {
	return mcp.NewServer(mcp.ServerDeps{
		Executor: a.controller,
		Triggers: a.evaluator,
		Store:    a.store,
		Hub:      a.hub,
		Logger:   a.logger,
	})
}

func (a *app) Close() error {
	a.scheduler.Stop()
	return a.db.Close()
}
