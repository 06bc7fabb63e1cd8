// Package api serves the HTTP surface: the workflow invocation endpoint plus
// trigger, status and rule listing routes.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/procura/internal/engine"
	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/internal/streaming"
	"github.com/rendis/procura/internal/trigger"
	"github.com/rendis/procura/pkg/schema"
)

// Executor runs and reports on executions. Satisfied by *engine.Controller.
type Executor interface {
	Execute(ctx context.Context, inv engine.Invocation) (*engine.Result, error)
	Status(ctx context.Context, executionID string) (*engine.Status, error)
}

// Firer starts executions for a trigger. Satisfied by *trigger.Evaluator.
type Firer interface {
	Fire(ctx context.Context, triggerType string, data schema.TriggerData) ([]trigger.Outcome, error)
}

// InvocationValidator checks a decoded invocation body.
type InvocationValidator interface {
	ValidateInvocation(body any) error
}

// Deps holds the dependencies for the API server.
type Deps struct {
	Store     store.Store
	Executor  Executor
	Triggers  Firer
	Validator InvocationValidator
	Hub       streaming.EventHub // optional; enables the event stream route
	Breakers  *engine.Breakers   // optional; reported by /healthz
	Logger    *slog.Logger
}

// Server serves the HTTP routes.
type Server struct {
	deps Deps
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /functions/execute-workflow", s.handleExecuteWorkflow)
	mux.HandleFunc("POST /triggers/{type}", s.handleFireTrigger)
	mux.HandleFunc("GET /executions", s.handleListExecutions)
	mux.HandleFunc("GET /executions/{id}", s.handleExecutionStatus)
	mux.HandleFunc("GET /rules", s.handleListRules)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.deps.Hub != nil {
		mux.HandleFunc("GET /executions/{id}/events", s.handleExecutionEvents)
	}

	return mux
}
