package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

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

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Executor Executor
	Triggers Firer
	Store    store.Store
	Hub      streaming.EventHub
	Logger   *slog.Logger
}

// Server wraps an MCP server with the procura tool handlers.
type Server struct {
	executor  Executor
	triggers  Firer
	store     store.Store
	hub       streaming.EventHub
	sessions  *SessionRegistry
	watchers  *WatchRegistry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Server{
		executor: deps.Executor,
		triggers: deps.Triggers,
		store:    deps.Store,
		hub:      deps.Hub,
		sessions: NewSessionRegistry(),
		watchers: NewWatchRegistry(),
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"procura",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Procura runs procurement workflow rules. Use procura.trigger to fire a business event against the active rules, procura.execute to run a pending execution by id, procura.status to inspect an execution and its actions, and procura.query to list rules, executions or audit events. Pass subscriber_id to receive execution events as notifications."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin
// closes. When a hub is configured, execution events are relayed to watching
// sessions for the lifetime of ctx.
func (s *Server) Serve(ctx context.Context) error {
	if s.hub != nil {
		relay, err := s.startRelay(ctx)
		if err != nil {
			return err
		}
		defer relay()
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: executeTool(), Handler: s.handleExecute},
		{Tool: triggerTool(), Handler: s.handleTrigger},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func executeTool() mcp.Tool {
	return mcp.NewTool("procura.execute",
		mcp.WithDescription("Run a pending workflow execution"),
		mcp.WithString("execution_id", mcp.Required(), mcp.Description("ID of the pending execution")),
		mcp.WithString("trigger_type", mcp.Description("Trigger type (default: the one stored with the execution)")),
		mcp.WithObject("trigger_data", mcp.Description("Trigger payload (default: the one stored with the execution)")),
		mcp.WithString("subscriber_id", mcp.Description("Receive this execution's events as notifications")),
	)
}

func triggerTool() mcp.Tool {
	return mcp.NewTool("procura.trigger",
		mcp.WithDescription("Fire a business event against the active workflow rules"),
		mcp.WithString("trigger_type", mcp.Required(), mcp.Description("Trigger type, e.g. request_created")),
		mcp.WithObject("trigger_data", mcp.Description("Event payload")),
		mcp.WithString("subscriber_id", mcp.Description("Receive the started executions' events as notifications")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("procura.status",
		mcp.WithDescription("Get workflow execution status"),
		mcp.WithString("execution_id", mcp.Required(), mcp.Description("ID of the execution to query")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("procura.query",
		mcp.WithDescription("Query rules, executions, or audit events"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("rules", "executions", "events"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (trigger_type, active_only, rule_id, status, execution_id, limit)")),
	)
}
