package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/procura/internal/engine"
	"github.com/rendis/procura/internal/logging"
	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/pkg/schema"
)

// handleExecute runs one pending execution.
func (s *Server) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	executionID, err := req.RequireString("execution_id")
	if err != nil || executionID == "" {
		return mcp.NewToolResultError("execution_id is required"), nil
	}
	inv := engine.Invocation{
		ExecutionID: executionID,
		TriggerType: req.GetString("trigger_type", ""),
		TriggerData: schema.TriggerData(mcp.ParseStringMap(req, "trigger_data", nil)),
	}

	if sub := req.GetString("subscriber_id", ""); sub != "" {
		s.captureSession(ctx, sub)
		s.watchers.Watch(executionID, sub)
	}

	ctx = logging.WithExecutionID(ctx, executionID)
	result, runErr := s.executor.Execute(ctx, inv)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow execution failed: %v", runErr)), nil
	}
	return marshalResult(result)
}

// handleTrigger fires a trigger against the active rules.
func (s *Server) handleTrigger(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	triggerType, err := req.RequireString("trigger_type")
	if err != nil || triggerType == "" {
		return mcp.NewToolResultError("trigger_type is required"), nil
	}
	data := schema.TriggerData(mcp.ParseStringMap(req, "trigger_data", nil))

	ctx = logging.WithTriggerType(ctx, triggerType)
	outcomes, fireErr := s.triggers.Fire(ctx, triggerType, data)
	if fireErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("trigger failed: %v", fireErr)), nil
	}

	// Immediate executions have already finished; only deferred ones still
	// produce events worth watching.
	if sub := req.GetString("subscriber_id", ""); sub != "" {
		s.captureSession(ctx, sub)
		for _, o := range outcomes {
			if o.ScheduledFor != nil {
				s.watchers.Watch(o.ExecutionID, sub)
			}
		}
	}

	return marshalResult(map[string]any{
		"trigger_type": triggerType,
		"matched":      len(outcomes),
		"outcomes":     outcomes,
	})
}

// handleStatus returns an execution and its per-action audit trail.
func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	executionID, err := req.RequireString("execution_id")
	if err != nil || executionID == "" {
		return mcp.NewToolResultError("execution_id is required"), nil
	}

	status, statusErr := s.executor.Status(ctx, executionID)
	if statusErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", statusErr)), nil
	}
	return marshalResult(status)
}

// handleQuery lists rules, executions, or audit events.
func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	filter := mcp.ParseStringMap(req, "filter", map[string]any{})

	switch resource {
	case "rules":
		return s.queryRules(ctx, filter)
	case "executions":
		return s.queryExecutions(ctx, filter)
	case "events":
		return s.queryEvents(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource: %s", resource)), nil
	}
}

func (s *Server) queryRules(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	rf := store.RuleFilter{
		TriggerType: extractString(filter, "trigger_type"),
		Limit:       extractInt(filter, "limit", 0),
	}
	if v, ok := filter["active_only"].(bool); ok {
		rf.ActiveOnly = v
	}

	rules, err := s.store.ListRules(ctx, rf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query rules failed: %v", err)), nil
	}
	if rules == nil {
		rules = []*schema.WorkflowRule{}
	}
	return marshalResult(map[string]any{"rules": rules})
}

func (s *Server) queryExecutions(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	ef := store.ExecutionFilter{
		RuleID: extractString(filter, "rule_id"),
		Limit:  extractInt(filter, "limit", 50),
	}
	if v := extractString(filter, "status"); v != "" {
		status := schema.ExecutionStatus(v)
		ef.Status = &status
	}

	execs, err := s.store.ListExecutions(ctx, ef)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query executions failed: %v", err)), nil
	}
	if execs == nil {
		execs = []*schema.WorkflowExecution{}
	}
	return marshalResult(map[string]any{"executions": execs})
}

func (s *Server) queryEvents(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	executionID := extractString(filter, "execution_id")
	if executionID == "" {
		return mcp.NewToolResultError("filter.execution_id is required for events"), nil
	}

	events, err := s.store.ListEvents(ctx, executionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query events failed: %v", err)), nil
	}
	if events == nil {
		events = []*store.ExecutionEvent{}
	}
	return marshalResult(map[string]any{"events": events})
}

// --- Helpers ---

func extractString(filter map[string]any, key string) string {
	v, _ := filter[key].(string)
	return v
}

func extractInt(filter map[string]any, key string, defaultVal int) int {
	switch n := filter[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return defaultVal
}

func (s *Server) captureSession(ctx context.Context, subscriberID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(subscriberID, session.SessionID())
	}
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
