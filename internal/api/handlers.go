package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rendis/procura/internal/engine"
	"github.com/rendis/procura/internal/logging"
	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/pkg/schema"
)

const maxBodyBytes = 1 << 20

// executeResponse is the success body of the invocation endpoint.
type executeResponse struct {
	Success         bool   `json:"success"`
	ExecutionID     string `json:"execution_id"`
	ExecutedActions int    `json:"executed_actions"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Skipped         bool   `json:"skipped,omitempty"`
	DuplicateOf     string `json:"duplicate_of,omitempty"`
}

// handleExecuteWorkflow runs one execution synchronously. A malformed body is a
// 400; any engine-level failure is a 500 with its message.
func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if s.deps.Validator != nil {
		if err := s.deps.Validator.ValidateInvocation(body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var inv engine.Invocation
	if err := json.Unmarshal(raw, &inv); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid invocation: %v", err))
		return
	}

	ctx := logging.WithExecutionID(r.Context(), inv.ExecutionID)
	res, err := s.deps.Executor.Execute(ctx, inv)
	if err != nil {
		s.deps.Logger.ErrorContext(ctx, "execute workflow", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, executeResponse{
		Success:         res.Success,
		ExecutionID:     res.ExecutionID,
		ExecutedActions: res.ExecutedActions,
		ExecutionTimeMs: res.ExecutionTimeMs,
		Skipped:         res.Skipped,
		DuplicateOf:     res.DuplicateOf,
	})
}

// handleFireTrigger evaluates every active rule for the trigger type against
// the posted trigger data.
func (s *Server) handleFireTrigger(w http.ResponseWriter, r *http.Request) {
	triggerType := r.PathValue("type")
	ctx := logging.WithTriggerType(r.Context(), triggerType)

	var data schema.TriggerData
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	outcomes, err := s.deps.Triggers.Fire(ctx, triggerType, data)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trigger_type": triggerType,
		"matched":      len(outcomes),
		"outcomes":     outcomes,
	})
}

// handleExecutionStatus returns an execution and its per-action audit trail.
func (s *Server) handleExecutionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Executor.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	filter := store.ExecutionFilter{
		RuleID: r.URL.Query().Get("rule_id"),
		Limit:  queryInt(r, "limit", 50),
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := schema.ExecutionStatus(v)
		filter.Status = &status
	}

	execs, err := s.deps.Store.ListExecutions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("list executions: %v", err))
		return
	}
	if execs == nil {
		execs = []*schema.WorkflowExecution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	filter := store.RuleFilter{
		TriggerType: r.URL.Query().Get("trigger_type"),
		ActiveOnly:  r.URL.Query().Get("active") == "true",
		Limit:       queryInt(r, "limit", 0),
	}

	rules, err := s.deps.Store.ListRules(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("list rules: %v", err))
		return
	}
	if rules == nil {
		rules = []*schema.WorkflowRule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.deps.Breakers != nil {
		body["circuits"] = s.deps.Breakers.Snapshot()
	}
	writeJSON(w, http.StatusOK, body)
}
