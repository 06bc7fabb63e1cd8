package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/procura/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows, so QueryRow is used for all of them.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Rules ---

func (s *LibSQLStore) CreateRule(ctx context.Context, rule *schema.WorkflowRule) error {
	conds, err := marshalMapOrDefault(rule.TriggerConditions)
	if err != nil {
		return fmt.Errorf("marshal trigger_conditions: %w", err)
	}
	actions, err := json.Marshal(nonNilActions(rule.Actions))
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_rules (id, name, description, trigger_type, trigger_conditions, actions, priority, delay_minutes, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, description=excluded.description,
		   trigger_type=excluded.trigger_type, trigger_conditions=excluded.trigger_conditions,
		   actions=excluded.actions, priority=excluded.priority, delay_minutes=excluded.delay_minutes,
		   is_active=excluded.is_active, updated_at=excluded.updated_at`,
		rule.ID, rule.Name, nullStr(rule.Description), rule.TriggerType, string(conds), string(actions),
		rule.Priority, rule.DelayMinutes, boolInt(rule.Active), timeOrNow(rule.CreatedAt), timeOrNow(rule.UpdatedAt),
	)
	return err
}

const ruleColumns = `id, name, description, trigger_type, trigger_conditions, actions, priority, delay_minutes, is_active, created_at, updated_at`

func (s *LibSQLStore) GetRule(ctx context.Context, id string) (*schema.WorkflowRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM workflow_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow rule", id)
	}
	return rule, err
}

func (s *LibSQLStore) ListRules(ctx context.Context, filter RuleFilter) ([]*schema.WorkflowRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM workflow_rules`
	var where []string
	var args []any
	if filter.TriggerType != "" {
		where = append(where, "trigger_type = ?")
		args = append(args, filter.TriggerType)
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = 1")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY priority DESC, created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*schema.WorkflowRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*schema.WorkflowRule, error) {
	r := &schema.WorkflowRule{}
	var desc sql.NullString
	var condsJSON, actionsJSON string
	var active int
	if err := row.Scan(&r.ID, &r.Name, &desc, &r.TriggerType, &condsJSON, &actionsJSON,
		&r.Priority, &r.DelayMinutes, &active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Description = desc.String
	r.Active = active != 0
	if condsJSON != "" {
		if err := json.Unmarshal([]byte(condsJSON), &r.TriggerConditions); err != nil {
			return nil, fmt.Errorf("unmarshal trigger_conditions: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(actionsJSON), &r.Actions); err != nil {
		return nil, fmt.Errorf("unmarshal actions: %w", err)
	}
	return r, nil
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, exec *schema.WorkflowExecution) error {
	data, err := marshalMapOrDefault(exec.TriggerData)
	if err != nil {
		return fmt.Errorf("marshal trigger_data: %w", err)
	}
	results, err := json.Marshal(nonNilResults(exec.ExecutedActions))
	if err != nil {
		return fmt.Errorf("marshal executed_actions: %w", err)
	}
	status := exec.Status
	if status == "" {
		status = schema.ExecutionStatusPending
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_executions (id, rule_id, trigger_type, trigger_data, executed_actions, status, execution_time_ms, idempotency_key, duplicate_of, scheduled_for, created_at, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.RuleID, exec.TriggerType, string(data), string(results), string(status), exec.ExecutionTimeMs,
		nullStr(exec.IdempotencyKey), nullStr(exec.DuplicateOf), nullTime(exec.ScheduledFor),
		timeOrNow(exec.CreatedAt), nullTime(exec.StartedAt), nullTime(exec.CompletedAt),
	)
	return err
}

const executionColumns = `id, rule_id, trigger_type, trigger_data, executed_actions, status, execution_time_ms, idempotency_key, duplicate_of, scheduled_for, created_at, started_at, completed_at`

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*schema.WorkflowExecution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM workflow_executions WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow execution", id)
	}
	return exec, err
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*schema.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions`
	var where []string
	var args []any
	if filter.RuleID != "" {
		where = append(where, "rule_id = ?")
		args = append(args, filter.RuleID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return s.queryExecutions(ctx, query, args...)
}

func (s *LibSQLStore) ListDueExecutions(ctx context.Context, now time.Time, limit int) ([]*schema.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions
		WHERE status = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?
		ORDER BY scheduled_for ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryExecutions(ctx, query, string(schema.ExecutionStatusPending), now.UTC())
}

func (s *LibSQLStore) queryExecutions(ctx context.Context, query string, args ...any) ([]*schema.WorkflowExecution, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*schema.WorkflowExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func scanExecution(row rowScanner) (*schema.WorkflowExecution, error) {
	e := &schema.WorkflowExecution{}
	var (
		dataJSON, resultsJSON, status string
		idemKey, dupOf                sql.NullString
		scheduledFor, started, done   sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.RuleID, &e.TriggerType, &dataJSON, &resultsJSON, &status, &e.ExecutionTimeMs,
		&idemKey, &dupOf, &scheduledFor, &e.CreatedAt, &started, &done); err != nil {
		return nil, err
	}
	e.Status = schema.ExecutionStatus(status)
	e.IdempotencyKey = idemKey.String
	e.DuplicateOf = dupOf.String
	if dataJSON != "" {
		if err := json.Unmarshal([]byte(dataJSON), &e.TriggerData); err != nil {
			return nil, fmt.Errorf("unmarshal trigger_data: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(resultsJSON), &e.ExecutedActions); err != nil {
		return nil, fmt.Errorf("unmarshal executed_actions: %w", err)
	}
	e.ScheduledFor = timePtr(scheduledFor)
	e.StartedAt = timePtr(started)
	e.CompletedAt = timePtr(done)
	return e, nil
}

// StartExecution moves a pending execution to running. It fails with CONFLICT
// when the execution is no longer pending, so only one caller wins.
func (s *LibSQLStore) StartExecution(ctx context.Context, id string, startedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_executions SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(schema.ExecutionStatusRunning), startedAt, id, string(schema.ExecutionStatusPending),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.transitionConflict(ctx, id, schema.ExecutionStatusRunning)
	}
	return nil
}

func (s *LibSQLStore) CompleteExecution(ctx context.Context, id string, outcome ExecutionOutcome) error {
	results, err := json.Marshal(nonNilResults(outcome.ExecutedActions))
	if err != nil {
		return fmt.Errorf("marshal executed_actions: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_executions SET executed_actions = ?, status = ?, execution_time_ms = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(results), string(schema.ExecutionStatusCompleted), outcome.ExecutionTimeMs, timeOrNow(outcome.CompletedAt),
		id, string(schema.ExecutionStatusRunning),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.transitionConflict(ctx, id, schema.ExecutionStatusCompleted)
	}
	return nil
}

func (s *LibSQLStore) SkipExecution(ctx context.Context, id, duplicateOf string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_executions SET status = ?, duplicate_of = ?, completed_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(schema.ExecutionStatusSkipped), nullStr(duplicateOf), timeOrNow(at),
		id, string(schema.ExecutionStatusPending), string(schema.ExecutionStatusRunning),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.transitionConflict(ctx, id, schema.ExecutionStatusSkipped)
	}
	return nil
}

// transitionConflict distinguishes a missing execution from one in the wrong state.
func (s *LibSQLStore) transitionConflict(ctx context.Context, id string, to schema.ExecutionStatus) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM workflow_executions WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return storeNotFound("workflow execution", id)
	}
	if err != nil {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeConflict, "workflow execution %q is %s, cannot move to %s", id, status, to).
		WithDetails(map[string]any{"execution_id": id, "from": status, "to": string(to)})
}

// --- Idempotency ---

func (s *LibSQLStore) ClaimIdempotencyKey(ctx context.Context, key, executionID string) (string, bool, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_idempotency_keys (key, execution_id) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		key, executionID,
	); err != nil {
		return "", false, err
	}
	var owner string
	if err := s.db.QueryRowContext(ctx,
		`SELECT execution_id FROM execution_idempotency_keys WHERE key = ?`, key,
	).Scan(&owner); err != nil {
		return "", false, err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE workflow_executions SET idempotency_key = ? WHERE id = ?`, key, executionID,
	); err != nil {
		return "", false, err
	}
	return owner, owner == executionID, nil
}

// --- Notifications ---

// CreateNotifications inserts all notifications in one transaction.
func (s *LibSQLStore) CreateNotifications(ctx context.Context, notifications []*Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, n := range notifications {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notifications (id, user_id, title, message, type, category, priority, metadata, read, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.UserID, n.Title, n.Message, n.Type, n.Category, n.Priority, nullRaw(n.Metadata),
			boolInt(n.Read), timeOrNow(n.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert notification for %s: %w", n.UserID, err)
		}
	}
	return tx.Commit()
}

func (s *LibSQLStore) ListNotifications(ctx context.Context, filter NotificationFilter) ([]*Notification, error) {
	query := `SELECT id, user_id, title, message, type, category, priority, metadata, read, created_at FROM notifications`
	var args []any
	if filter.UserID != "" {
		query += " WHERE user_id = ?"
		args = append(args, filter.UserID)
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n := &Notification{}
		var metadata sql.NullString
		var read int
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Category, &n.Priority,
			&metadata, &read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Metadata = rawOrNil(metadata)
		n.Read = read != 0
		out = append(out, n)
	}
	return out, rows.Err()
}

// --- Profiles and vendor metrics ---

func (s *LibSQLStore) CreateUserProfile(ctx context.Context, p *UserProfile) error {
	cats, err := json.Marshal(nonNilStrings(p.Categories))
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (id, full_name, email, role, categories, verification_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET full_name=excluded.full_name, email=excluded.email, role=excluded.role,
		   categories=excluded.categories, verification_status=excluded.verification_status`,
		p.ID, nullStr(p.FullName), nullStr(p.Email), p.Role, string(cats), nullStr(p.VerificationStatus), timeOrNow(p.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) ListUserProfiles(ctx context.Context, filter ProfileFilter) ([]*UserProfile, error) {
	query := `SELECT id, full_name, email, role, categories, verification_status, created_at FROM user_profiles`
	var args []any
	if filter.Role != "" {
		query += " WHERE role = ?"
		args = append(args, filter.Role)
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*UserProfile
	for rows.Next() {
		p := &UserProfile{}
		var fullName, email, verification sql.NullString
		var cats string
		if err := rows.Scan(&p.ID, &fullName, &email, &p.Role, &cats, &verification, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.FullName = fullName.String
		p.Email = email.String
		p.VerificationStatus = verification.String
		_ = json.Unmarshal([]byte(cats), &p.Categories)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) UpsertVendorMetrics(ctx context.Context, m *VendorMetrics) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vendor_performance_metrics (vendor_id, quality_score, response_time_avg_hours, completion_rate, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(vendor_id) DO UPDATE SET quality_score=excluded.quality_score,
		   response_time_avg_hours=excluded.response_time_avg_hours, completion_rate=excluded.completion_rate,
		   updated_at=excluded.updated_at`,
		m.VendorID, m.QualityScore, m.ResponseTimeAvgHours, m.CompletionRate, timeOrNow(m.UpdatedAt),
	)
	return err
}

// ListVendorCandidates returns vendor profiles joined with their metrics, ordered by
// quality score. Category matching against the JSON list is left to the ranker when
// category is empty; otherwise rows are pre-filtered with json_each.
func (s *LibSQLStore) ListVendorCandidates(ctx context.Context, category string) ([]*VendorCandidate, error) {
	query := `SELECT p.id, p.full_name, p.role, p.categories, p.verification_status,
			m.quality_score, m.response_time_avg_hours, m.completion_rate
		FROM user_profiles p
		JOIN vendor_performance_metrics m ON m.vendor_id = p.id
		WHERE p.role = ?`
	args := []any{RoleVendor}
	if category != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(p.categories) c WHERE c.value = ?)`
		args = append(args, category)
	}
	query += ` ORDER BY m.quality_score DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*VendorCandidate
	for rows.Next() {
		c := &VendorCandidate{}
		var fullName, verification sql.NullString
		var cats string
		if err := rows.Scan(&c.VendorID, &fullName, &c.Role, &cats, &verification,
			&c.QualityScore, &c.ResponseTimeAvgHours, &c.CompletionRate); err != nil {
			return nil, err
		}
		c.FullName = fullName.String
		c.VerificationStatus = verification.String
		_ = json.Unmarshal([]byte(cats), &c.Categories)
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Offers ---

func (s *LibSQLStore) CreateOffer(ctx context.Context, o *Offer) error {
	state := o.ApprovalState
	if state == "" {
		state = schema.StateFromTracks(o.AdminApprovalStatus, o.ClientApprovalStatus)
	}
	admin, client := state.Tracks()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO offers (id, request_id, vendor_id, client_id, price, approval_state, admin_approval_status, client_approval_status, client_approved_at, admin_approved_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.RequestID, o.VendorID, o.ClientID, o.Price, string(state), admin, client,
		nullTime(o.ClientApprovedAt), nullTime(o.AdminApprovedAt), timeOrNow(o.CreatedAt), timeOrNow(o.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetOffer(ctx context.Context, id string) (*Offer, error) {
	o := &Offer{}
	var state string
	var clientAt, adminAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, request_id, vendor_id, client_id, price, approval_state, admin_approval_status, client_approval_status, client_approved_at, admin_approved_at, created_at, updated_at
		 FROM offers WHERE id = ?`, id,
	).Scan(&o.ID, &o.RequestID, &o.VendorID, &o.ClientID, &o.Price, &state, &o.AdminApprovalStatus,
		&o.ClientApprovalStatus, &clientAt, &adminAt, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("offer", id)
	}
	if err != nil {
		return nil, err
	}
	o.ApprovalState = schema.ApprovalState(state)
	o.ClientApprovedAt = timePtr(clientAt)
	o.AdminApprovedAt = timePtr(adminAt)
	return o, nil
}

// UpdateOfferApproval writes the new state and both derived track columns in a
// single UPDATE guarded on the previous state.
func (s *LibSQLStore) UpdateOfferApproval(ctx context.Context, id string, u OfferApprovalUpdate) error {
	admin, client := u.To.Tracks()
	res, err := s.db.ExecContext(ctx,
		`UPDATE offers SET approval_state = ?, admin_approval_status = ?, client_approval_status = ?,
		   client_approved_at = COALESCE(?, client_approved_at),
		   admin_approved_at = COALESCE(?, admin_approved_at),
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND approval_state = ?`,
		string(u.To), admin, client, nullTime(u.ClientApprovedAt), nullTime(u.AdminApprovedAt), id, string(u.From),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := s.GetOffer(ctx, id); getErr != nil {
			return getErr
		}
		return schema.NewErrorf(schema.ErrCodeConflict, "offer %q is no longer %s", id, u.From)
	}
	return nil
}

// --- Tasks ---

func (s *LibSQLStore) CreateTask(ctx context.Context, t *AutomatedTask) error {
	status := t.Status
	if status == "" {
		status = "pending"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO automated_tasks (id, workflow_execution_id, title, description, assigned_to, reference_type, reference_id, priority, status, due_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ExecutionID, t.Title, nullStr(t.Description), nullStr(t.AssignedTo), nullStr(t.ReferenceType),
		nullStr(t.ReferenceID), t.Priority, status, nullTime(t.DueDate), timeOrNow(t.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*AutomatedTask, error) {
	query := `SELECT id, workflow_execution_id, title, description, assigned_to, reference_type, reference_id, priority, status, due_date, created_at FROM automated_tasks`
	var where []string
	var args []any
	if filter.ExecutionID != "" {
		where = append(where, "workflow_execution_id = ?")
		args = append(args, filter.ExecutionID)
	}
	if filter.AssignedTo != "" {
		where = append(where, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AutomatedTask
	for rows.Next() {
		t := &AutomatedTask{}
		var desc, assigned, refType, refID sql.NullString
		var due sql.NullTime
		if err := rows.Scan(&t.ID, &t.ExecutionID, &t.Title, &desc, &assigned, &refType, &refID,
			&t.Priority, &t.Status, &due, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Description = desc.String
		t.AssignedTo = assigned.String
		t.ReferenceType = refType.String
		t.ReferenceID = refID.String
		t.DueDate = timePtr(due)
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Requests and orders ---

func (s *LibSQLStore) CreateRequest(ctx context.Context, r *Request) error {
	status := r.AdminApprovalStatus
	if status == "" {
		status = "pending"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (id, client_id, title, category, admin_approval_status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ClientID, r.Title, nullStr(r.Category), status, timeOrNow(r.CreatedAt), timeOrNow(r.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetRequest(ctx context.Context, id string) (*Request, error) {
	r := &Request{}
	var category sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, client_id, title, category, admin_approval_status, created_at, updated_at FROM requests WHERE id = ?`, id,
	).Scan(&r.ID, &r.ClientID, &r.Title, &category, &r.AdminApprovalStatus, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("request", id)
	}
	if err != nil {
		return nil, err
	}
	r.Category = category.String
	return r, nil
}

func (s *LibSQLStore) UpdateRequestApprovalStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE requests SET admin_approval_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "request", id)
}

func (s *LibSQLStore) CreateOrder(ctx context.Context, o *Order) error {
	status := o.Status
	if status == "" {
		status = "pending"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (id, offer_id, client_id, vendor_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, nullStr(o.OfferID), o.ClientID, o.VendorID, status, timeOrNow(o.CreatedAt), timeOrNow(o.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	o := &Order{}
	var offerID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, offer_id, client_id, vendor_id, status, created_at, updated_at FROM orders WHERE id = ?`, id,
	).Scan(&o.ID, &offerID, &o.ClientID, &o.VendorID, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("order", id)
	}
	if err != nil {
		return nil, err
	}
	o.OfferID = offerID.String
	return o, nil
}

func (s *LibSQLStore) UpdateOrderStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "order", id)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalMapOrDefault[M ~map[string]any](m M) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}

func nonNilActions(a []schema.WorkflowAction) []schema.WorkflowAction {
	if a == nil {
		return []schema.WorkflowAction{}
	}
	return a
}

func nonNilResults(r []schema.ActionResult) []schema.ActionResult {
	if r == nil {
		return []schema.ActionResult{}
	}
	return r
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
