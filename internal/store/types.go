package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/procura/pkg/schema"
)

// User roles as stored in user_profiles.role.
const (
	RoleAdmin  = "admin"
	RoleClient = "client"
	RoleVendor = "vendor"
)

// Vendor verification states as stored in user_profiles.verification_status.
const (
	VerificationPending  = "pending"
	VerificationApproved = "approved"
	VerificationRejected = "rejected"
)

// Notification is a user-facing message produced by an action.
type Notification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Type      string          `json:"type"`
	Category  string          `json:"category"`
	Priority  string          `json:"priority"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}

// UserProfile is the subset of a marketplace user the engine reads.
type UserProfile struct {
	ID                 string    `json:"id"`
	FullName           string    `json:"full_name,omitempty"`
	Email              string    `json:"email,omitempty"`
	Role               string    `json:"role"`
	Categories         []string  `json:"categories,omitempty"`
	VerificationStatus string    `json:"verification_status,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// VendorMetrics are the rolling performance numbers of a vendor.
type VendorMetrics struct {
	VendorID             string    `json:"vendor_id"`
	QualityScore         float64   `json:"quality_score"`
	ResponseTimeAvgHours float64   `json:"response_time_avg_hours"`
	CompletionRate       float64   `json:"completion_rate"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// VendorCandidate joins a vendor profile with its metrics for ranking.
type VendorCandidate struct {
	VendorID             string   `json:"vendor_id"`
	FullName             string   `json:"full_name,omitempty"`
	QualityScore         float64  `json:"quality_score"`
	ResponseTimeAvgHours float64  `json:"response_time_avg_hours"`
	CompletionRate       float64  `json:"completion_rate"`
	Role                 string   `json:"role"`
	Categories           []string `json:"categories"`
	VerificationStatus   string   `json:"verification_status"`
}

// Offer is a vendor's offer on a request, with its two approval tracks.
type Offer struct {
	ID                   string               `json:"id"`
	RequestID            string               `json:"request_id"`
	VendorID             string               `json:"vendor_id"`
	ClientID             string               `json:"client_id"`
	Price                float64              `json:"price"`
	ApprovalState        schema.ApprovalState `json:"approval_state"`
	AdminApprovalStatus  string               `json:"admin_approval_status"`
	ClientApprovalStatus string               `json:"client_approval_status"`
	ClientApprovedAt     *time.Time           `json:"client_approved_at,omitempty"`
	AdminApprovedAt      *time.Time           `json:"admin_approved_at,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// Request is a client's procurement request.
type Request struct {
	ID                  string    `json:"id"`
	ClientID            string    `json:"client_id"`
	Title               string    `json:"title"`
	Category            string    `json:"category"`
	AdminApprovalStatus string    `json:"admin_approval_status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Order is a confirmed purchase between a client and a vendor.
type Order struct {
	ID        string    `json:"id"`
	OfferID   string    `json:"offer_id,omitempty"`
	ClientID  string    `json:"client_id"`
	VendorID  string    `json:"vendor_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AutomatedTask is a to-do item created by the create_task action.
type AutomatedTask struct {
	ID            string     `json:"id"`
	ExecutionID   string     `json:"workflow_execution_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	AssignedTo    string     `json:"assigned_to,omitempty"`
	ReferenceType string     `json:"reference_type,omitempty"`
	ReferenceID   string     `json:"reference_id,omitempty"`
	Priority      string     `json:"priority"`
	Status        string     `json:"status"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ExecutionEvent is an immutable audit entry for an execution.
type ExecutionEvent struct {
	ID          int64           `json:"id"`
	ExecutionID string          `json:"execution_id"`
	Type        string          `json:"event_type"`
	ActionIndex int             `json:"action_index"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Sequence    int64           `json:"sequence"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Execution audit event types.
const (
	EventExecutionStarted   = "execution_started"
	EventActionCompleted    = "action_completed"
	EventActionFailed       = "action_failed"
	EventActionSkipped      = "action_skipped"
	EventExecutionCompleted = "execution_completed"
	EventExecutionSkipped   = "execution_skipped"
)

// --- Filter and update types ---

// RuleFilter specifies criteria for listing rules.
type RuleFilter struct {
	TriggerType string `json:"trigger_type,omitempty"`
	ActiveOnly  bool   `json:"active_only,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	RuleID string                  `json:"rule_id,omitempty"`
	Status *schema.ExecutionStatus `json:"status,omitempty"`
	Limit  int                     `json:"limit,omitempty"`
}

// ExecutionOutcome is written back when an execution reaches completed.
type ExecutionOutcome struct {
	ExecutedActions []schema.ActionResult
	ExecutionTimeMs int64
	CompletedAt     time.Time
}

// ProfileFilter specifies criteria for listing user profiles.
type ProfileFilter struct {
	Role  string `json:"role,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// NotificationFilter specifies criteria for listing notifications.
type NotificationFilter struct {
	UserID string `json:"user_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// TaskFilter specifies criteria for listing automated tasks.
type TaskFilter struct {
	ExecutionID string `json:"execution_id,omitempty"`
	AssignedTo  string `json:"assigned_to,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// OfferApprovalUpdate moves an offer's approval state. From guards against
// concurrent writers: the update only applies while the row is still in From.
type OfferApprovalUpdate struct {
	From             schema.ApprovalState
	To               schema.ApprovalState
	ClientApprovedAt *time.Time
	AdminApprovedAt  *time.Time
}
