package store

import (
	"context"
	"time"

	"github.com/rendis/procura/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Rules
	CreateRule(ctx context.Context, rule *schema.WorkflowRule) error
	GetRule(ctx context.Context, id string) (*schema.WorkflowRule, error)
	ListRules(ctx context.Context, filter RuleFilter) ([]*schema.WorkflowRule, error)

	// Executions
	CreateExecution(ctx context.Context, exec *schema.WorkflowExecution) error
	GetExecution(ctx context.Context, id string) (*schema.WorkflowExecution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*schema.WorkflowExecution, error)
	ListDueExecutions(ctx context.Context, now time.Time, limit int) ([]*schema.WorkflowExecution, error)
	StartExecution(ctx context.Context, id string, startedAt time.Time) error
	CompleteExecution(ctx context.Context, id string, outcome ExecutionOutcome) error
	SkipExecution(ctx context.Context, id, duplicateOf string, at time.Time) error

	// Idempotency
	ClaimIdempotencyKey(ctx context.Context, key, executionID string) (owner string, claimed bool, err error)

	// Audit log (append-only)
	AppendEvent(ctx context.Context, event *ExecutionEvent) error
	ListEvents(ctx context.Context, executionID string) ([]*ExecutionEvent, error)

	// Notifications
	CreateNotifications(ctx context.Context, notifications []*Notification) error
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]*Notification, error)

	// Profiles and vendor metrics
	CreateUserProfile(ctx context.Context, profile *UserProfile) error
	ListUserProfiles(ctx context.Context, filter ProfileFilter) ([]*UserProfile, error)
	UpsertVendorMetrics(ctx context.Context, m *VendorMetrics) error
	ListVendorCandidates(ctx context.Context, category string) ([]*VendorCandidate, error)

	// Offers
	CreateOffer(ctx context.Context, offer *Offer) error
	GetOffer(ctx context.Context, id string) (*Offer, error)
	UpdateOfferApproval(ctx context.Context, id string, update OfferApprovalUpdate) error

	// Tasks
	CreateTask(ctx context.Context, task *AutomatedTask) error
	ListTasks(ctx context.Context, filter TaskFilter) ([]*AutomatedTask, error)

	// Requests and orders
	CreateRequest(ctx context.Context, req *Request) error
	GetRequest(ctx context.Context, id string) (*Request, error)
	UpdateRequestApprovalStatus(ctx context.Context, id, status string) error
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	UpdateOrderStatus(ctx context.Context, id, status string) error

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
