package streaming

import (
	"context"
	"log/slog"

	"github.com/rendis/procura/internal/store"
)

// PublishingStore is a Store whose AppendEvent also publishes every persisted
// event to a hub. Publishing happens after the write succeeds and its failure
// is only logged, so the audit log stays the source of truth.
type PublishingStore struct {
	store.Store
	hub    EventHub
	logger *slog.Logger
}

// NewPublishingStore wraps s.
func NewPublishingStore(s store.Store, hub EventHub, logger *slog.Logger) *PublishingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishingStore{Store: s, hub: hub, logger: logger}
}

// AppendEvent persists the event, then publishes it.
func (p *PublishingStore) AppendEvent(ctx context.Context, event *store.ExecutionEvent) error {
	if err := p.Store.AppendEvent(ctx, event); err != nil {
		return err
	}
	if err := p.hub.Publish(ctx, FromAuditEvent(event)); err != nil {
		p.logger.WarnContext(ctx, "publish execution event", "event_type", event.Type, "error", err)
	}
	return nil
}
