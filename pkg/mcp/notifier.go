package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/procura/internal/store"
	"github.com/rendis/procura/internal/streaming"
)

// SubscriberNotifier pushes notifications to connected subscribers.
type SubscriberNotifier interface {
	Notify(ctx context.Context, subscriberID string, payload map[string]any) error
}

// MCPNotifier implements SubscriberNotifier using MCP server push.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes through the MCP session.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends a notification to the subscriber's session.
// Best-effort: returns nil if the subscriber is not connected.
func (n *MCPNotifier) Notify(_ context.Context, subscriberID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(subscriberID)
	if !ok {
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

// startRelay forwards hub events to the subscribers watching each execution.
// The returned func stops the relay.
func (s *Server) startRelay(ctx context.Context) (func(), error) {
	ch, cancel, err := s.hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return nil, err
	}
	notifier := NewMCPNotifier(s.mcpServer, s.sessions)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				s.relay(ctx, notifier, event)
			}
		}
	}()
	return cancel, nil
}

func (s *Server) relay(ctx context.Context, n SubscriberNotifier, event streaming.StreamEvent) {
	subs := s.watchers.Subscribers(event.ExecutionID)
	if len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"execution_id": event.ExecutionID,
		"event_type":   event.EventType,
		"action_index": event.ActionIndex,
		"sequence":     event.Sequence,
	}
	for _, sub := range subs {
		if err := n.Notify(ctx, sub, payload); err != nil {
			s.logger.WarnContext(ctx, "notify subscriber", "subscriber_id", sub, "error", err)
		}
	}
	if event.EventType == store.EventExecutionCompleted || event.EventType == store.EventExecutionSkipped {
		s.watchers.Forget(event.ExecutionID)
	}
}
