package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowgraph/internal/streaming"
	"github.com/rendis/flowgraph/pkg/schema"
)

// notificationMethod is the MCP method used for debug session updates.
const notificationMethod = "notifications/message"

// debugEventTypes are forwarded to the client that owns the session.
var debugEventTypes = []string{
	schema.EventDebugStarted,
	schema.EventDebugStepped,
	schema.EventDebugPaused,
	schema.EventDebugResumed,
	schema.EventDebugCompleted,
	schema.EventDebugStopped,
	schema.EventDebugExpired,
}

// SessionNotifier pushes debug session updates to connected clients.
type SessionNotifier interface {
	Notify(ctx context.Context, debugSessionID string, payload map[string]any) error
}

// clientSender is the subset of *server.MCPServer the notifier needs.
type clientSender interface {
	SendNotificationToSpecificClient(sessionID, method string, params map[string]any) error
}

// MCPNotifier implements SessionNotifier on top of MCP server notifications.
type MCPNotifier struct {
	sender   clientSender
	sessions *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes to MCP client sessions.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{sender: mcpServer, sessions: sessions}
}

// Notify sends payload to the client that started the debug session.
// Best-effort: returns nil if no client owns the session.
func (n *MCPNotifier) Notify(_ context.Context, debugSessionID string, payload map[string]any) error {
	clientID, ok := n.sessions.SessionFor(debugSessionID)
	if !ok {
		return nil
	}
	err := n.sender.SendNotificationToSpecificClient(clientID, notificationMethod, payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// client went away between lookup and send
		n.sessions.Remove(clientID)
		return nil
	}
	return err
}

// Forward subscribes to debug events on hub and relays each one to the owning
// client until ctx is done. Mappings are dropped once a session ends.
func (n *MCPNotifier) Forward(ctx context.Context, hub streaming.EventHub) error {
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{EventTypes: debugEventTypes})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.SessionID == "" {
				continue
			}
			_ = n.Notify(ctx, ev.SessionID, eventPayload(ev))
			if ev.EventType == schema.EventDebugStopped || ev.EventType == schema.EventDebugExpired {
				n.sessions.Forget(ev.SessionID)
			}
		}
	}
}

func eventPayload(ev streaming.StreamEvent) map[string]any {
	p := map[string]any{
		"event_type":  ev.EventType,
		"session_id":  ev.SessionID,
		"workflow_id": ev.WorkflowID,
		"timestamp":   ev.Timestamp.Format(time.RFC3339Nano),
	}
	if ev.NodeID != "" {
		p["node_id"] = ev.NodeID
	}
	if ev.Payload != nil {
		p["data"] = ev.Payload
	}
	return p
}
