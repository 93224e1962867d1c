package actions

import (
	"context"
	"fmt"

	"github.com/rendis/flowgraph/pkg/schema"
)

// MarkerHandler executes the no-op anchor types: trigger, entry and notification.
type MarkerHandler struct {
	kind schema.NodeType
}

// NewMarkerHandler creates a handler for one marker type.
func NewMarkerHandler(kind schema.NodeType) *MarkerHandler {
	return &MarkerHandler{kind: kind}
}

// MarkerHandlers returns handlers for every marker type.
func MarkerHandlers() []Handler {
	var hs []Handler
	for _, t := range schema.AllNodeTypes {
		if t.IsMarker() {
			hs = append(hs, NewMarkerHandler(t))
		}
	}
	return hs
}

func (h *MarkerHandler) Type() schema.NodeType { return h.kind }

func (h *MarkerHandler) Describe() string {
	return fmt.Sprintf("No-op %s marker.", h.kind)
}

func (h *MarkerHandler) Execute(_ context.Context, call *Call) *schema.ExecutionResult {
	cfg, bad := configAs[*schema.MarkerConfig](call)
	if bad != nil {
		return bad
	}
	msg := cfg.Message
	if msg == "" {
		msg = fmt.Sprintf("%s reached", h.kind)
	}
	return schema.Succeeded(map[string]any{"marker": string(h.kind), "message": msg})
}
