package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/pkg/schema"
)

func TestRenderASCIILinear(t *testing.T) {
	model, err := Build(linearWorkflow())
	require.NoError(t, err)

	out := RenderASCII(model)
	assert.True(t, strings.HasPrefix(out, "=== Linear ===\n"))
	for _, label := range []string{"Start", "start", "fetch", "reply", "End"} {
		assert.Contains(t, out, "│ "+label)
	}
	assert.Equal(t, 4, strings.Count(out, "▼"))
	assert.NotContains(t, out, "Routes:")
}

func TestRenderASCIIRoutes(t *testing.T) {
	model, err := Build(branchingWorkflow())
	require.NoError(t, err)

	out := RenderASCII(model)
	assert.Contains(t, out, "Routes:")
	assert.Contains(t, out, "check ─true→ yes")
	assert.Contains(t, out, "check ─false→ no")
	assert.Contains(t, out, "check ─→ legacy (inactive)")
}

func TestRenderASCIIStatus(t *testing.T) {
	model, err := Build(linearWorkflow(), WithResults([]schema.NodeResult{
		{NodeID: "start", Result: schema.Succeeded(nil), DurationMs: 7},
	}))
	require.NoError(t, err)

	out := RenderASCII(model)
	assert.Contains(t, out, "[OK]")
	assert.Contains(t, out, "7ms")
	assert.Contains(t, out, "[SKIP]")
}

func TestRenderASCIISubWorkflow(t *testing.T) {
	model, err := Build(subWorkflowParent(), WithSubWorkflows(func(string) *schema.Workflow { return linearWorkflow() }))
	require.NoError(t, err)

	out := RenderASCII(model)
	assert.Contains(t, out, "--- call -> Linear ---")
	assert.Contains(t, out, "start ─→ fetch")
}

func TestBoxAlignsMultibyteLabels(t *testing.T) {
	b := newBox(&Node{ID: "x", Label: "café"})
	require.Len(t, b.lines, 3)
	assert.Equal(t, "┌──────┐", b.lines[0])
	assert.Equal(t, "│ café │", b.lines[1])
}
