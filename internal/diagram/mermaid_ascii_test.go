package diagram

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/pkg/schema"
)

func TestRenderMermaidForCLI(t *testing.T) {
	model, err := Build(branchingWorkflow())
	require.NoError(t, err)

	out := RenderMermaidForCLI(model)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "Start --> check")
	assert.Contains(t, out, "check -->|true| yes")
	assert.Contains(t, out, "check -->|off| legacy")
	assert.NotContains(t, out, `["`)
	assert.NotContains(t, out, "classDef")
}

func TestRenderMermaidForCLI_StatusInIDs(t *testing.T) {
	model, err := Build(linearWorkflow(), WithResults([]schema.NodeResult{
		{NodeID: "start", Result: schema.Succeeded(nil), DurationMs: 450},
		{NodeID: "fetch", Result: &schema.ExecutionResult{Error: "boom"}},
	}))
	require.NoError(t, err)

	out := RenderMermaidForCLI(model)
	assert.Contains(t, out, "start-OK-450ms --> fetch-FAIL")
	assert.Contains(t, out, "fetch-FAIL --> reply-SKIP")
}

func TestRenderMermaidForCLI_FlattensSubWorkflows(t *testing.T) {
	model, err := Build(subWorkflowParent(), WithSubWorkflows(func(string) *schema.Workflow { return linearWorkflow() }))
	require.NoError(t, err)

	out := RenderMermaidForCLI(model)
	assert.Contains(t, out, "call -->|Linear| start")
	assert.Contains(t, out, "start --> fetch")
}

func TestRenderASCIIAuto_FallsBack(t *testing.T) {
	model, err := Build(linearWorkflow())
	require.NoError(t, err)
	want := RenderASCII(model)

	assert.Equal(t, want, RenderASCIIAuto(context.Background(), model, ""))
	assert.Equal(t, want, RenderASCIIAuto(context.Background(), model, t.TempDir()))
}

func TestRenderASCIIViaCLI_UsesBinary(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "mermaid-ascii")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\ncat\n"), 0o755))

	model, err := Build(linearWorkflow())
	require.NoError(t, err)

	out := RenderASCIIAuto(context.Background(), model, dir)
	assert.Equal(t, RenderMermaidForCLI(model), out)
}
