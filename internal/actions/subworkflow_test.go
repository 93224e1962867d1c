package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/pkg/schema"
)

type recordingInvoker struct {
	cfg *schema.SubWorkflowConfig
}

func (r *recordingInvoker) Invoke(_ context.Context, _ *schema.Node, cfg *schema.SubWorkflowConfig, _ *execution.Context) *schema.ExecutionResult {
	r.cfg = cfg
	return schema.Succeeded(map[string]any{"workflowId": cfg.WorkflowID})
}

func TestSubWorkflow_DelegatesToBoundInvoker(t *testing.T) {
	f := newFixture(t, "")
	cfg := schema.SubWorkflowConfig{WorkflowID: "child", Mappings: []schema.ParamMapping{{Target: "id", Source: "{orderId}"}}}

	res := f.run(t, schema.NodeTypeSubWorkflow, cfg, execution.New(nil))
	assert.False(t, res.Success)
	assert.Equal(t, schema.ErrCodeInternal, res.Code)

	inv := &recordingInvoker{}
	f.sub.Bind(inv)
	res = f.run(t, schema.NodeTypeSubWorkflow, cfg, execution.New(nil))
	require.True(t, res.Success)
	assert.Equal(t, "child", inv.cfg.WorkflowID)
	assert.Equal(t, cfg.Mappings, inv.cfg.Mappings)

	res = f.run(t, schema.NodeTypeSubWorkflow, schema.SubWorkflowConfig{}, execution.New(nil))
	assert.Equal(t, schema.ErrCodeConfig, res.Code)
}
