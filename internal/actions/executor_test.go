package actions

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/pkg/schema"
)

func TestNewExecutor_RequiresEveryType(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubHandler{typ: schema.NodeTypeCondition}))

	_, err := NewExecutor(reg, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConfig, schema.ErrorCode(err))
	assert.Contains(t, err.Error(), "http_request")
}

func TestExecutor_UnknownNodeType(t *testing.T) {
	f := newFixture(t, "")
	res := f.exec.Execute(context.Background(), &schema.Node{ID: "x", Type: "script"}, execution.New(nil))
	assert.False(t, res.Success)
	assert.Equal(t, schema.ErrCodeUnknownNodeType, res.Code)
	assert.Contains(t, res.Error, "script")
}

func TestExecutor_MalformedConfig(t *testing.T) {
	f := newFixture(t, "")
	n := &schema.Node{ID: "x", Type: schema.NodeTypeCondition, Config: json.RawMessage(`{"field": 12}`)}
	res := f.exec.Execute(context.Background(), n, execution.New(nil))
	assert.False(t, res.Success)
	assert.Equal(t, schema.ErrCodeConfig, res.Code)
}

func TestExecutor_RecoversPanicsAndClearsBranch(t *testing.T) {
	reg := NewRegistry()
	for _, typ := range schema.AllNodeTypes {
		h := &stubHandler{typ: typ, result: &schema.ExecutionResult{Success: true, Branch: "true"}}
		if typ == schema.NodeTypeEntry {
			h.panics = true
		}
		require.NoError(t, reg.Register(h))
	}
	exec, err := NewExecutor(reg, nil)
	require.NoError(t, err)

	res := exec.Execute(context.Background(), &schema.Node{ID: "e", Type: schema.NodeTypeEntry}, execution.New(nil))
	assert.False(t, res.Success)
	assert.Equal(t, schema.ErrCodeInternal, res.Code)
	assert.Contains(t, res.Error, "boom")

	res = exec.Execute(context.Background(), &schema.Node{ID: "t", Type: schema.NodeTypeTrigger}, execution.New(nil))
	assert.True(t, res.Success)
	assert.Empty(t, res.Branch, "non-branching nodes never carry a branch tag")

	res = exec.Execute(context.Background(), &schema.Node{ID: "c", Type: schema.NodeTypeCondition}, execution.New(nil))
	assert.Equal(t, "true", res.Branch)
}

func TestMarkers(t *testing.T) {
	f := newFixture(t, "")
	for _, typ := range []schema.NodeType{schema.NodeTypeTrigger, schema.NodeTypeEntry, schema.NodeTypeNotification} {
		res := f.run(t, typ, nil, execution.New(nil))
		require.True(t, res.Success, typ)
		data := res.Data.(map[string]any)
		assert.Equal(t, string(typ), data["marker"])
		assert.Equal(t, string(typ)+" reached", data["message"])
	}

	res := f.run(t, schema.NodeTypeNotification, map[string]any{"message": "order shipped"}, execution.New(nil))
	assert.Equal(t, "order shipped", res.Data.(map[string]any)["message"])
}
