package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/pkg/schema"
)

func childWorkflow() *schema.Workflow {
	return &schema.Workflow{
		ID:           "child",
		Name:         "Child",
		Nodes:        []schema.Node{marker("entry"), node("check", schema.NodeTypeCondition, condition("{orderId}", "==", "A-1"))},
		Edges:        []schema.Edge{edge("entry", "check")},
		InputParams:  []schema.Param{{Name: "orderId", Required: true}, {Name: "currency", Default: "EUR"}},
		OutputParams: []schema.Param{{Name: "orderId"}, {Name: "currency"}, {Name: "parentOnly"}},
	}
}

func parentWorkflow(mappings ...schema.ParamMapping) *schema.Workflow {
	return &schema.Workflow{
		ID:    "parent",
		Name:  "Parent",
		Nodes: []schema.Node{marker("start"), node("call-child", schema.NodeTypeSubWorkflow, subRef("child", mappings...))},
		Edges: []schema.Edge{edge("start", "call-child")},
	}
}

func subData(t *testing.T, r *schema.ExecutionResult) map[string]any {
	t.Helper()
	data, ok := r.Data.(map[string]any)
	require.True(t, ok, "sub-workflow data is a map, got %T", r.Data)
	return data
}

func TestSubWorkflow_MappingsIsolateContext(t *testing.T) {
	parent := parentWorkflow(schema.ParamMapping{Target: "orderId", Source: "{id}"})
	f := newFixture(t, []*schema.Workflow{parent, childWorkflow()})

	res := f.execute(t, "parent", map[string]any{"id": "A-1", "parentOnly": "hidden"})
	require.True(t, res.Success, res.Error)

	data := subData(t, resultFor(t, res, "call-child"))
	assert.Equal(t, "child", data["workflowId"])
	assert.Equal(t, "Child", data["workflowName"])
	assert.Equal(t, []string{"entry", "check"}, data["executedNodes"])
	assert.Equal(t, map[string]any{"orderId": "A-1", "currency": "EUR"}, data["returnData"],
		"only mapped and defaulted fields reach the child")
}

func TestSubWorkflow_NoMappingsPassesFullContext(t *testing.T) {
	f := newFixture(t, []*schema.Workflow{parentWorkflow(), childWorkflow()})

	res := f.execute(t, "parent", map[string]any{"orderId": "A-1", "parentOnly": "visible"})
	require.True(t, res.Success, res.Error)

	ret := subData(t, resultFor(t, res, "call-child"))["returnData"].(map[string]any)
	assert.Equal(t, "visible", ret["parentOnly"])
	assert.Equal(t, "A-1", ret["orderId"])
}

func TestSubWorkflow_WithoutOutputParamsReturnsLastData(t *testing.T) {
	child := childWorkflow()
	child.OutputParams = nil
	f := newFixture(t, []*schema.Workflow{parentWorkflow(), child})

	res := f.execute(t, "parent", map[string]any{"orderId": "A-2"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, false, subData(t, resultFor(t, res, "call-child"))["returnData"])
}

func TestSubWorkflow_MissingRequiredParam(t *testing.T) {
	parent := parentWorkflow(schema.ParamMapping{Target: "other", Source: "x"})
	f := newFixture(t, []*schema.Workflow{parent, childWorkflow()})

	res := f.execute(t, "parent", nil)
	assert.False(t, res.Success)
	r := resultFor(t, res, "call-child")
	assert.Equal(t, schema.ErrCodeConfig, r.Code)
	assert.Contains(t, r.Error, "orderId")
}

func TestSubWorkflow_NotFound(t *testing.T) {
	f := newFixture(t, []*schema.Workflow{parentWorkflow()})

	res := f.execute(t, "parent", nil)
	assert.False(t, res.Success)
	assert.Equal(t, schema.ErrCodeNotFound, resultFor(t, res, "call-child").Code)
}

func TestSubWorkflow_FailurePropagates(t *testing.T) {
	child := &schema.Workflow{
		ID:    "child",
		Nodes: []schema.Node{node("reshape", schema.NodeTypeTransform, schema.TransformConfig{Mappings: []schema.Mapping{{From: "a", To: "b"}}})},
	}
	parent := parentWorkflow(schema.ParamMapping{Target: "x", Source: "1"})
	parent.Nodes = append(parent.Nodes, marker("after"))
	parent.Edges = append(parent.Edges, edge("call-child", "after"))
	f := newFixture(t, []*schema.Workflow{parent, child})

	res := f.execute(t, "parent", nil)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"start", "call-child"}, res.ExecutedNodes)

	r := resultFor(t, res, "call-child")
	assert.Equal(t, schema.ErrCodeNodeFailed, r.Code)
	assert.Contains(t, r.Error, "reshape")
	assert.Equal(t, "reshape", r.Details.(map[string]any)["failedNode"])
	assert.Equal(t, []string{"reshape"}, subData(t, r)["executedNodes"])
}

func cyclicWorkflows() []*schema.Workflow {
	a := &schema.Workflow{ID: "a", Nodes: []schema.Node{node("to-b", schema.NodeTypeSubWorkflow, subRef("b"))}}
	b := &schema.Workflow{ID: "b", Nodes: []schema.Node{node("to-a", schema.NodeTypeSubWorkflow, subRef("a"))}}
	return []*schema.Workflow{a, b}
}

func TestSubWorkflow_TransitiveCycleFails(t *testing.T) {
	f := newFixture(t, cyclicWorkflows())

	res := f.execute(t, "a", nil)
	assert.False(t, res.Success)

	outer := resultFor(t, res, "to-b")
	assert.Equal(t, schema.ErrCodeNodeFailed, outer.Code)
	inner := subData(t, outer)["results"].([]schema.NodeResult)
	require.Len(t, inner, 1)
	assert.Equal(t, "to-a", inner[0].NodeID)
	assert.Equal(t, schema.ErrCodeCycleDetected, inner[0].Result.Code)
}

func newTestInvoker(t *testing.T, workflows []*schema.Workflow) *Invoker {
	t.Helper()
	f := newFixture(t, workflows)
	return f.engine.invoker
}

func TestInvoke_CycleLeavesStackUnchanged(t *testing.T) {
	inv := newTestInvoker(t, cyclicWorkflows())
	ctx := context.Background()

	for _, target := range []string{"a", "b"} {
		ec := execution.New(nil)
		ec.Stack().Push("a")
		before := ec.Stack().IDs()

		cfg := subRef(target)
		n := node("ref", schema.NodeTypeSubWorkflow, cfg)
		res := inv.Invoke(ctx, &n, &cfg, ec)

		assert.False(t, res.Success, target)
		assert.Equal(t, before, ec.Stack().IDs(), "stack restored after invoking %s", target)
	}

	ec := execution.New(nil)
	ec.Stack().Push("a")
	cfg := subRef("a")
	n := node("self", schema.NodeTypeSubWorkflow, cfg)
	res := inv.Invoke(ctx, &n, &cfg, ec)
	assert.Equal(t, schema.ErrCodeCycleDetected, res.Code)
	assert.Equal(t, []string{"a"}, res.Details.(map[string]any)["stack"])
}

func TestInvoke_SharesReplyTokensWithChild(t *testing.T) {
	ms := newMessagingServer(t)
	reply := schema.MessageReplyConfig{
		MessageTarget: schema.MessageTarget{Token: "{LINE_TOKEN}", ReplyToken: "{_trigger.replyToken}", UserID: "{_trigger.userId}"},
		Messages:      []string{"hello"},
	}
	child := &schema.Workflow{ID: "child", Nodes: []schema.Node{node("child-reply", schema.NodeTypeMessageReply, reply)}}
	parent := &schema.Workflow{
		ID: "parent",
		Nodes: []schema.Node{
			node("reply", schema.NodeTypeMessageReply, reply),
			node("call-child", schema.NodeTypeSubWorkflow, subRef("child", schema.ParamMapping{Target: "x", Source: "y"})),
		},
		Edges: []schema.Edge{edge("reply", "call-child")},
	}
	f := newFixture(t, []*schema.Workflow{parent, child}, withMessaging(ms.URL))

	res := f.execute(t, "parent", nil, WithTrigger(store.TriggerWebhook, map[string]any{"replyToken": "rt-1", "userId": "U1"}))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"/message/reply", "/message/push"}, ms.paths(),
		"the child sees the token the parent already spent")
}
