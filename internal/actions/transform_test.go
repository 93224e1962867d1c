package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/pkg/schema"
)

func TestTransform_CopiesExistingPaths(t *testing.T) {
	f := newFixture(t, "")
	ec := execution.New(nil)
	ec.Record("fetch", schema.Succeeded(map[string]any{
		"customer": map[string]any{"name": "Ada", "email": "ada@example.com"},
		"items":    []any{map[string]any{"sku": "A", "price": float64(10)}, map[string]any{"sku": "B", "price": float64(5)}},
	}))

	res := f.run(t, schema.NodeTypeTransform, schema.TransformConfig{Mappings: []schema.Mapping{
		{From: "customer.name", To: "name"},
		{From: "items.#.sku", To: "skus"},
		{From: "items", To: "total", Query: "map(.price) | add"},
		{From: "customer.phone", To: "phone"},
	}}, ec)

	require.True(t, res.Success, res.Error)
	data := res.Data.(map[string]any)
	assert.Len(t, data, 3)
	assert.Equal(t, "Ada", data["name"])
	assert.Equal(t, []any{"A", "B"}, data["skus"])
	assert.EqualValues(t, 15, data["total"])
	assert.Equal(t, map[string]any{"missingPaths": []string{"customer.phone"}}, res.Details)
}

func TestTransform_RequiresPreviousResult(t *testing.T) {
	f := newFixture(t, "")
	cfg := schema.TransformConfig{Mappings: []schema.Mapping{{From: "a", To: "b"}}}

	res := f.run(t, schema.NodeTypeTransform, cfg, execution.New(nil))
	assert.False(t, res.Success)
	assert.Equal(t, schema.ErrCodeDependency, res.Code)

	ec := execution.New(nil)
	ec.Record("empty", schema.Succeeded(nil))
	res = f.run(t, schema.NodeTypeTransform, cfg, ec)
	assert.Equal(t, schema.ErrCodeDependency, res.Code)
}

func TestTransform_WholeValueAndErrors(t *testing.T) {
	f := newFixture(t, "")
	ec := execution.New(nil)
	ec.Record("fetch", schema.Succeeded([]any{float64(1), float64(2)}))

	res := f.run(t, schema.NodeTypeTransform, schema.TransformConfig{Mappings: []schema.Mapping{{To: "all"}}}, ec)
	require.True(t, res.Success)
	assert.Equal(t, map[string]any{"all": []any{float64(1), float64(2)}}, res.Data)

	res = f.run(t, schema.NodeTypeTransform, schema.TransformConfig{Mappings: []schema.Mapping{{From: "0"}}}, ec)
	assert.Equal(t, schema.ErrCodeConfig, res.Code)

	res = f.run(t, schema.NodeTypeTransform, schema.TransformConfig{Mappings: []schema.Mapping{{From: "0", To: "x", Query: ".foo"}}}, ec)
	assert.False(t, res.Success)
}

func TestTransform_LiteralKeysAndWildcards(t *testing.T) {
	f := newFixture(t, "")
	ec := execution.New(nil)
	ec.Record("fetch", schema.Succeeded(map[string]any{
		"order.id": float64(5),
		"a1":       float64(1),
		"order":    map[string]any{"id": float64(9)},
	}))

	res := f.run(t, schema.NodeTypeTransform, schema.TransformConfig{Mappings: []schema.Mapping{
		{From: "order.id", To: "literal"},
		{From: "a?", To: "question"},
		{From: "a*", To: "star"},
	}}, ec)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, map[string]any{"literal": float64(5)}, res.Data)
	assert.Equal(t, map[string]any{"missingPaths": []string{"a?", "a*"}}, res.Details)
}

func TestTransform_NestedPathWhenNoLiteralKey(t *testing.T) {
	f := newFixture(t, "")
	ec := execution.New(nil)
	ec.Record("fetch", schema.Succeeded(map[string]any{
		"order": map[string]any{"id": float64(9)},
		"a?":    "exact",
	}))

	res := f.run(t, schema.NodeTypeTransform, schema.TransformConfig{Mappings: []schema.Mapping{
		{From: "order.id", To: "nested"},
		{From: "a?", To: "odd"},
	}}, ec)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, map[string]any{"nested": float64(9), "odd": "exact"}, res.Data)
}
