package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/internal/secrets"
	"github.com/rendis/flowgraph/pkg/schema"
)

func newInterp() *Interpolator {
	return NewInterpolator(secrets.NewMemoryVault(map[string]string{
		"LINE_TOKEN": "secret-token",
		"status":     "from-vault",
	}))
}

func TestInterpolator_ContextLookup(t *testing.T) {
	ec := execution.New(map[string]any{"name": "Ada", "count": 3})

	got := newInterp().Resolve(context.Background(), "hi {name}, you have {count} items", ec)
	assert.Equal(t, "hi Ada, you have 3 items", got)
}

func TestInterpolator_LookupOrder(t *testing.T) {
	ctx := context.Background()
	ec := execution.New(map[string]any{"status": "from-context"})
	ec.LastResult = schema.Succeeded(map[string]any{"status": "from-result", "id": "r-1"})
	in := newInterp()

	assert.Equal(t, "from-context", in.Resolve(ctx, "{status}", ec))
	assert.Equal(t, "r-1", in.Resolve(ctx, "{id}", ec), "falls back to last result data")
	assert.Equal(t, "Bearer secret-token", in.Resolve(ctx, "Bearer {LINE_TOKEN}", ec), "falls back to secret store")
}

func TestInterpolator_UnresolvedLeftVerbatim(t *testing.T) {
	ec := execution.New(nil)
	in := NewInterpolator(nil)

	assert.Equal(t, "value {missing} stays", in.Resolve(context.Background(), "value {missing} stays", ec))
	assert.Equal(t, `{"a":1} and { lone brace`, in.Resolve(context.Background(), `{"a":1} and { lone brace`, ec))
}

func TestInterpolator_Idempotent(t *testing.T) {
	ctx := context.Background()
	ec := execution.New(map[string]any{"user": "u1"})
	in := newInterp()

	plain := "no placeholders here"
	assert.Equal(t, plain, in.Resolve(ctx, plain, ec))

	tmpl := "to {user} via {unknown}"
	once := in.Resolve(ctx, tmpl, ec)
	assert.Equal(t, once, in.Resolve(ctx, once, ec))
	assert.Equal(t, "to u1 via {unknown}", once)
}

func TestInterpolator_DottedPaths(t *testing.T) {
	ec := execution.New(map[string]any{
		"order": map[string]any{"id": "o-9", "items": []any{map[string]any{"sku": "A1"}}},
	})

	got := NewInterpolator(nil).Resolve(context.Background(), "{order.id}/{order.items.0.sku}", ec)
	assert.Equal(t, "o-9/A1", got)
}

func TestInterpolator_ResolveValueNested(t *testing.T) {
	ec := execution.New(map[string]any{
		"id":    float64(42),
		"event": map[string]any{"type": "message"},
	})
	in := NewInterpolator(nil)

	got := in.ResolveValue(context.Background(), map[string]any{
		"id":      "{id}",
		"label":   "order-{id}",
		"event":   "{event}",
		"list":    []any{"{event.type}", 7},
		"headers": map[string]string{"X-Id": "{id}"},
		"missing": "{nope}",
	}, ec)

	m := got.(map[string]any)
	assert.Equal(t, float64(42), m["id"], "single placeholder keeps type")
	assert.Equal(t, "order-42", m["label"])
	assert.Equal(t, map[string]any{"type": "message"}, m["event"])
	assert.Equal(t, []any{"message", 7}, m["list"])
	assert.Equal(t, map[string]string{"X-Id": "42"}, m["headers"])
	assert.Equal(t, "{nope}", m["missing"])
}

func TestSinglePlaceholderAndPlaceholders(t *testing.T) {
	name, ok := SinglePlaceholder("{ user.id }")
	assert.True(t, ok)
	assert.Equal(t, "user.id", name)

	_, ok = SinglePlaceholder("x{user}")
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b-c"}, Placeholders("{a} and {b-c}"))
	assert.False(t, HasPlaceholders(`{"json":true}`))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "1.5", Stringify(1.5))
	assert.Equal(t, "3", Stringify(float64(3)))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, `{"a":1}`, Stringify(map[string]any{"a": 1}))
}
