package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/pkg/schema"
)

func TestJQ_Query(t *testing.T) {
	j := NewJQ()
	data := map[string]any{
		"items": []any{
			map[string]any{"name": "a", "price": 2},
			map[string]any{"name": "b", "price": 3},
		},
	}

	out, err := j.Query(context.Background(), "[.items[].price] | add", data)
	require.NoError(t, err)
	assert.Equal(t, float64(5), out)

	out, err = j.Query(context.Background(), ".items[].name", data)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out)

	out, err = j.Query(context.Background(), ".missing", data)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestJQ_ScalarInput(t *testing.T) {
	out, err := NewJQ().Query(context.Background(), "ascii_upcase", "abc")
	require.NoError(t, err)
	assert.Equal(t, "ABC", out)
}

func TestJQ_Errors(t *testing.T) {
	j := NewJQ()

	_, err := j.Query(context.Background(), "", nil)
	assert.Equal(t, schema.ErrCodeConfig, schema.ErrorCode(err))

	err = j.Check(".a | ")
	assert.Equal(t, schema.ErrCodeConfig, schema.ErrorCode(err))

	_, err = j.Query(context.Background(), `error("boom")`, nil)
	assert.Equal(t, schema.ErrCodeDependency, schema.ErrorCode(err))
}

func TestJQ_EnvironmentSandboxed(t *testing.T) {
	t.Setenv("FLOWGRAPH_SHOULD_NOT_LEAK", "x")
	out, err := NewJQ().Query(context.Background(), "$ENV | length", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out)
}
