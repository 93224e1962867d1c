package actions

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/internal/secrets"
	"github.com/rendis/flowgraph/internal/validation"
	"github.com/rendis/flowgraph/pkg/schema"
)

type fixture struct {
	exec *Executor
	sub  *SubWorkflowHandler
}

func newFixture(t *testing.T, messagingURL string) *fixture {
	t.Helper()
	vault := secrets.NewMemoryVault(map[string]string{"LINE_TOKEN": "secret-token"})

	v, err := validation.NewWorkflowValidator(nil)
	require.NoError(t, err)

	reg := NewRegistry()
	sub, err := RegisterBuiltins(reg, BuiltinDeps{
		Interpolator: expressions.NewInterpolator(vault),
		JQ:           expressions.NewJQ(),
		Cards:        v.Cards(),
		HTTP:         HTTPConfig{Client: &http.Client{}},
		Messaging:    MessagingConfig{BaseURL: messagingURL},
	})
	require.NoError(t, err)

	exec, err := NewExecutor(reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return &fixture{exec: exec, sub: sub}
}

func (f *fixture) run(t *testing.T, typ schema.NodeType, cfg any, ec *execution.Context) *schema.ExecutionResult {
	t.Helper()
	n := &schema.Node{ID: "n", Type: typ}
	if cfg != nil {
		n.Config = schema.MustConfig(cfg)
	}
	res := f.exec.Execute(context.Background(), n, ec)
	require.NotNil(t, res)
	return res
}
