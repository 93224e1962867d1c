package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/internal/actions"
	"github.com/rendis/flowgraph/internal/secrets"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/streaming"
	"github.com/rendis/flowgraph/pkg/schema"
)

type fixture struct {
	engine *Engine
	store  *store.MemoryStore
	hub    *streaming.MemoryHub
}

type fixtureOption func(*Config)

func withMessaging(url string) fixtureOption {
	return func(c *Config) { c.Messaging = actions.MessagingConfig{BaseURL: url} }
}

func newFixture(t *testing.T, workflows []*schema.Workflow, opts ...fixtureOption) *fixture {
	t.Helper()
	ms := store.NewMemoryStore()
	ctx := context.Background()
	for _, wf := range workflows {
		require.NoError(t, ms.SaveWorkflow(ctx, wf))
	}
	hub := streaming.NewMemoryHub()
	cfg := Config{
		Workflows: ms,
		Runs:      ms,
		Secrets:   secrets.NewMemoryVault(map[string]string{"LINE_TOKEN": "secret-token"}),
		Hub:       hub,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(&cfg)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	return &fixture{engine: e, store: ms, hub: hub}
}

func (f *fixture) execute(t *testing.T, id string, input map[string]any, opts ...ExecuteOption) *schema.RunResult {
	t.Helper()
	res, err := f.engine.Execute(context.Background(), id, input, opts...)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func node(id string, typ schema.NodeType, cfg any) schema.Node {
	n := schema.Node{ID: id, Type: typ}
	if cfg != nil {
		n.Config = schema.MustConfig(cfg)
	}
	return n
}

func marker(id string) schema.Node {
	return node(id, schema.NodeTypeEntry, nil)
}

func edge(from, to string) schema.Edge {
	return schema.Edge{Source: from, Target: to}
}

func branch(from, to, tag string) schema.Edge {
	return schema.Edge{Source: from, Target: to, Branch: tag}
}

func inactive(from, to string) schema.Edge {
	off := false
	return schema.Edge{Source: from, Target: to, Active: &off}
}

func condition(field, op string, value any) schema.ConditionConfig {
	return schema.ConditionConfig{Condition: schema.Condition{Field: field, Operator: op, Value: value}}
}

func subRef(workflowID string, mappings ...schema.ParamMapping) schema.SubWorkflowConfig {
	return schema.SubWorkflowConfig{WorkflowID: workflowID, Mappings: mappings}
}

// statusServer answers every request with status and a small JSON body.
func statusServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"path": r.URL.Path, "ok": status < 300})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type sentMessage struct {
	Path string
	Body map[string]any
}

type messagingServer struct {
	*httptest.Server
	mu   sync.Mutex
	sent []sentMessage
}

func newMessagingServer(t *testing.T) *messagingServer {
	t.Helper()
	ms := &messagingServer{}
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		ms.mu.Lock()
		ms.sent = append(ms.sent, sentMessage{Path: r.URL.Path, Body: body})
		ms.mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(ms.Close)
	return ms
}

func (ms *messagingServer) paths() []string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]string, len(ms.sent))
	for i, s := range ms.sent {
		out[i] = s.Path
	}
	return out
}

func resultFor(t *testing.T, res *schema.RunResult, nodeID string) *schema.ExecutionResult {
	t.Helper()
	for _, r := range res.Results {
		if r.NodeID == nodeID {
			return r.Result
		}
	}
	t.Fatalf("node %s not in trace %v", nodeID, res.ExecutedNodes)
	return nil
}
