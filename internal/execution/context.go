// Package execution holds the mutable state threaded through one workflow run.
package execution

import (
	"maps"
	"strconv"
	"strings"
	"sync"

	"github.com/rendis/flowgraph/pkg/schema"
)

// TriggerKey is the reserved variable holding trigger metadata (source, received_at, ...).
const TriggerKey = "_trigger"

// Context is the key/value state of one top-level run. It is mutated in place
// as nodes execute and is not safe for concurrent use; runs are single-threaded.
type Context struct {
	Vars       map[string]any
	LastResult *schema.ExecutionResult

	stack  *Stack
	tokens *TokenSet
}

// New seeds a context from trigger input. The input map is copied.
func New(input map[string]any) *Context {
	vars := make(map[string]any, len(input))
	maps.Copy(vars, input)
	return &Context{
		Vars:   vars,
		stack:  &Stack{},
		tokens: NewTokenSet(),
	}
}

// Stack returns the execution stack shared by this context and its sub-contexts.
func (c *Context) Stack() *Stack { return c.stack }

// ReplyTokens returns the run-wide set of consumed reply tokens.
func (c *Context) ReplyTokens() *TokenSet { return c.tokens }

// Get returns a top-level variable.
func (c *Context) Get(name string) (any, bool) {
	v, ok := c.Vars[name]
	return v, ok
}

// Set assigns a top-level variable.
func (c *Context) Set(name string, v any) {
	c.Vars[name] = v
}

// Lookup resolves name against the variables, walking dotted paths into
// nested maps and lists when the literal key is absent.
func (c *Context) Lookup(name string) (any, bool) {
	if v, ok := c.Vars[name]; ok {
		return v, true
	}
	return LookupPath(c.Vars, name)
}

// LookupLastResult resolves name against the most recent result's data.
func (c *Context) LookupLastResult(name string) (any, bool) {
	if c.LastResult == nil || c.LastResult.Data == nil {
		return nil, false
	}
	if m, ok := c.LastResult.Data.(map[string]any); ok {
		if v, ok := m[name]; ok {
			return v, true
		}
	}
	return LookupPath(c.LastResult.Data, name)
}

// Record stores a node outcome: Vars[nodeID] = data and LastResult = result.
func (c *Context) Record(nodeID string, result *schema.ExecutionResult) {
	if result == nil {
		return
	}
	c.Vars[nodeID] = result.Data
	c.LastResult = result
}

// Fork returns a sub-context carrying a copy of all variables and the last
// result, sharing the execution stack and reply-token set.
func (c *Context) Fork() *Context {
	vars := make(map[string]any, len(c.Vars))
	maps.Copy(vars, c.Vars)
	return &Context{
		Vars:       vars,
		LastResult: c.LastResult,
		stack:      c.stack,
		tokens:     c.tokens,
	}
}

// Isolated returns a sub-context holding only the cross-cutting system
// fields: trigger metadata, the reply-token set and the execution stack.
func (c *Context) Isolated() *Context {
	vars := make(map[string]any)
	if t, ok := c.Vars[TriggerKey]; ok {
		vars[TriggerKey] = t
	}
	return &Context{
		Vars:   vars,
		stack:  c.stack,
		tokens: c.tokens,
	}
}

// Snapshot returns a shallow copy of the variables.
func (c *Context) Snapshot() map[string]any {
	out := make(map[string]any, len(c.Vars))
	maps.Copy(out, c.Vars)
	return out
}

// LookupPath walks a dotted path ("order.items.0.sku") through nested maps and lists.
func LookupPath(root any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	cur := root
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Stack is the ordered set of workflow ids currently being invoked.
type Stack struct {
	mu  sync.Mutex
	ids []string
}

// Contains reports whether id is on the stack.
func (s *Stack) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.ids {
		if v == id {
			return true
		}
	}
	return false
}

// Push adds id to the top of the stack.
func (s *Stack) Push(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
}

// Pop removes the top entry if it equals id. It reports whether an entry was removed.
func (s *Stack) Pop(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.ids)
	if n == 0 || s.ids[n-1] != id {
		return false
	}
	s.ids = s.ids[:n-1]
	return true
}

// IDs returns a copy of the stack, bottom first.
func (s *Stack) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

// Len returns the stack depth.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// TokenSet tracks reply tokens already consumed in a run.
type TokenSet struct {
	mu   sync.Mutex
	used map[string]bool
}

// NewTokenSet creates an empty set.
func NewTokenSet() *TokenSet {
	return &TokenSet{used: make(map[string]bool)}
}

// Claim marks token as used. It returns false if the token was already used.
func (t *TokenSet) Claim(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.used[token] {
		return false
	}
	t.used[token] = true
	return true
}

// Used reports whether token has been consumed.
func (t *TokenSet) Used(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used[token]
}

// Len returns the number of consumed tokens.
func (t *TokenSet) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.used)
}
