package expressions

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/rendis/flowgraph/pkg/schema"
)

// JQ runs jq programs over decoded JSON values. Compiled programs are cached
// and the environment is sandboxed ($ENV is empty). Safe for concurrent use.
type JQ struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewJQ creates a jq runner.
func NewJQ() *JQ {
	return &JQ{cache: make(map[string]*gojq.Code)}
}

// Query evaluates program against input. A single output is returned as is,
// several outputs are collected into a list, none yields nil.
func (j *JQ) Query(ctx context.Context, program string, input any) (any, error) {
	if program == "" {
		return nil, schema.NewError(schema.ErrCodeConfig, "empty jq program")
	}
	code, err := j.compile(program)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, normalizeJSON(input))
	var out []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeDependency, "jq %q: %s", program, err.Error()).
				WithCause(err)
		}
		out = append(out, v)
	}

	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	default:
		return out, nil
	}
}

// Check parses and compiles program without running it.
func (j *JQ) Check(program string) error {
	_, err := j.compile(program)
	return err
}

func (j *JQ) compile(program string) (*gojq.Code, error) {
	j.mu.RLock()
	code, ok := j.cache[program]
	j.mu.RUnlock()
	if ok {
		return code, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if code, ok := j.cache[program]; ok {
		return code, nil
	}

	query, err := gojq.Parse(program)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "jq parse error in %q: %s", program, err.Error()).
			WithCause(err)
	}
	code, err = gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "jq compile error in %q: %s", program, err.Error()).
			WithCause(err)
	}
	j.cache[program] = code
	return code, nil
}

// normalizeJSON converts Go values into the types gojq accepts
// (float64 numbers, map[string]any, []any) via a JSON round trip when needed.
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case nil, bool, string, float64:
		return v
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeJSON(item)
		}
		return out
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var decoded any
		if err := json.Unmarshal(b, &decoded); err != nil {
			return v
		}
		return decoded
	}
}
