package actions

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/pkg/schema"
)

// TransformHandler reshapes the previous result's data into a new object.
// Each mapping copies the value at a gjson path, optionally filtered by a
// jq program, into an output key. Paths absent from the source are skipped.
type TransformHandler struct {
	jq *expressions.JQ
}

// NewTransformHandler creates the data_transform handler.
func NewTransformHandler(jq *expressions.JQ) *TransformHandler {
	if jq == nil {
		jq = expressions.NewJQ()
	}
	return &TransformHandler{jq: jq}
}

func (h *TransformHandler) Type() schema.NodeType { return schema.NodeTypeTransform }

func (h *TransformHandler) Describe() string {
	return "Copy paths of the previous result into a new object."
}

func (h *TransformHandler) Execute(ctx context.Context, call *Call) *schema.ExecutionResult {
	cfg, bad := configAs[*schema.TransformConfig](call)
	if bad != nil {
		return bad
	}

	last := call.Ctx.LastResult
	if last == nil || last.Data == nil {
		return fail(schema.ErrCodeDependency, "node %s has no previous result to transform", call.Node.ID)
	}
	src, err := json.Marshal(last.Data)
	if err != nil {
		return schema.Failed(schema.NewError(schema.ErrCodeDependency, "previous result is not JSON-encodable").WithCause(err))
	}

	out := make(map[string]any, len(cfg.Mappings))
	var missing []string
	for _, m := range cfg.Mappings {
		if m.To == "" {
			return fail(schema.ErrCodeConfig, "mapping from %q has no target", m.From)
		}

		var value any
		if m.From == "" || m.From == "." || m.From == "@this" {
			value = gjson.ParseBytes(src).Value()
		} else {
			r := lookupFrom(last.Data, src, m.From)
			if !r.Exists() {
				missing = append(missing, m.From)
				continue
			}
			value = r.Value()
		}

		if m.Query != "" {
			value, err = h.jq.Query(ctx, m.Query, value)
			if err != nil {
				return schema.Failed(err)
			}
		}
		out[m.To] = value
	}

	res := schema.Succeeded(out)
	if len(missing) > 0 {
		res.Details = map[string]any{"missingPaths": missing}
	}
	return res
}

// lookupFrom prefers a top-level key equal to from, so keys containing dots
// or wildcard characters are copied literally. Otherwise from is a gjson
// path with its wildcards escaped.
func lookupFrom(data any, src []byte, from string) gjson.Result {
	if m, ok := data.(map[string]any); ok {
		if _, ok := m[from]; ok {
			return gjson.GetBytes(src, escapePath(from, ".*?#|@!\\"))
		}
	}
	return gjson.GetBytes(src, escapePath(from, "*?"))
}

func escapePath(path, special string) string {
	var b strings.Builder
	for _, r := range path {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
