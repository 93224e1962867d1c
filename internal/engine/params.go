package engine

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/pkg/schema"
)

// InputValidator checks input values against a JSON Schema document.
// Satisfied by *validation.WorkflowValidator.
type InputValidator interface {
	ValidateInput(input map[string]any, inputSchema []byte) error
}

// applyParams fills declared defaults into vars and returns the names of
// required parameters that are still missing.
func applyParams(params []schema.Param, vars map[string]any) []string {
	var missing []string
	for _, p := range params {
		if _, ok := vars[p.Name]; ok {
			continue
		}
		if p.Default != nil {
			vars[p.Name] = p.Default
			continue
		}
		if p.Required {
			missing = append(missing, p.Name)
		}
	}
	return missing
}

// paramsSchema builds a JSON Schema constraining the declared types of
// params. It returns nil when no parameter declares a type.
func paramsSchema(params []schema.Param) []byte {
	props := make(map[string]any)
	for _, p := range params {
		if p.Type == "" {
			continue
		}
		props[p.Name] = map[string]any{"type": p.Type}
	}
	if len(props) == 0 {
		return nil
	}
	b, err := json.Marshal(map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": props,
	})
	if err != nil {
		return nil
	}
	return b
}

// prepareVars applies defaults and checks required and typed parameters.
// code is the error code reported for missing parameters.
func prepareVars(params []schema.Param, vars map[string]any, v InputValidator, code string) error {
	if missing := applyParams(params, vars); len(missing) > 0 {
		sort.Strings(missing)
		return schema.NewErrorf(code, "missing required parameters: %s", strings.Join(missing, ", ")).
			WithDetails(map[string]any{"missing": missing})
	}
	if v == nil {
		return nil
	}
	if doc := paramsSchema(params); doc != nil {
		if err := v.ValidateInput(withoutSystemFields(vars), doc); err != nil {
			return err
		}
	}
	return nil
}

func withoutSystemFields(vars map[string]any) map[string]any {
	if _, ok := vars[execution.TriggerKey]; !ok {
		return vars
	}
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		if k != execution.TriggerKey {
			out[k] = v
		}
	}
	return out
}
