package actions

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Compare applies a comparison operator. Equality and containment compare
// stringified values; ordering operators compare numerically and are false
// when either side is not a number.
func Compare(left any, op string, right any) (bool, error) {
	switch op {
	case "==":
		return expressions.Stringify(left) == expressions.Stringify(right), nil
	case "!=":
		return expressions.Stringify(left) != expressions.Stringify(right), nil
	case "contains":
		return contains(left, right), nil
	case "not_contains":
		return !contains(left, right), nil
	case ">", "<", ">=", "<=":
		l, r := toNumber(left), toNumber(right)
		if math.IsNaN(l) || math.IsNaN(r) {
			return false, nil
		}
		switch op {
		case ">":
			return l > r, nil
		case "<":
			return l < r, nil
		case ">=":
			return l >= r, nil
		default:
			return l <= r, nil
		}
	default:
		return false, schema.NewErrorf(schema.ErrCodeConfig, "unsupported operator %q", op)
	}
}

func contains(haystack, needle any) bool {
	want := expressions.Stringify(needle)
	if list, ok := haystack.([]any); ok {
		for _, item := range list {
			if expressions.Stringify(item) == want {
				return true
			}
		}
		return false
	}
	return strings.Contains(expressions.Stringify(haystack), want)
}

func toNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// operands resolves the two sides of a comparison. The field is either a
// placeholder template, a context variable name, or a literal. Only
// placeholders are resolved on the value side.
type operands struct {
	interp *expressions.Interpolator
}

func (o operands) field(ctx context.Context, field string, ec *execution.Context) any {
	if expressions.HasPlaceholders(field) {
		return o.interp.ResolveValue(ctx, field, ec)
	}
	if v, ok := ec.Lookup(field); ok {
		return v
	}
	return field
}

func (o operands) value(ctx context.Context, v any, ec *execution.Context) any {
	if s, ok := v.(string); ok {
		return o.interp.ResolveValue(ctx, s, ec)
	}
	return v
}

// ConditionHandler evaluates one comparison and branches on its outcome.
type ConditionHandler struct {
	ops operands
}

// NewConditionHandler creates the condition handler.
func NewConditionHandler(interp *expressions.Interpolator) *ConditionHandler {
	return &ConditionHandler{ops: operands{interp: interp}}
}

func (h *ConditionHandler) Type() schema.NodeType { return schema.NodeTypeCondition }

func (h *ConditionHandler) Describe() string {
	return "Compare a field against a value; branches \"true\" or \"false\"."
}

func (h *ConditionHandler) Execute(ctx context.Context, call *Call) *schema.ExecutionResult {
	cfg, bad := configAs[*schema.ConditionConfig](call)
	if bad != nil {
		return bad
	}
	if cfg.Field == "" {
		return fail(schema.ErrCodeConfig, "condition field is required")
	}
	ok, err := Compare(h.ops.field(ctx, cfg.Field, call.Ctx), cfg.Operator, h.ops.value(ctx, cfg.Value, call.Ctx))
	if err != nil {
		return schema.Failed(err)
	}
	return &schema.ExecutionResult{Success: true, Data: ok, Branch: boolBranch(ok)}
}

// MultiConditionHandler combines several comparisons with and/or logic.
type MultiConditionHandler struct {
	ops operands
}

// NewMultiConditionHandler creates the multi_condition handler.
func NewMultiConditionHandler(interp *expressions.Interpolator) *MultiConditionHandler {
	return &MultiConditionHandler{ops: operands{interp: interp}}
}

func (h *MultiConditionHandler) Type() schema.NodeType { return schema.NodeTypeMultiCondition }

func (h *MultiConditionHandler) Describe() string {
	return "Combine comparisons with and/or logic; branches \"true\" or \"false\"."
}

// ConditionDetail reports how one sub-condition evaluated.
type ConditionDetail struct {
	Field    any    `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
	Result   bool   `json:"result"`
}

func (h *MultiConditionHandler) Execute(ctx context.Context, call *Call) *schema.ExecutionResult {
	cfg, bad := configAs[*schema.MultiConditionConfig](call)
	if bad != nil {
		return bad
	}

	logic := strings.ToLower(cfg.Logic)
	if logic == "" {
		logic = "and"
	}
	if logic != "and" && logic != "or" {
		return fail(schema.ErrCodeConfig, "unsupported logic %q", cfg.Logic)
	}

	details := make([]ConditionDetail, 0, len(cfg.Conditions))
	outcome := logic == "and"
	for _, c := range cfg.Conditions {
		field := h.ops.field(ctx, c.Field, call.Ctx)
		value := h.ops.value(ctx, c.Value, call.Ctx)
		ok, err := Compare(field, c.Operator, value)
		if err != nil {
			return schema.Failed(err)
		}
		details = append(details, ConditionDetail{Field: field, Operator: c.Operator, Value: value, Result: ok})
		if logic == "and" {
			outcome = outcome && ok
		} else {
			outcome = outcome || ok
		}
	}

	return &schema.ExecutionResult{Success: true, Data: outcome, Branch: boolBranch(outcome), Details: details}
}

// SwitchHandler matches a resolved field against literal cases.
type SwitchHandler struct {
	ops operands
}

// NewSwitchHandler creates the switch handler.
func NewSwitchHandler(interp *expressions.Interpolator) *SwitchHandler {
	return &SwitchHandler{ops: operands{interp: interp}}
}

func (h *SwitchHandler) Type() schema.NodeType { return schema.NodeTypeSwitch }

func (h *SwitchHandler) Describe() string {
	return "Branch on the first case equal to the field value, else \"default\"."
}

func (h *SwitchHandler) Execute(ctx context.Context, call *Call) *schema.ExecutionResult {
	cfg, bad := configAs[*schema.SwitchConfig](call)
	if bad != nil {
		return bad
	}
	if cfg.Field == "" {
		return fail(schema.ErrCodeConfig, "switch field is required")
	}

	resolved := h.ops.field(ctx, cfg.Field, call.Ctx)
	want := expressions.Stringify(resolved)
	branch := schema.BranchDefault
	for _, c := range cfg.Cases {
		if tag := expressions.Stringify(c.Value); tag == want {
			branch = tag
			break
		}
	}
	return &schema.ExecutionResult{Success: true, Data: resolved, Branch: branch}
}

func boolBranch(ok bool) string {
	if ok {
		return schema.BranchTrue
	}
	return schema.BranchFalse
}
