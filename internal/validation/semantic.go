package validation

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/pkg/schema"
)

var httpMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true, http.MethodPatch: true,
	http.MethodDelete: true, http.MethodHead: true, http.MethodOptions: true,
}

// validateSemantic checks node ids, edge endpoints, per-type node configuration
// and branch tags.
func validateSemantic(wf *schema.Workflow, cards CardValidator, jq *expressions.JQ) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodes := make(map[string]*schema.Node, len(wf.Nodes))
	configs := make(map[string]schema.NodeConfig, len(wf.Nodes))
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		path := fmt.Sprintf("nodes[%d]", i)
		if _, dup := nodes[n.ID]; dup {
			result.AddErrorf(path+".id", schema.ErrCodeValidation, "duplicate node id %q", n.ID)
			continue
		}
		nodes[n.ID] = n

		cfg, err := n.ParseConfig()
		if err != nil {
			result.AddError(path+".config", schema.ErrorCode(err), err.Error())
			continue
		}
		configs[n.ID] = cfg
		validateNodeConfig(path+".config", cfg, cards, jq, result)

		if wf.Composed && n.Type != schema.NodeTypeSubWorkflow && !n.Type.IsMarker() {
			result.AddWarning(path, schema.ErrCodeValidation,
				fmt.Sprintf("composed workflow only runs sub_workflow nodes; node %q (%s) is ignored", n.ID, n.Type))
		}
	}

	for i, e := range wf.Edges {
		path := fmt.Sprintf("edges[%d]", i)
		src, srcOK := nodes[e.Source]
		if !srcOK {
			result.AddErrorf(path+".source", schema.ErrCodeValidation, "references non-existent node %q", e.Source)
		}
		if _, ok := nodes[e.Target]; !ok {
			result.AddErrorf(path+".target", schema.ErrCodeValidation, "references non-existent node %q", e.Target)
		}
		if e.Source == e.Target {
			result.AddWarning(path, schema.ErrCodeCycleDetected, fmt.Sprintf("edge loops node %q onto itself", e.Source))
		}
		if srcOK && e.Branch != "" {
			validateBranchTag(path+".branch", src, configs[src.ID], e.Branch, result)
		}
	}

	seenParams := make(map[string]bool)
	for i, p := range wf.InputParams {
		if seenParams[p.Name] {
			result.AddErrorf(fmt.Sprintf("inputParams[%d].name", i), schema.ErrCodeValidation, "duplicate input param %q", p.Name)
		}
		seenParams[p.Name] = true
	}

	return result
}

func validateNodeConfig(path string, cfg schema.NodeConfig, cards CardValidator, jq *expressions.JQ, result *schema.ValidationResult) {
	switch c := cfg.(type) {
	case *schema.HTTPRequestConfig:
		if c.URL == "" {
			result.AddError(path+".url", schema.ErrCodeConfig, "url is required")
		}
		if c.Method != "" && !httpMethods[strings.ToUpper(c.Method)] {
			result.AddErrorf(path+".method", schema.ErrCodeConfig, "unsupported method %q", c.Method)
		}
		switch c.UseDataFrom {
		case "", schema.UseDataNone, schema.UseDataPreviousResult, schema.UseDataLiteral:
		default:
			result.AddErrorf(path+".useDataFrom", schema.ErrCodeConfig, "unknown body source %q", c.UseDataFrom)
		}
		if c.Timeout != "" {
			if _, err := time.ParseDuration(c.Timeout); err != nil {
				result.AddErrorf(path+".timeout", schema.ErrCodeConfig, "invalid timeout %q", c.Timeout)
			}
		}
		if c.Retry != nil {
			validateRetry(path+".retry", c.Retry, result)
		}
	case *schema.ConditionConfig:
		validateCondition(path, c.Condition, result)
	case *schema.MultiConditionConfig:
		switch strings.ToLower(c.Logic) {
		case "", "and", "or":
		default:
			result.AddErrorf(path+".logic", schema.ErrCodeConfig, "logic must be \"and\" or \"or\", got %q", c.Logic)
		}
		if len(c.Conditions) == 0 {
			result.AddWarning(path+".conditions", schema.ErrCodeConfig, "no conditions configured")
		}
		for i, cond := range c.Conditions {
			validateCondition(fmt.Sprintf("%s.conditions[%d]", path, i), cond, result)
		}
	case *schema.SwitchConfig:
		if c.Field == "" {
			result.AddError(path+".field", schema.ErrCodeConfig, "field is required")
		}
		if len(c.Cases) == 0 {
			result.AddWarning(path+".cases", schema.ErrCodeConfig, "no cases configured; the switch always takes the default branch")
		}
	case *schema.TransformConfig:
		if len(c.Mappings) == 0 {
			result.AddError(path+".mappings", schema.ErrCodeConfig, "at least one mapping is required")
		}
		for i, m := range c.Mappings {
			mp := fmt.Sprintf("%s.mappings[%d]", path, i)
			if m.From == "" || m.To == "" {
				result.AddError(mp, schema.ErrCodeConfig, "mapping requires both from and to")
			}
			if m.Query != "" && jq != nil {
				if err := jq.Check(m.Query); err != nil {
					result.AddError(mp+".query", schema.ErrCodeConfig, err.Error())
				}
			}
		}
	case *schema.MessageReplyConfig:
		validateTarget(path, c.MessageTarget, false, result)
		if len(c.Messages) == 0 {
			result.AddError(path+".messages", schema.ErrCodeConfig, "at least one message is required")
		}
	case *schema.MessagePushConfig:
		validateTarget(path, c.MessageTarget, true, result)
		if len(c.Messages) == 0 {
			result.AddError(path+".messages", schema.ErrCodeConfig, "at least one message is required")
		}
	case *schema.MessageCardsConfig:
		validateTarget(path, c.MessageTarget, false, result)
		if cards != nil {
			if err := cards.ValidateCards(c.Cards); err != nil {
				result.AddError(path+".cards", schema.ErrCodeValidation, err.Error())
			}
		}
	case *schema.SubWorkflowConfig:
		if c.WorkflowID == "" {
			result.AddError(path+".workflowId", schema.ErrCodeConfig, "workflowId is required")
		}
		for i, m := range c.Mappings {
			if m.Target == "" {
				result.AddError(fmt.Sprintf("%s.mappings[%d].target", path, i), schema.ErrCodeConfig, "mapping target is required")
			}
		}
	case *schema.MarkerConfig:
	}
}

func validateCondition(path string, c schema.Condition, result *schema.ValidationResult) {
	if c.Field == "" {
		result.AddError(path+".field", schema.ErrCodeConfig, "field is required")
	}
	if !schema.IsComparisonOperator(c.Operator) {
		result.AddErrorf(path+".operator", schema.ErrCodeConfig, "unsupported operator %q; expected one of %s",
			c.Operator, strings.Join(schema.ComparisonOperators, ", "))
	}
}

func validateTarget(path string, t schema.MessageTarget, requireUser bool, result *schema.ValidationResult) {
	if t.Token == "" {
		result.AddError(path+".token", schema.ErrCodeConfig, "token is required")
	}
	if requireUser && t.UserID == "" {
		result.AddError(path+".userId", schema.ErrCodeConfig, "userId is required for push messages")
	}
	if !requireUser && t.ReplyToken == "" && t.UserID == "" {
		result.AddError(path, schema.ErrCodeConfig, "either replyToken or userId is required")
	}
}

func validateRetry(path string, r *schema.RetryPolicy, result *schema.ValidationResult) {
	if r.Max < 0 {
		result.AddError(path+".max", schema.ErrCodeConfig, "max must be >= 0")
	}
	switch r.Backoff {
	case "", "none", "constant", "linear", "exponential":
	default:
		result.AddErrorf(path+".backoff", schema.ErrCodeConfig, "unknown backoff %q", r.Backoff)
	}
	for field, v := range map[string]string{"delay": r.Delay, "max_delay": r.MaxDelay} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			result.AddErrorf(path+"."+field, schema.ErrCodeConfig, "invalid duration %q", v)
		}
	}
}

func validateBranchTag(path string, src *schema.Node, cfg schema.NodeConfig, branch string, result *schema.ValidationResult) {
	switch {
	case !src.Type.IsBranching():
		result.AddWarning(path, schema.ErrCodeValidation,
			fmt.Sprintf("branch %q on edge from non-branching node %q is ignored", branch, src.ID))
	case src.Type.IsBoolean():
		if branch != schema.BranchTrue && branch != schema.BranchFalse {
			result.AddWarning(path, schema.ErrCodeValidation,
				fmt.Sprintf("condition node %q only produces \"true\" or \"false\", edge branch %q never fires", src.ID, branch))
		}
	case src.Type == schema.NodeTypeSwitch:
		sw, ok := cfg.(*schema.SwitchConfig)
		if !ok || branch == schema.BranchDefault {
			return
		}
		for _, c := range sw.Cases {
			if expressions.Stringify(c.Value) == branch {
				return
			}
		}
		result.AddWarning(path, schema.ErrCodeValidation,
			fmt.Sprintf("switch node %q has no case %q", src.ID, branch))
	}
}
