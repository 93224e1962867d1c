package validation

import (
	"context"
	"errors"

	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/pkg/schema"
)

// WorkflowValidator runs the validation pipeline:
//  1. Structural (JSON Schema)
//  2. Semantic (node configs, edge endpoints, branch tags)
//  3. Graph (start nodes, edge cycles)
//  4. References (sub-workflow cycles across stored workflows)
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	jq         *expressions.JQ
	workflows  WorkflowGetter
}

// NewWorkflowValidator creates a WorkflowValidator. workflows may be nil to
// restrict the reference check to direct self references.
func NewWorkflowValidator(workflows WorkflowGetter) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{
		jsonSchema: jsv,
		jq:         expressions.NewJQ(),
		workflows:  workflows,
	}, nil
}

// Validate runs every stage and aggregates the result. Structural errors
// short-circuit the later stages.
func (wv *WorkflowValidator) Validate(ctx context.Context, wf *schema.Workflow) *schema.ValidationResult {
	if wf == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow is nil")
		return r
	}

	result := validateStructural(wv.jsonSchema, wf)
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(wf, wv.jsonSchema, wv.jq))
	result.Merge(validateGraph(wf))
	result.Merge(CheckReferences(ctx, wf, wv.workflows))
	return result
}

// ValidateInput delegates to the JSON Schema validator.
func (wv *WorkflowValidator) ValidateInput(input map[string]any, inputSchema []byte) error {
	return wv.jsonSchema.ValidateInput(input, inputSchema)
}

// Cards exposes the card template validator used by messaging nodes.
func (wv *WorkflowValidator) Cards() CardValidator {
	return wv.jsonSchema
}

func validateStructural(v *JSONSchemaValidator, wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	err := v.ValidateWorkflow(wf)
	if err == nil {
		return result
	}

	var fe *schema.FlowError
	if !errors.As(err, &fe) {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}
	if violations, ok := fe.Details["violations"].([]string); ok {
		for _, v := range violations {
			result.AddError("/", schema.ErrCodeValidation, v)
		}
		return result
	}
	result.AddError("/", schema.ErrCodeValidation, fe.Message)
	return result
}

var _ Validator = (*WorkflowValidator)(nil)
