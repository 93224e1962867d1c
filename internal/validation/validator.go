package validation

import (
	"context"

	"github.com/rendis/flowgraph/pkg/schema"
)

// Validator checks workflow definitions before they are saved or executed.
type Validator interface {
	Validate(ctx context.Context, wf *schema.Workflow) *schema.ValidationResult
	ValidateInput(input map[string]any, inputSchema []byte) error
}

// CardValidator checks multi-card templates for structural completeness.
type CardValidator interface {
	ValidateCards(cards []schema.Card) error
}
