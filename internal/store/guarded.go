package store

import (
	"context"

	"github.com/rendis/flowgraph/pkg/schema"
)

// DefinitionValidator checks a workflow before it is persisted.
type DefinitionValidator interface {
	Validate(ctx context.Context, wf *schema.Workflow) *schema.ValidationResult
}

// ValidatingStore rejects workflow saves that fail validation, including the
// sub-workflow reference cycle check. Everything else passes through.
type ValidatingStore struct {
	Store
	validator DefinitionValidator
}

// NewValidatingStore wraps s so that SaveWorkflow validates first.
func NewValidatingStore(s Store, v DefinitionValidator) *ValidatingStore {
	return &ValidatingStore{Store: s, validator: v}
}

// SaveWorkflow validates wf and persists it only when it has no errors.
// The validation result is returned either way.
func (s *ValidatingStore) SaveWorkflow(ctx context.Context, wf *schema.Workflow) error {
	_, err := s.Save(ctx, wf)
	return err
}

// Save validates and persists wf, returning the validation result with any
// warnings attached.
func (s *ValidatingStore) Save(ctx context.Context, wf *schema.Workflow) (*schema.ValidationResult, error) {
	result := s.validator.Validate(ctx, wf)
	if !result.Valid() {
		return result, result.ToError()
	}
	if err := s.Store.SaveWorkflow(ctx, wf); err != nil {
		return result, err
	}
	return result, nil
}
