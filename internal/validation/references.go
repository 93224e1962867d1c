package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rendis/flowgraph/pkg/schema"
)

// WorkflowGetter looks up stored workflows. A nil workflow with a nil error means absent.
type WorkflowGetter interface {
	GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error)
}

// CheckReferences is the save-time cycle guard over the sub-workflow reference
// graph. It rejects direct self references and any cycle reachable from wf,
// resolving other workflows through getter with wf standing in for its stored
// version. Missing referenced workflows are reported as warnings.
func CheckReferences(ctx context.Context, wf *schema.Workflow, getter WorkflowGetter) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if wf == nil {
		return result
	}

	for _, ref := range wf.ReferencedWorkflowIDs() {
		if ref == wf.ID {
			result.AddErrorf("nodes", schema.ErrCodeCycleDetected, "workflow %q references itself", wf.ID)
		}
	}
	if !result.Valid() || getter == nil {
		return result
	}

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int)
	missing := make(map[string]bool)
	var path []string

	load := func(id string) (*schema.Workflow, error) {
		if id == wf.ID {
			return wf, nil
		}
		return getter.GetWorkflow(ctx, id)
	}

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		path = append(path, id)
		defer func() { path = path[:len(path)-1] }()

		current, err := load(id)
		if err != nil {
			return err
		}
		if current == nil {
			missing[id] = true
			color[id] = black
			return nil
		}
		for _, ref := range current.ReferencedWorkflowIDs() {
			switch color[ref] {
			case gray:
				cycle := append(append([]string(nil), path[indexOf(path, ref):]...), ref)
				result.AddErrorf("nodes", schema.ErrCodeCycleDetected,
					"sub-workflow reference cycle: %s", strings.Join(cycle, " -> "))
			case white:
				if err := visit(ref); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	if err := visit(wf.ID); err != nil {
		result.AddError("nodes", schema.ErrCodeStore, fmt.Sprintf("resolve referenced workflows: %s", err.Error()))
		return result
	}
	for id := range missing {
		result.AddWarning("nodes", schema.ErrCodeNotFound, fmt.Sprintf("referenced workflow %q does not exist", id))
	}
	return result
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return 0
}
