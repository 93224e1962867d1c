package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/validation"
	"github.com/rendis/flowgraph/pkg/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|dir>...",
	Short: "Validate workflow definition files",
	Long: "Validate checks structure, node configs, edges and sub-workflow reference\n" +
		"cycles. Files passed together may reference each other.",
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	workflows, err := loadWorkflowPaths(args)
	if err != nil {
		return err
	}
	ms := store.NewMemoryStore()
	if err := seedStore(ctx, ms, workflows); err != nil {
		return err
	}
	v, err := validation.NewWorkflowValidator(ms)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, wf := range workflows {
		result := v.Validate(ctx, wf)
		if result.Valid() {
			fmt.Fprintf(out, "ok    %s\n", wf.ID)
		} else {
			failed++
			fmt.Fprintf(out, "FAIL  %s\n", wf.ID)
		}
		printIssues(cmd, "error", result.Errors)
		printIssues(cmd, "warning", result.Warnings)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d workflows invalid", failed, len(workflows))
	}
	return nil
}

func printIssues(cmd *cobra.Command, kind string, issues []schema.ValidationIssue) {
	for _, is := range issues {
		fmt.Fprintf(cmd.OutOrStdout(), "      %s %s [%s] %s\n", kind, is.Path, is.Code, is.Message)
	}
}
