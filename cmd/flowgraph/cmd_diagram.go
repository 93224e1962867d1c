package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/flowgraph/internal/diagram"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/pkg/schema"
)

var diagramCmd = &cobra.Command{
	Use:   "diagram <file|dir>...",
	Short: "Render a workflow graph",
	Long: "Diagram renders the first loaded workflow (or --workflow) as ascii, mermaid,\n" +
		"png or svg. Sub-workflows found among the loaded files can be inlined with\n" +
		"--expand. ASCII output uses the mermaid-ascii tool when install-tools has\n" +
		"fetched it.",
	Args: cobra.MinimumNArgs(1),
	RunE: runDiagram,
}

var (
	diagramFormat   string
	diagramOutput   string
	diagramWorkflow string
	diagramExpand   bool
)

func init() {
	f := diagramCmd.Flags()
	f.StringVarP(&diagramFormat, "format", "f", "ascii", "ascii, mermaid, png or svg")
	f.StringVarP(&diagramOutput, "output", "o", "", "write to file instead of stdout")
	f.StringVarP(&diagramWorkflow, "workflow", "w", "", "workflow id to render (default: first loaded)")
	f.BoolVar(&diagramExpand, "expand", false, "inline referenced sub-workflows")
}

func runDiagram(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	workflows, err := loadWorkflowPaths(args)
	if err != nil {
		return err
	}
	ms := store.NewMemoryStore()
	if err := seedStore(ctx, ms, workflows); err != nil {
		return err
	}

	wf := workflows[0]
	if diagramWorkflow != "" {
		if wf, err = ms.GetWorkflow(ctx, diagramWorkflow); err != nil {
			return err
		}
		if wf == nil {
			return fmt.Errorf("workflow %s not found in %v", diagramWorkflow, args)
		}
	}

	var opts []diagram.Option
	if diagramExpand {
		opts = append(opts, diagram.WithSubWorkflows(func(id string) *schema.Workflow {
			child, _ := ms.GetWorkflow(ctx, id)
			return child
		}))
	}
	model, err := diagram.Build(wf, opts...)
	if err != nil {
		return err
	}

	var out []byte
	switch diagramFormat {
	case "ascii":
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out = []byte(diagram.RenderASCIIAuto(ctx, model, cfg.binDir()))
	case "mermaid":
		out = []byte(diagram.RenderMermaid(model))
	case "png", "svg":
		if out, err = diagram.RenderGraphviz(ctx, model, diagram.Format(diagramFormat)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported format %q", diagramFormat)
	}

	if diagramOutput == "" {
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}
	return os.WriteFile(diagramOutput, out, 0o644)
}
