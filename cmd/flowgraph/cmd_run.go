package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run <file|dir>... | --stored <workflow-id>",
	Short: "Execute a workflow and print its run result",
	Long: "Run loads workflow files into memory and executes the first definition\n" +
		"(or --workflow). With --stored the id is looked up in the configured database\n" +
		"and the run is recorded there.",
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runInput    string
	runWorkflow string
	runStored   bool
)

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "run input as JSON/YAML or @file")
	runCmd.Flags().StringVarP(&runWorkflow, "workflow", "w", "", "workflow id to execute (default: first loaded)")
	runCmd.Flags().BoolVar(&runStored, "stored", false, "execute a workflow stored in the database")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel, false)

	input, err := parseInput(runInput)
	if err != nil {
		return err
	}

	var st store.Store
	workflowID := runWorkflow
	if runStored {
		lst, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		st = lst
		if workflowID == "" {
			workflowID = args[0]
		}
	} else {
		workflows, err := loadWorkflowPaths(args)
		if err != nil {
			return err
		}
		ms := store.NewMemoryStore()
		if err := seedStore(ctx, ms, workflows); err != nil {
			return err
		}
		st = ms
		if workflowID == "" {
			workflowID = workflows[0].ID
		}
	}

	a, err := newApp(ctx, cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return err
	}
	defer a.Close()

	res, err := a.engine.Execute(ctx, workflowID, input,
		engine.WithTrigger(store.TriggerCLI, map[string]any{"args": args}))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("run %s failed: %s", res.RunID, res.Error)
	}
	return nil
}
