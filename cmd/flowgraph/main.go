// flowgraph executes node/edge workflow graphs.
//
// Usage:
//
//	flowgraph serve [--seed=<dir>] [--mcp]
//	flowgraph run <file> [--input=<json|@file>] [--workflow=<id>]
//	flowgraph validate <file>...
//	flowgraph diagram <file> [--format=ascii|mermaid|png|svg] [-o <path>]
//	flowgraph install-tools
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowgraph",
	Short: "Workflow graph execution engine",
	Long: "flowgraph runs stored node/edge workflows: outbound calls, branching,\n" +
		"data reshaping, messaging and nested sub-workflows, with a step debugger.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(diagramCmd)
	rootCmd.AddCommand(installToolsCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
