// docgen runs LLM-backed document generation workflows.
//
// Usage:
//
//	docgen serve
//	docgen run --input <file.json> [--workflow document_generation] [-o artifact.json]
//	docgen workflows
//
// Configuration is read from the environment, see internal/config.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "docgen",
	Short: "LLM-backed document generation orchestrator",
	Long:  "docgen executes document generation workflows as dependency graphs of\nLLM and tool calls, with per node retries and persisted run state.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workflowsCmd)
	rootCmd.Version = Version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
