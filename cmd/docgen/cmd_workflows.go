package main

import (
	"fmt"
	"strings"

	"github.com/aescanero/docgen/internal/config"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var workflowsFlags struct {
	json bool
}

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List the registered workflows and their nodes",
	RunE:  runWorkflows,
}

func init() {
	workflowsCmd.Flags().BoolVar(&workflowsFlags.json, "json", false, "Print the catalogue as JSON")
}

func runWorkflows(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := initLogger("error")
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, prometheus.NewRegistry(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.shutdown(cmd.Context()) }()

	infos := a.manager.Workflows()
	out := cmd.OutOrStdout()

	if workflowsFlags.json {
		data, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode workflows: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	for _, info := range infos {
		fmt.Fprintf(out, "%s (%d nodes, max in flight %d)\n", info.Name, len(info.Nodes), info.MaxInFlight)
		if info.Description != "" {
			fmt.Fprintf(out, "  %s\n", info.Description)
		}
		fmt.Fprintf(out, "  initial keys:  %s\n", strings.Join(info.InitialKeys, ", "))
		fmt.Fprintf(out, "  artifact keys: %s\n", strings.Join(info.ArtifactKeys, ", "))
		for _, n := range info.Nodes {
			var flags []string
			if n.Optional {
				flags = append(flags, "optional")
			}
			if n.Conditional {
				flags = append(flags, "conditional")
			}
			line := "    " + n.ID
			if len(n.DependsOn) > 0 {
				line += " <- " + strings.Join(n.DependsOn, ", ")
			}
			if len(flags) > 0 {
				line += " [" + strings.Join(flags, ", ") + "]"
			}
			fmt.Fprintf(out, "%s retries=%d timeout=%s\n", line, n.Policy.MaxRetries, n.Policy.Timeout)
		}
	}
	return nil
}
