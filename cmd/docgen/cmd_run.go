package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aescanero/docgen/internal/application/documents"
	"github.com/aescanero/docgen/internal/config"
	"github.com/aescanero/docgen/pkg/domain"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runFlags struct {
	workflow string
	input    string
	output   string
	timeout  time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one workflow run and print its artifact",
	Long:  "Execute one workflow run in process. The input file holds the run input\nas a JSON object; '-' reads it from stdin.",
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.workflow, "workflow", "w", documents.WorkflowName, "Workflow name")
	f.StringVarP(&runFlags.input, "input", "i", "", "Run input JSON file (required)")
	f.StringVarP(&runFlags.output, "output", "o", "", "Write the artifact to this file instead of stdout")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "Cancel the run after this duration (0 means the configured run timeout)")

	_ = runCmd.MarkFlagRequired("input")
}

func runRun(cmd *cobra.Command, _ []string) error {
	input, err := readInput(cmd.InOrStdin(), runFlags.input)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runFlags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runFlags.timeout)
		defer cancel()
	}

	// One-shot runs expose no metrics endpoint
	a, err := newApp(ctx, cfg, prometheus.NewRegistry(), logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
		defer cancel()
		if err := a.shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	run, artifact, err := a.manager.Execute(ctx, runFlags.workflow, input)
	if err != nil {
		return fmt.Errorf("failed to execute run: %w", err)
	}
	if run.Status != domain.RunStatusSucceeded {
		if run.Failure != nil {
			return fmt.Errorf("run %s %s: node %s (%s, %d attempts): %s",
				run.ID, run.Status, run.Failure.NodeID, run.Failure.Class, run.Failure.Attempts, run.Failure.Message)
		}
		return fmt.Errorf("run %s %s", run.ID, run.Status)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	data = append(data, '\n')

	if runFlags.output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(runFlags.output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s succeeded, artifact written to %s\n", run.ID, runFlags.output)
	return nil
}

// readInput decodes the run input object from path, or from stdin for "-"
func readInput(stdin io.Reader, path string) (map[string]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}
	if input == nil {
		return nil, fmt.Errorf("input must be a JSON object")
	}
	return input, nil
}
