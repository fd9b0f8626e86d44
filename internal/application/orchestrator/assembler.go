package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/aescanero/docgen/pkg/domain"
	"go.uber.org/zap"
)

// Assembler builds the final artifact of a succeeded run
type Assembler struct {
	logger *zap.Logger
}

// NewAssembler creates a new result assembler
func NewAssembler(logger *zap.Logger) *Assembler {
	return &Assembler{logger: logger}
}

// Assemble merges the outputs of the run's succeeded nodes in declaration
// order, later nodes overwriting earlier ones on overlapping keys. When the
// workflow declares artifact keys the content is restricted to them and
// every key must be present.
func (a *Assembler) Assemble(def *domain.WorkflowDefinition, run *domain.Run) (*domain.Artifact, error) {
	if run.Status != domain.RunStatusSucceeded {
		return nil, domain.NewAssemblyError(run.ID, fmt.Errorf("run is %s, not %s", run.Status, domain.RunStatusSucceeded))
	}
	return a.build(def, run, time.Now())
}

func (a *Assembler) build(def *domain.WorkflowDefinition, run *domain.Run, now time.Time) (*domain.Artifact, error) {
	merged := make(map[string]any)
	for _, spec := range def.Nodes {
		exec, ok := run.Nodes[spec.ID]
		if !ok || exec.Status != domain.NodeStatusSucceeded || len(exec.Output) == 0 {
			continue
		}
		output, err := plainOutput(exec.Output)
		if err != nil {
			return nil, domain.NewAssemblyError(run.ID, fmt.Errorf("failed to copy output of %s: %w", spec.ID, err))
		}
		if err := mergo.Merge(&merged, output, mergo.WithOverride); err != nil {
			return nil, domain.NewAssemblyError(run.ID, fmt.Errorf("failed to merge output of %s: %w", spec.ID, err))
		}
	}

	content := merged
	if len(def.ArtifactKeys) > 0 {
		content = make(map[string]any, len(def.ArtifactKeys))
		var missing []string
		for _, key := range def.ArtifactKeys {
			v, ok := merged[key]
			if !ok {
				missing = append(missing, key)
				continue
			}
			content[key] = v
		}
		if len(missing) > 0 {
			return nil, domain.NewAssemblyError(run.ID, fmt.Errorf("missing artifact keys: %s", strings.Join(missing, ", ")))
		}
	}

	a.logger.Debug("artifact assembled",
		zap.String("run_id", run.ID),
		zap.Int("keys", len(content)))

	return &domain.Artifact{
		RunID:     run.ID,
		Workflow:  run.Workflow,
		Content:   content,
		CreatedAt: now,
	}, nil
}
