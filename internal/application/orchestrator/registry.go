package orchestrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/docgen/pkg/domain"
	"go.uber.org/zap"
)

// RegistryConfig holds policy defaults applied to registered workflows
type RegistryConfig struct {
	// Defaults replace a node policy left entirely unset. Otherwise they
	// only fill zero durations, zero retries being a valid setting.
	Defaults           domain.NodePolicy
	DefaultMaxInFlight int
	Overrides          map[string]domain.WorkflowOverride
}

// Registry holds the validated workflow definitions known to the service
type Registry struct {
	validator *Validator
	config    RegistryConfig
	logger    *zap.Logger

	mu        sync.RWMutex
	workflows map[string]*domain.WorkflowDefinition
}

// NewRegistry creates a new workflow registry
func NewRegistry(validator *Validator, config RegistryConfig, logger *zap.Logger) *Registry {
	return &Registry{
		validator: validator,
		config:    config,
		logger:    logger,
		workflows: make(map[string]*domain.WorkflowDefinition),
	}
}

// Register applies policy defaults and overrides to a copy of def, validates
// it and makes it available under its name.
func (r *Registry) Register(def *domain.WorkflowDefinition) error {
	if def == nil {
		return r.validator.Validate(nil)
	}

	resolved := r.resolve(def)
	if err := r.validator.Validate(resolved); err != nil {
		r.logger.Error("workflow validation failed",
			zap.String("workflow", def.Name),
			zap.Error(err))
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[resolved.Name]; exists {
		return domain.NewConfigurationError(resolved.Name, fmt.Errorf("workflow already registered"))
	}
	r.workflows[resolved.Name] = resolved

	r.logger.Info("workflow registered",
		zap.String("workflow", resolved.Name),
		zap.Int("nodes", len(resolved.Nodes)),
		zap.Int("max_in_flight", resolved.MaxInFlight))
	return nil
}

func (r *Registry) resolve(def *domain.WorkflowDefinition) *domain.WorkflowDefinition {
	resolved := def.Clone()
	override := r.config.Overrides[def.Name]

	if resolved.MaxInFlight == 0 {
		resolved.MaxInFlight = r.config.DefaultMaxInFlight
	}
	if override.MaxInFlight != nil {
		resolved.MaxInFlight = *override.MaxInFlight
	}

	for i := range resolved.Nodes {
		node := &resolved.Nodes[i]
		p := node.Policy
		if p == (domain.NodePolicy{}) {
			p = r.config.Defaults
		}
		if p.Timeout == 0 {
			p.Timeout = r.config.Defaults.Timeout
		}
		if p.BackoffBase == 0 {
			p.BackoffBase = r.config.Defaults.BackoffBase
		}
		if p.MaxBackoff == 0 {
			p.MaxBackoff = r.config.Defaults.MaxBackoff
		}
		if o, ok := override.Nodes[node.ID]; ok {
			p = o.Apply(p)
		}
		node.Policy = p
	}

	for nodeID := range override.Nodes {
		if _, ok := resolved.Node(nodeID); !ok {
			r.logger.Warn("policy override names unknown node",
				zap.String("workflow", def.Name),
				zap.String("node_id", nodeID))
		}
	}

	return resolved
}

// Get returns the registered workflow with the given name
func (r *Registry) Get(name string) (*domain.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.workflows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, name)
	}
	return def, nil
}

// List returns every registered workflow sorted by name
func (r *Registry) List() []*domain.WorkflowDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*domain.WorkflowDefinition, 0, len(r.workflows))
	for _, def := range r.workflows {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
