package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aescanero/docgen/pkg/domain"
	"gopkg.in/yaml.v3"
)

// policyFile is the layout of WORKFLOW_POLICY_FILE:
//
//	workflows:
//	  document_generation:
//	    max_in_flight: 2
//	    nodes:
//	      file_summarizer:
//	        timeout: 10m
//	        max_retries: 5
type policyFile struct {
	Workflows map[string]domain.WorkflowOverride `yaml:"workflows"`
}

// LoadPolicies reads per workflow policy overrides. An empty path yields no
// overrides.
func LoadPolicies(path string) (map[string]domain.WorkflowOverride, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicies(data)
}

// ParsePolicies decodes policy overrides, rejecting unknown fields and
// negative values
func ParsePolicies(data []byte) (map[string]domain.WorkflowOverride, error) {
	var f policyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	for name, wf := range f.Workflows {
		if wf.MaxInFlight != nil && *wf.MaxInFlight < 1 {
			return nil, fmt.Errorf("workflow %s: max_in_flight must be at least 1", name)
		}
		for node, o := range wf.Nodes {
			if err := validateOverride(o); err != nil {
				return nil, fmt.Errorf("workflow %s node %s: %w", name, node, err)
			}
		}
	}
	return f.Workflows, nil
}

func validateOverride(o domain.NodePolicyOverride) error {
	switch {
	case o.Timeout != nil && *o.Timeout < 0:
		return errors.New("timeout must not be negative")
	case o.MaxRetries != nil && *o.MaxRetries < 0:
		return errors.New("max_retries must not be negative")
	case o.BackoffBase != nil && *o.BackoffBase < 0:
		return errors.New("backoff_base must not be negative")
	case o.MaxBackoff != nil && *o.MaxBackoff < 0:
		return errors.New("max_backoff must not be negative")
	}
	return nil
}
