// Package config provides configuration management for the document
// orchestrator.
//
// Configuration is loaded from environment variables using the env package.
// All configuration values have sensible defaults for development use, except
// the LLM API key which is required when the anthropic provider is selected.
//
// Per workflow node policy overrides can be supplied in a YAML file named by
// WORKFLOW_POLICY_FILE and loaded with LoadPolicies.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
