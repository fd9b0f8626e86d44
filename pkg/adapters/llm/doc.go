// Package llm provides LLM invoker implementations.
//
// The factory creates an invoker for the configured provider and wraps it
// with request defaults, a shared rate limit and metrics. Providers:
//   - anthropic: Anthropic Messages API
//   - mock: deterministic replies for tests and offline runs
package llm
