// Package ports defines the interfaces between the orchestrator core and its
// adapters: run and document storage, the tool/model invoker, the event bus
// and the metrics collector.
package ports
