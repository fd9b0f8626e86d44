// Package grpc exposes the standard gRPC health service for the
// orchestrator, reporting NOT_SERVING when the worker pool is unhealthy or
// the server is shutting down.
package grpc
