// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Run submission, synchronous or in the background
//   - Run status, node history and artifact queries
//   - Cancellation
//   - Workflow catalogue and worker pool status
//   - Health checks and Prometheus metrics
//
// Failures are reported as {"error": {"code", "message"}} with the status
// derived from the error class: unknown runs and workflows are 404, request
// problems 400, state conflicts 409 and store outages 503.
package http
