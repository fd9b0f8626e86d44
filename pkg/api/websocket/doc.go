// Package websocket provides real-time event streaming via WebSocket.
//
// Clients connect to /api/v1/runs/:id/ws. The first message is a run.snapshot
// event with the current status, followed by every run and node event of that
// run. The server closes the connection after the terminal run event.
package websocket
