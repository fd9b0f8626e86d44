// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams, every subscriber reading from the stream end
//   - memory: synchronous in-process delivery
package events
