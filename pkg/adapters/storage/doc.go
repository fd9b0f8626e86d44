// Package storage provides state store and document store implementations.
//
// Implementations:
//   - memory: in-process maps, used by tests and single-shot CLI runs
//   - redis: Redis keys with JSON values, sorted set indexes and a run TTL
//   - badger: embedded Badger database for single node deployments
//
// storagetest holds the behavioural suites every implementation passes.
package storage
