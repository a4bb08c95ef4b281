// Package memkv provides an embeddable, concurrency-safe, in-process
// key-value store.
//
// High-level behavior:
//   - New creates an independent store; Open(name, options) creates or joins
//     a process-wide shared store under that name. The first successful Open
//     decides the configuration; later calls must present equal options.
//   - Values are serialized on the way in (JSON by default, raw strings
//     optionally) and the engine stores plain bytes. All data is ephemeral
//     and lives in process memory.
//   - Entries can carry a TTL; expired entries are removed lazily or by an
//     optional background sweeper.
//
// The storage engines themselves live in the store subpackage and work with
// raw bytes; this package adds value typing, size limits, structured errors,
// and instance sharing on top.
package memkv
