// Package store provides the storage engines behind the memkv module. It
// defines the byte-oriented Store interface, a sharded in-memory
// implementation, and a TTL decorator that adds per-entry expiry on top of
// any Store.
//
// Implementations are safe for concurrent use by multiple goroutines.
// Unless stated otherwise, methods operate atomically with respect to a
// single key (i.e., Set(), GetOrSet(), Swap(), CompareAndSwap(), Delete*,
// etc. do not interleave their critical sections for the same key).
package store
