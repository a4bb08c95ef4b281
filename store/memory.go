package store

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
)

var (
	_ Store         = (*MemoryStore)(nil)
	_ keyEnumerator = (*MemoryStore)(nil)
)

// MemoryStore is a sharded in-memory key-value store implementation.
//
// Keys are routed to shards by hash; each shard guards its own map with a
// sync.RWMutex, so readers never block readers and writers contend only
// within their shard. Clear is the one whole-store mutation: it holds every
// shard lock for its duration, so concurrent observers see either the full
// pre-clear state or an empty store, never a mix.
//
// Values are copied on write and on read. The store never retains caller
// slices and never hands out its internal ones, so neither side can mutate
// the other's bytes. Stored slices are replaced wholesale on every update
// and are never modified in place.
type MemoryStore struct {
	// shards is the fixed set of shards; the slice is never resized after
	// construction.
	shards []*memoryShard
	// shardCount caches len(shards) for the routing hot path.
	shardCount int
	// hashFn routes keys to shards.
	hashFn shardHashFunc
}

// NewMemoryStore creates a MemoryStore configured by cfg.
// A nil cfg yields the defaults (one shard per CPU, capped at MaxShardCount).
func NewMemoryStore(cfg *MemoryConfig) *MemoryStore {
	shardCount := cfg.GetShardCount()

	shards := make([]*memoryShard, shardCount)
	for i := range shards {
		shards[i] = &memoryShard{container: make(map[string][]byte)}
	}

	return &MemoryStore{
		shards:     shards,
		shardCount: shardCount,
		hashFn:     selectShardHashFunc(defaultShardHashStrategy),
	}
}

// Open is a no-op for the in-memory store; all resources are allocated by
// NewMemoryStore. It exists to satisfy the Store interface.
func (s *MemoryStore) Open() error {
	return nil
}

// Get returns a copy of the value stored under key and whether it exists.
// A missing key is reported through the found flag, not an error.
func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	shard := s.getShardByKey(key)

	shard.mu.RLock()
	defer shard.mu.RUnlock()

	value, found := shard.container[key]
	if !found {
		return nil, false, nil
	}

	return slices.Clone(value), true, nil
}

// Set associates value with key, overwriting any previous value.
// The stored bytes are a private copy of the provided slice.
func (s *MemoryStore) Set(key string, value []byte) error {
	var (
		shard = s.getShardByKey(key)
		owned = slices.Clone(value)
	)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.setLocked(key, owned)

	return nil
}

// IncrementBy atomically adds delta to the integer value stored at key.
// Absent keys (and present-but-empty values) are treated as 0. Values must
// be decimal ASCII int64; anything else fails with ErrValueParseFailed and
// the entry is left untouched.
//
// Returns the new value as int64.
func (s *MemoryStore) IncrementBy(key string, delta int64) (int64, error) {
	shard := s.getShardByKey(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	var current int64

	if b, exists := shard.container[key]; exists && len(b) > 0 {
		parsed, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: value at %q is not a valid integer: %w", ErrValueParseFailed, key, err)
		}

		current = parsed
	}

	current += delta
	shard.setLocked(key, []byte(strconv.FormatInt(current, 10)))

	return current, nil
}

// GetOrSet returns the existing value (loaded=true) if key is present,
// otherwise stores value and returns it (loaded=false).
//
// Both the stored bytes and the returned slice are private copies.
func (s *MemoryStore) GetOrSet(key string, value []byte) ([]byte, bool, error) {
	var (
		shard = s.getShardByKey(key)
		owned = slices.Clone(value)
	)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if existing, exists := shard.container[key]; exists {
		return slices.Clone(existing), true, nil
	}

	shard.setLocked(key, owned)

	return slices.Clone(owned), false, nil
}

// Swap replaces the current value for key with value, returning the previous
// value and whether it existed. The returned slice is detached from the
// store; ownership transfers to the caller.
func (s *MemoryStore) Swap(key string, value []byte) ([]byte, bool, error) {
	var (
		shard = s.getShardByKey(key)
		owned = slices.Clone(value)
	)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	previous, loaded := shard.container[key]
	shard.setLocked(key, owned)

	if !loaded {
		return nil, false, nil
	}

	return previous, true, nil
}

// CompareAndSwap atomically replaces the current value with newValue only if
// the stored bytes equal oldValue. Returns true if the swap occurred.
func (s *MemoryStore) CompareAndSwap(key string, oldValue, newValue []byte) (bool, error) {
	var (
		shard = s.getShardByKey(key)
		owned = slices.Clone(newValue)
	)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	current, exists := shard.container[key]
	if !exists || !bytes.Equal(current, oldValue) {
		return false, nil
	}

	shard.setLocked(key, owned)

	return true, nil
}

// GetAndDelete atomically removes key and returns the value it held.
// The returned slice is detached from the store; ownership transfers to the
// caller.
func (s *MemoryStore) GetAndDelete(key string) ([]byte, bool, error) {
	shard := s.getShardByKey(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	value, loaded := shard.container[key]
	if !loaded {
		return nil, false, nil
	}

	shard.deleteLocked(key)

	return value, true, nil
}

// Delete removes key if present and reports whether an entry was removed.
// Deleting a missing key is not an error.
func (s *MemoryStore) Delete(key string) (bool, error) {
	shard := s.getShardByKey(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	return shard.deleteLocked(key), nil
}

// CompareAndDelete deletes key only if the stored bytes equal oldValue.
// Returns true if the deletion occurred.
func (s *MemoryStore) CompareAndDelete(key string, oldValue []byte) (bool, error) {
	shard := s.getShardByKey(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	current, exists := shard.container[key]
	if !exists || !bytes.Equal(current, oldValue) {
		return false, nil
	}

	shard.deleteLocked(key)

	return true, nil
}

// Exists reports whether key is present. The value is not copied.
func (s *MemoryStore) Exists(key string) (bool, error) {
	shard := s.getShardByKey(key)

	shard.mu.RLock()
	defer shard.mu.RUnlock()

	_, found := shard.container[key]

	return found, nil
}

// Clear removes all keys and values from the store.
//
// Every shard lock is held while the maps are emptied, so a concurrent Get
// observes either the pre-clear value or absence; no reader can see one
// shard emptied and another still populated.
func (s *MemoryStore) Clear() error {
	s.lockAllShards()
	defer s.unlockAllShards()

	for _, shard := range s.shards {
		shard.clearLocked()
	}

	return nil
}

// Len returns the number of entries by summing per-shard counts one shard at
// a time. The total is exact when no writes are in flight; under concurrent
// modification it is a best-effort snapshot.
func (s *MemoryStore) Len() (int64, error) {
	var total int64

	for _, shard := range s.shards {
		total += shard.entryCount()
	}

	return total, nil
}

// Stats reports entry and byte occupancy across all shards. Like Len, the
// counters are collected shard by shard and are best-effort under
// concurrency.
func (s *MemoryStore) Stats() (Stats, error) {
	stats := Stats{Shards: s.shardCount}

	for _, shard := range s.shards {
		entries, bytesUsed := shard.snapshotStats()

		stats.Entries += entries
		stats.Bytes += bytesUsed
	}

	return stats, nil
}

// Close releases resources associated with the store.
//
// For MemoryStore this is a no-op and always returns nil.
func (s *MemoryStore) Close() error {
	return nil
}

// appendKeys copies every key into dst, shard by shard, and returns the
// grown slice. The snapshot is not atomic across shards; consumers must
// re-check each entry before acting on it.
func (s *MemoryStore) appendKeys(dst []string) []string {
	for _, shard := range s.shards {
		dst = shard.appendKeys(dst)
	}

	return dst
}
