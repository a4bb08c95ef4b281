package store

import (
	"sync"

	xxhash "github.com/cespare/xxhash/v2"
)

type (
	// memoryShard holds one slice of the keyspace behind its own lock.
	memoryShard struct {
		// container is the map of key-value pairs.
		container map[string][]byte
		// bytesUsed is the summed length of keys and values in this shard.
		// Mutated only under mu's write lock.
		bytesUsed int64
		// mu is the mutex to protect the shard.
		mu sync.RWMutex
	}

	// shardHashStrategy is the strategy to use to hash the key to a shard.
	shardHashStrategy int

	// shardHashFunc is the function to use to hash the key to a shard.
	shardHashFunc func(string) uint64
)

// 64-bit FNV-1a parameters, inlined so the fallback hash path stays
// allocation-free. Values are the standard FNV-1a basis and prime.
const (
	// fnv1aOffset64 is the FNV-1a offset basis, the hash state before any input.
	fnv1aOffset64 = 14695981039346656037
	// fnv1aPrime64 is the FNV-1a prime, the per-byte multiplier.
	fnv1aPrime64 = 1099511628211
)

const (
	// Byte-sum is the cheapest strategy and by far the weakest.
	shardHashSumBytes shardHashStrategy = iota
	// xxhash gives a uniform distribution at almost the byte-sum's cost.
	shardHashXXHash
	// FNV-1a needs no third-party import but trails xxhash on longer keys.
	shardHashFNV

	// Byte-sum only depends on the multiset of characters (not order),
	// so countless distinct keys collapse to the same checksum,
	// collision probability spikes and shards skew badly as keyspace grows.
	// xxhash keeps the distribution uniform at nearly the same cost.
	defaultShardHashStrategy = shardHashXXHash
)

// selectShardHashFunc selects the function to use to hash the key to a shard.
func selectShardHashFunc(strategy shardHashStrategy) shardHashFunc {
	switch strategy {
	case shardHashSumBytes:
		return sumBytesShardHash
	case shardHashFNV:
		return fnvShardHash
	case shardHashXXHash:
		return xxhashShardHash
	default:
		return xxhashShardHash
	}
}

// sumBytesShardHash is the function to use to hash the key to a shard using sum of bytes.
func sumBytesShardHash(key string) uint64 {
	var sum uint64

	for i := 0; i < len(key); i++ {
		sum += uint64(key[i])
	}

	return sum
}

// xxhashShardHash is the function to use to hash the key to a shard using xxhash.
func xxhashShardHash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// fnvShardHash is the function to use to hash the key to a shard using FNV-1a.
func fnvShardHash(key string) uint64 {
	hash := uint64(fnv1aOffset64)

	for i := 0; i < len(key); i++ {
		hash ^= uint64(key[i])
		hash *= fnv1aPrime64
	}

	return hash
}

// getShardByKey gets the shard by the key.
func (s *MemoryStore) getShardByKey(key string) *memoryShard {
	return s.shards[s.hashKey(key)]
}

// hashKey hashes the key to a shard.
func (s *MemoryStore) hashKey(key string) int {
	if s.shardCount == 1 {
		return 0
	}

	hashFn := s.hashFn
	if hashFn == nil {
		hashFn = selectShardHashFunc(defaultShardHashStrategy)
	}

	//nolint:gosec // shardCount is always >= 1, see NewMemoryStore.
	return int(hashFn(key) % uint64(s.shardCount))
}

// lockAllShards write-locks every shard in index order. Every caller taking
// more than one shard lock must use this fixed order to stay deadlock-free.
func (s *MemoryStore) lockAllShards() {
	for i := 0; i < s.shardCount; i++ {
		s.shards[i].mu.Lock()
	}
}

// unlockAllShards releases the locks taken by lockAllShards, in reverse order.
func (s *MemoryStore) unlockAllShards() {
	for i := s.shardCount - 1; i >= 0; i-- {
		s.shards[i].mu.Unlock()
	}
}

// setLocked stores value under key and keeps the byte accounting in sync.
// Caller must hold shard.mu.
func (sh *memoryShard) setLocked(key string, value []byte) {
	if previous, exists := sh.container[key]; exists {
		sh.bytesUsed -= int64(len(previous))
	} else {
		sh.bytesUsed += int64(len(key))
	}

	sh.bytesUsed += int64(len(value))
	sh.container[key] = value
}

// deleteLocked removes key and reports whether an entry was present.
// Caller must hold shard.mu.
func (sh *memoryShard) deleteLocked(key string) bool {
	previous, exists := sh.container[key]
	if !exists {
		return false
	}

	sh.bytesUsed -= int64(len(key)) + int64(len(previous))
	delete(sh.container, key)

	return true
}

// clearLocked resets shard data structures.
// Caller must hold shard.mu.
func (sh *memoryShard) clearLocked() {
	if sh.container == nil {
		sh.container = make(map[string][]byte)
	} else {
		clear(sh.container)
	}

	sh.bytesUsed = 0
}

// entryCount safely reads the number of keys in a shard.
func (sh *memoryShard) entryCount() int64 {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	return int64(len(sh.container))
}

// snapshotStats reads the shard's occupancy counters.
func (sh *memoryShard) snapshotStats() (entries, bytesUsed int64) {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	return int64(len(sh.container)), sh.bytesUsed
}

// appendKeys copies the shard's keys into dst and returns the grown slice.
func (sh *memoryShard) appendKeys(dst []string) []string {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	for key := range sh.container {
		dst = append(dst, key)
	}

	return dst
}
