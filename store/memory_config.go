package store

import "runtime"

// MaxShardCount caps the number of shards a MemoryStore may be configured
// with. Beyond a few hundred shards the per-shard overhead outweighs any
// contention win.
const MaxShardCount = 256

// MemoryConfig holds memory-store-specific configuration.
type MemoryConfig struct {
	// ShardCount sets the number of shards for the store.
	// If <= 0, defaults to runtime.NumCPU().
	// If > MaxShardCount, capped at MaxShardCount.
	ShardCount int
}

// GetShardCount returns the shard count for the memory store.
// If the shard count is not set, it defaults to runtime.NumCPU().
// If the shard count is greater than MaxShardCount, it is capped at MaxShardCount.
func (cfg *MemoryConfig) GetShardCount() int {
	var shards int
	if cfg != nil {
		shards = cfg.ShardCount
	}

	if shards <= 0 {
		shards = max(1, runtime.NumCPU())
	}

	if shards > MaxShardCount {
		shards = MaxShardCount
	}

	return shards
}
