package store

// Store defines the operations for a key-value store.
//
// General notes:
//
//   - Keys are strings compared byte-wise. No character set is assumed or
//     validated; any byte sequence is a valid key, including the empty one.
//   - Values are raw byte slices. Serialization of richer types is the
//     responsibility of a higher layer.
//   - Stored bytes never alias caller memory: implementations copy values on
//     write, and the slices they return are owned by the caller. Mutating a
//     slice after Set, or one returned by Get, has no effect on the store.
//   - Methods that return a boolean indicate whether the mutation took place
//     (e.g., CompareAndSwap) or whether a prior value existed (e.g., Swap's
//     loaded flag).
//   - All methods are safe for concurrent use, and each operates atomically
//     with respect to a single key.
//
// Error semantics:
//
//   - A missing key is never an error: lookups report absence through their
//     found/loaded result and conditional mutations through their boolean.
//   - Methods return a non-nil error only in exceptional conditions
//     (unparsable counter payloads, corrupt expiry envelopes, etc.).
type Store interface {
	// Open ensures the store is ready to accept operations by initializing
	// any deferred resources (background workers, etc.).
	// It is safe to call Open multiple times concurrently.
	Open() error

	// Get returns the value stored under key and whether the key exists.
	// The returned slice is a copy owned by the caller.
	Get(key string) (value []byte, found bool, err error)

	// Set stores value under key, overwriting any existing value.
	// The provided slice is copied; the caller keeps ownership of it.
	Set(key string, value []byte) error

	// IncrementBy atomically adds delta to the integer value stored at key
	// and returns the new value. Absent keys are treated as 0. The existing
	// value must be a decimal ASCII int64, otherwise ErrValueParseFailed is
	// returned and the entry is left untouched.
	IncrementBy(key string, delta int64) (int64, error)

	// GetOrSet atomically ensures a value for key and returns the resulting
	// value along with a loaded flag.
	//
	// Semantics:
	//   - If key already exists: the stored value is returned as actual and
	//     loaded == true; the store is not modified.
	//   - If key does not exist: value is stored, actual == value and
	//     loaded == false.
	GetOrSet(key string, value []byte) (actual []byte, loaded bool, err error)

	// Swap atomically replaces the value under key and returns the previous
	// value along with a loaded flag indicating whether the key existed.
	// When the key did not exist, previous is nil and the key is created.
	Swap(key string, value []byte) (previous []byte, loaded bool, err error)

	// CompareAndSwap atomically replaces the value under key with newValue
	// only if the current stored bytes equal oldValue. Returns true if the
	// swap occurred; false with a nil error when the value did not match.
	CompareAndSwap(key string, oldValue, newValue []byte) (bool, error)

	// GetAndDelete atomically removes key and returns the value it held.
	// When the key did not exist, value is nil and loaded is false.
	GetAndDelete(key string) (value []byte, loaded bool, err error)

	// Delete removes key from the store and reports whether an entry was
	// actually removed. Deleting a missing key is not an error.
	Delete(key string) (bool, error)

	// CompareAndDelete deletes key only if the current stored bytes equal
	// oldValue. Returns true if the key existed and was deleted.
	CompareAndDelete(key string, oldValue []byte) (bool, error)

	// Exists reports whether key is present in the store.
	Exists(key string) (bool, error)

	// Clear removes all keys and values from the store. Concurrent readers
	// observe either the pre-clear or the post-clear state, never a
	// partially emptied one.
	Clear() error

	// Len returns the number of entries currently stored. The count is exact
	// when no writes are in flight; under concurrent modification it is a
	// best-effort snapshot.
	Len() (int64, error)

	// Stats returns a point-in-time snapshot of store occupancy.
	Stats() (Stats, error)

	// Close releases any resources held by the store (background workers,
	// caches, etc.). Close is idempotent.
	Close() error
}

// Stats is a point-in-time snapshot of store occupancy.
//
// Counters are collected shard by shard, so concurrent mutations may be
// partially reflected; treat the numbers as diagnostics, not invariants.
type Stats struct {
	// Entries is the number of stored key-value pairs.
	Entries int64

	// Bytes is the approximate payload footprint: the summed lengths of all
	// keys and values, excluding map and allocator overhead.
	Bytes int64

	// Shards is the number of shards backing the store.
	Shards int
}
