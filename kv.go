package memkv

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/oshokin/memkv/store"
)

// KV is the typed facade over a byte-oriented store. It serializes values,
// enforces the configured key and value caps, and maps engine errors into
// the package's structured error taxonomy.
//
// A KV handle is safe for concurrent use. Handles come from two places:
//
//   - New creates a private store owned by the returned handle.
//   - Open returns a handle onto a shared named store; the store itself
//     shuts down when the last handle is closed.
type KV struct {
	// store is the backing engine, possibly wrapped with the TTL decorator.
	store store.Store

	// serializer converts values to and from the raw bytes the engine holds.
	serializer Serializer

	// maxKeySize and maxValueSize are the configured caps in bytes, 0 meaning unlimited.
	maxKeySize   uint64
	maxValueSize uint64

	// closed flips once when this handle is closed.
	closed atomic.Bool

	// closeStore releases the handle's claim on the backing store.
	closeStore func() error
}

// New creates a store with the given options and returns a handle that owns
// it exclusively. Close releases the store. Use Open to share a store
// between callers by name.
func New(opts Options) (*KV, error) {
	resolved, err := opts.resolve()
	if err != nil {
		return nil, err
	}

	instanceID := uuid.Must(uuid.NewV7()).String()
	logger := resolved.logger.With(slog.String("instance_id", instanceID))

	backing, err := openStore(resolved, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("store opened")

	return newKV(backing, resolved, func() error {
		if err := backing.Close(); err != nil {
			return err
		}

		logger.Debug("store closed")

		return nil
	}), nil
}

// newKV wires a handle onto an opened store.
func newKV(backing store.Store, resolved *resolvedOptions, closeStore func() error) *KV {
	return &KV{
		store:        backing,
		serializer:   newSerializer(resolved.serialization),
		maxKeySize:   resolved.maxKeySize,
		maxValueSize: resolved.maxValueSize,
		closeStore:   closeStore,
	}
}

// openStore builds the engine described by the resolved options and opens
// it: a sharded memory store, wrapped with the TTL decorator when expiry is
// configured.
func openStore(resolved *resolvedOptions, logger *slog.Logger) (store.Store, error) {
	var backing store.Store = store.NewMemoryStore(resolved.memory)

	if resolved.ttl > 0 {
		backing = store.NewTTLStore(backing, &store.TTLConfig{
			DefaultTTL:    resolved.ttl,
			SweepInterval: resolved.sweepInterval,
			Logger:        logger,
		})
	}

	if err := backing.Open(); err != nil {
		return nil, classifyError(err)
	}

	return backing, nil
}

// newSerializer maps a normalized format name to its implementation.
// The format is validated in resolve before this is called.
func newSerializer(format string) Serializer {
	if format == SerializationString {
		return NewStringSerializer()
	}

	return NewJSONSerializer()
}

// Get returns the value stored under key. The second return is false when
// the key is absent or expired; absence is not an error.
func (k *KV) Get(key string) (any, bool, error) {
	if err := k.guard(key); err != nil {
		return nil, false, err
	}

	raw, found, err := k.store.Get(key)
	if err != nil {
		return nil, false, classifyError(err)
	}

	if !found {
		return nil, false, nil
	}

	value, err := k.serializer.Deserialize(raw)
	if err != nil {
		return nil, true, classifyError(err)
	}

	return value, true, nil
}

// Set stores a value under key, creating or overwriting the entry. With a
// TTL configured the write starts a fresh expiry window.
func (k *KV) Set(key string, value any) error {
	if err := k.guard(key); err != nil {
		return err
	}

	data, err := k.encode(value)
	if err != nil {
		return err
	}

	return classifyError(k.store.Set(key, data))
}

// GetOrSet returns the existing value when key is present, otherwise it
// stores value. loaded reports which happened: true when an existing value
// was returned, false when this call stored the new one.
func (k *KV) GetOrSet(key string, value any) (any, bool, error) {
	if err := k.guard(key); err != nil {
		return nil, false, err
	}

	data, err := k.encode(value)
	if err != nil {
		return nil, false, err
	}

	raw, loaded, err := k.store.GetOrSet(key, data)
	if err != nil {
		return nil, false, classifyError(err)
	}

	decoded, err := k.serializer.Deserialize(raw)
	if err != nil {
		return nil, loaded, classifyError(err)
	}

	return decoded, loaded, nil
}

// Swap stores value under key and returns the previous value. loaded is
// false when the key was absent, in which case previous is nil.
func (k *KV) Swap(key string, value any) (any, bool, error) {
	if err := k.guard(key); err != nil {
		return nil, false, err
	}

	data, err := k.encode(value)
	if err != nil {
		return nil, false, err
	}

	prev, loaded, err := k.store.Swap(key, data)
	if err != nil {
		return nil, false, classifyError(err)
	}

	if !loaded {
		return nil, false, nil
	}

	decoded, err := k.serializer.Deserialize(prev)
	if err != nil {
		return nil, true, classifyError(err)
	}

	return decoded, true, nil
}

// CompareAndSwap replaces the value under key with newValue only when the
// current value equals oldValue byte-for-byte after serialization. It
// returns true when the swap happened. With a TTL configured a successful
// swap starts a fresh expiry window.
func (k *KV) CompareAndSwap(key string, oldValue, newValue any) (bool, error) {
	if err := k.guard(key); err != nil {
		return false, err
	}

	oldData, err := k.serializer.Serialize(oldValue)
	if err != nil {
		return false, classifyError(err)
	}

	newData, err := k.encode(newValue)
	if err != nil {
		return false, err
	}

	swapped, err := k.store.CompareAndSwap(key, oldData, newData)
	if err != nil {
		return false, classifyError(err)
	}

	return swapped, nil
}

// Delete removes key and reports whether an entry was actually removed.
// Deleting an absent key is not an error.
func (k *KV) Delete(key string) (bool, error) {
	if err := k.guard(key); err != nil {
		return false, err
	}

	deleted, err := k.store.Delete(key)
	if err != nil {
		return false, classifyError(err)
	}

	return deleted, nil
}

// GetAndDelete removes key and returns the value it held. The second
// return is false when the key was absent or expired.
func (k *KV) GetAndDelete(key string) (any, bool, error) {
	if err := k.guard(key); err != nil {
		return nil, false, err
	}

	raw, found, err := k.store.GetAndDelete(key)
	if err != nil {
		return nil, false, classifyError(err)
	}

	if !found {
		return nil, false, nil
	}

	decoded, err := k.serializer.Deserialize(raw)
	if err != nil {
		return nil, true, classifyError(err)
	}

	return decoded, true, nil
}

// CompareAndDelete removes key only when its current value equals oldValue
// byte-for-byte after serialization. It returns true when the delete
// happened.
func (k *KV) CompareAndDelete(key string, oldValue any) (bool, error) {
	if err := k.guard(key); err != nil {
		return false, err
	}

	oldData, err := k.serializer.Serialize(oldValue)
	if err != nil {
		return false, classifyError(err)
	}

	deleted, err := k.store.CompareAndDelete(key, oldData)
	if err != nil {
		return false, classifyError(err)
	}

	return deleted, nil
}

// Exists reports whether key currently holds a live value.
func (k *KV) Exists(key string) (bool, error) {
	if err := k.guard(key); err != nil {
		return false, err
	}

	exists, err := k.store.Exists(key)
	if err != nil {
		return false, classifyError(err)
	}

	return exists, nil
}

// IncrementBy atomically adds delta to the integer counter under key and
// returns the new value. An absent key starts from zero. The counter is
// kept as its decimal text form and bypasses the serializer, so it reads
// back as a number under JSON serialization and as a string under string
// serialization. Incrementing a key whose value is not an integer fails
// with ValueParseError.
func (k *KV) IncrementBy(key string, delta int64) (int64, error) {
	if err := k.guard(key); err != nil {
		return 0, err
	}

	updated, err := k.store.IncrementBy(key, delta)
	if err != nil {
		return 0, classifyError(err)
	}

	return updated, nil
}

// Clear removes every entry in one atomic step.
func (k *KV) Clear() error {
	if err := k.ensureOpen(); err != nil {
		return err
	}

	return classifyError(k.store.Clear())
}

// Len returns the number of stored entries. Under concurrent writes the
// count is a point-in-time approximation; with a TTL configured it may
// include expired entries the sweeper has not removed yet.
func (k *KV) Len() (int64, error) {
	if err := k.ensureOpen(); err != nil {
		return 0, err
	}

	length, err := k.store.Len()
	if err != nil {
		return 0, classifyError(err)
	}

	return length, nil
}

// Stats returns entry and byte counters for the backing store.
func (k *KV) Stats() (store.Stats, error) {
	if err := k.ensureOpen(); err != nil {
		return store.Stats{}, err
	}

	stats, err := k.store.Stats()
	if err != nil {
		return store.Stats{}, classifyError(err)
	}

	return stats, nil
}

// Close releases this handle. Further operations on it fail with
// StoreClosedError; closing an already-closed handle is a no-op. Handles
// from New shut their store down immediately, handles from Open only when
// the last handle on the name closes.
func (k *KV) Close() error {
	if !k.closed.CompareAndSwap(false, true) {
		return nil
	}

	return classifyError(k.closeStore())
}

// ensureOpen rejects operations on a closed handle.
func (k *KV) ensureOpen() error {
	if k.closed.Load() {
		return NewError(StoreClosedError, "the store handle is closed")
	}

	return nil
}

// guard rejects operations on a closed handle and keys over the cap.
func (k *KV) guard(key string) error {
	if err := k.ensureOpen(); err != nil {
		return err
	}

	if k.maxKeySize > 0 && uint64(len(key)) > k.maxKeySize {
		return NewError(KeyTooLargeError,
			fmt.Sprintf("key is %d bytes, the cap is %s", len(key), humanize.Bytes(k.maxKeySize)))
	}

	return nil
}

// encode serializes a value and enforces the value cap.
func (k *KV) encode(value any) ([]byte, error) {
	data, err := k.serializer.Serialize(value)
	if err != nil {
		return nil, classifyError(err)
	}

	if k.maxValueSize > 0 && uint64(len(data)) > k.maxValueSize {
		return nil, NewError(ValueTooLargeError,
			fmt.Sprintf("serialized value is %d bytes, the cap is %s", len(data), humanize.Bytes(k.maxValueSize)))
	}

	return data, nil
}
