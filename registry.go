package memkv

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/oshokin/memkv/store"
)

// The process-wide registry of named shared stores. Open creates or joins
// an entry; the last Close on a name removes it.
//
//nolint:gochecknoglobals // package-level registry, guarded by registryMu.
var (
	registryMu sync.Mutex
	registry   = make(map[string]*namedStore)
)

// testOpenBarrier is a test hook invoked the moment Open enters the
// registry critical section, before the name is looked up. It lets tests
// line up concurrent Open calls without affecting production behavior
// (nil outside tests).
//
//nolint:gochecknoglobals // this is a test hook.
var (
	testOpenBarrier   func(name string)
	testOpenBarrierMu sync.RWMutex
)

// namedStore is a registry entry: one shared store plus its bookkeeping.
type namedStore struct {
	name       string
	instanceID string
	store      store.Store
	options    Options
	resolved   *resolvedOptions
	logger     *slog.Logger

	// refs counts open handles; guarded by registryMu.
	refs int
}

// Open returns a handle on the shared store registered under name, creating
// the store on first use. The first Open decides the configuration; later
// calls must pass options equal to it (Options.Equal) or fail with
// OptionsConflictError. Every successful Open must be paired with a Close:
// the store shuts down when the last handle closes, and the name becomes
// free to open anew.
func Open(name string, opts Options) (*KV, error) {
	resolved, err := opts.resolve()
	if err != nil {
		return nil, err
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	fireOpenBarrier(name)

	if existing, ok := registry[name]; ok {
		if !existing.options.Equal(&opts) {
			return nil, NewError(OptionsConflictError, fmt.Sprintf(
				"store %q (instance %s) is already open with serialization=%q shards=%d ttl=%v sweep=%v maxKeySize=%d maxValueSize=%d",
				name,
				existing.instanceID,
				existing.resolved.serialization,
				existing.resolved.memory.GetShardCount(),
				existing.resolved.ttl,
				existing.resolved.sweepInterval,
				existing.resolved.maxKeySize,
				existing.resolved.maxValueSize,
			))
		}

		existing.refs++

		return existing.newHandle(), nil
	}

	instanceID := uuid.Must(uuid.NewV7()).String()
	logger := resolved.logger.With(slog.String("store", name), slog.String("instance_id", instanceID))

	backing, err := openStore(resolved, logger)
	if err != nil {
		return nil, err
	}

	entry := &namedStore{
		name:       name,
		instanceID: instanceID,
		store:      backing,
		options:    opts,
		resolved:   resolved,
		logger:     logger,
		refs:       1,
	}
	registry[name] = entry

	logger.Debug("store opened")

	return entry.newHandle(), nil
}

// newHandle wires a fresh KV onto this entry. Callers hold registryMu.
func (n *namedStore) newHandle() *KV {
	return newKV(n.store, n.resolved, n.release)
}

// release drops one reference. The last release closes the backing store
// and frees the name.
func (n *namedStore) release() error {
	registryMu.Lock()
	defer registryMu.Unlock()

	n.refs--
	if n.refs > 0 {
		return nil
	}

	delete(registry, n.name)

	if err := n.store.Close(); err != nil {
		return err
	}

	n.logger.Debug("store closed")

	return nil
}

// fireOpenBarrier invokes the test hook, when one is installed.
func fireOpenBarrier(name string) {
	testOpenBarrierMu.RLock()

	barrier := testOpenBarrier

	testOpenBarrierMu.RUnlock()

	if barrier != nil {
		barrier(name)
	}
}
