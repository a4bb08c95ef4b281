package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

var _ Store = (*TTLStore)(nil)

// envelopeHeaderSize is the number of bytes the expiry header occupies at the
// front of every stored value: a big-endian uint64 holding the entry's expiry
// as Unix nanoseconds, with 0 meaning "never expires".
const envelopeHeaderSize = 8

// TTLConfig holds TTL-store-specific configuration.
type TTLConfig struct {
	// DefaultTTL is the lifetime stamped onto entries at write time.
	// Zero or negative means entries never expire.
	DefaultTTL time.Duration

	// SweepInterval is how often the background sweeper scans for expired
	// entries. Zero or negative disables the sweeper; expired entries are
	// then removed lazily, when an operation touches them.
	SweepInterval time.Duration

	// Logger receives sweep and lifecycle events at debug level.
	// A nil logger discards everything.
	Logger *slog.Logger
}

// TTLStore decorates a Store with per-entry expiry.
//
// Every stored value is wrapped in an envelope carrying its expiry deadline,
// so the deadline travels atomically with the payload through the inner
// store's single-key operations. An entry whose deadline has passed is
// treated as absent by every operation; the stale bytes are removed either
// lazily (by the operation that finds them) or by the optional background
// sweeper.
//
// Removal of stale bytes always goes through CompareAndDelete on the exact
// envelope, so a value stored concurrently under the same key is never
// destroyed: the inner store's per-key linearizability carries over
// unchanged.
type TTLStore struct {
	inner         Store
	defaultTTL    time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger

	// now is the clock source; replaced in tests to simulate expiry.
	now func() time.Time

	// mu guards the sweeper lifecycle fields below.
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewTTLStore wraps inner with the expiry handling configured by cfg.
// It does not take ownership of the inner store until Open is called; a nil
// cfg yields a store whose entries never expire and that runs no sweeper.
func NewTTLStore(inner Store, cfg *TTLConfig) *TTLStore {
	var (
		defaultTTL    time.Duration
		sweepInterval time.Duration
		logger        *slog.Logger
	)

	if cfg != nil {
		defaultTTL = cfg.DefaultTTL
		sweepInterval = cfg.SweepInterval
		logger = cfg.Logger
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &TTLStore{
		inner:         inner,
		defaultTTL:    defaultTTL,
		sweepInterval: sweepInterval,
		logger:        logger,
		now:           time.Now,
	}
}

// Open opens the inner store and starts the background sweeper when a sweep
// interval is configured. Open is idempotent while the store is running; a
// store reopened after Close gets a fresh sweeper.
func (t *TTLStore) Open() error {
	if err := t.inner.Open(); err != nil {
		return err
	}

	if t.sweepInterval <= 0 {
		return nil
	}

	enumerator, ok := t.inner.(keyEnumerator)
	if !ok {
		return fmt.Errorf("%w: %T", ErrSweepUnsupported, t.inner)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return nil
	}

	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.running = true

	go t.sweepLoop(enumerator, t.stopCh, t.doneCh)

	t.logger.Debug("expiry sweeper started", "interval", t.sweepInterval)

	return nil
}

// Get returns the live payload stored under key. An expired entry is
// reported as absent and its stale bytes are removed on the way out.
func (t *TTLStore) Get(key string) ([]byte, bool, error) {
	envelope, found, err := t.inner.Get(key)
	if err != nil || !found {
		return nil, false, err
	}

	expiresAt, payload, err := unwrapEnvelope(envelope)
	if err != nil {
		return nil, false, err
	}

	if t.lapsed(expiresAt) {
		if _, err := t.discardIfExpired(key, envelope); err != nil {
			return nil, false, err
		}

		return nil, false, nil
	}

	return payload, true, nil
}

// Set stores value under key stamped with the default TTL.
func (t *TTLStore) Set(key string, value []byte) error {
	return t.inner.Set(key, t.wrap(value))
}

// IncrementBy atomically adds delta to the counter at key. A live entry
// keeps its original deadline across increments; a fresh counter starts at
// delta and receives the default TTL. An expired counter is discarded and
// restarted from zero.
func (t *TTLStore) IncrementBy(key string, delta int64) (int64, error) {
	for {
		envelope, found, err := t.inner.Get(key)
		if err != nil {
			return 0, err
		}

		if !found {
			next := delta
			wrapped := t.wrap([]byte(strconv.FormatInt(next, 10)))

			_, loaded, err := t.inner.GetOrSet(key, wrapped)
			if err != nil {
				return 0, err
			}

			if !loaded {
				return next, nil
			}

			// Lost the insert race; retry against the winner's entry.
			continue
		}

		expiresAt, payload, err := unwrapEnvelope(envelope)
		if err != nil {
			return 0, err
		}

		if t.lapsed(expiresAt) {
			if _, err := t.discardIfExpired(key, envelope); err != nil {
				return 0, err
			}

			continue
		}

		var current int64

		if len(payload) > 0 {
			parsed, err := strconv.ParseInt(string(payload), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: value at %q is not a valid integer: %w", ErrValueParseFailed, key, err)
			}

			current = parsed
		}

		next := current + delta
		updated := wrapWithDeadline(expiresAt, []byte(strconv.FormatInt(next, 10)))

		swapped, err := t.inner.CompareAndSwap(key, envelope, updated)
		if err != nil {
			return 0, err
		}

		if swapped {
			return next, nil
		}
		// The entry changed between the read and the swap; take another look.
	}
}

// GetOrSet returns the live value for key (loaded=true), or stores value and
// returns it (loaded=false). An expired entry counts as absent: its stale
// bytes are removed and the insert is retried. Each retry implies another
// writer made progress in between, so the loop terminates once a live entry
// is observed or the insert wins.
func (t *TTLStore) GetOrSet(key string, value []byte) ([]byte, bool, error) {
	for {
		envelope, loaded, err := t.inner.GetOrSet(key, t.wrap(value))
		if err != nil {
			return nil, false, err
		}

		expiresAt, payload, err := unwrapEnvelope(envelope)
		if err != nil {
			return nil, false, err
		}

		if !loaded {
			return payload, false, nil
		}

		if !t.lapsed(expiresAt) {
			return payload, true, nil
		}

		if _, err := t.discardIfExpired(key, envelope); err != nil {
			return nil, false, err
		}
	}
}

// Swap replaces the value under key with value stamped with a fresh TTL and
// returns the previous live payload. A previous entry that had already
// lapsed is reported as a fresh insert (previous=nil, loaded=false).
func (t *TTLStore) Swap(key string, value []byte) ([]byte, bool, error) {
	previous, loaded, err := t.inner.Swap(key, t.wrap(value))
	if err != nil || !loaded {
		return nil, false, err
	}

	expiresAt, payload, err := unwrapEnvelope(previous)
	if err != nil {
		return nil, false, err
	}

	if t.lapsed(expiresAt) {
		return nil, false, nil
	}

	return payload, true, nil
}

// CompareAndSwap atomically replaces the payload under key with newValue
// only if the entry is live and its payload equals oldValue. A successful
// swap stamps the entry with a fresh TTL.
func (t *TTLStore) CompareAndSwap(key string, oldValue, newValue []byte) (bool, error) {
	for {
		envelope, found, err := t.inner.Get(key)
		if err != nil || !found {
			return false, err
		}

		expiresAt, payload, err := unwrapEnvelope(envelope)
		if err != nil {
			return false, err
		}

		if t.lapsed(expiresAt) {
			if _, err := t.discardIfExpired(key, envelope); err != nil {
				return false, err
			}

			return false, nil
		}

		if !bytes.Equal(payload, oldValue) {
			return false, nil
		}

		swapped, err := t.inner.CompareAndSwap(key, envelope, t.wrap(newValue))
		if err != nil {
			return false, err
		}

		if swapped {
			return true, nil
		}
		// The entry changed between the read and the swap; take another look.
	}
}

// GetAndDelete atomically removes key and returns the payload it held.
// Removing an entry that had already lapsed reports loaded=false.
func (t *TTLStore) GetAndDelete(key string) ([]byte, bool, error) {
	value, loaded, err := t.inner.GetAndDelete(key)
	if err != nil || !loaded {
		return nil, false, err
	}

	expiresAt, payload, err := unwrapEnvelope(value)
	if err != nil {
		return nil, false, err
	}

	if t.lapsed(expiresAt) {
		return nil, false, nil
	}

	return payload, true, nil
}

// Delete removes key and reports whether a live entry was removed. Removing
// an entry that had already lapsed still clears the bytes but reports false,
// matching what a caller would have observed through Get.
func (t *TTLStore) Delete(key string) (bool, error) {
	value, loaded, err := t.inner.GetAndDelete(key)
	if err != nil || !loaded {
		return false, err
	}

	expiresAt, _, err := unwrapEnvelope(value)
	if err != nil {
		return false, err
	}

	return !t.lapsed(expiresAt), nil
}

// CompareAndDelete deletes key only if the entry is live and its payload
// equals oldValue. Returns true if the deletion occurred.
func (t *TTLStore) CompareAndDelete(key string, oldValue []byte) (bool, error) {
	for {
		envelope, found, err := t.inner.Get(key)
		if err != nil || !found {
			return false, err
		}

		expiresAt, payload, err := unwrapEnvelope(envelope)
		if err != nil {
			return false, err
		}

		if t.lapsed(expiresAt) {
			if _, err := t.discardIfExpired(key, envelope); err != nil {
				return false, err
			}

			return false, nil
		}

		if !bytes.Equal(payload, oldValue) {
			return false, nil
		}

		deleted, err := t.inner.CompareAndDelete(key, envelope)
		if err != nil {
			return false, err
		}

		if deleted {
			return true, nil
		}
		// The entry changed between the read and the delete; take another look.
	}
}

// Exists reports whether a live entry is present under key. Unlike the
// in-memory store, the entry has to be read here: liveness is decided by the
// expiry header stored with the value.
func (t *TTLStore) Exists(key string) (bool, error) {
	_, found, err := t.Get(key)

	return found, err
}

// Clear removes all keys and values from the inner store.
func (t *TTLStore) Clear() error {
	return t.inner.Clear()
}

// Len returns the inner store's entry count. Expired entries count until
// they are swept or lazily removed, so the result is an upper bound on the
// number of live entries.
func (t *TTLStore) Len() (int64, error) {
	return t.inner.Len()
}

// Stats reports the inner store's occupancy. Like Len, not-yet-removed
// expired entries are included.
func (t *TTLStore) Stats() (Stats, error) {
	return t.inner.Stats()
}

// Close stops the background sweeper, waits for an in-flight sweep to
// finish, and closes the inner store. Close is idempotent.
func (t *TTLStore) Close() error {
	t.mu.Lock()

	var done chan struct{}

	if t.running {
		close(t.stopCh)

		done = t.doneCh
		t.running = false
	}

	t.mu.Unlock()

	if done != nil {
		<-done

		t.logger.Debug("expiry sweeper stopped")
	}

	return t.inner.Close()
}

// wrap stamps payload with the default TTL relative to the current time.
func (t *TTLStore) wrap(payload []byte) []byte {
	var expiresAt int64
	if t.defaultTTL > 0 {
		expiresAt = t.now().Add(t.defaultTTL).UnixNano()
	}

	return wrapWithDeadline(expiresAt, payload)
}

// lapsed reports whether a deadline has passed. Zero means no expiry.
func (t *TTLStore) lapsed(expiresAt int64) bool {
	return expiresAt != 0 && expiresAt <= t.now().UnixNano()
}

// discardIfExpired removes a stale envelope without touching any value a
// concurrent writer may have stored under the same key since it was read.
func (t *TTLStore) discardIfExpired(key string, envelope []byte) (bool, error) {
	return t.inner.CompareAndDelete(key, envelope)
}

// wrapWithDeadline prepends the expiry header to payload. The payload bytes
// are copied into the envelope.
func wrapWithDeadline(expiresAt int64, payload []byte) []byte {
	envelope := make([]byte, envelopeHeaderSize+len(payload))

	//nolint:gosec // the header round-trips through uint64 losslessly.
	binary.BigEndian.PutUint64(envelope, uint64(expiresAt))
	copy(envelope[envelopeHeaderSize:], payload)

	return envelope
}

// unwrapEnvelope splits a stored value into its expiry deadline and payload.
// The payload shares the envelope's backing array.
func unwrapEnvelope(envelope []byte) (expiresAt int64, payload []byte, err error) {
	if len(envelope) < envelopeHeaderSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrEnvelopeCorrupt, len(envelope))
	}

	//nolint:gosec // the header round-trips through uint64 losslessly.
	return int64(binary.BigEndian.Uint64(envelope)), envelope[envelopeHeaderSize:], nil
}
