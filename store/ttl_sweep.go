package store

import (
	"fmt"
	"time"
)

// keyEnumerator is implemented by stores that can enumerate their keys for
// maintenance work. It is intentionally unexported: the public surface
// offers no iteration, and the expiry sweeper is its only consumer.
type keyEnumerator interface {
	// appendKeys copies every key into dst and returns the grown slice.
	// The snapshot need not be atomic; consumers re-check every entry
	// before acting on it.
	appendKeys(dst []string) []string
}

// sweepLoop periodically removes expired entries until stopCh closes.
// The channels are passed in at start so a concurrent Close/Open cycle
// cannot swap them out from under the loop.
func (t *TTLStore) sweepLoop(enumerator keyEnumerator, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	// The key buffer is reused across passes to keep steady-state sweeps
	// allocation-light.
	var keys []string

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			keys = enumerator.appendKeys(keys[:0])

			removed, err := t.sweepKeys(keys)
			if err != nil {
				t.logger.Error("expiry sweep failed", "error", err)

				continue
			}

			if removed > 0 {
				t.logger.Debug("expiry sweep finished", "scanned", len(keys), "removed", removed)
			}
		}
	}
}

// Sweep removes every entry whose deadline has passed and returns how many
// were deleted. The background sweeper calls this on its interval; stores
// configured without one can invoke it directly.
func (t *TTLStore) Sweep() (int, error) {
	enumerator, ok := t.inner.(keyEnumerator)
	if !ok {
		return 0, fmt.Errorf("%w: %T", ErrSweepUnsupported, t.inner)
	}

	return t.sweepKeys(enumerator.appendKeys(nil))
}

// sweepKeys re-reads each candidate entry and removes it only when its exact
// expired envelope is still in place, so entries refreshed after the key
// snapshot survive untouched.
func (t *TTLStore) sweepKeys(keys []string) (int, error) {
	var removed int

	for _, key := range keys {
		envelope, found, err := t.inner.Get(key)
		if err != nil {
			return removed, err
		}

		if !found {
			continue
		}

		expiresAt, _, err := unwrapEnvelope(envelope)
		if err != nil {
			return removed, err
		}

		if !t.lapsed(expiresAt) {
			continue
		}

		deleted, err := t.discardIfExpired(key, envelope)
		if err != nil {
			return removed, err
		}

		if deleted {
			removed++
		}
	}

	return removed, nil
}
