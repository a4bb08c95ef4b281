package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTTLStore_SetGet_LiveAndExpired verifies the core expiry behavior:
// a value is readable within its TTL, reported absent after the deadline,
// and the stale bytes are physically removed by the lookup that finds them.
func TestTTLStore_SetGet_LiveAndExpired(t *testing.T) {
	t.Parallel()

	ttlStore, inner, clock := newTTLStoreForTest(t, &TTLConfig{DefaultTTL: time.Minute})

	require.NoError(t, ttlStore.Set("k", []byte("v")))

	value, found, err := ttlStore.Get("k")
	require.NoError(t, err)
	require.True(t, found, "value must be visible within its TTL")
	assert.Equal(t, []byte("v"), value)

	clock.Advance(2 * time.Minute)

	_, found, err = ttlStore.Get("k")
	require.NoError(t, err)
	assert.False(t, found, "value must be absent after the deadline")

	innerLen, err := inner.Len()
	require.NoError(t, err)
	assert.EqualValues(t, 0, innerLen, "the lookup must remove the stale bytes")
}

// TestTTLStore_ZeroTTL_NeverExpires checks that a store without a default TTL
// stamps entries as immortal.
func TestTTLStore_ZeroTTL_NeverExpires(t *testing.T) {
	t.Parallel()

	ttlStore, _, clock := newTTLStoreForTest(t, nil)

	require.NoError(t, ttlStore.Set("k", []byte("v")))

	clock.Advance(1000 * time.Hour)

	value, found, err := ttlStore.Get("k")
	require.NoError(t, err)
	require.True(t, found, "entries without a TTL must never expire")
	assert.Equal(t, []byte("v"), value)
}

// TestTTLStore_EnvelopeShape checks the stored representation: an 8-byte
// expiry header in front of the payload, zeroed when no TTL is configured.
func TestTTLStore_EnvelopeShape(t *testing.T) {
	t.Parallel()

	ttlStore, inner, _ := newTTLStoreForTest(t, nil)

	require.NoError(t, ttlStore.Set("k", []byte("abc")))

	raw, found, err := inner.Get("k")
	require.NoError(t, err)
	require.True(t, found)

	require.Len(t, raw, envelopeHeaderSize+3)
	assert.Equal(t, make([]byte, envelopeHeaderSize), raw[:envelopeHeaderSize], "immortal entries carry a zero header")
	assert.Equal(t, []byte("abc"), raw[envelopeHeaderSize:])
}

// TestTTLStore_ValueIsolation ensures the payload handed out by Get is not
// aliased to the stored envelope.
func TestTTLStore_ValueIsolation(t *testing.T) {
	t.Parallel()

	ttlStore, _, _ := newTTLStoreForTest(t, nil)

	require.NoError(t, ttlStore.Set("k", []byte("payload")))

	value, found, err := ttlStore.Get("k")
	require.NoError(t, err)
	require.True(t, found)

	value[0] = 'X'

	again, found, err := ttlStore.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("payload"), again)
}

// TestTTLStore_Exists verifies Exists applies the same liveness rules as Get.
func TestTTLStore_Exists(t *testing.T) {
	t.Parallel()

	ttlStore, _, clock := newTTLStoreForTest(t, &TTLConfig{DefaultTTL: time.Minute})

	exists, err := ttlStore.Exists("k")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, ttlStore.Set("k", []byte("v")))

	exists, err = ttlStore.Exists("k")
	require.NoError(t, err)
	assert.True(t, exists)

	clock.Advance(2 * time.Minute)

	exists, err = ttlStore.Exists("k")
	require.NoError(t, err)
	assert.False(t, exists, "an expired entry must not exist")
}

// TestTTLStore_GetOrSet covers insert, steady-state load, and the
// expired-entry path where the insert is retried after discarding the stale
// envelope.
func TestTTLStore_GetOrSet(t *testing.T) {
	t.Parallel()

	ttlStore, _, clock := newTTLStoreForTest(t, &TTLConfig{DefaultTTL: time.Minute})

	value, loaded, err := ttlStore.GetOrSet("k", []byte("a"))
	require.NoError(t, err)
	require.False(t, loaded)
	assert.Equal(t, []byte("a"), value)

	value, loaded, err = ttlStore.GetOrSet("k", []byte("b"))
	require.NoError(t, err)
	require.True(t, loaded, "live entry must be loaded")
	assert.Equal(t, []byte("a"), value)

	clock.Advance(2 * time.Minute)

	value, loaded, err = ttlStore.GetOrSet("k", []byte("b"))
	require.NoError(t, err)
	require.False(t, loaded, "expired entry must count as absent")
	assert.Equal(t, []byte("b"), value)

	got, found, err := ttlStore.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("b"), got, "the re-insert must be the live value")
}

// TestTTLStore_Swap checks that a live previous value is returned and that a
// lapsed previous value is reported as a fresh insert.
func TestTTLStore_Swap(t *testing.T) {
	t.Parallel()

	ttlStore, _, clock := newTTLStoreForTest(t, &TTLConfig{DefaultTTL: time.Minute})

	require.NoError(t, ttlStore.Set("k", []byte("old")))

	previous, loaded, err := ttlStore.Swap("k", []byte("mid"))
	require.NoError(t, err)
	require.True(t, loaded)
	assert.Equal(t, []byte("old"), previous)

	clock.Advance(2 * time.Minute)

	previous, loaded, err = ttlStore.Swap("k", []byte("new"))
	require.NoError(t, err)
	assert.False(t, loaded, "a lapsed previous value must read as a fresh insert")
	assert.Nil(t, previous)

	got, found, err := ttlStore.Get("k")
	require.NoError(t, err)
	require.True(t, found, "the swapped-in value must be live with a fresh TTL")
	assert.Equal(t, []byte("new"), got)
}

// TestTTLStore_CompareAndSwap verifies payload-level comparison, refusal on
// expired entries, and that a successful swap refreshes the deadline.
func TestTTLStore_CompareAndSwap(t *testing.T) {
	t.Parallel()

	ttlStore, _, clock := newTTLStoreForTest(t, &TTLConfig{DefaultTTL: time.Minute})

	require.NoError(t, ttlStore.Set("k", []byte("v0")))

	ok, err := ttlStore.CompareAndSwap("k", []byte("WRONG"), []byte("v1"))
	require.NoError(t, err)
	assert.False(t, ok, "mismatched payload must not swap")

	clock.Advance(30 * time.Second)

	ok, err = ttlStore.CompareAndSwap("k", []byte("v0"), []byte("v1"))
	require.NoError(t, err)
	require.True(t, ok, "matching payload must swap")

	// 75s after the original write: the original deadline has passed, but
	// the swap 45s ago stamped a fresh one.
	clock.Advance(45 * time.Second)

	value, found, err := ttlStore.Get("k")
	require.NoError(t, err)
	require.True(t, found, "a successful swap must refresh the TTL")
	assert.Equal(t, []byte("v1"), value)

	clock.Advance(2 * time.Minute)

	ok, err = ttlStore.CompareAndSwap("k", []byte("v1"), []byte("v2"))
	require.NoError(t, err)
	assert.False(t, ok, "an expired entry must refuse the swap")
}

// TestTTLStore_GetAndDelete checks removal of live entries and the
// already-lapsed case, which clears bytes but reports loaded=false.
func TestTTLStore_GetAndDelete(t *testing.T) {
	t.Parallel()

	ttlStore, inner, clock := newTTLStoreForTest(t, &TTLConfig{DefaultTTL: time.Minute})

	require.NoError(t, ttlStore.Set("k", []byte("v")))

	value, loaded, err := ttlStore.GetAndDelete("k")
	require.NoError(t, err)
	require.True(t, loaded)
	assert.Equal(t, []byte("v"), value)

	require.NoError(t, ttlStore.Set("k", []byte("v2")))
	clock.Advance(2 * time.Minute)

	value, loaded, err = ttlStore.GetAndDelete("k")
	require.NoError(t, err)
	assert.False(t, loaded, "a lapsed entry must report loaded=false")
	assert.Nil(t, value)

	innerLen, err := inner.Len()
	require.NoError(t, err)
	assert.EqualValues(t, 0, innerLen, "the stale bytes must be gone")
}

// TestTTLStore_Delete verifies Delete reports true only for live entries
// while still clearing lapsed bytes.
func TestTTLStore_Delete(t *testing.T) {
	t.Parallel()

	ttlStore, inner, clock := newTTLStoreForTest(t, &TTLConfig{DefaultTTL: time.Minute})

	require.NoError(t, ttlStore.Set("k", []byte("v")))

	deleted, err := ttlStore.Delete("k")
	require.NoError(t, err)
	assert.True(t, deleted, "deleting a live entry must report true")

	require.NoError(t, ttlStore.Set("k", []byte("v2")))
	clock.Advance(2 * time.Minute)

	deleted, err = ttlStore.Delete("k")
	require.NoError(t, err)
	assert.False(t, deleted, "deleting a lapsed entry must report false")

	innerLen, err := inner.Len()
	require.NoError(t, err)
	assert.EqualValues(t, 0, innerLen, "the lapsed bytes must still be removed")

	deleted, err = ttlStore.Delete("missing")
	require.NoError(t, err)
	assert.False(t, deleted)
}

// TestTTLStore_CompareAndDelete checks payload matching and expiry handling.
func TestTTLStore_CompareAndDelete(t *testing.T) {
	t.Parallel()

	ttlStore, _, clock := newTTLStoreForTest(t, &TTLConfig{DefaultTTL: time.Minute})

	require.NoError(t, ttlStore.Set("k", []byte("v")))

	ok, err := ttlStore.CompareAndDelete("k", []byte("WRONG"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ttlStore.CompareAndDelete("k", []byte("v"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, ttlStore.Set("k", []byte("v")))
	clock.Advance(2 * time.Minute)

	ok, err = ttlStore.CompareAndDelete("k", []byte("v"))
	require.NoError(t, err)
	assert.False(t, ok, "an expired entry must refuse the delete")
}

// TestTTLStore_IncrementBy verifies counters receive the default TTL on
// creation, keep their original deadline across increments, and restart from
// zero once expired.
func TestTTLStore_IncrementBy(t *testing.T) {
	t.Parallel()

	ttlStore, _, clock := newTTLStoreForTest(t, &TTLConfig{DefaultTTL: time.Minute})

	value, err := ttlStore.IncrementBy("ctr", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 5, value)

	clock.Advance(30 * time.Second)

	value, err = ttlStore.IncrementBy("ctr", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 6, value)

	// 70s after creation: the increment 40s ago must not have extended the
	// original deadline.
	clock.Advance(40 * time.Second)

	_, found, err := ttlStore.Get("ctr")
	require.NoError(t, err)
	assert.False(t, found, "increments must not refresh the deadline")

	value, err = ttlStore.IncrementBy("ctr", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, value, "an expired counter must restart from zero")
}

// TestTTLStore_IncrementBy_NonInteger ensures unparsable payloads surface
// ErrValueParseFailed.
func TestTTLStore_IncrementBy_NonInteger(t *testing.T) {
	t.Parallel()

	ttlStore, _, _ := newTTLStoreForTest(t, nil)

	require.NoError(t, ttlStore.Set("bad", []byte("not-a-number")))

	_, err := ttlStore.IncrementBy("bad", 1)
	require.ErrorIs(t, err, ErrValueParseFailed)
}

// TestTTLStore_IncrementBy_Concurrent verifies concurrent increments through
// the envelope CAS loop produce the exact sum.
func TestTTLStore_IncrementBy_Concurrent(t *testing.T) {
	t.Parallel()

	const concurrencyLevel = 200

	ttlStore, _, _ := newTTLStoreForTest(t, &TTLConfig{DefaultTTL: time.Hour})

	var wg sync.WaitGroup

	wg.Add(concurrencyLevel)

	for range concurrencyLevel {
		go func() {
			defer wg.Done()

			_, err := ttlStore.IncrementBy("ctr", 1)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	value, err := ttlStore.IncrementBy("ctr", 0)
	require.NoError(t, err)
	assert.EqualValues(t, concurrencyLevel, value, "counter mismatch")
}

// TestTTLStore_StaleDiscardSparesFreshWrite pins down the race guard: a
// discard based on a stale envelope must not remove a value written under
// the same key afterwards.
func TestTTLStore_StaleDiscardSparesFreshWrite(t *testing.T) {
	t.Parallel()

	ttlStore, inner, clock := newTTLStoreForTest(t, &TTLConfig{DefaultTTL: time.Minute})

	require.NoError(t, ttlStore.Set("k", []byte("old")))

	staleEnvelope, found, err := inner.Get("k")
	require.NoError(t, err)
	require.True(t, found)

	clock.Advance(2 * time.Minute)

	// A fresh value lands under the same key after the snapshot above.
	require.NoError(t, ttlStore.Set("k", []byte("fresh")))

	discarded, err := ttlStore.discardIfExpired("k", staleEnvelope)
	require.NoError(t, err)
	assert.False(t, discarded, "a stale envelope must not match the fresh entry")

	value, found, err := ttlStore.Get("k")
	require.NoError(t, err)
	require.True(t, found, "the fresh value must survive the discard attempt")
	assert.Equal(t, []byte("fresh"), value)
}

// TestTTLStore_CorruptEnvelope ensures values too short to carry the expiry
// header surface ErrEnvelopeCorrupt.
func TestTTLStore_CorruptEnvelope(t *testing.T) {
	t.Parallel()

	ttlStore, inner, _ := newTTLStoreForTest(t, nil)

	// Bypass the TTL layer, mimicking data written without it.
	require.NoError(t, inner.Set("k", []byte("abc")))

	_, _, err := ttlStore.Get("k")
	require.ErrorIs(t, err, ErrEnvelopeCorrupt)
}

// TestTTLStore_ClearAndCounters checks the passthrough operations.
func TestTTLStore_ClearAndCounters(t *testing.T) {
	t.Parallel()

	ttlStore, _, _ := newTTLStoreForTest(t, &TTLConfig{DefaultTTL: time.Minute})

	require.NoError(t, ttlStore.Set("a", []byte("1")))
	require.NoError(t, ttlStore.Set("b", []byte("2")))

	total, err := ttlStore.Len()
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	stats, err := ttlStore.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Entries)
	assert.NotZero(t, stats.Bytes, "envelopes occupy bytes in the inner store")

	require.NoError(t, ttlStore.Clear())

	total, err = ttlStore.Len()
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

// newTTLStoreForTest wires a TTLStore over a fresh MemoryStore and swaps in
// a manual clock so tests control expiry without sleeping.
func newTTLStoreForTest(t *testing.T, cfg *TTLConfig) (*TTLStore, *MemoryStore, *manualClock) {
	t.Helper()

	inner := NewMemoryStore(nil)
	clock := newManualClock()

	ttlStore := NewTTLStore(inner, cfg)
	ttlStore.now = clock.Now

	return ttlStore, inner, clock
}

// manualClock is a settable time source safe for concurrent use.
type manualClock struct {
	mu      sync.Mutex
	current time.Time
}

func newManualClock() *manualClock {
	return &manualClock{current: time.Unix(1_700_000_000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)
}
