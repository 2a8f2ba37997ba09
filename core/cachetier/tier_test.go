package cachetier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierGetMissOnEmpty(t *testing.T) {
	tier := New("l1", LRU, 10, time.Minute)
	_, ok := tier.Get(time.Now(), "missing")
	assert.False(t, ok)
}

func TestTierPutGetRoundTrip(t *testing.T) {
	tier := New("l1", LRU, 10, time.Minute)
	now := time.Now()
	tier.Put(now, "k", []byte("v"), "application/json", 0)

	e, ok := tier.Get(now.Add(time.Second), "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), e.Body)
	assert.Equal(t, int64(1), e.AccessCount)
}

func TestTierExpiryRemovesEntry(t *testing.T) {
	tier := New("l1", LRU, 10, time.Second)
	now := time.Now()
	tier.Put(now, "k", []byte("v"), "", 0)

	_, ok := tier.Get(now.Add(2*time.Second), "k")
	assert.False(t, ok)

	// The expired entry must leave no trace: a subsequent scan finds it gone.
	assert.Empty(t, tier.ScanKeys())
}

func TestTierLRUEvictsLeastRecentlyAccessed(t *testing.T) {
	tier := New("l1", LRU, 2, time.Hour)
	now := time.Now()
	tier.Put(now, "a", []byte("a"), "", 0)
	tier.Put(now.Add(time.Second), "b", []byte("b"), "", 0)

	// touch "a" so it becomes more recently accessed than "b"
	_, ok := tier.Get(now.Add(2*time.Second), "a")
	require.True(t, ok)

	// inserting "c" must evict "b" (least recently accessed), not "a"
	tier.Put(now.Add(3*time.Second), "c", []byte("c"), "", 0)

	_, aOK := tier.Peek("a")
	_, bOK := tier.Peek("b")
	_, cOK := tier.Peek("c")
	assert.True(t, aOK)
	assert.False(t, bOK)
	assert.True(t, cOK)

	stats := tier.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Size)
}

func TestTierFIFOEvictsOldestCreated(t *testing.T) {
	tier := New("l2", FIFO, 2, time.Hour)
	now := time.Now()
	tier.Put(now, "a", []byte("a"), "", 0)
	tier.Put(now.Add(time.Second), "b", []byte("b"), "", 0)

	// touching "a" must not save it from FIFO eviction
	_, _ = tier.Get(now.Add(2*time.Second), "a")

	tier.Put(now.Add(3*time.Second), "c", []byte("c"), "", 0)

	_, aOK := tier.Peek("a")
	_, bOK := tier.Peek("b")
	assert.False(t, aOK, "FIFO must evict by creation order regardless of access")
	assert.True(t, bOK)
}

func TestTierLFUEvictsLeastAccessedTieBrokenByLastAccessed(t *testing.T) {
	tier := New("l3", LFU, 2, time.Hour)
	now := time.Now()
	tier.Put(now, "a", []byte("a"), "", 0)
	tier.Put(now.Add(time.Second), "b", []byte("b"), "", 0)

	// access "b" twice, "a" zero times: "a" has the lower AccessCount
	tier.Get(now.Add(2*time.Second), "b")
	tier.Get(now.Add(3*time.Second), "b")

	tier.Put(now.Add(4*time.Second), "c", []byte("c"), "", 0)

	_, aOK := tier.Peek("a")
	_, bOK := tier.Peek("b")
	assert.False(t, aOK)
	assert.True(t, bOK)
}

func TestTierEvictionCountMatchesOverflow(t *testing.T) {
	tier := New("l1", LRU, 3, time.Hour)
	now := time.Now()
	for i, k := range []string{"a", "b", "c", "d", "e"} {
		tier.Put(now.Add(time.Duration(i)*time.Millisecond), k, []byte(k), "", 0)
	}
	stats := tier.Stats()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, int64(2), stats.Evictions)
}

func TestTierDelete(t *testing.T) {
	tier := New("l1", LRU, 10, time.Hour)
	now := time.Now()
	tier.Put(now, "k", []byte("v"), "", 0)
	tier.Delete("k")
	_, ok := tier.Peek("k")
	assert.False(t, ok)
}
