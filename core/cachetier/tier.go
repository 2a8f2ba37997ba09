package cachetier

import (
	"sync"
	"time"
)

// Stats reports a tier's cumulative counters since creation.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// Tier is a bounded, single-policy, TTL-aware cache table. All operations are
// infallible: capacity pressure is resolved by eviction, never by returning
// an error. A Tier protects its internal map with a single mutex held only
// for the duration of the map operation itself; hashing and serialization are
// always done by the caller before Put is invoked.
type Tier struct {
	mu      sync.Mutex
	name    string
	policy  Policy
	maxSize int
	ttl     time.Duration
	items   map[string]*Entry

	hits      int64
	misses    int64
	evictions int64
}

// New creates a tier with the given name (used only for logging/metrics),
// eviction policy, capacity (entry count), and default TTL applied when Put
// is called without an explicit TTL.
func New(name string, policy Policy, maxSize int, defaultTTL time.Duration) *Tier {
	return &Tier{
		name:    name,
		policy:  policy,
		maxSize: maxSize,
		ttl:     defaultTTL,
		items:   make(map[string]*Entry, maxSize),
	}
}

func (t *Tier) Name() string         { return t.name }
func (t *Tier) Policy() Policy       { return t.policy }
func (t *Tier) DefaultTTL() time.Duration { return t.ttl }

// Get returns the entry for key if present and not expired as of now. A hit
// bumps LastAccessedAt and AccessCount atomically with respect to other tier
// operations. An observed-expired entry is deleted before Get reports a miss,
// per the spec invariant that no reference to an expired entry survives a
// read that observed it.
func (t *Tier) Get(now time.Time, key string) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.items[key]
	if !ok {
		t.misses++
		return nil, false
	}
	if e.Expired(now) {
		delete(t.items, key)
		t.misses++
		return nil, false
	}

	e.LastAccessedAt = now
	e.AccessCount++
	t.hits++
	return e.Clone(), true
}

// Peek returns the entry for key without updating access bookkeeping and
// without checking expiry, for stale-serve fallback (§7). It still reports
// false if the key was never stored or has since been deleted.
func (t *Tier) Peek(key string) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.items[key]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Put inserts or overwrites the entry for key. If the tier is at capacity and
// key is not already present, exactly one entry is evicted first, per this
// tier's policy.
func (t *Tier) Put(now time.Time, key string, body []byte, contentType string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = t.ttl
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.items[key]; !exists && len(t.items) >= t.maxSize && t.maxSize > 0 {
		t.evictLocked()
	}

	t.items[key] = &Entry{
		Key:            key,
		Body:           body,
		ContentType:    contentType,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		LastAccessedAt: now,
		AccessCount:    0,
		SizeBytes:      len(body),
	}
}

// Delete removes key, a no-op if it was not present.
func (t *Tier) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, key)
}

// ScanKeys returns a snapshot of all keys currently stored, expired or not.
// Expiry filtering is the caller's responsibility (invalidate walks all keys
// regardless of expiry, matching a regex against the key alone).
func (t *Tier) ScanKeys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	return keys
}

// Stats returns a snapshot of the tier's cumulative counters.
func (t *Tier) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Hits:      t.hits,
		Misses:    t.misses,
		Evictions: t.evictions,
		Size:      len(t.items),
	}
}

// evictLocked removes exactly one entry per t.policy. Must be called with
// t.mu held and t.items non-empty.
func (t *Tier) evictLocked() {
	if len(t.items) == 0 {
		return
	}

	var victimKey string
	first := true
	var victim *Entry

	for k, e := range t.items {
		if first {
			victimKey, victim, first = k, e, false
			continue
		}
		if t.less(e, victim) {
			victimKey, victim = k, e
		}
	}

	if victimKey != "" {
		delete(t.items, victimKey)
		t.evictions++
	}
}

// less reports whether candidate is a stronger eviction target than current,
// per t.policy. Ties in LFU are broken by smallest LastAccessedAt.
func (t *Tier) less(candidate, current *Entry) bool {
	switch t.policy {
	case LRU:
		return candidate.LastAccessedAt.Before(current.LastAccessedAt)
	case FIFO:
		return candidate.CreatedAt.Before(current.CreatedAt)
	case LFU:
		if candidate.AccessCount != current.AccessCount {
			return candidate.AccessCount < current.AccessCount
		}
		return candidate.LastAccessedAt.Before(current.LastAccessedAt)
	default:
		return false
	}
}
