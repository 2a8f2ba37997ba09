// Package tieredcache composes the L1/L2/L3 core/cachetier.Tier instances
// into the layered cache described by spec component B: a Get probes tiers in
// order and promotes a hit into every strictly-lower enabled tier; a Put
// writes to every enabled tier; Delete and Invalidate act across all tiers.
package tieredcache

import (
	"regexp"
	"time"

	"github.com/golfproxy/proxy/core/cachetier"
)

// Cache composes up to three tiers, ordered fastest-first (L1, L2, L3). A nil
// entry in the slice means that tier is disabled.
type Cache struct {
	tiers []*cachetier.Tier
}

// New builds a Cache from tiers ordered L1, L2, L3. Pass nil for any disabled
// tier; Get/Put/Delete skip nil entries.
func New(tiers ...*cachetier.Tier) *Cache {
	return &Cache{tiers: tiers}
}

// Result is returned by Get, carrying the entry plus which tier satisfied the
// read so callers can populate response metadata (cached, cacheTier).
type Result struct {
	Entry *cachetier.Entry
	Tier  string
	// Promoted is true if this hit came from a lower tier and was copied
	// into one or more higher tiers as a side effect of this call.
	Promoted bool
}

// Get probes tiers in order (L1 first). On a hit in tier N, the entry is
// promoted into every enabled tier strictly above N (closer to L1), using
// each destination tier's own default TTL — never the TTL observed in the
// source tier, and promotion never writes backward into a lower tier.
func (c *Cache) Get(now time.Time, key string) (Result, bool) {
	for i, tier := range c.tiers {
		if tier == nil {
			continue
		}
		entry, ok := tier.Get(now, key)
		if !ok {
			continue
		}
		promoted := c.promote(now, key, entry, i)
		return Result{Entry: entry, Tier: tier.Name(), Promoted: promoted}, true
	}
	return Result{}, false
}

// promote copies entry into every enabled tier with index < foundAt, using
// that tier's own default TTL. Returns true if any promotion occurred.
func (c *Cache) promote(now time.Time, key string, entry *cachetier.Entry, foundAt int) bool {
	promoted := false
	for i := 0; i < foundAt; i++ {
		dest := c.tiers[i]
		if dest == nil {
			continue
		}
		dest.Put(now, key, entry.Body, entry.ContentType, dest.DefaultTTL())
		promoted = true
	}
	return promoted
}

// Put writes key to every enabled tier. If ttl is zero, each tier applies its
// own default TTL.
func (c *Cache) Put(now time.Time, key string, body []byte, contentType string, ttl time.Duration) {
	for _, tier := range c.tiers {
		if tier == nil {
			continue
		}
		tier.Put(now, key, body, contentType, ttl)
	}
}

// Delete removes key from every enabled tier.
func (c *Cache) Delete(key string) {
	for _, tier := range c.tiers {
		if tier == nil {
			continue
		}
		tier.Delete(key)
	}
}

// Peek looks for key across tiers without expiry checks or access
// bookkeeping, for the stale-serve fallback: the first tier (in L1..L3
// order) still holding any entry for key, expired or not, wins.
func (c *Cache) Peek(key string) (Result, bool) {
	for _, tier := range c.tiers {
		if tier == nil {
			continue
		}
		if entry, ok := tier.Peek(key); ok {
			return Result{Entry: entry, Tier: tier.Name()}, true
		}
	}
	return Result{}, false
}

// Invalidate deletes every key across all enabled tiers whose key matches
// pattern, a regular expression evaluated against the raw key string. It
// returns the count of distinct keys removed.
func (c *Cache) Invalidate(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{})
	for _, tier := range c.tiers {
		if tier == nil {
			continue
		}
		for _, key := range tier.ScanKeys() {
			if re.MatchString(key) {
				seen[key] = struct{}{}
			}
		}
	}

	for key := range seen {
		c.Delete(key)
	}
	return len(seen), nil
}
