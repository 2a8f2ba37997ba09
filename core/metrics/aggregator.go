// Package metrics implements the metrics aggregator of spec component J:
// per-endpoint counters plus rolling-window response-time and error-rate
// tracking. Record* calls run inline on the request path as short
// mutex-guarded in-memory updates and return no error.
package metrics

import (
	"sync"
	"time"
)

type endpointCounters struct {
	mu               sync.Mutex
	requests         int64
	cacheHits        map[string]int64 // keyed by tier name
	misses           int64
	errorsByCode     map[string]int64
	bytesTransferred int64
	breakerTransitions int64
	rateLimitDenials int64

	windowStart   time.Time
	windowErrors  int64
	windowTotal   int64
}

// Snapshot is a point-in-time read of one endpoint's counters.
type Snapshot struct {
	Endpoint           string
	Requests           int64
	CacheHits          map[string]int64
	Misses             int64
	ErrorsByCode       map[string]int64
	BytesTransferred   int64
	BreakerTransitions int64
	RateLimitDenials   int64
	ErrorRate          float64
	Latency            LatencyStats
}

// Aggregator owns one endpointCounters + latencyTracker per endpoint. All
// Record* methods are safe for concurrent use and never return an error:
// a failed update (e.g. an unknown endpoint map needing allocation) is
// handled internally rather than surfaced to the caller.
type Aggregator struct {
	mu         sync.Mutex
	counters   map[string]*endpointCounters
	latencies  map[string]*latencyTracker
	windowSize time.Duration
}

// NewAggregator builds an Aggregator whose rolling error-rate window resets
// every windowSize (e.g. 5 minutes, per spec).
func NewAggregator(windowSize time.Duration) *Aggregator {
	return &Aggregator{
		counters:   make(map[string]*endpointCounters),
		latencies:  make(map[string]*latencyTracker),
		windowSize: windowSize,
	}
}

func (a *Aggregator) countersFor(endpoint string) *endpointCounters {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.counters[endpoint]
	if !ok {
		c = &endpointCounters{
			cacheHits:    make(map[string]int64),
			errorsByCode: make(map[string]int64),
			windowStart:  time.Now(),
		}
		a.counters[endpoint] = c
	}
	return c
}

func (a *Aggregator) latencyFor(endpoint string) *latencyTracker {
	a.mu.Lock()
	defer a.mu.Unlock()
	lt, ok := a.latencies[endpoint]
	if !ok {
		lt = newLatencyTracker(1000)
		a.latencies[endpoint] = lt
	}
	return lt
}

// RecordRequest records one completed request for endpoint: its latency,
// whether it errored (errCode empty means success), and bytes transferred.
func (a *Aggregator) RecordRequest(now time.Time, endpoint string, d time.Duration, errCode string, bytes int) {
	c := a.countersFor(endpoint)
	a.latencyFor(endpoint).record(d)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests++
	c.bytesTransferred += int64(bytes)

	if now.Sub(c.windowStart) >= a.windowSize {
		c.windowStart = now
		c.windowErrors = 0
		c.windowTotal = 0
	}
	c.windowTotal++
	if errCode != "" {
		c.errorsByCode[errCode]++
		c.windowErrors++
	}
}

// RecordCacheHit records a hit at tier for endpoint.
func (a *Aggregator) RecordCacheHit(endpoint, tier string) {
	c := a.countersFor(endpoint)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheHits[tier]++
}

// RecordCacheMiss records a cache miss for endpoint.
func (a *Aggregator) RecordCacheMiss(endpoint string) {
	c := a.countersFor(endpoint)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses++
}

// RecordBreakerTransition records a circuit-breaker state transition for
// endpoint.
func (a *Aggregator) RecordBreakerTransition(endpoint string) {
	c := a.countersFor(endpoint)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakerTransitions++
}

// RecordRateLimitDenial records a 429 rejection for endpoint.
func (a *Aggregator) RecordRateLimitDenial(endpoint string) {
	c := a.countersFor(endpoint)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateLimitDenials++
}

// CacheHitRate returns hits/(hits+misses) for endpoint, for the adaptive
// rate-limit supervisor's score inputs.
func (a *Aggregator) CacheHitRate(endpoint string) float64 {
	c := a.countersFor(endpoint)
	c.mu.Lock()
	defer c.mu.Unlock()

	var hits int64
	for _, n := range c.cacheHits {
		hits += n
	}
	total := hits + c.misses
	if total == 0 {
		return 1.0
	}
	return float64(hits) / float64(total)
}

// ErrorRate returns the current rolling-window error rate for endpoint.
func (a *Aggregator) ErrorRate(endpoint string) float64 {
	c := a.countersFor(endpoint)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.windowTotal == 0 {
		return 0
	}
	return float64(c.windowErrors) / float64(c.windowTotal)
}

// Snapshot returns a copy of endpoint's current counters and latency stats.
func (a *Aggregator) Snapshot(endpoint string) Snapshot {
	c := a.countersFor(endpoint)
	lt := a.latencyFor(endpoint)

	c.mu.Lock()
	hits := make(map[string]int64, len(c.cacheHits))
	for k, v := range c.cacheHits {
		hits[k] = v
	}
	errs := make(map[string]int64, len(c.errorsByCode))
	for k, v := range c.errorsByCode {
		errs[k] = v
	}
	snap := Snapshot{
		Endpoint:           endpoint,
		Requests:           c.requests,
		CacheHits:          hits,
		Misses:             c.misses,
		ErrorsByCode:       errs,
		BytesTransferred:   c.bytesTransferred,
		BreakerTransitions: c.breakerTransitions,
		RateLimitDenials:   c.rateLimitDenials,
	}
	if c.windowTotal > 0 {
		snap.ErrorRate = float64(c.windowErrors) / float64(c.windowTotal)
	}
	c.mu.Unlock()

	snap.Latency = lt.stats()
	return snap
}

// Endpoints returns the names of every endpoint with at least one recorded
// counter, for bulk snapshot/export.
func (a *Aggregator) Endpoints() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.counters))
	for name := range a.counters {
		names = append(names, name)
	}
	return names
}
