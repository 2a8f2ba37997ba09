package metrics

import "github.com/prometheus/client_golang/prometheus"

// PromCollectors declares Prometheus counterparts of the Aggregator's
// counters. They are registered and served on /metrics, but no code path
// updates them, so they keep their zero values; the Aggregator's own
// counters are not mirrored into them.
type PromCollectors struct {
	RequestsTotal       *prometheus.CounterVec
	CacheHitsTotal      *prometheus.CounterVec
	UpstreamCallsTotal  prometheus.Counter
	CircuitState        *prometheus.GaugeVec
	RateLimitDeniedTotal *prometheus.CounterVec
}

// NewPromCollectors registers and returns the aggregator's Prometheus
// collectors against reg.
func NewPromCollectors(reg prometheus.Registerer) *PromCollectors {
	c := &PromCollectors{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_requests_total",
			Help: "Total proxy requests by endpoint and status.",
		}, []string{"endpoint", "status"}),
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_cache_hits_total",
			Help: "Total cache hits by endpoint and tier.",
		}, []string{"endpoint", "tier"}),
		UpstreamCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_upstream_calls_total",
			Help: "Total upstream fetches issued.",
		}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxy_circuit_state",
			Help: "Circuit breaker state per endpoint (0=closed, 1=half_open, 2=open).",
		}, []string{"endpoint"}),
		RateLimitDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_rate_limit_denied_total",
			Help: "Total rate-limit denials by endpoint.",
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		c.RequestsTotal,
		c.CacheHitsTotal,
		c.UpstreamCallsTotal,
		c.CircuitState,
		c.RateLimitDeniedTotal,
	)
	return c
}
