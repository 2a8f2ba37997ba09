// Package pipeline composes every other core/ component into the end-to-end
// process(request) -> response flow of spec component I: session handling,
// rate limiting, cache probing with promotion, circuit breaking with
// stale-serve fallback, single-flight-coordinated upstream fetch, transform,
// TTL computation, and write-back.
package pipeline

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golfproxy/proxy/core/breaker"
	"github.com/golfproxy/proxy/core/cachekey"
	"github.com/golfproxy/proxy/core/metrics"
	"github.com/golfproxy/proxy/core/ratelimit"
	"github.com/golfproxy/proxy/core/session"
	"github.com/golfproxy/proxy/core/tieredcache"
	"github.com/golfproxy/proxy/core/transform"
	"github.com/golfproxy/proxy/core/upstream"
	"github.com/golfproxy/proxy/pkg/apperr"
)

// TTLCategory buckets an endpoint into the base-TTL tier spec §4.I describes.
type TTLCategory int

const (
	// CategoryRealtime covers live scoring and betting odds: short base TTL.
	CategoryRealtime TTLCategory = iota
	// CategoryDynamic covers field and rankings: medium base TTL.
	CategoryDynamic
	// CategoryReference covers tournaments and historical stats: long base TTL.
	CategoryReference
)

// TTLRule is the base/min/max triple one endpoint category resolves to.
type TTLRule struct {
	Base time.Duration
	Min  time.Duration
	Max  time.Duration
}

// DefaultTTLRules gives each category the example bounds named in spec §4.I.
func DefaultTTLRules() map[TTLCategory]TTLRule {
	return map[TTLCategory]TTLRule{
		CategoryRealtime:  {Base: 60 * time.Second, Min: 30 * time.Second, Max: 300 * time.Second},
		CategoryDynamic:   {Base: 20 * time.Minute, Min: 15 * time.Minute, Max: 30 * time.Minute},
		CategoryReference: {Base: 6 * time.Hour, Min: time.Hour, Max: 24 * time.Hour},
	}
}

// EndpointCategories maps each required endpoint (§4.G) to its TTL category.
func EndpointCategories() map[string]TTLCategory {
	return map[string]TTLCategory{
		"scoring":      CategoryRealtime,
		"betting-odds": CategoryRealtime,
		"field":        CategoryDynamic,
		"rankings":     CategoryDynamic,
		"tournaments":  CategoryReference,
		"player-stats": CategoryReference,
	}
}

// Request is one inbound proxy call.
type Request struct {
	Endpoint           string
	Params             map[string]string
	Headers            map[string]string
	SessionToken       string
	CacheOverride      bool
	TransformOverrides []string
	Identity           string // rate-limit/session identity, derived by the caller (session id or client IP)
}

// Response is the pipeline's normalized result, translated to the envelope
// of §6 by the HTTP adapter.
type Response struct {
	Body                   []byte
	ContentType            string
	Cached                 bool
	Stale                  bool
	CacheTier              string
	CacheAge               time.Duration
	TransformationsApplied []string
	RateLimitRemaining     int
	RateLimitReset         time.Time
	SessionToken           string
}

// Pipeline wires every core component together. Fields are exported so
// internal/bootstrap can construct it field-by-field; nothing outside this
// package and its wirer needs direct access.
type Pipeline struct {
	Cache        *tieredcache.Cache
	Sessions     *session.Envelope
	Limiter      *ratelimit.Limiter
	Breakers     *breaker.Registry
	Upstream     *upstream.Client
	Transforms   *transform.Registry
	Coordinator  *Coordinator
	Metrics      *metrics.Aggregator
	TTLRules     map[TTLCategory]TTLRule
	Categories   map[string]TTLCategory
	SessionIdle  time.Duration
	SessionMaxAge time.Duration
}

// New builds a Pipeline from its collaborators, applying the default TTL
// rule/category tables unless the caller overrides them afterward.
func New(cache *tieredcache.Cache, sessions *session.Envelope, limiter *ratelimit.Limiter, breakers *breaker.Registry, up *upstream.Client, transforms *transform.Registry, aggregator *metrics.Aggregator, sessionIdle, sessionMaxAge time.Duration) *Pipeline {
	return &Pipeline{
		Cache:         cache,
		Sessions:      sessions,
		Limiter:       limiter,
		Breakers:      breakers,
		Upstream:      up,
		Transforms:    transforms,
		Coordinator:   NewCoordinator(),
		Metrics:       aggregator,
		TTLRules:      DefaultTTLRules(),
		Categories:    EndpointCategories(),
		SessionIdle:   sessionIdle,
		SessionMaxAge: sessionMaxAge,
	}
}

// sessionResult carries the outcome of step 1 (decode/refresh).
type sessionResult struct {
	token     string
	sessionID string
}

// resolveSession decodes req.SessionToken, rotating it if valid or minting a
// fresh one if absent/invalid/expired. A bad or missing token is never an
// error for an otherwise-anonymous proxy call — it only means a new session
// is started.
func (p *Pipeline) resolveSession(now time.Time, token string) sessionResult {
	if token != "" {
		if rotated, record, err := p.Sessions.Rotate(token, now); err == nil {
			if !record.Expired(now, p.SessionIdle, p.SessionMaxAge) {
				return sessionResult{token: rotated, sessionID: record.SessionID}
			}
		}
	}

	record := &session.Record{
		SessionID:      newSessionID(now),
		CreatedAt:      now,
		LastAccessedAt: now,
		RequestCount:   1,
	}
	fresh, err := p.Sessions.Encrypt(record)
	if err != nil {
		return sessionResult{}
	}
	return sessionResult{token: fresh, sessionID: record.SessionID}
}

func newSessionID(now time.Time) string {
	return cachekey.Derive("session", map[string]string{"ts": now.Format(time.RFC3339Nano)})
}

// Process runs the full pipeline for req, returning an *apperr.AppError for
// any failure kind named in spec §7.
func (p *Pipeline) Process(ctx context.Context, now time.Time, req Request) (*Response, error) {
	start := now

	// Step 1: session decode/refresh. The session id is the primary rate-limit
	// identity (spec §4.D); the caller-supplied Identity (e.g. client IP) is
	// only a fallback for the rare case session minting itself failed.
	sess := p.resolveSession(now, req.SessionToken)
	identity := sess.sessionID
	if identity == "" {
		identity = req.Identity
	}

	// Step 2: cache key.
	key := cachekey.Derive(req.Endpoint, req.Params)

	// Step 3: rate limit.
	decision := p.Limiter.Allow(now, identity, req.Endpoint)
	if !decision.Allowed {
		p.Metrics.RecordRateLimitDenial(req.Endpoint)
		p.Metrics.RecordRequest(now, req.Endpoint, time.Since(start), apperr.CodeRateLimited, 0)
		return nil, apperr.RateLimited(int(decision.RetryAfter.Seconds()))
	}

	// Keep whatever entry any tier holds for key, expired or not, before the
	// probe below drops expired entries; it is the stale-serve fallback.
	staleResult, hasStale := p.Cache.Peek(key)

	// Step 4: cache probe, unless the caller demands a fresh fetch.
	if !req.CacheOverride {
		if result, ok := p.Cache.Get(now, key); ok {
			p.Metrics.RecordCacheHit(req.Endpoint, result.Tier)
			p.Metrics.RecordRequest(now, req.Endpoint, time.Since(start), "", len(result.Entry.Body))
			return &Response{
				Body:               result.Entry.Body,
				ContentType:        result.Entry.ContentType,
				Cached:             true,
				CacheTier:          result.Tier,
				CacheAge:           now.Sub(result.Entry.CreatedAt),
				SessionToken:       sess.token,
				RateLimitRemaining: decision.Remaining,
			}, nil
		}
	}
	p.Metrics.RecordCacheMiss(req.Endpoint)

	// Step 5: circuit breaker admission.
	if !p.Breakers.Admit(req.Endpoint) {
		if resp, ok := p.staleServe(now, staleResult, hasStale, decision, sess.token); ok {
			return resp, nil
		}
		p.Metrics.RecordRequest(now, req.Endpoint, time.Since(start), apperr.CodeCircuitOpen, 0)
		return nil, apperr.CircuitOpen(req.Endpoint)
	}

	// Steps 6-7: single-flight dispatch of upstream fetch, transform, TTL,
	// write-back.
	raw, err := p.Coordinator.Do(ctx, key, func() (interface{}, error) {
		return p.fetchTransformStore(ctx, now, req.Endpoint, req.Params, req.Headers, key)
	})
	if err != nil {
		// A non-retryable 4xx from the vendor is surfaced verbatim (spec §7)
		// rather than folded into a stale-serve attempt or a generic 502:
		// the client asked for something the vendor rejected outright, and
		// retrying or serving old data wouldn't change that.
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) && statusErr.Status >= 400 && statusErr.Status < 500 && statusErr.Status != http.StatusTooManyRequests {
			p.Metrics.RecordRequest(now, req.Endpoint, time.Since(start), apperr.CodeUpstream4xx, 0)
			return nil, apperr.Upstream4xx(statusErr.Status, err)
		}

		if resp, ok := p.staleServe(now, staleResult, hasStale, decision, sess.token); ok {
			return resp, nil
		}
		code := apperr.CodeUpstreamUnavailable
		var appErr *apperr.AppError
		if errors.As(err, &appErr) {
			code = appErr.Code
		}
		p.Metrics.RecordRequest(now, req.Endpoint, time.Since(start), code, 0)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.UpstreamUnavailable(err)
	}

	stored := raw.(*storedResult)
	p.Metrics.RecordRequest(now, req.Endpoint, time.Since(start), "", len(stored.body))
	return &Response{
		Body:                   stored.body,
		ContentType:            stored.contentType,
		Cached:                 false,
		TransformationsApplied: req.TransformOverrides,
		RateLimitRemaining:     decision.Remaining,
		SessionToken:           sess.token,
	}, nil
}

// staleServe attempts the §7 fallback: result is the entry some tier held for
// the key (expired or not) when Process peeked before its cache probe; ok is
// false when no tier held one. Stale entries are not promoted and their TTL is
// never extended.
func (p *Pipeline) staleServe(now time.Time, result tieredcache.Result, ok bool, decision ratelimit.Decision, sessionToken string) (*Response, bool) {
	if !ok {
		return nil, false
	}
	return &Response{
		Body:               result.Entry.Body,
		ContentType:        result.Entry.ContentType,
		Cached:             true,
		Stale:              true,
		CacheTier:          result.Tier,
		CacheAge:           now.Sub(result.Entry.CreatedAt),
		SessionToken:       sessionToken,
		RateLimitRemaining: decision.Remaining,
	}, true
}

type storedResult struct {
	body        []byte
	contentType string
}

// fetchTransformStore is the single-flight compute function: an upstream
// fetch (through the endpoint's circuit breaker), a transform, a TTL
// computation, and a write-back — run at most once per key at a time.
func (p *Pipeline) fetchTransformStore(ctx context.Context, now time.Time, endpoint string, params, headers map[string]string, key string) (interface{}, error) {
	raw, err := p.Breakers.Execute(endpoint, func() (interface{}, error) {
		resp, err := p.Upstream.Fetch(ctx, endpoint, params, headers)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	upstreamResp := raw.(*upstream.Response)

	transformed, err := p.Transforms.For(endpoint)(upstreamResp.Body, now)
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}

	ttl := p.computeTTL(endpoint, now, len(transformed))
	p.Cache.Put(now, key, transformed, "application/json", ttl)

	return &storedResult{body: transformed, contentType: "application/json"}, nil
}

// computeTTL applies spec §4.I's formula: final_ttl = clamp(base *
// freq_factor * size_factor, min, max).
func (p *Pipeline) computeTTL(endpoint string, now time.Time, sizeBytes int) time.Duration {
	category := p.Categories[endpoint]
	rule, ok := p.TTLRules[category]
	if !ok {
		rule = p.TTLRules[CategoryDynamic]
	}

	// The frequency input is the endpoint's cumulative cache-hit count since
	// the aggregator started, summed over tiers; no hourly window is kept.
	var hitsPerHour int64
	for _, n := range p.Metrics.Snapshot(endpoint).CacheHits {
		hitsPerHour += n
	}
	freqFactor := 1 + float64(hitsPerHour)/100
	if freqFactor > 2.0 {
		freqFactor = 2.0
	}

	sizeFactor := 1 + float64(sizeBytes)/1_000_000
	if sizeFactor > 1.5 {
		sizeFactor = 1.5
	}

	ttl := time.Duration(float64(rule.Base) * freqFactor * sizeFactor)
	if ttl < rule.Min {
		ttl = rule.Min
	}
	if ttl > rule.Max {
		ttl = rule.Max
	}
	return ttl
}
