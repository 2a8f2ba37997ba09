// Package bootstrap wires config, every core/ component, and the Fiber HTTP
// surface into a runnable server, the way the teacher's internal/bootstrap
// composes its dependency graph before handing a *fiber.App to main.
package bootstrap

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/golfproxy/proxy/adapter/httpapi"
	"github.com/golfproxy/proxy/config"
	"github.com/golfproxy/proxy/core/breaker"
	"github.com/golfproxy/proxy/core/cachetier"
	"github.com/golfproxy/proxy/core/metrics"
	"github.com/golfproxy/proxy/core/pipeline"
	"github.com/golfproxy/proxy/core/ratelimit"
	"github.com/golfproxy/proxy/core/session"
	"github.com/golfproxy/proxy/core/tieredcache"
	"github.com/golfproxy/proxy/core/transform"
	"github.com/golfproxy/proxy/core/upstream"
	"github.com/golfproxy/proxy/internal/cachepersist"
	"github.com/golfproxy/proxy/internal/obslog"
	"github.com/golfproxy/proxy/infra/middleware"
	"github.com/golfproxy/proxy/pkg/httputil"
)

// Dependencies holds every long-lived collaborator the server needs, so
// background goroutines (adaptive rate-limit supervisor, sweeper) and
// graceful shutdown can reach them after NewServer returns.
type Dependencies struct {
	Config         *config.Config
	Pipeline       *pipeline.Pipeline
	Metrics        *metrics.Aggregator
	Prometheus     *metrics.PromCollectors
	MetricsHandler http.Handler
	RedisStore     *cachepersist.RedisStore
	Supervisor     *ratelimit.Supervisor
	BreakerReg     *breaker.Registry
}

func buildTier(name string, cfg config.TierConfig) *cachetier.Tier {
	if !cfg.Enabled {
		return nil
	}
	policy := cachetier.LRU
	switch strings.ToLower(cfg.Policy) {
	case "fifo":
		policy = cachetier.FIFO
	case "lfu":
		policy = cachetier.LFU
	}
	return cachetier.New(name, policy, cfg.MaxSize, cfg.DefaultTTL)
}

func toRatelimitRule(c config.RateLimitConfig) ratelimit.Rule {
	return ratelimit.Rule{Limit: c.Limit, Window: c.Window, Min: c.Min, Max: c.Max}
}

func toBreakerConfig(c config.BreakerConfig) breaker.Config {
	return breaker.Config{
		FailureThreshold: c.FailureThreshold,
		OpenTimeout:      c.OpenTimeout,
		MaxTrials:        c.MaxTrials,
		ResetThreshold:   c.ResetThreshold,
	}
}

// NewDependencies builds every collaborator from cfg, wiring the optional
// Redis-backed durable L3 store only if CacheL3RedisURL is set.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	aggregator := metrics.NewAggregator(cfg.MetricsWindow)
	promRegistry := prometheus.NewRegistry()
	promCollectors := metrics.NewPromCollectors(promRegistry)
	metricsHandler := promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})

	l1 := buildTier("l1", cfg.TierL1)
	l2 := buildTier("l2", cfg.TierL2)
	l3 := buildTier("l3", cfg.TierL3)
	cache := tieredcache.New(l1, l2, l3)

	var redisStore *cachepersist.RedisStore
	if cfg.CacheL3RedisURL != "" {
		store, err := cachepersist.NewRedisStore(cfg.CacheL3RedisURL, "golfproxy:l3:")
		if err != nil {
			return nil, nil, err
		}
		redisStore = store
	}

	masterKey, err := decodeMasterKey(cfg.SessionMasterKey)
	if err != nil {
		return nil, nil, err
	}
	sessions := session.NewEnvelope(masterKey)

	rateRules := make(map[string]ratelimit.Rule, len(cfg.RateLimitByEndpoint))
	for endpoint, rc := range cfg.RateLimitByEndpoint {
		rateRules[endpoint] = toRatelimitRule(rc)
	}
	limiter := ratelimit.New(toRatelimitRule(cfg.RateLimitDefault), rateRules)

	breakerReg := breaker.NewRegistry(toBreakerConfig(cfg.BreakerDefault), nil, func(endpoint string, from, to breaker.State) {
		aggregator.RecordBreakerTransition(endpoint)
		obslog.L(context.Background()).
			WithField("endpoint", endpoint).
			WithField("from", from.String()).
			WithField("to", to.String()).
			Info("circuit breaker state changed")
	})

	httpClient := httputil.NewOptimizedClient(httputil.DefaultClientConfig())
	upClient := upstream.New(httpClient, upstream.Config{
		BaseURL:        cfg.UpstreamBaseURL,
		APIKey:         cfg.UpstreamAPIKey,
		MaxRetries:     cfg.MaxRetries,
		BaseDelay:      cfg.BaseDelay,
		AttemptTimeout: cfg.AttemptTimeout,
	})

	transforms := transform.NewRegistry()

	p := pipeline.New(cache, sessions, limiter, breakerReg, upClient, transforms, aggregator, cfg.SessionTimeout, cfg.SessionMaxAge)

	var supervisor *ratelimit.Supervisor
	if cfg.AdaptiveEnabled {
		baseLimits := map[string]int{}
		for endpoint, rc := range cfg.RateLimitByEndpoint {
			baseLimits[endpoint] = rc.Limit
		}
		supervisor = ratelimit.NewSupervisor(limiter, baseLimits, func(endpoint string) ratelimit.ScoreInputs {
			snap := aggregator.Snapshot(endpoint)
			return ratelimit.ScoreInputs{
				ErrorRate:       snap.ErrorRate,
				AvgResponseTime: snap.Latency.Avg,
				SlowThreshold:   time.Second,
				CacheHitRate:    aggregator.CacheHitRate(endpoint),
			}
		})
	}

	deps := &Dependencies{
		Config:         cfg,
		Pipeline:       p,
		Metrics:        aggregator,
		Prometheus:     promCollectors,
		MetricsHandler: metricsHandler,
		RedisStore:     redisStore,
		Supervisor:     supervisor,
		BreakerReg:     breakerReg,
	}

	cleanup := func() {
		if redisStore != nil {
			redisStore.Close()
		}
	}

	return deps, cleanup, nil
}

func decodeMasterKey(raw string) ([]byte, error) {
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && len(decoded) > 0 {
		return decoded, nil
	}
	return []byte(raw), nil
}

// NewServer builds the Fiber app: middleware stack, route registration, and
// background housekeeping goroutines (rate-limit sweep, adaptive rescoring).
func NewServer(cfg *config.Config) (*fiber.App, func(), error) {
	deps, cleanupDeps, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(cfg.IsDevelopment()),
		DisableStartupMessage: cfg.IsProduction(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             10 * 1024 * 1024,
		ServerHeader:          "",
	})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.CorrelationID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.InputSanitizer())
	app.Use(middleware.ValidateContentType())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.CacheStatus())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowOrigins,
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,X-Request-ID,X-Correlation-ID,X-Session-ID",
		ExposeHeaders: "X-Request-ID,X-Correlation-ID,X-Session-ID,X-Cache-Status,X-RateLimit-Remaining,Retry-After",
	}))

	checks := map[string]httpapi.HealthChecker{}
	if deps.RedisStore != nil {
		checks["redis"] = deps.RedisStore
	}
	httpapi.NewHealthHandler(checks, deps.MetricsHandler).Register(app)
	httpapi.NewProxyHandler(deps.Pipeline, cfg.IsProduction()).Register(app)

	stopSweep := startBackgroundLoops(deps)

	cleanup := func() {
		stopSweep()
		cleanupDeps()
	}

	return app, cleanup, nil
}

// startBackgroundLoops runs the rate limiter's periodic Sweep and, if
// enabled, the adaptive supervisor's rescoring pass. Returns a function that
// stops both.
func startBackgroundLoops(deps *Dependencies) func() {
	stop := make(chan struct{})

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deps.Pipeline.Limiter.Sweep(time.Now())
			case <-stop:
				return
			}
		}
	}()

	if deps.Supervisor != nil {
		interval := deps.Config.AdaptiveInterval
		if interval <= 0 {
			interval = time.Minute
		}
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					deps.Supervisor.Rescore()
				case <-stop:
					return
				}
			}
		}()
	}

	var once bool
	return func() {
		if once {
			return
		}
		once = true
		close(stop)
	}
}
