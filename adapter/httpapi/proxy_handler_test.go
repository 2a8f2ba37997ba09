package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golfproxy/proxy/core/breaker"
	"github.com/golfproxy/proxy/core/cachetier"
	"github.com/golfproxy/proxy/core/metrics"
	"github.com/golfproxy/proxy/core/pipeline"
	"github.com/golfproxy/proxy/core/ratelimit"
	"github.com/golfproxy/proxy/core/session"
	"github.com/golfproxy/proxy/core/tieredcache"
	"github.com/golfproxy/proxy/core/transform"
	"github.com/golfproxy/proxy/core/upstream"
	"github.com/golfproxy/proxy/infra/middleware"
	"github.com/golfproxy/proxy/internal/obslog"
)

func init() {
	obslog.SetGlobal(obslog.Init(obslog.Config{Level: "error"}))
}

func newTestApp(t *testing.T, upstreamURL string) *fiber.App {
	t.Helper()

	cache := tieredcache.New(
		cachetier.New("l1", cachetier.LRU, 100, time.Minute),
		cachetier.New("l2", cachetier.FIFO, 100, 5*time.Minute),
		cachetier.New("l3", cachetier.LFU, 100, time.Hour),
	)
	sessions := session.NewEnvelope([]byte("test-master-key-0123456789abcdef"))
	limiter := ratelimit.New(ratelimit.Rule{Limit: 100, Window: time.Minute}, nil)
	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 3, OpenTimeout: time.Minute, ResetThreshold: 1}, nil, nil)
	upClient := upstream.New(http.DefaultClient, upstream.Config{
		BaseURL: upstreamURL, APIKey: "secret", MaxRetries: 1, BaseDelay: time.Millisecond, AttemptTimeout: time.Second,
	})
	p := pipeline.New(cache, sessions, limiter, breakers, upClient, transform.NewRegistry(), metrics.NewAggregator(5*time.Minute), 30*time.Minute, time.Hour)

	app := fiber.New(fiber.Config{JSONEncoder: json.Marshal, JSONDecoder: json.Unmarshal, ErrorHandler: middleware.ErrorHandler(true)})
	app.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(c.Context())
		c.Locals("request_id", "test-request-id")
		return c.Next()
	})
	NewProxyHandler(p, false).Register(app)
	return app
}

func TestProxyGetReturnsTransformedEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"world_rank":1}`))
	}))
	defer server.Close()

	app := newTestApp(t, server.URL)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/proxy/rankings?tour=pga", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, resp.Header.Get("X-Session-ID"))
}

func TestProxyGetFieldEndpointReturnsOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"world_rank":1}`))
	}))
	defer server.Close()

	app := newTestApp(t, server.URL)
	app.Use(middleware.CacheStatus())

	resp1, err := app.Test(httptest.NewRequest(http.MethodGet, "/proxy/field?tour=pga", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp1.StatusCode)
}

func TestProxyPostWithEmptyBodyReturnsOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"world_rank":1}`))
	}))
	defer server.Close()

	app := newTestApp(t, server.URL)
	req := httptest.NewRequest(http.MethodPost, "/proxy/rankings", nil)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
