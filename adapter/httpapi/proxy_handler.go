// Package httpapi registers the proxy's Fiber routes: the vendor-mirroring
// GET/POST /proxy/:endpoint surface and the health/readiness/metrics probes.
package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/golfproxy/proxy/core/pipeline"
	"github.com/golfproxy/proxy/infra/middleware"
	"github.com/golfproxy/proxy/pkg/apperr"
	"github.com/golfproxy/proxy/pkg/response"
)

const sessionCookieName = "golf_session"

// ProxyHandler serves spec component I's HTTP surface over a *pipeline.Pipeline.
type ProxyHandler struct {
	pipeline   *pipeline.Pipeline
	production bool
}

// NewProxyHandler builds a ProxyHandler. production controls the session
// cookie's Secure flag.
func NewProxyHandler(p *pipeline.Pipeline, production bool) *ProxyHandler {
	return &ProxyHandler{pipeline: p, production: production}
}

// Register wires GET and POST /proxy/:endpoint onto router.
func (h *ProxyHandler) Register(router fiber.Router) {
	router.Get("/proxy/:endpoint", h.handleGet)
	router.Post("/proxy/:endpoint", h.handlePost)
}

type postBody struct {
	Parameters     map[string]string `json:"parameters"`
	Transformations []string         `json:"transformations"`
	OutputFormat    string           `json:"outputFormat"`
	CacheOverride   bool             `json:"cacheOverride"`
}

func (h *ProxyHandler) handleGet(c *fiber.Ctx) error {
	params := make(map[string]string)
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		params[string(key)] = string(value)
	})

	override := params["_cache_override"] == "true"
	delete(params, "_cache_override")

	return h.process(c, params, nil, override)
}

func (h *ProxyHandler) handlePost(c *fiber.Ctx) error {
	var body postBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return response.Fail(c, apperr.BadRequest("malformed request body"), h.meta(c, 0))
		}
	}
	return h.process(c, body.Parameters, body.Transformations, body.CacheOverride)
}

func (h *ProxyHandler) process(c *fiber.Ctx, params map[string]string, transforms []string, cacheOverride bool) error {
	start := time.Now()
	endpoint := c.Params("endpoint")

	sessionToken := c.Get("X-Session-ID")
	if sessionToken == "" {
		sessionToken = c.Cookies(sessionCookieName)
	}

	req := pipeline.Request{
		Endpoint:           endpoint,
		Params:             params,
		Headers:            map[string]string{},
		SessionToken:       sessionToken,
		CacheOverride:      cacheOverride,
		TransformOverrides: transforms,
		Identity:           c.IP(),
	}

	resp, err := h.pipeline.Process(c.UserContext(), time.Now(), req)
	if err != nil {
		return response.Fail(c, err, h.meta(c, time.Since(start)))
	}

	if resp.SessionToken != "" {
		c.Set("X-Session-ID", resp.SessionToken)
		c.Cookie(&fiber.Cookie{
			Name:     sessionCookieName,
			Value:    resp.SessionToken,
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteStrictMode,
			Secure:   h.production,
		})
	}

	switch {
	case resp.Stale:
		middleware.CacheStatusStale(c, resp.CacheTier)
	case resp.Cached:
		middleware.CacheStatusHit(c, resp.CacheTier)
	}

	meta := h.meta(c, time.Since(start))
	if resp.Cached {
		meta = meta.Cached(resp.CacheAge, resp.CacheTier)
	} else {
		meta = meta.Uncached()
	}
	if len(resp.TransformationsApplied) > 0 {
		meta = meta.WithTransformations(resp.TransformationsApplied...)
	}
	meta = meta.WithRateLimit(resp.RateLimitRemaining, time.Now().Add(time.Minute))

	var data interface{}
	if err := decodeInto(resp.Body, &data); err != nil {
		return response.Fail(c, apperr.InternalWithError(err), meta)
	}
	return response.OK(c, data, meta)
}

func (h *ProxyHandler) meta(c *fiber.Ctx, elapsed time.Duration) response.Metadata {
	requestID, _ := c.Locals("request_id").(string)
	return response.Metadata{RequestID: requestID, Timestamp: time.Now().UTC(), ProcessingTime: elapsed}
}
