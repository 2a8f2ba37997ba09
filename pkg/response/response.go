// Package response builds the proxy's external response envelope (spec §6):
// the same {success, data?, error?, metadata} shape for both success and
// error responses, over Fiber.
package response

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/golfproxy/proxy/pkg/apperr"
)

// Envelope is the wire shape returned by every proxy call.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    Metadata    `json:"metadata"`
}

// ErrorInfo is the error branch of Envelope.
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// RateLimitInfo reports the caller's remaining admission budget.
type RateLimitInfo struct {
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
}

// Metadata carries the request/cache/rate-limit bookkeeping every response
// exposes regardless of success or failure.
type Metadata struct {
	RequestID              string         `json:"requestId"`
	Timestamp              time.Time      `json:"timestamp"`
	ProcessingTime         time.Duration  `json:"processingTime"`
	Cached                 *bool          `json:"cached,omitempty"`
	CacheAge               *time.Duration `json:"cacheAge,omitempty"`
	CacheTier              *string        `json:"cacheTier,omitempty"`
	TransformationsApplied []string       `json:"transformationsApplied,omitempty"`
	RateLimit              *RateLimitInfo `json:"rateLimit,omitempty"`
}

// OK writes a successful envelope.
func OK(c *fiber.Ctx, data interface{}, meta Metadata) error {
	return c.Status(fiber.StatusOK).JSON(Envelope{Success: true, Data: data, Meta: meta})
}

// Fail writes a failed envelope derived from err, using apperr.GetHTTPStatus
// to pick the HTTP status and apperr.AsAppError to extract code/message.
func Fail(c *fiber.Ctx, err error, meta Metadata) error {
	appErr := apperr.AsAppError(err)
	if v, ok := appErr.Details["retry_after_seconds"]; ok {
		c.Set(fiber.HeaderRetryAfter, fmt.Sprint(v))
	}
	return c.Status(appErr.Status).JSON(Envelope{
		Success: false,
		Error: &ErrorInfo{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
		Meta: meta,
	})
}

func boolPtr(b bool) *bool                     { return &b }
func durationPtr(d time.Duration) *time.Duration { return &d }
func stringPtr(s string) *string               { return &s }

// Cached annotates meta with cache-hit bookkeeping; call before OK/Fail.
func (m Metadata) Cached(age time.Duration, tier string) Metadata {
	m.Cached = boolPtr(true)
	m.CacheAge = durationPtr(age)
	m.CacheTier = stringPtr(tier)
	return m
}

// Uncached marks meta as a cache miss.
func (m Metadata) Uncached() Metadata {
	m.Cached = boolPtr(false)
	return m
}

// WithRateLimit attaches rate-limit bookkeeping to meta.
func (m Metadata) WithRateLimit(remaining int, resetTime time.Time) Metadata {
	m.RateLimit = &RateLimitInfo{Remaining: remaining, ResetTime: resetTime}
	return m
}

// WithTransformations records which named transforms ran, for response
// debugging.
func (m Metadata) WithTransformations(names ...string) Metadata {
	m.TransformationsApplied = names
	return m
}
