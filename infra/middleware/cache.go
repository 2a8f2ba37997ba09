package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// cacheStatusKey is the fiber.Locals key a handler sets so CacheStatus can
// report the tier a response was served from.
const cacheStatusKey = "cache_status"

// CacheStatusHit records that a handler served data from tier (l1/l2/l3).
func CacheStatusHit(c *fiber.Ctx, tier string) {
	c.Locals(cacheStatusKey, "HIT:"+tier)
}

// CacheStatusStale records that a handler served a stale entry as a
// circuit-open fallback.
func CacheStatusStale(c *fiber.Ctx, tier string) {
	c.Locals(cacheStatusKey, "STALE:"+tier)
}

// CacheStatus writes X-Cache-Status (HIT:<tier>|STALE:<tier>|MISS), based on
// what the handler recorded via CacheStatusHit/CacheStatusStale; left unset,
// a request is reported MISS. It sets Cache-Control: no-store only for
// responses with status >= 400 or non-GET requests.
func CacheStatus() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status, _ := c.Locals(cacheStatusKey).(string)
		if status == "" {
			status = "MISS"
		}
		c.Set("X-Cache-Status", status)

		if c.Response().StatusCode() >= 400 || c.Method() != fiber.MethodGet {
			c.Set("Cache-Control", "no-store")
		}

		return err
	}
}

// NoCache forces no-cache headers, used ahead of routes that must never be
// served from an intermediary cache regardless of status.
func NoCache() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Set("Pragma", "no-cache")
		c.Set("Expires", "0")
		return c.Next()
	}
}

// MaxResponseSize flags oversized responses rather than truncating them,
// leaving the decision of what to do about it to an upstream proxy/CDN.
func MaxResponseSize(maxSize int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}
		if body := c.Response().Body(); len(body) > maxSize {
			c.Set("X-Truncated", "true")
			c.Set("X-Original-Size", fmt.Sprintf("%d", len(body)))
		}
		return nil
	}
}

// LastModified sets Last-Modified and honors If-Modified-Since, for any
// route backed by data with a meaningful modification time.
func LastModified(modTime time.Time) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Last-Modified", modTime.UTC().Format(time.RFC1123))

		if ifModifiedSince := c.Get("If-Modified-Since"); ifModifiedSince != "" {
			if clientTime, err := time.Parse(time.RFC1123, ifModifiedSince); err == nil && !modTime.After(clientTime) {
				return c.SendStatus(fiber.StatusNotModified)
			}
		}
		return c.Next()
	}
}
