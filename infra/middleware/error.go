package middleware

import (
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/golfproxy/proxy/internal/obslog"
	"github.com/golfproxy/proxy/pkg/apperr"
	"github.com/golfproxy/proxy/pkg/response"
)

// ErrorHandler translates any error Fiber surfaces — *apperr.AppError,
// *fiber.Error, or anything else — into the response envelope of §6.
func ErrorHandler(devMode bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID, _ := c.Locals("request_id").(string)
		meta := response.Metadata{RequestID: requestID, Timestamp: time.Now().UTC()}

		if fiberErr, ok := err.(*fiber.Error); ok && !apperr.IsAppError(err) {
			err = apperr.New(mapHTTPStatusToCode(fiberErr.Code), fiberErr.Message, fiberErr.Code)
		}

		appErr := apperr.AsAppError(err)
		log := obslog.L(c.UserContext()).WithField("request_id", requestID).WithField("error_code", appErr.Code)
		if appErr.Status >= 500 {
			log.WithError(appErr.Err).Error(appErr.Message)
		} else {
			log.Warn(appErr.Message)
		}

		if !devMode && appErr.Status >= 500 {
			appErr = apperr.Internal("an unexpected error occurred")
		}

		return response.Fail(c, appErr, meta)
	}
}

// RequestID assigns X-Request-ID (honoring an inbound value) and stores it
// in Locals for downstream middleware and handlers.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Locals("request_id", requestID)
		c.Set("X-Request-ID", requestID)
		return c.Next()
	}
}

// CorrelationID mirrors RequestID's pattern for X-Correlation-ID.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := c.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		c.Locals("correlation_id", correlationID)
		c.Set("X-Correlation-ID", correlationID)

		ctx := obslog.WithRequestID(c.UserContext(), c.Locals("request_id").(string))
		ctx = obslog.WithCorrelationID(ctx, correlationID)
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// RequestLogger logs each request's outcome at Debug on success, Warn/Error
// on client/server errors.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		status := c.Response().StatusCode()
		log := obslog.L(c.UserContext()).
			WithField("method", c.Method()).
			WithField("path", c.Path()).
			WithField("status", status).
			WithDuration("duration", duration)

		switch {
		case status >= 500:
			log.Error("request failed")
		case status >= 400:
			log.Warn("request error")
		default:
			log.Debug("request completed")
		}
		return err
	}
}

// Recover catches panics, logs them with a stack dump, and returns the
// §6 error envelope instead of letting Fiber's default recover middleware
// produce a bare 500.
func Recover() fiber.Handler {
	return func(c *fiber.Ctx) error {
		defer func() {
			if r := recover(); r != nil {
				requestID, _ := c.Locals("request_id").(string)
				obslog.L(c.UserContext()).
					WithField("panic", r).
					WithField("stack", string(debug.Stack())).
					Error("panic recovered")

				meta := response.Metadata{RequestID: requestID, Timestamp: time.Now().UTC()}
				_ = response.Fail(c, apperr.Internal("an unexpected error occurred"), meta)
			}
		}()
		return c.Next()
	}
}

func mapHTTPStatusToCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return apperr.CodeBadRequest
	case fiber.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case fiber.StatusTooManyRequests:
		return apperr.CodeRateLimited
	case fiber.StatusBadGateway:
		return apperr.CodeUpstreamUnavailable
	case fiber.StatusServiceUnavailable:
		return apperr.CodeCircuitOpen
	default:
		return apperr.CodeInternal
	}
}
