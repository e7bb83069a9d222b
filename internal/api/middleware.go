package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	UserHeader      = "X-User-ID"
	RequestIDHeader = "X-Request-ID"

	localUser      = "user_id"
	localRequestID = "request_id"
)

// RequestLogger tags each request with an id and logs its outcome.
func RequestLogger(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := uuid.NewString()
		c.Locals(localRequestID, requestID)
		c.Set(RequestIDHeader, requestID)

		err := c.Next()

		status := c.Response().StatusCode()
		var ev *zerolog.Event
		switch {
		case err != nil || status >= 500:
			ev = log.Error().Err(err)
		case status >= 400:
			ev = log.Warn()
		default:
			ev = log.Info()
		}
		ev.Str("request_id", requestID).
			Str("method", c.Method()).
			Str("uri", c.OriginalURL()).
			Int("status", status).
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Str("client_ip", c.IP()).
			Msg("request")
		return err
	}
}

// RequireUser rejects requests without the identity header set by the auth
// gateway.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := strings.TrimSpace(c.Get(UserHeader))
		if user == "" {
			return RespondWithError(c, fiber.StatusUnauthorized, "missing "+UserHeader+" header")
		}
		c.Locals(localUser, user)
		return c.Next()
	}
}

func userID(c *fiber.Ctx) string {
	s, _ := c.Locals(localUser).(string)
	return s
}
