package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Allower decides whether a request identified by key may proceed.
type Allower interface {
	Allow(key string) bool
}

// RateLimit rejects requests with 429 once the client IP runs out of tokens.
func RateLimit(lim Allower) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if lim == nil || lim.Allow(c.RealIP()) {
				return next(c)
			}
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"status":  http.StatusTooManyRequests,
				"message": "rate limit exceeded",
			})
		}
	}
}
