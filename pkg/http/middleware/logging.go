package middleware

import (
	"time"

	"CryptoSignal/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging writes one debug line per request. Failures and slow
// requests are reported by Metrics at a higher level.
func RequestLogging(l *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			l.Debug("http request",
				logger.String("method", req.Method),
				logger.String("route", routeOf(c)),
				logger.String("remote", c.RealIP()),
				logger.Int("status", c.Response().Status),
				logger.Duration("duration_ms", time.Since(start)),
			)
			return nil
		}
	}
}

// routeOf prefers the registered route template to keep labels bounded.
func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}
