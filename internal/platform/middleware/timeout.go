package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// TimeoutConfig sets request deadlines. PerRoute is keyed by the registered
// route path (c.Path()), e.g. "/api/v1/reports/generate". A zero deadline
// disables the timeout for that request.
type TimeoutConfig struct {
	Default  time.Duration
	PerRoute map[string]time.Duration
}

func (cfg TimeoutConfig) deadline(path string) time.Duration {
	if d, ok := cfg.PerRoute[path]; ok {
		return d
	}
	return cfg.Default
}

// RequestTimeout puts a deadline on the request context. Handlers run on the
// calling goroutine; a handler error caused by the deadline becomes a 504.
func RequestTimeout(cfg TimeoutConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			timeout := cfg.deadline(c.Path())
			if timeout <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return echo.NewHTTPError(http.StatusGatewayTimeout, "Request timed out").SetInternal(err)
			}
			return err
		}
	}
}
