package middleware

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
)

// SecurityHeadersConfig controls the transport-dependent headers.
// HSTS is only sent when HSTSMaxAge is positive, so plain-HTTP development
// servers do not pin browsers to HTTPS.
type SecurityHeadersConfig struct {
	HSTSMaxAge time.Duration
}

var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
}

// SecurityHeaders sets response headers for a JSON API serving patient data.
// Readings and report downloads are never cached.
func SecurityHeaders(cfg SecurityHeadersConfig) echo.MiddlewareFunc {
	var hsts string
	if cfg.HSTSMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d; includeSubDomains", int64(cfg.HSTSMaxAge/time.Second))
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range apiHeaders {
				h.Set(kv[0], kv[1])
			}
			if hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}
			return next(c)
		}
	}
}
