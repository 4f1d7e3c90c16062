package auth

import (
	"github.com/labstack/echo/v4"
)

// publicRoutes lists method and route pattern pairs reachable without a
// token: health checks, sign-in and the clinic directory.
var publicRoutes = map[string]bool{
	"GET /health":                          true,
	"GET /health/db":                       true,
	"POST /api/v1/auth/register":           true,
	"POST /api/v1/auth/login":              true,
	"POST /api/v1/admin/login":             true,
	"GET /api/v1/clinics":                  true,
	"GET /api/v1/clinics/search":           true,
	"GET /api/v1/clinics/nearby":           true,
	"GET /api/v1/clinics/:id":              true,
	"GET /api/v1/clinics/:id/doctors":      true,
	"GET /api/v1/specialities":             true,
	"GET /api/v1/specialities/:id":         true,
	"GET /api/v1/specialities/:id/doctors": true,
	"GET /api/v1/doctors":                  true,
	"GET /api/v1/doctors/:id":              true,
}

// AuthSkipper reports whether the matched route is public. Pass it as
// JWTConfig.Skipper.
func AuthSkipper(c echo.Context) bool {
	return IsPublicRoute(c.Request().Method, c.Path())
}

// IsPublicRoute reports whether method and route pattern are public.
func IsPublicRoute(method, path string) bool {
	return publicRoutes[method+" "+path]
}
