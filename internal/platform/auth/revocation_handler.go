package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/myhomebp/myhomebp/internal/platform/response"
)

// SessionHandler ends sessions by revoking the caller's tokens.
type SessionHandler struct {
	store    RevocationStore
	tokenTTL time.Duration
	now      func() time.Time
}

func NewSessionHandler(store RevocationStore, tokenTTL time.Duration) *SessionHandler {
	return &SessionHandler{store: store, tokenTTL: tokenTTL, now: time.Now}
}

// RegisterRoutes mounts logout endpoints. They require an authenticated
// caller of any role.
func (h *SessionHandler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/auth", RequireRole(RolePatient, RoleAdmin))
	g.POST("/logout", h.Logout)
	g.POST("/logout-all", h.LogoutAll)
}

// Logout revokes the token used for this request.
func (h *SessionHandler) Logout(c echo.Context) error {
	claims := ClaimsFromContext(c.Request().Context())
	if claims == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	expiresAt := h.now().Add(h.tokenTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := h.store.Revoke(c.Request().Context(), claims.ID, expiresAt); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "logout failed").SetInternal(err)
	}
	return response.Success(c, http.StatusOK, "Logged out successfully", nil)
}

// LogoutAll revokes every token issued to the caller so far.
func (h *SessionHandler) LogoutAll(c echo.Context) error {
	claims := ClaimsFromContext(c.Request().Context())
	if claims == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	if err := h.store.RevokeUser(c.Request().Context(), claims.Subject, h.now(), h.tokenTTL); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "logout failed").SetInternal(err)
	}
	return response.Success(c, http.StatusOK, "Logged out from all devices", nil)
}
