package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/myhomebp/myhomebp/internal/platform/response"
)

const adminSubjectPrefix = "admin:"

// AdminCredentials is the single configured administrator account.
type AdminCredentials struct {
	Email        string
	PasswordHash string
}

// AdminHandler signs administrators in.
type AdminHandler struct {
	creds  AdminCredentials
	tokens *TokenIssuer
}

func NewAdminHandler(creds AdminCredentials, tokens *TokenIssuer) *AdminHandler {
	return &AdminHandler{creds: creds, tokens: tokens}
}

func (h *AdminHandler) RegisterRoutes(api *echo.Group) {
	api.POST("/admin/login", h.Login)
	api.GET("/admin/me", h.Me, RequireRole(RoleAdmin))
}

type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AdminHandler) Login(c echo.Context) error {
	var req adminLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	v := response.NewValidationError()
	if strings.TrimSpace(req.Email) == "" {
		v.Add("email", "The email field is required.")
	}
	if req.Password == "" {
		v.Add("password", "The password field is required.")
	}
	if err := v.Err(); err != nil {
		return err
	}

	if h.creds.Email == "" || h.creds.PasswordHash == "" ||
		!strings.EqualFold(strings.TrimSpace(req.Email), h.creds.Email) ||
		CheckSecret(h.creds.PasswordHash, req.Password) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	issued, err := h.tokens.Issue(adminSubjectPrefix+strings.ToLower(h.creds.Email), RoleAdmin)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not issue token").SetInternal(err)
	}
	return response.Success(c, http.StatusOK, "Login successful", map[string]interface{}{
		"email": h.creds.Email,
		"token": issued,
	})
}

// Me returns the signed-in administrator from the token claims.
func (h *AdminHandler) Me(c echo.Context) error {
	claims := ClaimsFromContext(c.Request().Context())
	if claims == nil || !claims.HasRole(RoleAdmin) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthenticated")
	}
	data := map[string]interface{}{
		"id":    claims.Subject,
		"email": strings.TrimPrefix(claims.Subject, adminSubjectPrefix),
		"roles": claims.Roles,
	}
	if claims.ExpiresAt != nil {
		data["expires_at"] = claims.ExpiresAt.Time
	}
	return response.Success(c, http.StatusOK, "", data)
}
