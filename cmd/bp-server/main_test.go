package main

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/myhomebp/myhomebp/internal/config"
	"github.com/myhomebp/myhomebp/internal/platform/auth"
	"github.com/myhomebp/myhomebp/internal/platform/notification"
)

const testSecret = "test-secret-test-secret-test-secret"

func testConfig() *config.Config {
	return &config.Config{
		Env:               "test",
		JWTSecret:         testSecret,
		JWTIssuer:         "myhomebp",
		TokenTTL:          time.Hour,
		AdminEmail:        "admin@example.com",
		AdminPasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		CORSOrigins:       []string{"http://localhost:3000"},
		RateLimitRPS:      1000,
		RateLimitBurst:    1000,
		TimeZone:          "UTC",
		MailFrom:          "reports@example.com",
	}
}

// newTestServer builds the router without a database. Only routes that do
// not reach a repository may be exercised.
func newTestServer(t *testing.T) (*echo.Echo, *auth.TokenIssuer) {
	t.Helper()
	store := auth.NewMemoryRevocationStore(time.Minute)
	t.Cleanup(store.Close)

	cfg := testConfig()
	e, err := newServer(cfg, nil, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	return e, auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.TokenTTL)
}

func serve(e *echo.Echo, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func issue(t *testing.T, tokens *auth.TokenIssuer, roles ...string) string {
	t.Helper()
	issued, err := tokens.Issue("7b0e2f4e-8f51-4a55-9a0b-6d0c2b7b8c11", roles...)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return issued.Token
}

func TestNewServer_Routes(t *testing.T) {
	e, _ := newTestServer(t)

	routes := make(map[string]bool)
	for _, r := range e.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	expected := []string{
		"GET /health",
		"GET /health/db",
		"POST /api/v1/blood-pressure/record",
		"GET /api/v1/blood-pressure/readings",
		"GET /api/v1/blood-pressure/averages",
		"POST /api/v1/auth/register",
		"POST /api/v1/auth/login",
		"GET /api/v1/auth/me",
		"POST /api/v1/auth/logout",
		"POST /api/v1/auth/logout-all",
		"POST /api/v1/admin/login",
		"GET /api/v1/admin/me",
		"GET /api/v1/patient/dashboard",
		"GET /api/v1/clinics/nearby",
		"POST /api/v1/admin/doctors",
		"POST /api/v1/reports/generate",
		"GET /api/v1/reports/:id/download",
		"GET /api/v1/admin/notifications/stats",
	}
	for _, route := range expected {
		if !routes[route] {
			t.Errorf("missing route: %s", route)
		}
	}
}

func TestNewServer_PublicRoutesExist(t *testing.T) {
	e, _ := newTestServer(t)

	routes := make(map[string]bool)
	for _, r := range e.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	for _, r := range e.Routes() {
		if !auth.IsPublicRoute(r.Method, r.Path) {
			continue
		}
		if strings.Contains(r.Path, "/reports") || strings.Contains(r.Path, "/blood-pressure") {
			t.Errorf("patient route %s %s must not be public", r.Method, r.Path)
		}
	}
	for _, route := range []string{"POST /api/v1/auth/login", "GET /api/v1/clinics", "GET /health"} {
		method, path, _ := strings.Cut(route, " ")
		if !auth.IsPublicRoute(method, path) || !routes[route] {
			t.Errorf("%s should be a registered public route", route)
		}
	}
}

func TestNewServer_Health(t *testing.T) {
	e, _ := newTestServer(t)

	rec := serve(e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["status"] != "ok" || body["version"] != version {
		t.Errorf("unexpected body %v", body)
	}
	if rec.Header().Get("X-Content-Type-Options") == "" {
		t.Error("expected security headers on responses")
	}
}

func TestNewServer_RequiresToken(t *testing.T) {
	e, _ := newTestServer(t)

	rec := serve(e, http.MethodGet, "/api/v1/blood-pressure/readings", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Status != "error" {
		t.Errorf("expected error envelope, got %q", body.Status)
	}
}

func TestNewServer_RoleSeparation(t *testing.T) {
	e, tokens := newTestServer(t)

	if rec := serve(e, http.MethodPost, "/api/v1/admin/clinics", issue(t, tokens, auth.RolePatient)); rec.Code != http.StatusForbidden {
		t.Errorf("patient on admin route: expected 403, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/api/v1/reports/summary", issue(t, tokens, auth.RoleAdmin)); rec.Code != http.StatusForbidden {
		t.Errorf("admin on patient route: expected 403, got %d", rec.Code)
	}
}

func TestNewServer_LogoutRevokesToken(t *testing.T) {
	e, tokens := newTestServer(t)
	token := issue(t, tokens, auth.RolePatient)

	if rec := serve(e, http.MethodPost, "/api/v1/auth/logout", token); rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := serve(e, http.MethodPost, "/api/v1/auth/logout", token); rec.Code != http.StatusUnauthorized {
		t.Errorf("revoked token: expected 401, got %d", rec.Code)
	}
}

func TestNewServer_BadTimezone(t *testing.T) {
	cfg := testConfig()
	cfg.TimeZone = "Nowhere/Special"
	store := auth.NewMemoryRevocationStore(0)
	defer store.Close()
	if _, err := newServer(cfg, nil, store, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestNewMailSender(t *testing.T) {
	cfg := testConfig()
	sender, err := newMailSender(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sender.(*notification.LogSender); !ok {
		t.Errorf("expected the log fallback without SMTP_HOST, got %T", sender)
	}

	cfg.SMTPHost = "smtp.example.com"
	cfg.SMTPPort = 587
	sender, err = newMailSender(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sender.(*notification.SMTPSender); !ok {
		t.Errorf("expected an SMTP sender, got %T", sender)
	}
}

func TestMigrationsFS(t *testing.T) {
	embedded := migrationsFS(&config.Config{})
	names, err := fs.Glob(embedded, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) < 4 {
		t.Errorf("expected embedded migrations, got %v", names)
	}

	dir := t.TempDir()
	onDisk := migrationsFS(&config.Config{MigrationsDir: dir})
	names, err = fs.Glob(onDisk, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected empty directory, got %v", names)
	}
}
