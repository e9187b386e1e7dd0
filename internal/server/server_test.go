package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"inkwell/internal/api"
	"inkwell/internal/auth"
	"inkwell/internal/blob"
	"inkwell/internal/observability/metrics"
	"inkwell/internal/storage"
)

func newTestServer(t *testing.T, rate RateLimitConfig) (*Server, *api.Handler, *storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	tokens, err := auth.NewTokenManager("test-secret")
	if err != nil {
		t.Fatalf("NewTokenManager error: %v", err)
	}
	blobs, err := blob.NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore error: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := api.NewHandler(store, tokens, blobs, logger)
	srv, err := New(handler, Config{
		Addr:      "127.0.0.1:0",
		RateLimit: rate,
		Logger:    logger,
		Metrics:   metrics.NewRecorder(),
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return srv, handler, store
}

func serveRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(recorder, req)
	return recorder
}

func operationBody(t *testing.T, operation string, args interface{}) *bytes.Reader {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{"operation": operation, "arguments": args})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return bytes.NewReader(payload)
}

func createUserThroughServer(t *testing.T, srv *Server, email string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/operations", operationBody(t, "createUser", map[string]string{
		"email":    email,
		"name":     "Max Tester",
		"password": "secret123",
	}))
	recorder := serveRequest(srv, req)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("createUser through server failed: %d (%s)", recorder.Code, recorder.Body.String())
	}
}

func loginThroughServer(t *testing.T, srv *Server, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/operations", operationBody(t, "login", map[string]string{
		"email":    email,
		"password": password,
	}))
	req.RemoteAddr = "203.0.113.7:4123"
	return serveRequest(srv, req)
}

func TestServerAttachesIdentityFromBearerToken(t *testing.T) {
	srv, _, _ := newTestServer(t, RateLimitConfig{})
	createUserThroughServer(t, srv, "max@test.com")

	login := loginThroughServer(t, srv, "max@test.com", "secret123")
	if login.Code != http.StatusOK {
		t.Fatalf("login failed: %d (%s)", login.Code, login.Body.String())
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(login.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/operations", operationBody(t, "status", nil))
	req.Header.Set("Authorization", "Bearer "+session.Token)
	recorder := serveRequest(srv, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected authenticated status, got %d (%s)", recorder.Code, recorder.Body.String())
	}
}

func TestServerDefersRejectionToOperations(t *testing.T) {
	srv, _, _ := newTestServer(t, RateLimitConfig{})
	createUserThroughServer(t, srv, "max@test.com")

	// An invalid token never blocks the request at the gate: public
	// operations still work, protected ones fail with their own 401.
	login := httptest.NewRequest(http.MethodPost, "/api/operations", operationBody(t, "login", map[string]string{
		"email":    "max@test.com",
		"password": "secret123",
	}))
	login.Header.Set("Authorization", "Bearer garbage")
	if recorder := serveRequest(srv, login); recorder.Code != http.StatusOK {
		t.Fatalf("public operation should survive a bad token, got %d", recorder.Code)
	}

	protected := httptest.NewRequest(http.MethodPost, "/api/operations", operationBody(t, "status", nil))
	protected.Header.Set("Authorization", "Bearer garbage")
	recorder := serveRequest(srv, protected)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 from the operation itself, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "Not authenticated!") {
		t.Fatalf("unexpected body: %s", recorder.Body.String())
	}
}

func TestServerSetsRequestIDAndSecurityHeaders(t *testing.T) {
	srv, _, _ := newTestServer(t, RateLimitConfig{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := serveRequest(srv, req)
	if recorder.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated request id")
	}
	if recorder.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected nosniff header")
	}
	if recorder.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("expected frame options header")
	}

	echoed := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	echoed.Header.Set("X-Request-Id", "abc-123")
	if got := serveRequest(srv, echoed).Header().Get("X-Request-Id"); got != "abc-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

func TestServerAnswersCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t, RateLimitConfig{})

	req := httptest.NewRequest(http.MethodOptions, "/api/operations", nil)
	req.Header.Set("Origin", "https://blog.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	recorder := serveRequest(srv, req)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected open origin policy")
	}
	if !strings.Contains(recorder.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Fatal("expected Authorization in allowed headers")
	}
}

func TestServerThrottlesLoginAttempts(t *testing.T) {
	srv, _, _ := newTestServer(t, RateLimitConfig{LoginLimit: 2, LoginWindow: 0})
	createUserThroughServer(t, srv, "max@test.com")

	for i := 0; i < 2; i++ {
		if recorder := loginThroughServer(t, srv, "max@test.com", "wrong-password"); recorder.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, recorder.Code)
		}
	}
	blocked := loginThroughServer(t, srv, "max@test.com", "wrong-password")
	if blocked.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after the limit, got %d", blocked.Code)
	}

	// Other operations are untouched by the login throttle.
	req := httptest.NewRequest(http.MethodPost, "/api/operations", operationBody(t, "createUser", map[string]string{
		"email":    "other@test.com",
		"name":     "Other Tester",
		"password": "secret123",
	}))
	req.RemoteAddr = "203.0.113.7:4123"
	if recorder := serveRequest(srv, req); recorder.Code != http.StatusCreated {
		t.Fatalf("non-login operation should pass, got %d (%s)", recorder.Code, recorder.Body.String())
	}
}

func TestServerGlobalRateLimit(t *testing.T) {
	srv, _, _ := newTestServer(t, RateLimitConfig{GlobalRPS: 1, GlobalBurst: 1})

	first := serveRequest(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if first.Code == http.StatusTooManyRequests {
		t.Fatalf("first request should pass, got %d", first.Code)
	}
	second := serveRequest(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the burst is spent, got %d", second.Code)
	}
}

func TestUnknownPathsReturnJSONNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, RateLimitConfig{})

	recorder := serveRequest(srv, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON envelope, got %q", ct)
	}
}

func TestIsLoginAttemptRestoresBody(t *testing.T) {
	body := `{"operation":"login","arguments":{"email":"max@test.com","password":"secret123"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/operations", strings.NewReader(body))
	if !isLoginAttempt(req) {
		t.Fatal("expected login attempt to be recognized")
	}
	restored, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read restored body: %v", err)
	}
	if string(restored) != body {
		t.Fatalf("body was not restored: %q", restored)
	}

	other := httptest.NewRequest(http.MethodPost, "/api/operations", strings.NewReader(`{"operation":"fetchPosts"}`))
	if isLoginAttempt(other) {
		t.Fatal("fetchPosts is not a login attempt")
	}
	wrongPath := httptest.NewRequest(http.MethodPost, "/healthz", strings.NewReader(body))
	if isLoginAttempt(wrongPath) {
		t.Fatal("only the dispatch path carries operations")
	}
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.9:1234"
	if got := extractClientIP(req); got != "198.51.100.9" {
		t.Fatalf("expected remote host, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 198.51.100.9")
	if got := extractClientIP(req); got != "203.0.113.5" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "192.0.2.1")
	if got := extractClientIP(req); got != "192.0.2.1" {
		t.Fatalf("expected real ip header, got %q", got)
	}
}
