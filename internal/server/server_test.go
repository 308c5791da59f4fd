package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/curadesk/identity/internal/model"
	"github.com/curadesk/identity/internal/service"
	"github.com/curadesk/identity/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// captureMailer records the last activation code instead of sending email,
// so workflow tests can walk the register -> activate -> validate path.
type captureMailer struct {
	mu   sync.Mutex
	to   string
	code string
}

func (m *captureMailer) SendActivationCode(ctx context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.to, m.code = to, code
	return nil
}

func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.code == "" {
		t.Fatal("no activation code was delivered")
	}
	return m.code
}

// testEnv holds the shared state for integration tests.
type testEnv struct {
	server *Server
	store  *store.Store
	mailer *captureMailer
}

// newTestEnv creates a fresh environment with an in-memory store and a
// fully wired Server.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open(store.Config{Dialect: store.DialectSQLite, Passphrase: "test-passphrase"})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mailer := &captureMailer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(st, mailer, logger)

	cfg := DefaultConfig()
	// Plenty of headroom so only the dedicated test trips the limiter.
	cfg.RateBurst = 100

	return &testEnv{
		server: New(cfg, st, svc, logger),
		store:  st,
		mailer: mailer,
	}
}

// do executes an HTTP request against the test server.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Health check tests
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/healthz", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
}

func TestReadyzDegraded(t *testing.T) {
	env := newTestEnv(t)
	env.store.Close()

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusServiceUnavailable)

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "degraded" {
		t.Errorf("status = %q, want %q", resp["status"], "degraded")
	}
}

// ---------------------------------------------------------------------------
// Full workflow: register -> activate -> validate
// ---------------------------------------------------------------------------

func TestFullWorkflow(t *testing.T) {
	env := newTestEnv(t)

	// Step 1: Register.
	rr := env.do(t, "POST", "/register", jsonBody(t, map[string]string{
		"email": "workflow@example.com",
	}), nil)
	assertStatus(t, rr, http.StatusOK)

	var regResp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	decodeJSON(t, rr, &regResp)
	if !regResp.Success || regResp.Message == "" {
		t.Fatalf("unexpected register response %+v", regResp)
	}

	// Step 2: Exchange the delivered code.
	code := env.mailer.lastCode(t)
	rr = env.do(t, "POST", "/activate", jsonBody(t, map[string]string{
		"activation_code": code,
	}), nil)
	assertStatus(t, rr, http.StatusOK)

	var actResp struct {
		Success bool   `json:"success"`
		APIKey  string `json:"api_key"`
	}
	decodeJSON(t, rr, &actResp)
	if !actResp.Success || actResp.APIKey == "" {
		t.Fatalf("unexpected activate response %+v", actResp)
	}

	// Step 3: The minted key validates to the registered identity.
	rr = env.do(t, "POST", "/validate", jsonBody(t, map[string]string{
		"api_key": actResp.APIKey,
	}), nil)
	assertStatus(t, rr, http.StatusOK)

	var valResp struct {
		Valid bool `json:"valid"`
		User  *struct {
			Email              string `json:"email"`
			Role               string `json:"role"`
			SubscriptionStatus string `json:"subscription_status"`
		} `json:"user"`
	}
	decodeJSON(t, rr, &valResp)
	if !valResp.Valid || valResp.User == nil {
		t.Fatalf("unexpected validate response %+v", valResp)
	}
	if valResp.User.Email != "workflow@example.com" {
		t.Errorf("email = %q", valResp.User.Email)
	}
	if valResp.User.Role != string(model.RoleCustomer) {
		t.Errorf("role = %q, want customer", valResp.User.Role)
	}
	if valResp.User.SubscriptionStatus != string(model.SubscriptionTrial) {
		t.Errorf("subscription_status = %q, want trial", valResp.User.SubscriptionStatus)
	}

	// Step 4: The code is spent; a replay fails generically.
	rr = env.do(t, "POST", "/activate", jsonBody(t, map[string]string{
		"activation_code": code,
	}), nil)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &actResp)
	if actResp.Success {
		t.Error("spent code must not exchange again")
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestRateLimit(t *testing.T) {
	st, err := store.Open(store.Config{Dialect: store.DialectSQLite, Passphrase: "test-passphrase"})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(st, nil, logger)

	cfg := DefaultConfig()
	cfg.RateBurst = 3
	srv := New(cfg, st, svc, logger)

	var limited bool
	for i := 0; i < cfg.RateBurst+1; i++ {
		req := httptest.NewRequest("POST", "/validate",
			bytes.NewBufferString(`{"api_key":"sk_probe_key"}`))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		srv.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Errorf("expected a 429 after %d requests from one IP", cfg.RateBurst)
	}

	// Health probes sit outside the limited group.
	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	assertStatus(t, rr, http.StatusOK)
}

// ---------------------------------------------------------------------------
// Routing and CORS
// ---------------------------------------------------------------------------

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/validate", nil, nil)
	if rr.Code != http.StatusMethodNotAllowed && rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 405 or 404", rr.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/nope", nil, nil)
	assertStatus(t, rr, http.StatusNotFound)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "OPTIONS", "/validate", nil, map[string]string{
		"Origin":                         "http://localhost:3000",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "Content-Type,X-API-Key",
	})

	if rr.Code < 200 || rr.Code >= 300 {
		t.Errorf("CORS preflight status = %d, want 2xx", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected Access-Control-Allow-Origin header")
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/healthz", nil, nil)
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}
}
