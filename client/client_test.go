package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeIdentityServer mimics the identity service's /validate endpoint with
// a canned response.
func fakeIdentityServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/validate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifySuccess(t *testing.T) {
	srv := fakeIdentityServer(t, http.StatusOK,
		`{"valid":true,"user":{"id":7,"email":"alice@x.com","role":"support","subscription_status":"active"}}`)

	user, err := New(srv.URL).Verify(context.Background(), "sk_test_key")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if user.ID != 7 || user.Email != "alice@x.com" || user.Role != RoleSupport {
		t.Errorf("unexpected identity %+v", user)
	}
}

func TestVerifyRejected(t *testing.T) {
	srv := fakeIdentityServer(t, http.StatusOK,
		`{"valid":false,"error":"Invalid or revoked API key"}`)

	_, err := New(srv.URL).Verify(context.Background(), "sk_revoked")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerifyBackendFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"http 500", http.StatusInternalServerError, "boom"},
		{"rate limited", http.StatusTooManyRequests, "Too Many Requests"},
		{"garbage body", http.StatusOK, "<html>proxy error</html>"},
		{"valid without user", http.StatusOK, `{"valid":true}`},
		{"unknown role", http.StatusOK, `{"valid":true,"user":{"id":1,"email":"a@b.c","role":"superuser"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := fakeIdentityServer(t, tc.status, tc.body)
			_, err := New(srv.URL).Verify(context.Background(), "sk_any")
			if !errors.Is(err, ErrBackendUnavailable) {
				t.Errorf("expected ErrBackendUnavailable, got %v", err)
			}
			if errors.Is(err, ErrUnauthorized) {
				t.Error("backend failure must never read as unauthorized")
			}
		})
	}
}

func TestVerifyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Verify(context.Background(), "sk_any")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}

func testVerifier() *Static {
	v := NewStatic()
	v.Add("admin-key", UserInfo{ID: 1, Email: "admin@x.com", Role: RoleAdmin, SubscriptionStatus: "active"})
	v.Add("customer-key", UserInfo{ID: 2, Email: "cust@x.com", Role: RoleCustomer, SubscriptionStatus: "trial"})
	return v
}

func TestRequireUser(t *testing.T) {
	var seen *UserContext
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	protected := RequireUser(testVerifier())(inner)

	cases := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"unknown key", "nope", http.StatusUnauthorized},
		{"customer key", "customer-key", http.StatusNoContent},
		{"admin key", "admin-key", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/tickets", nil)
			if tc.key != "" {
				req.Header.Set(HeaderAPIKey, tc.key)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusNoContent && seen == nil {
				t.Error("handler ran without a UserContext")
			}
			if tc.wantStatus != http.StatusNoContent && seen != nil {
				t.Error("handler must not run on rejected requests")
			}
		})
	}
}

func TestRequireUserContextContents(t *testing.T) {
	protected := RequireUser(testVerifier())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFrom(r.Context())
		if !ok {
			t.Fatal("no UserContext")
		}
		if u.UserID != 2 || u.Email != "cust@x.com" || u.Role != RoleCustomer {
			t.Errorf("unexpected context %+v", u)
		}
		if u.IsAdmin() {
			t.Error("customer must not read as admin")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAPIKey, "customer-key")
	protected.ServeHTTP(httptest.NewRecorder(), req)
}

func TestRequireAdmin(t *testing.T) {
	var sawAdmin *AdminContext
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAdmin, _ = AdminFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	protected := RequireAdmin(testVerifier())(inner)

	// A valid customer key authenticates but is not authorized.
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(HeaderAPIKey, "customer-key")
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("customer status = %d, want 403", rec.Code)
	}

	// An unknown key is 401, not 403.
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(HeaderAPIKey, "nope")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown key status = %d, want 401", rec.Code)
	}

	// Admin passes with both contexts attached.
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(HeaderAPIKey, "admin-key")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin status = %d, want 204", rec.Code)
	}
	if sawAdmin == nil || sawAdmin.UserID != 1 || sawAdmin.Email != "admin@x.com" {
		t.Errorf("unexpected AdminContext %+v", sawAdmin)
	}
}

func TestMiddlewareBackendDown(t *testing.T) {
	v := NewStatic()
	v.Err = errors.New("connection refused")

	for name, gate := range map[string]func(http.Handler) http.Handler{
		"RequireUser":  RequireUser(v),
		"RequireAdmin": RequireAdmin(v),
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(HeaderAPIKey, "any")
			rec := httptest.NewRecorder()
			gate(http.NotFoundHandler()).ServeHTTP(rec, req)
			if rec.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want 503", rec.Code)
			}
		})
	}
}
