package client

import (
	"context"
	"errors"
	"net/http"
)

// HeaderAPIKey is the header dependent services require on protected
// routes.
const HeaderAPIKey = "X-API-Key"

// UserContext is the authenticated caller attached to the request context
// by RequireUser.
type UserContext struct {
	UserID int64
	Email  string
	Role   Role
}

// IsAdmin reports whether the caller holds the admin role.
func (u *UserContext) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// AdminContext is the stricter identity attached by RequireAdmin. Holding
// one proves the caller authenticated and carries the admin role.
type AdminContext struct {
	UserID int64
	Email  string
}

type ctxKey int

const (
	userCtxKey ctxKey = iota
	adminCtxKey
)

// UserFrom extracts the authenticated user from the context.
func UserFrom(ctx context.Context) (*UserContext, bool) {
	u, ok := ctx.Value(userCtxKey).(*UserContext)
	return u, ok
}

// AdminFrom extracts the authenticated admin from the context.
func AdminFrom(ctx context.Context) (*AdminContext, bool) {
	a, ok := ctx.Value(adminCtxKey).(*AdminContext)
	return a, ok
}

// RequireUser authenticates the request through the verifier and attaches
// a UserContext. Missing or rejected keys end the request with 401;
// verification that could not complete ends it with 503. Protected
// business logic below this middleware can assume an authenticated caller.
func RequireUser(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := authenticate(w, r, v)
			if !ok {
				return
			}
			ctx := context.WithValue(r.Context(), userCtxKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin authenticates like RequireUser and additionally demands the
// admin role, answering 403 to callers who authenticated with any other
// role.
func RequireAdmin(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := authenticate(w, r, v)
			if !ok {
				return
			}
			if !user.IsAdmin() {
				writeError(w, http.StatusForbidden, "Admin access required")
				return
			}
			ctx := context.WithValue(r.Context(), userCtxKey, user)
			ctx = context.WithValue(ctx, adminCtxKey, &AdminContext{
				UserID: user.UserID,
				Email:  user.Email,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate performs the header extraction and remote verification
// shared by both gates. It writes the terminal response itself on failure.
func authenticate(w http.ResponseWriter, r *http.Request, v Verifier) (*UserContext, bool) {
	apiKey := r.Header.Get(HeaderAPIKey)
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-API-Key header")
		return nil, false
	}

	user, err := v.Verify(r.Context(), apiKey)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "Invalid API key")
			return nil, false
		}
		// Transport failures and anything unclassified: the check did not
		// complete, so the caller is not "unauthorized".
		writeError(w, http.StatusServiceUnavailable, "Identity service unavailable")
		return nil, false
	}

	return &UserContext{UserID: user.ID, Email: user.Email, Role: user.Role}, true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
