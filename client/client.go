// Package client lets dependent services delegate trust decisions to the
// identity service. It provides the remote Verifier used at request time,
// plus chi-compatible middleware that turns verification verdicts into
// authorization decisions.
//
// The two failure modes stay distinct all the way to the HTTP status the
// end client sees: a negative verdict is ErrUnauthorized (401), while a
// transport or timeout failure is ErrBackendUnavailable (503). Conflating
// them would either fail closed on an outage or fail open on fraud.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrUnauthorized means the identity service completed the check and
	// rejected the key.
	ErrUnauthorized = errors.New("invalid api key")

	// ErrBackendUnavailable means the check could not be completed at all.
	ErrBackendUnavailable = errors.New("identity service unavailable")
)

// Role mirrors the identity service's closed role set. It is re-declared
// here so consumers of this package never handle raw role strings.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSupport  Role = "support"
	RoleCustomer Role = "customer"
)

// UserInfo is the identity bound to a validated API key.
type UserInfo struct {
	ID                 int64  `json:"id"`
	Email              string `json:"email"`
	Role               Role   `json:"role"`
	SubscriptionStatus string `json:"subscription_status"`
}

// Verifier resolves a presented API key to an identity. The HTTP-backed
// Client is the production implementation; Static serves tests.
type Verifier interface {
	Verify(ctx context.Context, apiKey string) (*UserInfo, error)
}

// Client calls the identity service's /validate endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default 5s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient substitutes the underlying HTTP client entirely.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Client for the identity service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type validateRequest struct {
	APIKey string `json:"api_key"`
}

type validateResponse struct {
	Valid bool      `json:"valid"`
	User  *UserInfo `json:"user"`
	Error string    `json:"error"`
}

// Verify posts the key to /validate and maps the outcome. Any failure to
// complete the round trip, or a structurally broken response, wraps
// ErrBackendUnavailable; only a completed negative verdict wraps
// ErrUnauthorized.
func (c *Client) Verify(ctx context.Context, apiKey string) (*UserInfo, error) {
	payload, err := json.Marshal(validateRequest{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("marshal validate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/validate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: validate returned %s", ErrBackendUnavailable, resp.Status)
	}

	var verdict validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("%w: decode validate response: %v", ErrBackendUnavailable, err)
	}

	if !verdict.Valid {
		return nil, ErrUnauthorized
	}
	if verdict.User == nil {
		return nil, fmt.Errorf("%w: valid verdict without user", ErrBackendUnavailable)
	}
	switch verdict.User.Role {
	case RoleAdmin, RoleSupport, RoleCustomer:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrBackendUnavailable, verdict.User.Role)
	}
	return verdict.User, nil
}

// Static is an in-memory Verifier for tests. Keys map directly to the
// identities they authenticate; Err, when set, simulates an unreachable
// backend.
type Static struct {
	Users map[string]UserInfo
	Err   error
}

// NewStatic creates an empty Static verifier.
func NewStatic() *Static {
	return &Static{Users: make(map[string]UserInfo)}
}

// Add registers a key-to-identity binding.
func (s *Static) Add(apiKey string, user UserInfo) {
	s.Users[apiKey] = user
}

// Verify implements Verifier.
func (s *Static) Verify(ctx context.Context, apiKey string) (*UserInfo, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	u, ok := s.Users[apiKey]
	if !ok {
		return nil, ErrUnauthorized
	}
	return &u, nil
}
