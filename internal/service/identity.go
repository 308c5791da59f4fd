// Package service implements the credential lifecycle: key validation, the
// activation-code exchange, and public registration. Handlers and the CLI
// sit on top of it; the store and secret generator sit below.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/curadesk/identity/internal/email"
	"github.com/curadesk/identity/internal/model"
	"github.com/curadesk/identity/internal/secret"
	"github.com/curadesk/identity/internal/store"
)

var (
	// ErrInvalidKey covers both unknown and revoked keys. The two cases
	// are deliberately indistinguishable to the caller.
	ErrInvalidKey = errors.New("invalid or revoked api key")

	// ErrInvalidOrUsedCode covers codes that never existed, were already
	// exchanged, or were superseded by a later issuance. Deliberately one
	// error for all three.
	ErrInvalidOrUsedCode = errors.New("invalid or already used activation code")

	// ErrEmailNotConfigured is returned by Register when no delivery
	// collaborator is wired up. This is the only registration failure the
	// network caller is allowed to observe.
	ErrEmailNotConfigured = errors.New("email delivery not configured")
)

// Identity bundles the credential operations exposed over HTTP.
type Identity struct {
	store  *store.Store
	mailer email.Sender // nil when delivery is unconfigured
	logger *slog.Logger
}

// New creates the identity service. mailer may be nil; Register then fails
// with ErrEmailNotConfigured.
func New(st *store.Store, mailer email.Sender, logger *slog.Logger) *Identity {
	return &Identity{store: st, mailer: mailer, logger: logger}
}

// Validate resolves a presented API key to its owning user. Read-only and
// side-effect free. Unknown and revoked keys both return ErrInvalidKey so
// a probing caller learns nothing about key lifecycle state.
func (s *Identity) Validate(ctx context.Context, apiKey string) (*model.User, error) {
	user, _, err := s.store.GetActiveKeyByHash(ctx, secret.Hash(apiKey))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("validate key: %w", err)
	}
	return user, nil
}

// Exchange consumes an activation code exactly once and mints a fresh API
// key for the code's owner. The full key is returned here and nowhere
// else. Concurrent exchanges of the same code settle inside the store: one
// caller wins, the rest get ErrInvalidOrUsedCode.
func (s *Identity) Exchange(ctx context.Context, code string) (string, error) {
	gen, err := secret.GenerateAPIKey()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}

	key, err := s.store.ExchangeCode(ctx, secret.Hash(code), gen.Hash, gen.Prefix)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidOrUsedCode
		}
		return "", fmt.Errorf("exchange code: %w", err)
	}

	s.logger.Info("activation code exchanged", "key_prefix", key.KeyPrefix, "user_id", key.UserID)
	return gen.Secret, nil
}

// Register provisions (or re-provisions) an account for an email address
// and sends a one-time activation code. Apart from the unconfigured-mailer
// case, every outcome is swallowed: the caller always gets the same
// generic acknowledgement, so registration cannot be used to probe for
// existing accounts. Internal failures are logged for operators only.
func (s *Identity) Register(ctx context.Context, rawEmail string) error {
	if s.mailer == nil {
		return ErrEmailNotConfigured
	}

	addr := strings.ToLower(strings.TrimSpace(rawEmail))
	if !validEmail(addr) {
		s.logger.Info("registration with invalid email rejected")
		return nil
	}

	user, err := s.store.GetUserByEmail(ctx, addr)
	switch {
	case err == nil:
		// Existing account: the new code supersedes any outstanding ones.
	case errors.Is(err, store.ErrNotFound):
		user, err = s.store.CreateUser(ctx, addr, model.RoleCustomer, model.SubscriptionTrial)
		if err != nil {
			s.logger.Error("registration: create user failed", "error", err)
			return nil
		}
	default:
		s.logger.Error("registration: user lookup failed", "error", err)
		return nil
	}

	gen, err := secret.GenerateActivationCode()
	if err != nil {
		s.logger.Error("registration: generate code failed", "error", err)
		return nil
	}
	if _, err := s.store.IssueActivationCode(ctx, user.ID, gen.Hash, gen.Prefix); err != nil {
		s.logger.Error("registration: issue code failed", "error", err, "user_id", user.ID)
		return nil
	}

	if err := s.mailer.SendActivationCode(ctx, addr, gen.Secret); err != nil {
		s.logger.Error("registration: email delivery failed", "error", err, "code_prefix", gen.Prefix)
	}
	return nil
}

// validEmail is a deliberately loose structural check: one @, non-empty
// local part, domain with a dot, sane length.
func validEmail(addr string) bool {
	if addr == "" || len(addr) > 254 {
		return false
	}
	at := strings.Index(addr, "@")
	if at <= 0 || at != strings.LastIndex(addr, "@") {
		return false
	}
	domain := addr[at+1:]
	return domain != "" && strings.Contains(domain, ".")
}
