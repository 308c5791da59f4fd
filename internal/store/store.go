// Package store is the credential store for the identity service. It
// persists users, hashed API keys, and hashed activation codes in a
// relational database (SQLite by default, Postgres for shared deployments)
// and exposes the atomic operations the rest of the service is built on.
// Plaintext secrets never enter this package; callers pass hashes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/curadesk/identity/internal/model"
)

// Dialect selects the backing database flavor.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Config describes how to open the store. For SQLite, DSN is a file path
// (empty means in-memory, used by tests). For Postgres, DSN is a pgx
// connection string. Passphrase protects the PII columns at rest.
type Config struct {
	Dialect    Dialect
	DSN        string
	Passphrase string
}

// Store wraps the database handle and the column cipher. Every exported
// method is a single serialized unit of work against the store.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	box     *box
}

// Open connects to the configured database, applies migrations, and
// prepares the column cipher.
func Open(cfg Config) (*Store, error) {
	b, err := newBox(cfg.Passphrase)
	if err != nil {
		return nil, err
	}

	var db *sqlx.DB
	switch cfg.Dialect {
	case DialectSQLite, "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:?_journal_mode=WAL"
		} else {
			if err := os.MkdirAll(filepath.Dir(dsn), 0700); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
		db, err = sqlx.Connect("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		// SQLite doesn't support concurrent writers; one connection also
		// gives every logical operation an exclusive scope.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	case DialectPostgres:
		db, err = sqlx.Connect("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown store dialect %q", cfg.Dialect)
	}

	s := &Store{db: db, dialect: cfg.Dialect, box: b}
	if s.dialect == "" {
		s.dialect = DialectSQLite
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// insertID runs an INSERT and returns the generated row id, papering over
// the LastInsertId / RETURNING split between the two dialects.
func (s *Store) insertID(ctx context.Context, q string, args ...any) (int64, error) {
	if s.dialect == DialectPostgres {
		var id int64
		err := s.db.QueryRowxContext(ctx, s.db.Rebind(q+" RETURNING id"), args...).Scan(&id)
		if err != nil {
			return 0, classifyErr(err)
		}
		return id, nil
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, classifyErr(err)
	}
	return res.LastInsertId()
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// userRow maps 1:1 to the users table. Emails live in an encrypted column
// plus a deterministic index column, so the row never carries the address
// in the clear.
type userRow struct {
	ID                 int64     `db:"id"`
	EmailCiphertext    string    `db:"email_ciphertext"`
	EmailIndex         string    `db:"email_index"`
	Role               string    `db:"role"`
	SubscriptionStatus string    `db:"subscription_status"`
	CreatedAt          time.Time `db:"created_at"`
}

func (s *Store) userFromRow(r userRow) (*model.User, error) {
	email, err := s.box.open(r.EmailCiphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt email for user %d: %w", r.ID, err)
	}
	role, err := model.ParseRole(r.Role)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", r.ID, err)
	}
	status, err := model.ParseSubscriptionStatus(r.SubscriptionStatus)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", r.ID, err)
	}
	return &model.User{
		ID:                 r.ID,
		Email:              email,
		Role:               role,
		SubscriptionStatus: status,
		CreatedAt:          r.CreatedAt,
	}, nil
}

// CreateUser inserts a new user. Returns ErrConflict if the email is
// already registered.
func (s *Store) CreateUser(ctx context.Context, email string, role model.Role, status model.SubscriptionStatus) (*model.User, error) {
	sealed, err := s.box.seal(email)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	const q = `INSERT INTO users (email_ciphertext, email_index, role, subscription_status, created_at)
		VALUES (?, ?, ?, ?, ?)`
	id, err := s.insertID(ctx, s.db.Rebind(q), sealed, s.box.index(email), string(role), string(status), now)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return &model.User{
		ID:                 id,
		Email:              email,
		Role:               role,
		SubscriptionStatus: status,
		CreatedAt:          now,
	}, nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT * FROM users WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return s.userFromRow(row)
}

// GetUserByEmail performs the deterministic-index lookup for an address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT * FROM users WHERE email_index = ?"), s.box.index(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return s.userFromRow(row)
}

// ListUsers returns all users ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM users ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]model.User, 0, len(rows))
	for _, r := range rows {
		u, err := s.userFromRow(r)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// InsertAPIKey persists a freshly generated key hash for a user. Returns
// ErrConflict on a hash collision and ErrNotFound when the user does not
// exist.
func (s *Store) InsertAPIKey(ctx context.Context, keyHash, keyPrefix string, userID int64) (*model.APIKey, error) {
	now := time.Now().UTC()
	const q = `INSERT INTO api_keys (key_hash, key_prefix, user_id, created_at)
		VALUES (?, ?, ?, ?)`
	id, err := s.insertID(ctx, s.db.Rebind(q), keyHash, keyPrefix, userID, now)
	if err != nil {
		return nil, fmt.Errorf("insert api key: %w", err)
	}
	return &model.APIKey{
		ID:        id,
		KeyHash:   keyHash,
		KeyPrefix: keyPrefix,
		UserID:    userID,
		CreatedAt: now,
	}, nil
}

// activeKeyRow is the joined shape returned by GetActiveKeyByHash.
type activeKeyRow struct {
	UserID             int64      `db:"user_id"`
	EmailCiphertext    string     `db:"email_ciphertext"`
	EmailIndex         string     `db:"email_index"`
	Role               string     `db:"role"`
	SubscriptionStatus string     `db:"subscription_status"`
	UserCreatedAt      time.Time  `db:"user_created_at"`
	KeyID              int64      `db:"key_id"`
	KeyHash            string     `db:"key_hash"`
	KeyPrefix          string     `db:"key_prefix"`
	KeyCreatedAt       time.Time  `db:"key_created_at"`
	RevokedAt          *time.Time `db:"revoked_at"`
}

// GetActiveKeyByHash resolves a key hash to its owning user. Only keys with
// revoked_at IS NULL match; the join is always performed so a key can never
// authenticate without its owner row.
func (s *Store) GetActiveKeyByHash(ctx context.Context, keyHash string) (*model.User, *model.APIKey, error) {
	const q = `SELECT
			u.id AS user_id, u.email_ciphertext, u.email_index, u.role,
			u.subscription_status, u.created_at AS user_created_at,
			k.id AS key_id, k.key_hash, k.key_prefix,
			k.created_at AS key_created_at, k.revoked_at
		FROM api_keys k
		JOIN users u ON k.user_id = u.id
		WHERE k.key_hash = ? AND k.revoked_at IS NULL`

	var row activeKeyRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(q), keyHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("get active key: %w", err)
	}

	user, err := s.userFromRow(userRow{
		ID:                 row.UserID,
		EmailCiphertext:    row.EmailCiphertext,
		EmailIndex:         row.EmailIndex,
		Role:               row.Role,
		SubscriptionStatus: row.SubscriptionStatus,
		CreatedAt:          row.UserCreatedAt,
	})
	if err != nil {
		return nil, nil, err
	}
	key := &model.APIKey{
		ID:        row.KeyID,
		KeyHash:   row.KeyHash,
		KeyPrefix: row.KeyPrefix,
		UserID:    row.UserID,
		CreatedAt: row.KeyCreatedAt,
		RevokedAt: row.RevokedAt,
	}
	return user, key, nil
}

// RevokeKeyByPrefix sets revoked_at on every active key with the given
// prefix. Zero matches is a lookup failure (ErrNotFound), not corrupt data.
func (s *Store) RevokeKeyByPrefix(ctx context.Context, prefix string) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE api_keys SET revoked_at = ? WHERE key_prefix = ? AND revoked_at IS NULL"),
		now, prefix)
	if err != nil {
		return 0, fmt.Errorf("revoke key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke key rows affected: %w", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

// ListAPIKeys returns all keys ordered by id. Hashes ride along internally
// but are never serialized.
func (s *Store) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	if err := s.db.SelectContext(ctx, &keys, "SELECT * FROM api_keys ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// ---------------------------------------------------------------------------
// Activation codes
// ---------------------------------------------------------------------------

// InvalidateUnusedCodes marks every unused code for a user as used at the
// given instant, rendering them permanently inert. Returns the number of
// codes superseded.
func (s *Store) InvalidateUnusedCodes(ctx context.Context, userID int64, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE activation_codes SET used_at = ? WHERE user_id = ? AND used_at IS NULL"),
		now.UTC(), userID)
	if err != nil {
		return 0, fmt.Errorf("invalidate codes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("invalidate codes rows affected: %w", err)
	}
	return n, nil
}

// IssueActivationCode supersedes all of the user's unused codes and inserts
// a new one, in one transaction, so no moment exists where two codes for
// the same user are live.
func (s *Store) IssueActivationCode(ctx context.Context, userID int64, codeHash, codePrefix string) (*model.ActivationCode, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		tx.Rebind("UPDATE activation_codes SET used_at = ? WHERE user_id = ? AND used_at IS NULL"),
		now, userID); err != nil {
		return nil, fmt.Errorf("supersede codes: %w", err)
	}

	const q = `INSERT INTO activation_codes (code_hash, code_prefix, user_id, created_at)
		VALUES (?, ?, ?, ?)`
	var id int64
	if s.dialect == DialectPostgres {
		if err := tx.QueryRowxContext(ctx, tx.Rebind(q+" RETURNING id"),
			codeHash, codePrefix, userID, now).Scan(&id); err != nil {
			return nil, fmt.Errorf("insert activation code: %w", classifyErr(err))
		}
	} else {
		res, err := tx.ExecContext(ctx, q, codeHash, codePrefix, userID, now)
		if err != nil {
			return nil, fmt.Errorf("insert activation code: %w", classifyErr(err))
		}
		if id, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("activation code id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit issue code: %w", err)
	}
	return &model.ActivationCode{
		ID:         id,
		CodeHash:   codeHash,
		CodePrefix: codePrefix,
		UserID:     userID,
		CreatedAt:  now,
	}, nil
}

// GetUnusedCodeByHash returns the code row for a hash if it has not been
// consumed or superseded.
func (s *Store) GetUnusedCodeByHash(ctx context.Context, codeHash string) (*model.ActivationCode, error) {
	var code model.ActivationCode
	err := s.db.GetContext(ctx, &code,
		s.db.Rebind("SELECT * FROM activation_codes WHERE code_hash = ? AND used_at IS NULL"), codeHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get activation code: %w", err)
	}
	return &code, nil
}

// ListActivationCodes returns all codes ordered by id.
func (s *Store) ListActivationCodes(ctx context.Context) ([]model.ActivationCode, error) {
	var codes []model.ActivationCode
	if err := s.db.SelectContext(ctx, &codes, "SELECT * FROM activation_codes ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list activation codes: %w", err)
	}
	return codes, nil
}

// ExchangeCode consumes an unused activation code and mints the supplied
// key hash for the code's owner, all inside one transaction. The
// conditional UPDATE on used_at is the exclusive gate: under concurrent
// exchange attempts on the same code, exactly one transaction flips the row
// and commits a key; every other attempt sees ErrNotFound.
func (s *Store) ExchangeCode(ctx context.Context, codeHash, keyHash, keyPrefix string) (*model.APIKey, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var code model.ActivationCode
	err = tx.GetContext(ctx, &code,
		tx.Rebind("SELECT * FROM activation_codes WHERE code_hash = ? AND used_at IS NULL"), codeHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find activation code: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		tx.Rebind("UPDATE activation_codes SET used_at = ? WHERE id = ? AND used_at IS NULL"),
		now, code.ID)
	if err != nil {
		return nil, fmt.Errorf("consume activation code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("consume rows affected: %w", err)
	}
	if n == 0 {
		// Lost the race to a concurrent exchanger.
		return nil, ErrNotFound
	}

	const q = `INSERT INTO api_keys (key_hash, key_prefix, user_id, created_at)
		VALUES (?, ?, ?, ?)`
	var keyID int64
	if s.dialect == DialectPostgres {
		if err := tx.QueryRowxContext(ctx, tx.Rebind(q+" RETURNING id"),
			keyHash, keyPrefix, code.UserID, now).Scan(&keyID); err != nil {
			return nil, fmt.Errorf("mint api key: %w", classifyErr(err))
		}
	} else {
		res, err := tx.ExecContext(ctx, q, keyHash, keyPrefix, code.UserID, now)
		if err != nil {
			return nil, fmt.Errorf("mint api key: %w", classifyErr(err))
		}
		if keyID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("api key id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit exchange: %w", err)
	}
	return &model.APIKey{
		ID:        keyID,
		KeyHash:   keyHash,
		KeyPrefix: keyPrefix,
		UserID:    code.UserID,
		CreatedAt: now,
	}, nil
}
