package store

import "fmt"

// Migrations are idempotent CREATE IF NOT EXISTS statements, one set per
// dialect. The two sets must stay column-compatible: every query in the
// store runs unchanged against both after a Rebind.

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email_ciphertext TEXT NOT NULL,
		email_index TEXT UNIQUE NOT NULL,
		role TEXT NOT NULL CHECK(role IN ('admin', 'support', 'customer')),
		subscription_status TEXT NOT NULL DEFAULT 'active'
			CHECK(subscription_status IN ('active', 'inactive', 'trial')),
		created_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key_hash TEXT UNIQUE NOT NULL,
		key_prefix TEXT NOT NULL,
		user_id INTEGER NOT NULL REFERENCES users(id),
		created_at DATETIME NOT NULL,
		revoked_at DATETIME
	)`,

	`CREATE TABLE IF NOT EXISTS activation_codes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code_hash TEXT UNIQUE NOT NULL,
		code_prefix TEXT NOT NULL,
		user_id INTEGER NOT NULL REFERENCES users(id),
		created_at DATETIME NOT NULL,
		used_at DATETIME
	)`,

	`CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_user_id ON api_keys(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_activation_codes_prefix ON activation_codes(code_prefix)`,
	`CREATE INDEX IF NOT EXISTS idx_activation_codes_user_id ON activation_codes(user_id)`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email_ciphertext TEXT NOT NULL,
		email_index TEXT UNIQUE NOT NULL,
		role TEXT NOT NULL CHECK(role IN ('admin', 'support', 'customer')),
		subscription_status TEXT NOT NULL DEFAULT 'active'
			CHECK(subscription_status IN ('active', 'inactive', 'trial')),
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id BIGSERIAL PRIMARY KEY,
		key_hash TEXT UNIQUE NOT NULL,
		key_prefix TEXT NOT NULL,
		user_id BIGINT NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL,
		revoked_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS activation_codes (
		id BIGSERIAL PRIMARY KEY,
		code_hash TEXT UNIQUE NOT NULL,
		code_prefix TEXT NOT NULL,
		user_id BIGINT NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL,
		used_at TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_user_id ON api_keys(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_activation_codes_prefix ON activation_codes(code_prefix)`,
	`CREATE INDEX IF NOT EXISTS idx_activation_codes_user_id ON activation_codes(user_id)`,
}

func (s *Store) migrate() error {
	migrations := sqliteMigrations
	if s.dialect == DialectPostgres {
		migrations = postgresMigrations
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
