package model

import "time"

// APIKey is a bearer credential bound to a user. The raw key is never
// stored; only a SHA-256 hash and a short prefix for identification are
// persisted. A key authenticates only while RevokedAt is nil; revocation is
// permanent and the row is kept forever.
type APIKey struct {
	ID        int64      `json:"id" db:"id"`
	KeyHash   string     `json:"-" db:"key_hash"` // never expose
	KeyPrefix string     `json:"key_prefix" db:"key_prefix"`
	UserID    int64      `json:"user_id" db:"user_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

// Active reports whether the key is still authoritative for authentication.
func (k *APIKey) Active() bool {
	return k.RevokedAt == nil
}
