package model

import "time"

// ActivationCode is a one-time token exchanged for exactly one API key.
// Like API keys, only the SHA-256 hash and a display prefix are stored.
// A code is inert once UsedAt is set, either because it was exchanged or
// because a later issuance for the same user superseded it.
type ActivationCode struct {
	ID         int64      `json:"id" db:"id"`
	CodeHash   string     `json:"-" db:"code_hash"` // never expose
	CodePrefix string     `json:"code_prefix" db:"code_prefix"`
	UserID     int64      `json:"user_id" db:"user_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UsedAt     *time.Time `json:"used_at,omitempty" db:"used_at"`
}

// Unused reports whether the code can still be exchanged.
func (c *ActivationCode) Unused() bool {
	return c.UsedAt == nil
}
