package store

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when no user, key, or code matches a lookup.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned on a duplicate email or a hash collision on
// insert. Hash collisions are astronomically unlikely and are surfaced as-is
// rather than retried.
var ErrConflict = errors.New("conflict")

// classifyErr maps driver-level constraint violations onto the store's
// sentinel errors. Covers both SQLite and Postgres message shapes.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key"):
		return ErrConflict
	case strings.Contains(msg, "foreign key constraint"):
		return ErrNotFound
	}
	return err
}
