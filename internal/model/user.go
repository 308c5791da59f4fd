// Package model defines the persisted domain types shared by the store,
// service, and handler layers.
package model

import (
	"fmt"
	"time"
)

// Role is the closed set of access levels a user can hold. Authorization
// decisions in dependent services key off this value, so unknown strings
// are rejected at the boundary rather than carried through.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSupport  Role = "support"
	RoleCustomer Role = "customer"
)

// ParseRole validates a raw role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleSupport, RoleCustomer:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// SubscriptionStatus describes the billing state of a user account. It is
// informational for dependent services; it never gates authentication.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionTrial    SubscriptionStatus = "trial"
)

// ParseSubscriptionStatus validates a raw subscription status string.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	switch SubscriptionStatus(s) {
	case SubscriptionActive, SubscriptionInactive, SubscriptionTrial:
		return SubscriptionStatus(s), nil
	}
	return "", fmt.Errorf("unknown subscription status %q", s)
}

// User is an account in the identity store. Email is plaintext in memory
// only; at rest it is encrypted, with a separate deterministic index column
// for lookups.
type User struct {
	ID                 int64              `json:"id"`
	Email              string             `json:"email"`
	Role               Role               `json:"role"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	CreatedAt          time.Time          `json:"created_at"`
}
