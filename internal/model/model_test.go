package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	for _, s := range []string{"admin", "support", "customer"} {
		role, err := ParseRole(s)
		if err != nil {
			t.Errorf("ParseRole(%q) = %v", s, err)
		}
		if string(role) != s {
			t.Errorf("ParseRole(%q) = %q", s, role)
		}
	}

	for _, s := range []string{"", "Admin", "superuser", "ADMIN "} {
		if _, err := ParseRole(s); err == nil {
			t.Errorf("ParseRole(%q) should fail", s)
		}
	}
}

func TestParseSubscriptionStatus(t *testing.T) {
	for _, s := range []string{"active", "inactive", "trial"} {
		if _, err := ParseSubscriptionStatus(s); err != nil {
			t.Errorf("ParseSubscriptionStatus(%q) = %v", s, err)
		}
	}
	if _, err := ParseSubscriptionStatus("expired"); err == nil {
		t.Error("ParseSubscriptionStatus(\"expired\") should fail")
	}
}

func TestAPIKeyActive(t *testing.T) {
	k := &APIKey{}
	if !k.Active() {
		t.Error("key with nil RevokedAt should be active")
	}
	now := time.Now()
	k.RevokedAt = &now
	if k.Active() {
		t.Error("revoked key should not be active")
	}
}

func TestActivationCodeUnused(t *testing.T) {
	c := &ActivationCode{}
	if !c.Unused() {
		t.Error("code with nil UsedAt should be unused")
	}
	now := time.Now()
	c.UsedAt = &now
	if c.Unused() {
		t.Error("spent code should not be unused")
	}
}

func TestHashesNeverMarshalled(t *testing.T) {
	b, err := json.Marshal(APIKey{KeyHash: "secret-hash", KeyPrefix: "sk_abcd1234"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]interface{}
	json.Unmarshal(b, &m)
	if _, ok := m["key_hash"]; ok {
		t.Error("key_hash must not appear in JSON")
	}
	if m["key_prefix"] != "sk_abcd1234" {
		t.Errorf("key_prefix = %v", m["key_prefix"])
	}

	b, _ = json.Marshal(ActivationCode{CodeHash: "secret-hash"})
	json.Unmarshal(b, &m)
	if _, ok := m["code_hash"]; ok {
		t.Error("code_hash must not appear in JSON")
	}
}
