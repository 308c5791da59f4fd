// Package secret generates the opaque random credentials used by the
// identity service: API keys and one-time activation codes. A generated
// secret is returned to the caller exactly once; only its SHA-256 hash and
// a short non-secret prefix are ever persisted.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generated carries the three representations of a freshly minted secret.
// Secret is shown once and discarded; Prefix and Hash are durable.
type Generated struct {
	Secret string
	Prefix string
	Hash   string
}

// GenerateAPIKey produces a key of the form sk_<8 chars>_<32 chars>.
// The exposed prefix is "sk_" plus the 8-char block; it identifies the key
// in listings and logs but never suffices to authenticate.
func GenerateAPIKey() (Generated, error) {
	prefixPart, err := randomString(8)
	if err != nil {
		return Generated{}, err
	}
	randomPart, err := randomString(32)
	if err != nil {
		return Generated{}, err
	}

	full := "sk_" + prefixPart + "_" + randomPart
	return Generated{
		Secret: full,
		Prefix: "sk_" + prefixPart,
		Hash:   Hash(full),
	}, nil
}

// GenerateActivationCode produces a code of the form ac_<4>-<4>-<4>.
// The exposed prefix is "ac_" plus the first 4-char group.
func GenerateActivationCode() (Generated, error) {
	groups := make([]string, 3)
	for i := range groups {
		g, err := randomString(4)
		if err != nil {
			return Generated{}, err
		}
		groups[i] = g
	}

	full := "ac_" + strings.Join(groups, "-")
	return Generated{
		Secret: full,
		Prefix: "ac_" + groups[0],
		Hash:   Hash(full),
	}, nil
}

// Hash returns the lowercase-hex SHA-256 digest of a raw secret. This is
// the only durable representation of a credential.
func Hash(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// randomString draws n characters uniformly from the 62-symbol alphabet
// using crypto/rand.
func randomString(n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}
