package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// keySalt is a fixed HKDF salt; uniqueness per deployment comes from the
// operator-supplied passphrase.
const keySalt = "curadesk-identity-store-v1"

// box encrypts the store's PII columns. Emails are sealed with AES-256-GCM
// under a key derived from the store passphrase, and indexed through a
// deterministic HMAC-SHA256 column so unique lookups still work without
// ever writing an address in the clear.
type box struct {
	aead     cipher.AEAD
	indexKey []byte
}

func newBox(passphrase string) (*box, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("store encryption key is empty")
	}

	encKey, err := deriveKey(passphrase, "email-encrypt")
	if err != nil {
		return nil, err
	}
	indexKey, err := deriveKey(passphrase, "email-index")
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return &box{aead: aead, indexKey: indexKey}, nil
}

func deriveKey(passphrase, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(passphrase), []byte(keySalt), []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}
	return key, nil
}

// seal encrypts a plaintext with a fresh random nonce and returns
// base64(nonce || ciphertext).
func (b *box) seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	out := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// open reverses seal.
func (b *box) open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	ns := b.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("ciphertext too short")
	}
	plain, err := b.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}

// index returns the deterministic lookup digest for a plaintext. Equal
// inputs always produce equal digests, which is what makes the unique
// email constraint enforceable on ciphertext rows.
func (b *box) index(plaintext string) string {
	mac := hmac.New(sha256.New, b.indexKey)
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}
