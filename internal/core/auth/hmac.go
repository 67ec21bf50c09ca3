package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Key layout: bm-v1-<secret id>-<random>, both parts lower-case hex.
const (
	keyPrefix   = "bm-v1-"
	secretIDLen = 32 // UUIDv7 without hyphens
	randomLen   = 64 // 256 bits
)

// APIKey is a parsed API key. SecretID names the HMAC secret the key is
// signed with, so secrets can rotate without invalidating older keys.
type APIKey struct {
	SecretID string
	Random   string
}

// ParseAPIKey splits a key into its parts. Any deviation from the layout is
// ErrInvalidKeyFormat.
func ParseAPIKey(s string) (APIKey, error) {
	rest, ok := strings.CutPrefix(s, keyPrefix)
	if !ok {
		return APIKey{}, ErrInvalidKeyFormat
	}
	secretID, random, ok := strings.Cut(rest, "-")
	if !ok || len(secretID) != secretIDLen || len(random) != randomLen {
		return APIKey{}, ErrInvalidKeyFormat
	}
	if !isLowerHex(secretID) || !isLowerHex(random) {
		return APIKey{}, ErrInvalidKeyFormat
	}
	return APIKey{SecretID: secretID, Random: random}, nil
}

// NewAPIKey draws a fresh random part for secretID.
func NewAPIKey(secretID string) (APIKey, error) {
	if len(secretID) != secretIDLen || !isLowerHex(secretID) {
		return APIKey{}, fmt.Errorf("secret id must be %d lower-case hex chars", secretIDLen)
	}
	buf := make([]byte, randomLen/2)
	if _, err := rand.Read(buf); err != nil {
		return APIKey{}, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return APIKey{SecretID: secretID, Random: hex.EncodeToString(buf)}, nil
}

func (k APIKey) String() string {
	return keyPrefix + k.SecretID + "-" + k.Random
}

// Sign returns HMAC-SHA256(secret, key). Only this value is stored.
func (k APIKey) Sign(secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(k.String()))
	return h.Sum(nil)
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
