package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// secretEnv holds the current HMAC secret; secretEnv_1, secretEnv_2, ...
// hold older ones still accepted during rotation.
const secretEnv = "BM_HMAC_SECRET"

const (
	secretIDLen  = 32 // UUIDv7 without hyphens
	minSecretLen = 32
)

// HMACSecrets reads the API key secrets from the environment, keyed by secret
// id. The numbered variables are read until the first unset one. No secrets
// is not an error; the caller decides whether the API may run without keys.
func HMACSecrets() (map[string][]byte, error) {
	names := []string{secretEnv}
	for i := 1; os.Getenv(secretEnv+"_"+strconv.Itoa(i)) != ""; i++ {
		names = append(names, secretEnv+"_"+strconv.Itoa(i))
	}

	secrets := make(map[string][]byte, len(names))
	for _, name := range names {
		val := os.Getenv(name)
		if val == "" {
			continue
		}
		id, secret, err := ParseHMACSecretWithID(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if _, dup := secrets[id]; dup {
			return nil, fmt.Errorf("%s: secret id %s is already set by another %s variable", name, id, secretEnv)
		}
		secrets[id] = secret
	}
	return secrets, nil
}

// ParseHMACSecretWithID splits "<secret id>:<base64 secret>".
func ParseHMACSecretWithID(s string) (id string, secret []byte, err error) {
	id, encoded, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return "", nil, errors.New("expected <secret_id>:<base64_secret>")
	}
	if len(id) != secretIDLen {
		return "", nil, fmt.Errorf("secret id must be %d hex chars (UUIDv7 without hyphens), got %d", secretIDLen, len(id))
	}
	if _, err := hex.DecodeString(id); err != nil || strings.ToLower(id) != id {
		return "", nil, fmt.Errorf("secret id %q is not lower-case hex", id)
	}
	if secret, err = ParseHMACSecret(encoded); err != nil {
		return "", nil, err
	}
	return id, secret, nil
}

// ParseHMACSecret decodes a standard base64 secret of at least 32 bytes.
func ParseHMACSecret(encoded string) ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("secret is not valid base64: %w", err)
	}
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("secret must be at least %d bytes, got %d", minSecretLen, len(secret))
	}
	return secret, nil
}
