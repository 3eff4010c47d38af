package internal

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

const linkSecretSize = 32

// NewLinkSecret returns a fresh 256-bit verification secret as compact
// base64url text. Collision probability is negligible at this size.
func NewLinkSecret() (string, error) {
	var raw [linkSecretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidateLinkSecret rejects text that cannot be a secret produced by
// NewLinkSecret, before any store lookup happens.
func ValidateLinkSecret(secret string) error {
	raw, err := base64.RawURLEncoding.DecodeString(secret)
	if err != nil {
		return err
	}
	if len(raw) != linkSecretSize {
		return errors.New("invalid secret size")
	}
	return nil
}

// SecretsEqual compares two secrets in constant time.
func SecretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
