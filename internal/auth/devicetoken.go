package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// NewProvisionToken generates a fresh device provisioning token. The raw
// token is shown to the operator exactly once at provisioning time; only
// its salted hash is stored.
func NewProvisionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating provision token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashProvisionToken computes the stored form of a device provisioning
// token. The salt is deployment-wide (PROVISION_TOKEN_SALT); per-device
// salts are unnecessary because tokens are high-entropy random strings, not
// passwords.
func HashProvisionToken(salt, token string) string {
	sum := sha256.Sum256([]byte(salt + token))
	return hex.EncodeToString(sum[:])
}

// VerifyProvisionToken compares a presented token against a stored hash in
// constant time.
func VerifyProvisionToken(salt, presented, storedHash string) bool {
	computed := HashProvisionToken(salt, presented)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
