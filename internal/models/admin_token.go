package models

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// AdminTokenPrefix marks generated admin tokens.
const AdminTokenPrefix = "gk_"

// GenerateAdminToken produces a new random token in the format gk_<44 url-safe base64 chars>.
func GenerateAdminToken() (string, error) {
	b := make([]byte, 33) // 33 bytes → 44 base64url chars
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate admin token: %w", err)
	}
	return AdminTokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken computes the SHA-256 hex digest of a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// TokenMatches compares presented against expected in constant time. Both are
// hashed first so the comparison does not leak the expected length.
func TokenMatches(presented, expected string) bool {
	if expected == "" {
		return false
	}
	p := sha256.Sum256([]byte(presented))
	e := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(p[:], e[:]) == 1
}

// TokenPrefix returns the first 8 characters of a token for display in logs.
func TokenPrefix(raw string) string {
	if len(raw) > 8 {
		return raw[:8]
	}
	return raw
}
