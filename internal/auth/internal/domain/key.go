// Package domain contains the core domain types and logic for ingest
// key authentication.
package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

// IngestKey authorizes pushing payloads into one connector. The
// plaintext key is never stored; only its SHA256 hash is persisted.
type IngestKey struct {
	// ID is the unique identifier (UUID) for this key record.
	ID string

	// ConnectorID is the connector this key may push payloads into.
	ConnectorID string

	// KeyHash is the SHA256 hex-encoded hash of the plaintext key.
	KeyHash string

	// Name is a human-readable label for the key (e.g., "Zendesk webhook").
	Name string

	// Revoked indicates whether this key has been revoked.
	Revoked bool

	// CreatedAt is when the key was created (unix millis).
	CreatedAt int64

	// RevokedAt is when the key was revoked, zero if still active.
	RevokedAt int64
}

// hexKeyRegex matches exactly 64 lowercase hexadecimal characters.
var hexKeyRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// GenerateKey creates a new random ingest key. It returns the plaintext
// key (64-char hex string from 32 random bytes) and its SHA256 hash. The
// plaintext must be shown to the operator once and never stored.
func GenerateKey() (plaintext string, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	plaintext = hex.EncodeToString(b)
	hash = HashKey(plaintext)

	return plaintext, hash, nil
}

// HashKey computes the SHA256 hash of a plaintext key and returns it as
// a lowercase hex-encoded string. Ingest keys are high-entropy random
// strings (256 bits), so a fast unsalted hash with constant-time lookup
// is sufficient.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// ValidateKeyFormat checks whether a key string is a valid 64-character
// lowercase hex string (the expected format for generated keys).
func ValidateKeyFormat(key string) bool {
	return hexKeyRegex.MatchString(key)
}
