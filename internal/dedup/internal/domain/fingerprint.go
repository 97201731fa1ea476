package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/goccy/go-json"
)

// Fingerprint computes the SHA-256 hex digest of the payload's canonical
// JSON serialization. Map keys are sorted at every nesting level during
// marshaling, so two logically identical payloads produce the same
// fingerprint regardless of key ordering. This is the dedup key.
func Fingerprint(payload map[string]interface{}) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize returns the payload's canonical JSON bytes.
func Canonicalize(payload map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return data, nil
}
