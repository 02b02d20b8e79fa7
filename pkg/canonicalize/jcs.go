// Package canonicalize serializes values as RFC 8785 canonical JSON so that
// receipts, journal entries and dossiers hash the same on every node.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// HashPrefix tags every content hash with its algorithm.
const HashPrefix = "sha256:"

// JCS marshals v with encoding/json (so struct tags apply) and rewrites the
// result into canonical form: sorted keys, no HTML escaping, ES6 numbers.
// Integers above 2^53 lose precision in the rewrite.
func JCS(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: transform: %w", err)
	}
	return out, nil
}

// ContentHash is "sha256:" followed by the hex SHA-256 of JCS(v).
func ContentHash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return HashPrefix + hex.EncodeToString(sum[:]), nil
}
