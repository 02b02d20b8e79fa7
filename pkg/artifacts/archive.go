// Package artifacts is a content-addressed archive for exported documents
// such as action dossiers and retirement certificates. Addresses have the
// form "sha256:<hex>".
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no object exists at an address.
var ErrNotFound = errors.New("artifact not found")

// Archive stores immutable blobs by content address.
type Archive interface {
	// Put stores data and returns its address. Storing the same bytes twice
	// is a no-op.
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, addr string) ([]byte, error)
	Exists(ctx context.Context, addr string) (bool, error)
	Delete(ctx context.Context, addr string) error
}

const addrPrefix = "sha256:"

// Address computes the content address of data.
func Address(data []byte) string {
	sum := sha256.Sum256(data)
	return addrPrefix + hex.EncodeToString(sum[:])
}

// digestOf validates addr and returns its hex digest.
func digestOf(addr string) (string, error) {
	digest, ok := strings.CutPrefix(addr, addrPrefix)
	if !ok {
		return "", fmt.Errorf("invalid artifact address: %q", addr)
	}
	if len(digest) != sha256.Size*2 {
		return "", fmt.Errorf("invalid artifact address length: %q", addr)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", fmt.Errorf("invalid artifact address hex: %w", err)
	}
	return digest, nil
}

func objectKey(prefix, digest string) string {
	return prefix + digest + ".blob"
}
