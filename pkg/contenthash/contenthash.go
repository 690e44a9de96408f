// Package contenthash provides content fingerprinting for duplicate detection.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the hex-encoded SHA-256 digest of content.
// Identical content always produces the identical fingerprint, so two
// fingerprints can be compared directly to detect duplicate content.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two fingerprints identify the same content.
func Equal(a, b string) bool {
	return a != "" && a == b
}
