// Package digest provides the content hash used to deduplicate stored items.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of a content hash in hex characters.
const Size = sha256.Size * 2

// ContentHash returns the hex-encoded SHA-256 of text. Identical text always yields the same hash.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
