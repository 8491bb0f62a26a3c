package imaging

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the deterministic content digest used as the
// detection cache key. It is computed over normalized bytes so a resized
// re-upload of the same photo hits the same cache entry
func Fingerprint(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
