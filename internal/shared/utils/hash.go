package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a short stable identifier for a payload, used to
// correlate module uploads in logs without logging the bytes
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
