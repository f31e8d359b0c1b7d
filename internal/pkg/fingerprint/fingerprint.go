// Package fingerprint derives trusted-device fingerprints from request
// headers. The identity signal is the User-Agent string: identical
// browser/OS pairs collide, but it is stable for a returning client.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// FromUserAgent returns the hex SHA-256 digest of the User-Agent string.
func FromUserAgent(userAgent string) string {
	sum := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(sum[:])
}
