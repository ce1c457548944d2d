package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint hashes a document body together with the parts that change the
// analysis outcome (format, options), so equal inputs share a cache entry.
func Fingerprint(data []byte, parts ...string) string {
	h := sha256.New()
	h.Write(data)
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
