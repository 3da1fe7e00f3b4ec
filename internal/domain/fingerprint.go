package domain

import (
	"encoding/hex"

	"github.com/minio/highwayhash"
)

// fingerprintKey is fixed: fingerprints are persisted and must stay stable across releases.
var fingerprintKey = []byte("catalogix/fingerprint/v1/0123456")

// Fingerprint returns a stable hex digest of the given parts.
// Parts are length-prefixed so ("ab","c") and ("a","bc") differ.
func Fingerprint(parts ...string) string {
	var buf []byte
	for _, p := range parts {
		buf = append(buf, byte(len(p)>>24), byte(len(p)>>16), byte(len(p)>>8), byte(len(p)))
		buf = append(buf, p...)
	}
	sum := highwayhash.Sum(buf, fingerprintKey)
	return hex.EncodeToString(sum[:16])
}
