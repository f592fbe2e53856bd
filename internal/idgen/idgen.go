// Package idgen generates random identifiers for receipts and requests.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// Hex returns numBytes of randomness as lowercase hex.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("idgen: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// WithPrefix returns prefix followed by 24 hex chars, e.g. "rcpt_9f2c...".
func WithPrefix(prefix string) string {
	return prefix + Hex(12)
}
