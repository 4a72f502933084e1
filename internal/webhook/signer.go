// Package webhook implements the signed delivery wire format: HMAC-SHA256
// payload signatures, time-boxed download links, the retry curve, and pure
// adapters for third-party ESP field conventions.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex HMAC-SHA256 of the exact payload bytes. The
// receiver must recompute over the raw request body, byte for byte.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature in constant time.
func Verify(signature string, payload []byte, secret string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}
