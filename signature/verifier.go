package signature

import (
	"crypto/hmac"
	"encoding/hex"
)

// Verify reports whether sig is the signature of payload under secret.
// The comparison runs in constant time. Empty or non-hex signatures never
// verify.
func Verify(payload []byte, sig, secret string) bool {
	if len(sig) != Size {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(got, digest(payload, secret))
}
