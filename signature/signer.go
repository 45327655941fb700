// Package signature signs webhook payloads with HMAC-SHA256 and verifies
// signatures received from other processes.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Header carries the signature on both outbound and inbound requests.
const Header = "X-Webhook-Signature"

// Size is the length of a rendered signature in hex characters.
const Size = sha256.Size * 2

// Sign returns the lowercase hex HMAC-SHA256 of payload keyed by secret.
func Sign(payload []byte, secret string) string {
	return hex.EncodeToString(digest(payload, secret))
}

// SignJSON signs the encoding/json serialization of v. Map keys are
// serialized in sorted order, so equal values always produce equal signatures.
func SignJSON(v any, secret string) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("signature: marshal payload: %w", err)
	}
	return Sign(payload, secret), nil
}

func digest(payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
