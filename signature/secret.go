package signature

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// SecretPrefix starts every generated secret.
const SecretPrefix = "whsec_"

// GenerateSecret creates a random signing secret: "whsec_" followed by
// 64 hex characters, comfortably above the 32 character minimum.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("signature: generate secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(b), nil
}
