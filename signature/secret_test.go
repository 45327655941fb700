package signature_test

import (
	"strings"
	"testing"

	"github.com/arelis/hub/signature"
)

func TestGenerateSecretFormat(t *testing.T) {
	secret, err := signature.GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(secret, signature.SecretPrefix) {
		t.Errorf("expected prefix %q, got %q", signature.SecretPrefix, secret)
	}

	// whsec_ (6) + 64 hex chars (32 bytes) = 70 total
	if len(secret) != 70 {
		t.Errorf("expected length 70, got %d for %q", len(secret), secret)
	}

	for i, c := range strings.TrimPrefix(secret, signature.SecretPrefix) {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Errorf("non-hex character at position %d: %c in %q", i, c, secret)
		}
	}
}

func TestGenerateSecretUniqueness(t *testing.T) {
	a, _ := signature.GenerateSecret()
	b, _ := signature.GenerateSecret()
	if a == b {
		t.Errorf("two consecutive GenerateSecret() calls returned the same value: %q", a)
	}
}
