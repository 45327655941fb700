package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/arelis/hub/signature"
)

var secret32 = strings.Repeat("s", 32)

func TestSignKnownVector(t *testing.T) {
	payload := []byte(`{"x":1}`)

	got := signature.Sign(payload, secret32)

	mac := hmac.New(sha256.New, []byte(secret32))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if got != expected {
		t.Errorf("Sign() = %q, want %q", got, expected)
	}
}

func TestSignIsStableAndFixedLength(t *testing.T) {
	payload := []byte(`{"x":1}`)

	a := signature.Sign(payload, secret32)
	b := signature.Sign(payload, secret32)

	if a != b {
		t.Errorf("Sign() not deterministic: %q != %q", a, b)
	}
	if len(a) != 64 || len(a) != signature.Size {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if strings.ToLower(a) != a {
		t.Errorf("expected lowercase hex, got %q", a)
	}
}

func TestSignChangesWithInput(t *testing.T) {
	base := signature.Sign([]byte(`{"x":1}`), secret32)

	if signature.Sign([]byte(`{"x":2}`), secret32) == base {
		t.Error("changing the payload did not change the signature")
	}
	if signature.Sign([]byte(`{"x":1}`), secret32[:31]+"t") == base {
		t.Error("changing the secret did not change the signature")
	}
}

func TestSignJSONSortsKeys(t *testing.T) {
	a, err := signature.SignJSON(map[string]any{"b": 2, "a": 1}, secret32)
	if err != nil {
		t.Fatal(err)
	}

	want := signature.Sign([]byte(`{"a":1,"b":2}`), secret32)
	if a != want {
		t.Errorf("SignJSON() = %q, want %q", a, want)
	}
}

func TestSignJSONUnsupportedValue(t *testing.T) {
	if _, err := signature.SignJSON(map[string]any{"ch": make(chan int)}, secret32); err == nil {
		t.Error("expected marshal error for channel value")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"agent_uuid":"a1","new_status":"paused"}`)

	sig := signature.Sign(payload, secret32)
	if !signature.Verify(payload, sig, secret32) {
		t.Error("Verify() returned false for valid signature")
	}
}

func TestVerifyRejects(t *testing.T) {
	payload := []byte(`{"original":true}`)
	sig := signature.Sign(payload, secret32)

	tests := []struct {
		name    string
		payload []byte
		sig     string
		secret  string
	}{
		{"tampered payload", []byte(`{"original":false}`), sig, secret32},
		{"other secret", payload, sig, strings.Repeat("o", 32)},
		{"empty signature", payload, "", secret32},
		{"truncated signature", payload, sig[:63], secret32},
		{"non-hex signature", payload, strings.Repeat("z", 64), secret32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if signature.Verify(tt.payload, tt.sig, tt.secret) {
				t.Error("Verify() returned true")
			}
		})
	}
}

func TestVerifyAcceptsUppercaseHex(t *testing.T) {
	payload := []byte(`{"x":1}`)
	sig := strings.ToUpper(signature.Sign(payload, secret32))

	if !signature.Verify(payload, sig, secret32) {
		t.Error("Verify() rejected uppercase hex signature")
	}
}
