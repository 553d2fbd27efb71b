package secret

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestNewBox_EmptyPassphrase(t *testing.T) {
	if _, err := NewBox(""); err == nil {
		t.Fatal("Expected error for empty passphrase")
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	box, err := NewBox("test-worker-secret")
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}

	cases := []string{
		"123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11",
		"",
		"unicode: 日本語 ёжик 🚀",
		strings.Repeat("x", 4096),
	}

	for _, plaintext := range cases {
		envelope, err := box.Seal(plaintext)
		if err != nil {
			t.Fatalf("Seal(%q) failed: %v", plaintext, err)
		}

		got, err := box.Open(envelope)
		if err != nil {
			t.Fatalf("Open failed for %q: %v", plaintext, err)
		}
		if got != plaintext {
			t.Errorf("Round trip mismatch: got %q, want %q", got, plaintext)
		}
	}
}

func TestSeal_EnvelopesDiffer(t *testing.T) {
	box, _ := NewBox("test-worker-secret")

	// Random salt and nonce must make repeated seals distinct.
	a, err := box.Seal("same plaintext")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	b, err := box.Seal("same plaintext")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if a == b {
		t.Error("Expected distinct envelopes for repeated Seal calls")
	}
}

func TestOpen_TamperedEnvelope(t *testing.T) {
	box, _ := NewBox("test-worker-secret")

	envelope, err := box.Seal("bot-token-plaintext")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	// Flipping any single byte (salt, nonce, ciphertext, or tag) must
	// fail authentication rather than return corrupted plaintext.
	for i := range raw {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x01

		got, err := box.Open(base64.StdEncoding.EncodeToString(tampered))
		if err == nil {
			t.Fatalf("Expected error for tampered byte %d, got plaintext %q", i, got)
		}
		if !errors.Is(err, ErrInvalidEnvelope) {
			t.Errorf("Expected ErrInvalidEnvelope for byte %d, got %v", i, err)
		}
	}
}

func TestOpen_WrongPassphrase(t *testing.T) {
	box, _ := NewBox("right-secret")
	other, _ := NewBox("wrong-secret")

	envelope, err := box.Seal("bot-token")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if _, err := other.Open(envelope); !errors.Is(err, ErrInvalidEnvelope) {
		t.Errorf("Expected ErrInvalidEnvelope with wrong passphrase, got %v", err)
	}
}

func TestOpen_Malformed(t *testing.T) {
	box, _ := NewBox("test-worker-secret")

	cases := []string{
		"not base64 !!!",
		"",
		base64.StdEncoding.EncodeToString([]byte("short")),
	}
	for _, envelope := range cases {
		if _, err := box.Open(envelope); !errors.Is(err, ErrInvalidEnvelope) {
			t.Errorf("Open(%q): expected ErrInvalidEnvelope, got %v", envelope, err)
		}
	}
}
