// Package secret seals and opens bot transport credentials.
//
// Envelopes are AES-256-GCM with a PBKDF2-SHA256 key derived from the
// worker secret. The salt and nonce are embedded in the envelope, so a
// ciphertext is self-contained: base64(salt || nonce || ciphertext+tag).
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen    = 16
	keyLen     = 32
	iterations = 100_000
)

// ErrInvalidEnvelope is returned when a ciphertext is malformed or has
// been tampered with. Callers must treat it as "credential unusable",
// never as recoverable plaintext.
var ErrInvalidEnvelope = errors.New("secret: invalid envelope")

// Box seals and opens credentials with a fixed worker secret.
type Box struct {
	passphrase []byte
}

// NewBox creates a Box from the worker's credential secret.
func NewBox(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, errors.New("secret: passphrase must not be empty")
	}
	return &Box{passphrase: []byte(passphrase)}, nil
}

// Seal encrypts plaintext into a self-contained envelope.
func (b *Box) Seal(plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := b.cipherFor(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	envelope := make([]byte, 0, saltLen+len(nonce)+len(sealed))
	envelope = append(envelope, salt...)
	envelope = append(envelope, nonce...)
	envelope = append(envelope, sealed...)

	return base64.StdEncoding.EncodeToString(envelope), nil
}

// Open decrypts an envelope produced by Seal. Any modification to the
// envelope, including a single flipped byte, fails authentication.
func (b *Box) Open(envelope string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if len(raw) < saltLen {
		return "", ErrInvalidEnvelope
	}

	salt := raw[:saltLen]
	gcm, err := b.cipherFor(salt)
	if err != nil {
		return "", err
	}

	rest := raw[saltLen:]
	if len(rest) < gcm.NonceSize() {
		return "", ErrInvalidEnvelope
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidEnvelope
	}
	return string(plaintext), nil
}

func (b *Box) cipherFor(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(b.passphrase, salt, iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}
