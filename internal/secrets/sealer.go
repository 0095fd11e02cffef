// Package secrets encrypts OAuth tokens before they are written to a store.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// MinKeyLength is the shortest accepted secret, in bytes
const MinKeyLength = 16

// sealedPrefix marks values written by Seal; anything else is legacy plaintext
const sealedPrefix = "v1:"

var tokenInfo = []byte("inbox-triage oauth tokens")

// ErrKeyTooShort is returned for secrets shorter than MinKeyLength
var ErrKeyTooShort = errors.New("encryption key too short")

// Sealer encrypts values with AES-256-GCM under a key derived from a secret
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the encryption key from secret with HKDF-SHA256
func NewSealer(secret string) (*Sealer, error) {
	if len(secret) < MinKeyLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrKeyTooShort, MinKeyLength)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, tokenInfo), key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext with a fresh random nonce
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix
// were stored before encryption was enabled and are returned unchanged.
func (s *Sealer) Open(stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, sealedPrefix)
	if !ok {
		return stored, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}
	size := s.aead.NonceSize()
	if len(raw) < size {
		return "", errors.New("sealed value too short")
	}
	plaintext, err := s.aead.Open(nil, raw[:size], raw[size:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt sealed value: %w", err)
	}
	return string(plaintext), nil
}
