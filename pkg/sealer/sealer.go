// Package sealer encrypts mailbox credentials before they are stored.
package sealer

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const prefix = "sb1:"

var ErrInvalidKey = errors.New("token encryption key must be 32 bytes hex encoded")
var ErrOpenFailed = errors.New("unable to open sealed value")

// Sealer seals and opens short secrets. A zero-value Sealer (no key) passes
// values through unchanged.
type Sealer struct {
	key     *[32]byte
	enabled bool
}

// New builds a sealer from a hex key. An empty key disables sealing.
func New(hexKey string) (*Sealer, error) {
	if hexKey == "" {
		return &Sealer{}, nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKey
	}
	var key [32]byte
	copy(key[:], raw)
	return &Sealer{key: &key, enabled: true}, nil
}

// Seal encrypts plaintext. Empty values stay empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if !s.enabled || plaintext == "" {
		return plaintext, nil
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, s.key)
	return prefix + base64.RawURLEncoding.EncodeToString(box), nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix
// are returned as-is so rows written before a key was configured still work.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, prefix) {
		return value, nil
	}
	if !s.enabled {
		return "", ErrOpenFailed
	}
	box, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil || len(box) < 24 {
		return "", ErrOpenFailed
	}
	var nonce [24]byte
	copy(nonce[:], box[:24])
	out, ok := secretbox.Open(nil, box[24:], &nonce, s.key)
	if !ok {
		return "", ErrOpenFailed
	}
	return string(out), nil
}
