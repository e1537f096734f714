// Package cryptox seals credential secrets before they reach the database.
// Keys are derived with argon2id and values are encrypted with AES-256-GCM.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/passvault/internal/common"
	"golang.org/x/crypto/argon2"
)

const sealedPrefix = "v1:"

// keySalt binds derived keys to this use; changing it invalidates every
// sealed value.
var keySalt = []byte("passvault/password_entries/v1")

var ErrMalformedSealedValue = errors.New("malformed sealed value")

// DeriveKey stretches secret into a 32-byte key.
func DeriveKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

// Sealer encrypts and decrypts individual string values. It is safe for
// concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the sealing key from secret.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("vault secret is empty")
	}
	key := DeriveKey([]byte(secret), keySalt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns "v1:" followed by base64(nonce || ciphertext).
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := common.GenerateRandByteArray(s.aead.NonceSize())
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the version prefix were stored before
// sealing was enabled and are returned unchanged.
func (s *Sealer) Open(stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, sealedPrefix)
	if !ok {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSealedValue, err)
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrMalformedSealedValue
	}
	plaintext, err := s.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSealedValue, err)
	}
	return string(plaintext), nil
}
