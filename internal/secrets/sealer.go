// Package secrets seals sensitive data source parameters before they are
// written to the store.
package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"toposync/internal/domain"
)

const (
	sealedPrefix = "sealed:v1:"
	hkdfInfo     = "toposync data source parameters"
	minKeyLength = 16
)

// ErrOpen is returned when a sealed value cannot be decrypted
var ErrOpen = errors.New("cannot open sealed value")

// Sealer encrypts parameter values with XChaCha20-Poly1305. A nil Sealer
// stores values as given.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a cipher key from the given key material
func NewSealer(material []byte) (*Sealer, error) {
	if len(material) < minKeyLength {
		return nil, fmt.Errorf("key material must be at least %d bytes: %w", minKeyLength, domain.ErrInvalidArgument)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// LoadKeyFile reads key material from a mounted file
func LoadKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return []byte(strings.TrimSpace(string(data))), nil
}

// IsSealed reports whether a value was produced by Seal
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

// Seal encrypts a value. Empty and already sealed values are returned as is.
func (s *Sealer) Seal(value string) (string, error) {
	if s == nil || value == "" || IsSealed(value) {
		return value, nil
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(value), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed value. Plain values are returned unchanged.
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if s == nil {
		return "", fmt.Errorf("no key configured: %w", ErrOpen)
	}

	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode: %w", ErrOpen)
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", fmt.Errorf("short ciphertext: %w", ErrOpen)
	}

	nonce, ciphertext := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", ErrOpen)
	}
	return string(plain), nil
}

// SealParameters returns a copy of params with every sensitive value sealed
func (s *Sealer) SealParameters(params map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if domain.IsSensitiveParameter(k) {
			sealed, err := s.Seal(v)
			if err != nil {
				return nil, fmt.Errorf("seal %s: %w", k, err)
			}
			v = sealed
		}
		out[k] = v
	}
	return out, nil
}

// OpenParameters reverses SealParameters
func (s *Sealer) OpenParameters(params map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(params))
	for k, v := range params {
		plain, err := s.Open(v)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", k, err)
		}
		out[k] = plain
	}
	return out, nil
}
