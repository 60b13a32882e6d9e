package credentials

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// Sealer protects persisted blobs at rest.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// PlainSealer stores blobs unchanged.
type PlainSealer struct{}

func (PlainSealer) Seal(plaintext []byte) ([]byte, error) { return plaintext, nil }
func (PlainSealer) Open(sealed []byte) ([]byte, error)    { return sealed, nil }

var sealedPrefix = []byte("sb1:")

const nonceSize = 24

var errSealedData = errors.New("sealed credential data")

// SecretboxSealer seals blobs with NaCl secretbox (XSalsa20-Poly1305).
type SecretboxSealer struct {
	key [32]byte
}

func NewSecretboxSealer(key []byte) (*SecretboxSealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("[NewSecretboxSealer] key must be 32 bytes, got %d", len(key))
	}
	s := &SecretboxSealer{}
	copy(s.key[:], key)
	return s, nil
}

// NewSealer returns a SecretboxSealer for a hex encoded key, or a PlainSealer
// when hexKey is empty.
func NewSealer(hexKey string) (Sealer, error) {
	if hexKey == "" {
		return PlainSealer{}, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("[NewSealer] decode key: %w", err)
	}
	return NewSecretboxSealer(key)
}

func (s *SecretboxSealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("[SecretboxSealer Seal] nonce: %w", err)
	}
	out := append([]byte(nil), sealedPrefix...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plaintext, &nonce, &s.key), nil
}

func (s *SecretboxSealer) Open(sealed []byte) ([]byte, error) {
	if !bytes.HasPrefix(sealed, sealedPrefix) {
		return nil, fmt.Errorf("[SecretboxSealer Open] %w: missing prefix", errSealedData)
	}
	sealed = sealed[len(sealedPrefix):]
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("[SecretboxSealer Open] %w: too short", errSealedData)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("[SecretboxSealer Open] %w: authentication failed", errSealedData)
	}
	return plaintext, nil
}

func sealValues(sealer Sealer, values map[Key]string) ([]byte, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return sealer.Seal(raw)
}

func openValues(sealer Sealer, blob []byte) (map[Key]string, error) {
	raw, err := sealer.Open(blob)
	if err != nil {
		return nil, err
	}
	values := make(map[Key]string)
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	return values, nil
}
