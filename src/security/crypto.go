package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var (
	ErrMissingKey = errors.New("security: EXCHANGE_CREDENTIALS_KEY is not set")
	ErrCiphertext = errors.New("security: malformed ciphertext")
)

func loadKey() (*[32]byte, error) {
	raw := GetConfig().ExchangeCRKey
	if raw == "" {
		return nil, ErrMissingKey
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode credentials key: %w", err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("credentials key must be 32 bytes, got %d", len(decoded))
	}
	var key [32]byte
	copy(key[:], decoded)
	return &key, nil
}

// EncryptString seals plain with the configured key and returns
// base64(nonce || box).
func EncryptString(plain string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func DecryptString(encoded string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrCiphertext
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return "", ErrCiphertext
	}
	return string(plain), nil
}
