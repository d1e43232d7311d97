// Package secret seals connection credentials at rest with AES-256-GCM. The
// key is derived with scrypt from random material kept in a key file.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	sealedPrefix  = "v1:"
	materialBytes = 32
	keyBytes      = 32
)

var salt = []byte("dbkeeper/credential-seal/v1")

var ErrMalformed = errors.New("sealed value is malformed")

type Box struct {
	aead cipher.AEAD
}

// NewBox derives the sealing key from material.
func NewBox(material []byte) (*Box, error) {
	if len(material) == 0 {
		return nil, errors.New("empty key material")
	}

	key, err := scrypt.Key(material, salt, 1<<15, 8, 1, keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}

	return &Box{aead: aead}, nil
}

// LoadOrCreate reads hex key material from path, generating a new file with
// 0600 permissions when none exists.
func LoadOrCreate(path string) (*Box, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		data, err = createKeyFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load key file: %w", err)
	}

	material, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("key file %s is not hex encoded: %w", path, err)
	}

	return NewBox(material)
}

func createKeyFile(path string) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	material := make([]byte, materialBytes)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return nil, err
	}

	encoded := []byte(hex.EncodeToString(material) + "\n")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Write(encoded); err != nil {
		return nil, err
	}
	return encoded, nil
}

func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *Box) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", ErrMalformed
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", ErrMalformed
	}

	size := b.aead.NonceSize()
	if len(raw) < size {
		return "", ErrMalformed
	}

	plain, err := b.aead.Open(nil, raw[:size], raw[size:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed value: %w", err)
	}
	return string(plain), nil
}
