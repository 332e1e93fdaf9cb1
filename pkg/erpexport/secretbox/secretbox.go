// Package secretbox encrypts ERP connection configuration at rest.
// A 32-byte key is derived from the process secret via HKDF-SHA256
// with a static info string; records are AES-256-GCM envelopes
// carrying a version byte, the nonce, and the ciphertext, bound to the
// connection id as associated data.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// Version1 is the only envelope version currently written.
	Version1 byte = 1

	keySize   = 32
	infoLabel = "orderflow/erp-connection-config/v1"
)

// ErrVersionMismatch reports an envelope from an unknown generation.
var ErrVersionMismatch = errors.New("secretbox: unknown envelope version")

// Box encrypts and decrypts config blobs under one derived key.
type Box struct {
	aead cipher.AEAD
}

// New derives the symmetric key from secret and builds the Box. The
// secret is the process-level master secret; rotating it invalidates
// every stored envelope.
func New(secret []byte) (*Box, error) {
	if len(secret) == 0 {
		return nil, errors.New("secretbox: empty secret")
	}

	kdf := hkdf.New(sha256.New, secret, nil, []byte(infoLabel))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("secretbox: key derivation failed: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: cipher init failed: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretbox: GCM init failed: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext bound to associatedData (the connection id).
// Envelope layout: version || nonce || ciphertext.
func (b *Box) Seal(plaintext, associatedData []byte) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("secretbox: nonce generation failed: %w", err)
	}

	envelope := make([]byte, 0, 1+len(nonce)+len(plaintext)+b.aead.Overhead())
	envelope = append(envelope, Version1)
	envelope = append(envelope, nonce...)
	envelope = b.aead.Seal(envelope, nonce, plaintext, associatedData)
	return envelope, nil
}

// Open decrypts an envelope. The associated data must match what Seal
// was given; a version byte other than Version1 is rejected before any
// cryptographic work.
func (b *Box) Open(envelope, associatedData []byte) ([]byte, error) {
	if len(envelope) < 1+b.aead.NonceSize()+b.aead.Overhead() {
		return nil, errors.New("secretbox: envelope too short")
	}
	if envelope[0] != Version1 {
		return nil, ErrVersionMismatch
	}

	nonce := envelope[1 : 1+b.aead.NonceSize()]
	ciphertext := envelope[1+b.aead.NonceSize():]

	plaintext, err := b.aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("secretbox: decryption failed: %w", err)
	}
	return plaintext, nil
}
