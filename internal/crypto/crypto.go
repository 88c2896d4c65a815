// Package crypto provides NaCl secretbox encryption for data clipstash keeps
// at rest.
//
// A 32-byte symmetric key is derived from the configured passphrase using
// HKDF-SHA256. Every blob is encrypted with a random 24-byte nonce prepended
// to the ciphertext:
//
//	[ 24-byte nonce ][ ciphertext ]
//
// With no passphrase configured the stores write plain JSON and this package
// is not used.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var hkdfInfo = []byte("clipstash-at-rest-v1")

var (
	// ErrNoPassphrase is returned by New for an empty passphrase.
	ErrNoPassphrase = errors.New("encryption passphrase is empty")

	// ErrDecrypt is returned when a blob fails authentication: it was
	// sealed with a different passphrase, or it has been tampered with.
	ErrDecrypt = errors.New("decryption failed (wrong passphrase?)")
)

// DeriveKey derives a 32-byte NaCl secretbox key from passphrase using
// HKDF-SHA256.
func DeriveKey(passphrase string) (*[keySize]byte, error) {
	h := hkdf.New(sha256.New, []byte(passphrase), nil, hkdfInfo)
	var key [keySize]byte
	if _, err := io.ReadFull(h, key[:]); err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	return &key, nil
}

// Seal encrypts plaintext with key, prepending a random nonce.
func Seal(plaintext []byte, key *[keySize]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// Open decrypts nonce+ciphertext with key.
func Open(ciphertext []byte, key *[keySize]byte) ([]byte, error) {
	if len(ciphertext) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	plain, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// Cipher is the encryption service the file store consults ahead of disk.
// It is safe for concurrent use.
type Cipher struct {
	key *[keySize]byte
}

// New derives a Cipher from passphrase.
func New(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	key, err := DeriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	return &Cipher{key: key}, nil
}

// Encrypt seals plaintext.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) { return Seal(plaintext, c.key) }

// Decrypt opens a blob produced by Encrypt.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) { return Open(ciphertext, c.key) }
