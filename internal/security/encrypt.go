package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// ErrDecrypt is returned when ciphertext cannot be authenticated or decoded.
var ErrDecrypt = errors.New("cannot decrypt value")

const (
	saltSize  = 64
	nonceSize = 16
	tagSize   = 16
)

// Encrypt encrypts plaintext with AES-256-GCM under a key derived from
// masterKey via PBKDF2-SHA512 over a random salt. The result is
// base64(salt || nonce || tag || ciphertext). masterKey is assumed to be a
// high-entropy key, not a password, so the iteration count stays low.
func Encrypt(plaintext, masterKey string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}

	aead, err := newAEAD(masterKey, salt)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	// Seal appends the tag after the ciphertext; the wire format carries the
	// tag before the ciphertext, so split and reorder.
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, saltSize+nonceSize+tagSize+len(ct))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Returns ErrDecrypt for malformed input or when
// authentication fails.
func Decrypt(encoded, masterKey string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecrypt
	}
	if len(raw) < saltSize+nonceSize+tagSize {
		return "", ErrDecrypt
	}
	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+nonceSize]
	tag := raw[saltSize+nonceSize : saltSize+nonceSize+tagSize]
	ct := raw[saltSize+nonceSize+tagSize:]

	aead, err := newAEAD(masterKey, salt)
	if err != nil {
		return "", ErrDecrypt
	}

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

func newAEAD(masterKey string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(masterKey), salt, keyIterations, keyLength, sha512.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}
