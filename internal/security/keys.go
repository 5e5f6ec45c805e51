package security

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyIterations = 100
	keyLength     = 32
	seedLength    = 64
)

// GenerateSigningKey derives a fresh 32-byte symmetric key from random seed
// and salt material via PBKDF2-SHA512 and returns it base64-encoded. The
// key's entropy comes from the random seed, not the iteration count.
func GenerateSigningKey() (string, error) {
	seed := make([]byte, seedLength)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("generate signing key: %w", err)
	}
	salt := make([]byte, seedLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate signing key: %w", err)
	}
	key := pbkdf2.Key(seed, salt, keyIterations, keyLength, sha512.New)
	return base64.StdEncoding.EncodeToString(key), nil
}

// NewOpaqueToken returns nBytes of cryptographically random data, hex-encoded.
// Used for refresh-token secrets and id-tracking tokens.
func NewOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
