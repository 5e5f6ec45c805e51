package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hash returns the SHA-256 hash of s, hex-encoded. Used for storing and
// comparing refresh-token secrets without storing the raw secret.
func Hash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// HMACSHA256 returns the HMAC-SHA256 of text under key, hex-encoded.
func HMACSHA256(text, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(text))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashEqual performs constant-time comparison of the provided secret's hash
// with the stored hash. Returns true only if they match.
func HashEqual(providedSecret, storedHash string) bool {
	providedHash := Hash(providedSecret)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}

// SignatureEqual compares two hex-encoded signatures in constant time.
func SignatureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
