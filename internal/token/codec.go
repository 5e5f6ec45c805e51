// Package token implements the compact access-token format: a constant
// base64 header, a base64 JSON payload, and a hex HMAC-SHA256 signature,
// joined by dots. The header never varies, so signature computation is a
// pure function of payload and key and there is no algorithm negotiation.
package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"session-control-plane/core/internal/security"
)

// fixedHeader is the base64 encoding of the constant two-field header. Any
// token whose first segment differs is rejected before signature checks.
var fixedHeader = base64.StdEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

// Payload is the signed content of an access token. UserPayload is an opaque
// caller blob copied in at issuance; the codec never interprets it.
type Payload struct {
	SessionHandle            string          `json:"sessionHandle"`
	UserID                   string          `json:"userId"`
	RefreshTokenHash         string          `json:"rTHash"`
	PreviousRefreshTokenHash string          `json:"pRTHash,omitempty"`
	AntiCSRFToken            string          `json:"antiCsrfToken,omitempty"`
	UserPayload              json.RawMessage `json:"userPayload,omitempty"`
	ExpiresAt                int64           `json:"exp"` // unix milliseconds
}

// Expired reports whether the payload's expiry is strictly before now.
func (p Payload) Expired(now time.Time) bool {
	return p.ExpiresAt < now.UnixMilli()
}

// KeyProvider resolves the signing key to use for a sign or verify call.
type KeyProvider interface {
	GetKey(ctx context.Context) (string, error)
}

// Codec builds and verifies access tokens using the key resolved from keys
// at call time.
type Codec struct {
	keys KeyProvider
}

// NewCodec returns a Codec that signs and verifies with keys.
func NewCodec(keys KeyProvider) *Codec {
	return &Codec{keys: keys}
}

// Create serializes payload, signs header.payload with HMAC-SHA256 under the
// current signing key, and returns header.payload.signature.
func (c *Codec) Create(ctx context.Context, payload Payload) (string, error) {
	key, err := c.keys.GetKey(ctx)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	signature := security.HMACSHA256(fixedHeader+"."+encoded, key)
	return fixedHeader + "." + encoded + "." + signature, nil
}

// Verify checks structure, signature, payload shape, and expiry, in that
// order, and returns the decoded payload.
func (c *Codec) Verify(ctx context.Context, tokenString string) (Payload, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return Payload{}, ErrMalformedToken
	}
	if parts[0] != fixedHeader {
		return Payload{}, ErrMalformedToken
	}

	key, err := c.keys.GetKey(ctx)
	if err != nil {
		return Payload{}, err
	}
	expected := security.HMACSHA256(parts[0]+"."+parts[1], key)
	if !security.SignatureEqual(expected, parts[2]) {
		return Payload{}, ErrSignatureMismatch
	}

	raw, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return Payload{}, ErrInvalidPayload
	}
	// If the signing key ever leaks, the payload could be rewritten into
	// something that is not a JSON object; reject that shape outright.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Payload{}, ErrInvalidPayload
	}
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Payload{}, ErrInvalidPayload
	}

	if payload.Expired(time.Now().UTC()) {
		return Payload{}, ErrTokenExpired
	}
	return payload, nil
}
