package token

import "errors"

// Verification failures, ordered by the checks in Verify. Callers re-classify
// these into their own taxonomy (an expired token is recoverable via refresh,
// the rest are not).
var (
	// ErrMalformedToken is returned when the token does not split into three
	// dot-separated segments or its header segment is not the fixed header.
	ErrMalformedToken = errors.New("malformed access token")

	// ErrSignatureMismatch is returned when the recomputed signature differs
	// from the one carried by the token.
	ErrSignatureMismatch = errors.New("access token signature mismatch")

	// ErrTokenExpired is returned when the payload's expiry is in the past.
	ErrTokenExpired = errors.New("access token expired")

	// ErrInvalidPayload is returned when the payload segment does not decode
	// to a well-formed JSON object.
	ErrInvalidPayload = errors.New("invalid access token payload")
)
