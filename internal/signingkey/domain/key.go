package domain

import "time"

// Key is one signing-key row: the base64 key material and its generation time.
type Key struct {
	Name      string
	Value     string
	CreatedAt time.Time
}
