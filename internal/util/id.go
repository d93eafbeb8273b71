package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random 32-char hex id, used for request ids.
func NewID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
