// Package idgen generates identifiers for audit records and requests.
package idgen

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// New returns a random RFC 4122 UUID string. Used for request IDs.
func New() string {
	return uuid.NewString()
}

// WithPrefix returns prefix + 24 hex chars (12 random bytes), e.g. "wa_".
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// IsRequestID reports whether s is a well-formed UUID, so that inbound
// X-Request-ID headers can be trusted for log correlation.
func IsRequestID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}
