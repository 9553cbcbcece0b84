package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewRequestID returns a short URL-safe hex ID used for request correlation.
// Entity identifiers use uuid elsewhere; request IDs only need to be cheap
// and unique enough for log searches.
func NewRequestID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
