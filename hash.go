package privmsg

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// HashLength is the length of a message hash in characters.
const HashLength = 32

// NewHash returns a fresh message hash: 32 lowercase hex characters drawn
// from crypto/rand. Callers may pre-generate draft hashes with it.
func NewHash() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("privmsg: generate hash: %w", err)
	}
	return hex.EncodeToString(u[:]), nil
}

// validHash reports whether h looks like a hash produced by NewHash.
func validHash(h string) bool {
	if len(h) != HashLength {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
