package cloud

import (
	"github.com/google/uuid"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewID returns a 20-character alphanumeric document ID in the style of
// Firestore auto IDs. Randomness comes from two v4 UUIDs.
func NewID() string {
	a, b := uuid.New(), uuid.New()
	src := append(a[:], b[:]...)
	out := make([]byte, 20)
	for i := range out {
		out[i] = idAlphabet[int(src[i])%len(idAlphabet)]
	}
	return string(out)
}
