package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
)

// RandomBytes returns n cryptographically secure random bytes drawn
// from the OS entropy source. It never falls back to a weaker source.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("crypto: read random bytes: %w", err)
	}
	return b, nil
}

// MustRandomBytes panics on entropy-source failure. Reserved for
// contexts where there is no sane recovery, such as deriving a nonce
// mid-seal -- the teacher's codebase makes the same call in
// GenerateRandomBytes for cover-traffic padding.
func MustRandomBytes(n int) []byte {
	b, err := RandomBytes(n)
	if err != nil {
		panic(fmt.Sprintf("crypto: entropy source unavailable: %v", err))
	}
	return b
}
