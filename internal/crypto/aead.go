package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"fmt"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
)

const (
	AEADKeySize   = 32
	AEADNonceSize = 12
	AEADTagSize   = 16
)

// SealAESGCM encrypts plaintext under key with AES-256-GCM, binding
// aad. nonce must be AEADNonceSize bytes and must never be reused
// under the same key. The returned slice is ciphertext||tag.
func SealAESGCM(key, nonce, plaintext, aad []byte) ([]byte, error) {
	if len(key) != AEADKeySize {
		return nil, b4aeerr.New("crypto.SealAESGCM", b4aeerr.KindCryptoError, b4aeerr.ErrInvalidKeySize)
	}
	if len(nonce) != AEADNonceSize {
		return nil, b4aeerr.New("crypto.SealAESGCM", b4aeerr.KindInvalidInput, b4aeerr.ErrInvalidLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, b4aeerr.New("crypto.SealAESGCM", b4aeerr.KindCryptoError, err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, AEADTagSize)
	if err != nil {
		return nil, b4aeerr.New("crypto.SealAESGCM", b4aeerr.KindCryptoError, err)
	}
	return gcm.Seal(nil, nonce, plaintext, aad), nil
}

// OpenAESGCM decrypts ciphertext (which must include the trailing
// tag) under key, verifying aad. Any failure -- tampered ciphertext,
// wrong key, wrong aad -- returns AuthenticationFailed without
// revealing which byte differed; the underlying crypto/cipher
// comparison is constant-time.
func OpenAESGCM(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(key) != AEADKeySize {
		return nil, b4aeerr.New("crypto.OpenAESGCM", b4aeerr.KindCryptoError, b4aeerr.ErrInvalidKeySize)
	}
	if len(nonce) != AEADNonceSize {
		return nil, b4aeerr.New("crypto.OpenAESGCM", b4aeerr.KindInvalidInput, b4aeerr.ErrInvalidLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, b4aeerr.New("crypto.OpenAESGCM", b4aeerr.KindCryptoError, err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, AEADTagSize)
	if err != nil {
		return nil, b4aeerr.New("crypto.OpenAESGCM", b4aeerr.KindCryptoError, err)
	}
	pt, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, b4aeerr.New("crypto.OpenAESGCM", b4aeerr.KindAuthenticationFailed, b4aeerr.ErrAuthenticationFailed)
	}
	return pt, nil
}

// ConstantTimeCompare reports whether a and b are equal using a
// comparison whose running time does not depend on where the first
// differing byte is. Required for HMAC cookie verification, padding
// MAC verification, and any other secret-dependent comparison.
func ConstantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		// Still perform a dummy constant-time compare so callers who
		// branch on this function's return value alone don't leak
		// length through timing relative to the equal-length path.
		subtle.ConstantTimeCompare(a, a)
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// describeSizeErr is a small helper so every primitive reports the
// exact expected size it wanted, per the §4.1 "InvalidKeySize (exact
// expected)" contract.
func describeSizeErr(field string, want, got int) error {
	return fmt.Errorf("%s: expected %d bytes, got %d", field, want, got)
}
