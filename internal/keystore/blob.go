package keystore

import (
	"golang.org/x/crypto/argon2"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// Argon2id parameters for passphrase stretching, matching the
// teacher's DefaultArgon2Params (1 iteration, 64 MiB, 4 threads):
// interactive-unlock cost, not a master-password-at-rest cost.
const (
	argon2Time    = 1
	argon2MemKiB  = 64 * 1024
	argon2Threads = 4
)

// BlobVersion is the explicit version byte prepended to every stored
// blob. The original format had none; the specification's own open
// question flags this as a gap future format changes will need, so
// this implementation resolves it up front rather than waiting for
// the first incompatible change.
const BlobVersion byte = 0x01

const (
	saltSize  = 16
	nonceSize = crypto.AEADNonceSize
	tagSize   = crypto.AEADTagSize
)

// keystoreAAD is the fixed associated data bound into the MIK blob's
// AEAD seal, matching the original format's literal string.
var keystoreAAD = []byte("B4AE-MIK")

// deriveBlobKey stretches passphrase through Argon2id before handing
// it to HKDF: Argon2id resists brute force against a low-entropy
// passphrase, HKDF domain-separates the stretched secret into this
// blob's specific key via info="B4AE-v1-keystore".
func deriveBlobKey(passphrase, salt []byte) ([32]byte, error) {
	stretched := argon2.IDKey(passphrase, salt, argon2Time, argon2MemKiB, argon2Threads, 32)
	defer crypto.Zero(stretched)
	return crypto.DeriveKey32(crypto.HashSHA3_256, stretched, salt, "B4AE-v1-keystore")
}

// SealMIK encrypts mik under a key derived from passphrase, producing
// a blob of version(1) || salt(16) || nonce(12) || ciphertext || tag(16).
func SealMIK(passphrase []byte, mik *MasterIdentityKey) ([]byte, error) {
	salt, err := crypto.RandomBytes(saltSize)
	if err != nil {
		return nil, b4aeerr.New("keystore.SealMIK", b4aeerr.KindCryptoError, err)
	}
	key, err := deriveBlobKey(passphrase, salt)
	if err != nil {
		return nil, b4aeerr.New("keystore.SealMIK", b4aeerr.KindCryptoError, err)
	}
	defer crypto.Zero32(&key)

	nonce, err := crypto.RandomBytes(nonceSize)
	if err != nil {
		return nil, b4aeerr.New("keystore.SealMIK", b4aeerr.KindCryptoError, err)
	}

	plaintext := mik.Bytes()
	ct, err := crypto.SealAESGCM(key[:], nonce, plaintext[:], keystoreAAD)
	if err != nil {
		return nil, b4aeerr.New("keystore.SealMIK", b4aeerr.KindCryptoError, err)
	}

	blob := make([]byte, 0, 1+saltSize+nonceSize+len(ct))
	blob = append(blob, BlobVersion)
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, ct...)
	return blob, nil
}

// OpenMIK decrypts a blob produced by SealMIK.
func OpenMIK(passphrase []byte, blob []byte) (*MasterIdentityKey, error) {
	if len(blob) < 1+saltSize+nonceSize+tagSize {
		return nil, b4aeerr.New("keystore.OpenMIK", b4aeerr.KindInvalidInput, b4aeerr.ErrMalformedInput)
	}
	if blob[0] != BlobVersion {
		return nil, b4aeerr.New("keystore.OpenMIK", b4aeerr.KindProtocolError, b4aeerr.ErrUnsupportedVersion)
	}
	rest := blob[1:]
	salt := rest[:saltSize]
	nonce := rest[saltSize : saltSize+nonceSize]
	ct := rest[saltSize+nonceSize:]

	key, err := deriveBlobKey(passphrase, salt)
	if err != nil {
		return nil, b4aeerr.New("keystore.OpenMIK", b4aeerr.KindCryptoError, err)
	}
	defer crypto.Zero32(&key)

	plaintext, err := crypto.OpenAESGCM(key[:], nonce, ct, keystoreAAD)
	if err != nil {
		return nil, b4aeerr.New("keystore.OpenMIK", b4aeerr.KindAuthenticationFailed, b4aeerr.ErrAuthenticationFailed)
	}
	defer crypto.Zero(plaintext)

	var arr [32]byte
	copy(arr[:], plaintext)
	return &MasterIdentityKey{bytes: arr}, nil
}
