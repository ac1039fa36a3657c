package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/kem/kyber/kyber1024"
	"golang.org/x/crypto/curve25519"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
)

const (
	X25519PublicKeySize  = 32
	X25519PrivateKeySize = 32

	Kyber1024PublicKeySize  = kyber1024.PublicKeySize
	Kyber1024PrivateKeySize = kyber1024.PrivateKeySize
	Kyber1024CiphertextSize = kyber1024.CiphertextSize
	Kyber1024SharedKeySize  = kyber1024.SharedKeySize
)

// X25519KeyPair is an ephemeral classical ECDH keypair, one half of
// the hybrid KEM.
type X25519KeyPair struct {
	Public  [X25519PublicKeySize]byte
	Private [X25519PrivateKeySize]byte
}

// Zeroize overwrites the private scalar.
func (kp *X25519KeyPair) Zeroize() {
	if kp == nil {
		return
	}
	Zero32(&kp.Private)
}

// GenerateX25519KeyPair produces a fresh, correctly clamped X25519
// keypair.
func GenerateX25519KeyPair() (*X25519KeyPair, error) {
	var priv [X25519PrivateKeySize]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, b4aeerr.New("crypto.GenerateX25519KeyPair", b4aeerr.KindCryptoError, err)
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, b4aeerr.New("crypto.GenerateX25519KeyPair", b4aeerr.KindCryptoError, err)
	}
	kp := &X25519KeyPair{Private: priv}
	copy(kp.Public[:], pub)
	return kp, nil
}

// X25519Exchange performs the ECDH step shared by both handshake
// roles.
func X25519Exchange(priv [X25519PrivateKeySize]byte, peerPub [X25519PublicKeySize]byte) ([]byte, error) {
	ss, err := curve25519.X25519(priv[:], peerPub[:])
	if err != nil {
		return nil, b4aeerr.New("crypto.X25519Exchange", b4aeerr.KindCryptoError, err)
	}
	return ss, nil
}

// KyberKeyPair is an ephemeral Kyber1024 KEM keypair, NIST Level 5.
type KyberKeyPair struct {
	Public  []byte
	Private []byte
}

// Zeroize overwrites the private key bytes.
func (kp *KyberKeyPair) Zeroize() {
	if kp == nil {
		return
	}
	Zero(kp.Private)
}

// GenerateKyberKeyPair produces a fresh Kyber1024 keypair.
func GenerateKyberKeyPair() (*KyberKeyPair, error) {
	pub, priv, err := kyber1024.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, b4aeerr.New("crypto.GenerateKyberKeyPair", b4aeerr.KindCryptoError, err)
	}
	pubBytes := make([]byte, Kyber1024PublicKeySize)
	privBytes := make([]byte, Kyber1024PrivateKeySize)
	pub.Pack(pubBytes)
	priv.Pack(privBytes)
	return &KyberKeyPair{Public: pubBytes, Private: privBytes}, nil
}

// KyberEncapsulate encapsulates a fresh shared secret under a peer's
// Kyber1024 public key. Returns (ciphertext, sharedSecret).
func KyberEncapsulate(peerPublic []byte) ([]byte, []byte, error) {
	if len(peerPublic) != Kyber1024PublicKeySize {
		return nil, nil, b4aeerr.New("crypto.KyberEncapsulate", b4aeerr.KindCryptoError,
			fmt.Errorf("%w: %s", b4aeerr.ErrInvalidKeySize, describeSizeErr("kyber public key", Kyber1024PublicKeySize, len(peerPublic))))
	}
	var pub kyber1024.PublicKey
	pub.Unpack(peerPublic)

	ct := make([]byte, Kyber1024CiphertextSize)
	ss := make([]byte, Kyber1024SharedKeySize)
	pub.EncapsulateTo(ct, ss, nil)
	return ct, ss, nil
}

// KyberDecapsulate recovers the shared secret from a ciphertext using
// the holder's own Kyber1024 private key.
func KyberDecapsulate(privateKey, ciphertext []byte) ([]byte, error) {
	if len(privateKey) != Kyber1024PrivateKeySize {
		return nil, b4aeerr.New("crypto.KyberDecapsulate", b4aeerr.KindCryptoError,
			fmt.Errorf("%w: %s", b4aeerr.ErrInvalidKeySize, describeSizeErr("kyber private key", Kyber1024PrivateKeySize, len(privateKey))))
	}
	if len(ciphertext) != Kyber1024CiphertextSize {
		return nil, b4aeerr.New("crypto.KyberDecapsulate", b4aeerr.KindInvalidInput,
			fmt.Errorf("%w: %s", b4aeerr.ErrInvalidLength, describeSizeErr("kyber ciphertext", Kyber1024CiphertextSize, len(ciphertext))))
	}
	var priv kyber1024.PrivateKey
	priv.Unpack(privateKey)

	ss := make([]byte, Kyber1024SharedKeySize)
	priv.DecapsulateTo(ss, ciphertext)
	return ss, nil
}

// HybridKEMKeyPair bundles the two ephemeral keypairs the handshake
// generates per role per attempt.
type HybridKEMKeyPair struct {
	ECDH  *X25519KeyPair
	Kyber *KyberKeyPair
}

// Zeroize overwrites both halves.
func (kp *HybridKEMKeyPair) Zeroize() {
	if kp == nil {
		return
	}
	kp.ECDH.Zeroize()
	kp.Kyber.Zeroize()
}

// GenerateHybridKEMKeyPair generates fresh X25519 and Kyber1024
// ephemerals together, as Flight 1/2 require.
func GenerateHybridKEMKeyPair() (*HybridKEMKeyPair, error) {
	ecdh, err := GenerateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	kyb, err := GenerateKyberKeyPair()
	if err != nil {
		ecdh.Zeroize()
		return nil, err
	}
	return &HybridKEMKeyPair{ECDH: ecdh, Kyber: kyb}, nil
}
