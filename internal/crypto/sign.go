package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/cloudflare/circl/sign/dilithium/mode5"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
)

const (
	Ed25519PublicKeySize  = ed25519.PublicKeySize
	Ed25519PrivateKeySize = ed25519.PrivateKeySize
	Ed25519SignatureSize  = ed25519.SignatureSize

	// Dilithium5 targets NIST Level 5, matching the spec's PQ parameter
	// choice for every security profile.
	Dilithium5PublicKeySize  = mode5.PublicKeySize
	Dilithium5PrivateKeySize = mode5.PrivateKeySize
	Dilithium5SignatureSize  = mode5.SignatureSize
)

// Ed25519KeyPair is a long-term classical signing identity.
type Ed25519KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Zeroize overwrites the private key bytes.
func (kp *Ed25519KeyPair) Zeroize() {
	if kp == nil {
		return
	}
	Zero(kp.Private)
}

// GenerateEd25519KeyPair produces a fresh Ed25519 identity keypair.
func GenerateEd25519KeyPair() (*Ed25519KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, b4aeerr.New("crypto.GenerateEd25519KeyPair", b4aeerr.KindCryptoError, err)
	}
	return &Ed25519KeyPair{Public: pub, Private: priv}, nil
}

// SignEd25519 produces a detached 64-byte signature over message.
func SignEd25519(priv ed25519.PrivateKey, message []byte) ([]byte, error) {
	if len(priv) != Ed25519PrivateKeySize {
		return nil, b4aeerr.New("crypto.SignEd25519", b4aeerr.KindCryptoError, b4aeerr.ErrInvalidKeySize)
	}
	return ed25519.Sign(priv, message), nil
}

// VerifyEd25519 reports whether sig is a valid Ed25519 signature over
// message under pub. It never distinguishes malformed input from a
// cryptographically invalid signature beyond the boolean result.
func VerifyEd25519(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != Ed25519PublicKeySize || len(sig) != Ed25519SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// DilithiumKeyPair is a long-term post-quantum signing identity at
// NIST Level 5.
type DilithiumKeyPair struct {
	Public  []byte
	Private []byte
}

// Zeroize overwrites the private key bytes.
func (kp *DilithiumKeyPair) Zeroize() {
	if kp == nil {
		return
	}
	Zero(kp.Private)
}

// GenerateDilithiumKeyPair produces a fresh Dilithium5 identity
// keypair.
func GenerateDilithiumKeyPair() (*DilithiumKeyPair, error) {
	pub, priv, err := mode5.GenerateKey(rand.Reader)
	if err != nil {
		return nil, b4aeerr.New("crypto.GenerateDilithiumKeyPair", b4aeerr.KindCryptoError, err)
	}
	return &DilithiumKeyPair{Public: pub.Bytes(), Private: priv.Bytes()}, nil
}

// SignDilithium produces a detached Dilithium5 signature over message.
func SignDilithium(privBytes, message []byte) ([]byte, error) {
	if len(privBytes) != Dilithium5PrivateKeySize {
		return nil, b4aeerr.New("crypto.SignDilithium", b4aeerr.KindCryptoError,
			fmt.Errorf("%w: %s", b4aeerr.ErrInvalidKeySize, describeSizeErr("dilithium private key", Dilithium5PrivateKeySize, len(privBytes))))
	}
	var priv mode5.PrivateKey
	var arr [mode5.PrivateKeySize]byte
	copy(arr[:], privBytes)
	priv.Unpack(&arr)

	sig := make([]byte, Dilithium5SignatureSize)
	mode5.SignTo(&priv, message, sig)
	return sig, nil
}

// VerifyDilithium reports whether sig is a valid Dilithium5 signature
// over message under pubBytes.
func VerifyDilithium(pubBytes, message, sig []byte) bool {
	if len(pubBytes) != Dilithium5PublicKeySize || len(sig) != Dilithium5SignatureSize {
		return false
	}
	var pub mode5.PublicKey
	var arr [mode5.PublicKeySize]byte
	copy(arr[:], pubBytes)
	pub.Unpack(&arr)
	return mode5.Verify(&pub, message, sig)
}

// HybridSignature carries both halves of a v1/v2-ModeB signed
// transcript: classical and post-quantum, so that security is
// preserved if either algorithm alone is broken.
type HybridSignature struct {
	Ed25519   []byte
	Dilithium []byte
}

// SignHybrid signs message with both the Ed25519 and Dilithium5 halves
// of an identity.
func SignHybrid(ed *Ed25519KeyPair, dil *DilithiumKeyPair, message []byte) (*HybridSignature, error) {
	edSig, err := SignEd25519(ed.Private, message)
	if err != nil {
		return nil, err
	}
	dilSig, err := SignDilithium(dil.Private, message)
	if err != nil {
		return nil, err
	}
	return &HybridSignature{Ed25519: edSig, Dilithium: dilSig}, nil
}

// VerifyHybrid requires both halves of sig to verify against the
// corresponding public keys -- §4.2's "both must verify" rule.
func VerifyHybrid(edPub ed25519.PublicKey, dilPub []byte, message []byte, sig *HybridSignature) bool {
	if sig == nil {
		return false
	}
	return VerifyEd25519(edPub, message, sig.Ed25519) && VerifyDilithium(dilPub, message, sig.Dilithium)
}

// ---- XEdDSA (Mode A, deniable signatures) ----
//
// XEdDSA lets an X25519 keypair double as a Schnorr-style signing key
// over edwards25519, producing a signature that authenticates the
// transcript to the receiver without binding that proof to a
// third-party-verifiable certificate -- the deniability property Mode
// A exists for. The same clamped scalar that drives X25519 ECDH also
// drives the Edwards scalar multiplication here, so an identity
// carries one secret, not two.
//
// Recovering an Edwards point from a bare Montgomery u-coordinate is
// sign-ambiguous (u maps to two points, ±). Rather than smuggle a sign
// bit through the signature as some XEdDSA variants do, Mode A
// exchanges the Edwards-form public point directly -- computed once
// at keygen via XEdDSAPublicFromPrivate and carried alongside the
// Montgomery public key already on the wire for ECDH -- so
// verification never needs to invert the Montgomery map.

// XEdDSAPublicFromPrivate derives the Edwards-form public key used for
// verification from the same scalar used for X25519.
func XEdDSAPublicFromPrivate(x25519Priv [32]byte) ([32]byte, error) {
	var out [32]byte
	scalar, err := edwardsScalarFromX25519(x25519Priv)
	if err != nil {
		return out, fmt.Errorf("crypto: xeddsa public: %w", err)
	}
	A := edwards25519.NewIdentityPoint().ScalarBaseMult(scalar)
	copy(out[:], A.Bytes())
	return out, nil
}

// XEdDSASign signs message using an X25519 private scalar, producing
// a 64-byte (R||s) Schnorr signature over edwards25519.
func XEdDSASign(x25519Priv [32]byte, message []byte) ([]byte, error) {
	scalar, err := edwardsScalarFromX25519(x25519Priv)
	if err != nil {
		return nil, fmt.Errorf("crypto: xeddsa sign: %w", err)
	}
	A := edwards25519.NewIdentityPoint().ScalarBaseMult(scalar)
	aBytes := A.Bytes()

	nonceSeed := sha512.Sum512(append(append([]byte{}, scalar.Bytes()...), message...))
	r, err := edwards25519.NewScalar().SetUniformBytes(nonceSeed[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: xeddsa nonce: %w", err)
	}
	R := edwards25519.NewIdentityPoint().ScalarBaseMult(r)
	rBytes := R.Bytes()

	k, err := xeddsaChallenge(rBytes, aBytes, message)
	if err != nil {
		return nil, err
	}

	s := edwards25519.NewScalar().MultiplyAdd(k, scalar, r)

	sig := make([]byte, 64)
	copy(sig[:32], rBytes)
	copy(sig[32:], s.Bytes())
	return sig, nil
}

// XEdDSAVerify verifies a signature produced by XEdDSASign against the
// Edwards-form public key returned by XEdDSAPublicFromPrivate.
func XEdDSAVerify(edPub [32]byte, message, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}
	A, err := new(edwards25519.Point).SetBytes(edPub[:])
	if err != nil {
		return false
	}
	R, err := new(edwards25519.Point).SetBytes(sig[:32])
	if err != nil {
		return false
	}
	s, err := edwards25519.NewScalar().SetCanonicalBytes(sig[32:])
	if err != nil {
		return false
	}

	k, err := xeddsaChallenge(sig[:32], edPub[:], message)
	if err != nil {
		return false
	}

	sB := edwards25519.NewIdentityPoint().ScalarBaseMult(s)
	kA := edwards25519.NewIdentityPoint().ScalarMult(k, A)
	rhs := edwards25519.NewIdentityPoint().Add(R, kA)

	return ConstantTimeCompare(sB.Bytes(), rhs.Bytes())
}

func edwardsScalarFromX25519(x25519Priv [32]byte) (*edwards25519.Scalar, error) {
	return edwards25519.NewScalar().SetBytesWithClamping(x25519Priv[:])
}

func xeddsaChallenge(rBytes, aBytes, message []byte) (*edwards25519.Scalar, error) {
	h := sha512.New()
	h.Write(rBytes)
	h.Write(aBytes)
	h.Write(message)
	kSeed := h.Sum(nil)
	return edwards25519.NewScalar().SetUniformBytes(kSeed)
}
