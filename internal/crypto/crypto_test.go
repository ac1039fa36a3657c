package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestX25519ExchangeAgrees(t *testing.T) {
	alice, err := GenerateX25519KeyPair()
	require.NoError(t, err)
	bob, err := GenerateX25519KeyPair()
	require.NoError(t, err)

	ss1, err := X25519Exchange(alice.Private, bob.Public)
	require.NoError(t, err)
	ss2, err := X25519Exchange(bob.Private, alice.Public)
	require.NoError(t, err)
	require.Equal(t, ss1, ss2)
}

func TestKyberEncapsulateDecapsulateAgrees(t *testing.T) {
	kp, err := GenerateKyberKeyPair()
	require.NoError(t, err)

	ct, ss1, err := KyberEncapsulate(kp.Public)
	require.NoError(t, err)
	require.Len(t, ct, Kyber1024CiphertextSize)

	ss2, err := KyberDecapsulate(kp.Private, ct)
	require.NoError(t, err)
	require.Equal(t, ss1, ss2)
}

func TestKyberEncapsulateRejectsBadPublicKeySize(t *testing.T) {
	_, _, err := KyberEncapsulate(make([]byte, 10))
	require.Error(t, err)
}

func TestAEADRoundTrip(t *testing.T) {
	key := MustRandomBytes(32)
	nonce := MustRandomBytes(12)
	aad := []byte("session||seq")
	pt := []byte("hello, bob")

	ct, err := SealAESGCM(key, nonce, pt, aad)
	require.NoError(t, err)

	got, err := OpenAESGCM(key, nonce, ct, aad)
	require.NoError(t, err)
	require.Equal(t, pt, got)
}

func TestAEADTamperFails(t *testing.T) {
	key := MustRandomBytes(32)
	nonce := MustRandomBytes(12)
	aad := []byte("aad")
	pt := []byte("hello")

	ct, err := SealAESGCM(key, nonce, pt, aad)
	require.NoError(t, err)
	ct[0] ^= 0xFF

	_, err = OpenAESGCM(key, nonce, ct, aad)
	require.Error(t, err)
}

func TestAEADWrongAADFails(t *testing.T) {
	key := MustRandomBytes(32)
	nonce := MustRandomBytes(12)
	ct, err := SealAESGCM(key, nonce, []byte("hi"), []byte("aad-a"))
	require.NoError(t, err)

	_, err = OpenAESGCM(key, nonce, ct, []byte("aad-b"))
	require.Error(t, err)
}

func TestHKDFDistinctInfoProducesDistinctKeys(t *testing.T) {
	secret := MustRandomBytes(32)
	salt := MustRandomBytes(32)

	k1, err := DeriveKey32(HashSHA3_256, secret, salt, InfoSessionKey)
	require.NoError(t, err)
	k2, err := DeriveKey32(HashSHA3_256, secret, salt, InfoAuthKey)
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
}

func TestEd25519SignVerify(t *testing.T) {
	kp, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	msg := []byte("transcript-hash")
	sig, err := SignEd25519(kp.Private, msg)
	require.NoError(t, err)
	require.True(t, VerifyEd25519(kp.Public, msg, sig))
	require.False(t, VerifyEd25519(kp.Public, []byte("other"), sig))
}

func TestDilithiumSignVerify(t *testing.T) {
	kp, err := GenerateDilithiumKeyPair()
	require.NoError(t, err)

	msg := []byte("transcript-hash")
	sig, err := SignDilithium(kp.Private, msg)
	require.NoError(t, err)
	require.Len(t, sig, Dilithium5SignatureSize)
	require.True(t, VerifyDilithium(kp.Public, msg, sig))
	require.False(t, VerifyDilithium(kp.Public, []byte("tampered"), sig))
}

func TestHybridSignatureRequiresBothHalves(t *testing.T) {
	ed, err := GenerateEd25519KeyPair()
	require.NoError(t, err)
	dil, err := GenerateDilithiumKeyPair()
	require.NoError(t, err)

	msg := []byte("transcript")
	sig, err := SignHybrid(ed, dil, msg)
	require.NoError(t, err)
	require.True(t, VerifyHybrid(ed.Public, dil.Public, msg, sig))

	tampered := *sig
	tampered.Ed25519 = append([]byte{}, sig.Ed25519...)
	tampered.Ed25519[0] ^= 0xFF
	require.False(t, VerifyHybrid(ed.Public, dil.Public, msg, &tampered))
}

func TestXEdDSASignVerify(t *testing.T) {
	kp, err := GenerateX25519KeyPair()
	require.NoError(t, err)

	edPub, err := XEdDSAPublicFromPrivate(kp.Private)
	require.NoError(t, err)

	msg := []byte("mode-a-transcript")
	sig, err := XEdDSASign(kp.Private, msg)
	require.NoError(t, err)
	require.True(t, XEdDSAVerify(edPub, msg, sig))
	require.False(t, XEdDSAVerify(edPub, []byte("other"), sig))
}

func TestConstantTimeCompare(t *testing.T) {
	a := []byte("abcdef")
	b := []byte("abcdef")
	c := []byte("abcxyz")
	require.True(t, ConstantTimeCompare(a, b))
	require.False(t, ConstantTimeCompare(a, c))
	require.False(t, ConstantTimeCompare(a, []byte("short")))
}
