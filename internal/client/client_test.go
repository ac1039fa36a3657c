package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/config"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
	"github.com/b4ae-io/b4ae-core/internal/handshake"
)

func newTestIdentity(t *testing.T) (*handshake.Identity, handshake.PeerIdentity) {
	t.Helper()
	ed, err := crypto.GenerateEd25519KeyPair()
	require.NoError(t, err)
	dil, err := crypto.GenerateDilithiumKeyPair()
	require.NoError(t, err)
	id := &handshake.Identity{Ed25519: ed, Dilithium: dil}
	pub := handshake.PeerIdentity{Ed25519Pub: append([]byte{}, ed.Public...), DilithiumPub: append([]byte{}, dil.Public...)}
	return id, pub
}

// newEstablishedPair drives scenario 1's minimal handshake to a fully
// established pair of Clients for alice and bob.
func newEstablishedPair(t *testing.T) (alice, bob *Client) {
	t.Helper()
	aliceID, alicePub := newTestIdentity(t)
	bobID, bobPub := newTestIdentity(t)

	var err error
	alice, err = New(aliceID, config.DefaultConfig())
	require.NoError(t, err)
	bob, err = New(bobID, config.DefaultConfig())
	require.NoError(t, err)

	alice.RegisterPeerIdentity("bob", bobPub)
	bob.RegisterPeerIdentity("alice", alicePub)

	initMsg, err := alice.InitiateHandshake("bob")
	require.NoError(t, err)

	respMsg, err := bob.RespondToHandshake("alice", initMsg)
	require.NoError(t, err)

	completeMsg, err := alice.ProcessResponse("bob", respMsg)
	require.NoError(t, err)

	require.NoError(t, bob.CompleteHandshake("alice", completeMsg))
	require.NoError(t, alice.FinalizeInitiator("bob"))

	require.True(t, alice.HasSession("bob"))
	require.True(t, bob.HasSession("alice"))
	return alice, bob
}

func TestMinimalSessionRoundTrip(t *testing.T) {
	alice, bob := newEstablishedPair(t)

	rec, err := alice.EncryptMessage("bob", []byte("Hello, Bob!"), nil)
	require.NoError(t, err)

	pt, err := bob.DecryptMessage("alice", rec, nil)
	require.NoError(t, err)
	require.Equal(t, "Hello, Bob!", string(pt))
}

func TestReplayRejected(t *testing.T) {
	alice, bob := newEstablishedPair(t)

	rec, err := alice.EncryptMessage("bob", []byte("Hello, Bob!"), nil)
	require.NoError(t, err)

	_, err = bob.DecryptMessage("alice", rec, nil)
	require.NoError(t, err)

	_, err = bob.DecryptMessage("alice", rec, nil)
	require.Error(t, err)
	require.True(t, b4aeerr.Is(err, b4aeerr.KindReplayDetected) || b4aeerr.Is(err, b4aeerr.KindProtocolError))
}

func TestTamperedCiphertextRejected(t *testing.T) {
	alice, bob := newEstablishedPair(t)

	rec, err := alice.EncryptMessage("bob", []byte("Hello, Bob!"), nil)
	require.NoError(t, err)

	tampered := append([]byte{}, rec...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = bob.DecryptMessage("alice", tampered, nil)
	require.Error(t, err)
}

func TestRotationRoundTrip(t *testing.T) {
	alice, bob := newEstablishedPair(t)

	rotMsg, err := alice.BuildRotationMessage("bob")
	require.NoError(t, err)
	encoded, err := rotMsg.Encode()
	require.NoError(t, err)

	require.NoError(t, alice.ApplyRotation("bob", rotMsg))

	rec, err := alice.EncryptMessage("bob", []byte("after rotation"), nil)
	require.NoError(t, err)

	decodedRotation, err := DecodeRotationMessage(encoded)
	require.NoError(t, err)
	require.NoError(t, bob.ApplyRotation("alice", decodedRotation))

	pt, err := bob.DecryptMessage("alice", rec, nil)
	require.NoError(t, err)
	require.Equal(t, "after rotation", string(pt))

	// Applying the same rotation sequence again must be a no-op, not
	// an error.
	require.NoError(t, bob.ApplyRotation("alice", decodedRotation))
}

func TestHasSessionAndCloseSession(t *testing.T) {
	alice, bob := newEstablishedPair(t)
	require.True(t, alice.HasSession("bob"))
	alice.CloseSession("bob")
	require.False(t, alice.HasSession("bob"))

	_, err := alice.EncryptMessage("bob", []byte("x"), nil)
	require.Error(t, err)
	require.True(t, b4aeerr.Is(err, b4aeerr.KindProtocolError))

	_ = bob
}

func TestEncryptMessageRejectsOversizePlaintext(t *testing.T) {
	alice, bob := newEstablishedPair(t)

	oversized := make([]byte, alice.cfg.MaxMessageSize+1)
	_, err := alice.EncryptMessage("bob", oversized, nil)
	require.Error(t, err)
	require.True(t, b4aeerr.Is(err, b4aeerr.KindResourceExhausted))

	// The send chain must not have advanced: a follow-up message at
	// the in-bounds size still round-trips normally.
	rec, err := alice.EncryptMessage("bob", []byte("still fine"), nil)
	require.NoError(t, err)
	pt, err := bob.DecryptMessage("alice", rec, nil)
	require.NoError(t, err)
	require.Equal(t, "still fine", string(pt))
}

func TestInitiateHandshakeAlreadyPendingRejected(t *testing.T) {
	aliceID, _ := newTestIdentity(t)
	_, bobPub := newTestIdentity(t)
	alice, err := New(aliceID, config.DefaultConfig())
	require.NoError(t, err)
	alice.RegisterPeerIdentity("bob", bobPub)

	_, err = alice.InitiateHandshake("bob")
	require.NoError(t, err)

	_, err = alice.InitiateHandshake("bob")
	require.Error(t, err)
	require.True(t, b4aeerr.Is(err, b4aeerr.KindProtocolError))
}
