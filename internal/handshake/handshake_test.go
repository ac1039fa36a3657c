package handshake

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

func newTestIdentity(t *testing.T) (*Identity, PeerIdentity) {
	t.Helper()
	ed, err := crypto.GenerateEd25519KeyPair()
	require.NoError(t, err)
	dil, err := crypto.GenerateDilithiumKeyPair()
	require.NoError(t, err)
	id := &Identity{Ed25519: ed, Dilithium: dil}
	pub := PeerIdentity{Ed25519Pub: append([]byte{}, ed.Public...), DilithiumPub: append([]byte{}, dil.Public...)}
	return id, pub
}

func TestV1HandshakeRoundTrip(t *testing.T) {
	aliceID, alicePub := newTestIdentity(t)
	bobID, bobPub := newTestIdentity(t)

	initSt, initMsg, err := InitiateHandshake("bob", aliceID, bobPub)
	require.NoError(t, err)
	require.Equal(t, PhaseSentInit, initSt.Phase())

	respSt, respMsg, err := RespondToHandshake("alice", bobID, alicePub, initMsg)
	require.NoError(t, err)
	require.Equal(t, PhaseSentResponse, respSt.Phase())

	completeMsg, err := initSt.ProcessResponse(respMsg)
	require.NoError(t, err)
	require.Equal(t, PhaseReceivedResponse, initSt.Phase())

	bobResult, err := respSt.CompleteHandshake(completeMsg)
	require.NoError(t, err)
	require.Equal(t, PhaseEstablished, respSt.Phase())

	aliceResult, err := initSt.FinalizeInitiator()
	require.NoError(t, err)
	require.Equal(t, PhaseEstablished, initSt.Phase())

	require.Equal(t, aliceResult.SessionID, bobResult.SessionID)
	require.Equal(t, aliceResult.SendRootKey, bobResult.RecvRootKey)
	require.Equal(t, aliceResult.RecvRootKey, bobResult.SendRootKey)
}

func TestV1HandshakeRejectsWrongSignature(t *testing.T) {
	aliceID, _ := newTestIdentity(t)
	bobID, _ := newTestIdentity(t)
	_, wrongPub := newTestIdentity(t)

	initSt, initMsg, err := InitiateHandshake("bob", aliceID, wrongPub)
	require.NoError(t, err)

	_, respMsg, err := RespondToHandshake("alice", bobID, wrongPub, initMsg)
	require.NoError(t, err)

	_, err = initSt.ProcessResponse(respMsg)
	require.Error(t, err)
	require.Equal(t, PhaseFailed, initSt.Phase())
}

func TestV1HandshakeAcceptsWireEncodedMessage(t *testing.T) {
	aliceID, alicePub := newTestIdentity(t)
	bobID, bobPub := newTestIdentity(t)

	_, initMsg, err := InitiateHandshake("bob", aliceID, bobPub)
	require.NoError(t, err)

	encoded, err := initMsg.Encode()
	require.NoError(t, err)
	decoded, err := DecodeInitMessage(encoded)
	require.NoError(t, err)
	require.Equal(t, initMsg.ECDHPub, decoded.ECDHPub)
	require.Equal(t, initMsg.KyberPub, decoded.KyberPub)

	_, respMsg, err := RespondToHandshake("alice", bobID, alicePub, decoded)
	require.NoError(t, err)
	require.NotNil(t, respMsg)
}
