package handshakev2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestPeer(t *testing.T) (*Identity, *PeerIdentity) {
	t.Helper()
	id, err := NewSoftwareIdentity()
	require.NoError(t, err)
	pub, ok := id.XEdDSAPublic()
	require.True(t, ok)
	peer := &PeerIdentity{
		XEdDSAPublic:    pub,
		HasXEdDSA:       true,
		DilithiumPublic: append([]byte{}, id.Dilithium.Public...),
	}
	return id, peer
}

// runHandshake drives a full seven-flight exchange with the given
// client/server supported-mode lists, returning both sides' results.
func runHandshake(t *testing.T, clientModes, serverModes []byte) (*Result, *Result) {
	t.Helper()
	aliceID, alicePeer := newTestPeer(t)
	bobID, bobPeer := newTestPeer(t)

	cm, err := NewCookieManager(time.Hour)
	require.NoError(t, err)
	replay, err := NewReplaySet()
	require.NoError(t, err)

	clientSt, negMsg, err := StartNegotiation("bob", aliceID, bobPeer, clientModes, clientModes[0])
	require.NoError(t, err)

	selMsg, ccMsg, err := NegotiateAndChallenge(cm, NegotiationPolicy{SupportedModes: serverModes}, negMsg)
	require.NoError(t, err)

	require.NoError(t, clientSt.ProcessModeSelection(selMsg))
	require.NoError(t, clientSt.ProcessCookieChallenge(ccMsg))

	helloMsg, err := clientSt.BuildClientHello()
	require.NoError(t, err)

	serverSt, err := VerifyClientHello(cm, replay, "alice", bobID, alicePeer, selMsg.ServerRandom, selMsg.SelectedMode, helloMsg)
	require.NoError(t, err)

	initMsg, err := clientSt.BuildHandshakeInit()
	require.NoError(t, err)

	respMsg, err := serverSt.RespondToHandshakeInit(initMsg)
	require.NoError(t, err)

	completeMsg, err := clientSt.ProcessHandshakeResponse(respMsg)
	require.NoError(t, err)

	serverResult, err := serverSt.CompleteHandshake(completeMsg)
	require.NoError(t, err)
	require.Equal(t, PhaseEstablished, serverSt.Phase())

	clientResult, err := clientSt.FinalizeClient()
	require.NoError(t, err)
	require.Equal(t, PhaseEstablished, clientSt.Phase())

	return clientResult, serverResult
}

func TestV2HandshakeRoundTripModeB(t *testing.T) {
	clientResult, serverResult := runHandshake(t, []byte{ModeB, ModeA}, []byte{ModeB, ModeA})
	require.Equal(t, ModeB, clientResult.Mode)
	require.Equal(t, clientResult.SessionID, serverResult.SessionID)
	require.Equal(t, clientResult.SendRootKey, serverResult.RecvRootKey)
	require.Equal(t, clientResult.RecvRootKey, serverResult.SendRootKey)
	require.Equal(t, clientResult.SessionKey, serverResult.SessionKey)
}

func TestV2HandshakeRoundTripModeA(t *testing.T) {
	// Server only offers Mode A: the client's preference for Mode B
	// cannot be satisfied, so negotiation falls back to the only
	// mutually supported option.
	clientResult, serverResult := runHandshake(t, []byte{ModeB, ModeA}, []byte{ModeA})
	require.Equal(t, ModeA, clientResult.Mode)
	require.Equal(t, clientResult.SessionID, serverResult.SessionID)
}

func TestV2HandshakeRejectsModeCOnlyClient(t *testing.T) {
	_, negMsg, err := StartNegotiation("bob", nil, nil, []byte{ModeC}, ModeC)
	require.NoError(t, err)

	cm, err := NewCookieManager(time.Hour)
	require.NoError(t, err)

	_, _, err = NegotiateAndChallenge(cm, NegotiationPolicy{SupportedModes: []byte{ModeB, ModeA}}, negMsg)
	require.Error(t, err)
}

func TestV2HandshakeModeBindingMismatchDetected(t *testing.T) {
	aliceID, alicePeer := newTestPeer(t)
	bobID, bobPeer := newTestPeer(t)

	cm, err := NewCookieManager(time.Hour)
	require.NoError(t, err)
	replay, err := NewReplaySet()
	require.NoError(t, err)

	clientSt, negMsg, err := StartNegotiation("bob", aliceID, bobPeer, []byte{ModeB, ModeA}, ModeB)
	require.NoError(t, err)

	selMsg, ccMsg, err := NegotiateAndChallenge(cm, NegotiationPolicy{SupportedModes: []byte{ModeB, ModeA}}, negMsg)
	require.NoError(t, err)

	require.NoError(t, clientSt.ProcessModeSelection(selMsg))
	require.NoError(t, clientSt.ProcessCookieChallenge(ccMsg))

	helloMsg, err := clientSt.BuildClientHello()
	require.NoError(t, err)

	serverSt, err := VerifyClientHello(cm, replay, "alice", bobID, alicePeer, selMsg.ServerRandom, selMsg.SelectedMode, helloMsg)
	require.NoError(t, err)

	initMsg, err := clientSt.BuildHandshakeInit()
	require.NoError(t, err)

	// Tamper with the mode binding a downgrading attacker would have
	// to forge: the server must reject it rather than silently
	// accepting a different negotiated mode than it committed to.
	initMsg.ModeBinding[0] ^= 0xFF

	_, err = serverSt.RespondToHandshakeInit(initMsg)
	require.Error(t, err)
	require.Equal(t, PhaseFailed, serverSt.Phase())
}

func TestV2CookieRejectsWithoutAsymmetricCrypto(t *testing.T) {
	cm, err := NewCookieManager(time.Hour)
	require.NoError(t, err)

	var clientRandom, serverRandom [32]byte
	clientRandom[0] = 1
	serverRandom[0] = 2
	ts := uint64(time.Now().Unix())
	cookie := cm.Issue(clientRandom, serverRandom, ts)

	require.NoError(t, cm.Verify(clientRandom, serverRandom, ts, cookie))

	tampered := cookie
	tampered[0] ^= 0xFF
	require.Error(t, cm.Verify(clientRandom, serverRandom, ts, tampered))

	require.Error(t, cm.Verify(clientRandom, serverRandom, ts-3600, cookie))
}

func TestV2ReplaySetDetectsRepeatedClientRandom(t *testing.T) {
	replay, err := NewReplaySet()
	require.NoError(t, err)

	var cr [32]byte
	cr[0] = 7
	require.NoError(t, replay.CheckAndAdd(cr))
	require.Error(t, replay.CheckAndAdd(cr))
}
