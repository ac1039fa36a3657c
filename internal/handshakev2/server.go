package handshakev2

import (
	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// NegotiationPolicy is the server's configured mode offer. ModeC must
// never appear here; SelectMode already refuses it unconditionally,
// but a deployment should not advertise it either.
type NegotiationPolicy struct {
	SupportedModes []byte
}

// NegotiateAndChallenge handles Flights A through C in a single call.
// It allocates no ServerState -- an unauthenticated Flight A carries
// no proof of anything, so
// nothing is checked against the replay set until VerifyClientHello
// has the cookie to show for it. The cookie binds serverRandom, and
// ClientHelloWithCookieMessage carries neither serverRandom nor the
// selected mode, so the caller keeps both from the returned
// ModeSelectionMessage and passes them to VerifyClientHello.
func NegotiateAndChallenge(cm *CookieManager, policy NegotiationPolicy, neg *ModeNegotiationMessage) (*ModeSelectionMessage, *CookieChallengeMessage, error) {
	mode, ok := SelectMode(neg.SupportedModes, policy.SupportedModes)
	if !ok {
		return nil, nil, b4aeerr.New("handshakev2.NegotiateAndChallenge", b4aeerr.KindProtocolError, b4aeerr.ErrNoCompatibleMode)
	}

	serverRandomBytes, err := crypto.RandomBytes(32)
	if err != nil {
		return nil, nil, b4aeerr.New("handshakev2.NegotiateAndChallenge", b4aeerr.KindCryptoError, err)
	}
	var serverRandom [32]byte
	copy(serverRandom[:], serverRandomBytes)

	sel := &ModeSelectionMessage{SelectedMode: mode, ServerRandom: serverRandom}

	ts := timestampNow()
	cookie := cm.Issue(neg.ClientRandom, serverRandom, ts)
	cc := &CookieChallengeMessage{Cookie: cookie, ServerRandom: serverRandom, Timestamp: ts}

	return sel, cc, nil
}

// ServerState tracks one in-progress v2 handshake from the server
// side, created only once VerifyClientHello has succeeded -- the
// point at which the attempt has proven it is not spoofed-source
// traffic and is worth the memory.
type ServerState struct {
	PeerID   string
	Identity *Identity
	Peer     *PeerIdentity

	phase Phase

	clientRandom [32]byte
	serverRandom [32]byte
	mode         byte
	modeBinding  [32]byte

	ephemeral  *crypto.X25519KeyPair
	transcript [][]byte

	result *Result
}

// VerifyClientHello handles Flight D: it reverifies the cookie against
// the fields the client echoed, then checks client_random against the
// replay set -- only now that the cookie has proven the client
// observed Flight C is it worth the filter slot and the asymmetric
// cryptography that follows in RespondToHandshakeInit. serverRandom
// and mode are the values NegotiateAndChallenge returned for this
// attempt, supplied by the caller since the server kept no record of
// them; clientRandom comes from hello.
func VerifyClientHello(cm *CookieManager, replay *ReplaySet, peerID string, identity *Identity, peer *PeerIdentity, serverRandom [32]byte, mode byte, hello *ClientHelloWithCookieMessage) (*ServerState, error) {
	if err := cm.Verify(hello.ClientRandom, serverRandom, hello.Timestamp, hello.Cookie); err != nil {
		return nil, err
	}
	if err := replay.CheckAndAdd(hello.ClientRandom); err != nil {
		return nil, err
	}
	st := &ServerState{
		PeerID:       peerID,
		Identity:     identity,
		Peer:         peer,
		phase:        PhaseReceivedClientHello,
		clientRandom: hello.ClientRandom,
		serverRandom: serverRandom,
		mode:         mode,
		modeBinding:  ModeBinding(hello.ClientRandom, serverRandom, mode),
	}
	return st, nil
}

// RespondToHandshakeInit handles Flight E and produces Flight F: the
// server generates its own X25519 ephemeral, encapsulates against the
// client's Kyber public key, performs the ECDH, and signs the
// transcript hash so far with its mode-specific identity key.
func (st *ServerState) RespondToHandshakeInit(init *HandshakeInitMessage) (*HandshakeResponseMessage, error) {
	if st.phase != PhaseReceivedClientHello {
		st.fail()
		return nil, b4aeerr.New("handshakev2.ServerState.RespondToHandshakeInit", b4aeerr.KindStateMachineViolation, b4aeerr.ErrInvalidStateTransition)
	}
	if !crypto.ConstantTimeCompare(init.ModeBinding[:], st.modeBinding[:]) {
		st.fail()
		return nil, b4aeerr.New("handshakev2.ServerState.RespondToHandshakeInit", b4aeerr.KindAuthenticationFailed, b4aeerr.ErrModeBindingMismatch)
	}
	if err := checkTimestamp(init.Timestamp); err != nil {
		st.fail()
		return nil, err
	}
	if len(init.KyberPub) != crypto.Kyber1024PublicKeySize {
		st.fail()
		return nil, b4aeerr.New("handshakev2.ServerState.RespondToHandshakeInit", b4aeerr.KindInvalidInput, b4aeerr.ErrInvalidKeySize)
	}

	initEncoded, err := init.Encode()
	if err != nil {
		st.fail()
		return nil, err
	}
	st.transcript = [][]byte{initEncoded}
	preSigTranscript := crypto.TranscriptHash(crypto.HashSHA512, ProtocolID[:], st.transcript)

	ecdhEphemeral, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		st.fail()
		return nil, b4aeerr.New("handshakev2.ServerState.RespondToHandshakeInit", b4aeerr.KindCryptoError, err)
	}
	st.ephemeral = ecdhEphemeral

	ssX, err := crypto.X25519Exchange(ecdhEphemeral.Private, init.ECDHPub)
	if err != nil {
		st.fail()
		return nil, b4aeerr.New("handshakev2.ServerState.RespondToHandshakeInit", b4aeerr.KindCryptoError, err)
	}
	kyberCT, ssKyber, err := crypto.KyberEncapsulate(init.KyberPub)
	if err != nil {
		crypto.Zero(ssX)
		st.fail()
		return nil, b4aeerr.New("handshakev2.ServerState.RespondToHandshakeInit", b4aeerr.KindCryptoError, err)
	}

	masterSecret := append(append(append([]byte{}, ssX...), ssKyber...), preSigTranscript...)
	crypto.Zero(ssX)
	crypto.Zero(ssKyber)

	res, err := deriveFinalization(masterSecret, st.clientRandom, st.serverRandom, st.mode, preSigTranscript)
	if err != nil {
		st.fail()
		return nil, err
	}
	mirrorForServer(res)
	st.result = res

	sig, err := st.Identity.Sign(st.mode, preSigTranscript)
	if err != nil {
		st.fail()
		return nil, err
	}

	resp := &HandshakeResponseMessage{
		ECDHPub:     ecdhEphemeral.Public,
		KyberCT:     kyberCT,
		Sig:         sig,
		Timestamp:   timestampNow(),
		ModeBinding: st.modeBinding,
	}
	respEncoded, err := resp.Encode()
	if err != nil {
		st.fail()
		return nil, err
	}
	st.transcript = append(st.transcript, respEncoded)
	st.phase = PhaseSentHandshakeResponse
	return resp, nil
}

// CompleteHandshake handles Flight G: it verifies the client's
// mode-specific signature over the final transcript and installs the
// session on success.
func (st *ServerState) CompleteHandshake(complete *HandshakeCompleteMessage) (*Result, error) {
	if st.phase != PhaseSentHandshakeResponse {
		st.fail()
		return nil, b4aeerr.New("handshakev2.ServerState.CompleteHandshake", b4aeerr.KindStateMachineViolation, b4aeerr.ErrInvalidStateTransition)
	}
	if !crypto.ConstantTimeCompare(complete.ModeBinding[:], st.modeBinding[:]) {
		st.fail()
		return nil, b4aeerr.New("handshakev2.ServerState.CompleteHandshake", b4aeerr.KindAuthenticationFailed, b4aeerr.ErrModeBindingMismatch)
	}
	if err := checkTimestamp(complete.Timestamp); err != nil {
		st.fail()
		return nil, err
	}

	finalTranscriptHash := crypto.TranscriptHash(crypto.HashSHA512, ProtocolID[:], st.transcript)
	if !Verify(st.Peer, st.mode, finalTranscriptHash, complete.Sig) {
		st.fail()
		return nil, b4aeerr.New("handshakev2.ServerState.CompleteHandshake", b4aeerr.KindAuthenticationFailed, b4aeerr.ErrSignatureInvalid)
	}

	st.ephemeral.Zeroize()
	st.phase = PhaseEstablished
	return st.result, nil
}

func (st *ServerState) fail() {
	st.phase = PhaseFailed
	st.ephemeral.Zeroize()
}

// Phase exposes the current state for diagnostics and tests.
func (st *ServerState) Phase() Phase { return st.phase }
