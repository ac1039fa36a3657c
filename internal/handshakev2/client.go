package handshakev2

import (
	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// ClientState tracks one in-progress v2 handshake from the client
// side, mirroring internal/handshake's InitiatorState. The client
// façade in internal/client does not hold v2 states; the caller keeps
// each one until it finalizes or fails, and nothing expires it.
type ClientState struct {
	PeerID   string
	Identity *Identity
	Peer     *PeerIdentity

	phase Phase

	clientRandom [32]byte
	serverRandom [32]byte
	mode         byte
	modeBinding  [32]byte
	cookie       [32]byte
	cookieTS     uint64

	ephemeral  *crypto.HybridKEMKeyPair
	transcript [][]byte

	result *Result
}

// StartNegotiation begins a v2 handshake attempt, producing Flight A.
func StartNegotiation(peerID string, identity *Identity, peer *PeerIdentity, supportedModes []byte, preferredMode byte) (*ClientState, *ModeNegotiationMessage, error) {
	clientRandom, err := crypto.RandomBytes(32)
	if err != nil {
		return nil, nil, b4aeerr.New("handshakev2.StartNegotiation", b4aeerr.KindCryptoError, err)
	}
	st := &ClientState{
		PeerID:   peerID,
		Identity: identity,
		Peer:     peer,
		phase:    PhaseFresh,
	}
	copy(st.clientRandom[:], clientRandom)

	neg := &ModeNegotiationMessage{
		SupportedModes: supportedModes,
		PreferredMode:  preferredMode,
		ClientRandom:   st.clientRandom,
	}
	st.phase = PhaseSentModeNegotiation
	return st, neg, nil
}

// ProcessModeSelection handles Flight B: it records the server's
// random and the negotiated mode, then computes the mode binding both
// sides will carry through the remaining flights.
func (st *ClientState) ProcessModeSelection(sel *ModeSelectionMessage) error {
	if st.phase != PhaseSentModeNegotiation {
		st.fail()
		return b4aeerr.New("handshakev2.ClientState.ProcessModeSelection", b4aeerr.KindStateMachineViolation, b4aeerr.ErrInvalidStateTransition)
	}
	if sel.SelectedMode == ModeC {
		st.fail()
		return b4aeerr.New("handshakev2.ClientState.ProcessModeSelection", b4aeerr.KindProtocolError, b4aeerr.ErrNoCompatibleMode)
	}
	st.serverRandom = sel.ServerRandom
	st.mode = sel.SelectedMode
	st.modeBinding = ModeBinding(st.clientRandom, st.serverRandom, st.mode)
	st.phase = PhaseReceivedModeSelection
	return nil
}

// ProcessCookieChallenge handles Flight C: the server random it
// carries must match the one already bound in ProcessModeSelection,
// guarding against a response substituted from a different attempt.
func (st *ClientState) ProcessCookieChallenge(cc *CookieChallengeMessage) error {
	if st.phase != PhaseReceivedModeSelection {
		st.fail()
		return b4aeerr.New("handshakev2.ClientState.ProcessCookieChallenge", b4aeerr.KindStateMachineViolation, b4aeerr.ErrInvalidStateTransition)
	}
	if !crypto.ConstantTimeCompare(cc.ServerRandom[:], st.serverRandom[:]) {
		st.fail()
		return b4aeerr.New("handshakev2.ClientState.ProcessCookieChallenge", b4aeerr.KindProtocolError, b4aeerr.ErrModeBindingMismatch)
	}
	st.cookie = cc.Cookie
	st.cookieTS = cc.Timestamp
	st.phase = PhaseReceivedCookieChallenge
	return nil
}

// BuildClientHello produces Flight D, echoing the cookie back
// unmodified.
func (st *ClientState) BuildClientHello() (*ClientHelloWithCookieMessage, error) {
	if st.phase != PhaseReceivedCookieChallenge {
		st.fail()
		return nil, b4aeerr.New("handshakev2.ClientState.BuildClientHello", b4aeerr.KindStateMachineViolation, b4aeerr.ErrInvalidStateTransition)
	}
	hello := &ClientHelloWithCookieMessage{
		ClientRandom: st.clientRandom,
		Cookie:       st.cookie,
		Timestamp:    st.cookieTS,
	}
	st.phase = PhaseSentClientHello
	return hello, nil
}

// BuildHandshakeInit produces Flight E: the hybrid ephemeral KEM
// material, bound to the mode negotiated in Flight B.
func (st *ClientState) BuildHandshakeInit() (*HandshakeInitMessage, error) {
	if st.phase != PhaseSentClientHello {
		st.fail()
		return nil, b4aeerr.New("handshakev2.ClientState.BuildHandshakeInit", b4aeerr.KindStateMachineViolation, b4aeerr.ErrInvalidStateTransition)
	}
	ephemeral, err := crypto.GenerateHybridKEMKeyPair()
	if err != nil {
		st.fail()
		return nil, b4aeerr.New("handshakev2.ClientState.BuildHandshakeInit", b4aeerr.KindCryptoError, err)
	}
	st.ephemeral = ephemeral

	init := &HandshakeInitMessage{
		ECDHPub:     ephemeral.ECDH.Public,
		KyberPub:    ephemeral.Kyber.Public,
		Timestamp:   timestampNow(),
		ModeBinding: st.modeBinding,
	}
	encoded, err := init.Encode()
	if err != nil {
		st.fail()
		return nil, err
	}
	st.transcript = [][]byte{encoded}
	st.phase = PhaseSentHandshakeInit
	return init, nil
}

// ProcessHandshakeResponse handles Flight F: it verifies the mode
// binding the server echoed, derives the shared secrets, verifies the
// server's mode-specific signature over the pre-signature transcript,
// and produces Flight G signed with the client's own identity.
func (st *ClientState) ProcessHandshakeResponse(resp *HandshakeResponseMessage) (*HandshakeCompleteMessage, error) {
	if st.phase != PhaseSentHandshakeInit {
		st.fail()
		return nil, b4aeerr.New("handshakev2.ClientState.ProcessHandshakeResponse", b4aeerr.KindStateMachineViolation, b4aeerr.ErrInvalidStateTransition)
	}
	if !crypto.ConstantTimeCompare(resp.ModeBinding[:], st.modeBinding[:]) {
		st.fail()
		return nil, b4aeerr.New("handshakev2.ClientState.ProcessHandshakeResponse", b4aeerr.KindAuthenticationFailed, b4aeerr.ErrModeBindingMismatch)
	}
	if err := checkTimestamp(resp.Timestamp); err != nil {
		st.fail()
		return nil, err
	}

	respEncoded, err := resp.Encode()
	if err != nil {
		st.fail()
		return nil, err
	}
	preSigTranscript := crypto.TranscriptHash(crypto.HashSHA512, ProtocolID[:], st.transcript)

	ssX, err := crypto.X25519Exchange(st.ephemeral.ECDH.Private, resp.ECDHPub)
	if err != nil {
		st.fail()
		return nil, err
	}
	ssKyber, err := crypto.KyberDecapsulate(st.ephemeral.Kyber.Private, resp.KyberCT)
	if err != nil {
		crypto.Zero(ssX)
		st.fail()
		return nil, err
	}

	if !Verify(st.Peer, st.mode, preSigTranscript, resp.Sig) {
		crypto.Zero(ssX)
		crypto.Zero(ssKyber)
		st.fail()
		return nil, b4aeerr.New("handshakev2.ClientState.ProcessHandshakeResponse", b4aeerr.KindAuthenticationFailed, b4aeerr.ErrSignatureInvalid)
	}

	masterSecret := append(append(append([]byte{}, ssX...), ssKyber...), preSigTranscript...)
	crypto.Zero(ssX)
	crypto.Zero(ssKyber)

	res, err := deriveFinalization(masterSecret, st.clientRandom, st.serverRandom, st.mode, preSigTranscript)
	if err != nil {
		st.fail()
		return nil, err
	}
	st.result = res

	st.transcript = append(st.transcript, respEncoded)
	postSigTranscript := crypto.TranscriptHash(crypto.HashSHA512, ProtocolID[:], st.transcript)

	sig, err := st.Identity.Sign(st.mode, postSigTranscript)
	if err != nil {
		st.fail()
		return nil, err
	}

	complete := &HandshakeCompleteMessage{
		Sig:         sig,
		Timestamp:   timestampNow(),
		ModeBinding: st.modeBinding,
	}
	st.phase = PhaseReceivedHandshakeResponse
	return complete, nil
}

// FinalizeClient installs the session after Flight G has been sent,
// zeroizing the ephemeral handshake keys.
func (st *ClientState) FinalizeClient() (*Result, error) {
	if st.phase != PhaseReceivedHandshakeResponse {
		st.fail()
		return nil, b4aeerr.New("handshakev2.ClientState.FinalizeClient", b4aeerr.KindStateMachineViolation, b4aeerr.ErrInvalidStateTransition)
	}
	st.ephemeral.Zeroize()
	st.phase = PhaseEstablished
	return st.result, nil
}

func (st *ClientState) fail() {
	st.phase = PhaseFailed
	st.ephemeral.Zeroize()
}

// Phase exposes the current state for diagnostics and tests.
func (st *ClientState) Phase() Phase { return st.phase }
