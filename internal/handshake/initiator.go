package handshake

import (
	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// InitiatorState tracks one in-progress handshake from the initiating
// side. It is keyed by peer_id in the client façade and discarded on
// finalize or error; it has no timeout.
type InitiatorState struct {
	PeerID   string
	Identity *Identity
	Peer     PeerIdentity

	phase Phase

	ephemeral *crypto.HybridKEMKeyPair
	transcript [][]byte

	result *Result
}

// InitiateHandshake creates Flight 1 for a fresh initiator state.
func InitiateHandshake(peerID string, identity *Identity, peer PeerIdentity) (*InitiatorState, *InitMessage, error) {
	ephemeral, err := crypto.GenerateHybridKEMKeyPair()
	if err != nil {
		return nil, nil, b4aeerr.New("handshake.InitiateHandshake", b4aeerr.KindCryptoError, err)
	}

	init := &InitMessage{
		ProtoVersion: ProtoVersion,
		Ciphersuite:  CiphersuiteHybridKEM,
		ECDHPub:      ephemeral.ECDH.Public,
		KyberPub:     ephemeral.Kyber.Public,
		Timestamp:    timestampNow(),
	}
	encoded, err := init.Encode()
	if err != nil {
		ephemeral.Zeroize()
		return nil, nil, err
	}

	st := &InitiatorState{
		PeerID:     peerID,
		Identity:   identity,
		Peer:       peer,
		phase:      PhaseSentInit,
		ephemeral:  ephemeral,
		transcript: [][]byte{encoded},
	}
	return st, init, nil
}

// ProcessResponse is Flight 2 processing plus Flight 3 construction:
// the initiator recomputes the shared secrets, verifies the
// responder's hybrid signature over the transcript so far, and signs
// the updated transcript with its own identity.
func (st *InitiatorState) ProcessResponse(resp *ResponseMessage) (*CompleteMessage, error) {
	if st.phase != PhaseSentInit {
		st.fail()
		return nil, b4aeerr.New("handshake.InitiatorState.ProcessResponse", b4aeerr.KindStateMachineViolation, b4aeerr.ErrInvalidStateTransition)
	}
	if resp.ProtoVersion != ProtoVersion || resp.Ciphersuite != CiphersuiteHybridKEM {
		st.fail()
		return nil, b4aeerr.New("handshake.InitiatorState.ProcessResponse", b4aeerr.KindProtocolError, b4aeerr.ErrUnsupportedCiphersuite)
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
	preSigTranscript := crypto.TranscriptHash(crypto.HashSHA3_256, domainPrefix, st.transcript)

	ssX, err := crypto.X25519Exchange(st.ephemeral.ECDH.Private, resp.ECDHPub)
	if err != nil {
		st.fail()
		return nil, err
	}
	ssKyber, err := crypto.KyberDecapsulate(st.ephemeral.Kyber.Private, resp.KyberCT)
	if err != nil {
		st.fail()
		return nil, err
	}

	if !crypto.VerifyHybrid(st.Peer.Ed25519Pub, st.Peer.DilithiumPub, preSigTranscript, resp.HybridSig) {
		crypto.Zero(ssX)
		crypto.Zero(ssKyber)
		st.fail()
		return nil, b4aeerr.New("handshake.InitiatorState.ProcessResponse", b4aeerr.KindAuthenticationFailed, b4aeerr.ErrSignatureInvalid)
	}

	masterSecret := append(append(append([]byte{}, ssX...), ssKyber...), preSigTranscript...)
	crypto.Zero(ssX)
	crypto.Zero(ssKyber)

	res, err := deriveFinalization(masterSecret)
	if err != nil {
		st.fail()
		return nil, err
	}
	st.result = res

	st.transcript = append(st.transcript, respEncoded)
	postSigTranscript := crypto.TranscriptHash(crypto.HashSHA3_256, domainPrefix, st.transcript)

	sig, err := crypto.SignHybrid(st.Identity.Ed25519, st.Identity.Dilithium, postSigTranscript)
	if err != nil {
		st.fail()
		return nil, err
	}

	complete := &CompleteMessage{
		ProtoVersion: ProtoVersion,
		HybridSig:    sig,
		Timestamp:    timestampNow(),
	}
	completeEncoded, err := complete.Encode()
	if err != nil {
		st.fail()
		return nil, err
	}
	st.transcript = append(st.transcript, completeEncoded)

	st.phase = PhaseReceivedResponse
	return complete, nil
}

// FinalizeInitiator installs the session after Complete has been sent,
// zeroizing the ephemeral handshake keys. Called once ProcessResponse
// has succeeded.
func (st *InitiatorState) FinalizeInitiator() (*Result, error) {
	if st.phase != PhaseReceivedResponse {
		st.fail()
		return nil, b4aeerr.New("handshake.InitiatorState.FinalizeInitiator", b4aeerr.KindStateMachineViolation, b4aeerr.ErrInvalidStateTransition)
	}
	st.ephemeral.Zeroize()
	st.phase = PhaseEstablished
	return st.result, nil
}

func (st *InitiatorState) fail() {
	st.phase = PhaseFailed
	st.ephemeral.Zeroize()
}

// Phase exposes the current state for diagnostics and tests.
func (st *InitiatorState) Phase() Phase { return st.phase }
