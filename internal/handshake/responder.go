package handshake

import (
	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// ResponderState tracks one in-progress handshake from the responding
// side.
type ResponderState struct {
	PeerID   string
	Identity *Identity
	Peer     PeerIdentity

	phase Phase

	ephemeral  *crypto.X25519KeyPair
	transcript [][]byte

	result *Result
}

// RespondToHandshake validates Flight 1 and produces Flight 2. The
// responder generates its own X25519 ephemeral, encapsulates against
// the initiator's Kyber public key, performs the ECDH, and signs the
// transcript hash so far with its hybrid identity.
func RespondToHandshake(peerID string, identity *Identity, peer PeerIdentity, init *InitMessage) (*ResponderState, *ResponseMessage, error) {
	if init.ProtoVersion != ProtoVersion || init.Ciphersuite != CiphersuiteHybridKEM {
		return nil, nil, b4aeerr.New("handshake.RespondToHandshake", b4aeerr.KindProtocolError, b4aeerr.ErrUnsupportedCiphersuite)
	}
	if err := checkTimestamp(init.Timestamp); err != nil {
		return nil, nil, err
	}
	if len(init.KyberPub) != crypto.Kyber1024PublicKeySize {
		return nil, nil, b4aeerr.New("handshake.RespondToHandshake", b4aeerr.KindInvalidInput, b4aeerr.ErrInvalidKeySize)
	}

	initEncoded, err := init.Encode()
	if err != nil {
		return nil, nil, err
	}
	transcript := [][]byte{initEncoded}
	preSigTranscript := crypto.TranscriptHash(crypto.HashSHA3_256, domainPrefix, transcript)

	ecdhEphemeral, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, nil, b4aeerr.New("handshake.RespondToHandshake", b4aeerr.KindCryptoError, err)
	}
	ssX, err := crypto.X25519Exchange(ecdhEphemeral.Private, init.ECDHPub)
	if err != nil {
		ecdhEphemeral.Zeroize()
		return nil, nil, b4aeerr.New("handshake.RespondToHandshake", b4aeerr.KindCryptoError, err)
	}
	kyberCT, ssKyber, err := crypto.KyberEncapsulate(init.KyberPub)
	if err != nil {
		ecdhEphemeral.Zeroize()
		crypto.Zero(ssX)
		return nil, nil, b4aeerr.New("handshake.RespondToHandshake", b4aeerr.KindCryptoError, err)
	}

	masterSecret := append(append(append([]byte{}, ssX...), ssKyber...), preSigTranscript...)
	crypto.Zero(ssX)
	crypto.Zero(ssKyber)

	res, err := deriveFinalization(masterSecret)
	if err != nil {
		ecdhEphemeral.Zeroize()
		return nil, nil, err
	}
	mirrorForResponder(res)

	sig, err := crypto.SignHybrid(identity.Ed25519, identity.Dilithium, preSigTranscript)
	if err != nil {
		ecdhEphemeral.Zeroize()
		return nil, nil, err
	}

	resp := &ResponseMessage{
		ProtoVersion: ProtoVersion,
		Ciphersuite:  CiphersuiteHybridKEM,
		ECDHPub:      ecdhEphemeral.Public,
		KyberCT:      kyberCT,
		HybridSig:    sig,
		Timestamp:    timestampNow(),
	}
	respEncoded, err := resp.Encode()
	if err != nil {
		ecdhEphemeral.Zeroize()
		return nil, nil, err
	}
	transcript = append(transcript, respEncoded)

	st := &ResponderState{
		PeerID:     peerID,
		Identity:   identity,
		Peer:       peer,
		phase:      PhaseSentResponse,
		ephemeral:  ecdhEphemeral,
		transcript: transcript,
		result:     res,
	}
	return st, resp, nil
}

// CompleteHandshake processes Flight 3: verifies the initiator's
// hybrid signature over the final transcript and installs the
// session on success.
func (st *ResponderState) CompleteHandshake(complete *CompleteMessage) (*Result, error) {
	if st.phase != PhaseSentResponse {
		st.fail()
		return nil, b4aeerr.New("handshake.ResponderState.CompleteHandshake", b4aeerr.KindStateMachineViolation, b4aeerr.ErrInvalidStateTransition)
	}
	if complete.ProtoVersion != ProtoVersion {
		st.fail()
		return nil, b4aeerr.New("handshake.ResponderState.CompleteHandshake", b4aeerr.KindProtocolError, b4aeerr.ErrUnsupportedVersion)
	}
	if err := checkTimestamp(complete.Timestamp); err != nil {
		st.fail()
		return nil, err
	}

	finalTranscriptHash := crypto.TranscriptHash(crypto.HashSHA3_256, domainPrefix, st.transcript)
	if !crypto.VerifyHybrid(st.Peer.Ed25519Pub, st.Peer.DilithiumPub, finalTranscriptHash, complete.HybridSig) {
		st.fail()
		return nil, b4aeerr.New("handshake.ResponderState.CompleteHandshake", b4aeerr.KindAuthenticationFailed, b4aeerr.ErrSignatureInvalid)
	}

	st.ephemeral.Zeroize()
	st.phase = PhaseEstablished
	return st.result, nil
}

func (st *ResponderState) fail() {
	st.phase = PhaseFailed
	st.ephemeral.Zeroize()
}

// Phase exposes the current state for diagnostics and tests.
func (st *ResponderState) Phase() Phase { return st.phase }
