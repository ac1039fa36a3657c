package handshakev2

import (
	"time"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// Phase names a state in the per-role five-plus-two-flight state
// machine. Client and server each pass through a different subset of
// these values, mirroring how internal/handshake shares one Phase
// type across its initiator and responder.
type Phase int

const (
	PhaseFresh Phase = iota
	PhaseSentModeNegotiation
	PhaseReceivedModeNegotiation
	PhaseSentModeSelection
	PhaseReceivedModeSelection
	PhaseSentCookieChallenge
	PhaseReceivedCookieChallenge
	PhaseSentClientHello
	PhaseReceivedClientHello
	PhaseSentHandshakeInit
	PhaseReceivedHandshakeInit
	PhaseSentHandshakeResponse
	PhaseReceivedHandshakeResponse
	PhaseSentHandshakeComplete
	PhaseReceivedHandshakeComplete
	PhaseEstablished
	PhaseFailed
)

// MaxTimestampSkew bounds clock drift on any timestamped v2 flight,
// matching the v1 handshake's tolerance.
const MaxTimestampSkew = time.Hour

// Expiry is the pending v2 handshake lifetime. No code in the module
// reads it: pending client and server states are not reaped on a
// timer.
const Expiry = 60 * time.Second

// Result is what a successfully completed v2 handshake yields.
type Result struct {
	SessionID   [32]byte
	SendRootKey [32]byte
	RecvRootKey [32]byte
	MetadataKey [32]byte
	AuthKey     [32]byte
	SessionKey  [32]byte
	Mode        byte
}

func timestampNow() uint64 { return uint64(time.Now().Unix()) }

func checkTimestamp(ts uint64) error {
	now := time.Now().Unix()
	drift := now - int64(ts)
	if drift < 0 {
		drift = -drift
	}
	if time.Duration(drift)*time.Second > MaxTimestampSkew {
		return b4aeerr.New("handshakev2.checkTimestamp", b4aeerr.KindProtocolError, b4aeerr.ErrTimestampSkew)
	}
	return nil
}

// deriveFinalization derives the full v2 key schedule from the hybrid
// KEM shared secret concatenated with the transcript hash, salted with
// the 32-byte protocol ID so that a v2 session's keys can never collide
// with a different protocol revision's, and over SHA-512 rather than
// v1's SHA3-256. session_id is derived independently from the randoms
// exchanged in Flights A/B and the negotiated mode, then folded into
// session_key's salt alongside the transcript hash, binding the record
// layer's key to this exact handshake attempt and defeating a
// key-transplant that reuses a master secret across sessions.
func deriveFinalization(masterSecret []byte, clientRandom, serverRandom [32]byte, mode byte, transcriptHash []byte) (*Result, error) {
	defer crypto.Zero(masterSecret)

	sessionIDIKM := make([]byte, 0, 65)
	sessionIDIKM = append(sessionIDIKM, clientRandom[:]...)
	sessionIDIKM = append(sessionIDIKM, serverRandom[:]...)
	sessionIDIKM = append(sessionIDIKM, mode)

	res := &Result{Mode: mode}
	sessionID, err := crypto.DeriveKey32(crypto.HashSHA512, sessionIDIKM, nil, crypto.InfoV2SessionID)
	if err != nil {
		return nil, err
	}
	res.SessionID = sessionID

	salt := ProtocolID[:]
	sessionKeySalt := make([]byte, 0, len(salt)+len(sessionID)+len(transcriptHash))
	sessionKeySalt = append(sessionKeySalt, salt...)
	sessionKeySalt = append(sessionKeySalt, sessionID[:]...)
	sessionKeySalt = append(sessionKeySalt, transcriptHash...)

	if res.SessionKey, err = crypto.DeriveKey32(crypto.HashSHA512, masterSecret, sessionKeySalt, crypto.InfoV2SessionKey); err != nil {
		return nil, err
	}
	rootChainKey, err := crypto.DeriveKey32(crypto.HashSHA512, masterSecret, salt, crypto.InfoV2RootChainKey)
	if err != nil {
		return nil, err
	}
	if res.MetadataKey, err = crypto.DeriveKey32(crypto.HashSHA512, masterSecret, salt, crypto.InfoV2MetadataKey); err != nil {
		return nil, err
	}
	if res.AuthKey, err = crypto.DeriveKey32(crypto.HashSHA512, masterSecret, salt, crypto.InfoV2AuthKey); err != nil {
		return nil, err
	}

	initiatorSend, err := crypto.DeriveKey32(crypto.HashSHA512, rootChainKey[:], nil, crypto.InfoV2SendChainInitiator)
	if err != nil {
		return nil, err
	}
	initiatorRecv, err := crypto.DeriveKey32(crypto.HashSHA512, rootChainKey[:], nil, crypto.InfoV2RecvChainInitiator)
	if err != nil {
		return nil, err
	}
	crypto.Zero32(&rootChainKey)

	res.SendRootKey = initiatorSend
	res.RecvRootKey = initiatorRecv
	return res, nil
}

// mirrorForServer swaps send/recv so the server's chains line up with
// the client's.
func mirrorForServer(res *Result) {
	res.SendRootKey, res.RecvRootKey = res.RecvRootKey, res.SendRootKey
}
