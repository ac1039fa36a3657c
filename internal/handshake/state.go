package handshake

import (
	"time"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// Phase names a state in the per-role state machine from §4.2.
type Phase int

const (
	PhaseFresh Phase = iota
	PhaseSentInit
	PhaseReceivedResponse
	PhaseSentComplete
	PhaseReceivedInit
	PhaseSentResponse
	PhaseReceivedComplete
	PhaseEstablished
	PhaseFailed
)

// MaxTimestampSkew is the permitted clock drift on a handshake
// message's timestamp, per §4.2's "timestamp within ±1 hour".
const MaxTimestampSkew = time.Hour

// Expiry is the pending-handshake lifetime of §5. No code in the
// module reads it: pending initiator and responder states are not
// reaped on a timer and stay until they finalize, fail, or are
// discarded by their holder.
const Expiry = 60 * time.Second

// Identity bundles the long-term hybrid signing keys one endpoint
// signs handshake transcripts with.
type Identity struct {
	Ed25519   *crypto.Ed25519KeyPair
	Dilithium *crypto.DilithiumKeyPair
}

// PeerIdentity carries the public half of a peer's long-term signing
// keys, supplied by the caller out of band (§1 Non-goals: the
// protocol does not distribute identities).
type PeerIdentity struct {
	Ed25519Pub   []byte
	DilithiumPub []byte
}

// Result is what a successfully finalized handshake, from either
// role, yields: the material NewSession needs plus bookkeeping.
type Result struct {
	SessionID    [32]byte
	SendRootKey  [32]byte
	RecvRootKey  [32]byte
	MetadataKey  [32]byte
	AuthKey      [32]byte
	SessionKey   [32]byte
}

func timestampNow() uint64 { return uint64(time.Now().Unix()) }

func checkTimestamp(ts uint64) error {
	now := time.Now().Unix()
	drift := now - int64(ts)
	if drift < 0 {
		drift = -drift
	}
	if time.Duration(drift)*time.Second > MaxTimestampSkew {
		return b4aeerr.New("handshake.checkTimestamp", b4aeerr.KindProtocolError, b4aeerr.ErrTimestampSkew)
	}
	return nil
}

func deriveFinalization(masterSecret []byte) (*Result, error) {
	defer crypto.Zero(masterSecret)

	res := &Result{}
	var err error
	if res.SessionKey, err = crypto.DeriveKey32(crypto.HashSHA3_256, masterSecret, nil, crypto.InfoSessionKey); err != nil {
		return nil, err
	}
	rootChainKey, err := crypto.DeriveKey32(crypto.HashSHA3_256, masterSecret, nil, crypto.InfoRootChainKey)
	if err != nil {
		return nil, err
	}
	if res.MetadataKey, err = crypto.DeriveKey32(crypto.HashSHA3_256, masterSecret, nil, crypto.InfoMetadataKey); err != nil {
		return nil, err
	}
	if res.AuthKey, err = crypto.DeriveKey32(crypto.HashSHA3_256, masterSecret, nil, crypto.InfoAuthKey); err != nil {
		return nil, err
	}
	if res.SessionID, err = crypto.DeriveKey32(crypto.HashSHA3_256, masterSecret, nil, crypto.InfoSessionID); err != nil {
		return nil, err
	}

	// Chain roots are themselves derived from the root chain key with
	// directional info tags, so the initiator's send chain and the
	// responder's receive chain start from the same bytes and vice
	// versa -- §4.2 "Instantiate two chain states... distinct info tags".
	initiatorSend, err := crypto.DeriveKey32(crypto.HashSHA3_256, rootChainKey[:], nil, crypto.InfoSendChainInitiator)
	if err != nil {
		return nil, err
	}
	initiatorRecv, err := crypto.DeriveKey32(crypto.HashSHA3_256, rootChainKey[:], nil, crypto.InfoRecvChainInitiator)
	if err != nil {
		return nil, err
	}
	crypto.Zero32(&rootChainKey)

	res.SendRootKey = initiatorSend
	res.RecvRootKey = initiatorRecv
	return res, nil
}

// mirrorForResponder swaps send/recv so the responder's chains line up
// with the initiator's: the initiator's send chain is the responder's
// receive chain, and vice versa.
func mirrorForResponder(res *Result) {
	res.SendRootKey, res.RecvRootKey = res.RecvRootKey, res.SendRootKey
}
