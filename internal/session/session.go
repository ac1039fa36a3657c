package session

import (
	"encoding/binary"
	"time"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// EncryptedRecord is the on-the-wire unit produced by EncryptMessage
// and consumed by DecryptMessage: a sequence number, a fresh nonce,
// and the AEAD ciphertext (tag included).
type EncryptedRecord struct {
	Seq        uint64
	Nonce      [crypto.AEADNonceSize]byte
	Ciphertext []byte
}

// Session is one established peer-to-peer record layer: independent
// send and receive ratchets, a replay window guarding the receive
// side, an LRU cache absorbing out-of-order receive-chain keys, and a
// rotation policy governing when the chain roots are refreshed. It is
// grounded on the teacher's SignalSession (internal/security/signal.go),
// generalized to the specification's explicit AAD composition and
// configurable rotation bounds rather than the teacher's fixed rule.
type Session struct {
	PeerID    string
	SessionID [32]byte

	sendChain *ChainState
	recvChain *ChainState

	replay   *ReplayWindow
	keyCache *MessageKeyCache
	rotation *RotationPolicy

	createdAt    time.Time
	lastActivity time.Time
}

// NewSession constructs a session from the send/receive root chain
// keys produced by a handshake, per §4.3's "session established"
// transition.
func NewSession(peerID string, sessionID [32]byte, sendRootKey, recvRootKey [32]byte, replayWindowBits int, rotation *RotationPolicy) *Session {
	now := time.Now()
	if rotation == nil {
		rotation = NewRotationPolicy(0, 0, 0)
	}
	return &Session{
		PeerID:       peerID,
		SessionID:    sessionID,
		sendChain:    NewChainState(sendRootKey),
		recvChain:    NewChainState(recvRootKey),
		replay:       NewReplayWindow(replayWindowBits),
		keyCache:     NewMessageKeyCache(),
		rotation:     rotation,
		createdAt:    now,
		lastActivity: now,
	}
}

// recordAAD composes the associated data bound into every AEAD
// operation: session_id || seq || associated_data, per §4.3. Binding
// the sequence number prevents a ciphertext from one position in the
// chain from being replayed as another; binding the session id
// prevents cross-session splicing.
func recordAAD(sessionID [32]byte, seq uint64, associatedData []byte) []byte {
	aad := make([]byte, 0, len(sessionID)+8+len(associatedData))
	aad = append(aad, sessionID[:]...)
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	aad = append(aad, seqBytes[:]...)
	aad = append(aad, associatedData...)
	return aad
}

// EncryptMessage advances the send chain and seals plaintext under the
// derived message key, returning the record to transmit. It also
// evaluates the rotation policy; callers that receive RotationByX
// should negotiate a RotationMessage with the peer before the next
// send.
func (s *Session) EncryptMessage(plaintext, associatedData []byte) (*EncryptedRecord, RotationTrigger, error) {
	seq := s.sendChain.Counter()
	msgKey, err := s.sendChain.Step()
	if err != nil {
		return nil, RotationNone, b4aeerr.New("session.Session.EncryptMessage", b4aeerr.KindCryptoError, err)
	}
	defer crypto.Zero32(&msgKey)

	nonce, err := crypto.RandomBytes(crypto.AEADNonceSize)
	if err != nil {
		return nil, RotationNone, b4aeerr.New("session.Session.EncryptMessage", b4aeerr.KindCryptoError, err)
	}
	var nonceArr [crypto.AEADNonceSize]byte
	copy(nonceArr[:], nonce)

	aad := recordAAD(s.SessionID, seq, associatedData)
	ct, err := crypto.SealAESGCM(msgKey[:], nonceArr[:], plaintext, aad)
	if err != nil {
		return nil, RotationNone, b4aeerr.New("session.Session.EncryptMessage", b4aeerr.KindCryptoError, err)
	}

	s.lastActivity = time.Now()
	trigger := s.rotation.RecordMessage(len(plaintext))
	return &EncryptedRecord{Seq: seq, Nonce: nonceArr, Ciphertext: ct}, trigger, nil
}

// DecryptMessage verifies and opens a received record. On any failure
// -- authentication, replay, or an out-of-bound sequence -- the chain,
// cache, and replay window are left as they were before the call, per
// §4.3 step 3's "On failure, leave window and chain unchanged". One
// exception: keys cached while catching up to a far-ahead sequence can
// push the oldest cached keys past the cache bound, and those evicted
// keys stay evicted.
func (s *Session) DecryptMessage(rec *EncryptedRecord, associatedData []byte) ([]byte, error) {
	if err := s.replay.Check(rec.Seq); err != nil {
		return nil, err
	}

	// A message key is consumed only by a successful open. If the open
	// below fails, a key taken from the out-of-order cache goes back
	// into it, and a freshly derived key is undone by restoring the
	// receive chain and dropping the keys cached on the way to it.
	saved := *s.recvChain
	defer crypto.Zero32(&saved.chainKey)
	msgKey, fromCache, err := s.messageKeyFor(rec.Seq)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero32(&msgKey)

	aad := recordAAD(s.SessionID, rec.Seq, associatedData)
	pt, err := crypto.OpenAESGCM(msgKey[:], rec.Nonce[:], rec.Ciphertext, aad)
	if err != nil {
		if fromCache {
			s.keyCache.Put(rec.Seq, msgKey)
		} else {
			*s.recvChain = saved
			for at := saved.counter; at < rec.Seq; at++ {
				s.keyCache.Take(at)
			}
		}
		return nil, b4aeerr.New("session.Session.DecryptMessage", b4aeerr.KindAuthenticationFailed, b4aeerr.ErrAuthenticationFailed)
	}

	s.replay.Accept(rec.Seq)
	s.lastActivity = time.Now()
	return pt, nil
}

// messageKeyFor resolves the message key for seq: a key already in
// the LRU cache (from an earlier out-of-order catch-up) is taken and
// consumed; otherwise the receive chain is stepped forward to seq,
// caching any intermediate keys skipped over for later out-of-order
// delivery. A seq below the chain counter whose key is no longer
// cached (already used, or evicted) is rejected as a replay; a seq more
// than MessageKeyCacheBound ahead of the counter is rejected as a
// protocol error (ErrSequenceTooFarAhead).
func (s *Session) messageKeyFor(seq uint64) (key [32]byte, fromCache bool, err error) {
	if k, ok := s.keyCache.Take(seq); ok {
		return k, true, nil
	}
	if seq < s.recvChain.Counter() {
		return [32]byte{}, false, b4aeerr.New("session.Session.messageKeyFor", b4aeerr.KindReplayDetected, b4aeerr.ErrReplayWindowReject)
	}
	if seq > s.recvChain.Counter()+MessageKeyCacheBound {
		return [32]byte{}, false, b4aeerr.New("session.Session.messageKeyFor", b4aeerr.KindProtocolError, b4aeerr.ErrSequenceTooFarAhead)
	}

	derived, stepErr := s.recvChain.StepAt(seq)
	if stepErr != nil {
		return [32]byte{}, false, b4aeerr.New("session.Session.messageKeyFor", b4aeerr.KindCryptoError, stepErr)
	}
	target, ok := derived[seq]
	if !ok {
		return [32]byte{}, false, b4aeerr.New("session.Session.messageKeyFor", b4aeerr.KindProtocolError, b4aeerr.ErrSequenceTooFarAhead)
	}
	for at, k := range derived {
		if at == seq {
			continue
		}
		s.keyCache.Put(at, k)
	}
	return target, false, nil
}

// RotationPolicyFor exposes the session's rotation policy so a
// handshake/control-message layer can decide when to issue or accept a
// RotationMessage.
func (s *Session) RotationPolicyFor() *RotationPolicy { return s.rotation }

// ApplyRotation replaces both chain roots from a negotiated rotation
// input, resetting counters to zero, and records the rotation sequence
// as applied. Because sequence numbers restart at zero, the replay
// window and the out-of-order key cache are reset too (cached keys are
// zeroized). A rotation_sequence already applied is a no-op.
func (s *Session) ApplyRotation(ratchetInput []byte, rotationSeq uint64) error {
	if s.rotation.AlreadyApplied(rotationSeq) {
		return nil
	}
	if err := s.sendChain.Rotate(ratchetInput, rotationSeq); err != nil {
		return b4aeerr.New("session.Session.ApplyRotation", b4aeerr.KindCryptoError, err)
	}
	if err := s.recvChain.Rotate(ratchetInput, rotationSeq); err != nil {
		return b4aeerr.New("session.Session.ApplyRotation", b4aeerr.KindCryptoError, err)
	}
	for seq := range s.keyCache.index {
		s.keyCache.Take(seq)
	}
	s.replay = NewReplayWindow(int(s.replay.size))
	s.rotation.MarkApplied(rotationSeq)
	return nil
}

// CreatedAt and LastActivity expose session bookkeeping timestamps for
// idle-session eviction by a higher layer (internal/client).
func (s *Session) CreatedAt() time.Time    { return s.createdAt }
func (s *Session) LastActivity() time.Time { return s.lastActivity }

// Close zeroizes all key material held by the session. The session
// must not be used afterward.
func (s *Session) Close() {
	s.sendChain.Zeroize()
	s.recvChain.Zeroize()
	for seq := range s.keyCache.index {
		s.keyCache.Take(seq)
	}
}
