// Package client implements the peer-facing façade that ties the
// handshake, session, and metadata layers together behind one
// peer_id-keyed API: initiate/respond/complete a handshake, then
// encrypt/decrypt against the resulting session. It is grounded on
// the teacher's Hub (internal/websocket/hub.go), whose
// map[uuid.UUID]map[*Client]bool registry guarded by a single
// sync.RWMutex is generalized here to three peer_id-keyed maps
// (established sessions, pending initiator state, pending responder
// state) under one lock, since a handshake engine replaces the
// teacher's raw *Client connection objects.
package client

import (
	"sync"
	"time"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/config"
	"github.com/b4ae-io/b4ae-core/internal/handshake"
	"github.com/b4ae-io/b4ae-core/internal/metadata"
	"github.com/b4ae-io/b4ae-core/internal/session"
)

// Client is one local endpoint's handshake and session bookkeeping for
// every peer it talks to. A Client is safe for concurrent use across
// different peer_ids, and for sequential use against the same peer_id
// -- same discipline the specification requires of the core generally.
type Client struct {
	identity *handshake.Identity
	cfg      *config.Config

	mu                sync.RWMutex
	sessions          map[string]*session.Session
	pendingInitiators map[string]*handshake.InitiatorState
	pendingResponders map[string]*handshake.ResponderState
	peerIdentities    map[string]handshake.PeerIdentity
}

// New constructs a Client for the given local identity and
// configuration. cfg is validated; a misconfigured cfg is rejected
// here rather than surfacing later as a cryptic failure mid-session.
func New(identity *handshake.Identity, cfg *config.Config) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, b4aeerr.New("client.New", b4aeerr.KindInvalidInput, err)
	}
	return &Client{
		identity:          identity,
		cfg:               cfg,
		sessions:          make(map[string]*session.Session),
		pendingInitiators: make(map[string]*handshake.InitiatorState),
		pendingResponders: make(map[string]*handshake.ResponderState),
		peerIdentities:    make(map[string]handshake.PeerIdentity),
	}, nil
}

// RegisterPeerIdentity records the long-term public signing keys for
// peerID, supplied out of band -- the protocol does not distribute
// identities itself.
func (c *Client) RegisterPeerIdentity(peerID string, peer handshake.PeerIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peerIdentities[peerID] = peer
}

// InitiateHandshake creates a new initiator state under peerID and
// returns Flight 1. It fails ProtocolError if a handshake is already
// pending for this peer.
func (c *Client) InitiateHandshake(peerID string) (*handshake.InitMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pendingInitiators[peerID]; exists {
		return nil, b4aeerr.New("client.Client.InitiateHandshake", b4aeerr.KindProtocolError, b4aeerr.ErrHandshakeAlreadyPending)
	}
	peer, ok := c.peerIdentities[peerID]
	if !ok {
		return nil, b4aeerr.New("client.Client.InitiateHandshake", b4aeerr.KindInvalidInput, b4aeerr.ErrNoPendingHandshake)
	}

	st, init, err := handshake.InitiateHandshake(peerID, c.identity, peer)
	if err != nil {
		return nil, err
	}
	c.pendingInitiators[peerID] = st
	return init, nil
}

// RespondToHandshake creates a responder state from a peer's Flight 1
// and returns Flight 2.
func (c *Client) RespondToHandshake(peerID string, init *handshake.InitMessage) (*handshake.ResponseMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	peer, ok := c.peerIdentities[peerID]
	if !ok {
		return nil, b4aeerr.New("client.Client.RespondToHandshake", b4aeerr.KindInvalidInput, b4aeerr.ErrNoPendingHandshake)
	}

	st, resp, err := handshake.RespondToHandshake(peerID, c.identity, peer, init)
	if err != nil {
		return nil, b4aeerr.New("client.Client.RespondToHandshake", b4aeerr.KindCryptoError, err)
	}
	c.pendingResponders[peerID] = st
	return resp, nil
}

// ProcessResponse processes Flight 2 from the initiator side and
// returns Flight 3. The pending initiator state is retained until
// FinalizeInitiator installs the session.
func (c *Client) ProcessResponse(peerID string, resp *handshake.ResponseMessage) (*handshake.CompleteMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.pendingInitiators[peerID]
	if !ok {
		return nil, b4aeerr.New("client.Client.ProcessResponse", b4aeerr.KindProtocolError, b4aeerr.ErrNoPendingHandshake)
	}
	complete, err := st.ProcessResponse(resp)
	if err != nil {
		delete(c.pendingInitiators, peerID)
		return nil, err
	}
	return complete, nil
}

// FinalizeInitiator installs the session for peerID after Flight 3 has
// been sent, and discards the pending initiator state.
func (c *Client) FinalizeInitiator(peerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.pendingInitiators[peerID]
	if !ok {
		return b4aeerr.New("client.Client.FinalizeInitiator", b4aeerr.KindProtocolError, b4aeerr.ErrNoPendingHandshake)
	}
	res, err := st.FinalizeInitiator()
	delete(c.pendingInitiators, peerID)
	if err != nil {
		return err
	}
	c.sessions[peerID] = session.NewSession(peerID, res.SessionID, res.SendRootKey, res.RecvRootKey,
		c.cfg.ReplayWindowBits, session.NewRotationPolicy(c.cfg.Rotation.MessagesCount, c.cfg.Rotation.Bytes, c.cfg.Rotation.WallClock))
	return nil
}

// CompleteHandshake processes Flight 3 on the responder side and
// installs the session on success.
func (c *Client) CompleteHandshake(peerID string, complete *handshake.CompleteMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.pendingResponders[peerID]
	if !ok {
		return b4aeerr.New("client.Client.CompleteHandshake", b4aeerr.KindProtocolError, b4aeerr.ErrNoPendingHandshake)
	}
	res, err := st.CompleteHandshake(complete)
	delete(c.pendingResponders, peerID)
	if err != nil {
		return err
	}
	c.sessions[peerID] = session.NewSession(peerID, res.SessionID, res.SendRootKey, res.RecvRootKey,
		c.cfg.ReplayWindowBits, session.NewRotationPolicy(c.cfg.Rotation.MessagesCount, c.cfg.Rotation.Bytes, c.cfg.Rotation.WallClock))
	return nil
}

// EncryptMessage requires an established session for peerID. The
// plaintext is padded when the protection level is not None, and the
// call sleeps for metadata.Delay when a timing strategy is set; the
// result is then sealed and wire-encoded into a single transmissible
// record. The rotation trigger the session reports is not acted on
// here: keys rotate only when the caller builds and applies a
// RotationMessage (BuildRotationMessage, ApplyRotation).
func (c *Client) EncryptMessage(peerID string, plaintext, associatedData []byte) ([]byte, error) {
	if len(plaintext) > c.cfg.MaxMessageSize {
		return nil, b4aeerr.New("client.Client.EncryptMessage", b4aeerr.KindResourceExhausted, b4aeerr.ErrMessageTooLarge)
	}

	c.mu.Lock()
	sess, ok := c.sessions[peerID]
	c.mu.Unlock()
	if !ok {
		return nil, b4aeerr.New("client.Client.EncryptMessage", b4aeerr.KindProtocolError, b4aeerr.ErrSessionNotEstablished)
	}

	protected := plaintext
	if c.cfg.ProtectionLevel != config.ProtectionNone {
		var err error
		protected, err = metadata.Pad(plaintext, c.cfg.PaddingBlockSize)
		if err != nil {
			return nil, err
		}
	}

	if c.cfg.TimingStrategy != config.TimingNone {
		time.Sleep(metadata.Delay(c.cfg))
	}

	rec, _, err := sess.EncryptMessage(protected, associatedData)
	if err != nil {
		return nil, err
	}
	return encodeRecord(rec)
}

// DecryptMessage requires an established session for peerID.
func (c *Client) DecryptMessage(peerID string, wireRecord, associatedData []byte) ([]byte, error) {
	c.mu.Lock()
	sess, ok := c.sessions[peerID]
	c.mu.Unlock()
	if !ok {
		return nil, b4aeerr.New("client.Client.DecryptMessage", b4aeerr.KindProtocolError, b4aeerr.ErrSessionNotEstablished)
	}

	rec, err := decodeRecord(wireRecord)
	if err != nil {
		return nil, err
	}
	protected, err := sess.DecryptMessage(rec, associatedData)
	if err != nil {
		return nil, err
	}

	if c.cfg.ProtectionLevel != config.ProtectionNone {
		return metadata.Unpad(protected)
	}
	return protected, nil
}

// HasSession reports whether a session is established for peerID.
func (c *Client) HasSession(peerID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sessions[peerID]
	return ok
}

// CloseSession zeroizes all key material for peerID and discards the
// session.
func (c *Client) CloseSession(peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess, ok := c.sessions[peerID]; ok {
		sess.Close()
		delete(c.sessions, peerID)
	}
}

// EvictIdle closes every session whose last activity predates the
// given cutoff, returning the peer_ids closed. A higher layer decides
// the cutoff and calling cadence; the core itself never times out a
// session on its own.
func (c *Client) EvictIdle(olderThan time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var evicted []string
	for peerID, sess := range c.sessions {
		if sess.LastActivity().Before(olderThan) {
			sess.Close()
			delete(c.sessions, peerID)
			evicted = append(evicted, peerID)
		}
	}
	return evicted
}
