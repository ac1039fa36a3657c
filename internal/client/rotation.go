package client

import (
	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
	"github.com/b4ae-io/b4ae-core/internal/wire"
)

const msgTypeRotation byte = 0x21

// RotationMessage is the in-session control plaintext that signals a
// chain-key rotation: the caller encrypts this with EncryptMessage
// like any other payload and the peer decrypts it with DecryptMessage
// before passing it to ApplyRotation.
type RotationMessage struct {
	RotationSequence uint64
	NewKeyMaterial   []byte
}

func (m *RotationMessage) Encode() ([]byte, error) {
	w := wire.NewWriter()
	w.Byte(msgTypeRotation).Uint64(m.RotationSequence).Bytes(m.NewKeyMaterial)
	return w.Finish()
}

func DecodeRotationMessage(buf []byte) (*RotationMessage, error) {
	r, err := wire.NewReader(buf)
	if err != nil {
		return nil, err
	}
	msgType, err := r.Byte()
	if err != nil {
		return nil, err
	}
	if msgType != msgTypeRotation {
		return nil, b4aeerr.New("client.DecodeRotationMessage", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
	}
	m := &RotationMessage{}
	if m.RotationSequence, err = r.Uint64(); err != nil {
		return nil, err
	}
	if m.NewKeyMaterial, err = r.Bytes(); err != nil {
		return nil, err
	}
	if err := r.RequireExhausted(); err != nil {
		return nil, err
	}
	return m, nil
}

// BuildRotationMessage draws fresh ratchet input and stamps the next
// rotation sequence for peerID. The caller is responsible for
// encrypting and sending the result, then calling ApplyRotation on its
// own side exactly as the peer will on receipt.
func (c *Client) BuildRotationMessage(peerID string) (*RotationMessage, error) {
	c.mu.Lock()
	sess, ok := c.sessions[peerID]
	c.mu.Unlock()
	if !ok {
		return nil, b4aeerr.New("client.Client.BuildRotationMessage", b4aeerr.KindProtocolError, b4aeerr.ErrSessionNotEstablished)
	}

	ratchetInput, err := crypto.RandomBytes(32)
	if err != nil {
		return nil, b4aeerr.New("client.Client.BuildRotationMessage", b4aeerr.KindCryptoError, err)
	}
	seq := sess.RotationPolicyFor().NextRotationSequence()
	return &RotationMessage{RotationSequence: seq, NewKeyMaterial: ratchetInput}, nil
}

// ApplyRotation replaces both chain roots for peerID from msg. It is
// idempotent: a rotation_sequence already applied is a no-op.
func (c *Client) ApplyRotation(peerID string, msg *RotationMessage) error {
	c.mu.Lock()
	sess, ok := c.sessions[peerID]
	c.mu.Unlock()
	if !ok {
		return b4aeerr.New("client.Client.ApplyRotation", b4aeerr.KindProtocolError, b4aeerr.ErrSessionNotEstablished)
	}
	return sess.ApplyRotation(msg.NewKeyMaterial, msg.RotationSequence)
}
