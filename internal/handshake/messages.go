// Package handshake implements the v1 three-flight authenticated key
// establishment described in §4.2: Init / Response / Complete,
// transcript hashing, and finalization into session key material. It
// is grounded on the teacher's X3DH exchange shape
// (internal/security/signal.go) and the pack's guard-clause
// state-machine idiom (pkg/tunnel/handshake.go), generalized from a
// single-KEM exchange to the hybrid X25519+Kyber1024 construction and
// hybrid Ed25519+Dilithium5 signatures this protocol requires.
package handshake

import (
	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
	"github.com/b4ae-io/b4ae-core/internal/wire"
)

// ProtoVersion is the v1 wire protocol version, per §6.
const ProtoVersion uint16 = 1

// Message-type discriminants, local to v1 flights.
const (
	MsgTypeInit     byte = 0x01
	MsgTypeResponse byte = 0x02
	MsgTypeComplete byte = 0x03
)

// Ciphersuite identifiers, per §6.
const (
	CiphersuiteHybridKEM  byte = 0x01
	CiphersuiteHybridSign byte = 0x02
	CiphersuiteAEADGCM    byte = 0x03
)

// domainPrefix domain-separates the v1 transcript hash from any other
// hash computed in this module.
var domainPrefix = []byte("B4AE-v1-transcript")

// InitMessage is Flight 1.
type InitMessage struct {
	ProtoVersion uint16
	Ciphersuite  byte
	ECDHPub      [32]byte
	KyberPub     []byte
	Timestamp    uint64
	Extensions   []byte
}

func (m *InitMessage) Encode() ([]byte, error) {
	w := wire.NewWriter()
	w.Byte(MsgTypeInit).Uint16(m.ProtoVersion).Byte(m.Ciphersuite).
		Raw(m.ECDHPub[:]).Bytes(m.KyberPub).Uint64(m.Timestamp).Bytes(m.Extensions)
	return w.Finish()
}

func DecodeInitMessage(buf []byte) (*InitMessage, error) {
	r, err := wire.NewReader(buf)
	if err != nil {
		return nil, err
	}
	msgType, err := r.Byte()
	if err != nil {
		return nil, err
	}
	if msgType != MsgTypeInit {
		return nil, b4aeerr.New("handshake.DecodeInitMessage", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
	}
	m := &InitMessage{}
	if m.ProtoVersion, err = r.Uint16(); err != nil {
		return nil, err
	}
	if m.Ciphersuite, err = r.Byte(); err != nil {
		return nil, err
	}
	ecdh, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	copy(m.ECDHPub[:], ecdh)
	if m.KyberPub, err = r.Bytes(); err != nil {
		return nil, err
	}
	if m.Timestamp, err = r.Uint64(); err != nil {
		return nil, err
	}
	if m.Extensions, err = r.Bytes(); err != nil {
		return nil, err
	}
	if err := r.RequireExhausted(); err != nil {
		return nil, err
	}
	return m, nil
}

// ResponseMessage is Flight 2.
type ResponseMessage struct {
	ProtoVersion uint16
	Ciphersuite  byte
	ECDHPub      [32]byte
	KyberCT      []byte
	HybridSig    *crypto.HybridSignature
	Timestamp    uint64
	Extensions   []byte
}

func encodeHybridSig(w *wire.Writer, sig *crypto.HybridSignature) {
	w.Bytes(sig.Ed25519).Raw(sig.Dilithium)
}

func decodeHybridSig(r *wire.Reader) (*crypto.HybridSignature, error) {
	ed, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	dil, err := r.Raw(crypto.Dilithium5SignatureSize)
	if err != nil {
		return nil, err
	}
	return &crypto.HybridSignature{Ed25519: ed, Dilithium: dil}, nil
}

func (m *ResponseMessage) Encode() ([]byte, error) {
	w := wire.NewWriter()
	w.Byte(MsgTypeResponse).Uint16(m.ProtoVersion).Byte(m.Ciphersuite).
		Raw(m.ECDHPub[:]).Bytes(m.KyberCT)
	encodeHybridSig(w, m.HybridSig)
	w.Uint64(m.Timestamp).Bytes(m.Extensions)
	return w.Finish()
}

func DecodeResponseMessage(buf []byte) (*ResponseMessage, error) {
	r, err := wire.NewReader(buf)
	if err != nil {
		return nil, err
	}
	msgType, err := r.Byte()
	if err != nil {
		return nil, err
	}
	if msgType != MsgTypeResponse {
		return nil, b4aeerr.New("handshake.DecodeResponseMessage", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
	}
	m := &ResponseMessage{}
	if m.ProtoVersion, err = r.Uint16(); err != nil {
		return nil, err
	}
	if m.Ciphersuite, err = r.Byte(); err != nil {
		return nil, err
	}
	ecdh, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	copy(m.ECDHPub[:], ecdh)
	if m.KyberCT, err = r.Bytes(); err != nil {
		return nil, err
	}
	if m.HybridSig, err = decodeHybridSig(r); err != nil {
		return nil, err
	}
	if m.Timestamp, err = r.Uint64(); err != nil {
		return nil, err
	}
	if m.Extensions, err = r.Bytes(); err != nil {
		return nil, err
	}
	if err := r.RequireExhausted(); err != nil {
		return nil, err
	}
	return m, nil
}

// CompleteMessage is Flight 3.
type CompleteMessage struct {
	ProtoVersion uint16
	HybridSig    *crypto.HybridSignature
	Timestamp    uint64
	Extensions   []byte
}

func (m *CompleteMessage) Encode() ([]byte, error) {
	w := wire.NewWriter()
	w.Byte(MsgTypeComplete).Uint16(m.ProtoVersion)
	encodeHybridSig(w, m.HybridSig)
	w.Uint64(m.Timestamp).Bytes(m.Extensions)
	return w.Finish()
}

func DecodeCompleteMessage(buf []byte) (*CompleteMessage, error) {
	r, err := wire.NewReader(buf)
	if err != nil {
		return nil, err
	}
	msgType, err := r.Byte()
	if err != nil {
		return nil, err
	}
	if msgType != MsgTypeComplete {
		return nil, b4aeerr.New("handshake.DecodeCompleteMessage", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
	}
	m := &CompleteMessage{}
	if m.ProtoVersion, err = r.Uint16(); err != nil {
		return nil, err
	}
	if m.HybridSig, err = decodeHybridSig(r); err != nil {
		return nil, err
	}
	if m.Timestamp, err = r.Uint64(); err != nil {
		return nil, err
	}
	if m.Extensions, err = r.Bytes(); err != nil {
		return nil, err
	}
	if err := r.RequireExhausted(); err != nil {
		return nil, err
	}
	return m, nil
}
