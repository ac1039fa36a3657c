package handshakev2

import (
	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/wire"
)

// ModeSignature carries a mode-specific signature: 64 bytes for Mode
// A's XEdDSA, ~4595 bytes for Mode B's Dilithium5. The mode tag lets a
// verifier reject a signature produced under a mode other than the
// one actually negotiated, independent of the mode_binding check.
type ModeSignature struct {
	Mode  byte
	Bytes []byte
}

func encodeModeSig(w *wire.Writer, sig *ModeSignature) {
	w.Byte(sig.Mode).Bytes(sig.Bytes)
}

func decodeModeSig(r *wire.Reader) (*ModeSignature, error) {
	mode, err := r.Byte()
	if err != nil {
		return nil, err
	}
	b, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	return &ModeSignature{Mode: mode, Bytes: b}, nil
}

// ModeNegotiationMessage is Flight A (Client -> Server).
type ModeNegotiationMessage struct {
	SupportedModes []byte
	PreferredMode  byte
	ClientRandom   [32]byte
}

func (m *ModeNegotiationMessage) Encode() ([]byte, error) {
	w := wire.NewWriter()
	w.Byte(MsgTypeModeNegotiation).Uint16(ProtoVersion).
		Bytes(m.SupportedModes).Byte(m.PreferredMode).Raw(m.ClientRandom[:])
	return w.Finish()
}

func DecodeModeNegotiationMessage(buf []byte) (*ModeNegotiationMessage, error) {
	r, err := wire.NewReader(buf)
	if err != nil {
		return nil, err
	}
	if err := expectType(r, MsgTypeModeNegotiation); err != nil {
		return nil, err
	}
	m := &ModeNegotiationMessage{}
	if m.SupportedModes, err = r.Bytes(); err != nil {
		return nil, err
	}
	if m.PreferredMode, err = r.Byte(); err != nil {
		return nil, err
	}
	cr, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	copy(m.ClientRandom[:], cr)
	if err := r.RequireExhausted(); err != nil {
		return nil, err
	}
	return m, nil
}

// ModeSelectionMessage is Flight B (Server -> Client).
type ModeSelectionMessage struct {
	SelectedMode byte
	ServerRandom [32]byte
}

func (m *ModeSelectionMessage) Encode() ([]byte, error) {
	w := wire.NewWriter()
	w.Byte(MsgTypeModeSelection).Uint16(ProtoVersion).Byte(m.SelectedMode).Raw(m.ServerRandom[:])
	return w.Finish()
}

func DecodeModeSelectionMessage(buf []byte) (*ModeSelectionMessage, error) {
	r, err := wire.NewReader(buf)
	if err != nil {
		return nil, err
	}
	if err := expectType(r, MsgTypeModeSelection); err != nil {
		return nil, err
	}
	m := &ModeSelectionMessage{}
	if m.SelectedMode, err = r.Byte(); err != nil {
		return nil, err
	}
	sr, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	copy(m.ServerRandom[:], sr)
	if err := r.RequireExhausted(); err != nil {
		return nil, err
	}
	return m, nil
}

// CookieChallengeMessage is Flight C (Server -> Client). The server
// computes and sends this without storing anything; Timestamp is the
// value folded into Cookie, which the client must echo back unchanged
// in ClientHelloWithCookieMessage for the server to recompute and
// compare.
type CookieChallengeMessage struct {
	Cookie       [32]byte
	ServerRandom [32]byte
	Timestamp    uint64
}

func (m *CookieChallengeMessage) Encode() ([]byte, error) {
	w := wire.NewWriter()
	w.Byte(MsgTypeCookieChallenge).Uint16(ProtoVersion).Raw(m.Cookie[:]).Raw(m.ServerRandom[:]).Uint64(m.Timestamp)
	return w.Finish()
}

func DecodeCookieChallengeMessage(buf []byte) (*CookieChallengeMessage, error) {
	r, err := wire.NewReader(buf)
	if err != nil {
		return nil, err
	}
	if err := expectType(r, MsgTypeCookieChallenge); err != nil {
		return nil, err
	}
	m := &CookieChallengeMessage{}
	c, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	copy(m.Cookie[:], c)
	sr, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	copy(m.ServerRandom[:], sr)
	if m.Timestamp, err = r.Uint64(); err != nil {
		return nil, err
	}
	if err := r.RequireExhausted(); err != nil {
		return nil, err
	}
	return m, nil
}

// ClientHelloWithCookieMessage is Flight D (Client -> Server).
type ClientHelloWithCookieMessage struct {
	ClientRandom [32]byte
	Cookie       [32]byte
	Timestamp    uint64
}

func (m *ClientHelloWithCookieMessage) Encode() ([]byte, error) {
	w := wire.NewWriter()
	w.Byte(MsgTypeClientHelloWithCookie).Uint16(ProtoVersion).
		Raw(m.ClientRandom[:]).Raw(m.Cookie[:]).Uint64(m.Timestamp)
	return w.Finish()
}

func DecodeClientHelloWithCookieMessage(buf []byte) (*ClientHelloWithCookieMessage, error) {
	r, err := wire.NewReader(buf)
	if err != nil {
		return nil, err
	}
	if err := expectType(r, MsgTypeClientHelloWithCookie); err != nil {
		return nil, err
	}
	m := &ClientHelloWithCookieMessage{}
	cr, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	copy(m.ClientRandom[:], cr)
	c, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	copy(m.Cookie[:], c)
	if m.Timestamp, err = r.Uint64(); err != nil {
		return nil, err
	}
	if err := r.RequireExhausted(); err != nil {
		return nil, err
	}
	return m, nil
}

// HandshakeInitMessage is Flight E (Client -> Server): the hybrid
// ephemeral public keys, analogous to v1's InitMessage, plus the mode
// binding both sides computed after Flight B.
type HandshakeInitMessage struct {
	ECDHPub     [32]byte
	KyberPub    []byte
	Timestamp   uint64
	ModeBinding [32]byte
}

func (m *HandshakeInitMessage) Encode() ([]byte, error) {
	w := wire.NewWriter()
	w.Byte(MsgTypeHandshakeInit).Uint16(ProtoVersion).
		Raw(m.ECDHPub[:]).Bytes(m.KyberPub).Uint64(m.Timestamp).Raw(m.ModeBinding[:])
	return w.Finish()
}

func DecodeHandshakeInitMessage(buf []byte) (*HandshakeInitMessage, error) {
	r, err := wire.NewReader(buf)
	if err != nil {
		return nil, err
	}
	if err := expectType(r, MsgTypeHandshakeInit); err != nil {
		return nil, err
	}
	m := &HandshakeInitMessage{}
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
	mb, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	copy(m.ModeBinding[:], mb)
	if err := r.RequireExhausted(); err != nil {
		return nil, err
	}
	return m, nil
}

// HandshakeResponseMessage is Flight F (Server -> Client).
type HandshakeResponseMessage struct {
	ECDHPub     [32]byte
	KyberCT     []byte
	Sig         *ModeSignature
	Timestamp   uint64
	ModeBinding [32]byte
}

func (m *HandshakeResponseMessage) Encode() ([]byte, error) {
	w := wire.NewWriter()
	w.Byte(MsgTypeHandshakeResponse).Uint16(ProtoVersion).Raw(m.ECDHPub[:]).Bytes(m.KyberCT)
	encodeModeSig(w, m.Sig)
	w.Uint64(m.Timestamp).Raw(m.ModeBinding[:])
	return w.Finish()
}

func DecodeHandshakeResponseMessage(buf []byte) (*HandshakeResponseMessage, error) {
	r, err := wire.NewReader(buf)
	if err != nil {
		return nil, err
	}
	if err := expectType(r, MsgTypeHandshakeResponse); err != nil {
		return nil, err
	}
	m := &HandshakeResponseMessage{}
	ecdh, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	copy(m.ECDHPub[:], ecdh)
	if m.KyberCT, err = r.Bytes(); err != nil {
		return nil, err
	}
	if m.Sig, err = decodeModeSig(r); err != nil {
		return nil, err
	}
	if m.Timestamp, err = r.Uint64(); err != nil {
		return nil, err
	}
	mb, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	copy(m.ModeBinding[:], mb)
	if err := r.RequireExhausted(); err != nil {
		return nil, err
	}
	return m, nil
}

// HandshakeCompleteMessage is Flight G (Client -> Server).
type HandshakeCompleteMessage struct {
	Sig         *ModeSignature
	Timestamp   uint64
	ModeBinding [32]byte
}

func (m *HandshakeCompleteMessage) Encode() ([]byte, error) {
	w := wire.NewWriter()
	w.Byte(MsgTypeHandshakeComplete).Uint16(ProtoVersion)
	encodeModeSig(w, m.Sig)
	w.Uint64(m.Timestamp).Raw(m.ModeBinding[:])
	return w.Finish()
}

func DecodeHandshakeCompleteMessage(buf []byte) (*HandshakeCompleteMessage, error) {
	r, err := wire.NewReader(buf)
	if err != nil {
		return nil, err
	}
	if err := expectType(r, MsgTypeHandshakeComplete); err != nil {
		return nil, err
	}
	m := &HandshakeCompleteMessage{}
	if m.Sig, err = decodeModeSig(r); err != nil {
		return nil, err
	}
	if m.Timestamp, err = r.Uint64(); err != nil {
		return nil, err
	}
	mb, err := r.Raw(32)
	if err != nil {
		return nil, err
	}
	copy(m.ModeBinding[:], mb)
	if err := r.RequireExhausted(); err != nil {
		return nil, err
	}
	return m, nil
}

func expectType(r *wire.Reader, want byte) error {
	got, err := r.Byte()
	if err != nil {
		return err
	}
	if got != want {
		return b4aeerr.New("handshakev2.decode", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
	}
	ver, err := r.Uint16()
	if err != nil {
		return err
	}
	if ver != ProtoVersion {
		return b4aeerr.New("handshakev2.decode", b4aeerr.KindProtocolError, b4aeerr.ErrUnsupportedVersion)
	}
	return nil
}
