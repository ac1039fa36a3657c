// Package handshakev2 implements the DoS-resistant, mode-separated
// handshake of §4.6: mode negotiation, a stateless cookie challenge,
// and a three-flight key exchange analogous to the v1 engine but with
// mode-specific signatures and keys bound to both the protocol ID and
// the session ID. It is grounded on the state-machine shape of
// internal/handshake (itself grounded on pzverkov's handshake.go
// HandshakeState enum), extended with the extra negotiation and
// cookie flights, and on the teacher's rate-limiting / constant-time
// idiom in internal/security/intrusion.go for the cookie check.
package handshakev2

import "github.com/b4ae-io/b4ae-core/internal/crypto"

// ProtoVersion is the v2 wire protocol version, per §6.
const ProtoVersion uint16 = 2

// Mode identifiers, per §6.
const (
	ModeA byte = 0x01 // deniable, XEdDSA
	ModeB byte = 0x02 // post-quantum, Dilithium5
	ModeC byte = 0x03 // reserved, unimplemented
)

// Message-type discriminants, local to v2 flights.
const (
	MsgTypeModeNegotiation      byte = 0x10
	MsgTypeModeSelection        byte = 0x11
	MsgTypeCookieChallenge      byte = 0x12
	MsgTypeClientHelloWithCookie byte = 0x13
	MsgTypeHandshakeInit        byte = 0x14
	MsgTypeHandshakeResponse    byte = 0x15
	MsgTypeHandshakeComplete    byte = 0x16
)

// protocolIDSeed stands in for "the canonical specification text" of
// §4.6: a real deployment hashes the frozen prose of the spec it
// implements, so that any wording change yields a new protocol ID and
// an old peer's signatures stop verifying rather than silently
// mismatching. Here it is a fixed literal naming this protocol
// version, which serves the same cryptographic-agility role.
var protocolIDSeed = []byte("B4AE-v2-canonical-specification-text")

// ProtocolID is the 32-byte SHA3-256 domain separator mixed into every
// v2 transcript hash and key derivation.
var ProtocolID = crypto.Sum3_256(protocolIDSeed)

// ModeBinding computes SHA3-256("B4AE-v2-mode-binding" || client_random
// || server_random || mode_id), the value both sides retain after
// Flight B and carry in every subsequently signed message to detect a
// downgrade attack (§4.6, invariant 4 of §8).
func ModeBinding(clientRandom, serverRandom [32]byte, modeID byte) [32]byte {
	return crypto.Sum3_256([]byte(crypto.InfoV2ModeBind), clientRandom[:], serverRandom[:], []byte{modeID})
}

// modeSupported reports whether mode appears in the list.
func modeSupported(modes []byte, mode byte) bool {
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}

// SelectMode applies the server's preference order B > A > C (C is
// always rejected) against the client's supported-mode list, per
// §4.6 Flight B.
func SelectMode(clientSupported []byte, serverPolicy []byte) (byte, bool) {
	preference := []byte{ModeB, ModeA}
	for _, candidate := range preference {
		if modeSupported(clientSupported, candidate) && modeSupported(serverPolicy, candidate) {
			return candidate, true
		}
	}
	return 0, false
}
