package metadata

import (
	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/config"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// DummyMarker is the one internal marker byte, inside the encrypted
// envelope and therefore invisible to observers, that tells a receiver
// to discard a message without delivering it to the application.
const DummyMarker = 0xFF

// Protector runs the configured metadata-protection stages over a
// record plaintext before it reaches the session layer's AEAD seal,
// and reverses them after AEAD open.
type Protector struct {
	cfg         *config.Config
	metadataKey *[32]byte // nil if no MAC is provisioned
}

// NewProtector constructs a Protector bound to cfg and an optional
// metadata key (pass nil to omit the padding MAC).
func NewProtector(cfg *config.Config, metadataKey *[32]byte) *Protector {
	return &Protector{cfg: cfg, metadataKey: metadataKey}
}

// Protect applies padding (Basic and above) and the optional MAC to
// plaintext. Timing delay and cover traffic are orthogonal to this
// per-message transform and are driven by the caller (Delay, and
// GenerateDummy below) around the send path.
func (p *Protector) Protect(plaintext []byte) ([]byte, error) {
	if p.cfg.ProtectionLevel == config.ProtectionNone {
		return plaintext, nil
	}
	padded, err := Pad(plaintext, p.cfg.PaddingBlockSize)
	if err != nil {
		return nil, err
	}
	if p.metadataKey != nil {
		return MAC(*p.metadataKey, padded), nil
	}
	return padded, nil
}

// Unprotect reverses Protect. When a metadata key is provisioned, any
// single-byte modification to the padded-plus-MAC output fails here
// with AuthenticationFailed rather than silently returning corrupted
// data; without one, only Unpad's padding checks apply.
func (p *Protector) Unprotect(wire []byte) ([]byte, error) {
	if p.cfg.ProtectionLevel == config.ProtectionNone {
		return wire, nil
	}
	padded := wire
	if p.metadataKey != nil {
		var err error
		padded, err = VerifyMAC(*p.metadataKey, wire)
		if err != nil {
			return nil, err
		}
	}
	return Unpad(padded)
}

// GenerateDummy produces a plaintext that, once padded and sealed like
// any real message, is indistinguishable from one at the wire level:
// only the receiver who decrypts it sees the marker byte and discards
// it.
func GenerateDummy(size int) ([]byte, error) {
	if size < 1 {
		size = 1
	}
	body, err := crypto.RandomBytes(size - 1)
	if err != nil {
		return nil, b4aeerr.New("metadata.GenerateDummy", b4aeerr.KindCryptoError, err)
	}
	return append([]byte{DummyMarker}, body...), nil
}

// IsDummy reports whether a decrypted plaintext is a dummy message the
// caller should discard without delivering it to the application.
func IsDummy(plaintext []byte) bool {
	return len(plaintext) > 0 && plaintext[0] == DummyMarker
}
