package handshakev2

import (
	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// Identity holds the long-term signing material for one local peer as
// software keys in process memory. It has no HSM-backed form.
type Identity struct {
	// ModeA (XEdDSA) shares the underlying X25519 scalar with the KEM
	// identity key, not the ephemeral one: the same long-term private
	// scalar signs every handshake this peer completes in Mode A.
	X25519Identity  *crypto.X25519KeyPair
	xeddsaPublic    [32]byte
	hasXEdDSA       bool

	// ModeB (Dilithium5) is an independent long-term keypair.
	Dilithium *crypto.DilithiumKeyPair
}

// NewSoftwareIdentity derives both mode identities from freshly
// generated software keys. A deployment that only intends to offer one
// mode may leave the corresponding generation step out and pass nil
// fields directly instead of calling this constructor.
func NewSoftwareIdentity() (*Identity, error) {
	x25519, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	xeddsaPub, err := crypto.XEdDSAPublicFromPrivate(x25519.Private)
	if err != nil {
		x25519.Zeroize()
		return nil, err
	}
	dil, err := crypto.GenerateDilithiumKeyPair()
	if err != nil {
		x25519.Zeroize()
		return nil, err
	}
	return &Identity{
		X25519Identity: x25519,
		xeddsaPublic:   xeddsaPub,
		hasXEdDSA:      true,
		Dilithium:      dil,
	}, nil
}

// XEdDSAPublic returns the Edwards-form verification key for Mode A.
func (id *Identity) XEdDSAPublic() ([32]byte, bool) {
	return id.xeddsaPublic, id.hasXEdDSA
}

// Zeroize wipes every private component.
func (id *Identity) Zeroize() {
	if id == nil {
		return
	}
	id.X25519Identity.Zeroize()
	id.Dilithium.Zeroize()
}

// PeerIdentity holds a remote peer's long-term public verification
// material for whichever modes it advertises.
type PeerIdentity struct {
	XEdDSAPublic    [32]byte
	HasXEdDSA       bool
	DilithiumPublic []byte
}

// Sign produces a ModeSignature over message using the identity's key
// for the given mode.
func (id *Identity) Sign(mode byte, message []byte) (*ModeSignature, error) {
	switch mode {
	case ModeA:
		if !id.hasXEdDSA {
			return nil, b4aeerr.New("handshakev2.Identity.Sign", b4aeerr.KindInvalidInput, b4aeerr.ErrNoCompatibleMode)
		}
		sig, err := crypto.XEdDSASign(id.X25519Identity.Private, message)
		if err != nil {
			return nil, err
		}
		return &ModeSignature{Mode: ModeA, Bytes: sig}, nil
	case ModeB:
		if id.Dilithium == nil {
			return nil, b4aeerr.New("handshakev2.Identity.Sign", b4aeerr.KindInvalidInput, b4aeerr.ErrNoCompatibleMode)
		}
		sig, err := crypto.SignDilithium(id.Dilithium.Private, message)
		if err != nil {
			return nil, err
		}
		return &ModeSignature{Mode: ModeB, Bytes: sig}, nil
	default:
		return nil, b4aeerr.New("handshakev2.Identity.Sign", b4aeerr.KindInvalidInput, b4aeerr.ErrNoCompatibleMode)
	}
}

// Verify checks sig against message under peer's key for sig.Mode,
// refusing to verify under a mode other than the one negotiated.
func Verify(peer *PeerIdentity, negotiatedMode byte, message []byte, sig *ModeSignature) bool {
	if sig == nil || sig.Mode != negotiatedMode {
		return false
	}
	switch sig.Mode {
	case ModeA:
		if !peer.HasXEdDSA {
			return false
		}
		return crypto.XEdDSAVerify(peer.XEdDSAPublic, message, sig.Bytes)
	case ModeB:
		if peer.DilithiumPublic == nil {
			return false
		}
		return crypto.VerifyDilithium(peer.DilithiumPublic, message, sig.Bytes)
	default:
		return false
	}
}
