// Package hsm defines the capability interface for hybrid Ed25519 +
// Dilithium5 identity-key signing, and a software-backed default
// implementation layered on internal/crypto. It is grounded on the
// teacher's HSMProvider (internal/security/hsm.go), generalized from
// ECDSA/RSA signing over a single key to the hybrid classical/PQ
// signature pair this protocol's identity keys require.
package hsm

import (
	"context"
	"fmt"
	"sync"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// Provider is the capability boundary between the protocol engine and
// wherever a long-term identity private key actually lives. The
// software implementation below keeps the key in process memory; a
// production deployment swaps in an implementation backed by a real
// HSM or enclave without the rest of the module changing.
type Provider interface {
	GenerateIdentityKey(ctx context.Context, keyID string) error
	PublicKeys(ctx context.Context, keyID string) (ed25519Pub []byte, dilithiumPub []byte, err error)
	SignHybrid(ctx context.Context, keyID string, message []byte) (*crypto.HybridSignature, error)
	DeleteKey(ctx context.Context, keyID string) error
	HealthCheck(ctx context.Context) error
}

type softwareIdentityKey struct {
	ed  *crypto.Ed25519KeyPair
	dil *crypto.DilithiumKeyPair
}

// SoftwareProvider is the in-memory default Provider. It is suitable
// for a client holding its own identity key; a server-side deployment
// guarding many identities behind a real HSM implements Provider
// separately.
type SoftwareProvider struct {
	mu   sync.RWMutex
	keys map[string]*softwareIdentityKey
}

// NewSoftwareProvider constructs an empty in-memory Provider.
func NewSoftwareProvider() *SoftwareProvider {
	return &SoftwareProvider{keys: make(map[string]*softwareIdentityKey)}
}

func (p *SoftwareProvider) GenerateIdentityKey(ctx context.Context, keyID string) error {
	ed, err := crypto.GenerateEd25519KeyPair()
	if err != nil {
		return b4aeerr.New("hsm.SoftwareProvider.GenerateIdentityKey", b4aeerr.KindCryptoError, err)
	}
	dil, err := crypto.GenerateDilithiumKeyPair()
	if err != nil {
		return b4aeerr.New("hsm.SoftwareProvider.GenerateIdentityKey", b4aeerr.KindCryptoError, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[keyID] = &softwareIdentityKey{ed: ed, dil: dil}
	return nil
}

func (p *SoftwareProvider) PublicKeys(ctx context.Context, keyID string) ([]byte, []byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	k, ok := p.keys[keyID]
	if !ok {
		return nil, nil, b4aeerr.New("hsm.SoftwareProvider.PublicKeys", b4aeerr.KindInvalidInput, fmt.Errorf("no such identity key: %s", keyID))
	}
	return append([]byte{}, k.ed.Public[:]...), append([]byte{}, k.dil.Public...), nil
}

func (p *SoftwareProvider) SignHybrid(ctx context.Context, keyID string, message []byte) (*crypto.HybridSignature, error) {
	p.mu.RLock()
	k, ok := p.keys[keyID]
	p.mu.RUnlock()
	if !ok {
		return nil, b4aeerr.New("hsm.SoftwareProvider.SignHybrid", b4aeerr.KindInvalidInput, fmt.Errorf("no such identity key: %s", keyID))
	}
	return crypto.SignHybrid(k.ed, k.dil, message)
}

func (p *SoftwareProvider) DeleteKey(ctx context.Context, keyID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if k, ok := p.keys[keyID]; ok {
		k.ed.Zeroize()
		k.dil.Zeroize()
		delete(p.keys, keyID)
	}
	return nil
}

func (p *SoftwareProvider) HealthCheck(ctx context.Context) error { return nil }

var _ Provider = (*SoftwareProvider)(nil)
