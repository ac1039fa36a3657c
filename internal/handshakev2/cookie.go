// Cookie issuance and verification implement the stateless DoS
// defense of the negotiation flights: the server commits no memory to
// a connection attempt until the client has echoed back a value only
// the server could have produced, at the cost of one HMAC compute per
// side rather than an asymmetric handshake. The secret-rotation shape
// is grounded on the teacher's rate-limit window bookkeeping in
// internal/security/intrusion.go, adapted from a sliding request
// counter to a two-generation HMAC secret.
package handshakev2

import (
	"crypto/hmac"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// CookieValidity bounds how long a cookie remains acceptable, per the
// client echoing it back within one round trip under normal network
// conditions.
const CookieValidity = 30 * time.Second

// CookieManager issues and verifies cookies using a pair of rotating
// HMAC secrets: current and previous, so a cookie issued just before a
// rotation remains verifiable afterward.
type CookieManager struct {
	mu       sync.RWMutex
	current  [32]byte
	previous [32]byte
	rotated  time.Time
	period   time.Duration
}

// NewCookieManager constructs a manager with a freshly generated
// secret and the given rotation period.
func NewCookieManager(rotationPeriod time.Duration) (*CookieManager, error) {
	secret, err := crypto.RandomBytes(32)
	if err != nil {
		return nil, err
	}
	var cm CookieManager
	copy(cm.current[:], secret)
	cm.rotated = time.Now()
	cm.period = rotationPeriod
	return &cm, nil
}

// MaybeRotate replaces the previous secret with the current one and
// generates a fresh current secret if period has elapsed since the
// last rotation. Call this periodically; it is cheap and idempotent
// within a period.
func (cm *CookieManager) MaybeRotate() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if time.Since(cm.rotated) < cm.period {
		return nil
	}
	secret, err := crypto.RandomBytes(32)
	if err != nil {
		return err
	}
	cm.previous = cm.current
	copy(cm.current[:], secret)
	cm.rotated = time.Now()
	return nil
}

// Issue computes a cookie for clientRandom and serverRandom bound to
// the given unix-second timestamp: HMAC-SHA256(secret, clientRandom ||
// serverRandom || timestamp).
func (cm *CookieManager) Issue(clientRandom, serverRandom [32]byte, timestamp uint64) [32]byte {
	cm.mu.RLock()
	secret := cm.current
	cm.mu.RUnlock()
	return computeCookie(secret, clientRandom, serverRandom, timestamp)
}

// Verify checks cookie against both the current and previous secrets
// and rejects a timestamp outside CookieValidity of now, in constant
// time against the secret comparison.
func (cm *CookieManager) Verify(clientRandom, serverRandom [32]byte, timestamp uint64, cookie [32]byte) error {
	now := uint64(time.Now().Unix())
	var skew uint64
	if now > timestamp {
		skew = now - timestamp
	} else {
		skew = timestamp - now
	}
	if skew > uint64(CookieValidity.Seconds()) {
		return b4aeerr.New("handshakev2.CookieManager.Verify", b4aeerr.KindAuthenticationFailed, b4aeerr.ErrCookieExpired)
	}

	cm.mu.RLock()
	current, previous := cm.current, cm.previous
	cm.mu.RUnlock()

	want1 := computeCookie(current, clientRandom, serverRandom, timestamp)
	want2 := computeCookie(previous, clientRandom, serverRandom, timestamp)

	okCurrent := crypto.ConstantTimeCompare(cookie[:], want1[:])
	okPrevious := crypto.ConstantTimeCompare(cookie[:], want2[:])
	if !okCurrent && !okPrevious {
		return b4aeerr.New("handshakev2.CookieManager.Verify", b4aeerr.KindAuthenticationFailed, b4aeerr.ErrCookieInvalid)
	}
	return nil
}

func computeCookie(secret [32]byte, clientRandom, serverRandom [32]byte, timestamp uint64) [32]byte {
	mac := hmac.New(sha256.New, secret[:])
	mac.Write(clientRandom[:])
	mac.Write(serverRandom[:])
	var tsBytes [8]byte
	for i := 0; i < 8; i++ {
		tsBytes[i] = byte(timestamp >> (56 - 8*i))
	}
	mac.Write(tsBytes[:])
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}
