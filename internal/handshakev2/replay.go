// ReplaySet tracks client_random values already seen across
// handshake attempts, independent of the per-session replay window in
// internal/session: a repeated client_random means a captured
// negotiation flight is being replayed before any session exists to
// reject it. A bloom filter is the right shape here because false
// positives (occasionally refusing a legitimate retry) are acceptable
// and the alternative, an exact set over an unbounded attacker-chosen
// input, is an unbounded-memory DoS vector in its own right. No
// package in the retrieved corpus exercises holiman/bloomfilter
// directly; this wraps its documented NewOptimal/Add/Contains API
// over fnv.New64a the way the library's own examples do.
package handshakev2

import (
	"hash/fnv"
	"sync"

	bloomfilter "github.com/holiman/bloomfilter/v2"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
)

// ReplaySetCapacity and ReplaySetFPR are the sizing targets: one
// million tracked client_random values at a 0.1% false-positive rate.
const (
	ReplaySetCapacity = 1_000_000
	ReplaySetFPR      = 0.001
)

// ReplaySet is a concurrency-safe bloom filter over client_random
// values observed during mode negotiation.
type ReplaySet struct {
	mu     sync.Mutex
	filter *bloomfilter.Filter
}

// NewReplaySet constructs a ReplaySet sized for ReplaySetCapacity at
// ReplaySetFPR.
func NewReplaySet() (*ReplaySet, error) {
	f, err := bloomfilter.NewOptimal(ReplaySetCapacity, ReplaySetFPR)
	if err != nil {
		return nil, b4aeerr.New("handshakev2.NewReplaySet", b4aeerr.KindCryptoError, err)
	}
	return &ReplaySet{filter: f}, nil
}

// CheckAndAdd reports whether clientRandom has already been observed.
// If not, it is added atomically with the check so a concurrent
// duplicate cannot slip through between the two steps.
func (rs *ReplaySet) CheckAndAdd(clientRandom [32]byte) error {
	h := fnv.New64a()
	h.Write(clientRandom[:])
	key := h

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.filter.Contains(key) {
		return b4aeerr.New("handshakev2.ReplaySet.CheckAndAdd", b4aeerr.KindReplayDetected, b4aeerr.ErrReplaySetHit)
	}
	rs.filter.Add(key)
	return nil
}
