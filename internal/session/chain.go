// Package session implements the per-peer symmetric ratchet and
// record-layer AEAD framing: the forward-secret chain state, replay
// window, key rotation, and encrypt/decrypt paths described in the
// specification's §4.3. It is grounded on the teacher's
// DoubleRatchetState / DeriveMessageKey / RatchetStep shape
// (internal/security/signal.go), generalized from a fixed
// every-100-messages rule into an explicit, configurable rotation
// policy and an LRU-bounded out-of-order cache.
package session

import (
	"encoding/binary"

	"github.com/b4ae-io/b4ae-core/internal/crypto"
)

// ChainState is (chain_key, counter) as defined in the specification's
// Data Model: the next message key is HKDF(chain_key, "msg-k" ||
// counter), the next chain key is HKDF(chain_key, "chain-k" ||
// counter). The old chain key is overwritten after each step.
type ChainState struct {
	chainKey [32]byte
	counter  uint64
}

// NewChainState constructs a chain from a root chain key.
func NewChainState(rootChainKey [32]byte) *ChainState {
	return &ChainState{chainKey: rootChainKey}
}

// Counter returns the next counter value that will be consumed by Step.
func (c *ChainState) Counter() uint64 { return c.counter }

// ChainKeySnapshot exposes the current chain key for rotation input
// derivation only; callers must not retain this beyond the call.
func (c *ChainState) ChainKeySnapshot() [32]byte { return c.chainKey }

func counterInfo(prefix string, counter uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], counter)
	return prefix + string(b[:])
}

// Step derives the message key for the current counter and advances
// the chain: the old chain key is zeroized and replaced with the
// newly derived chain key, and the counter increments. It is the
// single primitive both the send and receive paths build on.
func (c *ChainState) Step() ([32]byte, error) {
	msgInfo := counterInfo(crypto.InfoMsgKeyPrefix, c.counter)
	chainInfo := counterInfo(crypto.InfoChainKeyPrefix, c.counter)

	msgKey, err := crypto.DeriveKey32(crypto.HashSHA3_256, c.chainKey[:], nil, msgInfo)
	if err != nil {
		return [32]byte{}, err
	}
	newChainKey, err := crypto.DeriveKey32(crypto.HashSHA3_256, c.chainKey[:], nil, chainInfo)
	if err != nil {
		return [32]byte{}, err
	}

	crypto.Zero32(&c.chainKey)
	c.chainKey = newChainKey
	c.counter++
	return msgKey, nil
}

// StepAt derives the message key for an explicit counter value by
// replaying Step that many times from the chain's current position.
// Used by the receive path to catch up to an out-of-order sequence; it
// never moves the counter backwards.
func (c *ChainState) StepAt(target uint64) (map[uint64][32]byte, error) {
	if target < c.counter {
		return nil, nil
	}
	derived := make(map[uint64][32]byte, target-c.counter+1)
	for c.counter <= target {
		at := c.counter
		key, err := c.Step()
		if err != nil {
			return nil, err
		}
		derived[at] = key
	}
	return derived, nil
}

// Rotate replaces the chain root using the rotation input and resets
// the counter, per §4.3 "Key rotation": chain_key <-
// HKDF(chain_key||ratchet_input, "rotation"||rotation_seq).
func (c *ChainState) Rotate(ratchetInput []byte, rotationSeq uint64) error {
	material := append(append([]byte{}, c.chainKey[:]...), ratchetInput...)
	defer crypto.Zero(material)

	info := counterInfo(crypto.InfoRotationPrefix, rotationSeq)
	newKey, err := crypto.DeriveKey32(crypto.HashSHA3_256, material, nil, info)
	if err != nil {
		return err
	}
	crypto.Zero32(&c.chainKey)
	c.chainKey = newKey
	c.counter = 0
	return nil
}

// Zeroize overwrites the chain key.
func (c *ChainState) Zeroize() {
	if c == nil {
		return
	}
	crypto.Zero32(&c.chainKey)
}
