package session

import (
	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
)

// ReplayWindow is a sliding bitmap over the most recently accepted
// sequence numbers, per §4.3's receive path and §5's "replay window
// 1024 bits" resource limit. Bit i (0 = most recent) is set once the
// sequence highest-i has been accepted.
type ReplayWindow struct {
	bits    []byte // bitmap, size = (windowBits+7)/8
	highest uint64
	seenAny bool
	size    uint64
}

// NewReplayWindow constructs a window holding windowBits sequence
// numbers (default 1024 per the configuration surface).
func NewReplayWindow(windowBits int) *ReplayWindow {
	if windowBits <= 0 {
		windowBits = 1024
	}
	return &ReplayWindow{
		bits: make([]byte, (windowBits+7)/8),
		size: uint64(windowBits),
	}
}

func (w *ReplayWindow) bit(i uint64) bool {
	byteIdx := i / 8
	if byteIdx >= uint64(len(w.bits)) {
		return false
	}
	return w.bits[byteIdx]&(1<<(i%8)) != 0
}

func (w *ReplayWindow) setBit(i uint64) {
	byteIdx := i / 8
	if byteIdx >= uint64(len(w.bits)) {
		return
	}
	w.bits[byteIdx] |= 1 << (i % 8)
}

func (w *ReplayWindow) clearBit(i uint64) {
	byteIdx := i / 8
	if byteIdx >= uint64(len(w.bits)) {
		return
	}
	w.bits[byteIdx] &^= 1 << (i % 8)
}

// Check reports whether sequence s would be accepted, without
// mutating window state. Callers must call Accept only after the
// corresponding AEAD open has succeeded -- §4.3 step 3: "On failure,
// leave window and chain unchanged".
func (w *ReplayWindow) Check(s uint64) error {
	if !w.seenAny {
		return nil
	}
	if s+w.size <= w.highest {
		// s <= highest - size, using addition to avoid underflow.
		return b4aeerr.New("session.ReplayWindow.Check", b4aeerr.KindReplayDetected, b4aeerr.ErrReplayWindowReject)
	}
	if s <= w.highest {
		offset := w.highest - s
		if w.bit(offset) {
			return b4aeerr.New("session.ReplayWindow.Check", b4aeerr.KindReplayDetected, b4aeerr.ErrReplayWindowReject)
		}
	}
	return nil
}

// Accept marks sequence s as seen, sliding the window forward if s
// advances the high-water mark.
func (w *ReplayWindow) Accept(s uint64) {
	if !w.seenAny {
		w.seenAny = true
		w.highest = s
		w.setBit(0)
		return
	}
	if s > w.highest {
		shift := s - w.highest
		if shift >= w.size {
			for i := range w.bits {
				w.bits[i] = 0
			}
		} else {
			// Slide the bitmap right by `shift` bits (bit 0 becomes
			// the new most-recent slot); bits that fall off the high
			// end represent sequences now too old to track.
			for i := w.size - 1; i >= shift; i-- {
				if w.bit(i - shift) {
					w.setBit(i)
				} else {
					w.clearBit(i)
				}
			}
			for i := uint64(0); i < shift; i++ {
				w.clearBit(i)
			}
		}
		w.highest = s
		w.setBit(0)
		return
	}
	offset := w.highest - s
	w.setBit(offset)
}

// Highest returns the highest sequence number accepted so far.
func (w *ReplayWindow) Highest() uint64 { return w.highest }
