package session

import "time"

// RotationTrigger names which bound fired.
type RotationTrigger int

const (
	RotationNone RotationTrigger = iota
	RotationByMessageCount
	RotationByByteCount
	RotationByWallClock
)

// RotationPolicy tracks the three independently-disableable bounds
// from §4.3: message count, byte count, and wall-clock duration since
// the last rotation. Whichever fires first triggers rotation; a zero
// value for a bound disables it.
type RotationPolicy struct {
	MaxMessages uint64
	MaxBytes    uint64
	MaxDuration time.Duration

	messagesSince uint64
	bytesSince    uint64
	since         time.Time
	sequence      uint64
	applied       uint64
}

// NewRotationPolicy constructs a policy with the given bounds; pass 0
// / 0 to disable a bound.
func NewRotationPolicy(maxMessages, maxBytes uint64, maxDuration time.Duration) *RotationPolicy {
	return &RotationPolicy{
		MaxMessages: maxMessages,
		MaxBytes:    maxBytes,
		MaxDuration: maxDuration,
		since:       time.Now(),
	}
}

// RecordMessage accounts for one more message of the given plaintext
// size having been sent on this chain, and reports whether a rotation
// should now occur.
func (p *RotationPolicy) RecordMessage(size int) RotationTrigger {
	p.messagesSince++
	p.bytesSince += uint64(size)

	if p.MaxMessages != 0 && p.messagesSince >= p.MaxMessages {
		return RotationByMessageCount
	}
	if p.MaxBytes != 0 && p.bytesSince >= p.MaxBytes {
		return RotationByByteCount
	}
	if p.MaxDuration != 0 && time.Since(p.since) >= p.MaxDuration {
		return RotationByWallClock
	}
	return RotationNone
}

// NextRotationSequence returns the next rotation_sequence to stamp on
// an outgoing RotationMessage, and resets the accounting counters.
func (p *RotationPolicy) NextRotationSequence() uint64 {
	p.sequence++
	p.messagesSince = 0
	p.bytesSince = 0
	p.since = time.Now()
	return p.sequence
}

// LastAppliedSequence returns the highest rotation_sequence this side
// has applied, for the idempotence check: a rotation already applied
// at this sequence is a no-op rather than an error. This is tracked
// separately from sequence (the next sequence to issue) so that the
// side which builds a RotationMessage can still apply it locally
// instead of mistaking its own issuance for an already-applied one.
func (p *RotationPolicy) LastAppliedSequence() uint64 { return p.applied }

// MarkApplied records that a rotation at seq has been applied -- by
// either side, since issuing a RotationMessage and applying it
// locally are separate steps -- so a duplicate delivery of the same
// message is recognized as idempotent.
func (p *RotationPolicy) MarkApplied(seq uint64) {
	if seq > p.applied {
		p.applied = seq
	}
	p.messagesSince = 0
	p.bytesSince = 0
	p.since = time.Now()
}

// AlreadyApplied reports whether a rotation at seq has already been
// applied on this side.
func (p *RotationPolicy) AlreadyApplied(seq uint64) bool {
	return seq <= p.applied && p.applied != 0
}
