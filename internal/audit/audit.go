// Package audit defines the caller-opaque audit event contract: every
// event is hash-scoped to its subject rather than carrying the
// plaintext identity or content that produced it, per the
// specification's metadata-protection requirements. It is grounded on
// the teacher's audit event taxonomy (internal/security/audit.go),
// trimmed to the event types this protocol engine itself can observe
// and stripped of the teacher's direct-identity fields.
package audit

import (
	"crypto/sha256"
	"log"
	"os"
	"time"
)

// EventType names a protocol-level occurrence worth auditing.
type EventType string

const (
	EventHandshakeInitiated EventType = "handshake_initiated"
	EventHandshakeCompleted EventType = "handshake_completed"
	EventHandshakeFailed    EventType = "handshake_failed"
	EventSessionEstablished EventType = "session_established"
	EventSessionClosed      EventType = "session_closed"
	EventKeyRotated         EventType = "key_rotated"
	EventReplayRejected     EventType = "replay_rejected"
	EventAuthFailed         EventType = "auth_failed"
	EventCookieRejected     EventType = "cookie_rejected"
	EventModeDowngrade      EventType = "mode_downgrade"
)

// Event is what a Sink receives. SubjectHash is SHA-256 of a
// caller-supplied opaque subject identifier (never the identifier
// itself), so a sink implementation cannot recover who a session was
// with from the audit log alone.
type Event struct {
	Type        EventType
	SubjectHash [32]byte
	Timestamp   time.Time
	Detail      string
}

// HashSubject derives the SubjectHash for a caller-chosen opaque
// identifier (e.g. a peer id or session id), keeping the raw value out
// of the audit trail.
func HashSubject(subject []byte) [32]byte {
	return sha256.Sum256(subject)
}

// Sink receives audit events. Implementations must not block the
// caller for long; a slow sink should buffer internally.
type Sink interface {
	Record(e Event)
}

// NullSink discards every event. It is the default so that wiring an
// audit sink is opt-in.
type NullSink struct{}

func (NullSink) Record(Event) {}

var _ Sink = NullSink{}

// LogSink writes events through a standard logger, grounded on the
// teacher's per-component log.New prefix convention.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink constructs a Sink that writes to stderr with an
// "[AUDIT] " prefix, matching the teacher's component-logger style.
func NewLogSink() *LogSink {
	return &LogSink{logger: log.New(os.Stderr, "[AUDIT] ", log.Ldate|log.Ltime|log.LUTC)}
}

func (s *LogSink) Record(e Event) {
	s.logger.Printf("type=%s subject=%x detail=%q", e.Type, e.SubjectHash, e.Detail)
}

var _ Sink = (*LogSink)(nil)
