package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashSubjectIsDeterministicAndOpaque(t *testing.T) {
	h1 := HashSubject([]byte("alice"))
	h2 := HashSubject([]byte("alice"))
	h3 := HashSubject([]byte("bob"))
	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
}

func TestNullSinkDiscardsEvents(t *testing.T) {
	var s Sink = NullSink{}
	s.Record(Event{Type: EventHandshakeInitiated, SubjectHash: HashSubject([]byte("x"))})
}

func TestLogSinkRecordsWithoutPanicking(t *testing.T) {
	s := NewLogSink()
	s.Record(Event{
		Type:        EventReplayRejected,
		SubjectHash: HashSubject([]byte("peer-42")),
		Detail:      "sequence outside window",
	})
}
