package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testSessionPair(t *testing.T) (initiator, responder *Session) {
	t.Helper()
	var sendRoot, recvRoot, sessionID [32]byte
	for i := range sendRoot {
		sendRoot[i] = byte(i + 1)
	}
	for i := range recvRoot {
		recvRoot[i] = byte(i + 101)
	}
	for i := range sessionID {
		sessionID[i] = byte(i + 201)
	}

	initiator = NewSession("responder", sessionID, sendRoot, recvRoot, 1024, nil)
	responder = NewSession("initiator", sessionID, recvRoot, sendRoot, 1024, nil)
	return
}

func TestSessionRoundTrip(t *testing.T) {
	initiator, responder := testSessionPair(t)

	rec, _, err := initiator.EncryptMessage([]byte("hello responder"), []byte("ad"))
	require.NoError(t, err)

	pt, err := responder.DecryptMessage(rec, []byte("ad"))
	require.NoError(t, err)
	require.Equal(t, "hello responder", string(pt))
}

func TestSessionSequentialMessagesUseDistinctKeys(t *testing.T) {
	initiator, responder := testSessionPair(t)

	rec1, _, err := initiator.EncryptMessage([]byte("first"), nil)
	require.NoError(t, err)
	rec2, _, err := initiator.EncryptMessage([]byte("second"), nil)
	require.NoError(t, err)
	require.NotEqual(t, rec1.Ciphertext, rec2.Ciphertext)

	pt1, err := responder.DecryptMessage(rec1, nil)
	require.NoError(t, err)
	require.Equal(t, "first", string(pt1))

	pt2, err := responder.DecryptMessage(rec2, nil)
	require.NoError(t, err)
	require.Equal(t, "second", string(pt2))
}

func TestSessionOutOfOrderDeliveryWithinCacheBoundSucceeds(t *testing.T) {
	initiator, responder := testSessionPair(t)

	recs := make([]*EncryptedRecord, 5)
	for i := range recs {
		rec, _, err := initiator.EncryptMessage([]byte("msg"), nil)
		require.NoError(t, err)
		recs[i] = rec
	}

	_, err := responder.DecryptMessage(recs[4], nil)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := responder.DecryptMessage(recs[i], nil)
		require.NoError(t, err)
	}
}

func TestSessionReplayRejected(t *testing.T) {
	initiator, responder := testSessionPair(t)

	rec, _, err := initiator.EncryptMessage([]byte("once"), nil)
	require.NoError(t, err)

	_, err = responder.DecryptMessage(rec, nil)
	require.NoError(t, err)

	_, err = responder.DecryptMessage(rec, nil)
	require.Error(t, err)
}

func TestSessionTamperedCiphertextLeavesStateUnchanged(t *testing.T) {
	initiator, responder := testSessionPair(t)

	rec, _, err := initiator.EncryptMessage([]byte("data"), nil)
	require.NoError(t, err)
	tampered := *rec
	tampered.Ciphertext = append([]byte{}, rec.Ciphertext...)
	tampered.Ciphertext[0] ^= 0xFF

	_, err = responder.DecryptMessage(&tampered, nil)
	require.Error(t, err)
	require.Equal(t, uint64(0), responder.replay.Highest())
	require.False(t, responder.replay.seenAny)

	_, err = responder.DecryptMessage(rec, nil)
	require.NoError(t, err)
}

func TestSessionWrongAssociatedDataFails(t *testing.T) {
	initiator, responder := testSessionPair(t)

	rec, _, err := initiator.EncryptMessage([]byte("data"), []byte("correct-ad"))
	require.NoError(t, err)

	_, err = responder.DecryptMessage(rec, []byte("wrong-ad"))
	require.Error(t, err)
}

func TestRotationPolicyTriggersByMessageCount(t *testing.T) {
	p := NewRotationPolicy(3, 0, 0)
	require.Equal(t, RotationNone, p.RecordMessage(10))
	require.Equal(t, RotationNone, p.RecordMessage(10))
	require.Equal(t, RotationByMessageCount, p.RecordMessage(10))
}

func TestRotationPolicyTriggersByByteCount(t *testing.T) {
	p := NewRotationPolicy(0, 100, 0)
	require.Equal(t, RotationNone, p.RecordMessage(40))
	require.Equal(t, RotationByByteCount, p.RecordMessage(70))
}

func TestRotationPolicyTriggersByWallClock(t *testing.T) {
	p := NewRotationPolicy(0, 0, time.Millisecond)
	time.Sleep(2 * time.Millisecond)
	require.Equal(t, RotationByWallClock, p.RecordMessage(1))
}

func TestRotationPolicyIdempotentOnSequence(t *testing.T) {
	p := NewRotationPolicy(1, 0, 0)
	seq := p.NextRotationSequence()
	require.False(t, p.AlreadyApplied(seq+1))
	p.MarkApplied(seq)
	require.True(t, p.AlreadyApplied(seq))
}

func TestSessionApplyRotationResetsChainsAndIsIdempotent(t *testing.T) {
	initiator, responder := testSessionPair(t)

	rec1, _, err := initiator.EncryptMessage([]byte("before-rotation"), nil)
	require.NoError(t, err)
	_, err = responder.DecryptMessage(rec1, nil)
	require.NoError(t, err)

	ratchetInput := []byte("shared-ecdh-output")
	require.NoError(t, initiator.ApplyRotation(ratchetInput, 1))
	require.NoError(t, responder.ApplyRotation(ratchetInput, 1))

	require.Equal(t, uint64(0), initiator.sendChain.Counter())
	require.Equal(t, uint64(0), responder.recvChain.Counter())

	rec2, _, err := initiator.EncryptMessage([]byte("after-rotation"), nil)
	require.NoError(t, err)
	pt2, err := responder.DecryptMessage(rec2, nil)
	require.NoError(t, err)
	require.Equal(t, "after-rotation", string(pt2))

	require.NoError(t, initiator.ApplyRotation(ratchetInput, 1))
	require.NoError(t, responder.ApplyRotation(ratchetInput, 1))
}
