package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.Byte(0x01).Uint16(42).Uint32(1234).Uint64(99999).Bytes([]byte("hello")).ShortBytes([]byte("sig"))
	buf, err := w.Finish()
	require.NoError(t, err)

	r, err := NewReader(buf)
	require.NoError(t, err)

	b, err := r.Byte()
	require.NoError(t, err)
	require.Equal(t, byte(0x01), b)

	u16, err := r.Uint16()
	require.NoError(t, err)
	require.Equal(t, uint16(42), u16)

	u32, err := r.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(1234), u32)

	u64, err := r.Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(99999), u64)

	bs, err := r.Bytes()
	require.NoError(t, err)
	require.Equal(t, "hello", string(bs))

	sb, err := r.ShortBytes()
	require.NoError(t, err)
	require.Equal(t, "sig", string(sb))

	require.NoError(t, r.RequireExhausted())
}

func TestReaderRejectsTruncatedBuffer(t *testing.T) {
	w := NewWriter()
	w.Uint32(100)
	buf, err := w.Finish()
	require.NoError(t, err)

	r, err := NewReader(buf)
	require.NoError(t, err)
	_, err = r.Uint64()
	require.Error(t, err)
}

func TestReaderRejectsOversizeLengthPrefix(t *testing.T) {
	w := NewWriter()
	w.Uint32(1 << 30)
	buf, err := w.Finish()
	require.NoError(t, err)

	r, err := NewReader(buf)
	require.NoError(t, err)
	_, err = r.Bytes()
	require.Error(t, err)
}

func TestSplitAndReassembleSinglePacket(t *testing.T) {
	msg := []byte("short message")
	chunks := SplitIntoChunks(msg, 1400)
	require.Len(t, chunks, 1)

	re := NewReassembler(1400)
	out, err := re.Feed("peer-a", chunks[0])
	require.NoError(t, err)
	require.Equal(t, msg, out)
}

func TestSplitAndReassembleMultiChunk(t *testing.T) {
	msg := bytes.Repeat([]byte("x"), 5000)
	chunks := SplitIntoChunks(msg, 1400)
	require.Greater(t, len(chunks), 1)

	re := NewReassembler(1400)
	var out []byte
	for _, c := range chunks {
		got, err := re.Feed("peer-a", c)
		require.NoError(t, err)
		if got != nil {
			out = got
		}
	}
	require.Equal(t, msg, out)
}

func TestReassemblerRejectsChunkIDOutOfRange(t *testing.T) {
	msg := bytes.Repeat([]byte("y"), 5000)
	chunks := SplitIntoChunks(msg, 1400)

	re := NewReassembler(1400)
	_, err := re.Feed("peer-a", chunks[0])
	require.NoError(t, err)

	w := NewWriter()
	w.Byte(MarkerContinuation).Uint16(9999).Raw([]byte("junk"))
	bogus, err := w.Finish()
	require.NoError(t, err)

	_, err = re.Feed("peer-a", bogus)
	require.Error(t, err)
}

func TestReassemblerRejectsOversizeTotal(t *testing.T) {
	w := NewWriter()
	w.Byte(MarkerFirstOfN).Uint32(ReassemblyCap + 1).Uint16(0).Raw([]byte("payload"))
	pkt, err := w.Finish()
	require.NoError(t, err)

	re := NewReassembler(1400)
	_, err = re.Feed("peer-a", pkt)
	require.Error(t, err)
}

func TestIndependentSourcesReassembleIndependently(t *testing.T) {
	msgA := bytes.Repeat([]byte("a"), 3000)
	msgB := bytes.Repeat([]byte("b"), 3000)
	chunksA := SplitIntoChunks(msgA, 1400)
	chunksB := SplitIntoChunks(msgB, 1400)

	re := NewReassembler(1400)
	_, err := re.Feed("alice", chunksA[0])
	require.NoError(t, err)
	_, err = re.Feed("bob", chunksB[0])
	require.NoError(t, err)

	var outA, outB []byte
	for _, c := range chunksA[1:] {
		got, err := re.Feed("alice", c)
		require.NoError(t, err)
		if got != nil {
			outA = got
		}
	}
	for _, c := range chunksB[1:] {
		got, err := re.Feed("bob", c)
		require.NoError(t, err)
		if got != nil {
			outB = got
		}
	}
	require.Equal(t, msgA, outA)
	require.Equal(t, msgB, outB)
}
