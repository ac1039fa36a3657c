package wire

import (
	"sync"
	"time"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
)

// Chunk markers, per §4.7.
const (
	MarkerSinglePacket byte = 0x00
	MarkerFirstOfN     byte = 0x01
	MarkerContinuation byte = 0x02
)

// DefaultChunkPayloadMax is the default transport MTU payload budget a
// message is split to fit within.
const DefaultChunkPayloadMax = 1400

// ReassemblyCap is the maximum total size accepted for one in-flight
// reassembly, per §5's resource limits (64 * 1400 = 89.6 KiB, rounded
// up to a round number here).
const ReassemblyCap = 90 * 1024

// ReassemblyTimeout is how long a partial reassembly is retained
// before being reaped.
const ReassemblyTimeout = 30 * time.Second

// SplitIntoChunks wraps msg in the chunking envelope. A message that
// already fits within payloadMax is emitted as a single packet.
func SplitIntoChunks(msg []byte, payloadMax int) [][]byte {
	if payloadMax <= 0 {
		payloadMax = DefaultChunkPayloadMax
	}
	if len(msg) <= payloadMax {
		pkt := make([]byte, 0, 1+len(msg))
		pkt = append(pkt, MarkerSinglePacket)
		pkt = append(pkt, msg...)
		return [][]byte{pkt}
	}

	total := uint32(len(msg))
	var chunks [][]byte
	chunkID := uint16(0)
	for offset := 0; offset < len(msg); {
		end := offset + payloadMax
		if end > len(msg) {
			end = len(msg)
		}
		payload := msg[offset:end]

		w := NewWriter()
		if chunkID == 0 {
			w.Byte(MarkerFirstOfN).Uint32(total).Uint16(chunkID).Raw(payload)
		} else {
			w.Byte(MarkerContinuation).Uint16(chunkID).Raw(payload)
		}
		pkt, _ := w.Finish()
		chunks = append(chunks, pkt)

		offset = end
		chunkID++
	}
	return chunks
}

type reassemblyBuffer struct {
	total     uint32
	chunkSize int
	parts     map[uint16][]byte
	started   time.Time
}

func (b *reassemblyBuffer) maxChunkID() uint16 {
	n := (int(b.total) + b.chunkSize - 1) / b.chunkSize
	if n == 0 {
		return 0
	}
	return uint16(n - 1)
}

func (b *reassemblyBuffer) complete() bool {
	return uint32(len(b.parts)) == uint32(b.maxChunkID())+1
}

func (b *reassemblyBuffer) assemble() ([]byte, error) {
	out := make([]byte, 0, b.total)
	for id := uint16(0); ; id++ {
		part, ok := b.parts[id]
		if !ok {
			return nil, b4aeerr.New("wire.reassemblyBuffer.assemble", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
		}
		out = append(out, part...)
		if id == b.maxChunkID() {
			break
		}
	}
	if uint32(len(out)) != b.total {
		return nil, b4aeerr.New("wire.reassemblyBuffer.assemble", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
	}
	return out, nil
}

// Reassembler holds per-source partial reassembly state. Each source
// (e.g. a peer_id) reassembles independently; a stalled or oversize
// reassembly for one source never affects another.
type Reassembler struct {
	mu       sync.Mutex
	chunkMax int
	pending  map[string]*reassemblyBuffer
}

// NewReassembler constructs a Reassembler using chunkPayloadMax as the
// expected per-chunk payload size for max-chunk-id bounds checking.
func NewReassembler(chunkPayloadMax int) *Reassembler {
	if chunkPayloadMax <= 0 {
		chunkPayloadMax = DefaultChunkPayloadMax
	}
	return &Reassembler{chunkMax: chunkPayloadMax, pending: make(map[string]*reassemblyBuffer)}
}

// Feed processes one received packet for source. It returns the
// reassembled message once complete, or (nil, nil) while reassembly
// is still in progress.
func (r *Reassembler) Feed(source string, pkt []byte) ([]byte, error) {
	if len(pkt) == 0 {
		return nil, b4aeerr.New("wire.Reassembler.Feed", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
	}
	marker := pkt[0]
	body := pkt[1:]

	switch marker {
	case MarkerSinglePacket:
		return append([]byte{}, body...), nil

	case MarkerFirstOfN:
		rd, err := NewReader(body)
		if err != nil {
			return nil, err
		}
		total, err := rd.Uint32()
		if err != nil {
			return nil, err
		}
		chunkID, err := rd.Uint16()
		if err != nil {
			return nil, err
		}
		if chunkID != 0 {
			return nil, b4aeerr.New("wire.Reassembler.Feed", b4aeerr.KindProtocolError, b4aeerr.ErrChunkIDOutOfRange)
		}
		if total > ReassemblyCap {
			return nil, b4aeerr.New("wire.Reassembler.Feed", b4aeerr.KindResourceExhausted, b4aeerr.ErrReassemblyTooLarge)
		}
		payload := body[rd.pos:]

		r.mu.Lock()
		defer r.mu.Unlock()
		buf := &reassemblyBuffer{total: total, chunkSize: r.chunkMax, parts: map[uint16][]byte{0: append([]byte{}, payload...)}, started: time.Now()}
		r.pending[source] = buf
		if buf.complete() {
			delete(r.pending, source)
			return buf.assemble()
		}
		return nil, nil

	case MarkerContinuation:
		rd, err := NewReader(body)
		if err != nil {
			return nil, err
		}
		chunkID, err := rd.Uint16()
		if err != nil {
			return nil, err
		}
		payload := body[rd.pos:]

		r.mu.Lock()
		defer r.mu.Unlock()
		buf, ok := r.pending[source]
		if !ok {
			return nil, b4aeerr.New("wire.Reassembler.Feed", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
		}
		if time.Since(buf.started) > ReassemblyTimeout {
			delete(r.pending, source)
			return nil, b4aeerr.New("wire.Reassembler.Feed", b4aeerr.KindTimeout, b4aeerr.ErrReassemblyTimeout)
		}
		if chunkID > buf.maxChunkID() {
			delete(r.pending, source)
			return nil, b4aeerr.New("wire.Reassembler.Feed", b4aeerr.KindProtocolError, b4aeerr.ErrChunkIDOutOfRange)
		}
		buf.parts[chunkID] = append([]byte{}, payload...)
		if buf.complete() {
			delete(r.pending, source)
			return buf.assemble()
		}
		return nil, nil

	default:
		return nil, b4aeerr.New("wire.Reassembler.Feed", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
	}
}

// Reap discards any pending reassembly older than ReassemblyTimeout,
// for a caller that polls rather than relying on Feed's own timeout
// check (which only fires for a source that is still sending).
func (r *Reassembler) Reap() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for source, buf := range r.pending {
		if time.Since(buf.started) > ReassemblyTimeout {
			delete(r.pending, source)
		}
	}
}
