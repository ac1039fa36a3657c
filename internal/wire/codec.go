// Package wire implements the canonical binary serialization shared
// by every handshake and record message, and the chunking envelope
// that splits oversize messages across transport datagrams. It is
// grounded on the teacher's protocol_adapter.go framing discipline
// (internal/security/protocol_adapter.go) and on the length-prefixed,
// bounds-checked decode idiom shown in the pack's tunnel handshake
// reference (pkg/tunnel/handshake.go): every length read is checked
// against the remaining buffer before use, and no partial state
// survives a decode error.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/b4ae-io/b4ae-core/internal/b4aeerr"
)

// MaxMessageSize bounds the total encoded size of any single top-level
// message, enforced on both encode and decode.
const MaxMessageSize = 1 << 20 // 1 MiB

// Writer accumulates a canonical message buffer. Zero value is ready
// to use.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Byte(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

func (w *Writer) Uint16(v uint16) *Writer {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *Writer) Uint32(v uint32) *Writer {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

func (w *Writer) Uint64(v uint64) *Writer {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// Raw appends bytes with no length prefix, for fixed-size fields whose
// size is implied by the message format.
func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Bytes appends a 4-byte big-endian length prefix followed by b.
func (w *Writer) Bytes(b []byte) *Writer {
	w.Uint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
	return w
}

// ShortBytes writes a 2-byte-prefixed field for short variable-length
// values.
func (w *Writer) ShortBytes(b []byte) *Writer {
	w.Uint16(uint16(len(b)))
	w.buf = append(w.buf, b...)
	return w
}

// Finish returns the accumulated buffer, failing if it exceeds
// MaxMessageSize.
func (w *Writer) Finish() ([]byte, error) {
	if len(w.buf) > MaxMessageSize {
		return nil, b4aeerr.New("wire.Writer.Finish", b4aeerr.KindResourceExhausted, b4aeerr.ErrMessageTooLarge)
	}
	return w.buf, nil
}

// Reader decodes a canonical message buffer. Every read is bounds
// checked against the remaining bytes; a short or malformed buffer
// produces an error rather than a panic or silently truncated value.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) (*Reader, error) {
	if len(buf) > MaxMessageSize {
		return nil, b4aeerr.New("wire.NewReader", b4aeerr.KindResourceExhausted, b4aeerr.ErrMessageTooLarge)
	}
	return &Reader{buf: buf}, nil
}

func (r *Reader) need(n int) error {
	if n < 0 || r.pos+n > len(r.buf) || r.pos+n < r.pos {
		return b4aeerr.New("wire.Reader", b4aeerr.KindProtocolError, b4aeerr.ErrMalformedInput)
	}
	return nil
}

func (r *Reader) Byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) Uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) Uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// Raw reads exactly n bytes with no length prefix.
func (r *Reader) Raw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Bytes reads a 4-byte-length-prefixed field.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	return r.Raw(int(n))
}

// ShortBytes reads a 2-byte-length-prefixed field.
func (r *Reader) ShortBytes() ([]byte, error) {
	n, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	return r.Raw(int(n))
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// RequireExhausted fails if the buffer has trailing bytes beyond what
// was decoded, catching truncation or length-field corruption that
// left extra data unconsumed.
func (r *Reader) RequireExhausted() error {
	if r.Remaining() != 0 {
		return b4aeerr.New("wire.Reader.RequireExhausted", b4aeerr.KindProtocolError, fmt.Errorf("%w: %d trailing bytes", b4aeerr.ErrMalformedInput, r.Remaining()))
	}
	return nil
}
