// Package protocol implements the wire codec for the broker's native
// request/response protocol: big-endian length-prefixed frames carrying a
// fixed CAS info prefix, and the per-operation packet encoders/decoders
// built on top of them.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
)

// CASInfoSize is the width in bytes of the CAS info token that prefixes
// every frame body on the wire.
const CASInfoSize = 4

// LengthPrefixSize is the width in bytes of the frame's body-length field.
const LengthPrefixSize = 4

// CASInfo is the four-byte session token echoed on every request and
// returned on every response. The low bit of byte 3 of a *returned* token
// carries the server's current auto-commit state.
type CASInfo [4]byte

// InitialCASInfo is the value a session starts with, before the server has
// returned anything.
func InitialCASInfo() CASInfo {
	return CASInfo{0, 0xFF, 0xFF, 0xFF}
}

// AutoCommitFromToken extracts the auto-commit bit carried in a CAS info
// token returned by the server.
func AutoCommitFromToken(info CASInfo) bool {
	return info[3]&0x01 == 1
}

var bufferPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// Writer accumulates primitive wire values into a growable buffer and
// finalizes them into an immutable frame. A Writer is not safe for
// concurrent use; callers build one frame per Writer.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter returns a Writer ready to accept primitive writes for one
// request body.
func NewWriter() *Writer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return &Writer{buf: buf}
}

// WriteInt32 appends a signed 32-bit big-endian integer.
func (w *Writer) WriteInt32(v int32) *Writer {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	w.buf.Write(tmp[:])
	return w
}

// WriteByte appends a single byte.
func (w *Writer) WriteByte(b byte) *Writer {
	w.buf.WriteByte(b)
	return w
}

// WriteFixedString writes s truncated or zero-padded to exactly n bytes.
func (w *Writer) WriteFixedString(s string, n int) *Writer {
	b := []byte(s)
	if len(b) >= n {
		w.buf.Write(b[:n])
		return w
	}
	w.buf.Write(b)
	w.WriteFiller(n-len(b), 0)
	return w
}

// WriteCString writes s followed by a single NUL terminator.
func (w *Writer) WriteCString(s string) *Writer {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
	return w
}

// WriteFiller appends n bytes all equal to b.
func (w *Writer) WriteFiller(n int, b byte) *Writer {
	for i := 0; i < n; i++ {
		w.buf.WriteByte(b)
	}
	return w
}

// WriteBytes appends a raw byte block verbatim.
func (w *Writer) WriteBytes(b []byte) *Writer {
	w.buf.Write(b)
	return w
}

// Len reports the number of body bytes written so far.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Body returns a copy of the accumulated body bytes without framing.
func (w *Writer) Body() []byte {
	out := make([]byte, w.buf.Len())
	copy(out, w.buf.Bytes())
	return out
}

// Frame finalizes the accumulated body into a complete wire frame:
// 4-byte big-endian body length, followed by the CAS info echo, followed
// by the body. The length field counts only the body.
func (w *Writer) Frame(cas CASInfo) []byte {
	body := w.buf.Bytes()
	out := make([]byte, LengthPrefixSize+CASInfoSize+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(body)))
	copy(out[4:8], cas[:])
	copy(out[8:], body)
	bufferPool.Put(w.buf)
	w.buf = nil
	return out
}

// Reader is a cursor-style parser over one fully assembled frame body. It
// mirrors the Writer's primitives on the read side. Reader does no I/O and
// never blocks; it operates purely on an in-memory byte slice.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps a frame body (the bytes following the CAS info prefix)
// for sequential parsing.
func NewReader(body []byte) *Reader {
	return &Reader{data: body}
}

// Remaining reports how many unread bytes are left.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// ReadInt32 reads a signed 32-bit big-endian integer.
func (r *Reader) ReadInt32() (int32, error) {
	if r.Remaining() < 4 {
		return 0, fmt.Errorf("protocol: short read for int32: have %d bytes", r.Remaining())
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return int32(v), nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, fmt.Errorf("protocol: short read for byte")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadFixedString reads exactly n bytes and trims trailing zero padding.
func (r *Reader) ReadFixedString(n int) (string, error) {
	if r.Remaining() < n {
		return "", fmt.Errorf("protocol: short read for fixed string of %d bytes: have %d", n, r.Remaining())
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end]), nil
}

// ReadCString reads bytes up to and including a NUL terminator, returning
// the bytes before it. If the remaining data runs out before a NUL is
// found, the rest of the buffer is returned as the string (defensive
// against a truncated or malformed tail).
func (r *Reader) ReadCString() (string, error) {
	start := r.pos
	for r.pos < len(r.data) {
		if r.data[r.pos] == 0 {
			s := string(r.data[start:r.pos])
			r.pos++
			return s, nil
		}
		r.pos++
	}
	return string(r.data[start:r.pos]), nil
}

// ReadBytes reads exactly n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, fmt.Errorf("protocol: short read for %d raw bytes: have %d", n, r.Remaining())
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:r.pos+n])
	r.pos += n
	return b, nil
}

// Accumulator reassembles frames from arbitrarily chunked byte reads off a
// stream transport. It never discards bytes that don't yet form a
// complete frame, and the result of decoding is independent of how the
// caller's reads happened to be chunked.
type Accumulator struct {
	buf []byte
}

// NewAccumulator returns an empty frame accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Feed appends newly read bytes to the accumulator.
func (a *Accumulator) Feed(chunk []byte) {
	a.buf = append(a.buf, chunk...)
}

// frameLen reports the total length of the next frame (length prefix +
// CAS info + body) if enough bytes are buffered to know it, or ok=false.
func (a *Accumulator) frameLen() (total int, ok bool) {
	if len(a.buf) < LengthPrefixSize {
		return 0, false
	}
	bodyLen := binary.BigEndian.Uint32(a.buf[0:LengthPrefixSize])
	total = LengthPrefixSize + CASInfoSize + int(bodyLen)
	return total, true
}

// Ready reports whether a complete frame is currently buffered.
func (a *Accumulator) Ready() bool {
	total, ok := a.frameLen()
	if !ok {
		return false
	}
	return len(a.buf) >= total
}

// TakeFrame removes and returns one complete frame's CAS info and body
// from the front of the buffer. It returns ok=false if a full frame is
// not yet available; in that case no bytes are discarded.
func (a *Accumulator) TakeFrame() (cas CASInfo, body []byte, ok bool) {
	total, have := a.frameLen()
	if !have || len(a.buf) < total {
		return CASInfo{}, nil, false
	}
	copy(cas[:], a.buf[LengthPrefixSize:LengthPrefixSize+CASInfoSize])
	body = make([]byte, total-LengthPrefixSize-CASInfoSize)
	copy(body, a.buf[LengthPrefixSize+CASInfoSize:total])
	a.buf = a.buf[total:]
	return cas, body, true
}
