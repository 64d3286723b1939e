// Package types implements the primitive on-wire encodings shared by the
// MT command registry: little-endian integers, length-prefixed byte
// strings, enums that preserve unknown values, and bit-flag sets.
package types

import (
	"encoding/binary"
	"fmt"
)

// Reader consumes bytes from an MT payload in declaration order. Unlike a
// bytes.Reader it never returns io.EOF for a short read — every method
// panics with ErrShortPayload, which the command decoder recovers at the
// frame boundary and turns into an error (see commands.Decode).
type Reader struct {
	buf []byte
}

// NewReader wraps b for sequential decoding. b is not copied; callers must
// not mutate it while decoding is in progress.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) }

// Remaining returns, and consumes, every byte left in the reader.
func (r *Reader) Remaining() []byte {
	b := r.buf
	r.buf = nil
	return b
}

func (r *Reader) take(n int) []byte {
	if len(r.buf) < n {
		panic(ErrShortPayload)
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

// Uint8 decodes one byte.
func (r *Reader) Uint8() uint8 { return r.take(1)[0] }

// Uint16 decodes a little-endian uint16.
func (r *Reader) Uint16() uint16 { return binary.LittleEndian.Uint16(r.take(2)) }

// Uint32 decodes a little-endian uint32.
func (r *Reader) Uint32() uint32 { return binary.LittleEndian.Uint32(r.take(4)) }

// Uint64 decodes a little-endian uint64.
func (r *Reader) Uint64() uint64 { return binary.LittleEndian.Uint64(r.take(8)) }

// Int8 decodes one signed byte.
func (r *Reader) Int8() int8 { return int8(r.Uint8()) }

// FixedBytes decodes a fixed-width byte list of exactly n bytes.
func (r *Reader) FixedBytes(n int) []byte {
	b := make([]byte, n)
	copy(b, r.take(n))
	return b
}

// ShortBytes decodes a u8-length-prefixed byte string (max 255 bytes).
func (r *Reader) ShortBytes() []byte {
	n := int(r.Uint8())
	return r.FixedBytes(n)
}

// LongBytes decodes a u16_le-length-prefixed byte string.
func (r *Reader) LongBytes() []byte {
	n := int(r.Uint16())
	return r.FixedBytes(n)
}

// HasMore reports whether any bytes remain, used to detect a trailing
// optional parameter that was omitted from the wire (§4.2: "end-of-buffer
// ⇒ that parameter is absent").
func (r *Reader) HasMore() bool { return len(r.buf) > 0 }

// Writer accumulates bytes for an MT payload in declaration order.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer, optionally pre-sized.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated payload.
func (w *Writer) Bytes() []byte { return w.buf }

// Uint8 appends one byte.
func (w *Writer) Uint8(v uint8) { w.buf = append(w.buf, v) }

// Uint16 appends a little-endian uint16.
func (w *Writer) Uint16(v uint16) {
	w.buf = append(w.buf, byte(v), byte(v>>8))
}

// Uint32 appends a little-endian uint32.
func (w *Writer) Uint32(v uint32) {
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// Uint64 appends a little-endian uint64.
func (w *Writer) Uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Int8 appends one signed byte.
func (w *Writer) Int8(v int8) { w.Uint8(uint8(v)) }

// FixedBytes appends b verbatim (no length prefix).
func (w *Writer) FixedBytes(b []byte) { w.buf = append(w.buf, b...) }

// ShortBytes appends a u8-length-prefixed byte string.
func (w *Writer) ShortBytes(b []byte) error {
	if len(b) > 255 {
		return fmt.Errorf("%w: %d bytes exceeds ShortBytes max of 255", ErrFieldTooLarge, len(b))
	}
	w.Uint8(uint8(len(b)))
	w.FixedBytes(b)
	return nil
}

// LongBytes appends a u16_le-length-prefixed byte string.
func (w *Writer) LongBytes(b []byte) error {
	if len(b) > 65535 {
		return fmt.Errorf("%w: %d bytes exceeds LongBytes max of 65535", ErrFieldTooLarge, len(b))
	}
	w.Uint16(uint16(len(b)))
	w.FixedBytes(b)
	return nil
}
