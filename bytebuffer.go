package ftp

import "bytes"

// ByteBuffer is a growable byte accumulator used by the reader to assemble
// one reply line at a time before it is classified. It is deliberately
// simple: append a byte at a time, take a snapshot, search within it.
//
// A ByteBuffer is not safe for concurrent use; each Reader owns exactly one
// and never shares it across goroutines.
type ByteBuffer struct {
	buf []byte
}

// AppendByte appends a single byte.
func (b *ByteBuffer) AppendByte(c byte) {
	b.buf = append(b.buf, c)
}

// Len returns the number of bytes currently accumulated.
func (b *ByteBuffer) Len() int {
	return len(b.buf)
}

// Bytes returns the accumulated bytes. The slice is only valid until the
// next call to Reset or AppendByte.
func (b *ByteBuffer) Bytes() []byte {
	return b.buf
}

// Slice returns a copy of buf[start:end], bounds-checked against the
// current length, e.g. to carve the reply text out of a line (strip the
// 3-digit code and the separator).
func (b *ByteBuffer) Slice(start, end int) []byte {
	if start < 0 {
		start = 0
	}
	if end > len(b.buf) {
		end = len(b.buf)
	}
	if start >= end {
		return nil
	}
	out := make([]byte, end-start)
	copy(out, b.buf[start:end])
	return out
}

// IndexByte returns the index of the first occurrence of c, or -1.
func (b *ByteBuffer) IndexByte(c byte) int {
	return bytes.IndexByte(b.buf, c)
}

// Reset empties the buffer for reuse without releasing its backing array.
func (b *ByteBuffer) Reset() {
	b.buf = b.buf[:0]
}

// String returns the accumulated bytes as a string.
func (b *ByteBuffer) String() string {
	return string(b.buf)
}
