// Package bytesio provides positioned and random-access byte readers with
// explicit big/little-endian primitive reads, used by the tiff and jpegseg
// packages to walk untrusted container structures without ever indexing
// past the end of the input.
package bytesio

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrTruncatedInput is returned whenever a read would cross the end of the
// underlying buffer.
var ErrTruncatedInput = errors.New("bytesio: truncated input")

// Order selects how multi-byte primitives are decoded/encoded. It is an
// interface type with the same method set as encoding/binary.ByteOrder,
// so binary.LittleEndian, binary.BigEndian and any other ByteOrder value
// can be used as an Order directly.
type Order binary.ByteOrder

// Sequential is a forward-only cursor over an in-memory byte slice.
//
// It is the workhorse for single-pass scans (the JPEG marker stream)
// where looking backwards is never required.
type Sequential struct {
	buf []byte
	pos int
}

// NewSequential wraps buf for sequential reading starting at offset 0.
func NewSequential(buf []byte) *Sequential {
	return &Sequential{buf: buf}
}

// Position returns the current read offset.
func (s *Sequential) Position() int { return s.pos }

// Available returns the number of unread bytes remaining.
func (s *Sequential) Available() int { return len(s.buf) - s.pos }

// ReadByte reads a single byte and advances the cursor.
func (s *Sequential) ReadByte() (byte, error) {
	if s.Available() < 1 {
		return 0, ErrTruncatedInput
	}
	b := s.buf[s.pos]
	s.pos++
	return b, nil
}

// ReadN reads exactly n raw bytes and advances the cursor.
func (s *Sequential) ReadN(n int) ([]byte, error) {
	if n < 0 || s.Available() < n {
		return nil, ErrTruncatedInput
	}
	p := s.buf[s.pos : s.pos+n]
	s.pos += n
	return p, nil
}

// SkipBytes advances the cursor by n bytes without returning them.
func (s *Sequential) SkipBytes(n int) error {
	if n < 0 || s.Available() < n {
		return ErrTruncatedInput
	}
	s.pos += n
	return nil
}

// ReadUint16 reads a 2-byte unsigned integer in the given byte order.
func (s *Sequential) ReadUint16(order Order) (uint16, error) {
	p, err := s.ReadN(2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(p), nil
}

// ReadUint32 reads a 4-byte unsigned integer in the given byte order.
func (s *Sequential) ReadUint32(order Order) (uint32, error) {
	p, err := s.ReadN(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(p), nil
}

// ReadUint64 reads an 8-byte unsigned integer in the given byte order.
func (s *Sequential) ReadUint64(order Order) (uint64, error) {
	p, err := s.ReadN(8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(p), nil
}

// RandomAccess is a reader that additionally allows seeking and reading at
// an arbitrary offset, as required to walk the forest of cross-linked TIFF
// IFD offsets.
type RandomAccess struct {
	*Sequential
}

// NewRandomAccess wraps buf for random access reading.
func NewRandomAccess(buf []byte) *RandomAccess {
	return &RandomAccess{Sequential: NewSequential(buf)}
}

// Reset moves the cursor back to the start of the buffer.
func (r *RandomAccess) Reset() {
	r.pos = 0
}

// Seek moves the cursor to an absolute offset.
func (r *RandomAccess) Seek(offset int) error {
	if offset < 0 || offset > len(r.buf) {
		return ErrTruncatedInput
	}
	r.pos = offset
	return nil
}

// GetLength returns the total size of the underlying buffer.
func (r *RandomAccess) GetLength() int { return len(r.buf) }

// ReadBytesAt returns a length-byte slice starting at offset without
// disturbing the current cursor position.
func (r *RandomAccess) ReadBytesAt(offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > len(r.buf) || offset > len(r.buf) {
		return nil, ErrTruncatedInput
	}
	return r.buf[offset : offset+length], nil
}

// Uint16At reads a 2-byte unsigned integer at offset without moving the
// cursor.
func (r *RandomAccess) Uint16At(offset int, order Order) (uint16, error) {
	p, err := r.ReadBytesAt(offset, 2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(p), nil
}

// Uint32At reads a 4-byte unsigned integer at offset without moving the
// cursor.
func (r *RandomAccess) Uint32At(offset int, order Order) (uint32, error) {
	p, err := r.ReadBytesAt(offset, 4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(p), nil
}

// PrePending wraps a RandomAccess reader and transparently serves a fixed
// prefix before delegating reads to the wrapped reader once the prefix is
// exhausted, for example a synthetic JPEG magic number (FF D8 FF) in front
// of a JPEG stream that lacks one. metacore's RAF path does not use it: it
// scans the RAF buffer for FF D8 and parses from that offset.
type PrePending struct {
	prefix []byte
	inner  *RandomAccess
}

// NewPrePending returns a reader that yields prefix followed by inner's
// bytes, addressed as a single contiguous logical stream.
func NewPrePending(prefix []byte, inner *RandomAccess) *PrePending {
	return &PrePending{prefix: prefix, inner: inner}
}

// GetLength returns the combined length of prefix and inner.
func (p *PrePending) GetLength() int {
	return len(p.prefix) + p.inner.GetLength()
}

// ReadBytesAt reads length bytes at a logical offset spanning the
// synthetic prefix and the inner buffer transparently.
func (p *PrePending) ReadBytesAt(offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > p.GetLength() {
		return nil, ErrTruncatedInput
	}
	out := make([]byte, length)
	n := 0
	if offset < len(p.prefix) {
		avail := len(p.prefix) - offset
		cpLen := avail
		if cpLen > length {
			cpLen = length
		}
		copy(out[:cpLen], p.prefix[offset:offset+cpLen])
		n = cpLen
	}
	if n < length {
		innerOffset := offset + n - len(p.prefix)
		if innerOffset < 0 {
			innerOffset = 0
		}
		rest, err := p.inner.ReadBytesAt(innerOffset, length-n)
		if err != nil {
			return nil, err
		}
		copy(out[n:], rest)
	}
	return out, nil
}
