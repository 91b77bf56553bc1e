// Package bits implements bit-level reading over H.26x bitstreams,
// including the RBSP emulation-prevention-byte stripping that both
// H.264 and H.265 share.
package bits

import (
	"io"

	"github.com/pkg/errors"
)

// ErrUnderflow is returned (and becomes sticky) once a Get/Skip call asks
// for more bits than remain in the underlying stream.
var ErrUnderflow = errors.New("bits: underflow")

// ErrInvalidWidth is returned when Get is asked for more than 32 bits.
var ErrInvalidWidth = errors.New("bits: width must be in [0, 32]")

// ByteSource is the minimal interface a BitReader needs from its backing
// byte stream. RbspReader implements it with emulation-byte stripping;
// a plain byte slice can be wrapped with NewPlainSource for bitstreams
// that don't need RBSP unescaping.
type ByteSource interface {
	ReadByte() (byte, error)

	// Remaining reports an upper bound on the number of bytes left to
	// read. It is used only to answer Left(); it's fine for it to
	// overcount when emulation bytes remain to be skipped.
	Remaining() int
}

type plainSource struct {
	data []byte
	pos  int
}

// NewPlainSource wraps a byte slice with no emulation-prevention handling,
// for bitstreams that are already RBSP (or that never escape 0x00 0x00 0x03).
func NewPlainSource(data []byte) ByteSource {
	return &plainSource{data: data}
}

func (s *plainSource) ReadByte() (byte, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

func (s *plainSource) Remaining() int {
	return len(s.data) - s.pos
}

// RbspReader strips emulation-prevention bytes (0x03 following two 0x00
// bytes) from a raw NAL byte stream, transparently, one byte at a time.
// The zero-run counter is tracked across reads so that an emulation
// sequence straddling a later cache reload inside BitReader is still
// elided correctly.
type RbspReader struct {
	data  []byte
	pos   int
	zeros int // consecutive 0x00 bytes seen immediately before pos, capped at 2
}

// NewRbspReader wraps raw (possibly emulation-escaped) NAL bytes.
func NewRbspReader(data []byte) *RbspReader {
	return &RbspReader{data: data}
}

func (r *RbspReader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.pos]
	r.pos++

	if r.zeros >= 2 && b == 0x03 {
		// Emulation-prevention byte: skip it and read the real next byte.
		r.zeros = 0
		if r.pos >= len(r.data) {
			return 0, io.EOF
		}
		b = r.data[r.pos]
		r.pos++
	}

	if b == 0x00 {
		r.zeros++
	} else {
		r.zeros = 0
	}
	return b, nil
}

func (r *RbspReader) Remaining() int {
	return len(r.data) - r.pos
}

// BitReader reads an unsigned integer of 0..32 bits at a time from a
// ByteSource, most-significant-bit first, with a sticky error flag once
// the underlying source underflows.
type BitReader struct {
	src ByteSource

	// cache holds up to 64 bits, left-justified: the most significant
	// `count` bits (starting at bit 63) are valid and unconsumed.
	cache uint64
	count uint

	sticky bool
}

// NewBitReader creates a BitReader over the given byte source.
func NewBitReader(src ByteSource) *BitReader {
	return &BitReader{src: src}
}

// NewRbspBitReader is a convenience constructor combining RbspReader and
// BitReader for reading Exp-Golomb fields directly out of an
// emulation-prevention-stripped NAL payload.
func NewRbspBitReader(data []byte) *BitReader {
	return NewBitReader(NewRbspReader(data))
}

func (r *BitReader) fill() {
	for r.count <= 56 {
		b, err := r.src.ReadByte()
		if err != nil {
			return
		}
		r.cache |= uint64(b) << (56 - r.count)
		r.count += 8
	}
}

// Get reads n (0 <= n <= 32) bits and returns them as an unsigned value.
// Get(0) always returns 0. Asking for more than 32 bits is a programming
// error and returns ErrInvalidWidth without marking the reader sticky.
func (r *BitReader) Get(n uint) (uint32, error) {
	if n > 32 {
		return 0, ErrInvalidWidth
	}
	if n == 0 {
		return 0, nil
	}
	if r.sticky {
		return 0, ErrUnderflow
	}

	r.fill()
	if r.count < n {
		r.sticky = true
		return 0, ErrUnderflow
	}

	v := uint32(r.cache >> (64 - n))
	r.cache <<= n
	r.count -= n
	return v, nil
}

// Skip discards n bits; n may exceed 32.
func (r *BitReader) Skip(n uint) error {
	for n > 32 {
		if _, err := r.Get(32); err != nil {
			return err
		}
		n -= 32
	}
	_, err := r.Get(n)
	return err
}

// Left returns an upper bound on the number of unread bits.
func (r *BitReader) Left() uint {
	return r.count + 8*uint(r.src.Remaining())
}

// Error reports whether the reader has seen an underflow. It is sticky:
// once true, it stays true and every subsequent Get/Skip also fails.
func (r *BitReader) Error() bool {
	return r.sticky
}

// GetExpGolomb decodes an unsigned Exp-Golomb value: count leading zero
// bits z, consume the terminating 1 bit, then return (1<<z)-1 + Get(z).
func (r *BitReader) GetExpGolomb() (uint32, error) {
	var zeros uint
	for {
		b, err := r.Get(1)
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		zeros++
		if zeros > 32 {
			r.sticky = true
			return 0, ErrUnderflow
		}
	}
	if zeros == 0 {
		return 0, nil
	}
	rem, err := r.Get(zeros)
	if err != nil {
		return 0, err
	}
	return (uint32(1)<<zeros - 1) + rem, nil
}
