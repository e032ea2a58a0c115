// Package intcodec implements a fixed-size block codec for 32-bit
// integers. A block is stored in one of three layouts selected by a
// leading tag byte: a constant block (all values equal), a varbyte
// stream, or a bit-packed payload with a fixed width per value.
package intcodec

import (
	"math/bits"

	"github.com/pkg/errors"
)

// BlockSize is the number of integers compressed together in one block.
const BlockSize = 128

const (
	tagConstant = 0
	tagVarbyte  = 1
	// tags 2..33 encode a bit-packed block of width tag-1
)

var (
	ErrShortBlock   = errors.New("intcodec: block truncated")
	ErrInvalidBlock = errors.New("intcodec: invalid block data")
)

// PutUvarint32 encodes x into buf and returns the number of bytes written.
// The buffer must have room for up to MaxUvarint32Len bytes.
func PutUvarint32(buf []byte, x uint32) int {
	i := 0
	for x >= 0x80 {
		buf[i] = byte(x) | 0x80
		x >>= 7
		i++
	}
	buf[i] = byte(x)
	return i + 1
}

// MaxUvarint32Len is the maximum encoded size of a 32-bit uvarint.
const MaxUvarint32Len = 5

// AppendUvarint32 appends the uvarint encoding of x to dst.
func AppendUvarint32(dst []byte, x uint32) []byte {
	for x >= 0x80 {
		dst = append(dst, byte(x)|0x80)
		x >>= 7
	}
	return append(dst, byte(x))
}

// Uvarint32 decodes a uvarint from buf. It returns the value and the
// number of bytes consumed. If the buffer is truncated or the value
// overflows 32 bits, the byte count is <= 0.
func Uvarint32(buf []byte) (uint32, int) {
	var x uint32
	var s uint
	for i, b := range buf {
		if b < 0x80 {
			if i >= MaxUvarint32Len-1 && b > 0xf {
				return 0, -(i + 1) // overflow
			}
			return x | uint32(b)<<s, i + 1
		}
		x |= uint32(b&0x7f) << s
		s += 7
		if s >= 35 {
			return 0, -(i + 1)
		}
	}
	return 0, 0
}

func uvarint32Len(x uint32) int {
	n := 1
	for x >= 0x80 {
		x >>= 7
		n++
	}
	return n
}

func allEqual(values []uint32) bool {
	v := values[0]
	for _, x := range values[1:] {
		if x != v {
			return false
		}
	}
	return true
}

// EncodeBlock appends the encoded form of values to dst. The same
// number of values must be passed to DecodeBlock to get them back.
// Encoding an empty slice appends nothing.
func EncodeBlock(dst []byte, values []uint32) []byte {
	if len(values) == 0 {
		return dst
	}
	if allEqual(values) {
		dst = append(dst, tagConstant)
		return AppendUvarint32(dst, values[0])
	}

	var width uint
	varbyteSize := 0
	for _, v := range values {
		if w := uint(bits.Len32(v)); w > width {
			width = w
		}
		varbyteSize += uvarint32Len(v)
	}
	if width == 0 {
		width = 1
	}

	if packedSize := (len(values)*int(width) + 7) / 8; packedSize < varbyteSize {
		dst = append(dst, byte(width+1))
		return packBits(dst, values, width)
	}

	dst = append(dst, tagVarbyte)
	for _, v := range values {
		dst = AppendUvarint32(dst, v)
	}
	return dst
}

// DecodeBlock decodes len(out) values from src into out and returns the
// unconsumed remainder of src. It never reads past the end of src; a
// truncated or malformed block is reported as an error.
func DecodeBlock(src []byte, out []uint32) ([]byte, error) {
	if len(out) == 0 {
		return src, nil
	}
	if len(src) == 0 {
		return nil, ErrShortBlock
	}
	tag := src[0]
	src = src[1:]

	switch {
	case tag == tagConstant:
		v, n := Uvarint32(src)
		if n <= 0 {
			return nil, ErrInvalidBlock
		}
		for i := range out {
			out[i] = v
		}
		return src[n:], nil

	case tag == tagVarbyte:
		for i := range out {
			v, n := Uvarint32(src)
			if n <= 0 {
				return nil, ErrInvalidBlock
			}
			out[i] = v
			src = src[n:]
		}
		return src, nil

	case tag >= 2 && tag <= 33:
		width := uint(tag - 1)
		size := (len(out)*int(width) + 7) / 8
		if size > len(src) {
			return nil, ErrShortBlock
		}
		unpackBits(src[:size], out, width)
		return src[size:], nil
	}

	return nil, errors.Wrapf(ErrInvalidBlock, "unknown block tag %d", tag)
}

func packBits(dst []byte, values []uint32, width uint) []byte {
	var acc uint64
	var nbits uint
	for _, v := range values {
		acc |= uint64(v) << nbits
		nbits += width
		for nbits >= 8 {
			dst = append(dst, byte(acc))
			acc >>= 8
			nbits -= 8
		}
	}
	if nbits > 0 {
		dst = append(dst, byte(acc))
	}
	return dst
}

func unpackBits(src []byte, out []uint32, width uint) {
	mask := uint64(1)<<width - 1
	var acc uint64
	var nbits uint
	i := 0
	for _, b := range src {
		acc |= uint64(b) << nbits
		nbits += 8
		for nbits >= width {
			if i == len(out) {
				return
			}
			out[i] = uint32(acc & mask)
			acc >>= width
			nbits -= width
			i++
		}
	}
}
