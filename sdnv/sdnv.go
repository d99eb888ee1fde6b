// Package sdnv implements the Self-Delimiting Numeric Value encoding used
// throughout the bundle protocol wire format: an unsigned integer packed
// into 7-bit big-endian groups, one octet each, with the continuation bit
// (0x80) set on every octet but the last.
package sdnv

import "errors"

// ErrOverflow signals a value, or an encoded value, that does not fit in
// 64 bits.
var ErrOverflow = errors.New("sdnv: value exceeds 64 bits")

// ErrCap signals a destination buffer too small to hold the encoding.
var ErrCap = errors.New("sdnv: buffer capacity too small")

// MaxLen is the largest number of octets a 64-bit value can ever need.
const MaxLen = 10

// EncodedLen returns the number of octets needed to encode v.
func EncodedLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// Encode writes v into buf using at most len(buf) octets and returns the
// number of octets written. It returns ErrCap when buf is too small.
func Encode(buf []byte, v uint64) (int, error) {
	n := EncodedLen(v)
	if n > len(buf) {
		return 0, ErrCap
	}

	for i := n - 1; i >= 0; i-- {
		buf[i] = byte(v & 0x7f)
		if i != n-1 {
			buf[i] |= 0x80
		}
		v >>= 7
	}
	return n, nil
}

// Append encodes v and appends the result to buf, returning the extended
// slice. It mirrors the append-pattern of binary.BigEndian.AppendUint64.
func Append(buf []byte, v uint64) []byte {
	var tmp [MaxLen]byte
	n, _ := Encode(tmp[:], v) // MaxLen always suffices
	return append(buf, tmp[:n]...)
}

// overflowMask covers the top 7 bits of a uint64. If any of those bits
// are already set before folding in the next 7-bit group, the shift
// would push value bits past bit 63: the encoded value overflows 64
// bits.
const overflowMask = uint64(0x7f) << 57

// Decode reads an SDNV from the front of buf and returns the value along
// with the number of octets consumed. A negative count signals that buf
// does not hold a complete, valid SDNV: -1 means more bytes are needed
// (truncated input), -2 means the encoded value overflows 64 bits. The
// groups are big-endian (the first octet carries the most significant 7
// bits), matching Encode.
func Decode(buf []byte) (v uint64, n int) {
	for i, b := range buf {
		if i >= MaxLen {
			return 0, -2
		}
		if v&overflowMask != 0 {
			return 0, -2
		}
		v = v<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return v, i + 1
		}
	}
	return 0, -1
}

// Len returns the encoded length of the SDNV at the front of buf, or a
// negative count per the rules of Decode.
func Len(buf []byte) int {
	_, n := Decode(buf)
	return n
}
