package sdnv

import (
	"math"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 127, 128, 129, 16383, 16384,
		1 << 20, 1<<35 - 1, 1 << 40,
		math.MaxUint32, math.MaxUint32 + 1,
		1 << 62, math.MaxInt64, math.MaxUint64,
	}
	for _, v := range values {
		buf := make([]byte, MaxLen)
		n, err := Encode(buf, v)
		if err != nil {
			t.Fatalf("Encode(%d): %v", v, err)
		}
		if got := EncodedLen(v); got != n {
			t.Errorf("EncodedLen(%d) = %d, want %d", v, got, n)
		}

		got, consumed := Decode(buf[:n])
		if consumed != n {
			t.Fatalf("Decode consumed %d octets, want %d", consumed, n)
		}
		if got != v {
			t.Errorf("Decode(Encode(%d)) = %d", v, got)
		}

		if l := Len(buf[:n]); l != n {
			t.Errorf("Len = %d, want %d", l, n)
		}
	}
}

func TestEncodeCapTooSmall(t *testing.T) {
	buf := make([]byte, 1)
	if _, err := Encode(buf, 1<<20); err != ErrCap {
		t.Fatalf("Encode into undersized buffer: got %v, want ErrCap", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	buf := []byte{0x81, 0x81} // continuation set on both, no terminator
	if _, n := Decode(buf); n != -1 {
		t.Fatalf("Decode truncated = %d, want -1", n)
	}
	if l := Len(buf); l != -1 {
		t.Fatalf("Len truncated = %d, want -1", l)
	}
}

func TestDecodeOverflow(t *testing.T) {
	// The leading (most-significant) group carries value 2, but a
	// 10-group encoding only has room for 1 bit at that position:
	// folding in the 9 remaining groups pushes a value bit past bit 63.
	buf := []byte{0x82, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x00}
	if _, n := Decode(buf); n != -2 {
		t.Fatalf("Decode overflow = %d, want -2", n)
	}
	if l := Len(buf); l != -2 {
		t.Fatalf("Len overflow = %d, want -2", l)
	}
}

func TestAppend(t *testing.T) {
	buf := []byte("prefix:")
	buf = Append(buf, 300)
	v, n := Decode(buf[len("prefix:"):])
	if v != 300 || n != 2 {
		t.Fatalf("Append+Decode = %d, %d octets; want 300, 2", v, n)
	}
}
