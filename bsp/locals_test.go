package bsp

import (
	"bytes"
	"testing"
)

func TestTagMapRoundTrip(t *testing.T) {
	var m TagMap
	m.Set(TagIV, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	m.Set(TagSalt, []byte{9, 9, 9, 9})

	enc := m.Encode(nil)
	got, err := DecodeTagMap(enc)
	if err != nil {
		t.Fatalf("DecodeTagMap: %v", err)
	}
	iv, ok := got.Get(TagIV)
	if !ok || !bytes.Equal(iv, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Fatalf("IV = %v, %v", iv, ok)
	}
	salt, ok := got.Get(TagSalt)
	if !ok || !bytes.Equal(salt, []byte{9, 9, 9, 9}) {
		t.Fatalf("salt = %v, %v", salt, ok)
	}
	if len(got.Tags()) != 2 || got.Tags()[0] != TagIV || got.Tags()[1] != TagSalt {
		t.Fatalf("Tags() = %v, want [IV Salt] in insertion order", got.Tags())
	}
}

func TestTagMapEmpty(t *testing.T) {
	var m TagMap
	if !m.Empty() {
		t.Fatal("zero-value TagMap should be empty")
	}
	m.Set(TagIV, []byte{1})
	if m.Empty() {
		t.Fatal("TagMap with an entry should not be empty")
	}
}

func TestBSPBodyRoundTrip(t *testing.T) {
	l := &Locals{CSNum: 1, Flags: HasCorrelator | HasResult, Correlator: 0x0001000000000001}
	l.Result.Set(TagSignature, make([]byte, 20))

	body := serializeBSPBody(l)
	got, err := parseBSPBody(body)
	if err != nil {
		t.Fatalf("parseBSPBody: %v", err)
	}
	if got.CSNum != 1 || got.Flags != l.Flags || got.Correlator != l.Correlator {
		t.Fatalf("parseBSPBody = %+v, want CSNum=1 Flags=%v Correlator=%x", got, l.Flags, l.Correlator)
	}
	sig, ok := got.Result.Get(TagSignature)
	if !ok || len(sig) != 20 {
		t.Fatalf("Result[signature] = %v, %v; want 20 zero bytes", sig, ok)
	}
}

func TestFamilyCoversAllTwelveCiphersuites(t *testing.T) {
	for cs := uint16(1); cs <= 12; cs++ {
		if _, ok := Family[cs]; !ok {
			t.Errorf("Family missing ciphersuite %d", cs)
		}
	}
}

func TestHMACLen(t *testing.T) {
	cases := map[Hash]int{HashSHA1: 20, HashSHA256: 32, HashSHA384: 48}
	for h, want := range cases {
		if got := h.HMACLen(); got != want {
			t.Errorf("HMACLen(%v) = %d, want %d", h, got, want)
		}
	}
}
