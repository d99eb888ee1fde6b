package bpblock

import (
	"bytes"
	"testing"
)

func TestGenerateThenConsumeRoundTrip(t *testing.T) {
	dict := NewDictionary()
	eids := []EID{{Scheme: "dtn", SSP: "//node1/mail"}}

	var b BlockInfo
	payload := []byte("hello bundle")
	preamble := b.GeneratePreamble(dict, 1, ReportOnError|LastBlock, eids, uint64(len(payload)))
	b.SetPayload(payload)

	wire := append(append([]byte(nil), preamble...), payload...)
	if !bytes.Equal(b.Contents, wire) {
		t.Fatalf("Contents = %x, want %x", b.Contents, wire)
	}
	if !b.Complete() {
		t.Fatal("block not complete after SetPayload")
	}

	var in BlockInfo
	n, err := in.Consume(wire)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if n != len(wire) {
		t.Fatalf("Consume consumed %d of %d bytes", n, len(wire))
	}
	if !in.Complete() {
		t.Fatal("decoded block not complete")
	}
	if in.Type != 1 {
		t.Fatalf("Type = %d, want 1", in.Type)
	}
	if !bytes.Equal(in.Payload(), payload) {
		t.Fatalf("Payload = %q, want %q", in.Payload(), payload)
	}
	if len(in.EIDRefs) != 1 {
		t.Fatalf("EIDRefs = %v, want 1 entry", in.EIDRefs)
	}
	got, ok := dict.ExtractEID(in.EIDRefs[0].SchemeOff, in.EIDRefs[0].SSPOff)
	if !ok || got != eids[0] {
		t.Fatalf("ExtractEID = %v, %v; want %v, true", got, ok, eids[0])
	}
}

func TestConsumeByteAtATime(t *testing.T) {
	dict := NewDictionary()
	var gen BlockInfo
	payload := []byte("streamed payload bytes")
	preamble := gen.GeneratePreamble(dict, 3, DiscardBundleOnError, nil, uint64(len(payload)))
	gen.SetPayload(payload)
	wire := append(append([]byte(nil), preamble...), payload...)

	var in BlockInfo
	total := 0
	for _, c := range wire {
		n, err := in.Consume([]byte{c})
		if err != nil {
			t.Fatalf("Consume byte %d: %v", total, err)
		}
		total += n
	}
	if total != len(wire) {
		t.Fatalf("consumed %d bytes total, want %d", total, len(wire))
	}
	if !in.Complete() {
		t.Fatal("block not complete after byte-at-a-time feed")
	}
	if !bytes.Equal(in.Payload(), payload) {
		t.Fatalf("Payload = %q, want %q", in.Payload(), payload)
	}
}

func TestConsumeEmptyPayloadCompletesAtPreamble(t *testing.T) {
	dict := NewDictionary()
	var gen BlockInfo
	preamble := gen.GeneratePreamble(dict, 2, 0, nil, 0)

	var in BlockInfo
	n, err := in.Consume(preamble)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if n != len(preamble) {
		t.Fatalf("consumed %d, want %d", n, len(preamble))
	}
	if !in.Complete() {
		t.Fatal("zero-length-payload block should complete immediately after preamble")
	}
	if len(in.Payload()) != 0 {
		t.Fatalf("Payload = %q, want empty", in.Payload())
	}
}

func TestConsumeOverlongDataLengthFails(t *testing.T) {
	// flags=0, data-length SDNV encoding 2^32, one more than 2^32-1 (5
	// octets; the leading 0x90 carries bit 32, the final 0x00 ends it).
	buf := []byte{7, 0x00, 0x90, 0x80, 0x80, 0x80, 0x00}
	var in BlockInfo
	if _, err := in.Consume(buf); err != ErrOverflow {
		t.Fatalf("Consume overlong data-length: got %v, want ErrOverflow", err)
	}
}

func TestCanonMasks(t *testing.T) {
	if ExtensionCanonMask != 0x57 {
		t.Fatalf("ExtensionCanonMask = %#x, want 0x57", ExtensionCanonMask)
	}
	if PrimaryCanonMask != 0x7C1BE {
		t.Fatalf("PrimaryCanonMask = %#x, want 0x7C1BE", PrimaryCanonMask)
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup(1); ok {
		t.Fatal("empty registry should not resolve any type")
	}
	p := stubProcessor{}
	r.Register(1, p)
	got, ok := r.Lookup(1)
	if !ok || got != p {
		t.Fatalf("Lookup(1) = %v, %v; want registered stub, true", got, ok)
	}
}

type stubProcessor struct{}

func (stubProcessor) Consume(*BlockInfo) error                        { return nil }
func (stubProcessor) Prepare(*BlockInfo) error                        { return nil }
func (stubProcessor) Generate(*BlockInfo, *Dictionary) ([]byte, error) { return nil, nil }
func (stubProcessor) Finalize(*BlockInfo) error                        { return nil }
func (stubProcessor) Validate(*BlockInfo) error                        { return nil }
