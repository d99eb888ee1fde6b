package bsp

import (
	"bytes"
	"testing"

	"github.com/dtnd/bpagent/bpblock"
	"github.com/dtnd/bpagent/bundle"
)

// TestWriteBABCanonicalBlockSkipsRawPreamble guards against duplicating
// the block's own type+flags bytes: the masked copy written first must
// replace, not precede, the raw preamble in the digest input, so a
// changed EID_REFS bit or dictionary offset in the raw preamble must
// not change the canonical output.
func TestWriteBABCanonicalBlockSkipsRawPreamble(t *testing.T) {
	dict := bpblock.NewDictionary()

	var plain bpblock.BlockInfo
	plain.GeneratePreamble(dict, bundle.TypePayload, bpblock.LastBlock, nil, 5)
	plain.SetPayload([]byte("hello"))

	var withRefs bpblock.BlockInfo
	withRefs.GeneratePreamble(dict, bundle.TypePayload, bpblock.LastBlock, []bpblock.EID{
		{Scheme: "dtn", SSP: "//node9/x"},
	}, 5)
	withRefs.SetPayload([]byte("hello"))

	var bufA, bufB bytes.Buffer
	if err := WriteBABCanonicalBlock(&bufA, &plain, 0, false); err != nil {
		t.Fatalf("WriteBABCanonicalBlock(plain): %v", err)
	}
	if err := WriteBABCanonicalBlock(&bufB, &withRefs, 0, false); err != nil {
		t.Fatalf("WriteBABCanonicalBlock(withRefs): %v", err)
	}

	if !bytes.Equal(bufA.Bytes(), bufB.Bytes()) {
		t.Fatalf("canonical output differs with EID_REFS churn:\nplain:    % x\nwithRefs: % x", bufA.Bytes(), bufB.Bytes())
	}

	want := []byte{bundle.TypePayload}
	want = appendUint64BE(want, uint64(plain.BlockFlags&^bpblock.EIDRefs))
	want = append(want, []byte("hello")...)
	if !bytes.Equal(bufA.Bytes(), want) {
		t.Fatalf("canonical output = % x, want % x (type+masked-flags+payload only, no duplicated preamble)", bufA.Bytes(), want)
	}
}
