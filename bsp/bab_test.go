package bsp

import (
	"bytes"
	"testing"

	"github.com/dtnd/bpagent/bpblock"
	"github.com/dtnd/bpagent/bsp/keystore"
	"github.com/dtnd/bpagent/bundle"
)

func newTestBundle(t *testing.T) (*bundle.Bundle, []byte) {
	t.Helper()
	dict := bpblock.NewDictionary()
	bd := &bundle.Bundle{Primary: bundle.Primary{
		Version:     7,
		Destination: bpblock.EID{Scheme: "dtn", SSP: "//node2/mail"},
		Source:      bpblock.EID{Scheme: "dtn", SSP: "//node1/mail"},
		ReportTo:    bpblock.NullEID,
		Dictionary:  dict,
	}}

	var pb bytes.Buffer
	if err := WriteCanonicalPrimary(&pb, &bd.Primary); err != nil {
		t.Fatalf("WriteCanonicalPrimary: %v", err)
	}

	var payload bpblock.BlockInfo
	payload.GeneratePreamble(dict, bundle.TypePayload, bpblock.LastBlock, nil, 11)
	payload.SetPayload([]byte("hello world"))
	bd.Append(&payload)

	return bd, pb.Bytes()
}

func TestBABRoundTrip(t *testing.T) {
	bd, primaryBytes := newTestBundle(t)

	keys := keystore.New()
	keys.Add(keystore.Entry{Host: "dtn://node2/mail", CSNum: 1, Symmetric: make([]byte, 20)})
	eng := &BABEngine{Keys: keys}

	leading, trailing, err := eng.Prepare(bd, 1, bpblock.EID{Scheme: "dtn", SSP: "//node2/mail"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	dict := bd.Primary.Dictionary
	if _, err := eng.Generate(leading, dict, bundle.TypeBAB); err != nil {
		t.Fatalf("Generate(leading): %v", err)
	}
	if _, err := eng.Generate(trailing, dict, bundle.TypeBAB); err != nil {
		t.Fatalf("Generate(trailing): %v", err)
	}
	if err := eng.Finalize(bd, leading, trailing, primaryBytes); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	tl := trailing.Locals.(*Locals)
	sig, ok := tl.Result.Get(TagSignature)
	if !ok || len(sig) != 20 {
		t.Fatalf("trailing signature = %v, %v; want 20 bytes", sig, ok)
	}

	if err := eng.Validate(bd, leading, trailing, primaryBytes); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

// TestBABValidateRejectsTamperedLeadingBlock confirms the leading BAB
// block itself is covered by the HMAC: tampering its first body byte
// (the ciphersuite-number SDNV) after Finalize must fail Validate, since
// a digest that skipped
// the leading block (as it once did) would not notice.
func TestBABValidateRejectsTamperedLeadingBlock(t *testing.T) {
	bd, primaryBytes := newTestBundle(t)

	keys := keystore.New()
	keys.Add(keystore.Entry{Host: "dtn://node2/mail", CSNum: 1, Symmetric: make([]byte, 20)})
	eng := &BABEngine{Keys: keys}

	leading, trailing, err := eng.Prepare(bd, 1, bpblock.EID{Scheme: "dtn", SSP: "//node2/mail"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	dict := bd.Primary.Dictionary
	eng.Generate(leading, dict, bundle.TypeBAB)
	eng.Generate(trailing, dict, bundle.TypeBAB)
	if err := eng.Finalize(bd, leading, trailing, primaryBytes); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	leading.Contents[leading.DataOffset] ^= 0xff

	if err := eng.Validate(bd, leading, trailing, primaryBytes); err != ErrSecurityFailed {
		t.Fatalf("Validate on tampered leading block = %v, want ErrSecurityFailed", err)
	}
}

func TestBABValidateRejectsTamperedPayload(t *testing.T) {
	bd, primaryBytes := newTestBundle(t)

	keys := keystore.New()
	keys.Add(keystore.Entry{Host: "dtn://node2/mail", CSNum: 1, Symmetric: make([]byte, 20)})
	eng := &BABEngine{Keys: keys}

	leading, trailing, err := eng.Prepare(bd, 1, bpblock.EID{Scheme: "dtn", SSP: "//node2/mail"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	dict := bd.Primary.Dictionary
	eng.Generate(leading, dict, bundle.TypeBAB)
	eng.Generate(trailing, dict, bundle.TypeBAB)
	if err := eng.Finalize(bd, leading, trailing, primaryBytes); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	bd.Payload().Contents[bd.Payload().DataOffset] ^= 0xff

	if err := eng.Validate(bd, leading, trailing, primaryBytes); err != ErrSecurityFailed {
		t.Fatalf("Validate on tampered payload = %v, want ErrSecurityFailed", err)
	}
}
