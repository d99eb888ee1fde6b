package bsp

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/dtnd/bpagent/bpblock"
	"github.com/dtnd/bpagent/bsp/keystore"
	"github.com/dtnd/bpagent/bundle"
)

func TestPIBSignAndVerifyRoundTrip(t *testing.T) {
	bd, primaryBytes := newTestBundle(t)

	rsaKey, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	keys := keystore.New()
	keys.Add(keystore.Entry{Host: "dtn://node2/mail", CSNum: 2, RSAKey: rsaKey})
	eng := &PIBEngine{Keys: keys}

	pib, err := eng.Prepare(bd, 2, bpblock.EID{Scheme: "dtn", SSP: "//node2/mail"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	dict := bd.Primary.Dictionary
	if _, err := eng.Generate(bd, pib, dict); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := eng.Finalize(bd, pib, primaryBytes); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	l := pib.Locals.(*Locals)
	sig, ok := l.Result.Get(TagSignature)
	if !ok || len(sig) == 0 {
		t.Fatalf("signature = %v, %v; want non-empty", sig, ok)
	}

	if err := eng.Validate(bd, pib, primaryBytes); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestPIBValidateRejectsTamperedPayload(t *testing.T) {
	bd, primaryBytes := newTestBundle(t)

	rsaKey, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	keys := keystore.New()
	keys.Add(keystore.Entry{Host: "dtn://node2/mail", CSNum: 2, RSAKey: rsaKey})
	eng := &PIBEngine{Keys: keys}

	pib, err := eng.Prepare(bd, 2, bpblock.EID{Scheme: "dtn", SSP: "//node2/mail"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	dict := bd.Primary.Dictionary
	eng.Generate(bd, pib, dict)
	if err := eng.Finalize(bd, pib, primaryBytes); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	bd.Payload().Contents[bd.Payload().DataOffset] ^= 0xff

	if err := eng.Validate(bd, pib, primaryBytes); err != ErrSecurityFailed {
		t.Fatalf("Validate on tampered payload = %v, want ErrSecurityFailed", err)
	}
}

func TestPIBCoveredExcludesSecurityBlocks(t *testing.T) {
	eng := &PIBEngine{}
	pib := &bpblock.BlockInfo{Type: bundle.TypePIB}
	bab := &bpblock.BlockInfo{Type: bundle.TypeBAB}
	payload := &bpblock.BlockInfo{Type: bundle.TypePayload}

	if eng.covered(pib, pib) {
		t.Fatal("PIB block must not cover itself")
	}
	if eng.covered(bab, pib) {
		t.Fatal("PIB digest must not cover BAB blocks")
	}
	if !eng.covered(payload, pib) {
		t.Fatal("PIB digest must cover the payload block")
	}
}
