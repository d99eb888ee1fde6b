package bsp

import (
	"testing"

	"github.com/dtnd/bpagent/bpblock"
	"github.com/dtnd/bpagent/bsp/keystore"
	"github.com/dtnd/bpagent/bundle"
)

func TestPrepareOutBlocksAppliesBABRule(t *testing.T) {
	bd, _ := newTestBundle(t)
	keys := keystore.New()
	keys.Add(keystore.Entry{Host: "dtn://node1/mail", CSNum: 1, Symmetric: make([]byte, 20)})

	p := &Policy{Outgoing: []Rule{{
		Source:      bpblock.Pattern{Scheme: "*", SSP: "*"},
		Destination: bpblock.Pattern{Scheme: "*", SSP: "*"},
		CSNums:      []uint16{1},
	}}}
	eng := Engines{BAB: &BABEngine{Keys: keys}}

	var corrSeq uint64
	if err := p.PrepareOutBlocks(bd, bpblock.EID{Scheme: "dtn", SSP: "//node1/mail"}, bd.Primary.Dictionary, eng, &corrSeq); err != nil {
		t.Fatalf("PrepareOutBlocks: %v", err)
	}

	babCount := 0
	for _, b := range bd.Blocks {
		if b.Type == bundle.TypeBAB {
			babCount++
		}
	}
	if babCount != 2 {
		t.Fatalf("BAB block count = %d, want 2 (leading+trailing)", babCount)
	}
}

func TestVerifyInPolicyFlagsMissingSecurity(t *testing.T) {
	bd, _ := newTestBundle(t)
	p := &Policy{Incoming: []Rule{{
		Source:      bpblock.Pattern{Scheme: "*", SSP: "*"},
		Destination: bpblock.Pattern{Scheme: "*", SSP: "*"},
		CSNums:      []uint16{1},
	}}}
	if err := p.VerifyInPolicy(bd, map[uint16][]*Locals{}); err == nil {
		t.Fatal("VerifyInPolicy should fail when no matching security block is present")
	}
}

func TestVerifyInPolicySatisfiedRule(t *testing.T) {
	bd, _ := newTestBundle(t)
	p := &Policy{Incoming: []Rule{{
		Source:      bpblock.Pattern{Scheme: "*", SSP: "*"},
		Destination: bpblock.Pattern{Scheme: "*", SSP: "*"},
		SecSource:   bpblock.Pattern{Scheme: "*", SSP: "*"},
		SecDest:     bpblock.Pattern{Scheme: "*", SSP: "*"},
		CSNums:      []uint16{1},
	}}}
	present := map[uint16][]*Locals{1: {{CSNum: 1}}}
	if err := p.VerifyInPolicy(bd, present); err != nil {
		t.Fatalf("VerifyInPolicy: %v", err)
	}
}
