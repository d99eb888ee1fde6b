package bsp

import (
	"github.com/dtnd/bpagent/bpblock"
	"github.com/dtnd/bpagent/bsp/keystore"
	"github.com/dtnd/bpagent/bundle"
)

// NewPCBEngine returns a ConfidentialityEngine configured for payload
// confidentiality blocks (§4.E): it always encrypts the payload, and may
// additionally encapsulate any other PIB/PCB blocks present in the same
// transmit pass.
func NewPCBEngine(keys *keystore.Store) *ConfidentialityEngine {
	return &ConfidentialityEngine{Keys: keys, BlockType: bundle.TypePCB}
}

// PCBTargets returns the PIB/PCB blocks (other than the ones just
// inserted for this pass) eligible for encapsulation alongside the
// payload.
func PCBTargets(bd *bundle.Bundle, exclude ...*bpblock.BlockInfo) []*bpblock.BlockInfo {
	isExcluded := func(b *bpblock.BlockInfo) bool {
		for _, e := range exclude {
			if e == b {
				return true
			}
		}
		return false
	}
	var targets []*bpblock.BlockInfo
	for _, blk := range bd.Blocks {
		if isExcluded(blk) {
			continue
		}
		if blk.Type == bundle.TypePIB || blk.Type == bundle.TypePCB {
			targets = append(targets, blk)
		}
	}
	return targets
}
