package bsp

import (
	"github.com/dtnd/bpagent/bpblock"
	"github.com/dtnd/bpagent/bsp/keystore"
	"github.com/dtnd/bpagent/bundle"
)

// NewESBEngine returns a ConfidentialityEngine configured for extension
// security blocks (§4.E): it never touches the payload, and targets
// every extension block other than primary, payload, BAB, PCB, PIB, and
// the previous-hop block.
func NewESBEngine(keys *keystore.Store) *ConfidentialityEngine {
	return &ConfidentialityEngine{Keys: keys, BlockType: bundle.TypeESB}
}

// previousHopBlockType is the wire type of the previous-hop extension
// block, excluded from ESB coverage per §4.E so a forwarding hop can
// still be read after BSP processing.
const previousHopBlockType = 0x06

// ESBTargets returns the extension blocks eligible for ESB encapsulation.
func ESBTargets(bd *bundle.Bundle) []*bpblock.BlockInfo {
	var targets []*bpblock.BlockInfo
	for _, blk := range bd.Blocks {
		switch blk.Type {
		case bundle.TypePayload, bundle.TypeBAB, bundle.TypePCB, bundle.TypePIB, previousHopBlockType:
			continue
		}
		targets = append(targets, blk)
	}
	return targets
}
