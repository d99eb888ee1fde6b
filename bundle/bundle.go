// Package bundle defines the primary-block fields and the ordered block
// vector that the BSP ciphersuite engine canonicalizes and mutates. It
// sits above bpblock (which knows only the generic preamble/dictionary
// shape) and below the BSP and convergence-layer packages.
package bundle

import (
	"time"

	"github.com/dtnd/bpagent/bpblock"
)

// Block-type octets used by the core (§3, §4.E).
const (
	TypePrimary = 0x00 // not wire-tagged like extension blocks; kept for clarity
	TypePayload = 0x01
	TypeBAB     = 0x02
	TypePIB     = 0x03
	TypePCB     = 0x04
	TypeESB     = 0x05
)

// Primary holds the primary-block fields a ciphersuite's mutable
// canonicalization digests (§4.F).
type Primary struct {
	Version byte
	Flags   bpblock.Flags

	Destination bpblock.EID
	Source      bpblock.EID
	ReportTo    bpblock.EID

	CreationTime     uint64
	CreationSequence uint64
	Lifetime         uint64

	IsFragment     bool
	FragmentOffset uint64
	OriginalLength uint64

	Dictionary *bpblock.Dictionary
}

// Bundle is the ordered block vector the security engine and stream CL
// operate over: exactly one Primary, exactly one payload BlockInfo, and
// zero or more extension/security BlockInfos in between (§3).
type Bundle struct {
	Primary Primary

	// Blocks holds every non-primary block in wire order, with exactly
	// one entry whose Type is TypePayload.
	Blocks []*bpblock.BlockInfo

	Received time.Time
}

// Payload returns the bundle's single payload block.
func (b *Bundle) Payload() *bpblock.BlockInfo {
	for _, blk := range b.Blocks {
		if blk.Type == TypePayload {
			return blk
		}
	}
	return nil
}

// IndexOf returns the position of blk within Blocks, or -1.
func (b *Bundle) IndexOf(blk *bpblock.BlockInfo) int {
	for i, c := range b.Blocks {
		if c == blk {
			return i
		}
	}
	return -1
}

// InsertAfter inserts blk immediately after the block at index i (use
// -1 to insert at the very front, before every other block).
func (b *Bundle) InsertAfter(i int, blk *bpblock.BlockInfo) {
	pos := i + 1
	b.Blocks = append(b.Blocks, nil)
	copy(b.Blocks[pos+1:], b.Blocks[pos:])
	b.Blocks[pos] = blk
}

// Append adds blk as the new last block.
func (b *Bundle) Append(blk *bpblock.BlockInfo) {
	b.Blocks = append(b.Blocks, blk)
}

// LastIndexOfType returns the index of the last block of the given wire
// type, or -1.
func (b *Bundle) LastIndexOfType(typ byte) int {
	idx := -1
	for i, blk := range b.Blocks {
		if blk.Type == typ {
			idx = i
		}
	}
	return idx
}
