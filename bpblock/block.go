// Package bpblock implements the per-block preamble codec shared by every
// bundle block: a streaming, chunk-tolerant parser and serializer for the
// type/flags/EID-refs/length/data shape described in §4.B, plus the
// dictionary of endpoint-ID strings (§4.C) that the EID-reference list
// indexes into.
package bpblock

import (
	"errors"

	"github.com/dtnd/bpagent/sdnv"
)

// Processing-flag bits (§6). The extension-block canonicalization mask
// keeps bits 0, 1, 2, 4 and 6 (EIDRefs); bit 3 (LastBlock) is excluded,
// and bit 5 (ForwardedWithoutProcessing) is excluded as per-hop mutable.
const (
	ReplicateInEveryFragment Flags = 1 << iota
	ReportOnError
	DiscardBundleOnError
	LastBlock
	DiscardBlockOnError
	ForwardedWithoutProcessing
	EIDRefs
)

// Flags is the block processing-flags bitset, carried on the wire as an
// SDNV.
type Flags uint64

// Has reports whether all bits of mask are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// Canonicalization masks (§3, §6).
const (
	ExtensionCanonMask Flags = 0x57
	PrimaryCanonMask   Flags = 0x7C1BE
)

// EIDRef is a (scheme-offset, SSP-offset) pair into a Dictionary.
type EIDRef struct {
	SchemeOff uint64
	SSPOff    uint64
}

// MetadataEntry records one step of BSP encapsulation history for a
// block: the ciphersuite number and security source/destination under
// which the block arrived (or was generated), so later validations know
// the chain of custody (§4.E's ESB decryption note).
type MetadataEntry struct {
	CSNum      uint16
	SecSource  EID
	SecDest    EID
	Encapsulated bool
}

var (
	// ErrOverflow signals a data-length field exceeding 2^32-1.
	ErrOverflow = errors.New("bpblock: data length exceeds 2^32-1")
	// ErrMalformed signals a preamble that decodes to an internally
	// inconsistent shape (e.g. an SDNV overflow within the preamble).
	ErrMalformed = errors.New("bpblock: malformed block preamble")
)

const maxDataLength = 1<<32 - 1

// BlockInfo is one block's full runtime state: the decoded preamble
// fields, the opaque contents buffer, per-ciphersuite locals, and the BSP
// metadata history. See §3.
type BlockInfo struct {
	Type       byte
	BlockFlags Flags
	EIDRefs    []EIDRef

	// DataLength is the payload length from the preamble. DataOffset
	// is zero until the preamble has been fully consumed; thereafter
	// DataOffset+DataLength == len(Contents) once complete.
	DataLength uint64
	DataOffset int

	// Contents concatenates preamble bytes followed by exactly
	// DataLength payload bytes, once complete.
	Contents []byte

	// Locals holds per-ciphersuite side state (§3's BP_Local_CS),
	// opaque to this package.
	Locals any

	Metadata []MetadataEntry

	scratch      []byte
	preambleDone bool
	complete     bool
}

// PreambleDone reports whether the preamble has been fully decoded.
func (b *BlockInfo) PreambleDone() bool { return b.preambleDone }

// Complete reports whether Contents holds the full block (preamble and
// all DataLength payload bytes).
func (b *BlockInfo) Complete() bool { return b.complete }

// FullLength is DataOffset+DataLength, the total wire length of the
// block once the preamble is known.
func (b *BlockInfo) FullLength() int { return b.DataOffset + int(b.DataLength) }

// Payload returns the DataLength payload bytes of a complete block.
func (b *BlockInfo) Payload() []byte {
	if !b.complete {
		return nil
	}
	return b.Contents[b.DataOffset:]
}

// ConsumePreamble appends buf to the block's scratch accumulator and
// attempts to decode the preamble (type, flags, optional EID-ref list,
// data-length) in order. It returns the number of buf bytes that were
// needed to complete the preamble. If the preamble is still incomplete
// after exhausting buf, it returns len(buf) (the whole input was
// absorbed) with the block left incomplete. See §4.B.
func (b *BlockInfo) ConsumePreamble(buf []byte) (consumed int, err error) {
	if b.preambleDone {
		return 0, nil
	}

	before := len(b.scratch)
	b.scratch = append(b.scratch, buf...)

	off, flags, refs, dataLength, ok, err := decodePreamble(b.scratch)
	if err != nil {
		return 0, err
	}
	if !ok {
		return len(buf), nil
	}

	used := off - before
	if used < 0 {
		used = 0
	}
	if used > len(buf) {
		used = len(buf)
	}

	b.Type = b.scratch[0]
	b.BlockFlags = flags
	b.EIDRefs = refs
	b.DataLength = dataLength
	b.DataOffset = off
	b.Contents = append([]byte(nil), b.scratch[:off]...)
	b.scratch = nil
	b.preambleDone = true
	if dataLength == 0 {
		b.complete = true
	}

	return used, nil
}

// decodePreamble attempts a full preamble decode from buf. ok is false
// when more bytes are needed; err is non-nil only for a definite
// malformation (SDNV overflow, or data-length out of range).
func decodePreamble(buf []byte) (off int, flags Flags, refs []EIDRef, dataLength uint64, ok bool, err error) {
	if len(buf) < 1 {
		return 0, 0, nil, 0, false, nil
	}
	off = 1 // block-type octet

	f, n := sdnv.Decode(buf[off:])
	switch {
	case n == -2:
		return 0, 0, nil, 0, false, ErrMalformed
	case n < 0:
		return 0, 0, nil, 0, false, nil
	}
	off += n
	flags = Flags(f)

	if flags.Has(EIDRefs) {
		count, n := sdnv.Decode(buf[off:])
		switch {
		case n == -2:
			return 0, 0, nil, 0, false, ErrMalformed
		case n < 0:
			return 0, 0, nil, 0, false, nil
		}
		off += n

		refs = make([]EIDRef, 0, count)
		for i := uint64(0); i < count; i++ {
			so, n := sdnv.Decode(buf[off:])
			if n == -2 {
				return 0, 0, nil, 0, false, ErrMalformed
			}
			if n < 0 {
				return 0, 0, nil, 0, false, nil
			}
			off += n

			po, n := sdnv.Decode(buf[off:])
			if n == -2 {
				return 0, 0, nil, 0, false, ErrMalformed
			}
			if n < 0 {
				return 0, 0, nil, 0, false, nil
			}
			off += n

			refs = append(refs, EIDRef{SchemeOff: so, SSPOff: po})
		}
	}

	dataLength, n = sdnv.Decode(buf[off:])
	switch {
	case n == -2:
		return 0, 0, nil, 0, false, ErrMalformed
	case n < 0:
		return 0, 0, nil, 0, false, nil
	}
	off += n

	if dataLength > maxDataLength {
		return 0, 0, nil, 0, false, ErrOverflow
	}

	return off, flags, refs, dataLength, true, nil
}

// Consume drives full block ingestion: it completes the preamble if
// necessary, then appends payload bytes up to DataLength. It returns the
// total number of buf bytes consumed on this call. See §4.B.
func (b *BlockInfo) Consume(buf []byte) (consumed int, err error) {
	if !b.preambleDone {
		n, err := b.ConsumePreamble(buf)
		if err != nil {
			return 0, err
		}
		consumed += n
		buf = buf[n:]
		if !b.preambleDone {
			return consumed, nil
		}
	}

	if b.complete {
		return consumed, nil
	}

	need := b.FullLength() - len(b.Contents)
	if need < 0 {
		need = 0
	}
	take := need
	if take > len(buf) {
		take = len(buf)
	}
	b.Contents = append(b.Contents, buf[:take]...)
	consumed += take
	if len(b.Contents) == b.FullLength() {
		b.complete = true
	}
	return consumed, nil
}

// GeneratePreamble computes dictionary offsets for eids (interning any
// new strings), writes the preamble bytes, and sets DataOffset and
// DataLength. The LAST_BLOCK flag is the caller's responsibility to set
// in flags before calling, based on the block's position (§4.B).
func (b *BlockInfo) GeneratePreamble(dict *Dictionary, typ byte, flags Flags, eids []EID, dataLength uint64) []byte {
	var refs []EIDRef
	if len(eids) > 0 {
		flags |= EIDRefs
		refs = make([]EIDRef, len(eids))
		for i, e := range eids {
			so, po := dict.AddEID(e)
			refs[i] = EIDRef{SchemeOff: so, SSPOff: po}
		}
	} else {
		flags &^= EIDRefs
	}

	buf := []byte{typ}
	buf = sdnv.Append(buf, uint64(flags))
	if flags.Has(EIDRefs) {
		buf = sdnv.Append(buf, uint64(len(refs)))
		for _, r := range refs {
			buf = sdnv.Append(buf, r.SchemeOff)
			buf = sdnv.Append(buf, r.SSPOff)
		}
	}
	buf = sdnv.Append(buf, dataLength)

	b.Type = typ
	b.BlockFlags = flags
	b.EIDRefs = refs
	b.DataOffset = len(buf)
	b.DataLength = dataLength
	b.Contents = buf
	b.preambleDone = true
	b.complete = dataLength == 0
	return buf
}

// SetPayload completes a generated block by appending the payload bytes;
// len(payload) must equal DataLength.
func (b *BlockInfo) SetPayload(payload []byte) {
	b.Contents = append(b.Contents[:b.DataOffset], payload...)
	b.complete = true
}

// Process streams offset..offset+length of the block's wire bytes
// read-only to fn, without copying beyond what fn itself retains. Used
// by ciphersuites that want to digest bytes (e.g. a payload block that
// may stream from disk in a fuller implementation).
func (b *BlockInfo) Process(offset, length int, fn func([]byte) error) error {
	if offset < 0 || length < 0 || offset+length > len(b.Contents) {
		return errors.New("bpblock: Process range out of bounds")
	}
	return fn(b.Contents[offset : offset+length])
}

// Mutate streams offset..offset+length of the block's wire bytes to fn
// for in-place editing (e.g. AES-GCM encrypt/decrypt of the payload).
func (b *BlockInfo) Mutate(offset, length int, fn func([]byte) error) error {
	if offset < 0 || length < 0 || offset+length > len(b.Contents) {
		return errors.New("bpblock: Mutate range out of bounds")
	}
	return fn(b.Contents[offset : offset+length])
}
