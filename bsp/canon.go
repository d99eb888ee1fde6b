package bsp

import (
	"encoding/binary"
	"io"

	"github.com/dtnd/bpagent/bpblock"
	"github.com/dtnd/bpagent/bundle"
	"github.com/dtnd/bpagent/sdnv"
)

// WriteCanonicalPrimary streams the mutable-canonical form of a primary
// block to w: version, masked flags, a self-describing body length, the
// destination/source/report-to EIDs, and the timestamp fields (§4.F).
// It can feed directly into a hash.Hash without materializing a full
// canonical buffer, mirroring how the teacher's checksum code streams
// over an io.Writer rather than a precomputed slice.
func WriteCanonicalPrimary(w io.Writer, p *bundle.Primary) error {
	var body []byte
	for _, e := range [3]bpblock.EID{p.Destination, p.Source, p.ReportTo} {
		var lenField [4]byte
		binary.BigEndian.PutUint16(lenField[0:2], uint16(len(e.Scheme)))
		binary.BigEndian.PutUint16(lenField[2:4], uint16(len(e.SSP)))
		body = append(body, lenField[:]...)
		body = append(body, e.Scheme...)
		body = append(body, e.SSP...)
	}
	body = appendUint64BE(body, p.CreationTime)
	body = appendUint64BE(body, p.CreationSequence)
	body = appendUint64BE(body, p.Lifetime)
	if p.IsFragment {
		body = appendUint64BE(body, p.FragmentOffset)
		body = appendUint64BE(body, p.OriginalLength)
	}

	if _, err := w.Write([]byte{p.Version}); err != nil {
		return err
	}
	if err := writeUint64BE(w, uint64(p.Flags&bpblock.PrimaryCanonMask)); err != nil {
		return err
	}
	var hdrLen [4]byte
	binary.BigEndian.PutUint32(hdrLen[:], uint32(len(body)))
	if _, err := w.Write(hdrLen[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// WriteCanonicalExtensionBlock streams the mutable-canonical form of one
// extension/security block as covered by a PIB digest (§4.F): type,
// masked flags, any referenced dictionary strings in order, an 8-byte
// content length, and then either the block's content bytes, or — when
// blk is the PIB block performing its own digest — the ciphersuite
// number, flags, correlator, and parameter field in place of content,
// plus the eventual signature length for CS#2 only.
func WriteCanonicalExtensionBlock(w io.Writer, blk *bpblock.BlockInfo, dict *bpblock.Dictionary, self *pibSelfFields) error {
	if _, err := w.Write([]byte{blk.Type}); err != nil {
		return err
	}
	if err := writeUint64BE(w, uint64(blk.BlockFlags&bpblock.ExtensionCanonMask)); err != nil {
		return err
	}
	if blk.BlockFlags.Has(bpblock.EIDRefs) {
		for _, ref := range blk.EIDRefs {
			eid, ok := dict.ExtractEID(ref.SchemeOff, ref.SSPOff)
			if !ok {
				continue
			}
			if _, err := io.WriteString(w, eid.Scheme); err != nil {
				return err
			}
			if _, err := io.WriteString(w, eid.SSP); err != nil {
				return err
			}
		}
	}

	if self == nil {
		if err := writeUint64BE(w, uint64(len(blk.Payload()))); err != nil {
			return err
		}
		_, err := w.Write(blk.Payload())
		return err
	}

	var body []byte
	body = sdnv.Append(body, uint64(self.CSNum))
	body = sdnv.Append(body, uint64(self.Flags))
	if self.HasCorrelator {
		body = sdnv.Append(body, self.Correlator)
	}
	body = sdnv.Append(body, uint64(len(self.Params)))
	body = append(body, self.Params...)
	if self.CSNum == 2 {
		body = sdnv.Append(body, uint64(self.SigResultLen))
	}
	if err := writeUint64BE(w, uint64(len(body))); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// pibSelfFields carries the PIB block's own in-progress state into
// WriteCanonicalExtensionBlock for the "digest covers its own
// parameters, not a content buffer" case (§4.F).
type pibSelfFields struct {
	CSNum         uint16
	Flags         bpblock.Flags
	HasCorrelator bool
	Correlator    uint64
	Params        []byte
	SigResultLen  int
}

// WriteBABCanonicalBlock streams one non-primary block's BAB-digest
// contribution: 1-byte type, 8-byte masked flags with EID_REFS forced
// off, in place of the block's own raw preamble, followed by the
// block's data bytes (from DataOffset) — never the preamble itself
// (flags, EID-reference list, data-length), so the real EID_REFS bit
// and any dictionary-offset churn never reach the digest (§4.F). For a
// BAB block already carrying a result, the bytes from the end of
// security-parameters onward are excluded (§4.E).
func WriteBABCanonicalBlock(w io.Writer, blk *bpblock.BlockInfo, paramsEnd int, carriesResult bool) error {
	if _, err := w.Write([]byte{blk.Type}); err != nil {
		return err
	}
	flags := blk.BlockFlags &^ bpblock.EIDRefs
	if err := writeUint64BE(w, uint64(flags)); err != nil {
		return err
	}
	wire := blk.Contents[blk.DataOffset:]
	if carriesResult {
		wire = blk.Contents[blk.DataOffset:paramsEnd]
	}
	_, err := w.Write(wire)
	return err
}

func appendUint64BE(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func writeUint64BE(w io.Writer, v uint64) error {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	_, err := w.Write(tmp[:])
	return err
}
