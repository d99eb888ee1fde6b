// Package streamcl implements the stream convergence-layer connection
// (§4.J): contact-header negotiation, segmented bundle framing with
// coalesced ACKs, keepalives, idle-close, and the shutdown handshake.
// Built directly from the teacher's session/tcp.go shape — a recvLoop,
// sendLoop, and run event-loop goroutine per connection — generalized
// from IEC 104's fixed 15-bit I-frame sequence space to byte-count-based
// segment acknowledgement. Contact-header negotiation itself has no
// teacher analogue (IEC 104 has none) and is grounded on DTNME's
// StreamConvergenceLayer.cc header exchange.
package streamcl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dtnd/bpagent/sdnv"
)

// Magic is the 4-byte contact-header magic, ASCII "dtn!" (§4.J, §6).
const Magic uint32 = 0x64746e21

// Header flag bits (§4.J).
const (
	SegmentAckEnabled   uint8 = 0x02
	ReactiveFragEnabled uint8 = 0x04
	NegativeAckEnabled  uint8 = 0x08
)

// ErrMagicMismatch signals a contact header whose magic does not match.
var ErrMagicMismatch = errors.New("streamcl: contact header magic mismatch")

// ErrVersionTooLow signals a peer contact-header version below ours.
var ErrVersionTooLow = errors.New("streamcl: peer contact header version too low")

// ContactHeader is the fixed handshake exchanged by both sides
// immediately on accept/connect (§4.J).
type ContactHeader struct {
	Version         uint8
	Flags           uint8
	KeepaliveSecs   uint16
	LocalEID        string
}

// Write serializes the contact header to w.
func (h ContactHeader) Write(w io.Writer) error {
	var buf []byte
	var magic [4]byte
	binary.BigEndian.PutUint32(magic[:], Magic)
	buf = append(buf, magic[:]...)
	buf = append(buf, h.Version, h.Flags)
	var ka [2]byte
	binary.BigEndian.PutUint16(ka[:], h.KeepaliveSecs)
	buf = append(buf, ka[:]...)
	buf = sdnv.Append(buf, uint64(len(h.LocalEID)))
	buf = append(buf, h.LocalEID...)
	_, err := w.Write(buf)
	return err
}

// ReadContactHeader reads and parses a contact header from r, verifying
// the magic (§4.J).
func ReadContactHeader(r io.Reader) (ContactHeader, error) {
	var fixed [8]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return ContactHeader{}, err
	}
	if binary.BigEndian.Uint32(fixed[:4]) != Magic {
		return ContactHeader{}, ErrMagicMismatch
	}
	h := ContactHeader{
		Version:       fixed[4],
		Flags:         fixed[5],
		KeepaliveSecs: binary.BigEndian.Uint16(fixed[6:8]),
	}

	eidLen, err := readSDNV(r)
	if err != nil {
		return ContactHeader{}, err
	}
	eid := make([]byte, eidLen)
	if _, err := io.ReadFull(r, eid); err != nil {
		return ContactHeader{}, err
	}
	h.LocalEID = string(eid)
	return h, nil
}

// readSDNV reads one octet at a time until the continuation bit clears,
// since a byte stream reader (unlike bpblock's chunked Consume) can
// simply block for each octet.
func readSDNV(r io.Reader) (uint64, error) {
	var buf []byte
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		buf = append(buf, b[0])
		if v, n := sdnv.Decode(buf); n > 0 {
			return v, nil
		} else if n == -2 {
			return 0, sdnv.ErrOverflow
		}
	}
}

// negotiate computes the session parameters both sides agree on from
// the local and peer contact headers (§4.J): keepalive is the minimum
// of both (so neither side under-detects a dead peer), AND for the
// boolean-flag capabilities.
func negotiate(local, peer ContactHeader) (keepalive time.Duration, ackEnabled, reactiveFrag bool) {
	ka := local.KeepaliveSecs
	if peer.KeepaliveSecs != 0 && (ka == 0 || peer.KeepaliveSecs < ka) {
		ka = peer.KeepaliveSecs
	}
	keepalive = time.Duration(ka) * time.Second
	ackEnabled = local.Flags&SegmentAckEnabled != 0 && peer.Flags&SegmentAckEnabled != 0
	reactiveFrag = local.Flags&ReactiveFragEnabled != 0 && peer.Flags&ReactiveFragEnabled != 0
	return
}

func (h ContactHeader) checkVersion(peer ContactHeader) error {
	if peer.Version < h.Version {
		return fmt.Errorf("%w: peer=%d local=%d", ErrVersionTooLow, peer.Version, h.Version)
	}
	return nil
}
