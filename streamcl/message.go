package streamcl

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dtnd/bpagent/sdnv"
)

// msgType is the high nibble of a stream-CL wire message's first byte
// (§4.J).
type msgType byte

const (
	msgDataSegment msgType = 0x10
	msgAckSegment  msgType = 0x20
	msgRefuse      msgType = 0x30
	msgKeepalive   msgType = 0x40
	msgShutdown    msgType = 0x50
)

// Data-segment flag bits, low nibble of the first byte.
const (
	flagBundleStart = 0x02
	flagBundleEnd   = 0x01
)

// Shutdown flag bits.
const (
	shutdownHasReason = 0x02
	shutdownHasDelay  = 0x01
)

// Shutdown reasons (§4.J).
const (
	ShutdownNoReason        byte = 0
	ShutdownIdleTimeout     byte = 1
	ShutdownVersionMismatch byte = 2
	ShutdownBusy            byte = 3
)

// message is one parsed stream-CL protocol message.
type message struct {
	typ     msgType
	flags   byte
	payload []byte // DATA_SEGMENT body
	ackLen  uint64 // ACK_SEGMENT cumulative byte count
	reason  byte
	delay   uint16
}

// writeDataSegment writes one DATA_SEGMENT frame: type|flags, SDNV
// length, then the raw bytes (§4.J).
func writeDataSegment(w io.Writer, payload []byte, start, end bool) error {
	b := byte(msgDataSegment)
	if start {
		b |= flagBundleStart
	}
	if end {
		b |= flagBundleEnd
	}
	buf := []byte{b}
	buf = sdnv.Append(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// writeAckSegment writes one ACK_SEGMENT frame carrying the cumulative
// acknowledged byte count.
func writeAckSegment(w io.Writer, cumulative uint64) error {
	buf := []byte{byte(msgAckSegment)}
	buf = sdnv.Append(buf, cumulative)
	_, err := w.Write(buf)
	return err
}

// writeKeepalive writes a bare KEEPALIVE frame.
func writeKeepalive(w io.Writer) error {
	_, err := w.Write([]byte{byte(msgKeepalive)})
	return err
}

// writeShutdown writes a SHUTDOWN frame with an optional reason and
// delay (§4.J).
func writeShutdown(w io.Writer, reason byte, hasReason bool, delaySeconds uint16, hasDelay bool) error {
	b := byte(msgShutdown)
	if hasReason {
		b |= shutdownHasReason
	}
	if hasDelay {
		b |= shutdownHasDelay
	}
	buf := []byte{b}
	if hasReason {
		buf = append(buf, reason)
	}
	if hasDelay {
		var d [2]byte
		binary.BigEndian.PutUint16(d[:], delaySeconds)
		buf = append(buf, d[:]...)
	}
	_, err := w.Write(buf)
	return err
}

// readMessage blocks on r until one full message has been read. It
// mirrors the teacher's apdu.Unmarshal boundary (one call reads exactly
// one protocol unit) but over a plain io.Reader since stream-CL frames
// aren't chunk-resumable the way block preambles are. The caller's
// recvLoop does not retry: it stops on the first read error.
func readMessage(r io.Reader) (message, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return message{}, err
	}
	typ := msgType(first[0] & 0xf0)
	flags := first[0] & 0x0f

	switch typ {
	case msgDataSegment:
		n, err := readSDNV(r)
		if err != nil {
			return message{}, err
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return message{}, err
		}
		return message{typ: typ, flags: flags, payload: payload}, nil

	case msgAckSegment:
		n, err := readSDNV(r)
		if err != nil {
			return message{}, err
		}
		return message{typ: typ, ackLen: n}, nil

	case msgRefuse:
		return message{typ: typ, flags: flags}, nil

	case msgKeepalive:
		return message{typ: typ}, nil

	case msgShutdown:
		m := message{typ: typ, flags: flags}
		if flags&shutdownHasReason != 0 {
			var b [1]byte
			if _, err := io.ReadFull(r, b[:]); err != nil {
				return message{}, err
			}
			m.reason = b[0]
		}
		if flags&shutdownHasDelay != 0 {
			var d [2]byte
			if _, err := io.ReadFull(r, d[:]); err != nil {
				return message{}, err
			}
			m.delay = binary.BigEndian.Uint16(d[:])
		}
		return m, nil

	default:
		return message{}, fmt.Errorf("streamcl: unknown message type %#x", first[0])
	}
}
