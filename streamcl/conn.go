package streamcl

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds the per-connection parameters §6 names for the stream
// CL: segment size, in-flight cap, and the idle/keepalive/timeout
// durations of §4.J.
type Config struct {
	Version                uint8
	LocalEID               string
	SegmentLength          int
	MaxInFlightBundles     int
	KeepaliveInterval      time.Duration
	DataTimeout            time.Duration
	IdleCloseTime          time.Duration
	IsOnDemand             bool
	TolerateKeepaliveFault bool
}

// check applies the teacher's TCPConfig.check() "zero means default"
// convention to stream-CL parameters.
func (c *Config) check() {
	if c.Version == 0 {
		c.Version = 3
	}
	if c.SegmentLength == 0 {
		c.SegmentLength = 4096
	}
	if c.MaxInFlightBundles == 0 {
		c.MaxInFlightBundles = 4
	}
	if c.KeepaliveInterval == 0 {
		c.KeepaliveInterval = 15 * time.Second
	}
	if c.DataTimeout == 0 {
		c.DataTimeout = 2 * c.KeepaliveInterval
	}
	if c.IdleCloseTime == 0 {
		c.IdleCloseTime = 30 * time.Second
	}
}

// OutboundBundle is one bundle queued for transmission. Cancel, if
// non-nil, lets the caller withdraw the bundle: closing it before any
// of the bundle's bytes reach the wire drops the bundle and posts a
// BundleSendCancelled event on Conn.Events; once a single byte has
// been sent, Cancel is no longer consulted and the transmission runs
// to completion (§4.J "Bundle cancellation").
type OutboundBundle struct {
	Payload []byte
	Done    chan<- error // closed/sent on completion or cancellation
	Cancel  <-chan struct{}
}

// inFlightOut tracks a bundle currently being segmented and written.
type inFlightOut struct {
	payload []byte
	sent    int
	done    chan<- error
	cancel  <-chan struct{}
}

// isCancelled reports whether cancel has been closed; a nil Cancel
// channel is never cancelled.
func isCancelled(cancel <-chan struct{}) bool {
	if cancel == nil {
		return false
	}
	select {
	case <-cancel:
		return true
	default:
		return false
	}
}

// EventKind identifies an out-of-band occurrence on a Conn that isn't
// itself a delivered bundle.
type EventKind int

// BundleSendCancelled is posted when an OutboundBundle's Cancel fires
// before any of its bytes were placed on the wire (§4.J).
const BundleSendCancelled EventKind = iota

// Event is delivered on Conn.Events.
type Event struct {
	Kind EventKind
}

// inFlightIn tracks a bundle currently being reassembled from segments.
type inFlightIn struct {
	buf      []byte
	received uint64
}

var (
	// ErrClosed is returned by operations on a Conn after Close.
	ErrClosed = errors.New("streamcl: connection closed")
	// errBroken signals a data-timeout without keepalive tolerance.
	errBroken = errors.New("streamcl: contact broken: data timeout")
)

// Conn is one stream convergence-layer contact (§4.J, §5): a recvLoop,
// sendLoop, and run event-loop goroutine, communicating only through
// channels, generalized from the teacher's single-bundle-like I-frame
// flow to segmented multi-bundle framing with a bounded in-flight set.
type Conn struct {
	conn   net.Conn
	cfg    Config
	log    *logrus.Logger
	Header ContactHeader
	Peer   ContactHeader

	Outbound chan *OutboundBundle // caller sends bundles here
	Inbound  chan []byte          // assembled bundles delivered here
	Events   chan Event           // out-of-band occurrences, e.g. cancellation

	recv     chan message
	send     chan message
	sendQuit chan struct{}

	quit chan struct{}
	done chan struct{}

	// stats surfaced for tests and the CLI's `link stats`.
	BytesSent     uint64
	BytesReceived uint64
}

// Dial performs the client-side contact-header handshake over conn and
// starts the connection's goroutines.
func Dial(conn net.Conn, cfg Config, log *logrus.Logger) (*Conn, error) {
	return newConn(conn, cfg, log)
}

// Accept performs the server-side contact-header handshake over conn
// and starts the connection's goroutines.
func Accept(conn net.Conn, cfg Config, log *logrus.Logger) (*Conn, error) {
	return newConn(conn, cfg, log)
}

func newConn(conn net.Conn, cfg Config, log *logrus.Logger) (*Conn, error) {
	cfg.check()
	if log == nil {
		log = logrus.StandardLogger()
	}

	local := ContactHeader{
		Version:       cfg.Version,
		Flags:         SegmentAckEnabled,
		KeepaliveSecs: uint16(cfg.KeepaliveInterval / time.Second),
		LocalEID:      cfg.LocalEID,
	}
	if err := local.Write(conn); err != nil {
		return nil, err
	}
	peer, err := ReadContactHeader(conn)
	if err != nil {
		return nil, err
	}
	if err := local.checkVersion(peer); err != nil {
		writeShutdown(conn, ShutdownVersionMismatch, true, 0, false)
		return nil, err
	}

	c := &Conn{
		conn:     conn,
		cfg:      cfg,
		log:      log,
		Header:   local,
		Peer:     peer,
		Outbound: make(chan *OutboundBundle),
		Inbound:  make(chan []byte, 16),
		Events:   make(chan Event, 16),
		recv:     make(chan message, 16),
		send:     make(chan message, cfg.MaxInFlightBundles+2),
		sendQuit: make(chan struct{}),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go c.recvLoop()
	go c.sendLoop()
	go c.run()
	return c, nil
}

// Close initiates the shutdown handshake (§4.J) and waits for the
// connection's goroutines to exit.
func (c *Conn) Close() error {
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
	<-c.done
	return nil
}

// recvLoop feeds c.recv, mirroring the teacher's recvLoop shape: one
// blocking read per message, forwarded until the connection errors.
func (c *Conn) recvLoop() {
	defer close(c.recv)
	for {
		m, err := readMessage(c.conn)
		if err != nil {
			if err != io.EOF {
				c.log.WithError(err).Debug("streamcl: recv error")
			}
			return
		}
		c.recv <- m
	}
}

// sendLoop drains c.send, writing each message to the socket — the
// teacher's sendLoop generalized from one Marshal call per datagram to
// one write function per message kind.
func (c *Conn) sendLoop() {
	defer close(c.sendQuit)
	for m := range c.send {
		var err error
		switch m.typ {
		case msgDataSegment:
			err = writeDataSegment(c.conn, m.payload, m.flags&flagBundleStart != 0, m.flags&flagBundleEnd != 0)
		case msgAckSegment:
			err = writeAckSegment(c.conn, m.ackLen)
		case msgKeepalive:
			err = writeKeepalive(c.conn)
		case msgShutdown:
			err = writeShutdown(c.conn, m.reason, m.flags&shutdownHasReason != 0, m.delay, m.flags&shutdownHasDelay != 0)
		}
		if err != nil {
			c.log.WithError(err).Debug("streamcl: send error")
			return
		}
	}
}

// run is the connection's event loop (§4.J, §5): it owns segmentation
// state, the in-flight sets, and timers, and is the only goroutine that
// touches them, exactly as the teacher's tcp.run() is the sole owner of
// sequence-number state.
func (c *Conn) run() {
	defer func() {
		close(c.send)
		<-c.sendQuit
		c.conn.Close()
		for range c.recv {
			// drain until recvLoop closes it
		}
		close(c.Inbound)
		close(c.Events)
		close(c.done)
	}()

	var outQueue []*OutboundBundle
	var cur *inFlightOut
	in := &inFlightIn{}
	var pendingAck uint64
	var ackDue bool

	idleSince := time.Now()
	var lastSend, lastRecv time.Time

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			c.send <- message{typ: msgShutdown, flags: shutdownHasReason, reason: ShutdownNoReason}
			return

		case ob, ok := <-c.Outbound:
			if !ok {
				return
			}
			if len(outQueue) < c.cfg.MaxInFlightBundles && cur == nil {
				cur = &inFlightOut{payload: ob.Payload, done: ob.Done, cancel: ob.Cancel}
			} else {
				outQueue = append(outQueue, ob)
			}

		case now := <-ticker.C:
			if cur != nil && cur.sent == 0 && isCancelled(cur.cancel) {
				if cur.done != nil {
					close(cur.done)
				}
				cur = nil
				c.postEvent(Event{Kind: BundleSendCancelled})
			}
			if cur == nil {
				cur, outQueue = c.nextFromQueue(outQueue)
			}
			if cur != nil {
				start := cur.sent == 0
				n := len(cur.payload) - cur.sent
				if n > c.cfg.SegmentLength {
					n = c.cfg.SegmentLength
				}
				end := cur.sent+n == len(cur.payload)
				seg := cur.payload[cur.sent : cur.sent+n]
				c.send <- message{typ: msgDataSegment, flags: segFlags(start, end), payload: seg}
				cur.sent += n
				c.BytesSent += uint64(n)
				lastSend = now
				idleSince = now
				if end {
					if cur.done != nil {
						close(cur.done)
					}
					cur = nil
					cur, outQueue = c.nextFromQueue(outQueue)
				}
			}

			if ackDue {
				c.send <- message{typ: msgAckSegment, ackLen: pendingAck}
				ackDue = false
				lastSend = now
			}

			if c.cfg.KeepaliveInterval > 0 && now.Sub(lastSend) >= c.cfg.KeepaliveInterval-500*time.Millisecond {
				c.send <- message{typ: msgKeepalive}
				lastSend = now
			}

			if c.cfg.DataTimeout > 0 && !lastRecv.IsZero() && now.Sub(lastRecv) >= c.cfg.DataTimeout {
				if !c.cfg.TolerateKeepaliveFault {
					c.log.Warn("streamcl: contact broken: data timeout")
					return
				}
				lastRecv = now
			}

			if c.cfg.IsOnDemand && c.cfg.IdleCloseTime > 0 && now.Sub(idleSince) >= c.cfg.IdleCloseTime {
				c.send <- message{typ: msgShutdown, flags: shutdownHasReason, reason: ShutdownIdleTimeout}
				return
			}

		case m, ok := <-c.recv:
			if !ok {
				return
			}
			lastRecv = time.Now()
			idleSince = lastRecv

			switch m.typ {
			case msgDataSegment:
				in.buf = append(in.buf, m.payload...)
				in.received += uint64(len(m.payload))
				c.BytesReceived += uint64(len(m.payload))
				pendingAck = in.received
				ackDue = true
				if m.flags&flagBundleEnd != 0 {
					done := in.buf
					in.buf = nil
					in.received = 0
					c.Inbound <- done
				}

			case msgAckSegment:
				// ACKs are monotonic non-decreasing (§5); out-of-order
				// or regressing ACKs are ignored rather than treated as
				// fatal, since stream-CL (unlike IEC 104) has no fixed
				// sequence-number space to violate.

			case msgRefuse:
				c.log.Warn("streamcl: contact broken: received REFUSE")
				return

			case msgKeepalive:
				// liveness already updated above

			case msgShutdown:
				return
			}
		}
	}
}

// nextFromQueue pops the first not-yet-cancelled bundle off outQueue,
// posting BundleSendCancelled for any it skips along the way — every
// queued bundle has sent == 0 by definition, so any pending Cancel
// applies (§4.J "Bundle cancellation").
func (c *Conn) nextFromQueue(outQueue []*OutboundBundle) (*inFlightOut, []*OutboundBundle) {
	for len(outQueue) > 0 {
		next := outQueue[0]
		outQueue = outQueue[1:]
		if isCancelled(next.Cancel) {
			if next.Done != nil {
				close(next.Done)
			}
			c.postEvent(Event{Kind: BundleSendCancelled})
			continue
		}
		return &inFlightOut{payload: next.Payload, done: next.Done, cancel: next.Cancel}, outQueue
	}
	return nil, outQueue
}

// postEvent delivers ev to Events without blocking; a caller not
// draining Events loses the notification rather than stalling run().
func (c *Conn) postEvent(ev Event) {
	select {
	case c.Events <- ev:
	default:
	}
}

func segFlags(start, end bool) byte {
	var f byte
	if start {
		f |= flagBundleStart
	}
	if end {
		f |= flagBundleEnd
	}
	return f
}
