package streamcl

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func dialPair(t *testing.T, cfgA, cfgB Config) (*Conn, *Conn) {
	t.Helper()
	connA, connB := net.Pipe()

	type result struct {
		c   *Conn
		err error
	}
	chA := make(chan result, 1)
	chB := make(chan result, 1)
	go func() { c, err := Dial(connA, cfgA, nil); chA <- result{c, err} }()
	go func() { c, err := Accept(connB, cfgB, nil); chB <- result{c, err} }()

	ra, rb := <-chA, <-chB
	if ra.err != nil {
		t.Fatalf("Dial: %v", ra.err)
	}
	if rb.err != nil {
		t.Fatalf("Accept: %v", rb.err)
	}
	return ra.c, rb.c
}

func TestContactHeaderNegotiation(t *testing.T) {
	a, b := dialPair(t,
		Config{LocalEID: "dtn://a", KeepaliveInterval: 10 * time.Second},
		Config{LocalEID: "dtn://b", KeepaliveInterval: 20 * time.Second},
	)
	defer a.Close()
	defer b.Close()

	if a.Peer.LocalEID != "dtn://b" {
		t.Fatalf("a.Peer.LocalEID = %q, want dtn://b", a.Peer.LocalEID)
	}
	if b.Peer.LocalEID != "dtn://a" {
		t.Fatalf("b.Peer.LocalEID = %q, want dtn://a", b.Peer.LocalEID)
	}
}

func TestBundleSendReceiveRoundTrip(t *testing.T) {
	a, b := dialPair(t,
		Config{LocalEID: "dtn://a", SegmentLength: 4},
		Config{LocalEID: "dtn://b", SegmentLength: 4},
	)
	defer a.Close()
	defer b.Close()

	payload := []byte("ABCDEFG")
	done := make(chan error, 1)
	a.Outbound <- &OutboundBundle{Payload: payload, Done: done}

	select {
	case got := <-b.Inbound:
		if !bytes.Equal(got, payload) {
			t.Fatalf("received %q, want %q", got, payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for bundle delivery")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("send done error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for send completion")
	}
}

func TestBundleSendCancelledBeforeAnyBytesSent(t *testing.T) {
	a, b := dialPair(t,
		Config{LocalEID: "dtn://a", SegmentLength: 4},
		Config{LocalEID: "dtn://b", SegmentLength: 4},
	)
	defer a.Close()
	defer b.Close()

	cancel := make(chan struct{})
	close(cancel)
	done := make(chan error, 1)
	a.Outbound <- &OutboundBundle{Payload: []byte("ABCDEFG"), Done: done, Cancel: cancel}

	select {
	case ev := <-a.Events:
		if ev.Kind != BundleSendCancelled {
			t.Fatalf("event kind = %v, want BundleSendCancelled", ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for BundleSendCancelled event")
	}

	select {
	case err, ok := <-done:
		if ok && err != nil {
			t.Fatalf("done channel error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for done channel to close")
	}

	select {
	case got := <-b.Inbound:
		t.Fatalf("cancelled bundle delivered: %q", got)
	case <-time.After(300 * time.Millisecond):
	}
}

// writeRefuse writes a bare REFUSE frame directly on c's underlying
// connection, bypassing c's own send loop — streamcl never emits
// REFUSE itself (DESIGN.md open question 2), so there is no production
// writer to call here.
func writeRefuse(c *Conn) error {
	_, err := c.conn.Write([]byte{byte(msgRefuse)})
	return err
}

func TestReceivedRefuseBreaksContact(t *testing.T) {
	a, b := dialPair(t,
		Config{LocalEID: "dtn://a"},
		Config{LocalEID: "dtn://b"},
	)
	defer a.Close()
	defer b.Close()

	if err := writeRefuse(b); err != nil {
		t.Fatalf("writeRefuse: %v", err)
	}

	select {
	case _, ok := <-a.Inbound:
		if ok {
			t.Fatal("expected Inbound to be closed after REFUSE")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for contact to break after REFUSE")
	}
}

func TestVersionMismatchRejected(t *testing.T) {
	connA, connB := net.Pipe()
	type result struct {
		c   *Conn
		err error
	}
	chA := make(chan result, 1)
	chB := make(chan result, 1)
	go func() { c, err := Dial(connA, Config{Version: 1, LocalEID: "dtn://a"}, nil); chA <- result{c, err} }()
	go func() { c, err := Accept(connB, Config{Version: 5, LocalEID: "dtn://b"}, nil); chB <- result{c, err} }()

	ra := <-chA
	rb := <-chB
	if ra.err == nil && rb.err == nil {
		t.Fatal("expected a version mismatch on at least one side")
	}
}
