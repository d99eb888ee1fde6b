// Package link implements the link and contact manager (§4.H): named
// convergence-layer endpoints with a state machine, retry backoff, and
// reincarnation semantics across restarts. Grounded on DTNME's
// Link.{cc,h}/ContactManager.{cc,h} for the model, and on the teacher's
// session/tcp.go single-goroutine event loop for the processing shape —
// generalized here from one connection's state to a registry of many
// links' state (Manager.run, in manager.go).
package link

import (
	"fmt"
	"time"
)

// Type is a link's convergence-layer activation policy (§4.H).
type Type int

const (
	AlwaysOn Type = iota
	OnDemand
	Scheduled
	Opportunistic
)

func (t Type) String() string {
	switch t {
	case AlwaysOn:
		return "ALWAYSON"
	case OnDemand:
		return "ONDEMAND"
	case Scheduled:
		return "SCHEDULED"
	case Opportunistic:
		return "OPPORTUNISTIC"
	default:
		return "UNKNOWN"
	}
}

// State is a link's position in the §4.H state machine:
// UNAVAILABLE ⇄ AVAILABLE → OPENING → OPEN → (CLOSED|UNAVAILABLE).
type State int

const (
	Unavailable State = iota
	Available
	Opening
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Unavailable:
		return "UNAVAILABLE"
	case Available:
		return "AVAILABLE"
	case Opening:
		return "OPENING"
	case Open:
		return "OPEN"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Reason qualifies a state transition for retry/reporting purposes.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUser
	ReasonIdle
	ReasonBroken
	ReasonShutdown
)

// Params holds the link options named in §6's CLI surface.
type Params struct {
	MTU               int
	MinRetryInterval  time.Duration
	MaxRetryInterval  time.Duration
	IdleCloseTime     time.Duration
	PotentialDowntime time.Duration
	PrevHopHdr        bool
	Cost              int
	QlimitBundlesHigh int
	QlimitBytesHigh   int
	QlimitBundlesLow  int
	QlimitBytesLow    int
	RetryInterval     time.Duration
}

// check applies the teacher's "zero means default, out-of-range panics"
// TCPConfig.check() convention to link parameters.
func (p *Params) check() {
	if p.MTU == 0 {
		p.MTU = 64 * 1024
	}
	if p.MinRetryInterval == 0 {
		p.MinRetryInterval = time.Second
	}
	if p.MaxRetryInterval == 0 {
		p.MaxRetryInterval = time.Minute
	} else if p.MaxRetryInterval < p.MinRetryInterval {
		panic("link: MaxRetryInterval must be >= MinRetryInterval")
	}
	if p.IdleCloseTime == 0 {
		p.IdleCloseTime = 30 * time.Second
	}
	if p.QlimitBundlesHigh == 0 {
		p.QlimitBundlesHigh = 1024
	}
	if p.QlimitBytesHigh == 0 {
		p.QlimitBytesHigh = 64 << 20
	}
	if p.RetryInterval == 0 {
		p.RetryInterval = p.MinRetryInterval
	}
}

// Stats counts a link's lifetime traffic, exposed by the `link stats`
// CLI verb.
type Stats struct {
	BundlesSent     uint64
	BundlesReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	ContactUps      uint64
	ContactBreaks   uint64
}

// Link is one named convergence-layer endpoint (§4.H).
type Link struct {
	Name     string
	Type     Type
	CL       string // convergence-layer name, e.g. "stream"
	NextHop  string
	RemoteEID string

	Params Params
	State  State
	Stats  Stats

	// Reincarnated is set when this Link replaced a previous link of the
	// same name, so persistent storage updates rather than inserts.
	Reincarnated bool

	// retryInterval is the live, exponentially-backed-off delay; it
	// resets to Params.MinRetryInterval on ContactUp (§4.H, testable
	// property 6).
	retryInterval time.Duration

	queue      []QueuedBundle
	inFlight   map[uint64]QueuedBundle
	nextSeq    uint64
	contactSeq int // not updated or read; opportunistic names come from Manager.NewOpportunisticName
}

// QueuedBundle is a bundle awaiting transmission or in flight on a link.
type QueuedBundle struct {
	ID      uint64
	Payload []byte
}

// NewLink constructs a link in the UNAVAILABLE state with defaulted
// parameters.
func NewLink(name string, typ Type, cl, nextHop string, params Params) *Link {
	params.check()
	return &Link{
		Name:          name,
		Type:          typ,
		CL:            cl,
		NextHop:       nextHop,
		Params:        params,
		State:         Unavailable,
		retryInterval: params.MinRetryInterval,
		inFlight:      make(map[uint64]QueuedBundle),
	}
}

// Enqueue appends a bundle to the link's outgoing queue.
func (l *Link) Enqueue(payload []byte) uint64 {
	l.nextSeq++
	l.queue = append(l.queue, QueuedBundle{ID: l.nextSeq, Payload: payload})
	return l.nextSeq
}

// nextRetryInterval doubles the current retry interval, capped at
// Params.MaxRetryInterval (§4.H, testable property 6).
func (l *Link) nextRetryInterval() time.Duration {
	cur := l.retryInterval
	l.retryInterval *= 2
	if l.retryInterval > l.Params.MaxRetryInterval {
		l.retryInterval = l.Params.MaxRetryInterval
	}
	return cur
}

// resetRetryInterval is called on ContactUp.
func (l *Link) resetRetryInterval() {
	l.retryInterval = l.Params.MinRetryInterval
}

func (l *Link) String() string {
	return fmt.Sprintf("%s (%s/%s -> %s) [%s]", l.Name, l.Type, l.CL, l.NextHop, l.State)
}
