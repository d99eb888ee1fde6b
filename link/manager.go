package link

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventKind identifies the event types processed by Manager.run,
// mirroring the teacher's tcp.run() single-select state machine
// generalized from one connection to a registry of named links.
type EventKind int

const (
	EventLinkCreated EventKind = iota
	EventLinkAvailable
	EventLinkUnavailable
	EventContactUp
	EventContactBroken
	EventOpenRequest
	EventRetryFire
)

// Event is posted to Manager's internal queue; events for a single link
// are processed in the order posted (§5).
type Event struct {
	Kind   EventKind
	Link   string
	Reason Reason
}

// Manager tracks configured links and "previous" links (§4.H): the
// latter preserves forwarding-log/reincarnation semantics across
// restarts, kept as a map distinct from the live link set per
// SPEC_FULL's explicit modeling choice.
type Manager struct {
	mu       sync.RWMutex
	links    map[string]*Link
	previous map[string]*Link

	events chan Event
	timers map[string]*time.Timer

	log *logrus.Logger

	shuttingDown bool
	nextOppID    int

	// quit is closed to stop run().
	quit chan struct{}
	done chan struct{}
}

// NewManager returns a Manager with its event loop goroutine started.
func NewManager(log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Manager{
		links:    make(map[string]*Link),
		previous: make(map[string]*Link),
		events:   make(chan Event, 64),
		timers:   make(map[string]*time.Timer),
		log:      log,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.run()
	return m
}

// Stop signals the event loop to exit and waits for it.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.shuttingDown = true
	m.mu.Unlock()
	close(m.quit)
	<-m.done
}

// run is the daemon event loop: a single goroutine handles every posted
// event, so link state changes are serialized through this select,
// generalizing the teacher's tcp.run() from one connection's sequence
// numbers to many links' states. m.links and m.previous themselves are
// guarded by m.mu and changed directly by AddNewLink, DelLink and
// Reconfigure.
func (m *Manager) run() {
	defer close(m.done)
	for {
		select {
		case <-m.quit:
			return
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

func (m *Manager) handle(ev Event) {
	m.mu.Lock()
	l, ok := m.links[ev.Link]
	m.mu.Unlock()
	if !ok {
		return
	}

	switch ev.Kind {
	case EventLinkAvailable:
		l.State = Available

	case EventLinkUnavailable:
		l.State = Unavailable
		if (l.Type == AlwaysOn || l.Type == OnDemand) && ev.Reason != ReasonUser && ev.Reason != ReasonIdle {
			m.armRetryTimer(l)
		}

	case EventContactUp:
		l.State = Open
		l.Stats.ContactUps++
		l.resetRetryInterval()

	case EventContactBroken:
		l.State = Unavailable
		l.Stats.ContactBreaks++
		if l.Type == AlwaysOn || l.Type == OnDemand {
			m.armRetryTimer(l)
		}

	case EventOpenRequest:
		if l.State == Opening || l.State == Open {
			return // already opening or open
		}
		l.State = Opening

	case EventRetryFire:
		if l.State != Unavailable {
			return
		}
		m.postLocked(Event{Kind: EventOpenRequest, Link: l.Name})
	}
}

// armRetryTimer schedules an availability timer at the link's current
// backed-off retry interval (§4.H, testable property 6).
func (m *Manager) armRetryTimer(l *Link) {
	delay := l.nextRetryInterval()
	if t, ok := m.timers[l.Name]; ok {
		t.Stop()
	}
	name := l.Name
	m.timers[name] = time.AfterFunc(delay, func() {
		m.post(Event{Kind: EventRetryFire, Link: name})
	})
}

// post enqueues an event from outside the event-loop goroutine.
func (m *Manager) post(ev Event) {
	select {
	case m.events <- ev:
	case <-m.quit:
	}
}

// postLocked enqueues an event from within handle (already running on
// the event-loop goroutine; channel send is safe since it's buffered
// and only this goroutine drains concurrently-posted externals).
func (m *Manager) postLocked(ev Event) {
	m.events <- ev
}

// AddNewLink validates and inserts a new link (§4.H). A link is
// rejected if its name already exists, or previously existed with a
// different (next-hop, type, CL) triple — unless it is OPPORTUNISTIC
// and the remote EID matches, or the name matches a previous link
// exactly, in which case the new Link reincarnates it.
func (m *Manager) AddNewLink(l *Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shuttingDown {
		return fmt.Errorf("link: manager is shutting down")
	}
	if _, exists := m.links[l.Name]; exists {
		return fmt.Errorf("link: name %q already in use", l.Name)
	}

	if prev, ok := m.previous[l.Name]; ok {
		sameTriple := prev.NextHop == l.NextHop && prev.Type == l.Type && prev.CL == l.CL
		oppMatch := l.Type == Opportunistic && prev.RemoteEID != "" && prev.RemoteEID == l.RemoteEID
		if !sameTriple && !oppMatch {
			return fmt.Errorf("link: name %q previously used a different (next-hop, type, cl) triple", l.Name)
		}
		l.RemoteEID = prev.RemoteEID
		l.Reincarnated = true
		delete(m.previous, l.Name)
	}

	m.links[l.Name] = l
	m.post(Event{Kind: EventLinkCreated, Link: l.Name})
	m.log.WithFields(logrus.Fields{"link": l.Name, "type": l.Type.String()}).Info("link created")
	return nil
}

// NewOpportunisticName allocates "<base>-<n>" with n wrapping at 10^8,
// skipping any collision with existing or previous link names (§4.H).
func (m *Manager) NewOpportunisticName(base string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		m.nextOppID = (m.nextOppID + 1) % 100000000
		name := fmt.Sprintf("%s-%d", base, m.nextOppID)
		if _, ok := m.links[name]; ok {
			continue
		}
		if _, ok := m.previous[name]; ok {
			continue
		}
		return name
	}
}

// HasLink reports whether a link with the given name is registered.
func (m *Manager) HasLink(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.links[name]
	return ok
}

// FindLink returns the named link, or nil.
func (m *Manager) FindLink(name string) *Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.links[name]
}

// Names returns every configured link name.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.links))
	for name := range m.links {
		names = append(names, name)
	}
	return names
}

// DelLink removes a link, moving it into the previous-links set so a
// later AddNewLink with the same name can reincarnate it.
func (m *Manager) DelLink(name string, wait bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[name]
	if !ok {
		return fmt.Errorf("link: no such link %q", name)
	}
	if wait && l.State == Open {
		return fmt.Errorf("link: %q has an open contact; close it before deleting", name)
	}
	delete(m.links, name)
	m.previous[name] = l
	if t, ok := m.timers[name]; ok {
		t.Stop()
		delete(m.timers, name)
	}
	return nil
}

// ReopenLink posts an open-request for a link currently UNAVAILABLE or
// CLOSED, bypassing the retry timer (used by the CLI's `link open`).
func (m *Manager) ReopenLink(name string) error {
	if !m.HasLink(name) {
		return fmt.Errorf("link: no such link %q", name)
	}
	m.post(Event{Kind: EventOpenRequest, Link: name})
	return nil
}

// SetAvailable posts a LinkAvailable/LinkUnavailable event for the CLI's
// `link set_available` verb.
func (m *Manager) SetAvailable(name string, available bool, reason Reason) error {
	if !m.HasLink(name) {
		return fmt.Errorf("link: no such link %q", name)
	}
	kind := EventLinkUnavailable
	if available {
		kind = EventLinkAvailable
	}
	m.post(Event{Kind: kind, Link: name, Reason: reason})
	return nil
}

// Reconfigure updates a link's parameters; parameters are mutated only
// between contacts, never during an active contact (§5).
func (m *Manager) Reconfigure(name string, params Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[name]
	if !ok {
		return fmt.Errorf("link: no such link %q", name)
	}
	if l.State == Open || l.State == Opening {
		return fmt.Errorf("link: %q has an active contact; reconfigure between contacts only", name)
	}
	params.check()
	l.Params = params
	return nil
}

// ContactUp reports a successfully established contact on name.
func (m *Manager) ContactUp(name string) { m.post(Event{Kind: EventContactUp, Link: name}) }

// ContactBroken reports a broken contact on name.
func (m *Manager) ContactBroken(name string) { m.post(Event{Kind: EventContactBroken, Link: name}) }
