// Package contactplan implements the contact planner (§4.I): a sorted
// vector of contact-plan entries, a 100ms poll worker that activates
// entries whose start time t satisfies t <= now <= t+5s, and CSV load/export
// matching the file format named in §6. Grounded on the teacher's
// session/tcp.go checkTicker periodic-scan idiom, generalized from
// "scan for frame timeouts" to "scan for due contact-plan entries", and
// on fsnotify's use elsewhere in the pack for config hot-reload.
package contactplan

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/dtnd/bpagent/link"
)

// activationWindow is the [start, start+window] span within which a due
// entry is activated rather than silently dropped (§4.I, §8 property 8).
const activationWindow = 5 * time.Second

const pollInterval = 100 * time.Millisecond

// Entry is one contact-plan row: a link coming into contact with a
// remote endpoint for a bounded duration (§4.I).
type Entry struct {
	ID       int
	EID      string
	LinkName string
	Start    time.Time
	Duration time.Duration
}

// Planner holds the sorted entry vector and the link registry it binds
// activated contacts to.
type Planner struct {
	entries []Entry
	nextID  int

	links *link.Manager
	log   *logrus.Logger

	watcher *fsnotify.Watcher
	path    string

	stop chan struct{}
	done chan struct{}
}

// New returns a Planner bound to a link Manager.
func New(links *link.Manager, log *logrus.Logger) *Planner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Planner{links: links, log: log, stop: make(chan struct{}), done: make(chan struct{})}
}

// Add inserts an entry, keeping the vector sorted by start time.
func (p *Planner) Add(e Entry) int {
	p.nextID++
	e.ID = p.nextID
	p.entries = append(p.entries, e)
	sort.Slice(p.entries, func(i, j int) bool { return p.entries[i].Start.Before(p.entries[j].Start) })
	return e.ID
}

// DeleteRange removes entries whose ID is in [lo, hi].
func (p *Planner) DeleteRange(lo, hi int) {
	kept := p.entries[:0]
	for _, e := range p.entries {
		if e.ID < lo || e.ID > hi {
			kept = append(kept, e)
		}
	}
	p.entries = kept
}

// Reset clears every entry.
func (p *Planner) Reset() {
	p.entries = nil
	p.nextID = 0
}

// Entries returns a snapshot of the current sorted entry vector.
func (p *Planner) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Start launches the 100ms poll worker (§4.I). now is injected so tests
// can drive it deterministically rather than depending on wall-clock
// time.
func (p *Planner) Start(now func() time.Time) {
	go p.run(now)
}

// Stop halts the poll worker and any fsnotify watch.
func (p *Planner) Stop() {
	close(p.stop)
	<-p.done
	if p.watcher != nil {
		p.watcher.Close()
	}
}

func (p *Planner) run(now func() time.Time) {
	defer close(p.done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.tick(now())
		}
	}
}

// tick inspects the front entry: activates it if now falls within
// [start, start+5s], drops it if more than 5s overdue, and otherwise
// (start still in the future) leaves it for a later tick (§4.I, §8
// property 8).
func (p *Planner) tick(now time.Time) {
	for len(p.entries) > 0 {
		e := p.entries[0]
		switch {
		case e.Start.After(now):
			return // front entry not due yet; later entries aren't either
		case now.Sub(e.Start) <= activationWindow:
			p.activate(e)
			p.entries = p.entries[1:]
		default:
			p.log.WithFields(logrus.Fields{"entry": e.ID, "link": e.LinkName}).
				Warn("contact-plan entry dropped: activation window elapsed")
			p.entries = p.entries[1:]
		}
	}
}

func (p *Planner) activate(e Entry) {
	l := p.links.FindLink(e.LinkName)
	if l == nil {
		p.log.WithField("link", e.LinkName).Warn("contact-plan entry references unknown link")
		return
	}
	c := &link.Contact{Link: l, EID: e.EID, Start: e.Start, Duration: e.Duration}
	p.links.Bind(c)
	p.log.WithFields(logrus.Fields{"link": e.LinkName, "eid": e.EID}).Info("contact activated")
}

// Load parses CSV rows "eid,link-name,yyyy:ddd:hh:mm:ss,duration" from
// r, skipping blank lines and "#" comments (§6).
func (p *Planner) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return fmt.Errorf("contactplan: line %d: %w", lineNo, err)
		}
		p.Add(e)
	}
	return scanner.Err()
}

func parseLine(line string) (Entry, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return Entry{}, fmt.Errorf("want 4 comma-separated fields, got %d", len(fields))
	}
	start, err := parsePlanTime(strings.TrimSpace(fields[2]))
	if err != nil {
		return Entry{}, err
	}
	secs, err := strconv.Atoi(strings.TrimSpace(fields[3]))
	if err != nil {
		return Entry{}, fmt.Errorf("bad duration: %w", err)
	}
	return Entry{
		EID:      strings.TrimSpace(fields[0]),
		LinkName: strings.TrimSpace(fields[1]),
		Start:    start,
		Duration: time.Duration(secs) * time.Second,
	}, nil
}

// parsePlanTime parses "yyyy:ddd:hh:mm:ss" (year, day-of-year, time).
func parsePlanTime(s string) (time.Time, error) {
	var year, yday, hour, min, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d:%d:%d", &year, &yday, &hour, &min, &sec); err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return time.Date(year, time.January, 1, hour, min, sec, 0, time.UTC).
		AddDate(0, 0, yday-1), nil
}

func formatPlanTime(t time.Time) string {
	return fmt.Sprintf("%04d:%03d:%02d:%02d:%02d", t.Year(), t.YearDay(), t.Hour(), t.Minute(), t.Second())
}

// Export writes every entry as CSV rows in the §6 format.
func (p *Planner) Export(w io.Writer) error {
	for _, e := range p.entries {
		_, err := fmt.Fprintf(w, "%s,%s,%s,%d\n", e.EID, e.LinkName, formatPlanTime(e.Start), int(e.Duration/time.Second))
		if err != nil {
			return err
		}
	}
	return nil
}

// WatchFile loads path and reloads it on every fsnotify write event,
// per SPEC_FULL's named fsnotify-based reload.
func (p *Planner) WatchFile(path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("contactplan: new watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return fmt.Errorf("contactplan: watch %s: %w", path, err)
	}
	p.watcher = w
	p.path = path

	if err := p.reloadFromPath(); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := p.reloadFromPath(); err != nil {
						p.log.WithError(err).Warn("contact plan reload failed")
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				p.log.WithError(err).Warn("contact plan watcher error")
			}
		}
	}()
	return nil
}

func (p *Planner) reloadFromPath() error {
	f, err := os.Open(p.path)
	if err != nil {
		return err
	}
	defer f.Close()
	p.Reset()
	return p.Load(f)
}
