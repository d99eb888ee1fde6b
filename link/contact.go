package link

import "time"

// Contact is a bound, active use of a Link, created by the contact
// planner when a plan entry's start time falls within its activation
// window (§4.I).
type Contact struct {
	Link     *Link
	EID      string
	Start    time.Time
	Duration time.Duration
}

// End returns the contact's scheduled end time.
func (c *Contact) End() time.Time { return c.Start.Add(c.Duration) }

// Bind sets c's link to AVAILABLE, per the contact planner's activation
// step (§4.I). c's start and duration are not used.
func (m *Manager) Bind(c *Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Link.State = Available
}
