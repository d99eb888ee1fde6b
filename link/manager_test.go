package link

import (
	"testing"
	"time"
)

func TestAddNewLinkRejectsDuplicateName(t *testing.T) {
	m := NewManager(nil)
	defer m.Stop()

	l1 := NewLink("l1", OnDemand, "stream", "dtn://b", Params{})
	if err := m.AddNewLink(l1); err != nil {
		t.Fatalf("AddNewLink: %v", err)
	}
	l2 := NewLink("l1", OnDemand, "stream", "dtn://c", Params{})
	if err := m.AddNewLink(l2); err == nil {
		t.Fatal("expected rejection of duplicate link name")
	}
}

func TestDelThenReincarnate(t *testing.T) {
	m := NewManager(nil)
	defer m.Stop()

	l1 := NewLink("l1", OnDemand, "stream", "dtn://b", Params{})
	if err := m.AddNewLink(l1); err != nil {
		t.Fatalf("AddNewLink: %v", err)
	}
	l1.RemoteEID = "dtn://node-b"
	if err := m.DelLink("l1", false); err != nil {
		t.Fatalf("DelLink: %v", err)
	}

	l2 := NewLink("l1", OnDemand, "stream", "dtn://b", Params{})
	if err := m.AddNewLink(l2); err != nil {
		t.Fatalf("AddNewLink (reincarnation): %v", err)
	}
	if !l2.Reincarnated {
		t.Fatal("expected Reincarnated=true for matching-name previous link")
	}
	if l2.RemoteEID != "dtn://node-b" {
		t.Fatalf("RemoteEID = %q, want inherited %q", l2.RemoteEID, "dtn://node-b")
	}
}

func TestAddNewLinkRejectsTripleMismatch(t *testing.T) {
	m := NewManager(nil)
	defer m.Stop()

	l1 := NewLink("l1", OnDemand, "stream", "dtn://b", Params{})
	m.AddNewLink(l1)
	m.DelLink("l1", false)

	l2 := NewLink("l1", OnDemand, "stream", "dtn://different", Params{})
	if err := m.AddNewLink(l2); err == nil {
		t.Fatal("expected rejection for mismatched (next-hop, type, cl) triple")
	}
}

func TestOpportunisticReincarnationAllowsDifferentTriple(t *testing.T) {
	m := NewManager(nil)
	defer m.Stop()

	l1 := NewLink("opp-1", Opportunistic, "stream", "dtn://unknown", Params{})
	l1.RemoteEID = "dtn://peer"
	m.AddNewLink(l1)
	m.DelLink("opp-1", false)

	l2 := NewLink("opp-1", Opportunistic, "stream", "dtn://unknown2", Params{})
	l2.RemoteEID = "dtn://peer"
	if err := m.AddNewLink(l2); err != nil {
		t.Fatalf("expected opportunistic reincarnation to succeed: %v", err)
	}
}

func TestNewOpportunisticNameSkipsCollisions(t *testing.T) {
	m := NewManager(nil)
	defer m.Stop()

	name := m.NewOpportunisticName("opp")
	m.AddNewLink(NewLink(name, Opportunistic, "stream", "dtn://x", Params{}))

	next := m.NewOpportunisticName("opp")
	if next == name {
		t.Fatalf("NewOpportunisticName returned a colliding name %q twice", name)
	}
}

func TestContactUpAndBrokenEvents(t *testing.T) {
	m := NewManager(nil)
	defer m.Stop()

	l := NewLink("l1", OnDemand, "stream", "dtn://b", Params{MinRetryInterval: time.Second, MaxRetryInterval: 4 * time.Second})
	m.AddNewLink(l)

	m.ContactUp("l1")
	time.Sleep(20 * time.Millisecond)
	if l.State != Open {
		t.Fatalf("State after ContactUp = %v, want Open", l.State)
	}

	m.ContactBroken("l1")
	time.Sleep(20 * time.Millisecond)
	if l.State != Unavailable {
		t.Fatalf("State after ContactBroken = %v, want Unavailable", l.State)
	}
	if l.Stats.ContactUps != 1 || l.Stats.ContactBreaks != 1 {
		t.Fatalf("Stats = %+v, want one ContactUp and one ContactBreak", l.Stats)
	}
}
