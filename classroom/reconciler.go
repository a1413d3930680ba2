// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package classroom runs the teacher/student alert topology: the
// teacher advertises its presence and browses for students, invites
// every student it discovers, and keeps a roster keyed by each
// student's stable ID so a student who relaunches with a new display
// name replaces their old entry instead of duplicating it.
package classroom

import (
	"sort"

	"github.com/classmesh-foundation/classmesh/identity"
)

// PeerState tracks a discovered student through the invitation
// lifecycle. Disconnected is terminal for the entry but reusable: the
// same stable ID can be discovered and invited again.
type PeerState int

const (
	StateFound PeerState = iota
	StateInvited
	StateConnecting
	StateConnected
	StateDisconnected
)

// Decision is the reconciler's verdict on a discovery announcement.
type Decision int

const (
	// DecisionInvite means the peer is new: dial it.
	DecisionInvite Decision = iota

	// DecisionDuplicate means the same announcement arrived again;
	// no second invitation is sent, preventing invite storms from
	// repeated discovery events.
	DecisionDuplicate

	// DecisionSupersede means the stable ID reappeared at a new
	// address: tear the old connection down, then invite the new one.
	// This is a student relaunching with a changed display name.
	DecisionSupersede
)

// Entry is one reconciled peer: its stable identity plus the
// transient discovery and transport references currently serving it.
type Entry struct {
	Peer  identity.Peer
	RefID string
	Addr  string

	// LinkID is empty until a transport link is attached.
	LinkID string

	State PeerState
}

// Reconciler owns the stable-ID-to-connection mapping and its
// inverse. It is not safe for concurrent use: the owning coordinator
// mutates it only on its event loop, which is what keeps the
// one-live-connection-per-stable-ID invariant without locks.
type Reconciler struct {
	byStable map[string]*Entry
	byLink   map[string]string
}

// NewReconciler creates an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{
		byStable: make(map[string]*Entry),
		byLink:   make(map[string]string),
	}
}

// Observe applies one discovery announcement. The returned decision
// tells the coordinator what to do; for DecisionSupersede the second
// return value is the superseded entry whose link must be torn down.
// Observe already records the new entry for Invite and Supersede.
func (r *Reconciler) Observe(peer identity.Peer, refID, addr string) (Decision, Entry) {
	existing, ok := r.byStable[peer.ID]
	if ok && existing.Addr == addr {
		// Same announcement again; refresh the identity in case only
		// the metadata changed at the same address (an in-place
		// rename rather than a relaunch).
		existing.Peer = peer
		existing.RefID = refID
		return DecisionDuplicate, *existing
	}

	entry := &Entry{Peer: peer, RefID: refID, Addr: addr, State: StateFound}
	r.byStable[peer.ID] = entry

	if ok {
		if existing.LinkID != "" {
			delete(r.byLink, existing.LinkID)
		}
		return DecisionSupersede, *existing
	}
	return DecisionInvite, Entry{}
}

// Invited marks the entry as dialed.
func (r *Reconciler) Invited(stableID string) {
	if entry, ok := r.byStable[stableID]; ok {
		entry.State = StateInvited
	}
}

// Attach records the live link serving a stable ID and marks the
// entry connected.
func (r *Reconciler) Attach(stableID, linkID string) {
	entry, ok := r.byStable[stableID]
	if !ok {
		return
	}
	if entry.LinkID != "" {
		delete(r.byLink, entry.LinkID)
	}
	entry.LinkID = linkID
	entry.State = StateConnected
	r.byLink[linkID] = stableID
}

// DropLink removes the entry served by a closed link. Returns the
// removed entry, or ok=false when the link was already superseded and
// its closure is stale news.
func (r *Reconciler) DropLink(linkID string) (Entry, bool) {
	stableID, ok := r.byLink[linkID]
	if !ok {
		return Entry{}, false
	}
	delete(r.byLink, linkID)
	entry := r.byStable[stableID]
	delete(r.byStable, stableID)
	entry.State = StateDisconnected
	return *entry, true
}

// DropPending removes an entry that never reached Connected — a
// failed dial, or a discovery loss before the invitation completed.
// A connected entry is left alone; its link closure is authoritative.
func (r *Reconciler) DropPending(stableID string) (Entry, bool) {
	entry, ok := r.byStable[stableID]
	if !ok || entry.State == StateConnected {
		return Entry{}, false
	}
	delete(r.byStable, stableID)
	entry.State = StateDisconnected
	return *entry, true
}

// Lookup returns the entry for a stable ID.
func (r *Reconciler) Lookup(stableID string) (Entry, bool) {
	entry, ok := r.byStable[stableID]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// ByRef returns the entry currently served by a discovery reference.
func (r *Reconciler) ByRef(refID string) (Entry, bool) {
	for _, entry := range r.byStable {
		if entry.RefID == refID {
			return *entry, true
		}
	}
	return Entry{}, false
}

// Roster returns the current peers sorted by display name for stable
// presentation.
func (r *Reconciler) Roster() []identity.Peer {
	roster := make([]identity.Peer, 0, len(r.byStable))
	for _, entry := range r.byStable {
		roster = append(roster, entry.Peer)
	}
	sort.Slice(roster, func(i, j int) bool {
		if roster[i].DisplayName != roster[j].DisplayName {
			return roster[i].DisplayName < roster[j].DisplayName
		}
		return roster[i].ID < roster[j].ID
	})
	return roster
}

// Size is the roster size.
func (r *Reconciler) Size() int { return len(r.byStable) }
