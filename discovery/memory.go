// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"sync"
)

// Compile-time interface checks.
var (
	_ Advertiser = (*MemoryNode)(nil)
	_ Browser    = (*MemoryNode)(nil)
)

// MemoryMesh is an in-process discovery fabric for tests and
// same-process demos. Every node registered on the mesh sees every
// other node's announcements, with no network involved.
type MemoryMesh struct {
	mu    sync.Mutex
	nodes map[string]*MemoryNode
}

// NewMemoryMesh creates an empty mesh.
func NewMemoryMesh() *MemoryMesh {
	return &MemoryMesh{nodes: make(map[string]*MemoryNode)}
}

// Node returns the mesh endpoint with the given name, creating it on
// first use. The same node implements both Advertiser and Browser,
// matching how a real process advertises and scans at once.
func (m *MemoryMesh) Node(name string) *MemoryNode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if node, ok := m.nodes[name]; ok {
		return node
	}
	node := &MemoryNode{mesh: m, name: name}
	m.nodes[name] = node
	return node
}

// announce delivers a found event to every browsing node except the
// sender. Called with m.mu held by the sender's node.
func (m *MemoryMesh) announce(from *MemoryNode, ref PeerRef, meta Metadata) {
	for name, node := range m.nodes {
		if name == from.name {
			continue
		}
		node.enqueue(memoryEvent{ref: ref, meta: meta.Clone()})
	}
}

// withdraw delivers a lost event to every browsing node except the
// sender. Called with m.mu held.
func (m *MemoryMesh) withdraw(from *MemoryNode, ref PeerRef) {
	for name, node := range m.nodes {
		if name == from.name {
			continue
		}
		node.enqueue(memoryEvent{lost: true, ref: ref})
	}
}

type memoryEvent struct {
	lost bool
	ref  PeerRef
	meta Metadata
}

// MemoryNode is one endpoint on a MemoryMesh.
type MemoryNode struct {
	mesh *MemoryMesh
	name string

	mu          sync.Mutex
	advertising bool
	self        PeerRef
	meta        Metadata
	browse      *memoryBrowse
}

// memoryBrowse is one browsing session. A fresh session is created per
// StartBrowsing, so events queued for a stopped session can never reach
// the new session's callbacks.
type memoryBrowse struct {
	events chan memoryEvent
	quit   chan struct{}
	once   sync.Once
}

func (b *memoryBrowse) stop() { b.once.Do(func() { close(b.quit) }) }

// StartAdvertising publishes the announcement to every browsing node on
// the mesh. Calling it again republishes with the new metadata, which
// is how a renamed student shows up as a repeated found event.
func (n *MemoryNode) StartAdvertising(ctx context.Context, self PeerRef, meta Metadata) error {
	n.mesh.mu.Lock()
	defer n.mesh.mu.Unlock()

	n.mu.Lock()
	n.advertising = true
	n.self = self
	n.meta = meta.Clone()
	n.mu.Unlock()

	n.mesh.announce(n, self, meta)

	go func() {
		<-ctx.Done()
		n.stopAdvertising()
	}()
	return nil
}

// StartBrowsing begins delivering mesh events to the callbacks from a
// single goroutine. Currently advertising nodes are delivered
// immediately, like a warm mDNS cache.
func (n *MemoryNode) StartBrowsing(ctx context.Context, onFound FoundFunc, onLost LostFunc) error {
	session := &memoryBrowse{
		events: make(chan memoryEvent, 256),
		quit:   make(chan struct{}),
	}

	n.mesh.mu.Lock()
	n.mu.Lock()
	if previous := n.browse; previous != nil {
		previous.stop()
	}
	n.browse = session
	n.mu.Unlock()
	for name, node := range n.mesh.nodes {
		if name == n.name {
			continue
		}
		node.mu.Lock()
		if node.advertising {
			session.events <- memoryEvent{ref: node.self, meta: node.meta.Clone()}
		}
		node.mu.Unlock()
	}
	n.mesh.mu.Unlock()

	go func() {
		for {
			select {
			case <-session.quit:
				return
			case <-ctx.Done():
				return
			case event := <-session.events:
				// Re-check quit: Stop must win over events that were
				// already queued when it was called.
				select {
				case <-session.quit:
					return
				default:
				}
				if event.lost {
					onLost(event.ref)
				} else {
					onFound(event.ref, event.meta)
				}
			}
		}
	}()
	return nil
}

// Stop halts both advertising and browsing. Safe to call repeatedly.
func (n *MemoryNode) Stop() error {
	n.stopAdvertising()

	n.mu.Lock()
	session := n.browse
	n.browse = nil
	n.mu.Unlock()
	if session != nil {
		session.stop()
	}
	return nil
}

func (n *MemoryNode) stopAdvertising() {
	n.mesh.mu.Lock()
	defer n.mesh.mu.Unlock()

	n.mu.Lock()
	wasAdvertising := n.advertising
	ref := n.self
	n.advertising = false
	n.mu.Unlock()

	if wasAdvertising {
		n.mesh.withdraw(n, ref)
	}
}

// enqueue pushes an event to the node's active browse session, if any.
// Events are dropped when the session buffer is full; the mesh is a
// test fabric, not a reliable channel.
func (n *MemoryNode) enqueue(event memoryEvent) {
	n.mu.Lock()
	session := n.browse
	n.mu.Unlock()
	if session == nil {
		return
	}
	select {
	case session.events <- event:
	default:
	}
}
