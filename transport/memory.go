// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// Compile-time interface check.
var _ Transport = (*MemoryTransport)(nil)

// MemoryNetwork connects MemoryTransports inside one process. Each
// dial creates a synchronous in-memory pipe; frames flow through the
// same streamLink path the TCP transport uses, so tests exercise real
// framing and read loops without sockets.
type MemoryNetwork struct {
	mu        sync.Mutex
	endpoints map[string]*MemoryTransport
	counter   atomic.Uint64
}

// NewMemoryNetwork creates an empty in-process network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{endpoints: make(map[string]*MemoryTransport)}
}

// Transport returns the endpoint with the given address, creating it
// on first use.
func (n *MemoryNetwork) Transport(addr string) *MemoryTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	if endpoint, ok := n.endpoints[addr]; ok {
		return endpoint
	}
	endpoint := &MemoryTransport{
		network: n,
		addr:    addr,
		links:   make(map[string]*streamLink),
		closed:  make(chan struct{}),
	}
	n.endpoints[addr] = endpoint
	return endpoint
}

// MemoryTransport is one endpoint on a MemoryNetwork.
type MemoryTransport struct {
	network *MemoryNetwork
	addr    string

	mu       sync.Mutex
	handlers Handlers
	links    map[string]*streamLink
	started  bool

	closed    chan struct{}
	closeOnce sync.Once
}

// Start registers the handlers and makes the endpoint dialable.
func (t *MemoryTransport) Start(ctx context.Context, handlers Handlers) error {
	t.mu.Lock()
	t.handlers = handlers
	t.started = true
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.Close()
	}()
	return nil
}

// Addr returns the endpoint's network address.
func (t *MemoryTransport) Addr() string { return t.addr }

// Dial connects to another endpoint on the same network. The remote
// endpoint must have been started, otherwise the dial fails the same
// way an unreachable TCP address would.
func (t *MemoryTransport) Dial(ctx context.Context, addr string) (Link, error) {
	select {
	case <-t.closed:
		return nil, ErrClosed
	default:
	}

	t.network.mu.Lock()
	remote, ok := t.network.endpoints[addr]
	t.network.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no memory endpoint at %s", ErrUnavailable, addr)
	}

	remote.mu.Lock()
	remoteStarted := remote.started
	remoteHandlers := remote.handlers
	remote.mu.Unlock()
	if !remoteStarted {
		return nil, fmt.Errorf("%w: memory endpoint %s not started", ErrUnavailable, addr)
	}

	localConn, remoteConn := net.Pipe()
	serial := t.network.counter.Add(1)

	localLink := t.adopt(fmt.Sprintf("mem/%s->%s#%d", t.addr, addr, serial), localConn)
	remoteLink := remote.adopt(fmt.Sprintf("mem/%s<-%s#%d", addr, t.addr, serial), remoteConn)

	t.mu.Lock()
	localHandlers := t.handlers
	t.mu.Unlock()

	go localLink.readLoop(t.dropOnClose(localHandlers))
	go remoteLink.readLoop(remote.dropOnClose(remoteHandlers))
	if remoteHandlers.LinkOpened != nil {
		remoteHandlers.LinkOpened(remoteLink)
	}
	return localLink, nil
}

// Close shuts down the endpoint and every live link. Idempotent.
func (t *MemoryTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)

		t.mu.Lock()
		links := make([]*streamLink, 0, len(t.links))
		for _, link := range t.links {
			links = append(links, link)
		}
		t.links = make(map[string]*streamLink)
		t.started = false
		t.mu.Unlock()

		for _, link := range links {
			link.Close()
		}
	})
	return nil
}

func (t *MemoryTransport) adopt(id string, conn net.Conn) *streamLink {
	link := newStreamLink(id, conn)
	// net.Pipe addresses are both "pipe"; keep the link ID as the
	// useful remote label instead.
	link.remote = id
	t.mu.Lock()
	t.links[id] = link
	t.mu.Unlock()
	return link
}

func (t *MemoryTransport) dropOnClose(handlers Handlers) Handlers {
	wrapped := handlers
	wrapped.LinkClosed = func(link Link) {
		t.mu.Lock()
		delete(t.links, link.ID())
		t.mu.Unlock()
		if handlers.LinkClosed != nil {
			handlers.LinkClosed(link)
		}
	}
	return wrapped
}
