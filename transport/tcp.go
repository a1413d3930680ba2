// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

// Compile-time interface check.
var _ Transport = (*TCPTransport)(nil)

// TCPTransport carries peer links over plain TCP. This is the
// production classroom transport: discovery hands out the listen
// address, the teacher dials it, and every connection becomes one
// framed message stream.
type TCPTransport struct {
	listener net.Listener
	logger   *slog.Logger

	mu       sync.Mutex
	handlers Handlers
	links    map[string]*streamLink
	started  bool

	closed    chan struct{}
	closeOnce sync.Once

	linkCounter atomic.Uint64
}

// NewTCPTransport listens on the given address immediately so that
// Addr is known before Start — the discovery announcement needs it.
// Use ":0" for an ephemeral port.
func NewTCPTransport(listenAddr string, logger *slog.Logger) (*TCPTransport, error) {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: listening on %s: %v", ErrUnavailable, listenAddr, err)
	}
	return &TCPTransport{
		listener: listener,
		logger:   logger,
		links:    make(map[string]*streamLink),
		closed:   make(chan struct{}),
	}, nil
}

// Start begins accepting inbound connections.
func (t *TCPTransport) Start(ctx context.Context, handlers Handlers) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.handlers = handlers
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.Close()
	}()

	go t.acceptLoop(handlers)
	return nil
}

func (t *TCPTransport) acceptLoop(handlers Handlers) {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closed:
			default:
				t.logger.Warn("accept failed", "error", err)
			}
			return
		}
		link := t.track(conn)
		t.logger.Debug("inbound link", "link", link.ID(), "remote", link.RemoteAddr())
		if handlers.LinkOpened != nil {
			handlers.LinkOpened(link)
		}
		go link.readLoop(t.dropOnClose(handlers))
	}
}

// Addr returns the listen address in host:port form.
func (t *TCPTransport) Addr() string {
	return t.listener.Addr().String()
}

// Dial opens an outbound link to a peer's listen address.
func (t *TCPTransport) Dial(ctx context.Context, addr string) (Link, error) {
	select {
	case <-t.closed:
		return nil, ErrClosed
	default:
	}

	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrUnavailable, addr, err)
	}

	t.mu.Lock()
	handlers := t.handlers
	t.mu.Unlock()

	link := t.track(conn)
	t.logger.Debug("outbound link", "link", link.ID(), "remote", link.RemoteAddr())
	go link.readLoop(t.dropOnClose(handlers))
	return link, nil
}

// Close shuts the listener and every live link down. Idempotent.
func (t *TCPTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.listener.Close()

		t.mu.Lock()
		links := make([]*streamLink, 0, len(t.links))
		for _, link := range t.links {
			links = append(links, link)
		}
		t.links = make(map[string]*streamLink)
		t.mu.Unlock()

		for _, link := range links {
			link.Close()
		}
	})
	return nil
}

// track wraps a connection as a link and registers it for shutdown.
func (t *TCPTransport) track(conn net.Conn) *streamLink {
	id := fmt.Sprintf("tcp/%s#%d", conn.RemoteAddr(), t.linkCounter.Add(1))
	link := newStreamLink(id, conn)
	t.mu.Lock()
	t.links[id] = link
	t.mu.Unlock()
	return link
}

// dropOnClose wraps the handlers so a link's closure also removes it
// from the tracked set.
func (t *TCPTransport) dropOnClose(handlers Handlers) Handlers {
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
