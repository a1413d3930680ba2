// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport is the reliable bidirectional message channel
// between peers, multiplexing many connections behind one set of event
// handlers. Three implementations exist: TCP for the classroom LAN,
// WebRTC data channels for networks where direct TCP is blocked, and
// an in-process memory network for tests.
//
// A Link is the transport-level connection handle — the transient
// reference the reconciler maps onto stable peer identities. Every
// link delivers frames reliably and in order; there is no ordering
// guarantee across links.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a transport or link that has
// been shut down.
var ErrClosed = errors.New("transport: closed")

// ErrUnavailable is returned when a transport cannot start or a dial
// target cannot be reached. The caller surfaces it as a status string;
// it is never fatal.
var ErrUnavailable = errors.New("transport: unavailable")

// Link is one live connection to a remote peer.
type Link interface {
	// ID uniquely identifies this connection for the lifetime of the
	// process. A peer that reconnects gets a new link with a new ID.
	ID() string

	// RemoteAddr is the peer's transport address, for logging.
	RemoteAddr() string

	// Send writes one frame to the peer. Fire-and-forget: a nil error
	// means the frame was handed to the transport, not that the peer
	// received it. Reliability is the transport's retry machinery, not
	// an application acknowledgment.
	Send(payload []byte) error

	// Close tears the connection down. Idempotent. The owning
	// transport reports the closure through Handlers.LinkClosed.
	Close() error
}

// Handlers receives transport events. Callbacks run on transport-owned
// goroutines; components that own state must re-marshal onto their own
// event loop before mutating anything.
type Handlers struct {
	// LinkOpened fires for every inbound connection accepted by the
	// transport. Outbound connections are returned directly by Dial
	// and do not fire this, so the dialer can associate the link with
	// the discovery announcement that prompted it.
	LinkOpened func(link Link)

	// LinkClosed fires exactly once per link, for both directions,
	// when the connection ends for any reason.
	LinkClosed func(link Link)

	// Payload delivers one received frame.
	Payload func(link Link, payload []byte)
}

// Transport accepts inbound links and dials outbound ones.
type Transport interface {
	// Start begins accepting inbound connections and delivering
	// events. Returns once the transport is ready; the handlers stay
	// live until Close.
	Start(ctx context.Context, handlers Handlers) error

	// Addr is the dial address peers should use to reach this
	// transport, suitable for the discovery announcement.
	Addr() string

	// Dial opens an outbound link — the "invitation" of the discovery
	// layer. The returned link is live: its frames and closure are
	// reported through the handlers passed to Start.
	Dial(ctx context.Context, addr string) (Link, error)

	// Close shuts down the transport and every live link. Idempotent.
	Close() error
}
