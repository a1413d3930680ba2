// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"io"
	"net"
	"sync"
)

// Compile-time interface check.
var _ Link = (*streamLink)(nil)

// streamLink frames messages over any net.Conn. TCP and the memory
// network both produce net.Conns, so they share this link and its read
// loop; WebRTC wraps its detached data channel into a net.Conn and
// joins the same path.
type streamLink struct {
	id     string
	conn   net.Conn
	remote string

	// writeMu serializes frame writes; interleaved partial frames
	// would corrupt the stream.
	writeMu sync.Mutex

	closeOnce sync.Once
}

func newStreamLink(id string, conn net.Conn) *streamLink {
	return &streamLink{
		id:     id,
		conn:   conn,
		remote: conn.RemoteAddr().String(),
	}
}

func (l *streamLink) ID() string { return l.id }

func (l *streamLink) RemoteAddr() string { return l.remote }

func (l *streamLink) Send(payload []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := writeFrame(l.conn, payload); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (l *streamLink) Close() error {
	var err error
	l.closeOnce.Do(func() { err = l.conn.Close() })
	return err
}

// readLoop delivers inbound frames until the connection dies, then
// reports the closure exactly once. Runs on its own goroutine, one per
// link.
func (l *streamLink) readLoop(handlers Handlers) {
	defer func() {
		l.Close()
		if handlers.LinkClosed != nil {
			handlers.LinkClosed(l)
		}
	}()
	for {
		payload, err := readFrame(l.conn)
		if err != nil {
			return
		}
		if handlers.Payload != nil {
			handlers.Payload(l, payload)
		}
	}
}
