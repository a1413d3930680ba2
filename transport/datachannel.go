// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"io"
	"net"
	"time"
)

// Compile-time interface check.
var _ net.Conn = (*dataChannelConn)(nil)

// dataChannelConn adapts a detached pion data channel ReadWriteCloser
// to net.Conn so the WebRTC transport can reuse the shared streamLink
// framing path. The detached channel is stream-oriented (SCTP handles
// fragmentation and reassembly), so it reads like a TCP connection.
//
// Deadlines are not supported; the link layer never sets them.
type dataChannelConn struct {
	rwc        io.ReadWriteCloser
	localLabel string
	peerLabel  string
}

func newDataChannelConn(rwc io.ReadWriteCloser, localLabel, peerLabel string) *dataChannelConn {
	return &dataChannelConn{rwc: rwc, localLabel: localLabel, peerLabel: peerLabel}
}

func (c *dataChannelConn) Read(buffer []byte) (int, error)  { return c.rwc.Read(buffer) }
func (c *dataChannelConn) Write(buffer []byte) (int, error) { return c.rwc.Write(buffer) }
func (c *dataChannelConn) Close() error                     { return c.rwc.Close() }

func (c *dataChannelConn) LocalAddr() net.Addr  { return dataChannelAddr(c.localLabel) }
func (c *dataChannelConn) RemoteAddr() net.Addr { return dataChannelAddr(c.peerLabel) }

func (c *dataChannelConn) SetDeadline(time.Time) error      { return nil }
func (c *dataChannelConn) SetReadDeadline(time.Time) error  { return nil }
func (c *dataChannelConn) SetWriteDeadline(time.Time) error { return nil }

// dataChannelAddr is a synthetic net.Addr labeling one data channel
// endpoint.
type dataChannelAddr string

func (a dataChannelAddr) Network() string { return "webrtc" }
func (a dataChannelAddr) String() string  { return string(a) }
