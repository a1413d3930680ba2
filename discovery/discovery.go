// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package discovery makes a process discoverable under the classmesh
// service namespace and scans for other processes' announcements. The
// contracts are transport-agnostic: the native single-delegate
// discovery APIs this replaces are modeled as injected found/lost
// handlers, so the protocol logic above can run against the in-memory
// mesh in tests and mDNS in production.
package discovery

import "context"

// Well-known metadata keys. Discovery metadata is a small flat
// string-keyed map; nothing else is ever advertised.
const (
	// KeyRole tags the announcement with the peer's role
	// (teacher/student in classroom mode, host in chat mode).
	KeyRole = "role"

	// KeyName is the classroom display name.
	KeyName = "name"

	// KeyStudentID is the student's stable identity key. Only
	// announcements carrying a non-empty value trigger an invitation.
	KeyStudentID = "studentId"

	// KeyJoinCode is the chat room join code a host advertises.
	KeyJoinCode = "joinCode"

	// KeyDisplayName and KeyColorTag are the chat mode participant
	// fields.
	KeyDisplayName = "displayName"
	KeyColorTag    = "colorTag"

	// KeyAddr is the transport dial address the peer listens on.
	// Discovery and transport are decoupled here, so the announcement
	// must say where to connect.
	KeyAddr = "addr"
)

// PeerRef identifies a remote process at the discovery layer. It is a
// transient transport-level reference, distinct from the stable
// identity the reconciler maintains.
type PeerRef struct {
	// ID is the unique instance name within the service namespace.
	ID string

	// Addr is the transport dial address from the announcement.
	Addr string
}

// Metadata is the flat announcement payload.
type Metadata map[string]string

// Clone returns a copy so callers can hold metadata across the
// callback boundary without aliasing the browser's internal state.
func (m Metadata) Clone() Metadata {
	clone := make(Metadata, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// FoundFunc is invoked when a peer announcement appears or changes.
// Implementations serialize FoundFunc and LostFunc invocations; the
// two never run concurrently with each other.
type FoundFunc func(ref PeerRef, meta Metadata)

// LostFunc is invoked when a previously found peer's announcement goes
// away.
type LostFunc func(ref PeerRef)

// Advertiser announces this process's role and metadata.
type Advertiser interface {
	// StartAdvertising begins broadcasting the announcement.
	// Idempotent: calling while already advertising restarts the
	// announcement with the new metadata.
	StartAdvertising(ctx context.Context, self PeerRef, meta Metadata) error

	// Stop halts advertising. Safe to call repeatedly and from any
	// state.
	Stop() error
}

// Browser scans for announcements.
type Browser interface {
	// StartBrowsing begins scanning. Both callbacks are delivered from
	// a single goroutine owned by the browser. After Stop returns, no
	// further callbacks fire, even for events already in flight.
	StartBrowsing(ctx context.Context, onFound FoundFunc, onLost LostFunc) error

	// Stop halts browsing. Safe to call repeatedly and from any state.
	Stop() error
}
