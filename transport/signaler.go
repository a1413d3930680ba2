// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "context"

// Signaler abstracts the mechanism two peers use to exchange WebRTC
// session descriptions before a direct connection exists. Tests use
// the in-process MemorySignaler; a deployment can back this with any
// shared rendezvous (a classroom server, a file share, a QR code).
//
// The signaling model is vanilla ICE: all candidates are gathered
// before the SDP is published, so establishment needs exactly one
// round-trip (offer then answer).
type Signaler interface {
	// PublishOffer stores a complete SDP offer from peer name to
	// target where the target can find it.
	PublishOffer(ctx context.Context, name, target, sdp string) error

	// PublishAnswer stores a complete SDP answer responding to a
	// previously received offer from offerer.
	PublishAnswer(ctx context.Context, offerer, name, sdp string) error

	// PollOffers returns pending offers directed at name that have not
	// been returned before.
	PollOffers(ctx context.Context, name string) ([]SignalMessage, error)

	// PollAnswers returns pending answers to offers originated by name
	// that have not been returned before.
	PollAnswers(ctx context.Context, name string) ([]SignalMessage, error)
}

// SignalMessage is one signaling payload (offer or answer).
type SignalMessage struct {
	// Peer is the other party: the offerer for received offers, the
	// answerer for received answers.
	Peer string

	// SDP is the complete session description with all ICE candidates
	// embedded.
	SDP string
}
