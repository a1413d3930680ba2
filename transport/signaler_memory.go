// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"strings"
	"sync"
)

// Compile-time interface check.
var _ Signaler = (*MemorySignaler)(nil)

// MemorySignaler exchanges SDP through an in-process map. Two
// WebRTCTransports sharing one MemorySignaler can establish peer
// connections with no external rendezvous, which is how the WebRTC
// tests run.
//
// Polls consume: a published signal is returned once and then cleared,
// so repeat polls do not re-deliver stale descriptions.
type MemorySignaler struct {
	mu      sync.Mutex
	offers  map[string]SignalMessage // key: "offerer|target"
	answers map[string]SignalMessage
}

// NewMemorySignaler creates an empty in-process signaler.
func NewMemorySignaler() *MemorySignaler {
	return &MemorySignaler{
		offers:  make(map[string]SignalMessage),
		answers: make(map[string]SignalMessage),
	}
}

func (s *MemorySignaler) PublishOffer(_ context.Context, name, target, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[name+"|"+target] = SignalMessage{Peer: name, SDP: sdp}
	return nil
}

func (s *MemorySignaler) PublishAnswer(_ context.Context, offerer, name, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[offerer+"|"+name] = SignalMessage{Peer: name, SDP: sdp}
	return nil
}

func (s *MemorySignaler) PollOffers(_ context.Context, name string) ([]SignalMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poll(s.offers, func(offerer, target string) bool { return target == name }), nil
}

func (s *MemorySignaler) PollAnswers(_ context.Context, name string) ([]SignalMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poll(s.answers, func(offerer, target string) bool { return offerer == name }), nil
}

// poll returns matching messages and clears them. Must be called with
// s.mu held.
func (s *MemorySignaler) poll(store map[string]SignalMessage, match func(offerer, target string) bool) []SignalMessage {
	var messages []SignalMessage
	for key, message := range store {
		offerer, target, ok := strings.Cut(key, "|")
		if !ok || !match(offerer, target) {
			continue
		}
		messages = append(messages, message)
		delete(store, key)
	}
	return messages
}
