// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatroom runs join-code-keyed peer-to-peer chat rooms. A
// host generates a short code and advertises it; participants browse
// and connect to the host whose code matches. Connected peers
// exchange participant info exactly once each and then trade chat
// turns, which accumulate in an append-only session transcript.
package chatroom

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/classmesh-foundation/classmesh/wire"
)

// Session is the record of one chat room: who was there and every
// turn spoken, in arrival order. Turns are append-only and never
// edited, so there is no conflict resolution; a received turn is
// authoritative.
//
// Session is a plain value owned by its coordinator's event loop. The
// class metadata fields are filled in by the UI layer before the
// session is archived.
type Session struct {
	ID        uuid.UUID `cbor:"id"`
	CreatedAt time.Time `cbor:"createdAt"`

	Title      string `cbor:"title"`
	Topic      string `cbor:"topic"`
	Subject    string `cbor:"subject"`
	Teacher    string `cbor:"teacher"`
	Period     string `cbor:"period"`
	Term       string `cbor:"term"`
	TermNumber string `cbor:"termNumber"`

	Roster []wire.ChatParticipant `cbor:"roster"`
	Turns  []wire.ChatTurn        `cbor:"turns"`

	Ongoing bool    `cbor:"ongoing"`
	Summary *string `cbor:"summary,omitempty"`
}

// NewSession creates an ongoing session with default term metadata.
func NewSession(title string) *Session {
	return &Session{
		ID:         uuid.New(),
		CreatedAt:  time.Now(),
		Title:      title,
		Term:       "Semester",
		TermNumber: "1",
		Ongoing:    true,
	}
}

// AddParticipant upserts a roster entry by ID. A participant is never
// removed mid-session; disconnection only shows as absence from the
// live peer set, not as a hole in the record.
func (s *Session) AddParticipant(participant wire.ChatParticipant) {
	for i, existing := range s.Roster {
		if existing.ID == participant.ID {
			s.Roster[i] = participant
			return
		}
	}
	s.Roster = append(s.Roster, participant)
}

// Participant returns the roster entry for an ID.
func (s *Session) Participant(id string) (wire.ChatParticipant, bool) {
	for _, participant := range s.Roster {
		if participant.ID == id {
			return participant, true
		}
	}
	return wire.ChatParticipant{}, false
}

// AddTurn appends one turn to the transcript.
func (s *Session) AddTurn(turn wire.ChatTurn) {
	s.Turns = append(s.Turns, turn)
}

// Duration spans from the first turn's start to the last turn's end.
// Zero with no turns.
func (s *Session) Duration() time.Duration {
	if len(s.Turns) == 0 {
		return 0
	}
	return s.Turns[len(s.Turns)-1].EndedAt.Sub(s.Turns[0].StartedAt)
}

// TermDisplay abbreviates the term metadata for list views: "S1",
// "T2", "Q3", or the raw term for anything unrecognized.
func (s *Session) TermDisplay() string {
	switch strings.ToLower(s.Term) {
	case "semester":
		return "S" + s.TermNumber
	case "trimester":
		return "T" + s.TermNumber
	case "quarter":
		return "Q" + s.TermNumber
	default:
		return s.Term + " " + s.TermNumber
	}
}

// TranscriptText flattens the transcript to "Name: text" lines. This
// is the whole contract with the external summary generator.
func (s *Session) TranscriptText() string {
	lines := make([]string, len(s.Turns))
	for i, turn := range s.Turns {
		lines[i] = turn.DisplayName + ": " + turn.Text
	}
	return strings.Join(lines, "\n")
}
