// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package chatroom

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/classmesh-foundation/classmesh/wire"
)

func sampleTurn(speaker, name, text string, at time.Time) wire.ChatTurn {
	return wire.ChatTurn{
		ID:          uuid.New(),
		SpeakerID:   speaker,
		DisplayName: name,
		ColorTag:    "4ECDC4",
		Text:        text,
		StartedAt:   at,
		EndedAt:     at.Add(3 * time.Second),
	}
}

func TestSessionRosterUpsert(t *testing.T) {
	session := NewSession("Biology")
	session.AddParticipant(wire.ChatParticipant{ID: "P1", DisplayName: "Ada", ColorTag: "FF6B6B"})
	session.AddParticipant(wire.ChatParticipant{ID: "P2", DisplayName: "Sam", ColorTag: "45B7D1"})

	// Re-announcing with a new name replaces in place, never
	// duplicates.
	session.AddParticipant(wire.ChatParticipant{ID: "P1", DisplayName: "Adaline", ColorTag: "FF6B6B"})

	if len(session.Roster) != 2 {
		t.Fatalf("roster size = %d, want 2", len(session.Roster))
	}
	participant, ok := session.Participant("P1")
	if !ok || participant.DisplayName != "Adaline" {
		t.Errorf("P1 = %+v", participant)
	}
}

func TestSessionTranscriptText(t *testing.T) {
	session := NewSession("Biology")
	base := time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)
	session.AddTurn(sampleTurn("P1", "Ada", "photosynthesis needs light", base))
	session.AddTurn(sampleTurn("P2", "Sam", "and chlorophyll", base.Add(10*time.Second)))

	want := "Ada: photosynthesis needs light\nSam: and chlorophyll"
	if got := session.TranscriptText(); got != want {
		t.Errorf("TranscriptText = %q, want %q", got, want)
	}
}

func TestSessionDuration(t *testing.T) {
	session := NewSession("Biology")
	if session.Duration() != 0 {
		t.Errorf("empty session duration = %v, want 0", session.Duration())
	}
	base := time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)
	session.AddTurn(sampleTurn("P1", "Ada", "first", base))
	session.AddTurn(sampleTurn("P2", "Sam", "last", base.Add(40*time.Second)))

	if got := session.Duration(); got != 43*time.Second {
		t.Errorf("Duration = %v, want 43s", got)
	}
}

func TestSessionTermDisplay(t *testing.T) {
	tests := []struct {
		term, number, want string
	}{
		{"Semester", "1", "S1"},
		{"Trimester", "2", "T2"},
		{"Quarter", "3", "Q3"},
		{"Block", "4", "Block 4"},
	}
	for _, tt := range tests {
		session := NewSession("x")
		session.Term = tt.term
		session.TermNumber = tt.number
		if got := session.TermDisplay(); got != tt.want {
			t.Errorf("TermDisplay(%s, %s) = %q, want %q", tt.term, tt.number, got, tt.want)
		}
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	session := NewSession("Biology")
	session.Topic = "photosynthesis"
	session.Teacher = "Ms. Lee"
	session.Period = "3"
	session.Ongoing = false
	summary := "the class discussed photosynthesis"
	session.Summary = &summary
	session.AddParticipant(wire.ChatParticipant{ID: "P1", DisplayName: "Ada", ColorTag: "FF6B6B"})
	base := time.Date(2026, time.March, 9, 10, 0, 0, 500000000, time.UTC)
	session.AddTurn(sampleTurn("P1", "Ada", "needs light", base))

	var buffer bytes.Buffer
	if err := ExportArchive(&buffer, session); err != nil {
		t.Fatalf("ExportArchive: %v", err)
	}

	restored, err := ReadArchive(&buffer)
	if err != nil {
		t.Fatalf("ReadArchive: %v", err)
	}
	if restored.ID != session.ID || restored.Topic != session.Topic || restored.Teacher != session.Teacher {
		t.Errorf("restored = %+v", restored)
	}
	if restored.Summary == nil || *restored.Summary != summary {
		t.Errorf("summary = %v", restored.Summary)
	}
	if len(restored.Turns) != 1 || restored.Turns[0].Text != "needs light" {
		t.Fatalf("turns = %+v", restored.Turns)
	}
	if !restored.Turns[0].StartedAt.Equal(base) {
		t.Errorf("turn timestamp = %v, want %v", restored.Turns[0].StartedAt, base)
	}
	if !restored.CreatedAt.Equal(session.CreatedAt) {
		t.Errorf("createdAt = %v, want %v", restored.CreatedAt, session.CreatedAt)
	}
}
