// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/classmesh-foundation/classmesh/lib/codec"
)

func TestAlertRoundTripAllFields(t *testing.T) {
	original := NewAlert(AlertCalledByName, "Ms. Lee").
		Targeted("S1", "Sam").
		WithMessage("look up please")

	raw, err := codec.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Alert
	if err := codec.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.ID != original.ID {
		t.Errorf("ID = %s, want %s", decoded.ID, original.ID)
	}
	if decoded.Kind != original.Kind || decoded.SenderName != original.SenderName {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.TargetID == nil || *decoded.TargetID != "S1" {
		t.Errorf("TargetID = %v", decoded.TargetID)
	}
	if decoded.TargetName == nil || *decoded.TargetName != "Sam" {
		t.Errorf("TargetName = %v", decoded.TargetName)
	}
	if decoded.Message == nil || *decoded.Message != "look up please" {
		t.Errorf("Message = %v", decoded.Message)
	}
	if !decoded.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", decoded.CreatedAt, original.CreatedAt)
	}
}

func TestAlertRoundTripOptionalAbsence(t *testing.T) {
	original := NewAlert(AlertImportantNow, "Ms. Lee")

	raw, err := codec.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Alert
	if err := codec.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.TargetID != nil || decoded.TargetName != nil || decoded.Message != nil {
		t.Errorf("optional fields not absent: %+v", decoded)
	}
}

func TestChatTurnRoundTripPreservesOrdering(t *testing.T) {
	base := time.Date(2026, time.March, 9, 10, 15, 0, 123456789, time.UTC)
	first := ChatTurn{
		ID: uuid.New(), SpeakerID: "P1", DisplayName: "Ada", ColorTag: "FF6B6B",
		Text: "first", StartedAt: base, EndedAt: base.Add(time.Second),
	}
	second := ChatTurn{
		ID: uuid.New(), SpeakerID: "P2", DisplayName: "Sam", ColorTag: "45B7D1",
		Text: "second", StartedAt: base.Add(time.Millisecond), EndedAt: base.Add(2 * time.Second),
	}

	decode := func(turn ChatTurn) ChatTurn {
		raw, err := codec.Marshal(turn)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		var out ChatTurn
		if err := codec.Unmarshal(raw, &out); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		return out
	}

	a, b := decode(first), decode(second)
	if !a.StartedAt.Equal(first.StartedAt) || !b.StartedAt.Equal(second.StartedAt) {
		t.Errorf("timestamps drifted: %v / %v", a.StartedAt, b.StartedAt)
	}
	// Millisecond creation-time spacing must survive the wire so turns
	// stay orderable by StartedAt.
	if !a.StartedAt.Before(b.StartedAt) {
		t.Errorf("ordering lost: %v not before %v", a.StartedAt, b.StartedAt)
	}
	if a.Duration() != time.Second {
		t.Errorf("Duration = %v, want 1s", a.Duration())
	}
}
