// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the typed messages peers exchange and the
// router that moves them between application handlers and transport
// links. Every message travels as a CBOR envelope tagging the payload
// kind, so receivers dispatch without guessing; payloads from older
// builds that omit the envelope are decoded by trial in a fixed
// priority order.
package wire

import (
	"time"

	"github.com/google/uuid"

	"github.com/classmesh-foundation/classmesh/lib/codec"
)

// AlertKind distinguishes the teacher alert flavors.
type AlertKind string

const (
	// AlertImportantNow signals "something important is being said".
	AlertImportantNow AlertKind = "important_now"

	// AlertCalledByName signals "<name>, look up!".
	AlertCalledByName AlertKind = "called_by_name"
)

// Alert is one teacher-to-student notification. Immutable once
// constructed; it is never persisted, only delivered.
type Alert struct {
	ID         uuid.UUID `cbor:"id"`
	Kind       AlertKind `cbor:"kind"`
	SenderName string    `cbor:"senderName"`

	// TargetID is the stable student ID of the addressee; nil means
	// broadcast to every connected student.
	TargetID   *string `cbor:"targetId,omitempty"`
	TargetName *string `cbor:"targetName,omitempty"`

	// Message is optional extra text shown in the banner.
	Message *string `cbor:"message,omitempty"`

	CreatedAt time.Time `cbor:"createdAt"`
}

// NewAlert constructs an alert with a fresh ID and the current time.
func NewAlert(kind AlertKind, senderName string) Alert {
	return Alert{
		ID:         uuid.New(),
		Kind:       kind,
		SenderName: senderName,
		CreatedAt:  time.Now(),
	}
}

// Targeted returns a copy of the alert addressed to one student.
func (a Alert) Targeted(studentID, studentName string) Alert {
	a.TargetID = &studentID
	a.TargetName = &studentName
	return a
}

// WithMessage returns a copy of the alert carrying extra text.
func (a Alert) WithMessage(text string) Alert {
	a.Message = &text
	return a
}

// ChatTurn is one spoken turn in a chat session. Immutable once
// constructed; sessions append turns and never edit them.
type ChatTurn struct {
	ID          uuid.UUID `cbor:"id"`
	SpeakerID   string    `cbor:"speakerId"`
	DisplayName string    `cbor:"displayName"`
	ColorTag    string    `cbor:"colorTag"`
	Text        string    `cbor:"text"`
	StartedAt   time.Time `cbor:"startedAt"`
	EndedAt     time.Time `cbor:"endedAt"`
}

// Duration is how long the turn was spoken for.
func (t ChatTurn) Duration() time.Duration {
	return t.EndedAt.Sub(t.StartedAt)
}

// ChatParticipant is one roster entry in a chat session, unique by ID.
type ChatParticipant struct {
	ID          string `cbor:"id"`
	DisplayName string `cbor:"displayName"`
	ColorTag    string `cbor:"colorTag"`
}

// Envelope wraps every payload on the wire with its kind.
type Envelope struct {
	Kind    string           `cbor:"kind"`
	Payload codec.RawMessage `cbor:"payload"`
}

// Envelope kinds.
const (
	KindAlert       = "alert"
	KindChatTurn    = "chat_turn"
	KindParticipant = "participant"
)
