// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity defines the stable participant identity that the
// reconciliation layer maps transient transport connections onto. A
// classroom student keeps the same ID across app restarts and renames;
// a chat participant gets a fresh token per join.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Role is the advertised capability tag used to filter which discovered
// peers are worth inviting.
type Role string

const (
	// RoleTeacher and RoleStudent are the classroom topology roles: the
	// teacher browses and invites, students advertise and accept.
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"

	// RoleHost and RoleParticipant are the chat room roles, keyed by
	// join code instead of a stable ID.
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// Peer is a reconciled participant identity, decoupled from whatever
// transport connection currently carries it.
type Peer struct {
	// ID is the stable opaque identity key. For classroom students it
	// survives reconnects; for chat participants it is a fresh token
	// per join.
	ID string

	// DisplayName is the human-visible name. Mutable: a student can
	// relaunch with a new name while keeping the same ID.
	DisplayName string

	// Role is the peer's advertised role.
	Role Role

	// Extra carries role-specific advertisement fields (color tag,
	// join code) that the reconciler does not interpret.
	Extra map[string]string
}

// stableIDContext domain-separates classmesh identity derivation from
// any other blake3 use of the same seed material.
const stableIDContext = "classmesh student identity v1"

// StableID derives the classroom identity key from a device-local seed.
// The derivation is deterministic: the same seed always yields the same
// ID, which is what lets a relaunched student supersede its old
// connection instead of appearing as a second roster entry.
func StableID(seed []byte) string {
	derived := make([]byte, 32)
	blake3.DeriveKey(stableIDContext, seed, derived)
	return hex.EncodeToString(derived[:16])
}

// SessionToken returns a random 128-bit identity token for a chat join.
// Chat identity is deliberately not stable across joins.
func SessionToken() (string, error) {
	token := make([]byte, 16)
	if _, err := rand.Read(token); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return hex.EncodeToString(token), nil
}

// VisibleName builds the advertised device name for a student: the
// display name plus the first four characters of the identity key,
// uppercased. Two students named "Sam" stay distinguishable on the
// teacher's screen.
func VisibleName(displayName, id string) string {
	suffix := id
	if len(suffix) > 4 {
		suffix = suffix[:4]
	}
	return displayName + "-" + strings.ToUpper(suffix)
}
