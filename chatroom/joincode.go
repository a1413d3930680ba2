// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package chatroom

import (
	"crypto/rand"
	"fmt"
)

// joinCodeAlphabet excludes 0/O and 1/I so a code read off a screen
// cannot be mistyped.
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// joinCodeLength is short enough to say out loud, long enough that
// two simultaneous rooms on one network will not collide in practice.
const joinCodeLength = 4

// GenerateJoinCode returns a fresh room code. The code is immutable
// for the room's lifetime once a host starts with it.
func GenerateJoinCode() (string, error) {
	raw := make([]byte, joinCodeLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating join code: %w", err)
	}
	code := make([]byte, joinCodeLength)
	for i, b := range raw {
		code[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(code), nil
}

// MatchesJoinCode reports whether a host advertising the given code
// satisfies the joiner's wanted code. An empty wanted code accepts
// any host.
func MatchesJoinCode(wanted, advertised string) bool {
	return wanted == "" || wanted == advertised
}
