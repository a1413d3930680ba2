// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package classroom

import "fmt"

// Status renders the human-readable connection status. It is a pure
// function of the advertising/browsing flags and the roster size, so
// the string can never drift from the roster it describes.
func Status(advertising, browsing bool, rosterSize int) string {
	switch {
	case advertising && browsing:
		if rosterSize == 0 {
			return "Teacher mode – listening for students"
		}
		return fmt.Sprintf("Teacher mode – %d student(s) connected", rosterSize)
	case advertising:
		return "Student mode – listening for alerts"
	default:
		return "Disconnected"
	}
}
