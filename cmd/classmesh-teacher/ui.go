// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/classmesh-foundation/classmesh/identity"
)

// teacherUI renders the interactive teacher console. Styles collapse
// to plain text when stdout is not a terminal, so output stays
// greppable under redirection.
type teacherUI struct {
	out io.Writer

	statusStyle lipgloss.Style
	nameStyle   lipgloss.Style
	errorStyle  lipgloss.Style
	sentStyle   lipgloss.Style
}

func newTeacherUI(out *os.File) *teacherUI {
	ui := &teacherUI{out: out}
	if term.IsTerminal(int(out.Fd())) {
		ui.statusStyle = lipgloss.NewStyle().Bold(true)
		ui.nameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
		ui.errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
		ui.sentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	}
	return ui
}

func (ui *teacherUI) prompt() {
	fmt.Fprint(ui.out, "> ")
}

func (ui *teacherUI) printStatus(status string) {
	fmt.Fprintln(ui.out, ui.statusStyle.Render(status))
}

func (ui *teacherUI) printSent(kind, target string) {
	fmt.Fprintln(ui.out, ui.sentStyle.Render(fmt.Sprintf("sent %s to %s", kind, target)))
}

func (ui *teacherUI) printError(err error) {
	fmt.Fprintln(ui.out, ui.errorStyle.Render(err.Error()))
}

func (ui *teacherUI) printRoster(roster []identity.Peer, status string) {
	fmt.Fprintln(ui.out, ui.statusStyle.Render(status))
	for _, peer := range roster {
		fmt.Fprintf(ui.out, "  %s  %s\n", ui.nameStyle.Render(peer.DisplayName), peer.ID)
	}
}
