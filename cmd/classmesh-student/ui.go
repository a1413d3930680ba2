// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/classmesh-foundation/classmesh/wire"
)

// bannerUI renders alert banners and capture prompts on the terminal.
// It implements alert.Presenter; the pipeline serializes calls.
type bannerUI struct {
	out io.Writer

	bannerStyle lipgloss.Style
	promptStyle lipgloss.Style
}

func newBannerUI(out *os.File) *bannerUI {
	ui := &bannerUI{out: out}
	if term.IsTerminal(int(out.Fd())) {
		ui.bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder())
		ui.promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("3"))
	}
	return ui
}

func (ui *bannerUI) ShowPrompt(a wire.Alert) {
	fmt.Fprintln(ui.out, ui.promptStyle.Render(
		fmt.Sprintf("%s: something important is being said. Start capture? [y/n]", a.SenderName)))
}

func (ui *bannerUI) ShowBanner(a wire.Alert) {
	fmt.Fprintln(ui.out, ui.bannerStyle.Render(bannerText(a)))
}

func (ui *bannerUI) HideBanner() {}

func bannerText(a wire.Alert) string {
	var headline string
	switch a.Kind {
	case wire.AlertImportantNow:
		headline = fmt.Sprintf("%s: important now", a.SenderName)
	case wire.AlertCalledByName:
		name := "you"
		if a.TargetName != nil {
			name = *a.TargetName
		}
		headline = fmt.Sprintf("%s, look up! (from %s)", name, a.SenderName)
	default:
		headline = fmt.Sprintf("alert from %s", a.SenderName)
	}
	if a.Message != nil && *a.Message != "" {
		headline += "\n" + *a.Message
	}
	return headline
}

// terminalFeedback is the terminal analog of the haptic/sound cue: a
// bell, doubled for urgent alerts.
type terminalFeedback struct {
	out io.Writer
}

func (f terminalFeedback) Play(kind wire.AlertKind) error {
	if kind == wire.AlertImportantNow {
		_, err := fmt.Fprint(f.out, "\a\a")
		return err
	}
	_, err := fmt.Fprint(f.out, "\a")
	return err
}

// logCapture stands in for the external capture service boundary.
type logCapture struct {
	logger *slog.Logger
}

func (c logCapture) Start() {
	c.logger.Info("capture requested")
}
