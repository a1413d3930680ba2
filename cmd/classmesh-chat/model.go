// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/classmesh-foundation/classmesh/chatroom"
	"github.com/classmesh-foundation/classmesh/wire"
)

// turnMsg wraps a chat turn for delivery through the bubbletea
// message loop. Turns arrive here both for remote speakers and for
// the local participant's own sends.
type turnMsg struct {
	turn wire.ChatTurn
}

// rosterMsg signals that the room roster or connection status
// changed; the model re-reads both from the coordinator.
type rosterMsg struct{}

// transcriptLimit caps the on-screen transcript. Older turns stay in
// the session record and still appear in the exported archive.
const transcriptLimit = 500

type roomModel struct {
	coordinator *chatroom.Coordinator
	input       textinput.Model

	displayName string
	colorTag    string
	hosting     bool
	joinCode    string

	status string
	roster []wire.ChatParticipant
	turns  []wire.ChatTurn
	typing time.Time

	width  int
	height int

	headerStyle lipgloss.Style
	codeStyle   lipgloss.Style
	rosterStyle lipgloss.Style
	timeStyle   lipgloss.Style
}

func newRoomModel(coordinator *chatroom.Coordinator, displayName, colorTag string, hosting bool, joinCode string) roomModel {
	input := textinput.New()
	input.Placeholder = "say something"
	input.Prompt = "> "
	input.CharLimit = 500
	input.Focus()

	return roomModel{
		coordinator: coordinator,
		input:       input,
		displayName: displayName,
		colorTag:    colorTag,
		hosting:     hosting,
		joinCode:    joinCode,
		status:      coordinator.Status(),
		roster:      coordinator.Session().Roster,
		headerStyle: lipgloss.NewStyle().Bold(true),
		codeStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		rosterStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		timeStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

func (model roomModel) Init() tea.Cmd {
	return textinput.Blink
}

func (model roomModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.input.Width = message.Width - 4
		return model, nil

	case turnMsg:
		model.turns = append(model.turns, message.turn)
		if len(model.turns) > transcriptLimit {
			model.turns = model.turns[len(model.turns)-transcriptLimit:]
		}
		return model, nil

	case rosterMsg:
		model.status = model.coordinator.Status()
		model.roster = model.coordinator.Session().Roster
		return model, nil

	case tea.KeyMsg:
		switch message.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return model, tea.Quit
		case tea.KeyEnter:
			return model.sendTurn()
		}
	}

	var command tea.Cmd
	model.input, command = model.input.Update(message)
	if model.typing.IsZero() && model.input.Value() != "" {
		model.typing = time.Now()
	}
	return model, command
}

// sendTurn submits the input buffer as a chat turn. The turn's span
// runs from the first keystroke of this line to the moment enter was
// pressed, mirroring how a spoken turn has a start and an end.
func (model roomModel) sendTurn() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(model.input.Value())
	if text == "" {
		return model, nil
	}
	started := model.typing
	if started.IsZero() {
		started = time.Now()
	}
	model.coordinator.Say(text, started, time.Now())
	model.input.Reset()
	model.typing = time.Time{}
	return model, nil
}

func (model roomModel) View() string {
	var view strings.Builder

	title := model.headerStyle.Render("classmesh chat")
	if model.hosting {
		title += "  join code " + model.codeStyle.Render(model.joinCode)
	}
	view.WriteString(title + "\n")
	view.WriteString(model.rosterStyle.Render(model.statusLine()) + "\n\n")

	for _, turn := range model.visibleTurns() {
		stamp := model.timeStyle.Render(turn.StartedAt.Local().Format("15:04"))
		speaker := lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#" + turn.ColorTag)).
			Render(turn.DisplayName)
		view.WriteString(fmt.Sprintf("%s %s: %s\n", stamp, speaker, turn.Text))
	}

	view.WriteString("\n" + model.input.View() + "\n")
	view.WriteString(model.timeStyle.Render("enter sends · esc quits"))
	return view.String()
}

func (model roomModel) statusLine() string {
	names := make([]string, 0, len(model.roster))
	for _, participant := range model.roster {
		names = append(names, participant.DisplayName)
	}
	if len(names) == 0 {
		return model.status
	}
	return model.status + " · " + strings.Join(names, ", ")
}

// visibleTurns trims the transcript to fit the terminal height,
// leaving room for the header, status, input, and help lines.
func (model roomModel) visibleTurns() []wire.ChatTurn {
	if model.height == 0 {
		return model.turns
	}
	room := model.height - 6
	if room < 1 {
		room = 1
	}
	if len(model.turns) <= room {
		return model.turns
	}
	return model.turns[len(model.turns)-room:]
}
