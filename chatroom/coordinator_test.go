// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package chatroom

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/classmesh-foundation/classmesh/discovery"
	"github.com/classmesh-foundation/classmesh/lib/codec"
	"github.com/classmesh-foundation/classmesh/lib/testutil"
	"github.com/classmesh-foundation/classmesh/transport"
	"github.com/classmesh-foundation/classmesh/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type roomHarness struct {
	mesh    *discovery.MemoryMesh
	network *transport.MemoryNetwork
}

func newRoomHarness() *roomHarness {
	return &roomHarness{
		mesh:    discovery.NewMemoryMesh(),
		network: transport.NewMemoryNetwork(),
	}
}

func (h *roomHarness) host(t *testing.T, node, name string, turns chan wire.ChatTurn) (*Coordinator, string) {
	t.Helper()
	coordinator := New(Config{
		DisplayName: name,
		ColorTag:    "FF6B6B",
		Advertiser:  h.mesh.Node(node),
		Transport:   h.network.Transport(node),
		Logger:      testLogger(),
		OnTurn:      func(turn wire.ChatTurn) { turns <- turn },
	})
	t.Cleanup(func() { coordinator.Stop() })
	code, err := coordinator.StartHost(context.Background())
	if err != nil {
		t.Fatalf("StartHost: %v", err)
	}
	return coordinator, code
}

func (h *roomHarness) participant(t *testing.T, node, name, code string, turns chan wire.ChatTurn) *Coordinator {
	t.Helper()
	coordinator := New(Config{
		DisplayName: name,
		ColorTag:    "45B7D1",
		Browser:     h.mesh.Node(node),
		Transport:   h.network.Transport(node),
		Logger:      testLogger(),
		OnTurn:      func(turn wire.ChatTurn) { turns <- turn },
	})
	t.Cleanup(func() { coordinator.Stop() })
	if err := coordinator.StartParticipant(context.Background(), code); err != nil {
		t.Fatalf("StartParticipant: %v", err)
	}
	return coordinator
}

func TestHostAndParticipantExchangeInfo(t *testing.T) {
	harness := newRoomHarness()
	hostTurns := make(chan wire.ChatTurn, 8)
	host, code := harness.host(t, "lee", "Ms. Lee", hostTurns)

	if got := host.Status(); got != "Host - waiting for participants" {
		t.Fatalf("initial host status = %q", got)
	}

	adaTurns := make(chan wire.ChatTurn, 8)
	ada := harness.participant(t, "ada", "Ada", code, adaTurns)

	testutil.Eventually(t, 2*time.Second, func() bool {
		return host.Status() == "Host - 1 participant(s)"
	}, "host status = %q", host.Status())
	testutil.Eventually(t, 2*time.Second, func() bool {
		return ada.Status() == "Connected to room"
	}, "participant status = %q", ada.Status())

	// Both rosters carry both participants.
	testutil.Eventually(t, 2*time.Second, func() bool {
		return len(host.Roster()) == 2 && len(ada.Roster()) == 2
	}, "host roster = %v, participant roster = %v", host.Roster(), ada.Roster())
}

func TestJoinCodeMatching(t *testing.T) {
	harness := newRoomHarness()
	hostTurns := make(chan wire.ChatTurn, 8)
	host, code := harness.host(t, "lee", "Ms. Lee", hostTurns)

	// A wrong code never joins.
	wrongCode := "ZZZZ"
	if wrongCode == code {
		wrongCode = "YYYY"
	}
	strangerTurns := make(chan wire.ChatTurn, 8)
	stranger := harness.participant(t, "stranger", "Stranger", wrongCode, strangerTurns)

	time.Sleep(300 * time.Millisecond)
	if got := stranger.Status(); got != "Connecting..." {
		t.Errorf("wrong-code participant status = %q, want Connecting...", got)
	}
	if got := host.Status(); got != "Host - waiting for participants" {
		t.Errorf("host status = %q, want waiting", got)
	}

	// An empty code accepts the first host discovered.
	anyTurns := make(chan wire.ChatTurn, 8)
	anyone := harness.participant(t, "anyone", "Anyone", "", anyTurns)
	testutil.Eventually(t, 2*time.Second, func() bool {
		return anyone.Status() == "Connected to room"
	}, "empty-code participant status = %q", anyone.Status())
}

func TestTurnsBroadcastAndRecordLocally(t *testing.T) {
	harness := newRoomHarness()
	hostTurns := make(chan wire.ChatTurn, 8)
	host, code := harness.host(t, "lee", "Ms. Lee", hostTurns)
	adaTurns := make(chan wire.ChatTurn, 8)
	ada := harness.participant(t, "ada", "Ada", code, adaTurns)

	testutil.Eventually(t, 2*time.Second, func() bool {
		return ada.Status() == "Connected to room"
	}, "participant never joined")

	now := time.Now()
	turn := wire.ChatTurn{
		ID: uuid.New(), SpeakerID: "ada", DisplayName: "Ada", ColorTag: "45B7D1",
		Text: "photosynthesis needs light", StartedAt: now, EndedAt: now.Add(2 * time.Second),
	}
	ada.SendTurn(turn)

	// The sender records the turn locally and the host receives it.
	local := testutil.RequireReceive(t, adaTurns, 2*time.Second, "local delivery")
	if local.ID != turn.ID {
		t.Errorf("local turn = %s, want %s", local.ID, turn.ID)
	}
	remote := testutil.RequireReceive(t, hostTurns, 2*time.Second, "host delivery")
	if remote.ID != turn.ID || remote.Text != turn.Text {
		t.Errorf("host turn = %+v", remote)
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		session := host.Session()
		return len(session.Turns) == 1 && session.Turns[0].ID == turn.ID
	}, "host transcript never recorded the turn")
	hostSession := host.Session()
	if transcript := hostSession.TranscriptText(); transcript != "Ada: photosynthesis needs light" {
		t.Errorf("transcript = %q", transcript)
	}
}

func TestSayStampsLocalIdentity(t *testing.T) {
	harness := newRoomHarness()
	hostTurns := make(chan wire.ChatTurn, 8)
	host, code := harness.host(t, "lee", "Ms. Lee", hostTurns)
	adaTurns := make(chan wire.ChatTurn, 8)
	ada := harness.participant(t, "ada", "Ada", code, adaTurns)

	testutil.Eventually(t, 2*time.Second, func() bool {
		return ada.Status() == "Connected to room"
	}, "participant never joined")

	started := time.Now().Add(-3 * time.Second)
	ada.Say("mitochondria", started, time.Now())

	local := testutil.RequireReceive(t, adaTurns, 2*time.Second, "local delivery")
	if local.DisplayName != "Ada" || local.ColorTag != "45B7D1" {
		t.Errorf("local turn identity = %q/%q", local.DisplayName, local.ColorTag)
	}
	if local.SpeakerID == "" || local.ID == uuid.Nil {
		t.Errorf("turn missing identifiers: %+v", local)
	}

	remote := testutil.RequireReceive(t, hostTurns, 2*time.Second, "host delivery")
	if remote.SpeakerID != local.SpeakerID || remote.Text != "mitochondria" {
		t.Errorf("host turn = %+v", remote)
	}

	// The speaker is the roster entry the participant announced.
	roster := host.Roster()
	found := false
	for _, participant := range roster {
		if participant.ID == local.SpeakerID {
			found = true
		}
	}
	if !found {
		t.Errorf("speaker %s not in host roster %v", local.SpeakerID, roster)
	}
}

// TestParticipantInfoSentExactlyOnce drives the host with a raw
// transport peer so the participant-info frames can be counted: the
// host must answer the handshake with exactly one info message, no
// matter how long the link stays up.
func TestParticipantInfoSentExactlyOnce(t *testing.T) {
	harness := newRoomHarness()
	hostTurns := make(chan wire.ChatTurn, 8)
	_, _ = harness.host(t, "lee", "Ms. Lee", hostTurns)

	var mu sync.Mutex
	infoFrames := 0
	raw := harness.network.Transport("raw")
	handlers := transport.Handlers{
		Payload: func(link transport.Link, payload []byte) {
			var envelope wire.Envelope
			if err := codec.Unmarshal(payload, &envelope); err == nil && envelope.Kind == wire.KindParticipant {
				mu.Lock()
				infoFrames++
				mu.Unlock()
			}
		},
	}
	if err := raw.Start(context.Background(), handlers); err != nil {
		t.Fatalf("Start: %v", err)
	}
	link, err := raw.Dial(context.Background(), "lee")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	send := func(message any) {
		body, err := codec.Marshal(message)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		frame, err := codec.Marshal(wire.Envelope{Kind: wire.KindParticipant, Payload: body})
		if err != nil {
			t.Fatalf("Marshal envelope: %v", err)
		}
		if err := link.Send(frame); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	// Announce ourselves twice; a loop-free host replies exactly once
	// in total: its unprompted hello on link open counts as the reply.
	send(wire.ChatParticipant{ID: "raw-1", DisplayName: "Raw", ColorTag: "98D8C8"})
	send(wire.ChatParticipant{ID: "raw-1", DisplayName: "Raw", ColorTag: "98D8C8"})

	time.Sleep(500 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if infoFrames != 1 {
		t.Fatalf("received %d participant-info frames from host, want exactly 1", infoFrames)
	}
}

func TestCoordinatorStopIdempotent(t *testing.T) {
	harness := newRoomHarness()
	hostTurns := make(chan wire.ChatTurn, 8)
	host, code := harness.host(t, "lee", "Ms. Lee", hostTurns)

	if err := host.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := host.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if got := host.Status(); got != "Disconnected" {
		t.Errorf("status after stop = %q", got)
	}

	// A participant arriving after stop cannot join the dead room.
	turns := make(chan wire.ChatTurn, 8)
	late := harness.participant(t, "late", "Late", code, turns)
	time.Sleep(300 * time.Millisecond)
	if got := late.Status(); got != "Connecting..." {
		t.Errorf("late participant status = %q, want Connecting...", got)
	}
}
