// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package chatroom

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classmesh-foundation/classmesh/discovery"
	"github.com/classmesh-foundation/classmesh/identity"
	"github.com/classmesh-foundation/classmesh/transport"
	"github.com/classmesh-foundation/classmesh/wire"
)

// handshakeState tracks the participant-info exchange with one peer.
// Each side sends its own info exactly once; the explicit state (not
// a bare flag) is what keeps the exchange from looping forever.
type handshakeState int

const (
	handshakeUnknown handshakeState = iota
	handshakeInfoSent
	handshakeInfoExchanged
)

// Config wires a Coordinator to its collaborators.
type Config struct {
	// DisplayName and ColorTag identify this user in the room.
	DisplayName string
	ColorTag    string

	// Advertiser is required for hosting; a pure participant may
	// leave it nil.
	Advertiser discovery.Advertiser

	// Browser is required for joining; a pure host may leave it nil.
	Browser discovery.Browser

	Transport transport.Transport
	Logger    *slog.Logger

	// OnTurn receives every transcript addition, local sends
	// included, on the coordinator's event loop.
	OnTurn func(turn wire.ChatTurn)

	// OnRosterChange fires after every roster or live-set mutation,
	// on the coordinator's event loop.
	OnRosterChange func()
}

// Coordinator runs one chat room membership, as host or participant.
// A coordinator is single-use: start it, chat, stop it.
type Coordinator struct {
	config Config
	router *wire.Router
	logger *slog.Logger

	commands chan func()
	closed   chan struct{}
	stopOnce sync.Once

	// Loop-owned state.
	ctx        context.Context
	hosting    bool
	joined     bool
	joinCode   string
	self       wire.ChatParticipant
	session    *Session
	handshakes map[string]handshakeState // keyed by link ID
	liveByLink map[string]string         // link ID -> participant ID
	links      map[string]transport.Link

	snapshotMu sync.Mutex
	roster     []wire.ChatParticipant
	liveCount  int
	status     string
}

// New creates a coordinator. Call StartHost or StartParticipant.
func New(config Config) *Coordinator {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	c := &Coordinator{
		config:     config,
		logger:     config.Logger.With("component", "chatroom"),
		commands:   make(chan func(), 64),
		closed:     make(chan struct{}),
		handshakes: make(map[string]handshakeState),
		liveByLink: make(map[string]string),
		links:      make(map[string]transport.Link),
		status:     "Disconnected",
	}
	c.router = wire.NewRouter(wire.Handlers{
		ChatTurn: func(turn wire.ChatTurn, from transport.Link) {
			c.submit(func() { c.handleTurn(turn) })
		},
		Participant: func(participant wire.ChatParticipant, from transport.Link) {
			c.submit(func() { c.handleParticipantInfo(participant, from) })
		},
	}, c.logger)
	return c
}

// StartHost opens a room and returns its join code. The code is
// immutable for the room's lifetime.
func (c *Coordinator) StartHost(ctx context.Context) (string, error) {
	if c.config.Advertiser == nil {
		return "", fmt.Errorf("chatroom: hosting requires an advertiser")
	}
	code, err := GenerateJoinCode()
	if err != nil {
		return "", err
	}
	if err := c.start(ctx, true, code); err != nil {
		return "", err
	}

	self := discovery.PeerRef{
		ID:   c.config.DisplayName,
		Addr: c.config.Transport.Addr(),
	}
	meta := discovery.Metadata{
		discovery.KeyRole:        string(identity.RoleHost),
		discovery.KeyJoinCode:    code,
		discovery.KeyDisplayName: c.config.DisplayName,
		discovery.KeyColorTag:    c.config.ColorTag,
		discovery.KeyAddr:        c.config.Transport.Addr(),
	}
	if err := c.config.Advertiser.StartAdvertising(ctx, self, meta); err != nil {
		return "", err
	}
	return code, nil
}

// StartParticipant browses for a host and joins it. An empty joinCode
// accepts the first host discovered; otherwise only an exact match.
func (c *Coordinator) StartParticipant(ctx context.Context, joinCode string) error {
	if c.config.Browser == nil {
		return fmt.Errorf("chatroom: joining requires a browser")
	}
	if err := c.start(ctx, false, joinCode); err != nil {
		return err
	}

	onFound := func(ref discovery.PeerRef, meta discovery.Metadata) {
		c.submit(func() { c.handleHostFound(ref, meta) })
	}
	onLost := func(ref discovery.PeerRef) {}
	return c.config.Browser.StartBrowsing(ctx, onFound, onLost)
}

// start runs the shared setup: identity, session, transport, loop.
func (c *Coordinator) start(ctx context.Context, hosting bool, joinCode string) error {
	token, err := identity.SessionToken()
	if err != nil {
		return err
	}

	go c.run()

	handlers := transport.Handlers{
		LinkOpened: func(link transport.Link) {
			c.submit(func() { c.handleLinkOpened(link) })
		},
		LinkClosed: func(link transport.Link) {
			c.submit(func() { c.handleLinkClosed(link) })
		},
		Payload: func(link transport.Link, payload []byte) {
			c.router.Receive(payload, link)
		},
	}
	if err := c.config.Transport.Start(ctx, handlers); err != nil {
		return err
	}

	c.submit(func() {
		c.ctx = ctx
		c.hosting = hosting
		c.joinCode = joinCode
		c.self = wire.ChatParticipant{
			ID:          token,
			DisplayName: c.config.DisplayName,
			ColorTag:    c.config.ColorTag,
		}
		c.session = NewSession(c.config.DisplayName + "'s room")
		c.session.AddParticipant(c.self)
		c.publish()
	})
	return nil
}

// SendTurn broadcasts a turn to every connected peer and appends it
// to the local transcript. Fire-and-forget: with no peers connected
// the turn is still recorded locally.
func (c *Coordinator) SendTurn(turn wire.ChatTurn) {
	c.submit(func() {
		if err := c.router.Send(turn, ""); err != nil {
			c.logger.Debug("turn not sent to any peer", "turn", turn.ID, "error", err)
		}
		c.handleTurn(turn)
	})
}

// Say composes a turn attributed to the local participant and sends
// it. The span records when the speaker started and finished talking
// (or typing), so the archive keeps per-turn durations.
func (c *Coordinator) Say(text string, startedAt, endedAt time.Time) {
	c.submit(func() {
		turn := wire.ChatTurn{
			ID:          uuid.New(),
			SpeakerID:   c.self.ID,
			DisplayName: c.self.DisplayName,
			ColorTag:    c.self.ColorTag,
			Text:        text,
			StartedAt:   startedAt,
			EndedAt:     endedAt,
		}
		if err := c.router.Send(turn, ""); err != nil {
			c.logger.Debug("turn not sent to any peer", "turn", turn.ID, "error", err)
		}
		c.handleTurn(turn)
	})
}

// JoinCode returns the room code: the generated one for a host, the
// requested one for a participant.
func (c *Coordinator) JoinCode() string {
	result := make(chan string, 1)
	c.submit(func() { result <- c.joinCode })
	select {
	case code := <-result:
		return code
	case <-c.closed:
		return ""
	}
}

// Roster returns the session roster, self included. Entries persist
// for the whole session even after their peer disconnects.
func (c *Coordinator) Roster() []wire.ChatParticipant {
	c.snapshotMu.Lock()
	defer c.snapshotMu.Unlock()
	return append([]wire.ChatParticipant(nil), c.roster...)
}

// Status returns the human-readable room status.
func (c *Coordinator) Status() string {
	c.snapshotMu.Lock()
	defer c.snapshotMu.Unlock()
	return c.status
}

// Session returns a snapshot copy of the session record, for
// transcript rendering and archiving.
func (c *Coordinator) Session() Session {
	result := make(chan Session, 1)
	c.submit(func() {
		snapshot := *c.session
		snapshot.Roster = append([]wire.ChatParticipant(nil), c.session.Roster...)
		snapshot.Turns = append([]wire.ChatTurn(nil), c.session.Turns...)
		result <- snapshot
	})
	select {
	case snapshot := <-result:
		return snapshot
	case <-c.closed:
		return Session{}
	}
}

// Stop leaves the room and clears all state, handshake flags
// included. Idempotent and safe from any state.
func (c *Coordinator) Stop() error {
	c.stopOnce.Do(func() {
		close(c.closed)
		if c.config.Browser != nil {
			c.config.Browser.Stop()
		}
		if c.config.Advertiser != nil {
			c.config.Advertiser.Stop()
		}
		c.config.Transport.Close()

		c.snapshotMu.Lock()
		c.roster = nil
		c.liveCount = 0
		c.status = "Disconnected"
		c.snapshotMu.Unlock()
	})
	return nil
}

func (c *Coordinator) run() {
	for {
		select {
		case <-c.closed:
			return
		case command := <-c.commands:
			command()
		}
	}
}

func (c *Coordinator) submit(command func()) {
	select {
	case <-c.closed:
	case c.commands <- command:
	}
}

// handleHostFound reacts to a host announcement while browsing.
func (c *Coordinator) handleHostFound(ref discovery.PeerRef, meta discovery.Metadata) {
	if c.joined || c.hosting {
		return
	}
	if meta[discovery.KeyRole] != string(identity.RoleHost) {
		return
	}
	advertised := meta[discovery.KeyJoinCode]
	if advertised == "" {
		return
	}
	if !MatchesJoinCode(c.joinCode, advertised) {
		c.logger.Debug("join code mismatch",
			"wanted", c.joinCode, "advertised", advertised, "host", ref.ID)
		return
	}
	addr := meta[discovery.KeyAddr]
	if addr == "" {
		addr = ref.Addr
	}

	c.joined = true
	c.logger.Info("joining room", "host", ref.ID, "code", advertised)

	go func() {
		link, err := c.config.Transport.Dial(c.ctx, addr)
		c.submit(func() {
			if err != nil {
				c.logger.Warn("joining room failed", "host", ref.ID, "error", err)
				c.joined = false
				return
			}
			c.handleLinkOpened(link)
		})
	}()
}

// handleLinkOpened starts the handshake on a new link, inbound or
// dialed: send my participant info once.
func (c *Coordinator) handleLinkOpened(link transport.Link) {
	c.links[link.ID()] = link
	c.router.Bind(link.ID(), link)
	c.handshakes[link.ID()] = handshakeInfoSent
	if err := c.router.Send(c.self, link.ID()); err != nil {
		c.logger.Warn("sending participant info failed", "link", link.ID(), "error", err)
	}
	c.publish()
}

func (c *Coordinator) handleLinkClosed(link transport.Link) {
	delete(c.links, link.ID())
	delete(c.handshakes, link.ID())
	delete(c.liveByLink, link.ID())
	c.router.Unbind(link.ID())
	if !c.hosting {
		c.joined = false
	}
	c.publish()
}

// handleParticipantInfo completes the handshake with a peer. The
// roster upserts by ID; the reply is sent at most once per link.
func (c *Coordinator) handleParticipantInfo(participant wire.ChatParticipant, from transport.Link) {
	c.liveByLink[from.ID()] = participant.ID
	c.session.AddParticipant(participant)

	switch c.handshakes[from.ID()] {
	case handshakeUnknown:
		c.handshakes[from.ID()] = handshakeInfoExchanged
		if err := c.router.Send(c.self, from.ID()); err != nil {
			c.logger.Warn("replying with participant info failed", "link", from.ID(), "error", err)
		}
	case handshakeInfoSent:
		c.handshakes[from.ID()] = handshakeInfoExchanged
	case handshakeInfoExchanged:
		// Duplicate info from a peer re-announcing; the upsert above
		// already refreshed the roster, never reply again.
	}
	c.publish()
}

func (c *Coordinator) handleTurn(turn wire.ChatTurn) {
	c.session.AddTurn(turn)
	if c.config.OnTurn != nil {
		c.config.OnTurn(turn)
	}
}

// publish recomputes the snapshot from loop-owned state.
func (c *Coordinator) publish() {
	roster := append([]wire.ChatParticipant(nil), c.session.Roster...)
	live := len(c.liveByLink)

	var status string
	if c.hosting {
		if live == 0 {
			status = "Host - waiting for participants"
		} else {
			status = fmt.Sprintf("Host - %d participant(s)", live)
		}
	} else {
		if live == 0 {
			status = "Connecting..."
		} else {
			status = "Connected to room"
		}
	}

	c.snapshotMu.Lock()
	c.roster = roster
	c.liveCount = live
	c.status = status
	c.snapshotMu.Unlock()

	if c.config.OnRosterChange != nil {
		c.config.OnRosterChange()
	}
}
