// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package classroom

import (
	"context"
	"log/slog"
	"sync"

	"github.com/classmesh-foundation/classmesh/discovery"
	"github.com/classmesh-foundation/classmesh/identity"
	"github.com/classmesh-foundation/classmesh/transport"
	"github.com/classmesh-foundation/classmesh/wire"
)

// TeacherConfig wires a TeacherCoordinator to its collaborators.
type TeacherConfig struct {
	// Name is the teacher's visible display name.
	Name string

	Advertiser discovery.Advertiser
	Browser    discovery.Browser
	Transport  transport.Transport
	Logger     *slog.Logger

	// OnRosterChange, when set, fires after every roster mutation,
	// on the coordinator's event loop. Keep it cheap.
	OnRosterChange func()
}

// TeacherCoordinator advertises teacher presence, browses for
// students, invites each one discovered, and routes alerts to the
// connected set. All state lives on a single event loop; discovery
// and transport callbacks are marshaled onto it.
type TeacherCoordinator struct {
	config TeacherConfig
	router *wire.Router
	logger *slog.Logger

	commands chan func()
	closed   chan struct{}
	stopOnce sync.Once

	// Loop-owned state.
	reconciler  *Reconciler
	links       map[string]transport.Link
	advertising bool
	browsing    bool

	// Published snapshot, readable from any goroutine.
	snapshotMu sync.Mutex
	roster     []identity.Peer
	status     string
}

// NewTeacher creates a coordinator. Call Start to go live.
func NewTeacher(config TeacherConfig) *TeacherCoordinator {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	c := &TeacherCoordinator{
		config:     config,
		logger:     config.Logger.With("component", "teacher"),
		commands:   make(chan func(), 64),
		closed:     make(chan struct{}),
		reconciler: NewReconciler(),
		links:      make(map[string]transport.Link),
		status:     Status(false, false, 0),
	}
	c.router = wire.NewRouter(wire.Handlers{}, c.logger)
	return c
}

// Start begins advertising, browsing, and accepting transport events.
// A failure to start the transport or discovery is returned so the
// caller can surface it as a status string; nothing here is fatal.
func (c *TeacherCoordinator) Start(ctx context.Context) error {
	go c.run()

	handlers := transport.Handlers{
		LinkOpened: func(link transport.Link) {
			// Teachers dial; students do not dial back. An inbound
			// link is a stray and is dropped.
			c.logger.Warn("unexpected inbound link", "link", link.ID())
			link.Close()
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

	self := discovery.PeerRef{ID: c.config.Name, Addr: c.config.Transport.Addr()}
	meta := discovery.Metadata{
		discovery.KeyRole: string(identity.RoleTeacher),
		discovery.KeyName: c.config.Name,
	}
	if err := c.config.Advertiser.StartAdvertising(ctx, self, meta); err != nil {
		return err
	}

	onFound := func(ref discovery.PeerRef, meta discovery.Metadata) {
		c.submit(func() { c.handleFound(ctx, ref, meta) })
	}
	onLost := func(ref discovery.PeerRef) {
		c.submit(func() { c.handleLost(ref) })
	}
	if err := c.config.Browser.StartBrowsing(ctx, onFound, onLost); err != nil {
		c.config.Advertiser.Stop()
		return err
	}

	c.submit(func() {
		c.advertising = true
		c.browsing = true
		c.publish()
	})
	return nil
}

// SendAlert sends an alert to one student by stable ID, or to every
// connected student when targetStudentID is empty. Fire-and-forget on
// success; wire.ErrNoPeersConnected and wire.ErrUnknownTarget surface
// to the caller.
func (c *TeacherCoordinator) SendAlert(a wire.Alert, targetStudentID string) error {
	return c.router.Send(a, targetStudentID)
}

// Roster returns the current connected-student snapshot.
func (c *TeacherCoordinator) Roster() []identity.Peer {
	c.snapshotMu.Lock()
	defer c.snapshotMu.Unlock()
	return append([]identity.Peer(nil), c.roster...)
}

// Status returns the current human-readable connection status.
func (c *TeacherCoordinator) Status() string {
	c.snapshotMu.Lock()
	defer c.snapshotMu.Unlock()
	return c.status
}

// Stop halts discovery and transport and silences every pending
// callback. Idempotent and safe from any state.
func (c *TeacherCoordinator) Stop() error {
	c.stopOnce.Do(func() {
		close(c.closed)
		c.config.Browser.Stop()
		c.config.Advertiser.Stop()
		c.config.Transport.Close()

		c.snapshotMu.Lock()
		c.roster = nil
		c.status = Status(false, false, 0)
		c.snapshotMu.Unlock()
	})
	return nil
}

func (c *TeacherCoordinator) run() {
	for {
		select {
		case <-c.closed:
			return
		case command := <-c.commands:
			command()
		}
	}
}

// submit marshals a mutation onto the event loop. After Stop, late
// callbacks are dropped here; nothing mutates state again.
func (c *TeacherCoordinator) submit(command func()) {
	select {
	case <-c.closed:
	case c.commands <- command:
	}
}

func (c *TeacherCoordinator) handleFound(ctx context.Context, ref discovery.PeerRef, meta discovery.Metadata) {
	if meta[discovery.KeyRole] != string(identity.RoleStudent) {
		return
	}
	studentID := meta[discovery.KeyStudentID]
	if studentID == "" {
		return
	}
	name := meta[discovery.KeyName]
	if name == "" {
		name = ref.ID
	}
	addr := meta[discovery.KeyAddr]
	if addr == "" {
		addr = ref.Addr
	}

	peer := identity.Peer{
		ID:          studentID,
		DisplayName: name,
		Role:        identity.RoleStudent,
		Extra:       meta.Clone(),
	}
	previous, known := c.reconciler.Lookup(studentID)
	decision, superseded := c.reconciler.Observe(peer, ref.ID, addr)
	switch decision {
	case DecisionDuplicate:
		if known && previous.Peer.DisplayName != name {
			c.publish()
		}
		return
	case DecisionSupersede:
		c.logger.Info("student reconnected, superseding old connection",
			"student", studentID, "name", name, "oldLink", superseded.LinkID)
		c.router.Unbind(studentID)
		if superseded.LinkID != "" {
			c.closeLink(superseded.LinkID)
		}
	case DecisionInvite:
		c.logger.Info("inviting student", "student", studentID, "name", name, "addr", addr)
	}

	c.reconciler.Invited(studentID)
	c.publish()

	// Dialing is network I/O; it must not block the loop. The result
	// is marshaled back, and a supersede or stop that happened in the
	// meantime wins.
	go func() {
		link, err := c.config.Transport.Dial(ctx, addr)
		c.submit(func() { c.handleDialed(studentID, addr, link, err) })
	}()
}

func (c *TeacherCoordinator) handleDialed(studentID, addr string, link transport.Link, err error) {
	entry, ok := c.reconciler.Lookup(studentID)
	if !ok || entry.Addr != addr {
		// Superseded while the dial was in flight.
		if err == nil {
			link.Close()
		}
		return
	}
	if err != nil {
		c.logger.Warn("invitation failed", "student", studentID, "addr", addr, "error", err)
		c.reconciler.DropPending(studentID)
		c.publish()
		return
	}
	c.reconciler.Attach(studentID, link.ID())
	c.links[link.ID()] = link
	c.router.Bind(studentID, link)
	c.logger.Info("student connected", "student", studentID, "link", link.ID())
	c.publish()
}

func (c *TeacherCoordinator) handleLinkClosed(link transport.Link) {
	delete(c.links, link.ID())
	entry, ok := c.reconciler.DropLink(link.ID())
	if !ok {
		return
	}
	c.router.Unbind(entry.Peer.ID)
	c.logger.Info("student disconnected", "student", entry.Peer.ID, "name", entry.Peer.DisplayName)
	c.publish()
}

func (c *TeacherCoordinator) handleLost(ref discovery.PeerRef) {
	entry, ok := c.reconciler.ByRef(ref.ID)
	if !ok {
		return
	}
	// A connected student's fate is decided by its link, not by a
	// dropped announcement. Pending invitations are abandoned.
	if dropped, ok := c.reconciler.DropPending(entry.Peer.ID); ok {
		c.logger.Info("student announcement lost before connection",
			"student", dropped.Peer.ID, "name", dropped.Peer.DisplayName)
		c.publish()
	}
}

// closeLink tears down a tracked link. Its eventual LinkClosed event
// finds no mapping and is ignored.
func (c *TeacherCoordinator) closeLink(linkID string) {
	if link, ok := c.links[linkID]; ok {
		delete(c.links, linkID)
		link.Close()
	}
}

// publish recomputes the snapshot from loop-owned state.
func (c *TeacherCoordinator) publish() {
	roster := c.reconciler.Roster()
	status := Status(c.advertising, c.browsing, len(roster))

	c.snapshotMu.Lock()
	c.roster = roster
	c.status = status
	c.snapshotMu.Unlock()

	if c.config.OnRosterChange != nil {
		c.config.OnRosterChange()
	}
}
