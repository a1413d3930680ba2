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

// StudentConfig wires a StudentCoordinator to its collaborators.
type StudentConfig struct {
	// Name is the student's display name as shown to the teacher.
	// Mutable via SetDisplayName.
	Name string

	// StudentID is the stable identity key that survives relaunches
	// and renames.
	StudentID string

	Advertiser discovery.Advertiser
	Transport  transport.Transport
	Logger     *slog.Logger

	// OnAlert receives every decoded alert, on a transport goroutine.
	// The caller typically forwards into an alert.Pipeline, which
	// serializes internally.
	OnAlert func(a wire.Alert)
}

// StudentCoordinator advertises student presence and accepts the
// teacher's connection, handing received alerts to the configured
// sink. The student never dials; the teacher initiates.
type StudentCoordinator struct {
	config StudentConfig
	router *wire.Router
	logger *slog.Logger

	commands chan func()
	closed   chan struct{}
	stopOnce sync.Once

	// Loop-owned state.
	ctx         context.Context
	displayName string
	advertising bool
	links       map[string]transport.Link

	snapshotMu sync.Mutex
	status     string
}

// NewStudent creates a coordinator. Call Start to go live.
func NewStudent(config StudentConfig) *StudentCoordinator {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	c := &StudentCoordinator{
		config:      config,
		logger:      config.Logger.With("component", "student"),
		commands:    make(chan func(), 64),
		closed:      make(chan struct{}),
		displayName: config.Name,
		links:       make(map[string]transport.Link),
		status:      Status(false, false, 0),
	}
	c.router = wire.NewRouter(wire.Handlers{
		Alert: func(a wire.Alert, from transport.Link) {
			if config.OnAlert != nil {
				config.OnAlert(a)
			}
		},
	}, c.logger)
	return c
}

// Start begins advertising and accepting the teacher's connection.
func (c *StudentCoordinator) Start(ctx context.Context) error {
	go c.run()

	handlers := transport.Handlers{
		LinkOpened: func(link transport.Link) {
			c.submit(func() {
				c.links[link.ID()] = link
				c.router.Bind(link.ID(), link)
				c.logger.Info("teacher connected", "link", link.ID())
			})
		},
		LinkClosed: func(link transport.Link) {
			c.submit(func() {
				delete(c.links, link.ID())
				c.router.Unbind(link.ID())
				c.logger.Info("teacher disconnected", "link", link.ID())
			})
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
		if err := c.advertise(ctx); err != nil {
			c.logger.Warn("advertising failed", "error", err)
			return
		}
		c.advertising = true
		c.publish()
	})
	return nil
}

// SetDisplayName changes the name shown to the teacher, keeping the
// stable student ID. Advertising restarts with the new metadata; the
// teacher sees the new announcement and supersedes the old
// connection.
func (c *StudentCoordinator) SetDisplayName(name string) {
	c.submit(func() {
		c.displayName = name
		if !c.advertising {
			return
		}
		if err := c.advertise(c.ctx); err != nil {
			c.logger.Warn("re-advertising failed", "name", name, "error", err)
		}
	})
}

// Status returns the current human-readable connection status.
func (c *StudentCoordinator) Status() string {
	c.snapshotMu.Lock()
	defer c.snapshotMu.Unlock()
	return c.status
}

// Stop halts advertising and the transport. Idempotent.
func (c *StudentCoordinator) Stop() error {
	c.stopOnce.Do(func() {
		close(c.closed)
		c.config.Advertiser.Stop()
		c.config.Transport.Close()

		c.snapshotMu.Lock()
		c.status = Status(false, false, 0)
		c.snapshotMu.Unlock()
	})
	return nil
}

func (c *StudentCoordinator) run() {
	for {
		select {
		case <-c.closed:
			return
		case command := <-c.commands:
			command()
		}
	}
}

func (c *StudentCoordinator) submit(command func()) {
	select {
	case <-c.closed:
	case c.commands <- command:
	}
}

// advertise (re)starts the announcement with the current display
// name. StartAdvertising is idempotent, so a rename is just another
// call. Runs on the loop.
func (c *StudentCoordinator) advertise(ctx context.Context) error {
	self := discovery.PeerRef{
		ID:   identity.VisibleName(c.displayName, c.config.StudentID),
		Addr: c.config.Transport.Addr(),
	}
	meta := discovery.Metadata{
		discovery.KeyRole:      string(identity.RoleStudent),
		discovery.KeyName:      c.displayName,
		discovery.KeyStudentID: c.config.StudentID,
		discovery.KeyAddr:      c.config.Transport.Addr(),
	}
	return c.config.Advertiser.StartAdvertising(ctx, self, meta)
}

func (c *StudentCoordinator) publish() {
	status := Status(c.advertising, false, 0)
	c.snapshotMu.Lock()
	c.status = status
	c.snapshotMu.Unlock()
}
