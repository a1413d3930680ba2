// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/classmesh-foundation/classmesh/lib/clock"
)

// Compile-time interface checks.
var (
	_ Advertiser = (*Zeroconf)(nil)
	_ Browser    = (*Zeroconf)(nil)
)

// ClassroomService and ChatService are the DNS-SD service types for the
// two independent discovery namespaces. A chat room never sees
// classroom announcements and vice versa.
const (
	ClassroomService = "_classmesh._tcp"
	ChatService      = "_classmesh-chat._tcp"
)

// mdnsDomain is the link-local mDNS domain.
const mdnsDomain = "local."

// lostSweepInterval is how often the browser checks for announcements
// that have gone silent.
const lostSweepInterval = 5 * time.Second

// lostAfter is how long an instance can go unseen before the browser
// reports it lost. mDNS has no reliable goodbye packet on this library,
// so absence is detected by expiry.
const lostAfter = 30 * time.Second

// Zeroconf advertises and browses a DNS-SD service type over mDNS on
// the local network. Metadata travels in TXT records as "key=value"
// strings.
type Zeroconf struct {
	service string
	clock   clock.Clock
	logger  *slog.Logger

	// onError receives asynchronous browse/advertise failures. Never
	// nil; defaults to a log-only handler. Failures here are
	// non-fatal: the coordinator surfaces them as a status string.
	onError func(error)

	mu       sync.Mutex
	server   *zeroconf.Server
	browsing *zeroconfBrowse
}

// zeroconfBrowse is one browsing session; a generation object, so
// callbacks from a cancelled session can never fire after Stop.
type zeroconfBrowse struct {
	cancel context.CancelFunc
	quit   chan struct{}
	once   sync.Once
}

func (b *zeroconfBrowse) stop() {
	b.once.Do(func() {
		close(b.quit)
		b.cancel()
	})
}

// NewZeroconf creates a discovery endpoint for the given DNS-SD
// service type (ClassroomService or ChatService).
func NewZeroconf(service string, clk clock.Clock, logger *slog.Logger) *Zeroconf {
	z := &Zeroconf{
		service: service,
		clock:   clk,
		logger:  logger,
	}
	z.onError = func(err error) {
		logger.Warn("discovery failure", "service", service, "error", err)
	}
	return z
}

// SetErrorHandler replaces the asynchronous failure handler. Must be
// called before StartAdvertising or StartBrowsing.
func (z *Zeroconf) SetErrorHandler(handler func(error)) {
	z.onError = handler
}

// StartAdvertising registers the mDNS service instance. Calling it
// while already advertising shuts the old registration down and
// re-registers with the new metadata.
func (z *Zeroconf) StartAdvertising(ctx context.Context, self PeerRef, meta Metadata) error {
	port, err := portOf(self.Addr)
	if err != nil {
		return fmt.Errorf("advertising %s: %w", self.ID, err)
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	if z.server != nil {
		z.server.Shutdown()
		z.server = nil
	}

	txt := make([]string, 0, len(meta))
	for key, value := range meta {
		txt = append(txt, key+"="+value)
	}

	server, err := zeroconf.Register(self.ID, z.service, mdnsDomain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("registering mDNS instance %s: %w", self.ID, err)
	}
	z.server = server
	z.logger.Info("advertising", "service", z.service, "instance", self.ID, "port", port)

	go func() {
		<-ctx.Done()
		z.mu.Lock()
		if z.server == server {
			server.Shutdown()
			z.server = nil
		}
		z.mu.Unlock()
	}()
	return nil
}

// StartBrowsing scans the service type and reports found/lost peers.
// Lost detection is expiry-based: an instance unseen for lostAfter is
// reported lost on the next sweep.
func (z *Zeroconf) StartBrowsing(ctx context.Context, onFound FoundFunc, onLost LostFunc) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("creating mDNS resolver: %w", err)
	}

	browseCtx, cancel := context.WithCancel(ctx)
	session := &zeroconfBrowse{cancel: cancel, quit: make(chan struct{})}

	z.mu.Lock()
	if previous := z.browsing; previous != nil {
		previous.stop()
	}
	z.browsing = session
	z.mu.Unlock()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	if err := resolver.Browse(browseCtx, z.service, mdnsDomain, entries); err != nil {
		cancel()
		return fmt.Errorf("browsing %s: %w", z.service, err)
	}

	// Single delivery goroutine: entry events and expiry sweeps are
	// serialized here, so onFound and onLost never run concurrently.
	go func() {
		lastSeen := make(map[string]time.Time)
		addrs := make(map[string]string)
		sweep := z.clock.NewTicker(lostSweepInterval)
		defer sweep.Stop()

		for {
			select {
			case <-session.quit:
				return
			case entry, ok := <-entries:
				if !ok {
					// The resolver closed the stream without Stop
					// being called: the browse died underneath us.
					select {
					case <-session.quit:
					default:
						z.onError(fmt.Errorf("mDNS browse for %s ended unexpectedly", z.service))
					}
					return
				}
				select {
				case <-session.quit:
					return
				default:
				}
				ref, meta := entryToPeer(entry)
				lastSeen[ref.ID] = z.clock.Now()
				addrs[ref.ID] = ref.Addr
				onFound(ref, meta)
			case <-sweep.C:
				select {
				case <-session.quit:
					return
				default:
				}
				now := z.clock.Now()
				for id, seen := range lastSeen {
					if now.Sub(seen) < lostAfter {
						continue
					}
					addr := addrs[id]
					delete(lastSeen, id)
					delete(addrs, id)
					onLost(PeerRef{ID: id, Addr: addr})
				}
			}
		}
	}()
	return nil
}

// Stop halts both advertising and browsing. Safe to call repeatedly
// and from any state.
func (z *Zeroconf) Stop() error {
	z.mu.Lock()
	server := z.server
	session := z.browsing
	z.server = nil
	z.browsing = nil
	z.mu.Unlock()

	if server != nil {
		server.Shutdown()
	}
	if session != nil {
		session.stop()
	}
	return nil
}

// entryToPeer maps a DNS-SD entry to the discovery contract types. The
// dial address prefers the addr TXT key (what the peer says it listens
// on) and falls back to the entry's first A record plus service port.
func entryToPeer(entry *zeroconf.ServiceEntry) (PeerRef, Metadata) {
	meta := make(Metadata, len(entry.Text))
	for _, record := range entry.Text {
		key, value, ok := strings.Cut(record, "=")
		if !ok {
			continue
		}
		meta[key] = value
	}

	addr := meta[KeyAddr]
	if addr == "" && len(entry.AddrIPv4) > 0 {
		addr = net.JoinHostPort(entry.AddrIPv4[0].String(), strconv.Itoa(entry.Port))
	}
	return PeerRef{ID: entry.Instance, Addr: addr}, meta
}

// portOf extracts the port from a host:port dial address.
func portOf(addr string) (int, error) {
	_, portText, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parsing listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return 0, fmt.Errorf("parsing port in %q: %w", addr, err)
	}
	return port, nil
}
