// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
)

// Compile-time interface check.
var _ Transport = (*WebRTCTransport)(nil)

// signalingPollInterval is how often the transport polls for inbound
// offers.
const signalingPollInterval = 2 * time.Second

// iceGatherTimeout bounds ICE candidate gathering before the SDP is
// published.
const iceGatherTimeout = 15 * time.Second

// answerPollInterval and answerTimeout bound the dialer's wait for an
// SDP answer after publishing an offer.
const (
	answerPollInterval = 500 * time.Millisecond
	answerTimeout      = 30 * time.Second
)

// channelOpenTimeout bounds the wait for a data channel to open after
// the peer connection is established.
const channelOpenTimeout = 10 * time.Second

// WebRTCTransport carries peer links over WebRTC data channels, for
// networks where direct TCP between devices is blocked. One
// PeerConnection per remote peer; each Dial opens a fresh ordered,
// reliable data channel on it, and each channel is one Link.
//
// Signaling goes through the Signaler interface. Establishment is
// vanilla ICE: candidates are fully gathered before the SDP is
// published, so one offer/answer round-trip suffices.
type WebRTCTransport struct {
	signaler Signaler
	name     string
	servers  []webrtc.ICEServer
	logger   *slog.Logger

	mu       sync.Mutex
	peers    map[string]*webrtcPeer
	handlers Handlers
	started  bool

	closed    chan struct{}
	closeOnce sync.Once

	channelCounter atomic.Uint64
}

// webrtcPeer tracks the PeerConnection to one remote peer. Fields are
// protected by WebRTCTransport.mu.
type webrtcPeer struct {
	connection  *webrtc.PeerConnection
	name        string
	established chan struct{} // closed when ICE reaches Connected/Completed
	once        sync.Once
}

func (p *webrtcPeer) markEstablished() {
	p.once.Do(func() { close(p.established) })
}

// NewWebRTCTransport creates a WebRTC transport. The name identifies
// this process in signaling and doubles as the transport address.
func NewWebRTCTransport(signaler Signaler, name string, servers []webrtc.ICEServer, logger *slog.Logger) *WebRTCTransport {
	return &WebRTCTransport{
		signaler: signaler,
		name:     name,
		servers:  servers,
		logger:   logger,
		peers:    make(map[string]*webrtcPeer),
		closed:   make(chan struct{}),
	}
}

// Start launches the signaling poller that answers inbound offers.
func (t *WebRTCTransport) Start(ctx context.Context, handlers Handlers) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.handlers = handlers
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.Close()
	}()
	go t.signalingPoller(ctx)
	return nil
}

// Addr returns the signaling name peers dial.
func (t *WebRTCTransport) Addr() string { return t.name }

// Dial establishes (or reuses) the PeerConnection to the named peer
// and opens a new data channel on it as a Link.
func (t *WebRTCTransport) Dial(ctx context.Context, addr string) (Link, error) {
	select {
	case <-t.closed:
		return nil, ErrClosed
	default:
	}

	peer, err := t.getOrCreatePeer(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("establishing peer connection to %s: %w", addr, err)
	}

	select {
	case <-peer.established:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, ErrClosed
	}

	return t.openChannel(peer)
}

// Close tears down every PeerConnection and stops the poller.
func (t *WebRTCTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		for name, peer := range t.peers {
			peer.connection.Close()
			delete(t.peers, name)
		}
		t.mu.Unlock()
	})
	return nil
}

// getOrCreatePeer returns the live connection state for a peer,
// starting signaling for a new PeerConnection if none exists. The new
// entry is registered before signaling runs, so concurrent dials to
// the same peer wait on established instead of double-signaling.
func (t *WebRTCTransport) getOrCreatePeer(ctx context.Context, peerName string) (*webrtcPeer, error) {
	t.mu.Lock()
	if peer, ok := t.peers[peerName]; ok {
		state := peer.connection.ICEConnectionState()
		if state != webrtc.ICEConnectionStateFailed && state != webrtc.ICEConnectionStateClosed {
			t.mu.Unlock()
			return peer, nil
		}
		peer.connection.Close()
		delete(t.peers, peerName)
	}

	pc, err := t.newPeerConnection()
	if err != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}
	peer := &webrtcPeer{
		connection:  pc,
		name:        peerName,
		established: make(chan struct{}),
	}
	t.peers[peerName] = peer
	t.mu.Unlock()

	if err := t.signalOutbound(ctx, peer); err != nil {
		t.mu.Lock()
		if current, ok := t.peers[peerName]; ok && current == peer {
			delete(t.peers, peerName)
		}
		t.mu.Unlock()
		pc.Close()
		return nil, err
	}
	return peer, nil
}

// signalOutbound runs offer/answer signaling for a freshly registered
// PeerConnection. The established channel is closed by the ICE state
// handler once the connection comes up.
func (t *WebRTCTransport) signalOutbound(ctx context.Context, peer *webrtcPeer) error {
	pc := peer.connection
	peerName := peer.name

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		t.handleInboundChannel(dc, peerName)
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		t.handleICEState(peer, state)
	})

	// A channel must exist before CreateOffer for pion to include a
	// data channel section in the SDP. Neither side uses it.
	if _, err := pc.CreateDataChannel("init", nil); err != nil {
		return fmt.Errorf("creating init data channel: %w", err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		return fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := t.signaler.PublishOffer(ctx, t.name, peerName, pc.LocalDescription().SDP); err != nil {
		return fmt.Errorf("publishing SDP offer: %w", err)
	}
	t.logger.Info("WebRTC offer published", "peer", peerName)

	answerSDP, err := t.waitForAnswer(ctx, peerName)
	if err != nil {
		return fmt.Errorf("waiting for SDP answer from %s: %w", peerName, err)
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}

	t.logger.Info("WebRTC outbound connection established", "peer", peerName)
	return nil
}

// waitForAnswer polls the signaler until the named peer answers.
func (t *WebRTCTransport) waitForAnswer(ctx context.Context, peerName string) (string, error) {
	deadline := time.After(answerTimeout)
	ticker := time.NewTicker(answerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return "", fmt.Errorf("timed out after %s", answerTimeout)
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.closed:
			return "", ErrClosed
		case <-ticker.C:
			answers, err := t.signaler.PollAnswers(ctx, t.name)
			if err != nil {
				t.logger.Warn("polling for SDP answer failed", "error", err)
				continue
			}
			for _, answer := range answers {
				if answer.Peer == peerName {
					return answer.SDP, nil
				}
			}
		}
	}
}

// signalingPoller answers inbound offers until shutdown.
func (t *WebRTCTransport) signalingPoller(ctx context.Context) {
	ticker := time.NewTicker(signalingPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.closed:
			return
		case <-ticker.C:
			t.processInboundOffers(ctx)
		}
	}
}

// processInboundOffers handles signaling glare with a deterministic
// tie-break: when both sides offer simultaneously, the
// lexicographically smaller name is the canonical offerer.
func (t *WebRTCTransport) processInboundOffers(ctx context.Context) {
	offers, err := t.signaler.PollOffers(ctx, t.name)
	if err != nil {
		t.logger.Warn("polling for SDP offers failed", "error", err)
		return
	}

	for _, offer := range offers {
		t.mu.Lock()
		existing, hasExisting := t.peers[offer.Peer]
		t.mu.Unlock()

		if hasExisting {
			state := existing.connection.ICEConnectionState()
			alive := state != webrtc.ICEConnectionStateFailed && state != webrtc.ICEConnectionStateClosed
			if alive && offer.Peer > t.name {
				// We are the canonical offerer; ignore theirs.
				continue
			}
			t.mu.Lock()
			existing.connection.Close()
			delete(t.peers, offer.Peer)
			t.mu.Unlock()
		}

		if err := t.answerOffer(ctx, offer); err != nil {
			t.logger.Error("answering WebRTC offer failed", "peer", offer.Peer, "error", err)
		}
	}
}

// answerOffer builds the answering PeerConnection for an inbound offer.
func (t *WebRTCTransport) answerOffer(ctx context.Context, offer SignalMessage) error {
	pc, err := t.newPeerConnection()
	if err != nil {
		return fmt.Errorf("creating PeerConnection: %w", err)
	}
	peer := &webrtcPeer{
		connection:  pc,
		name:        offer.Peer,
		established: make(chan struct{}),
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		t.handleInboundChannel(dc, offer.Peer)
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		t.handleICEState(peer, state)
	})

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := pc.SetRemoteDescription(remote); err != nil {
		pc.Close()
		return fmt.Errorf("setting remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("creating SDP answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		pc.Close()
		return fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		pc.Close()
		return ctx.Err()
	}

	if err := t.signaler.PublishAnswer(ctx, offer.Peer, t.name, pc.LocalDescription().SDP); err != nil {
		pc.Close()
		return fmt.Errorf("publishing SDP answer: %w", err)
	}

	t.mu.Lock()
	t.peers[offer.Peer] = peer
	t.mu.Unlock()

	t.logger.Info("WebRTC inbound connection answered", "peer", offer.Peer)
	return nil
}

// handleInboundChannel turns a data channel opened by the remote peer
// into an inbound Link.
func (t *WebRTCTransport) handleInboundChannel(dc *webrtc.DataChannel, peerName string) {
	// The init channel only exists to force a data channel section
	// into the SDP; accepting it would waste a blocked read goroutine.
	if dc.Label() == "init" {
		dc.OnOpen(func() { dc.Close() })
		return
	}

	dc.OnOpen(func() {
		raw, err := dc.Detach()
		if err != nil {
			t.logger.Error("detaching inbound data channel failed",
				"peer", peerName, "label", dc.Label(), "error", err)
			return
		}
		conn := newDataChannelConn(raw, t.name+"/"+dc.Label(), peerName+"/"+dc.Label())
		link := newStreamLink("webrtc/"+peerName+"/"+dc.Label(), conn)

		t.mu.Lock()
		handlers := t.handlers
		t.mu.Unlock()

		select {
		case <-t.closed:
			link.Close()
			return
		default:
		}
		if handlers.LinkOpened != nil {
			handlers.LinkOpened(link)
		}
		go link.readLoop(handlers)
	})
}

// handleICEState reacts to connection state changes for one peer.
func (t *WebRTCTransport) handleICEState(peer *webrtcPeer, state webrtc.ICEConnectionState) {
	t.logger.Info("ICE state change", "peer", peer.name, "state", state.String())

	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		peer.markEstablished()
	case webrtc.ICEConnectionStateFailed:
		// Left in the map: the next Dial sees the dead state and
		// re-establishes.
		t.logger.Warn("WebRTC connection failed, will re-establish on next dial", "peer", peer.name)
	case webrtc.ICEConnectionStateClosed:
		t.mu.Lock()
		if current, ok := t.peers[peer.name]; ok && current == peer {
			delete(t.peers, peer.name)
		}
		t.mu.Unlock()
	}
}

// openChannel creates a new ordered, reliable data channel on an
// established peer connection and wraps it as a Link.
func (t *WebRTCTransport) openChannel(peer *webrtcPeer) (Link, error) {
	label := fmt.Sprintf("mesh-%d", t.channelCounter.Add(1))
	ordered := true
	dc, err := peer.connection.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("creating data channel %s: %w", label, err)
	}

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	select {
	case <-opened:
	case <-time.After(channelOpenTimeout):
		dc.Close()
		return nil, fmt.Errorf("data channel %s did not open within %s", label, channelOpenTimeout)
	case <-t.closed:
		dc.Close()
		return nil, ErrClosed
	}

	raw, err := dc.Detach()
	if err != nil {
		dc.Close()
		return nil, fmt.Errorf("detaching data channel %s: %w", label, err)
	}
	conn := newDataChannelConn(raw, t.name+"/"+label, peer.name+"/"+label)
	link := newStreamLink("webrtc/"+peer.name+"/"+label, conn)

	t.mu.Lock()
	handlers := t.handlers
	t.mu.Unlock()
	go link.readLoop(handlers)
	return link, nil
}

// newPeerConnection builds a pion PeerConnection with data channel
// detach enabled (required for stream access) and loopback candidates
// allowed (required on single-interface test machines).
func (t *WebRTCTransport) newPeerConnection() (*webrtc.PeerConnection, error) {
	settings := webrtc.SettingEngine{}
	settings.DetachDataChannels()
	settings.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settings))
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: t.servers})
}
