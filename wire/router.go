// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/classmesh-foundation/classmesh/lib/codec"
	"github.com/classmesh-foundation/classmesh/transport"
)

// ErrNoPeersConnected is returned by Send when no links are bound.
var ErrNoPeersConnected = errors.New("wire: no peers connected")

// ErrUnknownTarget is returned by Send when the target ID has no bound
// link. The caller validates targets for UX, but the router never
// silently drops a misrouted message.
var ErrUnknownTarget = errors.New("wire: unknown target")

// errDecodeFailure marks an inbound payload that matched no schema.
// Internal only: Receive logs and drops, it never surfaces this.
var errDecodeFailure = errors.New("wire: payload matched no message schema")

// Handlers receives decoded inbound messages. A nil handler drops its
// kind. Handlers run on the caller of Receive — transport goroutines —
// so they must re-marshal onto their owner's event loop before
// mutating state.
type Handlers struct {
	Alert       func(alert Alert, from transport.Link)
	ChatTurn    func(turn ChatTurn, from transport.Link)
	Participant func(participant ChatParticipant, from transport.Link)
}

// Router turns typed messages into frames and back, keyed by stable
// peer ID. The reconciler binds a peer's link under its stable ID once
// connected and unbinds it on disconnect; senders address peers by
// that ID, never by link.
type Router struct {
	handlers Handlers
	logger   *slog.Logger

	mu    sync.Mutex
	links map[string]transport.Link
}

// NewRouter creates a router with no bound links.
func NewRouter(handlers Handlers, logger *slog.Logger) *Router {
	return &Router{
		handlers: handlers,
		logger:   logger,
		links:    make(map[string]transport.Link),
	}
}

// Bind associates a peer's stable ID with its live link. A rebind for
// the same ID replaces the previous link (the supersede path).
func (r *Router) Bind(id string, link transport.Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[id] = link
}

// Unbind removes a peer's link. Unbinding an unknown ID is a no-op.
func (r *Router) Unbind(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links, id)
}

// Bound reports how many peers currently have a live link.
func (r *Router) Bound() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links)
}

// Send encodes the message and writes it to the target peer, or to
// every bound peer when targetID is empty. Fire-and-forget: a nil
// error means the frames were handed to the transport. Per-link write
// failures on a broadcast are logged, not returned, so one dead link
// cannot mask delivery to the rest.
func (r *Router) Send(message any, targetID string) error {
	frame, err := encodeEnvelope(message)
	if err != nil {
		return err
	}

	r.mu.Lock()
	targets := make(map[string]transport.Link, len(r.links))
	if targetID == "" {
		for id, link := range r.links {
			targets[id] = link
		}
	} else if link, ok := r.links[targetID]; ok {
		targets[targetID] = link
	}
	bound := len(r.links)
	r.mu.Unlock()

	if bound == 0 {
		return ErrNoPeersConnected
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, targetID)
	}

	var firstErr error
	for id, link := range targets {
		if err := link.Send(frame); err != nil {
			r.logger.Warn("send failed", "peer", id, "link", link.ID(), "error", err)
			if targetID != "" {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Receive decodes one inbound frame and dispatches it. Malformed
// payloads are logged and dropped, never returned to the transport.
func (r *Router) Receive(payload []byte, from transport.Link) {
	if err := r.dispatch(payload, from); err != nil {
		r.logger.Warn("dropping undecodable payload",
			"link", from.ID(), "bytes", len(payload), "error", err)
	}
}

func (r *Router) dispatch(payload []byte, from transport.Link) error {
	var envelope Envelope
	if err := codec.Unmarshal(payload, &envelope); err == nil && len(envelope.Payload) > 0 {
		switch envelope.Kind {
		case KindAlert:
			return r.dispatchAlert(envelope.Payload, from)
		case KindChatTurn:
			return r.dispatchChatTurn(envelope.Payload, from)
		case KindParticipant:
			return r.dispatchParticipant(envelope.Payload, from)
		}
		// Unknown kind: fall through to trial decode of the inner
		// payload so a newer sender's envelope still delivers if the
		// body matches a schema we know.
		payload = envelope.Payload
	}

	// No usable envelope. Trial-decode in fixed priority order.
	if err := r.dispatchAlert(payload, from); err == nil {
		return nil
	}
	if err := r.dispatchChatTurn(payload, from); err == nil {
		return nil
	}
	if err := r.dispatchParticipant(payload, from); err == nil {
		return nil
	}
	return errDecodeFailure
}

func (r *Router) dispatchAlert(payload []byte, from transport.Link) error {
	var alert Alert
	if err := codec.Unmarshal(payload, &alert); err != nil {
		return err
	}
	// CBOR maps decode leniently into any struct; require the
	// discriminating fields so a chat turn cannot masquerade as an
	// alert during trial decode.
	if alert.ID == uuid.Nil || alert.Kind == "" {
		return errDecodeFailure
	}
	if r.handlers.Alert != nil {
		r.handlers.Alert(alert, from)
	}
	return nil
}

func (r *Router) dispatchChatTurn(payload []byte, from transport.Link) error {
	var turn ChatTurn
	if err := codec.Unmarshal(payload, &turn); err != nil {
		return err
	}
	if turn.ID == uuid.Nil || turn.SpeakerID == "" {
		return errDecodeFailure
	}
	if r.handlers.ChatTurn != nil {
		r.handlers.ChatTurn(turn, from)
	}
	return nil
}

func (r *Router) dispatchParticipant(payload []byte, from transport.Link) error {
	var participant ChatParticipant
	if err := codec.Unmarshal(payload, &participant); err != nil {
		return err
	}
	if participant.ID == "" {
		return errDecodeFailure
	}
	if r.handlers.Participant != nil {
		r.handlers.Participant(participant, from)
	}
	return nil
}

// encodeEnvelope wraps a typed message in its tagged envelope frame.
func encodeEnvelope(message any) ([]byte, error) {
	var kind string
	switch message.(type) {
	case Alert, *Alert:
		kind = KindAlert
	case ChatTurn, *ChatTurn:
		kind = KindChatTurn
	case ChatParticipant, *ChatParticipant:
		kind = KindParticipant
	default:
		return nil, fmt.Errorf("wire: unsupported message type %T", message)
	}
	body, err := codec.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding %s: %w", kind, err)
	}
	return codec.Marshal(Envelope{Kind: kind, Payload: body})
}
