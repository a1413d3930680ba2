// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/classmesh-foundation/classmesh/lib/testutil"
)

func TestMemoryDialAndExchange(t *testing.T) {
	network := NewMemoryNetwork()
	alphaEvents := newLinkEvents()
	betaEvents := newLinkEvents()

	alpha := network.Transport("alpha")
	beta := network.Transport("beta")
	if err := alpha.Start(context.Background(), alphaEvents.handlers()); err != nil {
		t.Fatalf("alpha Start: %v", err)
	}
	if err := beta.Start(context.Background(), betaEvents.handlers()); err != nil {
		t.Fatalf("beta Start: %v", err)
	}

	link, err := alpha.Dial(context.Background(), "beta")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	inbound := testutil.RequireReceive(t, betaEvents.opened, time.Second, "beta never saw the link")

	if err := link.Send([]byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := testutil.RequireReceive(t, betaEvents.payload, time.Second, "beta payload")
	if string(got) != "ping" {
		t.Errorf("beta received %q", got)
	}

	if err := inbound.Send([]byte("pong")); err != nil {
		t.Fatalf("inbound Send: %v", err)
	}
	got = testutil.RequireReceive(t, alphaEvents.payload, time.Second, "alpha payload")
	if string(got) != "pong" {
		t.Errorf("alpha received %q", got)
	}
}

func TestMemoryDialUnknownEndpoint(t *testing.T) {
	network := NewMemoryNetwork()
	alpha := network.Transport("alpha")
	if err := alpha.Start(context.Background(), Handlers{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err := alpha.Dial(context.Background(), "nobody")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Dial unknown endpoint: err = %v, want ErrUnavailable", err)
	}
}

func TestMemoryDialUnstartedEndpoint(t *testing.T) {
	network := NewMemoryNetwork()
	alpha := network.Transport("alpha")
	network.Transport("beta") // exists but never Started

	if err := alpha.Start(context.Background(), Handlers{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err := alpha.Dial(context.Background(), "beta")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Dial unstarted endpoint: err = %v, want ErrUnavailable", err)
	}
}

func TestMemoryCloseTearsDownLinks(t *testing.T) {
	network := NewMemoryNetwork()
	alphaEvents := newLinkEvents()
	betaEvents := newLinkEvents()

	alpha := network.Transport("alpha")
	beta := network.Transport("beta")
	alpha.Start(context.Background(), alphaEvents.handlers())
	beta.Start(context.Background(), betaEvents.handlers())

	if _, err := alpha.Dial(context.Background(), "beta"); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	testutil.RequireReceive(t, betaEvents.opened, time.Second, "inbound link")

	if err := alpha.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	testutil.RequireReceive(t, alphaEvents.closed, time.Second, "alpha LinkClosed")
	testutil.RequireReceive(t, betaEvents.closed, time.Second, "beta LinkClosed")

	if _, err := alpha.Dial(context.Background(), "beta"); !errors.Is(err, ErrClosed) {
		t.Errorf("Dial after Close: err = %v, want ErrClosed", err)
	}
}

func TestMemoryContextCancelClosesEndpoint(t *testing.T) {
	network := NewMemoryNetwork()
	events := newLinkEvents()
	ctx, cancel := context.WithCancel(context.Background())

	alpha := network.Transport("alpha")
	alpha.Start(ctx, events.handlers())
	cancel()

	testutil.Eventually(t, time.Second, func() bool {
		_, err := alpha.Dial(context.Background(), "alpha")
		return errors.Is(err, ErrClosed)
	}, "endpoint never closed after context cancel")
}
