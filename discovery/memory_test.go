// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/classmesh-foundation/classmesh/lib/testutil"
)

const testTimeout = 5 * time.Second

type foundEvent struct {
	ref  PeerRef
	meta Metadata
}

func TestMemoryMeshAnnouncementReachesBrowser(t *testing.T) {
	mesh := NewMemoryMesh()
	teacher := mesh.Node("teacher")
	student := mesh.Node("student")

	found := make(chan foundEvent, 8)
	if err := teacher.StartBrowsing(context.Background(), func(ref PeerRef, meta Metadata) {
		found <- foundEvent{ref, meta}
	}, func(PeerRef) {}); err != nil {
		t.Fatalf("StartBrowsing: %v", err)
	}

	self := PeerRef{ID: "student-1", Addr: "127.0.0.1:9000"}
	if err := student.StartAdvertising(context.Background(), self, Metadata{
		KeyRole: "student", KeyName: "Sam", KeyStudentID: "S1",
	}); err != nil {
		t.Fatalf("StartAdvertising: %v", err)
	}

	event := testutil.RequireReceive(t, found, testTimeout, "waiting for found event")
	if event.ref != self {
		t.Errorf("ref = %+v, want %+v", event.ref, self)
	}
	if event.meta[KeyName] != "Sam" {
		t.Errorf("name = %q, want %q", event.meta[KeyName], "Sam")
	}
}

func TestMemoryMeshBrowserSeesExistingAdvertisers(t *testing.T) {
	mesh := NewMemoryMesh()
	student := mesh.Node("student")
	teacher := mesh.Node("teacher")

	if err := student.StartAdvertising(context.Background(), PeerRef{ID: "student-1"}, Metadata{KeyRole: "student"}); err != nil {
		t.Fatalf("StartAdvertising: %v", err)
	}

	found := make(chan foundEvent, 8)
	if err := teacher.StartBrowsing(context.Background(), func(ref PeerRef, meta Metadata) {
		found <- foundEvent{ref, meta}
	}, func(PeerRef) {}); err != nil {
		t.Fatalf("StartBrowsing: %v", err)
	}

	event := testutil.RequireReceive(t, found, testTimeout, "waiting for cached announcement")
	if event.ref.ID != "student-1" {
		t.Errorf("ref.ID = %q, want %q", event.ref.ID, "student-1")
	}
}

func TestMemoryMeshReadvertiseDeliversNewMetadata(t *testing.T) {
	mesh := NewMemoryMesh()
	teacher := mesh.Node("teacher")
	student := mesh.Node("student")

	found := make(chan foundEvent, 8)
	if err := teacher.StartBrowsing(context.Background(), func(ref PeerRef, meta Metadata) {
		found <- foundEvent{ref, meta}
	}, func(PeerRef) {}); err != nil {
		t.Fatalf("StartBrowsing: %v", err)
	}

	ref := PeerRef{ID: "student-1"}
	student.StartAdvertising(context.Background(), ref, Metadata{KeyName: "Sam"})
	first := testutil.RequireReceive(t, found, testTimeout, "first announcement")
	if first.meta[KeyName] != "Sam" {
		t.Fatalf("first name = %q, want Sam", first.meta[KeyName])
	}

	// Same node re-advertises with a changed name, as a relaunched
	// student does.
	student.StartAdvertising(context.Background(), ref, Metadata{KeyName: "Sammy"})
	second := testutil.RequireReceive(t, found, testTimeout, "re-announcement")
	if second.meta[KeyName] != "Sammy" {
		t.Errorf("second name = %q, want Sammy", second.meta[KeyName])
	}
}

func TestMemoryMeshStopDeliversLost(t *testing.T) {
	mesh := NewMemoryMesh()
	teacher := mesh.Node("teacher")
	student := mesh.Node("student")

	lost := make(chan PeerRef, 8)
	if err := teacher.StartBrowsing(context.Background(), func(PeerRef, Metadata) {}, func(ref PeerRef) {
		lost <- ref
	}); err != nil {
		t.Fatalf("StartBrowsing: %v", err)
	}

	student.StartAdvertising(context.Background(), PeerRef{ID: "student-1"}, Metadata{})
	student.Stop()

	ref := testutil.RequireReceive(t, lost, testTimeout, "waiting for lost event")
	if ref.ID != "student-1" {
		t.Errorf("lost ref = %q, want %q", ref.ID, "student-1")
	}
}

func TestMemoryMeshStopIsIdempotentAndSilencesCallbacks(t *testing.T) {
	mesh := NewMemoryMesh()
	teacher := mesh.Node("teacher")
	student := mesh.Node("student")

	found := make(chan foundEvent, 8)
	if err := teacher.StartBrowsing(context.Background(), func(ref PeerRef, meta Metadata) {
		found <- foundEvent{ref, meta}
	}, func(PeerRef) {}); err != nil {
		t.Fatalf("StartBrowsing: %v", err)
	}

	if err := teacher.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := teacher.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	student.StartAdvertising(context.Background(), PeerRef{ID: "student-1"}, Metadata{})

	select {
	case event := <-found:
		t.Errorf("callback fired after Stop: %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}
