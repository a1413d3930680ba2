// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package classroom

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/classmesh-foundation/classmesh/discovery"
	"github.com/classmesh-foundation/classmesh/lib/testutil"
	"github.com/classmesh-foundation/classmesh/transport"
	"github.com/classmesh-foundation/classmesh/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// classroomHarness is one in-process classroom: a discovery mesh and
// a transport network shared by every coordinator in a test.
type classroomHarness struct {
	mesh    *discovery.MemoryMesh
	network *transport.MemoryNetwork
}

func newHarness() *classroomHarness {
	return &classroomHarness{
		mesh:    discovery.NewMemoryMesh(),
		network: transport.NewMemoryNetwork(),
	}
}

func (h *classroomHarness) teacher(t *testing.T, name string) *TeacherCoordinator {
	t.Helper()
	node := h.mesh.Node("teacher/" + name)
	coordinator := NewTeacher(TeacherConfig{
		Name:       name,
		Advertiser: node,
		Browser:    node,
		Transport:  h.network.Transport("teacher/" + name),
		Logger:     testLogger(),
	})
	t.Cleanup(func() { coordinator.Stop() })
	if err := coordinator.Start(context.Background()); err != nil {
		t.Fatalf("teacher Start: %v", err)
	}
	return coordinator
}

func (h *classroomHarness) student(t *testing.T, node, name, studentID string, alerts chan wire.Alert) *StudentCoordinator {
	t.Helper()
	coordinator := NewStudent(StudentConfig{
		Name:       name,
		StudentID:  studentID,
		Advertiser: h.mesh.Node(node),
		Transport:  h.network.Transport(node),
		Logger:     testLogger(),
		OnAlert:    func(a wire.Alert) { alerts <- a },
	})
	t.Cleanup(func() { coordinator.Stop() })
	if err := coordinator.Start(context.Background()); err != nil {
		t.Fatalf("student Start: %v", err)
	}
	return coordinator
}

func rosterNames(c *TeacherCoordinator) []string {
	roster := c.Roster()
	names := make([]string, len(roster))
	for i, peer := range roster {
		names[i] = peer.DisplayName
	}
	return names
}

func TestTeacherDiscoverInviteConnect(t *testing.T) {
	harness := newHarness()
	teacher := harness.teacher(t, "Ms. Lee")

	if got := teacher.Status(); got != "Teacher mode – listening for students" {
		t.Fatalf("initial status = %q", got)
	}

	alerts := make(chan wire.Alert, 8)
	harness.student(t, "sam", "Sam", "S1", alerts)

	testutil.Eventually(t, 2*time.Second, func() bool {
		return teacher.Status() == "Teacher mode – 1 student(s) connected"
	}, "student never connected; status = %q", teacher.Status())

	roster := teacher.Roster()
	if len(roster) != 1 || roster[0].ID != "S1" || roster[0].DisplayName != "Sam" {
		t.Fatalf("roster = %+v", roster)
	}

	sent := wire.NewAlert(wire.AlertImportantNow, "Ms. Lee")
	if err := teacher.SendAlert(sent, ""); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	got := testutil.RequireReceive(t, alerts, 2*time.Second, "student never received the alert")
	if got.ID != sent.ID || got.Kind != wire.AlertImportantNow {
		t.Errorf("received alert = %+v", got)
	}
}

func TestStudentRelaunchSupersedesOldConnection(t *testing.T) {
	harness := newHarness()
	teacher := harness.teacher(t, "Ms. Lee")

	oldAlerts := make(chan wire.Alert, 8)
	harness.student(t, "sam-old", "Sam", "S1", oldAlerts)

	testutil.Eventually(t, 2*time.Second, func() bool {
		return teacher.Status() == "Teacher mode – 1 student(s) connected"
	}, "first connection")

	// The student relaunches with a new display name. Same stable ID,
	// fresh transport endpoint; the old process never said goodbye.
	newAlerts := make(chan wire.Alert, 8)
	harness.student(t, "sam-new", "Sammy", "S1", newAlerts)

	testutil.Eventually(t, 2*time.Second, func() bool {
		names := rosterNames(teacher)
		return len(names) == 1 && names[0] == "Sammy"
	}, "roster = %v, want exactly [Sammy]", rosterNames(teacher))

	if got := teacher.Status(); got != "Teacher mode – 1 student(s) connected" {
		t.Errorf("status = %q, want 1 student(s) connected", got)
	}

	// Targeted alert lands on the new connection only.
	testutil.Eventually(t, 2*time.Second, func() bool {
		return teacher.SendAlert(wire.NewAlert(wire.AlertCalledByName, "Ms. Lee").Targeted("S1", "Sammy"), "S1") == nil
	}, "targeted send never succeeded")
	testutil.RequireReceive(t, newAlerts, 2*time.Second, "relaunched student never received the alert")
	select {
	case alert := <-oldAlerts:
		t.Errorf("superseded connection received alert %s", alert.ID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStudentRenameInPlace(t *testing.T) {
	harness := newHarness()
	teacher := harness.teacher(t, "Ms. Lee")

	alerts := make(chan wire.Alert, 8)
	sam := harness.student(t, "sam", "Sam", "S1", alerts)

	testutil.Eventually(t, 2*time.Second, func() bool {
		names := rosterNames(teacher)
		return len(names) == 1 && names[0] == "Sam"
	}, "initial connection")

	sam.SetDisplayName("Sammy")

	testutil.Eventually(t, 2*time.Second, func() bool {
		names := rosterNames(teacher)
		return len(names) == 1 && names[0] == "Sammy"
	}, "rename never reached the roster: %v", rosterNames(teacher))
	if got := teacher.Status(); got != "Teacher mode – 1 student(s) connected" {
		t.Errorf("status = %q", got)
	}
}

func TestSendAlertWithNoStudents(t *testing.T) {
	harness := newHarness()
	teacher := harness.teacher(t, "Ms. Lee")

	err := teacher.SendAlert(wire.NewAlert(wire.AlertImportantNow, "Ms. Lee"), "")
	if !errors.Is(err, wire.ErrNoPeersConnected) {
		t.Fatalf("SendAlert = %v, want ErrNoPeersConnected", err)
	}
	if len(teacher.Roster()) != 0 {
		t.Errorf("roster mutated by failed send")
	}
}

func TestSendAlertUnknownStudent(t *testing.T) {
	harness := newHarness()
	teacher := harness.teacher(t, "Ms. Lee")

	alerts := make(chan wire.Alert, 8)
	harness.student(t, "sam", "Sam", "S1", alerts)
	testutil.Eventually(t, 2*time.Second, func() bool {
		return teacher.SendAlert(wire.NewAlert(wire.AlertImportantNow, "Ms. Lee"), "S1") == nil
	}, "student never connected")

	err := teacher.SendAlert(wire.NewAlert(wire.AlertCalledByName, "Ms. Lee"), "S9")
	if !errors.Is(err, wire.ErrUnknownTarget) {
		t.Fatalf("SendAlert to unknown ID = %v, want ErrUnknownTarget", err)
	}
}

func TestTeacherStopIdempotentAndSilencesCallbacks(t *testing.T) {
	harness := newHarness()
	teacher := harness.teacher(t, "Ms. Lee")

	if err := teacher.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := teacher.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if got := teacher.Status(); got != "Disconnected" {
		t.Fatalf("status after stop = %q, want Disconnected", got)
	}

	// A student appearing after stop must not mutate anything.
	alerts := make(chan wire.Alert, 8)
	harness.student(t, "sam", "Sam", "S1", alerts)
	time.Sleep(200 * time.Millisecond)
	if len(teacher.Roster()) != 0 {
		t.Errorf("roster mutated after stop: %v", rosterNames(teacher))
	}
	if got := teacher.Status(); got != "Disconnected" {
		t.Errorf("status after stop = %q", got)
	}
}

func TestStudentStatusAndStop(t *testing.T) {
	harness := newHarness()
	alerts := make(chan wire.Alert, 8)
	sam := harness.student(t, "sam", "Sam", "S1", alerts)

	testutil.Eventually(t, 2*time.Second, func() bool {
		return sam.Status() == "Student mode – listening for alerts"
	}, "student status = %q", sam.Status())

	if err := sam.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := sam.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if got := sam.Status(); got != "Disconnected" {
		t.Errorf("status after stop = %q, want Disconnected", got)
	}
}
