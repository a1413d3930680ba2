// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	fake := Fake(testEpoch)
	ch := fake.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	fake.Advance(5 * time.Second)
	select {
	case fired := <-ch:
		if !fired.Equal(testEpoch.Add(5 * time.Second)) {
			t.Errorf("fire time = %v, want %v", fired, testEpoch.Add(5*time.Second))
		}
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	fake := Fake(testEpoch)
	calls := 0
	timer := fake.AfterFunc(time.Second, func() { calls++ })

	if !timer.Stop() {
		t.Error("first Stop = false, want true")
	}
	if timer.Stop() {
		t.Error("second Stop = true, want false")
	}

	fake.Advance(2 * time.Second)
	if calls != 0 {
		t.Errorf("stopped timer fired %d times", calls)
	}
}

func TestFakeAfterFuncFiresInDeadlineOrder(t *testing.T) {
	fake := Fake(testEpoch)
	var order []int
	fake.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	fake.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	fake.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	fake.Advance(5 * time.Second)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("fire order = %v, want [1 2 3]", order)
	}
}

func TestFakeAfterFuncResetRearmsFiredTimer(t *testing.T) {
	fake := Fake(testEpoch)
	calls := 0
	timer := fake.AfterFunc(time.Second, func() { calls++ })

	fake.Advance(time.Second)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	if timer.Reset(time.Second) {
		t.Error("Reset on fired timer = true, want false")
	}
	fake.Advance(time.Second)
	if calls != 2 {
		t.Errorf("calls after re-arm = %d, want 2", calls)
	}
}

func TestFakeTickerTicksPerInterval(t *testing.T) {
	fake := Fake(testEpoch)
	ticker := fake.NewTicker(time.Second)
	defer ticker.Stop()

	ticks := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range ticker.C {
			ticks++
			if ticks == 3 {
				return
			}
		}
	}()

	// Advance one interval at a time: the tick channel has capacity 1,
	// so a single large Advance would drop ticks.
	for i := 0; i < 3; i++ {
		fake.Advance(time.Second)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("ticker delivered %d ticks, want 3", ticks)
	}
}

func TestFakePendingCount(t *testing.T) {
	fake := Fake(testEpoch)
	if fake.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d, want 0", fake.PendingCount())
	}
	timer := fake.AfterFunc(time.Minute, func() {})
	if fake.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", fake.PendingCount())
	}
	timer.Stop()
	if fake.PendingCount() != 0 {
		t.Errorf("PendingCount after Stop = %d, want 0", fake.PendingCount())
	}
}
