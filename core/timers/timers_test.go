package timers

import (
	"testing"
	"time"
)

func TestRunNowFiresImmediately(t *testing.T) {
	w := NewWheel()
	now := time.Unix(0, 0)
	fired := 0
	w.Add(now, time.Second, RunNow, func(any) { fired++ }, nil)
	w.Advance(now)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}

func TestWithoutRunNowWaitsOnePeriod(t *testing.T) {
	w := NewWheel()
	now := time.Unix(0, 0)
	fired := 0
	w.Add(now, time.Second, 0, func(any) { fired++ }, nil)
	w.Advance(now)
	if fired != 0 {
		t.Fatalf("fired = %d, want 0 before period elapses", fired)
	}
	w.Advance(now.Add(time.Second))
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}

func TestRepeatReschedules(t *testing.T) {
	w := NewWheel()
	now := time.Unix(0, 0)
	fired := 0
	w.Add(now, time.Second, Repeat, func(any) { fired++ }, nil)
	for i := 1; i <= 3; i++ {
		w.Advance(now.Add(time.Duration(i) * time.Second))
	}
	if fired != 3 {
		t.Fatalf("fired = %d, want 3", fired)
	}
	if w.Len() != 1 {
		t.Fatalf("expected timer to remain scheduled, Len = %d", w.Len())
	}
}

func TestNonRepeatRemovedAfterFire(t *testing.T) {
	w := NewWheel()
	now := time.Unix(0, 0)
	w.Add(now, time.Second, RunNow, func(any) {}, nil)
	w.Advance(now)
	if w.Len() != 0 {
		t.Fatalf("expected timer removed after single fire, Len = %d", w.Len())
	}
}

func TestOneFirePerAdvanceNoCatchUp(t *testing.T) {
	w := NewWheel()
	now := time.Unix(0, 0)
	fired := 0
	w.Add(now, time.Second, Repeat, func(any) { fired++ }, nil)
	// Jump far into the future in a single Advance: still only one fire.
	w.Advance(now.Add(10 * time.Second))
	if fired != 1 {
		t.Fatalf("fired = %d, want 1 (no catch-up loop)", fired)
	}
}

func TestRemove(t *testing.T) {
	w := NewWheel()
	now := time.Unix(0, 0)
	timer := w.Add(now, time.Second, RunNow, func(any) {}, nil)
	w.Remove(timer.ID())
	if w.Len() != 0 {
		t.Fatalf("expected timer removed, Len = %d", w.Len())
	}
}
