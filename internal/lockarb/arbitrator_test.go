package lockarb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/mission-ledger/model"
)

var epoch = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func window(fromMin, toMin int) model.TimeRange {
	return model.TimeRange{
		Start: epoch.Add(time.Duration(fromMin) * time.Minute),
		End:   epoch.Add(time.Duration(toMin) * time.Minute),
	}
}

func TestAcquirePreemptionLadder(t *testing.T) {
	arb := New(nil)
	ctx := context.Background()

	// Priority 1 holds [10:00, 10:30).
	low, err := arb.Acquire(ctx, "sched-1", window(0, 30), 1)
	if err != nil {
		t.Fatalf("low-priority acquire failed: %v", err)
	}
	if len(low.Displaced) != 0 {
		t.Fatalf("first lock displaced %d locks", len(low.Displaced))
	}

	// Priority 5 wants [10:15, 10:45): it overlaps and wins by preemption.
	high, err := arb.Acquire(ctx, "sched-1", window(15, 45), 5)
	if err != nil {
		t.Fatalf("high-priority acquire failed: %v", err)
	}
	if len(high.Displaced) != 1 || high.Displaced[0].ID != low.Lock.ID {
		t.Fatalf("expected the priority-1 lock displaced, got %+v", high.Displaced)
	}

	// Priority 2 wants [10:20, 10:40): the priority-5 holder wins.
	if _, err := arb.Acquire(ctx, "sched-1", window(20, 40), 2); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld against higher-priority holder, got %v", err)
	}

	// Only the winner remains in the table.
	held := arb.Locks("sched-1")
	if len(held) != 1 || held[0].ID != high.Lock.ID {
		t.Fatalf("expected only the winning lock held, got %+v", held)
	}
}

func TestAcquireEqualPriorityFails(t *testing.T) {
	arb := New(nil)
	ctx := context.Background()

	if _, err := arb.Acquire(ctx, "sched-1", window(0, 30), 3); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	// Ties go to the holder.
	if _, err := arb.Acquire(ctx, "sched-1", window(10, 40), 3); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld on equal priority, got %v", err)
	}
}

func TestAcquireDisjointWindows(t *testing.T) {
	arb := New(nil)
	ctx := context.Background()

	if _, err := arb.Acquire(ctx, "sched-1", window(0, 30), 1); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	// Ranges are half-open, so [10:30, 10:45) does not touch [10:00, 10:30).
	if _, err := arb.Acquire(ctx, "sched-1", window(30, 45), 1); err != nil {
		t.Fatalf("adjacent acquire failed: %v", err)
	}
	// A different schedule has its own table.
	if _, err := arb.Acquire(ctx, "sched-2", window(0, 30), 1); err != nil {
		t.Fatalf("acquire on second schedule failed: %v", err)
	}

	held := arb.Locks("sched-1")
	if len(held) != 2 {
		t.Fatalf("expected 2 locks held, got %d", len(held))
	}
	if !held[0].Range.Start.Before(held[1].Range.Start) {
		t.Fatalf("locks must be reported in start order")
	}
}

func TestAcquirePreemptsMultipleHolders(t *testing.T) {
	arb := New(nil)
	ctx := context.Background()

	if _, err := arb.Acquire(ctx, "sched-1", window(0, 10), 1); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if _, err := arb.Acquire(ctx, "sched-1", window(20, 30), 2); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	acq, err := arb.Acquire(ctx, "sched-1", window(5, 25), 4)
	if err != nil {
		t.Fatalf("spanning acquire failed: %v", err)
	}
	if len(acq.Displaced) != 2 {
		t.Fatalf("expected both holders displaced, got %d", len(acq.Displaced))
	}

	// One intersecting equal-or-higher holder vetoes the whole request, even
	// when another intersecting holder is lower.
	if _, err := arb.Acquire(ctx, "sched-1", window(0, 30), 4); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if len(arb.Locks("sched-1")) != 1 {
		t.Fatalf("failed acquire must not change the table")
	}
}

func TestReleaseStampsTime(t *testing.T) {
	now := epoch
	arb := New(nil, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	acq, err := arb.Acquire(ctx, "sched-1", window(0, 30), 1)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if !acq.Lock.AcquiredAt.Equal(epoch) {
		t.Fatalf("wrong acquisition time %s", acq.Lock.AcquiredAt)
	}

	now = epoch.Add(10 * time.Minute)
	released, err := arb.Release(ctx, acq.Lock.ID)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if !released.LastReleaseTime.Equal(now) {
		t.Fatalf("expected release time %s, got %s", now, released.LastReleaseTime)
	}

	// The window is free again.
	if _, err := arb.Acquire(ctx, "sched-1", window(0, 30), 1); err != nil {
		t.Fatalf("reacquire after release failed: %v", err)
	}
	// A released lock cannot be released twice.
	if _, err := arb.Release(ctx, acq.Lock.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double release, got %v", err)
	}
}

func TestPreemptedLockCannotBeReleased(t *testing.T) {
	arb := New(nil)
	ctx := context.Background()

	low, err := arb.Acquire(ctx, "sched-1", window(0, 30), 1)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	high, err := arb.Acquire(ctx, "sched-1", window(0, 30), 5)
	if err != nil {
		t.Fatalf("preempting acquire failed: %v", err)
	}

	if _, err := arb.Release(ctx, low.Lock.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound releasing a preempted lock, got %v", err)
	}

	rec, ok := arb.Preemption(low.Lock.ID)
	if !ok {
		t.Fatalf("expected a preemption record for the displaced lock")
	}
	if rec.PreemptedBy != high.Lock.ID || rec.Priority != 1 {
		t.Fatalf("wrong preemption record: %+v", rec)
	}
	if !rec.Range.Start.Equal(epoch) {
		t.Fatalf("preemption record lost the window: %+v", rec)
	}
}

func TestAcquireValidation(t *testing.T) {
	arb := New(nil)
	ctx := context.Background()

	if _, err := arb.Acquire(ctx, "", window(0, 30), 1); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty schedule, got %v", err)
	}
	if _, err := arb.Acquire(ctx, "sched-1", window(30, 30), 1); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty range, got %v", err)
	}
	if _, err := arb.Acquire(ctx, "sched-1", window(0, 30), -1); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation for negative priority, got %v", err)
	}
}
