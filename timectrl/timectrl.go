// Package timectrl provides the planning reference clock. Schedulers depend
// on the Clock abstraction rather than wall time so replanning can move the
// reference point arbitrarily into the past or future.
package timectrl

import (
	"sync"
	"time"
)

// Clock is an interface for accessing the planning reference time.
type Clock interface {
	// Now returns the current reference time.
	Now() time.Time
}

// WallClock is a Clock backed by the system clock.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now().UTC() }

// ReferenceController drives a schedule's reference time as an offset from
// its epoch and notifies registered listeners when the reference shifts.
// Listeners typically recompute uncovered opportunity gaps for the new
// horizon; already processed spans stay covered, so a shift never forces a
// full recomputation.
type ReferenceController struct {
	mu sync.RWMutex

	epoch  time.Time
	offset time.Duration

	listeners []func(reference time.Time)
}

// NewReferenceController constructs a controller anchored at the epoch with
// the given initial offset.
func NewReferenceController(epoch time.Time, offset time.Duration) *ReferenceController {
	return &ReferenceController{
		epoch:  epoch,
		offset: offset,
	}
}

// Now returns the current reference time (epoch + offset). Implements Clock.
func (rc *ReferenceController) Now() time.Time {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.epoch.Add(rc.offset)
}

// Offset returns the current reference-time offset.
func (rc *ReferenceController) Offset() time.Duration {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.offset
}

// AddListener registers a callback invoked on every reference shift.
func (rc *ReferenceController) AddListener(fn func(reference time.Time)) {
	if fn == nil {
		return
	}
	rc.mu.Lock()
	rc.listeners = append(rc.listeners, fn)
	rc.mu.Unlock()
}

// Shift moves the reference time by delta and notifies listeners with the
// new reference. Negative deltas replan into the past.
func (rc *ReferenceController) Shift(delta time.Duration) time.Time {
	rc.mu.Lock()
	rc.offset += delta
	reference := rc.epoch.Add(rc.offset)
	listeners := append(rc.listeners[:0:0], rc.listeners...)
	rc.mu.Unlock()

	for _, fn := range listeners {
		fn(reference)
	}
	return reference
}

// SetOffset replaces the offset outright and notifies listeners.
func (rc *ReferenceController) SetOffset(offset time.Duration) time.Time {
	rc.mu.Lock()
	rc.offset = offset
	reference := rc.epoch.Add(rc.offset)
	listeners := append(rc.listeners[:0:0], rc.listeners...)
	rc.mu.Unlock()

	for _, fn := range listeners {
		fn(reference)
	}
	return reference
}
