// Package lockarb arbitrates exclusive, priority-preemptible locks over
// (schedule, time range) windows. The arbitrator is the sole serialization
// point for writing events into a schedule window.
package lockarb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/mission-ledger/internal/logging"
	"github.com/signalsfoundry/mission-ledger/model"
)

var (
	// ErrLockHeld indicates an intersecting lock with equal or higher
	// priority exists. Non-fatal: the caller may retry, wait, or pick a
	// different window. Acquisition never queues.
	ErrLockHeld = errors.New("schedule window is locked")
	// ErrNotFound indicates the referenced lock does not exist.
	ErrNotFound = errors.New("lock not found")
)

// Recorder receives arbitration outcomes for observability counters.
type Recorder interface {
	IncLockAcquired()
	IncLockPreempted()
	IncLockRejected()
}

// PreemptionRecord stores which lock was preempted, by what, and when.
type PreemptionRecord struct {
	PreemptedAt time.Time
	PreemptedBy string
	Range       model.TimeRange
	Priority    int
}

// Arbitrator holds the per-schedule lock tables. Acquisition is
// test-intersection-and-insert (or delete-and-insert on preemption) under a
// single mutex, so two workers can never both believe they hold a window.
type Arbitrator struct {
	mu sync.Mutex

	locks map[string][]*model.ScheduleLock
	byID  map[string]string // lock ID -> schedule ID

	// preemptions records displaced locks by their ID for diagnostics.
	preemptions map[string]PreemptionRecord

	log     logging.Logger
	metrics Recorder
	tracer  trace.Tracer
	now     func() time.Time
}

// Option customises arbitrator construction.
type Option func(*Arbitrator)

// WithRecorder attaches an optional metrics recorder.
func WithRecorder(m Recorder) Option {
	return func(a *Arbitrator) { a.metrics = m }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Arbitrator) { a.now = now }
}

// New constructs an arbitrator with no held locks.
func New(log logging.Logger, opts ...Option) *Arbitrator {
	if log == nil {
		log = logging.Noop()
	}
	a := &Arbitrator{
		locks:       make(map[string][]*model.ScheduleLock),
		byID:        make(map[string]string),
		preemptions: make(map[string]PreemptionRecord),
		log:         log,
		tracer:      otel.Tracer("mission-ledger/lockarb"),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Acquisition is the outcome of a successful Acquire. Displaced lists the
// locks preemption deleted; their holders' in-flight work for the window is
// invalidated and must be surfaced as displaced.
type Acquisition struct {
	Lock      *model.ScheduleLock
	Displaced []*model.ScheduleLock
}

// Acquire claims [rng) on the schedule.
//
//   - No intersecting lock: granted immediately.
//   - Every intersecting lock has strictly lower priority: they are deleted
//     and the new lock inserted in the same critical section (preemption is
//     a destructive success, not an error).
//   - Any intersecting lock has priority >= the requester's: fails fast with
//     ErrLockHeld and nothing changes.
//
// Exactly one lock covers any (schedule, instant) afterwards.
func (a *Arbitrator) Acquire(ctx context.Context, scheduleID string, rng model.TimeRange, priority int) (*Acquisition, error) {
	ctx, span := a.tracer.Start(ctx, "Acquire", trace.WithAttributes(
		attribute.String("schedule_id", scheduleID),
		attribute.Int("priority", priority),
	))
	defer span.End()

	if scheduleID == "" {
		return nil, fmt.Errorf("%w: schedule ID is required", model.ErrValidation)
	}
	if !rng.IsValid() {
		return nil, fmt.Errorf("%w: lock range end must follow its start", model.ErrValidation)
	}
	if priority < 0 {
		return nil, fmt.Errorf("%w: lock priority must be non-negative", model.ErrValidation)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	held := a.locks[scheduleID]
	var intersecting []*model.ScheduleLock
	for _, l := range held {
		if l.Range.Intersects(rng) {
			if l.Priority >= priority {
				if a.metrics != nil {
					a.metrics.IncLockRejected()
				}
				return nil, fmt.Errorf("%w: lock %s holds [%s, %s) at priority %d",
					ErrLockHeld, l.ID,
					l.Range.Start.Format(time.RFC3339), l.Range.End.Format(time.RFC3339), l.Priority)
			}
			intersecting = append(intersecting, l)
		}
	}

	lock := &model.ScheduleLock{
		ID:         uuid.NewString(),
		ScheduleID: scheduleID,
		Range:      rng,
		Priority:   priority,
		AcquiredAt: a.now(),
	}

	if len(intersecting) > 0 {
		remaining := held[:0]
		displacedIDs := make(map[string]bool, len(intersecting))
		for _, l := range intersecting {
			displacedIDs[l.ID] = true
		}
		for _, l := range held {
			if displacedIDs[l.ID] {
				delete(a.byID, l.ID)
				a.preemptions[l.ID] = PreemptionRecord{
					PreemptedAt: lock.AcquiredAt,
					PreemptedBy: lock.ID,
					Range:       l.Range,
					Priority:    l.Priority,
				}
				continue
			}
			remaining = append(remaining, l)
		}
		held = remaining
		if a.metrics != nil {
			a.metrics.IncLockPreempted()
		}
		a.log.Info(ctx, "lock preempted",
			logging.String("schedule_id", scheduleID),
			logging.Int("displaced", len(intersecting)),
			logging.String("winner", lock.ID),
		)
	}

	a.locks[scheduleID] = insertSorted(held, lock)
	a.byID[lock.ID] = scheduleID

	if a.metrics != nil {
		a.metrics.IncLockAcquired()
	}
	return &Acquisition{Lock: lock, Displaced: intersecting}, nil
}

// Release deletes the lock and records its release time on the returned
// value. It fails with ErrNotFound for unknown (or already preempted) locks.
func (a *Arbitrator) Release(ctx context.Context, lockID string) (*model.ScheduleLock, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	scheduleID, ok := a.byID[lockID]
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", lockID, ErrNotFound)
	}

	held := a.locks[scheduleID]
	for i, l := range held {
		if l.ID != lockID {
			continue
		}
		l.LastReleaseTime = a.now()
		a.locks[scheduleID] = append(held[:i], held[i+1:]...)
		delete(a.byID, lockID)
		a.log.Debug(ctx, "lock released",
			logging.String("schedule_id", scheduleID),
			logging.String("lock_id", lockID),
		)
		return l, nil
	}
	return nil, fmt.Errorf("lock %s: %w", lockID, ErrNotFound)
}

// Locks returns a snapshot of the held locks for a schedule in start order.
func (a *Arbitrator) Locks(scheduleID string) []model.ScheduleLock {
	a.mu.Lock()
	defer a.mu.Unlock()

	held := a.locks[scheduleID]
	out := make([]model.ScheduleLock, 0, len(held))
	for _, l := range held {
		out = append(out, *l)
	}
	return out
}

// Preemption returns the record for a displaced lock, if any.
func (a *Arbitrator) Preemption(lockID string) (PreemptionRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.preemptions[lockID]
	return rec, ok
}

func insertSorted(held []*model.ScheduleLock, lock *model.ScheduleLock) []*model.ScheduleLock {
	pos := sort.Search(len(held), func(i int) bool {
		return held[i].Range.Start.After(lock.Range.Start)
	})
	held = append(held, nil)
	copy(held[pos+1:], held[pos:])
	held[pos] = lock
	return held
}
