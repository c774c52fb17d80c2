package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/mission-ledger/catalog"
	"github.com/signalsfoundry/mission-ledger/internal/logging"
	"github.com/signalsfoundry/mission-ledger/model"
)

var (
	// ErrNoBaseline indicates a checkpoint was requested with no prior
	// checkpoint and a time other than the schedule's epoch.
	ErrNoBaseline = errors.New("no baseline checkpoint")
	// ErrStaleCheckpoint indicates the requested time does not advance past
	// the latest checkpoint. Checkpoints are never mutated; corrections
	// append later ones.
	ErrStaleCheckpoint = errors.New("checkpoint time must advance")
)

// CheckpointRecorder receives engine activity for observability counters.
type CheckpointRecorder interface {
	ObserveCheckpoint(scheduleID, assetID string, elapsed time.Duration)
	IncCapacityOverflow(assetID string)
}

// Engine computes and retains state checkpoints so that capacity validation
// never replays the raw event timeline.
type Engine struct {
	mu sync.Mutex

	cat *catalog.Catalog
	log logging.Logger

	checkpoints map[pairKey][]*model.StateCheckpoint

	metrics CheckpointRecorder
	tracer  trace.Tracer
}

type pairKey struct {
	scheduleID string
	assetID    string
}

// EngineOption customises engine construction.
type EngineOption func(*Engine)

// WithCheckpointRecorder attaches an optional metrics recorder.
func WithCheckpointRecorder(m CheckpointRecorder) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine constructs a checkpoint engine over the catalog.
func NewEngine(cat *catalog.Catalog, log logging.Logger, opts ...EngineOption) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	e := &Engine{
		cat:         cat,
		log:         log,
		checkpoints: make(map[pairKey][]*model.StateCheckpoint),
		tracer:      otel.Tracer("mission-ledger/checkpoint"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Seed loads previously persisted checkpoints, e.g. on startup. Checkpoints
// are kept per (schedule, asset) in time order.
func (e *Engine) Seed(cps []*model.StateCheckpoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cp := range cps {
		key := pairKey{cp.ScheduleID, cp.AssetID}
		e.checkpoints[key] = append(e.checkpoints[key], cp)
	}
	for _, chain := range e.checkpoints {
		sort.Slice(chain, func(i, j int) bool {
			return chain[i].Time.Before(chain[j].Time)
		})
	}
}

// CreateCheckpoint freezes the cumulative state of (schedule, asset) at t.
//
// DeltaFromPrev sums every aggregated delta strictly after the previous
// checkpoint up to and including t. PeakDeltaFromPrev is the component-wise
// running maximum of the cumulative prefix sums over that interval; each
// component tracks its own peak instant, so a transient excursion is
// captured even when the net delta recovers. State is the previous state
// plus DeltaFromPrev.
//
// With no prior checkpoint, t must be the schedule's epoch; any other
// instant fails with ErrNoBaseline.
func (e *Engine) CreateCheckpoint(ctx context.Context, scheduleID, assetID string, t time.Time) (*model.StateCheckpoint, error) {
	ctx, span := e.tracer.Start(ctx, "CreateCheckpoint", trace.WithAttributes(
		attribute.String("schedule_id", scheduleID),
		attribute.String("asset_id", assetID),
	))
	defer span.End()
	started := time.Now()

	schedule, err := e.cat.GetSchedule(scheduleID)
	if err != nil {
		return nil, err
	}
	asset, err := e.cat.GetAsset(assetID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := pairKey{scheduleID, assetID}
	chain := e.checkpoints[key]

	var prevState model.AssetState
	var prevTime time.Time
	if len(chain) == 0 {
		if !t.Equal(schedule.Epoch) {
			return nil, fmt.Errorf("%w: schedule %s has no checkpoint and %s is not its epoch",
				ErrNoBaseline, scheduleID, t.Format(time.RFC3339))
		}
		prevTime = schedule.Epoch
	} else {
		prev := chain[len(chain)-1]
		if !t.After(prev.Time) {
			return nil, fmt.Errorf("%w: latest checkpoint is at %s", ErrStaleCheckpoint, prev.Time.Format(time.RFC3339))
		}
		prevState = prev.State
		prevTime = prev.Time
	}

	// EventSet snapshots under the catalog lock, serializing this read with
	// concurrent event insertions for the same pair.
	set, err := e.cat.EventSet(scheduleID, assetID)
	if err != nil {
		return nil, err
	}
	timeline := Aggregate(asset, DeriveDeltas(set))

	var delta, running, peak model.AssetState
	for _, pt := range timeline.Between(prevTime, t) {
		running = running.Add(pt.Delta)
		peak = peak.Max(running)
	}
	delta = running

	cp := &model.StateCheckpoint{
		ScheduleID:        scheduleID,
		AssetID:           assetID,
		Time:              t,
		State:             prevState.Add(delta),
		DeltaFromPrev:     delta,
		PeakDeltaFromPrev: peak,
	}
	e.checkpoints[key] = append(chain, cp)

	if e.metrics != nil {
		e.metrics.ObserveCheckpoint(scheduleID, assetID, time.Since(started))
	}
	e.log.Debug(ctx, "checkpoint created",
		logging.String("schedule_id", scheduleID),
		logging.String("asset_id", assetID),
		logging.String("time", t.Format(time.RFC3339)),
	)
	return cp, nil
}

// Latest returns the most recent checkpoint for (schedule, asset).
func (e *Engine) Latest(scheduleID, assetID string) (*model.StateCheckpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	chain := e.checkpoints[pairKey{scheduleID, assetID}]
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w for schedule %s asset %s", ErrNoBaseline, scheduleID, assetID)
	}
	return chain[len(chain)-1], nil
}

// Checkpoints returns the full chain for (schedule, asset) in time order.
func (e *Engine) Checkpoints(scheduleID, assetID string) []*model.StateCheckpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*model.StateCheckpoint(nil), e.checkpoints[pairKey{scheduleID, assetID}]...)
}

// CapacityReport is the outcome of a capacity validation.
type CapacityReport struct {
	// Worst is the latest checkpoint's state plus its peak delta, the
	// worst-case excursion since the checkpoint.
	Worst model.AssetState
	Limit model.CapacityLimit

	StorageExceeded bool
	EnergyExceeded  bool
}

// Overflow reports whether any constrained component exceeds its limit.
func (r CapacityReport) Overflow() bool {
	return r.StorageExceeded || r.EnergyExceeded
}

// ValidateCapacity compares the latest checkpoint's state plus its peak
// delta against the limit. It reports an overflow even when the net delta
// after the peak is negative: a mid-interval breach is never masked by the
// interval's final value. No raw events are replayed.
func (e *Engine) ValidateCapacity(ctx context.Context, scheduleID, assetID string, limit model.CapacityLimit) (CapacityReport, error) {
	cp, err := e.Latest(scheduleID, assetID)
	if err != nil {
		return CapacityReport{}, err
	}

	report := CapacityReport{
		Worst: cp.State.Add(cp.PeakDeltaFromPrev),
		Limit: limit,
	}
	if limit.Storage > 0 && report.Worst.Storage > limit.Storage {
		report.StorageExceeded = true
	}
	if limit.Energy > 0 && report.Worst.EnergyUsage > limit.Energy {
		report.EnergyExceeded = true
	}

	if report.Overflow() {
		if e.metrics != nil {
			e.metrics.IncCapacityOverflow(assetID)
		}
		e.log.Warn(ctx, "capacity overflow detected",
			logging.String("schedule_id", scheduleID),
			logging.String("asset_id", assetID),
			logging.Any("worst", report.Worst),
		)
	}
	return report, nil
}
