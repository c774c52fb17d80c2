package ledger

import (
	"sort"
	"time"

	"github.com/signalsfoundry/mission-ledger/model"
)

// TimelinePoint is one aggregated state delta at an instant.
type TimelinePoint struct {
	At    time.Time
	Delta model.AssetState
}

// Timeline is the ordered sequence of aggregated state deltas for one
// (schedule, asset) pair. It is a pure recomputation over stored events, so
// iteration is restartable: walking it consumes nothing.
type Timeline struct {
	ScheduleID string
	AssetID    string

	points []TimelinePoint
}

// Aggregate groups raw deltas by instant and sums them component-wise into
// one AssetState delta per instant, deriving the storage-utilization
// component from the asset's static capacity.
//
// Ground stations always aggregate to an empty timeline: ground-station
// physical capacity modeling is an open item, and this seam is where it
// would plug in.
func Aggregate(asset *model.Asset, deltas []model.ResourceDelta) *Timeline {
	tl := &Timeline{}
	if asset == nil {
		return tl
	}
	tl.AssetID = asset.ID
	if len(deltas) > 0 {
		tl.ScheduleID = deltas[0].ScheduleID
	}
	if !asset.IsSatellite() {
		return tl
	}

	byInstant := make(map[int64]*TimelinePoint)
	for _, d := range deltas {
		key := d.At.UnixNano()
		pt, ok := byInstant[key]
		if !ok {
			pt = &TimelinePoint{At: d.At}
			byInstant[key] = pt
		}
		state := model.AssetState{
			Storage:     d.Storage,
			Throughput:  d.Throughput,
			EnergyUsage: d.Energy,
			PowerDraw:   d.PowerDraw,
		}
		if asset.StorageCapacity > 0 {
			state.StorageUtilization = d.Storage / asset.StorageCapacity
		}
		pt.Delta = pt.Delta.Add(state)
	}

	tl.points = make([]TimelinePoint, 0, len(byInstant))
	for _, pt := range byInstant {
		if pt.Delta.IsZero() {
			continue
		}
		tl.points = append(tl.points, *pt)
	}
	sort.Slice(tl.points, func(i, j int) bool {
		return tl.points[i].At.Before(tl.points[j].At)
	})
	return tl
}

// Len returns the number of aggregated instants.
func (tl *Timeline) Len() int { return len(tl.points) }

// Points returns a copy of the full ordered timeline.
func (tl *Timeline) Points() []TimelinePoint {
	return append([]TimelinePoint(nil), tl.points...)
}

// Each walks the timeline in order until fn returns false. Each may be
// called any number of times.
func (tl *Timeline) Each(fn func(at time.Time, delta model.AssetState) bool) {
	for _, pt := range tl.points {
		if !fn(pt.At, pt.Delta) {
			return
		}
	}
}

// Between returns the points strictly after `after` and up to and including
// `upTo`, the interval contract of checkpoint computation.
func (tl *Timeline) Between(after, upTo time.Time) []TimelinePoint {
	var out []TimelinePoint
	for _, pt := range tl.points {
		if !pt.At.After(after) {
			continue
		}
		if pt.At.After(upTo) {
			break
		}
		out = append(out, pt)
	}
	return out
}
