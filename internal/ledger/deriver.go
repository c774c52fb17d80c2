// Package ledger derives, aggregates, and checkpoints the resource state of
// (schedule, asset) pairs from the event catalog.
package ledger

import (
	"sort"

	"github.com/signalsfoundry/mission-ledger/catalog"
	"github.com/signalsfoundry/mission-ledger/model"
)

// DeriveDeltas maps one (schedule, asset) event set to its complete ordered
// set of resource deltas. Six cases, each anchored at a real wall-clock
// instant:
//
//  1. uplink: storage grows by the uplink size at the uplink contact's start;
//  2. execution: storage changes by downlink−uplink and throughput grows by
//     the priority weight at the event's start (only for events producing a
//     deliverable);
//  3. downlink: storage shrinks by the downlink size at the downlink
//     contact's start;
//  4. eclipse-overlap begin: energy grows by power × overlap seconds and
//     power draw grows by the power usage;
//  5. eclipse-overlap end: power draw shrinks by the power usage;
//  6. eclipse elapse: the eclipse's whole energy contribution is negated in
//     one batched delta at the eclipse's end.
//
// Splitting the power/energy accounting across begin/end/elapse keeps every
// delta anchored to an instant the aggregator can order; a single net-effect
// delta would hide the mid-interval excursions peak detection needs.
// All-zero deltas are discarded.
func DeriveDeltas(set *catalog.EventSet) []model.ResourceDelta {
	if set == nil {
		return nil
	}

	var deltas []model.ResourceDelta
	emit := func(d model.ResourceDelta) {
		if d.IsZero() {
			return
		}
		d.ScheduleID = set.ScheduleID
		d.AssetID = set.AssetID
		deltas = append(deltas, d)
	}

	for i := range set.Transmitted {
		t := &set.Transmitted[i]

		if uplink, ok := set.Contacts[t.UplinkContactID]; ok {
			emit(model.ResourceDelta{
				At:      uplink.StartTime,
				Storage: t.UplinkSize,
			})
		}

		if t.HasDownlink() {
			emit(model.ResourceDelta{
				At:         t.StartTime,
				Storage:    t.DownlinkSize - t.UplinkSize,
				Throughput: float64(t.Priority),
			})
			if downlink, ok := set.Contacts[t.DownlinkContactID]; ok {
				emit(model.ResourceDelta{
					At:      downlink.StartTime,
					Storage: -t.DownlinkSize,
				})
			}
		}
	}

	for i := range set.Eclipses {
		eclipse := &set.Eclipses[i]
		eclipseRange := eclipse.TimeRange()

		var eclipseEnergy float64
		for j := range set.Transmitted {
			t := &set.Transmitted[j]
			if t.PowerUsage == 0 {
				continue
			}
			overlap, ok := t.TimeRange().Intersection(eclipseRange)
			if !ok {
				continue
			}
			energy := t.PowerUsage * overlap.Duration().Seconds()
			eclipseEnergy += energy

			emit(model.ResourceDelta{
				At:        overlap.Start,
				Energy:    energy,
				PowerDraw: t.PowerUsage,
			})
			emit(model.ResourceDelta{
				At:        overlap.End,
				PowerDraw: -t.PowerUsage,
			})
		}

		if eclipseEnergy != 0 {
			emit(model.ResourceDelta{
				At:     eclipseRange.End,
				Energy: -eclipseEnergy,
			})
		}
	}

	sort.SliceStable(deltas, func(i, j int) bool {
		return deltas[i].At.Before(deltas[j].At)
	})
	return deltas
}
