package opportunity

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/mission-ledger/catalog"
	"github.com/signalsfoundry/mission-ledger/model"
)

// A historical ISS element set; test horizons start at its epoch.
const (
	issTLELine1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issTLELine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

var issEpoch = time.Date(2021, 10, 2, 14, 0, 0, 0, time.UTC)

var horizonStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestSampleWindowsCollapsesRuns(t *testing.T) {
	f := NewFeed(nil, WithSampleStep(time.Minute))
	horizon := model.TimeRange{Start: horizonStart, End: horizonStart.Add(10 * time.Minute)}

	visible := func(at time.Time) bool {
		min := int(at.Sub(horizonStart) / time.Minute)
		return (min >= 2 && min <= 4) || min >= 8
	}

	windows := f.sampleWindows(horizon, visible)
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d: %+v", len(windows), windows)
	}
	if !windows[0].Start.Equal(horizonStart.Add(2*time.Minute)) ||
		!windows[0].End.Equal(horizonStart.Add(5*time.Minute)) {
		t.Fatalf("wrong first window: %+v", windows[0])
	}
	// A run still open at the last sample closes at the horizon end.
	if !windows[1].End.Equal(horizon.End) {
		t.Fatalf("open run must close at the horizon, got %+v", windows[1])
	}
}

func TestSampleWindowsNeverVisible(t *testing.T) {
	f := NewFeed(nil, WithSampleStep(time.Minute))
	horizon := model.TimeRange{Start: horizonStart, End: horizonStart.Add(10 * time.Minute)}

	if windows := f.sampleWindows(horizon, func(time.Time) bool { return false }); len(windows) != 0 {
		t.Fatalf("expected no windows, got %+v", windows)
	}
	if windows := f.sampleWindows(horizon, func(time.Time) bool { return true }); len(windows) != 1 {
		t.Fatalf("expected one covering window, got %+v", windows)
	}
}

func TestContactWindowsValidation(t *testing.T) {
	f := NewFeed(nil)
	horizon := model.TimeRange{Start: horizonStart, End: horizonStart.Add(time.Hour)}

	sat := &model.Asset{ID: "sat-1", Kind: model.AssetSatellite}
	gs := &model.Asset{ID: "gs-1", Kind: model.AssetGroundStation}

	if _, err := f.ContactWindows(gs, gs, horizon); err == nil {
		t.Fatalf("expected error for a non-satellite asset")
	}
	if _, err := f.ContactWindows(sat, sat, horizon); err == nil {
		t.Fatalf("expected error for a satellite ground station")
	}
	// A satellite without orbital elements cannot be propagated.
	if _, err := f.ContactWindows(sat, gs, horizon); err == nil {
		t.Fatalf("expected error for a missing TLE")
	}
	if _, err := f.EclipseWindows(sat, horizon); err == nil {
		t.Fatalf("expected error for a missing TLE")
	}
}

func TestPopulateSatelliteAttributesEvents(t *testing.T) {
	cat := catalog.New(nil)
	sat := &model.Asset{ID: "sat-1", Kind: model.AssetSatellite, TLELine1: issTLELine1, TLELine2: issTLELine2}
	other := &model.Asset{ID: "sat-2", Kind: model.AssetSatellite, TLELine1: issTLELine1, TLELine2: issTLELine2}
	gs := &model.Asset{ID: "gs-1", Kind: model.AssetGroundStation, Longitude: -78.5}
	for _, a := range []*model.Asset{sat, other, gs} {
		if err := cat.RegisterAsset(a); err != nil {
			t.Fatalf("RegisterAsset(%s) failed: %v", a.ID, err)
		}
	}
	if err := cat.AddSchedule(&model.Schedule{ID: "sched-1", Epoch: issEpoch}); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	f := NewFeed(nil, WithSampleStep(30*time.Second))
	// Two orbits; the satellite crosses the Earth's shadow at least once.
	horizon := model.TimeRange{Start: issEpoch, End: issEpoch.Add(3 * time.Hour)}
	if err := f.PopulateSatellite(context.Background(), cat, "sched-1", sat, horizon); err != nil {
		t.Fatalf("PopulateSatellite failed: %v", err)
	}

	set, err := cat.EventSet("sched-1", "sat-1")
	if err != nil {
		t.Fatalf("EventSet failed: %v", err)
	}
	if len(set.Eclipses) == 0 {
		t.Fatalf("expected at least one eclipse window over two orbits")
	}
	for _, e := range set.Eclipses {
		if e.AssetID != "sat-1" || e.ScheduleID != "sched-1" {
			t.Fatalf("eclipse attributed to %s/%s, want sched-1/sat-1", e.ScheduleID, e.AssetID)
		}
		if e.Duration <= 0 {
			t.Fatalf("eclipse %s has non-positive duration %s", e.ID, e.Duration)
		}
	}

	// Only the populated satellite gains events.
	otherSet, err := cat.EventSet("sched-1", "sat-2")
	if err != nil {
		t.Fatalf("EventSet failed: %v", err)
	}
	if len(otherSet.Eclipses) != 0 {
		t.Fatalf("expected no events for sat-2, got %d eclipses", len(otherSet.Eclipses))
	}
}
