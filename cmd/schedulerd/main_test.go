package main

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/mission-ledger/catalog"
	"github.com/signalsfoundry/mission-ledger/internal/ledger"
	"github.com/signalsfoundry/mission-ledger/internal/lockarb"
	"github.com/signalsfoundry/mission-ledger/internal/logging"
	"github.com/signalsfoundry/mission-ledger/internal/opportunity"
	"github.com/signalsfoundry/mission-ledger/internal/store"
	"github.com/signalsfoundry/mission-ledger/internal/windows"
	"github.com/signalsfoundry/mission-ledger/model"
)

// A historical ISS element set; planning spans start near its epoch.
const (
	issTLELine1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issTLELine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

var planEpoch = time.Date(2021, 10, 2, 12, 0, 0, 0, time.UTC)

func newPlanningFixture(t *testing.T) (*catalog.Catalog, *store.Store) {
	t.Helper()

	cat := catalog.New(nil)
	assets := []*model.Asset{
		{ID: "sat-a", Kind: model.AssetSatellite, TLELine1: issTLELine1, TLELine2: issTLELine2},
		{ID: "sat-b", Kind: model.AssetSatellite, TLELine1: issTLELine1, TLELine2: issTLELine2},
		{ID: "gs-1", Kind: model.AssetGroundStation, Longitude: -78.5},
	}
	for _, a := range assets {
		if err := cat.RegisterAsset(a); err != nil {
			t.Fatalf("RegisterAsset(%s) failed: %v", a.ID, err)
		}
	}
	if err := cat.AddSchedule(&model.Schedule{ID: "sched-1", Epoch: planEpoch}); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	db, err := store.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return cat, db
}

func TestPopulateScheduleGapsTracksPerSatellite(t *testing.T) {
	cat, db := newPlanningFixture(t)
	tracker := windows.NewTracker(nil)
	feed := opportunity.NewFeed(nil, opportunity.WithSampleStep(time.Minute))
	ctx := context.Background()
	span := model.TimeRange{Start: planEpoch, End: planEpoch.Add(30 * time.Minute)}

	populateScheduleGaps(ctx, logging.Noop(), cat, tracker, feed, db, "sched-1", span)

	key := opportunityKey("sched-1")
	for _, satID := range []string{"sat-a", "sat-b"} {
		blocks := tracker.Blocks(satID, key)
		if len(blocks) != 1 {
			t.Fatalf("%s: expected one block, got %d", satID, len(blocks))
		}
		if blocks[0].Status != model.BlockProcessed {
			t.Fatalf("%s: expected processed block, got %s", satID, blocks[0].Status)
		}
		if !blocks[0].Range.Start.Equal(span.Start) || !blocks[0].Range.End.Equal(span.End) {
			t.Fatalf("%s: block must cover the span, got %+v", satID, blocks[0].Range)
		}

		persisted, err := db.Blocks(ctx, satID, key)
		if err != nil {
			t.Fatalf("Blocks(%s) failed: %v", satID, err)
		}
		if len(persisted) != 1 {
			t.Fatalf("%s: expected one persisted block, got %d", satID, len(persisted))
		}
	}
}

func TestPopulateScheduleGapsCoversSatellitesIndependently(t *testing.T) {
	cat, db := newPlanningFixture(t)
	tracker := windows.NewTracker(nil)
	feed := opportunity.NewFeed(nil, opportunity.WithSampleStep(time.Minute))
	ctx := context.Background()
	span := model.TimeRange{Start: planEpoch, End: planEpoch.Add(30 * time.Minute)}
	key := opportunityKey("sched-1")

	// sat-a's span is already computed; sat-b's is not.
	seed := &model.ProcessingBlock{
		ID:          "block-a",
		AssetID:     "sat-a",
		Key:         key,
		Range:       span,
		Status:      model.BlockProcessed,
		StartedAt:   planEpoch,
		CompletedAt: planEpoch,
	}
	if err := tracker.Seed([]*model.ProcessingBlock{seed}); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	populateScheduleGaps(ctx, logging.Noop(), cat, tracker, feed, db, "sched-1", span)

	if blocks := tracker.Blocks("sat-a", key); len(blocks) != 1 || blocks[0].ID != "block-a" {
		t.Fatalf("covered satellite must not be recomputed, got %d blocks", len(blocks))
	}
	blocks := tracker.Blocks("sat-b", key)
	if len(blocks) != 1 || blocks[0].Status != model.BlockProcessed {
		t.Fatalf("uncovered satellite must still be computed, got %+v", blocks)
	}
}

func TestSweepBaselinesAtEpochThenAdvances(t *testing.T) {
	cat, db := newPlanningFixture(t)
	engine := ledger.NewEngine(cat, nil)
	arb := lockarb.New(nil)
	ctx := context.Background()

	sch, err := cat.GetSchedule("sched-1")
	if err != nil {
		t.Fatalf("GetSchedule failed: %v", err)
	}

	// The first sweep finds no baseline and anchors the chain at the epoch.
	sweep(ctx, logging.Noop(), engine, cat, db, arb, sch, time.Minute, planEpoch.Add(30*time.Minute))
	chain := engine.Checkpoints("sched-1", "sat-a")
	if len(chain) != 1 {
		t.Fatalf("expected one baseline checkpoint, got %d", len(chain))
	}
	if !chain[0].Time.Equal(sch.Epoch) {
		t.Fatalf("baseline must sit at the epoch %s, got %s", sch.Epoch, chain[0].Time)
	}

	// A sweep that does not advance past the latest checkpoint appends
	// nothing; the stale chain is left alone rather than re-baselined.
	sweep(ctx, logging.Noop(), engine, cat, db, arb, sch, time.Minute, planEpoch)
	if chain := engine.Checkpoints("sched-1", "sat-a"); len(chain) != 1 {
		t.Fatalf("stale sweep must not append, got %d checkpoints", len(chain))
	}

	// A later sweep extends the chain at its own reference time.
	now := planEpoch.Add(time.Hour)
	sweep(ctx, logging.Noop(), engine, cat, db, arb, sch, time.Minute, now)
	chain = engine.Checkpoints("sched-1", "sat-a")
	if len(chain) != 2 {
		t.Fatalf("expected two checkpoints, got %d", len(chain))
	}
	if !chain[1].Time.Equal(now) {
		t.Fatalf("expected checkpoint at %s, got %s", now, chain[1].Time)
	}

	persisted, err := db.Checkpoints(ctx, "sched-1", "sat-a")
	if err != nil {
		t.Fatalf("Checkpoints failed: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("expected two persisted checkpoints, got %d", len(persisted))
	}
}
