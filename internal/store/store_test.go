package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/mission-ledger/catalog"
	"github.com/signalsfoundry/mission-ledger/model"
)

var epoch = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedScenario(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	assets := []*model.Asset{
		{ID: "sat-1", Name: "sat-1", Kind: model.AssetSatellite, StorageCapacity: 100, BatteryCapacityWh: 50},
		{ID: "gs-1", Name: "gs-1", Kind: model.AssetGroundStation},
	}
	for _, a := range assets {
		if err := s.SaveAsset(ctx, a); err != nil {
			t.Fatalf("save asset %s: %v", a.ID, err)
		}
	}
	if err := s.SaveSchedule(ctx, &model.Schedule{ID: "sched-1", Name: "plan", Epoch: epoch}); err != nil {
		t.Fatalf("save schedule: %v", err)
	}

	for _, ct := range []struct {
		id    string
		start time.Time
	}{
		{"contact-up", epoch},
		{"contact-down", epoch.Add(20 * time.Minute)},
	} {
		err := s.SaveContact(ctx, &model.ContactEvent{
			EventBase: model.EventBase{
				ID:         ct.id,
				ScheduleID: "sched-1",
				AssetID:    "sat-1",
				StartTime:  ct.start,
				Duration:   5 * time.Minute,
			},
			GroundStationID: "gs-1",
			UplinkRate:      10,
			DownlinkRate:    50,
		})
		if err != nil {
			t.Fatalf("save contact %s: %v", ct.id, err)
		}
	}
}

func transmittedEvent(id string) *model.TransmittedEvent {
	return &model.TransmittedEvent{
		EventBase: model.EventBase{
			ID:         id,
			ScheduleID: "sched-1",
			AssetID:    "sat-1",
			StartTime:  epoch.Add(10 * time.Minute),
			Duration:   time.Minute,
		},
		Kind:              model.TransmittedOutbound,
		UplinkSize:        5,
		DownlinkSize:      2,
		PowerUsage:        1,
		Priority:          3,
		UplinkContactID:   "contact-up",
		DownlinkContactID: "contact-down",
	}
}

func contactTotals(t *testing.T, s *Store, id string) (float64, float64) {
	t.Helper()
	var rec ContactEventRecord
	if err := s.db.First(&rec, "id = ?", id).Error; err != nil {
		t.Fatalf("load contact %s: %v", id, err)
	}
	return rec.TotalUplinkSize, rec.TotalDownlinkSize
}

func TestInsertTransmittedAdjustsContactTotals(t *testing.T) {
	s := openTestStore(t)
	seedScenario(t, s)
	ctx := context.Background()

	if err := s.InsertTransmitted(ctx, transmittedEvent("ev-1")); err != nil {
		t.Fatalf("InsertTransmitted failed: %v", err)
	}

	if up, _ := contactTotals(t, s, "contact-up"); up != 5 {
		t.Fatalf("expected uplink total 5, got %v", up)
	}
	if _, down := contactTotals(t, s, "contact-down"); down != 2 {
		t.Fatalf("expected downlink total 2, got %v", down)
	}

	if err := s.RemoveTransmitted(ctx, "ev-1"); err != nil {
		t.Fatalf("RemoveTransmitted failed: %v", err)
	}
	up, down := contactTotals(t, s, "contact-up")
	if up != 0 || down != 0 {
		t.Fatalf("removal must restore totals, got %v/%v", up, down)
	}
	if err := s.RemoveTransmitted(ctx, "ev-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double removal, got %v", err)
	}
}

func TestInsertTransmittedUnknownContactRollsBack(t *testing.T) {
	s := openTestStore(t)
	seedScenario(t, s)
	ctx := context.Background()

	ev := transmittedEvent("ev-1")
	ev.UplinkContactID = "missing"
	if err := s.InsertTransmitted(ctx, ev); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown contact, got %v", err)
	}

	// The whole transaction rolled back: no orphan event row.
	var count int64
	if err := s.db.Model(&TransmittedEventRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no transmitted rows after rollback, got %d", count)
	}
}

func TestUpdateRequestStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.SaveRequest(ctx, &model.ScheduleRequest{
		ID: "req-1", ScheduleID: "sched-1", OrderID: "order-1",
		OrderType: model.OrderImage, Status: model.RequestReceived,
		WindowStart: epoch, WindowEnd: epoch.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("save request: %v", err)
	}

	at := epoch.Add(time.Minute)
	if err := s.UpdateRequestStatus(ctx, "req-1", model.RequestDeclined, "no capacity", at); err != nil {
		t.Fatalf("UpdateRequestStatus failed: %v", err)
	}

	var rec ScheduleRequestRecord
	if err := s.db.First(&rec, "id = ?", "req-1").Error; err != nil {
		t.Fatalf("load request: %v", err)
	}
	if rec.Status != string(model.RequestDeclined) || rec.StatusMessage != "no capacity" {
		t.Fatalf("status not persisted: %s %q", rec.Status, rec.StatusMessage)
	}

	if err := s.UpdateRequestStatus(ctx, "missing", model.RequestScheduled, "", at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCheckpointsReturnedInTimeOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	later := &model.StateCheckpoint{
		ScheduleID: "sched-1", AssetID: "sat-1",
		Time:  epoch.Add(time.Hour),
		State: model.AssetState{Storage: 3, Throughput: 7},
	}
	first := &model.StateCheckpoint{
		ScheduleID: "sched-1", AssetID: "sat-1",
		Time: epoch,
	}
	// Written out of order on purpose.
	if err := s.AppendCheckpoint(ctx, later); err != nil {
		t.Fatalf("append checkpoint: %v", err)
	}
	if err := s.AppendCheckpoint(ctx, first); err != nil {
		t.Fatalf("append checkpoint: %v", err)
	}

	chain, err := s.Checkpoints(ctx, "sched-1", "sat-1")
	if err != nil {
		t.Fatalf("Checkpoints failed: %v", err)
	}
	if len(chain) != 2 || !chain[0].Time.Equal(epoch) {
		t.Fatalf("chain not in time order: %+v", chain)
	}
	if chain[1].State.Storage != 3 || chain[1].State.Throughput != 7 {
		t.Fatalf("state columns lost in round trip: %+v", chain[1].State)
	}

	other, err := s.Checkpoints(ctx, "sched-1", "sat-2")
	if err != nil {
		t.Fatalf("Checkpoints failed: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no chain for another asset, got %d", len(other))
	}
}

func TestBlocksRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	block := &model.ProcessingBlock{
		ID: "b1", AssetID: "sat-1", Key: "opportunities",
		Range:     model.TimeRange{Start: epoch, End: epoch.Add(time.Hour)},
		Status:    model.BlockProcessing,
		StartedAt: epoch,
	}
	if err := s.SaveBlock(ctx, block); err != nil {
		t.Fatalf("save block: %v", err)
	}

	// Upsert on completion.
	block.Status = model.BlockProcessed
	if err := s.SaveBlock(ctx, block); err != nil {
		t.Fatalf("update block: %v", err)
	}

	blocks, err := s.Blocks(ctx, "sat-1", "opportunities")
	if err != nil {
		t.Fatalf("Blocks failed: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Status != model.BlockProcessed {
		t.Fatalf("unexpected blocks: %+v", blocks)
	}
	if !blocks[0].Range.End.Equal(epoch.Add(time.Hour)) {
		t.Fatalf("range lost in round trip: %+v", blocks[0].Range)
	}

	if blocks, _ := s.Blocks(ctx, "sat-1", "calibration"); len(blocks) != 0 {
		t.Fatalf("key must partition blocks, got %d", len(blocks))
	}
}

func TestHydrateReconstructsContactTotals(t *testing.T) {
	s := openTestStore(t)
	seedScenario(t, s)
	ctx := context.Background()

	if err := s.InsertTransmitted(ctx, transmittedEvent("ev-1")); err != nil {
		t.Fatalf("InsertTransmitted failed: %v", err)
	}
	err := s.SaveRequest(ctx, &model.ScheduleRequest{
		ID: "req-1", ScheduleID: "sched-1", OrderID: "order-1",
		OrderType: model.OrderImage, Status: model.RequestReceived,
		WindowStart: epoch, WindowEnd: epoch.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("save request: %v", err)
	}

	cat := catalog.New(nil)
	if err := s.Hydrate(ctx, cat); err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}

	// Totals come from replaying the events, not from the stored columns.
	up, err := cat.GetContactEvent("contact-up")
	if err != nil {
		t.Fatalf("hydrated contact missing: %v", err)
	}
	if up.TotalUplinkSize != 5 {
		t.Fatalf("expected reconstructed uplink total 5, got %v", up.TotalUplinkSize)
	}
	down, err := cat.GetContactEvent("contact-down")
	if err != nil {
		t.Fatalf("hydrated contact missing: %v", err)
	}
	if down.TotalDownlinkSize != 2 {
		t.Fatalf("expected reconstructed downlink total 2, got %v", down.TotalDownlinkSize)
	}

	if _, err := cat.GetRequest("req-1"); err != nil {
		t.Fatalf("hydrated request missing: %v", err)
	}
	if _, err := cat.GetSchedule("sched-1"); err != nil {
		t.Fatalf("hydrated schedule missing: %v", err)
	}
}

func TestReportQueries(t *testing.T) {
	s := openTestStore(t)
	seedScenario(t, s)
	ctx := context.Background()

	if err := s.InsertTransmitted(ctx, transmittedEvent("ev-1")); err != nil {
		t.Fatalf("InsertTransmitted failed: %v", err)
	}
	maintenance := transmittedEvent("ev-2")
	maintenance.Kind = model.TransmittedMaintenance
	maintenance.DownlinkContactID = ""
	if err := s.InsertTransmitted(ctx, maintenance); err != nil {
		t.Fatalf("InsertTransmitted failed: %v", err)
	}

	counts, err := s.TransmittedCounts(ctx)
	if err != nil {
		t.Fatalf("TransmittedCounts failed: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("expected 2 kind rows, got %+v", counts)
	}

	for i, status := range []model.RequestStatus{model.RequestDeclined, model.RequestDeclined, model.RequestReceived} {
		err := s.SaveRequest(ctx, &model.ScheduleRequest{
			ID: "req-" + string(rune('a'+i)), ScheduleID: "sched-1",
			OrderID: "order-1", OrderType: model.OrderImage,
			Status: status, StatusMessage: "no capacity",
			WindowStart: epoch, WindowEnd: epoch.Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("save request %d: %v", i, err)
		}
	}
	rows, err := s.RequestStatusCounts(ctx, model.OrderImage)
	if err != nil {
		t.Fatalf("RequestStatusCounts failed: %v", err)
	}
	var declined int
	for _, r := range rows {
		if r.Status == string(model.RequestDeclined) {
			declined = r.Count
		}
	}
	if declined != 2 {
		t.Fatalf("expected 2 declined, got %+v", rows)
	}
	if rows, _ := s.RequestStatusCounts(ctx, model.OrderOutage); len(rows) != 0 {
		t.Fatalf("filter must exclude other order types, got %+v", rows)
	}

	active, err := s.ActiveContactCounts(ctx)
	if err != nil {
		t.Fatalf("ActiveContactCounts failed: %v", err)
	}
	if active["gs-1"] != 2 {
		t.Fatalf("expected both contacts active for gs-1, got %+v", active)
	}
}
