package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/mission-ledger/model"
)

var epoch = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := New(nil, WithClock(func() time.Time { return epoch }))

	if err := c.RegisterAsset(&model.Asset{
		ID:                "sat-1",
		Name:              "sat-1",
		Kind:              model.AssetSatellite,
		StorageCapacity:   100,
		BatteryCapacityWh: 50,
	}); err != nil {
		t.Fatalf("register satellite: %v", err)
	}
	if err := c.RegisterAsset(&model.Asset{
		ID:   "gs-1",
		Name: "gs-1",
		Kind: model.AssetGroundStation,
	}); err != nil {
		t.Fatalf("register ground station: %v", err)
	}
	if err := c.AddSchedule(&model.Schedule{ID: "sched-1", Name: "plan", Epoch: epoch}); err != nil {
		t.Fatalf("add schedule: %v", err)
	}
	return c
}

func addContact(t *testing.T, c *Catalog, id string, start time.Time) {
	t.Helper()
	err := c.AddContactEvent(&model.ContactEvent{
		EventBase: model.EventBase{
			ID:         id,
			ScheduleID: "sched-1",
			AssetID:    "sat-1",
			StartTime:  start,
			Duration:   5 * time.Minute,
		},
		GroundStationID: "gs-1",
		UplinkRate:      10,
		DownlinkRate:    50,
	})
	if err != nil {
		t.Fatalf("add contact %s: %v", id, err)
	}
}

func TestAddTransmittedEventAppliesContactTotals(t *testing.T) {
	c := newTestCatalog(t)
	addContact(t, c, "contact-up", epoch)
	addContact(t, c, "contact-down", epoch.Add(20*time.Minute))

	ev := &model.TransmittedEvent{
		EventBase: model.EventBase{
			ID:         "ev-1",
			ScheduleID: "sched-1",
			AssetID:    "sat-1",
			StartTime:  epoch.Add(10 * time.Minute),
			Duration:   time.Minute,
		},
		Kind:              model.TransmittedOutbound,
		UplinkSize:        5,
		DownlinkSize:      2,
		UplinkContactID:   "contact-up",
		DownlinkContactID: "contact-down",
	}
	if err := c.AddTransmittedEvent(ev); err != nil {
		t.Fatalf("AddTransmittedEvent failed: %v", err)
	}

	up, err := c.GetContactEvent("contact-up")
	if err != nil {
		t.Fatalf("get uplink contact: %v", err)
	}
	if up.TotalUplinkSize != 5 || up.TotalDownlinkSize != 0 {
		t.Fatalf("uplink totals wrong: up=%v down=%v", up.TotalUplinkSize, up.TotalDownlinkSize)
	}
	down, err := c.GetContactEvent("contact-down")
	if err != nil {
		t.Fatalf("get downlink contact: %v", err)
	}
	if down.TotalDownlinkSize != 2 {
		t.Fatalf("downlink total wrong: %v", down.TotalDownlinkSize)
	}

	// A contact carrying events cannot be removed.
	if err := c.RemoveContactEvent("contact-up"); !errors.Is(err, ErrContactInUse) {
		t.Fatalf("expected ErrContactInUse, got %v", err)
	}

	// Removal restores the pre-insertion totals exactly.
	if err := c.RemoveTransmittedEvent("ev-1"); err != nil {
		t.Fatalf("RemoveTransmittedEvent failed: %v", err)
	}
	if up.TotalUplinkSize != 0 || down.TotalDownlinkSize != 0 {
		t.Fatalf("totals not restored: up=%v down=%v", up.TotalUplinkSize, down.TotalDownlinkSize)
	}
	if err := c.RemoveContactEvent("contact-up"); err != nil {
		t.Fatalf("contact removal after release failed: %v", err)
	}
}

func TestAddTransmittedEventUnknownContact(t *testing.T) {
	c := newTestCatalog(t)

	ev := &model.TransmittedEvent{
		EventBase: model.EventBase{
			ID:         "ev-2",
			ScheduleID: "sched-1",
			AssetID:    "sat-1",
			StartTime:  epoch,
			Duration:   time.Minute,
		},
		Kind:            model.TransmittedMaintenance,
		UplinkContactID: "no-such-contact",
	}
	if err := c.AddTransmittedEvent(ev); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown contact, got %v", err)
	}
	if _, err := c.EventSet("sched-1", "sat-1"); err != nil {
		t.Fatalf("EventSet failed: %v", err)
	}
}

func TestScheduleNameUniqueness(t *testing.T) {
	c := newTestCatalog(t)
	err := c.AddSchedule(&model.Schedule{ID: "sched-2", Name: "plan", Epoch: epoch})
	if !errors.Is(err, ErrScheduleExists) {
		t.Fatalf("expected ErrScheduleExists for duplicate name, got %v", err)
	}
}

func TestEventSetIsASnapshot(t *testing.T) {
	c := newTestCatalog(t)
	addContact(t, c, "contact-up", epoch)

	ev := &model.TransmittedEvent{
		EventBase: model.EventBase{
			ID:         "ev-3",
			ScheduleID: "sched-1",
			AssetID:    "sat-1",
			StartTime:  epoch.Add(time.Minute),
			Duration:   time.Minute,
		},
		Kind:            model.TransmittedMaintenance,
		UplinkSize:      3,
		UplinkContactID: "contact-up",
	}
	if err := c.AddTransmittedEvent(ev); err != nil {
		t.Fatalf("AddTransmittedEvent failed: %v", err)
	}

	set, err := c.EventSet("sched-1", "sat-1")
	if err != nil {
		t.Fatalf("EventSet failed: %v", err)
	}
	if len(set.Transmitted) != 1 || len(set.Contacts) != 1 {
		t.Fatalf("unexpected set sizes: %d transmitted, %d contacts", len(set.Transmitted), len(set.Contacts))
	}

	// Mutating the snapshot leaves the catalog untouched.
	mutated := set.Contacts["contact-up"]
	mutated.TotalUplinkSize = 999
	set.Contacts["contact-up"] = mutated

	live, err := c.GetContactEvent("contact-up")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if live.TotalUplinkSize != 3 {
		t.Fatalf("snapshot mutation leaked into catalog: %v", live.TotalUplinkSize)
	}
}

func TestActiveContacts(t *testing.T) {
	c := newTestCatalog(t)
	addContact(t, c, "contact-idle", epoch)
	addContact(t, c, "contact-busy", epoch.Add(20*time.Minute))

	ev := &model.TransmittedEvent{
		EventBase: model.EventBase{
			ID:         "ev-4",
			ScheduleID: "sched-1",
			AssetID:    "sat-1",
			StartTime:  epoch.Add(25 * time.Minute),
			Duration:   time.Minute,
		},
		Kind:            model.TransmittedMaintenance,
		UplinkSize:      4,
		UplinkContactID: "contact-busy",
	}
	if err := c.AddTransmittedEvent(ev); err != nil {
		t.Fatalf("AddTransmittedEvent failed: %v", err)
	}

	active := c.ActiveContacts("gs-1")
	if len(active) != 1 || active[0].ID != "contact-busy" {
		t.Fatalf("expected only contact-busy active, got %d contacts", len(active))
	}
}

func TestTransmittedBySatellite(t *testing.T) {
	c := newTestCatalog(t)
	addContact(t, c, "contact-up", epoch)

	for i, kind := range []model.TransmittedEventKind{
		model.TransmittedImaging, model.TransmittedImaging, model.TransmittedMaintenance,
	} {
		ev := &model.TransmittedEvent{
			EventBase: model.EventBase{
				ID:         "ev-" + string(rune('a'+i)),
				ScheduleID: "sched-1",
				AssetID:    "sat-1",
				StartTime:  epoch.Add(time.Duration(i) * time.Minute),
				Duration:   30 * time.Second,
			},
			Kind:            kind,
			ImageType:       model.ImageLow,
			UplinkContactID: "contact-up",
		}
		if err := c.AddTransmittedEvent(ev); err != nil {
			t.Fatalf("add event %d: %v", i, err)
		}
	}

	counts := c.TransmittedBySatellite("sat-1")
	if counts[model.TransmittedImaging] != 2 || counts[model.TransmittedMaintenance] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
