package store

import (
	"time"

	"github.com/signalsfoundry/mission-ledger/model"
)

// AssetStateRecord flattens an AssetState for embedding into checkpoint
// rows.
type AssetStateRecord struct {
	Storage            float64
	StorageUtilization float64
	Throughput         float64
	EnergyUsage        float64
	PowerDraw          float64
}

func stateRecord(s model.AssetState) AssetStateRecord {
	return AssetStateRecord{
		Storage:            s.Storage,
		StorageUtilization: s.StorageUtilization,
		Throughput:         s.Throughput,
		EnergyUsage:        s.EnergyUsage,
		PowerDraw:          s.PowerDraw,
	}
}

func (r AssetStateRecord) state() model.AssetState {
	return model.AssetState{
		Storage:            r.Storage,
		StorageUtilization: r.StorageUtilization,
		Throughput:         r.Throughput,
		EnergyUsage:        r.EnergyUsage,
		PowerDraw:          r.PowerDraw,
	}
}

// AssetRecord persists a registered asset.
type AssetRecord struct {
	ID   string `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex"`
	Kind string

	StorageCapacity   float64
	BatteryCapacityWh float64
	UplinkRate        float64
	DownlinkRate      float64

	TLELine1 string
	TLELine2 string

	Latitude  float64
	Longitude float64
}

func (AssetRecord) TableName() string { return "assets" }

func assetRecord(a *model.Asset) *AssetRecord {
	return &AssetRecord{
		ID:                a.ID,
		Name:              a.Name,
		Kind:              string(a.Kind),
		StorageCapacity:   a.StorageCapacity,
		BatteryCapacityWh: a.BatteryCapacityWh,
		UplinkRate:        a.UplinkRate,
		DownlinkRate:      a.DownlinkRate,
		TLELine1:          a.TLELine1,
		TLELine2:          a.TLELine2,
		Latitude:          a.Latitude,
		Longitude:         a.Longitude,
	}
}

func (r *AssetRecord) asset() *model.Asset {
	return &model.Asset{
		ID:                r.ID,
		Name:              r.Name,
		Kind:              model.AssetKind(r.Kind),
		StorageCapacity:   r.StorageCapacity,
		BatteryCapacityWh: r.BatteryCapacityWh,
		UplinkRate:        r.UplinkRate,
		DownlinkRate:      r.DownlinkRate,
		TLELine1:          r.TLELine1,
		TLELine2:          r.TLELine2,
		Latitude:          r.Latitude,
		Longitude:         r.Longitude,
	}
}

// ScheduleRecord persists a schedule.
type ScheduleRecord struct {
	ID                  string `gorm:"primaryKey"`
	Name                string `gorm:"uniqueIndex"`
	Group               string `gorm:"column:schedule_group"`
	Epoch               time.Time
	ReferenceTimeOffset time.Duration
	CreatedAt           time.Time
}

func (ScheduleRecord) TableName() string { return "schedules" }

func scheduleRecord(s *model.Schedule) *ScheduleRecord {
	return &ScheduleRecord{
		ID:                  s.ID,
		Name:                s.Name,
		Group:               s.Group,
		Epoch:               s.Epoch,
		ReferenceTimeOffset: s.ReferenceTimeOffset,
		CreatedAt:           s.CreatedAt,
	}
}

func (r *ScheduleRecord) schedule() *model.Schedule {
	return &model.Schedule{
		ID:                  r.ID,
		Name:                r.Name,
		Group:               r.Group,
		Epoch:               r.Epoch,
		ReferenceTimeOffset: r.ReferenceTimeOffset,
		CreatedAt:           r.CreatedAt,
	}
}

// EventColumns carries the shared scheduled-event fields.
type EventColumns struct {
	ScheduleID string `gorm:"index"`
	AssetID    string `gorm:"index"`
	StartTime  time.Time
	Duration   time.Duration

	WindowStart time.Time
	WindowEnd   time.Time
}

func eventCols(e model.EventBase) EventColumns {
	return EventColumns{
		ScheduleID:  e.ScheduleID,
		AssetID:     e.AssetID,
		StartTime:   e.StartTime,
		Duration:    e.Duration,
		WindowStart: e.WindowStart,
		WindowEnd:   e.WindowEnd,
	}
}

func (c EventColumns) base(id string) model.EventBase {
	return model.EventBase{
		ID:          id,
		ScheduleID:  c.ScheduleID,
		AssetID:     c.AssetID,
		StartTime:   c.StartTime,
		Duration:    c.Duration,
		WindowStart: c.WindowStart,
		WindowEnd:   c.WindowEnd,
	}
}

// ContactEventRecord persists a contact event, including its catalog-owned
// cumulative totals.
type ContactEventRecord struct {
	ID           string `gorm:"primaryKey"`
	EventColumns `gorm:"embedded"`

	GroundStationID string `gorm:"index"`
	UplinkRate      float64
	DownlinkRate    float64

	TotalUplinkSize   float64
	TotalDownlinkSize float64
}

func (ContactEventRecord) TableName() string { return "contact_events" }

func contactRecord(c *model.ContactEvent) *ContactEventRecord {
	return &ContactEventRecord{
		ID:                c.ID,
		EventColumns:      eventCols(c.EventBase),
		GroundStationID:   c.GroundStationID,
		UplinkRate:        c.UplinkRate,
		DownlinkRate:      c.DownlinkRate,
		TotalUplinkSize:   c.TotalUplinkSize,
		TotalDownlinkSize: c.TotalDownlinkSize,
	}
}

func (r *ContactEventRecord) contact() *model.ContactEvent {
	return &model.ContactEvent{
		EventBase:         r.base(r.ID),
		GroundStationID:   r.GroundStationID,
		UplinkRate:        r.UplinkRate,
		DownlinkRate:      r.DownlinkRate,
		TotalUplinkSize:   r.TotalUplinkSize,
		TotalDownlinkSize: r.TotalDownlinkSize,
	}
}

// TransmittedEventRecord persists a transmitted event.
type TransmittedEventRecord struct {
	ID           string `gorm:"primaryKey"`
	EventColumns `gorm:"embedded"`

	Kind      string
	ImageType string

	UplinkSize   float64
	DownlinkSize float64
	PowerUsage   float64
	Priority     int

	UplinkContactID   string `gorm:"index"`
	DownlinkContactID string `gorm:"index"`
}

func (TransmittedEventRecord) TableName() string { return "transmitted_events" }

func transmittedRecord(t *model.TransmittedEvent) *TransmittedEventRecord {
	return &TransmittedEventRecord{
		ID:                t.ID,
		EventColumns:      eventCols(t.EventBase),
		Kind:              string(t.Kind),
		ImageType:         string(t.ImageType),
		UplinkSize:        t.UplinkSize,
		DownlinkSize:      t.DownlinkSize,
		PowerUsage:        t.PowerUsage,
		Priority:          t.Priority,
		UplinkContactID:   t.UplinkContactID,
		DownlinkContactID: t.DownlinkContactID,
	}
}

func (r *TransmittedEventRecord) transmitted() *model.TransmittedEvent {
	return &model.TransmittedEvent{
		EventBase:         r.base(r.ID),
		Kind:              model.TransmittedEventKind(r.Kind),
		ImageType:         model.ImageType(r.ImageType),
		UplinkSize:        r.UplinkSize,
		DownlinkSize:      r.DownlinkSize,
		PowerUsage:        r.PowerUsage,
		Priority:          r.Priority,
		UplinkContactID:   r.UplinkContactID,
		DownlinkContactID: r.DownlinkContactID,
	}
}

// EclipseRecord persists a satellite eclipse window.
type EclipseRecord struct {
	ID           string `gorm:"primaryKey"`
	EventColumns `gorm:"embedded"`
}

func (EclipseRecord) TableName() string { return "satellite_eclipses" }

// CaptureOpportunityRecord persists a capture opportunity window.
type CaptureOpportunityRecord struct {
	ID           string `gorm:"primaryKey"`
	EventColumns `gorm:"embedded"`

	Latitude  float64
	Longitude float64
}

func (CaptureOpportunityRecord) TableName() string { return "capture_opportunities" }

// OutageRecord persists a scheduled outage.
type OutageRecord struct {
	ID           string `gorm:"primaryKey"`
	EventColumns `gorm:"embedded"`

	Reason string
}

func (OutageRecord) TableName() string { return "scheduled_outages" }

// ScheduleRequestRecord persists a schedule request. The composite unique
// index enforces one request per (order type, order ID, window start).
type ScheduleRequestRecord struct {
	ID         string `gorm:"primaryKey"`
	ScheduleID string `gorm:"index"`

	OrderID   string `gorm:"uniqueIndex:idx_request_order,priority:2"`
	OrderType string `gorm:"uniqueIndex:idx_request_order,priority:1"`

	Status        string `gorm:"index"`
	StatusMessage string

	WindowStart      time.Time `gorm:"uniqueIndex:idx_request_order,priority:3"`
	WindowEnd        time.Time
	DeliveryDeadline time.Time
	Priority         int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ScheduleRequestRecord) TableName() string { return "schedule_requests" }

func requestRecord(r *model.ScheduleRequest) *ScheduleRequestRecord {
	return &ScheduleRequestRecord{
		ID:               r.ID,
		ScheduleID:       r.ScheduleID,
		OrderID:          r.OrderID,
		OrderType:        string(r.OrderType),
		Status:           string(r.Status),
		StatusMessage:    r.StatusMessage,
		WindowStart:      r.WindowStart,
		WindowEnd:        r.WindowEnd,
		DeliveryDeadline: r.DeliveryDeadline,
		Priority:         r.Priority,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func (r *ScheduleRequestRecord) request() *model.ScheduleRequest {
	return &model.ScheduleRequest{
		ID:               r.ID,
		ScheduleID:       r.ScheduleID,
		OrderID:          r.OrderID,
		OrderType:        model.OrderType(r.OrderType),
		Status:           model.RequestStatus(r.Status),
		StatusMessage:    r.StatusMessage,
		WindowStart:      r.WindowStart,
		WindowEnd:        r.WindowEnd,
		DeliveryDeadline: r.DeliveryDeadline,
		Priority:         r.Priority,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// CheckpointRecord persists a state checkpoint. Checkpoints are append-only.
type CheckpointRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	ScheduleID string `gorm:"index:idx_checkpoint_pair"`
	AssetID    string `gorm:"index:idx_checkpoint_pair"`
	Time       time.Time

	State AssetStateRecord `gorm:"embedded;embeddedPrefix:state_"`
	Delta AssetStateRecord `gorm:"embedded;embeddedPrefix:delta_"`
	Peak  AssetStateRecord `gorm:"embedded;embeddedPrefix:peak_"`
}

func (CheckpointRecord) TableName() string { return "state_checkpoints" }

func checkpointRecord(cp *model.StateCheckpoint) *CheckpointRecord {
	return &CheckpointRecord{
		ScheduleID: cp.ScheduleID,
		AssetID:    cp.AssetID,
		Time:       cp.Time,
		State:      stateRecord(cp.State),
		Delta:      stateRecord(cp.DeltaFromPrev),
		Peak:       stateRecord(cp.PeakDeltaFromPrev),
	}
}

func (r *CheckpointRecord) checkpoint() *model.StateCheckpoint {
	return &model.StateCheckpoint{
		ScheduleID:        r.ScheduleID,
		AssetID:           r.AssetID,
		Time:              r.Time,
		State:             r.State.state(),
		DeltaFromPrev:     r.Delta.state(),
		PeakDeltaFromPrev: r.Peak.state(),
	}
}

// ProcessingBlockRecord persists a processing block.
type ProcessingBlockRecord struct {
	ID      string `gorm:"primaryKey"`
	AssetID string `gorm:"index:idx_block_pair"`
	Key     string `gorm:"index:idx_block_pair;column:secondary_key"`

	RangeStart time.Time
	RangeEnd   time.Time
	Status     string

	StartedAt   time.Time
	CompletedAt time.Time
}

func (ProcessingBlockRecord) TableName() string { return "processing_blocks" }

func blockRecord(b *model.ProcessingBlock) *ProcessingBlockRecord {
	return &ProcessingBlockRecord{
		ID:          b.ID,
		AssetID:     b.AssetID,
		Key:         b.Key,
		RangeStart:  b.Range.Start,
		RangeEnd:    b.Range.End,
		Status:      string(b.Status),
		StartedAt:   b.StartedAt,
		CompletedAt: b.CompletedAt,
	}
}

func (r *ProcessingBlockRecord) block() *model.ProcessingBlock {
	return &model.ProcessingBlock{
		ID:          r.ID,
		AssetID:     r.AssetID,
		Key:         r.Key,
		Range:       model.TimeRange{Start: r.RangeStart, End: r.RangeEnd},
		Status:      model.ProcessingBlockStatus(r.Status),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

// ScheduleLockRecord persists a held schedule lock.
type ScheduleLockRecord struct {
	ID         string `gorm:"primaryKey"`
	ScheduleID string `gorm:"index"`

	RangeStart time.Time
	RangeEnd   time.Time
	Priority   int

	AcquiredAt      time.Time
	LastReleaseTime time.Time
}

func (ScheduleLockRecord) TableName() string { return "schedule_locks" }
