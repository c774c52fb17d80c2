package model

import "time"

// Timed is implemented by every concrete event kind.
type Timed interface {
	TimeRange() TimeRange
}

// AssetScoped is implemented by entities tied to a schedule and an asset.
type AssetScoped interface {
	Schedule() string
	Asset() string
}

// EventBase carries the fields shared by every scheduled event kind. The
// event occupies [StartTime, StartTime+Duration). An optional buffer window
// [WindowStart, WindowEnd] may bracket the event; zero times mean no window.
type EventBase struct {
	ID         string
	ScheduleID string
	AssetID    string
	StartTime  time.Time
	Duration   time.Duration

	WindowStart time.Time
	WindowEnd   time.Time
}

// TimeRange returns the half-open range the event occupies.
func (e *EventBase) TimeRange() TimeRange {
	return NewTimeRange(e.StartTime, e.Duration)
}

func (e *EventBase) Schedule() string { return e.ScheduleID }
func (e *EventBase) Asset() string    { return e.AssetID }

// HasWindow reports whether a buffer window is set.
func (e *EventBase) HasWindow() bool {
	return !e.WindowStart.IsZero() || !e.WindowEnd.IsZero()
}

// ContactEvent is a satellite↔ground-station link window. Its cumulative
// uplink/downlink totals are an aggregate owned and maintained by the
// catalog: every insert or removal of a transmitted event referencing this
// contact adjusts the totals atomically. Callers must never write them
// directly.
type ContactEvent struct {
	EventBase

	// GroundStationID is the counterpart asset; AssetID is the satellite.
	GroundStationID string

	// UplinkRate and DownlinkRate are the link rates in MB/s.
	UplinkRate   float64
	DownlinkRate float64

	// TotalUplinkSize and TotalDownlinkSize are the running sums (MB) of
	// uplink/downlink payloads of all transmitted events carried by this
	// contact. Maintained by the catalog.
	TotalUplinkSize   float64
	TotalDownlinkSize float64
}

// TotalTransmissionTime derives the seconds of link time consumed by the
// contact's current totals. Terms with a zero rate contribute zero.
func (c *ContactEvent) TotalTransmissionTime() float64 {
	var t float64
	if c.UplinkRate > 0 {
		t += c.TotalUplinkSize / c.UplinkRate
	}
	if c.DownlinkRate > 0 {
		t += c.TotalDownlinkSize / c.DownlinkRate
	}
	return t
}

// TransmittedEventKind classifies transmitted events.
type TransmittedEventKind string

const (
	TransmittedImaging     TransmittedEventKind = "imaging"
	TransmittedMaintenance TransmittedEventKind = "maintenance"
	TransmittedOutbound    TransmittedEventKind = "outbound"
)

// ImageType selects the imaging defaults applied during normalization.
type ImageType string

const (
	ImageLow       ImageType = "low"
	ImageMedium    ImageType = "medium"
	ImageSpotlight ImageType = "spotlight"
)

// TransmittedEvent is a command, imaging, or maintenance activity uplinked
// to a satellite. It exclusively references the contact event carrying its
// command payload up, and optionally the contact carrying its result down.
type TransmittedEvent struct {
	EventBase

	Kind TransmittedEventKind
	// ImageType is set for imaging events and drives duration/downlink
	// defaulting.
	ImageType ImageType

	// UplinkSize and DownlinkSize are payload sizes in MB. DownlinkSize is
	// zero for events that produce no deliverable result.
	UplinkSize   float64
	DownlinkSize float64

	// PowerUsage is the draw of the activity in watts while it runs.
	PowerUsage float64

	// Priority is the order priority; it doubles as the throughput weight
	// booked against the asset at execution time.
	Priority int

	// UplinkContactID references the contact that carries the command up.
	// Required.
	UplinkContactID string
	// DownlinkContactID references the contact that carries the result
	// down. Empty when the event produces no deliverable.
	DownlinkContactID string
}

// HasDownlink reports whether the event produces a deliverable result.
func (t *TransmittedEvent) HasDownlink() bool { return t.DownlinkContactID != "" }

// CaptureOpportunity records that a target location is in view during the
// window. It carries no resource commitment beyond the window itself.
type CaptureOpportunity struct {
	EventBase

	Latitude  float64
	Longitude float64
}

// SatelliteEclipse marks an interval during which the satellite is in
// shadow and activities draw from the battery.
type SatelliteEclipse struct {
	EventBase
}

// ScheduledOutage removes an asset from service for the duration.
type ScheduledOutage struct {
	EventBase

	Reason string
}
