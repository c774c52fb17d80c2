package model

import "time"

// AssetState is the composite resource state of one asset. It is used both
// as a cumulative value and as a delta; the zero value is the identity.
type AssetState struct {
	// Storage is occupied storage in MB.
	Storage float64
	// StorageUtilization is Storage divided by the asset's capacity.
	StorageUtilization float64
	// Throughput accumulates the priority weight of executed events.
	Throughput float64
	// EnergyUsage is consumed battery energy in watt-seconds.
	EnergyUsage float64
	// PowerDraw is the instantaneous draw in watts.
	PowerDraw float64
}

// Add returns the component-wise sum of s and other.
func (s AssetState) Add(other AssetState) AssetState {
	return AssetState{
		Storage:            s.Storage + other.Storage,
		StorageUtilization: s.StorageUtilization + other.StorageUtilization,
		Throughput:         s.Throughput + other.Throughput,
		EnergyUsage:        s.EnergyUsage + other.EnergyUsage,
		PowerDraw:          s.PowerDraw + other.PowerDraw,
	}
}

// Max returns the component-wise maximum of s and other.
func (s AssetState) Max(other AssetState) AssetState {
	out := s
	if other.Storage > out.Storage {
		out.Storage = other.Storage
	}
	if other.StorageUtilization > out.StorageUtilization {
		out.StorageUtilization = other.StorageUtilization
	}
	if other.Throughput > out.Throughput {
		out.Throughput = other.Throughput
	}
	if other.EnergyUsage > out.EnergyUsage {
		out.EnergyUsage = other.EnergyUsage
	}
	if other.PowerDraw > out.PowerDraw {
		out.PowerDraw = other.PowerDraw
	}
	return out
}

// IsZero reports whether every component is zero.
func (s AssetState) IsZero() bool {
	return s == AssetState{}
}

// ResourceDelta is one point-in-time state change for (schedule, asset).
// Deltas are derived, never stored; they are the unit of input to
// aggregation.
type ResourceDelta struct {
	ScheduleID string
	AssetID    string
	At         time.Time

	Storage    float64
	Throughput float64
	Energy     float64
	PowerDraw  float64
}

// IsZero reports whether the delta carries no change.
func (d ResourceDelta) IsZero() bool {
	return d.Storage == 0 && d.Throughput == 0 && d.Energy == 0 && d.PowerDraw == 0
}

// StateCheckpoint freezes cumulative resource state at an instant so that
// capacity validation never replays the full timeline.
//
// Invariant: State == previous.State + DeltaFromPrev. PeakDeltaFromPrev is
// the component-wise running maximum of the cumulative delta observed inside
// the interval, not the interval's net value, so a mid-interval excursion is
// never masked.
type StateCheckpoint struct {
	ScheduleID string
	AssetID    string
	Time       time.Time

	State             AssetState
	DeltaFromPrev     AssetState
	PeakDeltaFromPrev AssetState
}

// ProcessingBlockStatus is the lifecycle state of a processing block.
type ProcessingBlockStatus string

const (
	// BlockProcessing marks a span whose opportunity computation has begun
	// but not completed. A crash leaves blocks in this state; they are
	// resumable, never treated as done.
	BlockProcessing ProcessingBlockStatus = "processing"
	// BlockProcessed marks a fully computed span.
	BlockProcessed ProcessingBlockStatus = "processed"
)

// ProcessingBlock records that opportunity computation for a span has begun
// or finished. For a given (asset, secondary key) stored ranges never
// overlap.
type ProcessingBlock struct {
	ID      string
	AssetID string
	// Key is the secondary key: a location fingerprint for capture blocks,
	// the counterpart asset for contact blocks, or the eclipse body.
	Key    string
	Range  TimeRange
	Status ProcessingBlockStatus

	StartedAt   time.Time
	CompletedAt time.Time
}

// ScheduleLock grants one scheduling attempt exclusive write access to a
// (schedule, time range) window. For a given schedule stored lock ranges
// never overlap.
type ScheduleLock struct {
	ID         string
	ScheduleID string
	Range      TimeRange
	// Priority is caller-supplied: how much unscheduled work depends on the
	// window. The arbitrator compares it, never computes it.
	Priority int

	AcquiredAt      time.Time
	LastReleaseTime time.Time
}
