package model

// AssetKind distinguishes the two classes of schedulable assets.
type AssetKind string

const (
	AssetSatellite     AssetKind = "satellite"
	AssetGroundStation AssetKind = "ground_station"
)

// Asset is a satellite or ground station with its static capacities.
// Assets are immutable once registered; ledger entities reference them by ID
// but never own them.
type Asset struct {
	// ID is the stable identifier used by events, checkpoints, and blocks.
	ID   string
	Name string
	Kind AssetKind

	// StorageCapacity is the onboard storage in MB. Zero for ground stations.
	StorageCapacity float64
	// BatteryCapacityWh is the battery energy budget in watt-hours.
	// Zero for ground stations.
	BatteryCapacityWh float64

	// UplinkRate and DownlinkRate are transmission rates in MB/s.
	UplinkRate   float64
	DownlinkRate float64

	// TLELine1/TLELine2 carry the two-line element set for satellites whose
	// opportunity windows are sampled by the feed. Empty for ground stations.
	TLELine1 string
	TLELine2 string

	// Latitude/Longitude locate ground stations (degrees). Unused for
	// satellites.
	Latitude  float64
	Longitude float64
}

// IsSatellite reports whether the asset is a satellite.
func (a *Asset) IsSatellite() bool { return a.Kind == AssetSatellite }

// CapacityLimit derives the capacity envelope used by checkpoint validation.
// Battery capacity is converted to watt-seconds to match the energy-usage
// accounting of the delta deriver.
func (a *Asset) CapacityLimit() CapacityLimit {
	return CapacityLimit{
		Storage: a.StorageCapacity,
		Energy:  a.BatteryCapacityWh * 3600,
	}
}

// CapacityLimit bounds the components of AssetState that are physically
// constrained. Components left at zero are unconstrained.
type CapacityLimit struct {
	Storage float64
	Energy  float64
}
