// Package opportunity derives contact and eclipse windows from orbital
// geometry. It propagates satellites with SGP4 from their TLEs, samples
// visibility against ground stations, and feeds the resulting windows into
// the catalog so the ledger can derive resource deltas from them.
package opportunity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/mission-ledger/catalog"
	"github.com/signalsfoundry/mission-ledger/internal/logging"
	"github.com/signalsfoundry/mission-ledger/model"
)

// Propagator wraps an SGP4-initialised satellite record.
type Propagator struct {
	sat satellite.Satellite
}

// NewPropagator constructs a propagator from TLE lines.
func NewPropagator(line1, line2 string) *Propagator {
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	return &Propagator{sat: sat}
}

// PositionECI propagates the satellite to t and returns its ECI position in
// kilometres.
func (p *Propagator) PositionECI(t time.Time) Vec3 {
	year, month, day := t.UTC().Date()
	hour, min, sec := t.UTC().Clock()

	posECI, _ := satellite.Propagate(p.sat, year, int(month), day, hour, min, sec)
	return Vec3{X: posECI.X, Y: posECI.Y, Z: posECI.Z}
}

// PositionECEF propagates the satellite to t and returns its ECEF position
// in kilometres.
func (p *Propagator) PositionECEF(t time.Time) Vec3 {
	year, month, day := t.UTC().Date()
	hour, min, sec := t.UTC().Clock()

	posECI, _ := satellite.Propagate(p.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)
	return Vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
}

// Option configures a Feed.
type Option func(*Feed)

// WithSampleStep overrides the propagation sampling interval.
func WithSampleStep(step time.Duration) Option {
	return func(f *Feed) {
		if step > 0 {
			f.step = step
		}
	}
}

// WithMinElevation overrides the minimum elevation for a usable contact.
func WithMinElevation(deg float64) Option {
	return func(f *Feed) { f.minElevationDeg = deg }
}

// Feed samples orbital geometry into windows.
type Feed struct {
	log logging.Logger

	step            time.Duration
	minElevationDeg float64
}

// NewFeed constructs a feed with a 10 second sampling step and a 10 degree
// elevation mask.
func NewFeed(log logging.Logger, opts ...Option) *Feed {
	if log == nil {
		log = logging.Noop()
	}
	f := &Feed{
		log:             log,
		step:            10 * time.Second,
		minElevationDeg: 10,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ContactWindows samples the horizon and returns the intervals during which
// the satellite is above the elevation mask as seen from the ground
// station. Window edges are quantised to the sampling step.
func (f *Feed) ContactWindows(sat *model.Asset, gs *model.Asset, horizon model.TimeRange) ([]model.TimeRange, error) {
	if !sat.IsSatellite() {
		return nil, fmt.Errorf("asset %s is not a satellite", sat.ID)
	}
	if gs.IsSatellite() {
		return nil, fmt.Errorf("asset %s is not a ground station", gs.ID)
	}
	if sat.TLELine1 == "" || sat.TLELine2 == "" {
		return nil, fmt.Errorf("asset %s has no TLE", sat.ID)
	}

	prop := NewPropagator(sat.TLELine1, sat.TLELine2)
	station := GeodeticToECEF(gs.Latitude, gs.Longitude)

	return f.sampleWindows(horizon, func(t time.Time) bool {
		return ElevationDegrees(station, prop.PositionECEF(t)) >= f.minElevationDeg
	}), nil
}

// EclipseWindows samples the horizon and returns the intervals during which
// the satellite sits inside the Earth's shadow.
func (f *Feed) EclipseWindows(sat *model.Asset, horizon model.TimeRange) ([]model.TimeRange, error) {
	if !sat.IsSatellite() {
		return nil, fmt.Errorf("asset %s is not a satellite", sat.ID)
	}
	if sat.TLELine1 == "" || sat.TLELine2 == "" {
		return nil, fmt.Errorf("asset %s has no TLE", sat.ID)
	}

	prop := NewPropagator(sat.TLELine1, sat.TLELine2)

	return f.sampleWindows(horizon, func(t time.Time) bool {
		return inEarthShadow(prop.PositionECI(t), t)
	}), nil
}

// sampleWindows walks the horizon in step increments and collapses
// consecutive positive samples into half-open windows.
func (f *Feed) sampleWindows(horizon model.TimeRange, visible func(time.Time) bool) []model.TimeRange {
	var windows []model.TimeRange
	var open bool
	var start time.Time

	for t := horizon.Start; t.Before(horizon.End); t = t.Add(f.step) {
		if visible(t) {
			if !open {
				open = true
				start = t
			}
			continue
		}
		if open {
			windows = append(windows, model.TimeRange{Start: start, End: t})
			open = false
		}
	}
	if open {
		windows = append(windows, model.TimeRange{Start: start, End: horizon.End})
	}
	return windows
}

// Populate computes contact and eclipse windows for every satellite in the
// catalog over the horizon and registers them under the schedule. Satellites
// without a TLE are skipped with a warning.
func (f *Feed) Populate(ctx context.Context, cat *catalog.Catalog, scheduleID string, horizon model.TimeRange) error {
	for _, sat := range cat.ListAssets() {
		if !sat.IsSatellite() {
			continue
		}
		if sat.TLELine1 == "" || sat.TLELine2 == "" {
			f.log.Warn(ctx, "satellite has no TLE; skipping",
				logging.String("asset_id", sat.ID),
			)
			continue
		}
		if err := f.PopulateSatellite(ctx, cat, scheduleID, sat, horizon); err != nil {
			return err
		}
	}
	return nil
}

// PopulateSatellite computes contact and eclipse windows for one satellite
// over the horizon and registers them under the schedule. Rates for a
// contact come from the satellite, falling back to the ground station where
// the satellite leaves them unset.
func (f *Feed) PopulateSatellite(ctx context.Context, cat *catalog.Catalog, scheduleID string, sat *model.Asset, horizon model.TimeRange) error {
	contacts, eclipses := 0, 0
	for _, gs := range cat.ListAssets() {
		if gs.IsSatellite() {
			continue
		}
		windows, err := f.ContactWindows(sat, gs, horizon)
		if err != nil {
			return fmt.Errorf("contact windows for %s/%s: %w", sat.ID, gs.ID, err)
		}
		for _, w := range windows {
			uplink := sat.UplinkRate
			if uplink == 0 {
				uplink = gs.UplinkRate
			}
			downlink := sat.DownlinkRate
			if downlink == 0 {
				downlink = gs.DownlinkRate
			}
			contact := &model.ContactEvent{
				EventBase: model.EventBase{
					ID:         uuid.NewString(),
					ScheduleID: scheduleID,
					AssetID:    sat.ID,
					StartTime:  w.Start,
					Duration:   w.End.Sub(w.Start),
				},
				GroundStationID: gs.ID,
				UplinkRate:      uplink,
				DownlinkRate:    downlink,
			}
			if err := cat.AddContactEvent(contact); err != nil {
				return fmt.Errorf("register contact %s: %w", contact.ID, err)
			}
			contacts++
		}
	}

	windows, err := f.EclipseWindows(sat, horizon)
	if err != nil {
		return fmt.Errorf("eclipse windows for %s: %w", sat.ID, err)
	}
	for _, w := range windows {
		eclipse := &model.SatelliteEclipse{
			EventBase: model.EventBase{
				ID:         uuid.NewString(),
				ScheduleID: scheduleID,
				AssetID:    sat.ID,
				StartTime:  w.Start,
				Duration:   w.End.Sub(w.Start),
			},
		}
		if err := cat.AddEclipse(eclipse); err != nil {
			return fmt.Errorf("register eclipse %s: %w", eclipse.ID, err)
		}
		eclipses++
	}

	f.log.Info(ctx, "opportunity feed populated",
		logging.String("schedule_id", scheduleID),
		logging.String("asset_id", sat.ID),
		logging.Int("contacts", contacts),
		logging.Int("eclipses", eclipses),
	)
	return nil
}
