package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation is the sentinel wrapped by every normalization/validation
// failure. Rejected entities are never partially applied.
var ErrValidation = errors.New("validation failed")

// imageDefaults holds the per-type imaging defaults applied when an imaging
// event arrives without an explicit duration or downlink size.
var imageDefaults = map[ImageType]struct {
	Duration     time.Duration
	DownlinkSize float64
}{
	ImageLow:       {Duration: 20 * time.Second, DownlinkSize: 128.0},
	ImageMedium:    {Duration: 45 * time.Second, DownlinkSize: 256.0},
	ImageSpotlight: {Duration: 120 * time.Second, DownlinkSize: 512.0},
}

// NormalizeSchedule applies defaults and validates a schedule before it is
// committed. The name defaults from the ID, the epoch from the creation
// time.
func NormalizeSchedule(s *Schedule, now time.Time) error {
	if s == nil {
		return fmt.Errorf("%w: nil schedule", ErrValidation)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: schedule ID is required", ErrValidation)
	}
	if s.Name == "" {
		s.Name = "schedule-" + s.ID
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.Epoch.IsZero() {
		s.Epoch = s.CreatedAt
	}
	return nil
}

// NormalizeEventBase validates the shared event fields: a well-formed time
// range and, when a buffer window is present, window_start ≤ start ≤ end ≤
// window_end.
func NormalizeEventBase(e *EventBase) error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrValidation)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: event ID is required", ErrValidation)
	}
	if e.ScheduleID == "" || e.AssetID == "" {
		return fmt.Errorf("%w: event %s must reference a schedule and an asset", ErrValidation, e.ID)
	}
	if e.StartTime.IsZero() {
		return fmt.Errorf("%w: event %s has no start time", ErrValidation, e.ID)
	}
	if e.Duration <= 0 {
		return fmt.Errorf("%w: event %s duration must be positive", ErrValidation, e.ID)
	}
	if e.HasWindow() {
		end := e.StartTime.Add(e.Duration)
		if e.WindowStart.IsZero() || e.WindowEnd.IsZero() {
			return fmt.Errorf("%w: event %s buffer window must set both bounds", ErrValidation, e.ID)
		}
		if e.WindowStart.After(e.StartTime) || end.After(e.WindowEnd) {
			return fmt.Errorf("%w: event %s must lie inside its buffer window", ErrValidation, e.ID)
		}
	}
	return nil
}

// NormalizeContact validates a contact event. Totals start at zero; they are
// owned by the catalog afterwards.
func NormalizeContact(c *ContactEvent) error {
	if c == nil {
		return fmt.Errorf("%w: nil contact event", ErrValidation)
	}
	if err := NormalizeEventBase(&c.EventBase); err != nil {
		return err
	}
	if c.GroundStationID == "" {
		return fmt.Errorf("%w: contact %s must reference a ground station", ErrValidation, c.ID)
	}
	if c.UplinkRate < 0 || c.DownlinkRate < 0 {
		return fmt.Errorf("%w: contact %s rates must be non-negative", ErrValidation, c.ID)
	}
	if c.TotalUplinkSize != 0 || c.TotalDownlinkSize != 0 {
		return fmt.Errorf("%w: contact %s totals are catalog-owned and must start at zero", ErrValidation, c.ID)
	}
	return nil
}

// NormalizeTransmitted applies imaging defaults, then validates. An imaging
// event without an explicit duration or downlink size takes both from its
// image type.
func NormalizeTransmitted(t *TransmittedEvent) error {
	if t == nil {
		return fmt.Errorf("%w: nil transmitted event", ErrValidation)
	}
	if t.Kind == TransmittedImaging {
		def, ok := imageDefaults[t.ImageType]
		if !ok {
			return fmt.Errorf("%w: event %s has unknown image type %q", ErrValidation, t.ID, t.ImageType)
		}
		if t.Duration == 0 {
			t.Duration = def.Duration
		}
		if t.DownlinkSize == 0 {
			t.DownlinkSize = def.DownlinkSize
		}
	}
	if err := NormalizeEventBase(&t.EventBase); err != nil {
		return err
	}
	if t.UplinkSize < 0 || t.DownlinkSize < 0 {
		return fmt.Errorf("%w: event %s payload sizes must be non-negative", ErrValidation, t.ID)
	}
	if t.PowerUsage < 0 {
		return fmt.Errorf("%w: event %s power usage must be non-negative", ErrValidation, t.ID)
	}
	if t.Priority < 0 {
		return fmt.Errorf("%w: event %s priority must be non-negative", ErrValidation, t.ID)
	}
	if t.UplinkContactID == "" {
		return fmt.Errorf("%w: event %s requires an uplink contact", ErrValidation, t.ID)
	}
	return nil
}

// NormalizeRequest validates a schedule request: a well-formed window and a
// delivery deadline no earlier than the window end.
func NormalizeRequest(r *ScheduleRequest, now time.Time) error {
	if r == nil {
		return fmt.Errorf("%w: nil schedule request", ErrValidation)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: request ID is required", ErrValidation)
	}
	if r.OrderID == "" || r.OrderType == "" {
		return fmt.Errorf("%w: request %s must reference an order", ErrValidation, r.ID)
	}
	if !r.Window().IsValid() {
		return fmt.Errorf("%w: request %s window end must follow its start", ErrValidation, r.ID)
	}
	if !r.DeliveryDeadline.IsZero() && r.DeliveryDeadline.Before(r.WindowEnd) {
		return fmt.Errorf("%w: request %s deadline precedes its window end", ErrValidation, r.ID)
	}
	if r.Priority < 0 {
		return fmt.Errorf("%w: request %s priority must be non-negative", ErrValidation, r.ID)
	}
	if r.Status == "" {
		r.Status = RequestReceived
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return nil
}

// RequestsFromOrder expands an order into one schedule request per visit,
// spacing windows by the revisit frequency.
func RequestsFromOrder(o *Order, now time.Time) ([]*ScheduleRequest, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: nil order", ErrValidation)
	}
	if o.ID == "" || o.Type == "" {
		return nil, fmt.Errorf("%w: order must carry an ID and a type", ErrValidation)
	}
	visits := o.NumberOfVisits
	if visits <= 0 {
		visits = 1
	}
	if visits > 1 && o.RevisitFrequency <= 0 {
		return nil, fmt.Errorf("%w: recurring order %s needs a revisit frequency", ErrValidation, o.ID)
	}

	requests := make([]*ScheduleRequest, 0, visits)
	for i := 0; i < visits; i++ {
		shift := time.Duration(i) * o.RevisitFrequency
		req := &ScheduleRequest{
			ID:          fmt.Sprintf("%s-%s-%d", o.Type, o.ID, i),
			OrderID:     o.ID,
			OrderType:   o.Type,
			Status:      RequestReceived,
			WindowStart: o.WindowStart.Add(shift),
			WindowEnd:   o.WindowEnd.Add(shift),
			Priority:    o.Priority,
		}
		// A zero deadline means none; shifting it would invent one.
		if !o.DeliveryDeadline.IsZero() {
			req.DeliveryDeadline = o.DeliveryDeadline.Add(shift)
		}
		if err := NormalizeRequest(req, now); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}
