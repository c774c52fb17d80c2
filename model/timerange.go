package model

import "time"

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange builds the range [start, start+d).
func NewTimeRange(start time.Time, d time.Duration) TimeRange {
	return TimeRange{Start: start, End: start.Add(d)}
}

// IsValid reports whether the range is well-formed (End strictly after Start).
func (r TimeRange) IsValid() bool {
	return r.End.After(r.Start)
}

// Duration returns End - Start.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Intersects reports whether r and other share any instant. Half-open
// semantics: ranges that merely touch at an endpoint do not intersect.
func (r TimeRange) Intersects(other TimeRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Contains reports whether t lies inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Intersection returns the overlapping portion of r and other. The second
// return value is false when the ranges do not intersect.
func (r TimeRange) Intersection(other TimeRange) (TimeRange, bool) {
	if !r.Intersects(other) {
		return TimeRange{}, false
	}
	out := r
	if other.Start.After(out.Start) {
		out.Start = other.Start
	}
	if other.End.Before(out.End) {
		out.End = other.End
	}
	return out, true
}

// Clamp restricts r to the bounds of limit.
func (r TimeRange) Clamp(limit TimeRange) TimeRange {
	out, ok := r.Intersection(limit)
	if !ok {
		return TimeRange{Start: limit.Start, End: limit.Start}
	}
	return out
}
