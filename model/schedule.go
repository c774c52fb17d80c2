package model

import "time"

// Schedule is a named, independently lockable timeline of events: one
// candidate plan, or one generation of a search population.
type Schedule struct {
	ID string
	// Name is unique across schedules; normalization defaults it from the ID
	// when absent.
	Name string
	// Group ties related schedules together (e.g. one optimizer run).
	Group string

	// Epoch is the designated baseline instant for this schedule's
	// checkpoints. A checkpoint may be created at the epoch without any
	// prior baseline.
	Epoch time.Time

	// ReferenceTimeOffset shifts the schedule's planning reference time
	// relative to the epoch. Replanning further into the past or future
	// adjusts this offset rather than rewriting events.
	ReferenceTimeOffset time.Duration

	CreatedAt time.Time
}

// ReferenceTime returns the schedule's current planning reference time.
func (s *Schedule) ReferenceTime() time.Time {
	return s.Epoch.Add(s.ReferenceTimeOffset)
}
