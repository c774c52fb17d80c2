package model

import "time"

// RequestStatus tracks a schedule request through its lifecycle.
type RequestStatus string

const (
	RequestReceived   RequestStatus = "received"
	RequestProcessing RequestStatus = "processing"
	RequestRejected   RequestStatus = "rejected"
	RequestDeclined   RequestStatus = "declined"
	// RequestDisplaced signals that a higher-priority lock preempted the
	// window this request was being scheduled into. It is the user-visible
	// outcome of preemption, not an error.
	RequestDisplaced RequestStatus = "displaced"
	RequestScheduled RequestStatus = "scheduled"
	RequestSentToGS  RequestStatus = "sent_to_gs"
)

// OrderType classifies the external orders the optimizer turns into
// schedule requests.
type OrderType string

const (
	OrderImage       OrderType = "image"
	OrderMaintenance OrderType = "maintenance"
	OrderOutage      OrderType = "outage"
)

// Order is the consumed shape of an external order record. Orders arrive
// through intake; this system never creates them.
type Order struct {
	ID   string
	Type OrderType

	Latitude  float64
	Longitude float64
	Priority  int
	ImageType ImageType

	WindowStart      time.Time
	WindowEnd        time.Time
	DeliveryDeadline time.Time

	// NumberOfVisits and RevisitFrequency describe recurring orders. A
	// single-shot order has one visit and zero frequency.
	NumberOfVisits   int
	RevisitFrequency time.Duration
}

// ScheduleRequest is one attempt to place an order's activity inside a
// specific window. Requests are unique per (order type, order ID, window
// start).
type ScheduleRequest struct {
	ID         string
	ScheduleID string

	OrderID   string
	OrderType OrderType

	Status RequestStatus
	// StatusMessage carries the human-readable reason for rejected,
	// declined, and displaced requests.
	StatusMessage string

	WindowStart      time.Time
	WindowEnd        time.Time
	DeliveryDeadline time.Time
	Priority         int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Window returns the request's target window as a range.
func (r *ScheduleRequest) Window() TimeRange {
	return TimeRange{Start: r.WindowStart, End: r.WindowEnd}
}
