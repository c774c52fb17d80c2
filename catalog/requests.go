package catalog

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/mission-ledger/model"
)

// ErrRequestExists indicates a request with the same (order type, order ID,
// window start) is already tracked.
var ErrRequestExists = errors.New("schedule request already exists")

// AddRequest normalizes and stores a schedule request, enforcing uniqueness
// per (order type, order ID, window start).
func (c *Catalog) AddRequest(r *model.ScheduleRequest) error {
	if err := model.NormalizeRequest(r, c.now()); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.requests[r.ID]; exists {
		return fmt.Errorf("%w: %s", ErrRequestExists, r.ID)
	}
	key := requestKey{orderType: r.OrderType, orderID: r.OrderID, windowStart: r.WindowStart}
	if holder, exists := c.requestKey[key]; exists {
		return fmt.Errorf("%w: (%s, %s, %s) held by %s",
			ErrRequestExists, r.OrderType, r.OrderID, r.WindowStart, holder)
	}
	c.requests[r.ID] = r
	c.requestKey[key] = r.ID
	c.updateMetricsLocked()
	return nil
}

// GetRequest returns the request with the given ID.
func (c *Catalog) GetRequest(id string) (*model.ScheduleRequest, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	return r, nil
}

// ListRequests returns a snapshot slice of all requests.
func (c *Catalog) ListRequests() []*model.ScheduleRequest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.ScheduleRequest, 0, len(c.requests))
	for _, r := range c.requests {
		out = append(out, r)
	}
	return out
}

// UpdateRequestStatus transitions a request and records the reason.
func (c *Catalog) UpdateRequestStatus(id string, status model.RequestStatus, message string) error {
	c.mu.Lock()
	r, ok := c.requests[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	r.Status = status
	r.StatusMessage = message
	r.UpdatedAt = c.now()
	snapshot := *r
	c.mu.Unlock()

	c.notify(Event{Type: EventRequestStatusChanged, Request: &snapshot})
	return nil
}

// DisplaceRequests flips every in-flight request of the schedule whose
// window intersects the preempted range to displaced, and returns the
// affected requests. Preemption is a successful acquisition for the winner;
// this is the loser-side signal.
func (c *Catalog) DisplaceRequests(scheduleID string, rng model.TimeRange, byLock string) []*model.ScheduleRequest {
	c.mu.Lock()
	var displaced []*model.ScheduleRequest
	for _, r := range c.requests {
		if r.ScheduleID != scheduleID {
			continue
		}
		if r.Status != model.RequestProcessing && r.Status != model.RequestScheduled {
			continue
		}
		if !r.Window().Intersects(rng) {
			continue
		}
		r.Status = model.RequestDisplaced
		r.StatusMessage = fmt.Sprintf("window preempted by lock %s", byLock)
		r.UpdatedAt = c.now()
		snapshot := *r
		displaced = append(displaced, &snapshot)
	}
	c.mu.Unlock()

	for _, r := range displaced {
		c.notify(Event{Type: EventRequestStatusChanged, Request: r})
	}
	return displaced
}

// RequestBreakdown returns request counts grouped by status, and within each
// status by status message, for reporting.
func (c *Catalog) RequestBreakdown(orderType model.OrderType) map[model.RequestStatus]map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[model.RequestStatus]map[string]int)
	for _, r := range c.requests {
		if orderType != "" && r.OrderType != orderType {
			continue
		}
		byReason, ok := out[r.Status]
		if !ok {
			byReason = make(map[string]int)
			out[r.Status] = byReason
		}
		byReason[r.StatusMessage]++
	}
	return out
}
