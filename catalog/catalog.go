package catalog

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/mission-ledger/internal/logging"
	"github.com/signalsfoundry/mission-ledger/model"
)

var (
	// ErrNotFound indicates a referenced asset, schedule, event, or request
	// does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAssetExists indicates an asset ID is already registered.
	ErrAssetExists = errors.New("asset already exists")
	// ErrScheduleExists indicates a schedule ID or name is already taken.
	ErrScheduleExists = errors.New("schedule already exists")
	// ErrEventExists indicates an event ID is already in the catalog.
	ErrEventExists = errors.New("event already exists")
	// ErrContactInUse indicates a contact still carries transmitted events.
	ErrContactInUse = errors.New("contact is referenced by transmitted events")
)

// EventType indicates what kind of change happened in the catalog.
type EventType int

const (
	EventTransmittedAdded EventType = iota
	EventTransmittedRemoved
	EventRequestStatusChanged
)

// Event is emitted to subscribers when the catalog changes in a way that
// downstream consumers (store flusher, intake publisher) care about.
type Event struct {
	Type    EventType
	EventID string
	Request *model.ScheduleRequest
}

// MetricsRecorder receives entity-count updates for observability gauges.
type MetricsRecorder interface {
	SetCatalogCounts(assets, schedules, events, requests int)
}

// Catalog is the in-memory, thread-safe store of assets, schedules, and
// scheduled events. It owns the cumulative uplink/downlink totals on contact
// events: inserting or removing a transmitted event adjusts its referenced
// contacts' totals under the same lock, so the totals invariant can never be
// observed broken.
type Catalog struct {
	mu sync.RWMutex

	assets    map[string]*model.Asset
	schedules map[string]*model.Schedule
	// scheduleNames guards name uniqueness.
	scheduleNames map[string]string

	contacts    map[string]*model.ContactEvent
	transmitted map[string]*model.TransmittedEvent
	eclipses    map[string]*model.SatelliteEclipse
	captures    map[string]*model.CaptureOpportunity
	outages     map[string]*model.ScheduledOutage

	// carriers counts transmitted events per contact so contact removal can
	// be refused while references remain.
	carriers map[string]int

	requests   map[string]*model.ScheduleRequest
	requestKey map[requestKey]string

	subs []func(Event)

	log     logging.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

type requestKey struct {
	orderType   model.OrderType
	orderID     string
	windowStart time.Time
}

// Option customises catalog construction.
type Option func(*Catalog)

// WithMetricsRecorder attaches an optional recorder for entity-count gauges.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(c *Catalog) { c.metrics = m }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// New constructs an empty catalog.
func New(log logging.Logger, opts ...Option) *Catalog {
	if log == nil {
		log = logging.Noop()
	}
	c := &Catalog{
		assets:        make(map[string]*model.Asset),
		schedules:     make(map[string]*model.Schedule),
		scheduleNames: make(map[string]string),
		contacts:      make(map[string]*model.ContactEvent),
		transmitted:   make(map[string]*model.TransmittedEvent),
		eclipses:      make(map[string]*model.SatelliteEclipse),
		captures:      make(map[string]*model.CaptureOpportunity),
		outages:       make(map[string]*model.ScheduledOutage),
		carriers:      make(map[string]int),
		requests:      make(map[string]*model.ScheduleRequest),
		requestKey:    make(map[requestKey]string),
		log:           log,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Subscribe registers a callback invoked (outside the catalog lock) after
// mutations.
func (c *Catalog) Subscribe(fn func(Event)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

func (c *Catalog) notify(ev Event) {
	c.mu.RLock()
	subs := append(c.subs[:0:0], c.subs...)
	c.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// RegisterAsset adds an immutable asset definition.
func (c *Catalog) RegisterAsset(a *model.Asset) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: asset must carry an ID", model.ErrValidation)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.assets[a.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAssetExists, a.ID)
	}
	c.assets[a.ID] = a
	c.updateMetricsLocked()
	return nil
}

// GetAsset returns the asset with the given ID.
func (c *Catalog) GetAsset(id string) (*model.Asset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	return a, nil
}

// ListAssets returns a snapshot slice of all assets.
func (c *Catalog) ListAssets() []*model.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Asset, 0, len(c.assets))
	for _, a := range c.assets {
		out = append(out, a)
	}
	return out
}

// AddSchedule normalizes and stores a schedule.
func (c *Catalog) AddSchedule(s *model.Schedule) error {
	if err := model.NormalizeSchedule(s, c.now()); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.schedules[s.ID]; exists {
		return fmt.Errorf("%w: %s", ErrScheduleExists, s.ID)
	}
	if owner, taken := c.scheduleNames[s.Name]; taken {
		return fmt.Errorf("%w: name %q is held by %s", ErrScheduleExists, s.Name, owner)
	}
	c.schedules[s.ID] = s
	c.scheduleNames[s.Name] = s.ID
	c.updateMetricsLocked()
	return nil
}

// GetSchedule returns the schedule with the given ID.
func (c *Catalog) GetSchedule(id string) (*model.Schedule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schedules[id]
	if !ok {
		return nil, fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	return s, nil
}

// ListSchedules returns a snapshot slice of all schedules.
func (c *Catalog) ListSchedules() []*model.Schedule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Schedule, 0, len(c.schedules))
	for _, s := range c.schedules {
		out = append(out, s)
	}
	return out
}

func (c *Catalog) checkEventRefsLocked(e *model.EventBase) error {
	if _, ok := c.schedules[e.ScheduleID]; !ok {
		return fmt.Errorf("schedule %s: %w", e.ScheduleID, ErrNotFound)
	}
	if _, ok := c.assets[e.AssetID]; !ok {
		return fmt.Errorf("asset %s: %w", e.AssetID, ErrNotFound)
	}
	return nil
}

func (c *Catalog) eventIDTakenLocked(id string) bool {
	if _, ok := c.contacts[id]; ok {
		return true
	}
	if _, ok := c.transmitted[id]; ok {
		return true
	}
	if _, ok := c.eclipses[id]; ok {
		return true
	}
	if _, ok := c.captures[id]; ok {
		return true
	}
	_, ok := c.outages[id]
	return ok
}

// AddContactEvent validates and stores a contact event with zeroed totals.
func (c *Catalog) AddContactEvent(ce *model.ContactEvent) error {
	if err := model.NormalizeContact(ce); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkEventRefsLocked(&ce.EventBase); err != nil {
		return err
	}
	if _, ok := c.assets[ce.GroundStationID]; !ok {
		return fmt.Errorf("ground station %s: %w", ce.GroundStationID, ErrNotFound)
	}
	if c.eventIDTakenLocked(ce.ID) {
		return fmt.Errorf("%w: %s", ErrEventExists, ce.ID)
	}
	c.contacts[ce.ID] = ce
	c.updateMetricsLocked()
	return nil
}

// GetContactEvent returns the contact with the given ID.
func (c *Catalog) GetContactEvent(id string) (*model.ContactEvent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ce, ok := c.contacts[id]
	if !ok {
		return nil, fmt.Errorf("contact %s: %w", id, ErrNotFound)
	}
	return ce, nil
}

// AddTransmittedEvent validates the event, checks its contact references,
// stores it, and applies its payload sizes to the referenced contacts'
// running totals. The whole operation happens under one exclusive lock: the
// totals invariant holds at every point a reader can observe.
func (c *Catalog) AddTransmittedEvent(t *model.TransmittedEvent) error {
	if err := model.NormalizeTransmitted(t); err != nil {
		return err
	}
	c.mu.Lock()
	if err := c.checkEventRefsLocked(&t.EventBase); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.eventIDTakenLocked(t.ID) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrEventExists, t.ID)
	}
	uplink, ok := c.contacts[t.UplinkContactID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("uplink contact %s: %w", t.UplinkContactID, ErrNotFound)
	}
	var downlink *model.ContactEvent
	if t.HasDownlink() {
		downlink, ok = c.contacts[t.DownlinkContactID]
		if !ok {
			c.mu.Unlock()
			return fmt.Errorf("downlink contact %s: %w", t.DownlinkContactID, ErrNotFound)
		}
	}

	c.transmitted[t.ID] = t
	uplink.TotalUplinkSize += t.UplinkSize
	c.carriers[uplink.ID]++
	if downlink != nil {
		downlink.TotalDownlinkSize += t.DownlinkSize
		c.carriers[downlink.ID]++
	}
	c.updateMetricsLocked()
	c.mu.Unlock()

	c.notify(Event{Type: EventTransmittedAdded, EventID: t.ID})
	return nil
}

// RemoveTransmittedEvent deletes a transmitted event and restores its
// referenced contacts' totals to their pre-insertion values.
func (c *Catalog) RemoveTransmittedEvent(id string) error {
	c.mu.Lock()
	t, ok := c.transmitted[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("transmitted event %s: %w", id, ErrNotFound)
	}
	delete(c.transmitted, id)
	if uplink, ok := c.contacts[t.UplinkContactID]; ok {
		uplink.TotalUplinkSize -= t.UplinkSize
		c.carriers[uplink.ID]--
	}
	if t.HasDownlink() {
		if downlink, ok := c.contacts[t.DownlinkContactID]; ok {
			downlink.TotalDownlinkSize -= t.DownlinkSize
			c.carriers[downlink.ID]--
		}
	}
	c.updateMetricsLocked()
	c.mu.Unlock()

	c.notify(Event{Type: EventTransmittedRemoved, EventID: id})
	return nil
}

// RemoveContactEvent deletes a contact that carries no transmitted events.
func (c *Catalog) RemoveContactEvent(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.contacts[id]; !ok {
		return fmt.Errorf("contact %s: %w", id, ErrNotFound)
	}
	if c.carriers[id] > 0 {
		return fmt.Errorf("contact %s: %w", id, ErrContactInUse)
	}
	delete(c.contacts, id)
	delete(c.carriers, id)
	c.updateMetricsLocked()
	return nil
}

// AddEclipse stores a satellite eclipse window.
func (c *Catalog) AddEclipse(e *model.SatelliteEclipse) error {
	if err := model.NormalizeEventBase(&e.EventBase); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkEventRefsLocked(&e.EventBase); err != nil {
		return err
	}
	if c.eventIDTakenLocked(e.ID) {
		return fmt.Errorf("%w: %s", ErrEventExists, e.ID)
	}
	c.eclipses[e.ID] = e
	c.updateMetricsLocked()
	return nil
}

// AddCaptureOpportunity stores a capture opportunity window.
func (c *Catalog) AddCaptureOpportunity(o *model.CaptureOpportunity) error {
	if err := model.NormalizeEventBase(&o.EventBase); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkEventRefsLocked(&o.EventBase); err != nil {
		return err
	}
	if c.eventIDTakenLocked(o.ID) {
		return fmt.Errorf("%w: %s", ErrEventExists, o.ID)
	}
	c.captures[o.ID] = o
	c.updateMetricsLocked()
	return nil
}

// AddOutage stores a scheduled outage.
func (c *Catalog) AddOutage(o *model.ScheduledOutage) error {
	if err := model.NormalizeEventBase(&o.EventBase); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkEventRefsLocked(&o.EventBase); err != nil {
		return err
	}
	if c.eventIDTakenLocked(o.ID) {
		return fmt.Errorf("%w: %s", ErrEventExists, o.ID)
	}
	c.outages[o.ID] = o
	c.updateMetricsLocked()
	return nil
}

// EventSet is a consistent copy of the events of one (schedule, asset) pair,
// the input contract of the delta deriver. Values are copies; mutating them
// never touches the catalog.
type EventSet struct {
	ScheduleID string
	AssetID    string

	Transmitted []model.TransmittedEvent
	Contacts    map[string]model.ContactEvent
	Eclipses    []model.SatelliteEclipse
}

// EventSet snapshots the events of one (schedule, asset) pair under the
// catalog lock. Checkpoint computation reads through here, which serializes
// it against concurrent insertions for the same pair.
func (c *Catalog) EventSet(scheduleID, assetID string) (*EventSet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.schedules[scheduleID]; !ok {
		return nil, fmt.Errorf("schedule %s: %w", scheduleID, ErrNotFound)
	}
	if _, ok := c.assets[assetID]; !ok {
		return nil, fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
	}

	set := &EventSet{
		ScheduleID: scheduleID,
		AssetID:    assetID,
		Contacts:   make(map[string]model.ContactEvent),
	}
	for _, t := range c.transmitted {
		if t.ScheduleID != scheduleID || t.AssetID != assetID {
			continue
		}
		set.Transmitted = append(set.Transmitted, *t)
		if ce, ok := c.contacts[t.UplinkContactID]; ok {
			set.Contacts[ce.ID] = *ce
		}
		if t.HasDownlink() {
			if ce, ok := c.contacts[t.DownlinkContactID]; ok {
				set.Contacts[ce.ID] = *ce
			}
		}
	}
	for _, e := range c.eclipses {
		if e.ScheduleID == scheduleID && e.AssetID == assetID {
			set.Eclipses = append(set.Eclipses, *e)
		}
	}
	return set, nil
}

// TransmittedBySatellite returns per-kind counts of transmitted events for
// one satellite, for reporting.
func (c *Catalog) TransmittedBySatellite(assetID string) map[model.TransmittedEventKind]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[model.TransmittedEventKind]int)
	for _, t := range c.transmitted {
		if t.AssetID == assetID {
			out[t.Kind]++
		}
	}
	return out
}

// ActiveContacts returns the contacts of one ground station that carry data
// (positive total transmission time).
func (c *Catalog) ActiveContacts(groundStationID string) []*model.ContactEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*model.ContactEvent
	for _, ce := range c.contacts {
		if ce.GroundStationID == groundStationID && ce.TotalTransmissionTime() > 0 {
			out = append(out, ce)
		}
	}
	return out
}

func (c *Catalog) updateMetricsLocked() {
	if c.metrics == nil {
		return
	}
	events := len(c.contacts) + len(c.transmitted) + len(c.eclipses) + len(c.captures) + len(c.outages)
	c.metrics.SetCatalogCounts(len(c.assets), len(c.schedules), events, len(c.requests))
}
