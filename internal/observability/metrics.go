package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LedgerCollector bundles Prometheus metrics for the ledger core: catalog
// entity counts, checkpoint activity, and lock arbitration outcomes.
type LedgerCollector struct {
	gatherer prometheus.Gatherer

	CheckpointDurations *prometheus.HistogramVec
	CapacityOverflows   *prometheus.CounterVec

	LocksAcquired  prometheus.Counter
	LocksPreempted prometheus.Counter
	LocksRejected  prometheus.Counter

	CatalogAssets    prometheus.Gauge
	CatalogSchedules prometheus.Gauge
	CatalogEvents    prometheus.Gauge
	CatalogRequests  prometheus.Gauge
}

// NewLedgerCollector registers the ledger metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewLedgerCollector(reg prometheus.Registerer) (*LedgerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_checkpoint_duration_seconds",
		Help:    "Checkpoint computation latency in seconds, labeled by schedule and asset.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"schedule", "asset"})
	durations, err := registerHistogramVec(reg, durations, "ledger_checkpoint_duration_seconds")
	if err != nil {
		return nil, err
	}

	overflows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_capacity_overflows_total",
		Help: "Capacity validations that reported an overflow, labeled by asset.",
	}, []string{"asset"})
	overflows, err = registerCounterVec(reg, overflows, "ledger_capacity_overflows_total")
	if err != nil {
		return nil, err
	}

	acquired, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_locks_acquired_total",
		Help: "Successful schedule-lock acquisitions, including preempting ones.",
	}), "ledger_locks_acquired_total")
	if err != nil {
		return nil, err
	}
	preempted, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_locks_preempted_total",
		Help: "Acquisitions that displaced lower-priority locks.",
	}), "ledger_locks_preempted_total")
	if err != nil {
		return nil, err
	}
	rejected, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_locks_rejected_total",
		Help: "Acquisitions denied because an equal-or-higher priority lock held the window.",
	}), "ledger_locks_rejected_total")
	if err != nil {
		return nil, err
	}

	assets, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_assets",
		Help: "Current number of registered assets.",
	}), "catalog_assets")
	if err != nil {
		return nil, err
	}
	schedules, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_schedules",
		Help: "Current number of schedules.",
	}), "catalog_schedules")
	if err != nil {
		return nil, err
	}
	events, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_events",
		Help: "Current number of scheduled events across all kinds.",
	}), "catalog_events")
	if err != nil {
		return nil, err
	}
	requests, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_schedule_requests",
		Help: "Current number of tracked schedule requests.",
	}), "catalog_schedule_requests")
	if err != nil {
		return nil, err
	}

	return &LedgerCollector{
		gatherer:            gatherer,
		CheckpointDurations: durations,
		CapacityOverflows:   overflows,
		LocksAcquired:       acquired,
		LocksPreempted:      preempted,
		LocksRejected:       rejected,
		CatalogAssets:       assets,
		CatalogSchedules:    schedules,
		CatalogEvents:       events,
		CatalogRequests:     requests,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *LedgerCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetCatalogCounts satisfies catalog.MetricsRecorder so the catalog can
// drive gauge values directly from its mutators.
func (c *LedgerCollector) SetCatalogCounts(assets, schedules, events, requests int) {
	if c == nil {
		return
	}
	c.CatalogAssets.Set(float64(assets))
	c.CatalogSchedules.Set(float64(schedules))
	c.CatalogEvents.Set(float64(events))
	c.CatalogRequests.Set(float64(requests))
}

// ObserveCheckpoint satisfies ledger.CheckpointRecorder.
func (c *LedgerCollector) ObserveCheckpoint(scheduleID, assetID string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.CheckpointDurations.WithLabelValues(scheduleID, assetID).Observe(elapsed.Seconds())
}

// IncCapacityOverflow satisfies ledger.CheckpointRecorder.
func (c *LedgerCollector) IncCapacityOverflow(assetID string) {
	if c == nil {
		return
	}
	c.CapacityOverflows.WithLabelValues(assetID).Inc()
}

// IncLockAcquired satisfies lockarb.Recorder.
func (c *LedgerCollector) IncLockAcquired() {
	if c != nil {
		c.LocksAcquired.Inc()
	}
}

// IncLockPreempted satisfies lockarb.Recorder.
func (c *LedgerCollector) IncLockPreempted() {
	if c != nil {
		c.LocksPreempted.Inc()
	}
}

// IncLockRejected satisfies lockarb.Recorder.
func (c *LedgerCollector) IncLockRejected() {
	if c != nil {
		c.LocksRejected.Inc()
	}
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
