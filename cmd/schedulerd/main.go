package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/signalsfoundry/mission-ledger/catalog"
	"github.com/signalsfoundry/mission-ledger/internal/intake"
	"github.com/signalsfoundry/mission-ledger/internal/ledger"
	"github.com/signalsfoundry/mission-ledger/internal/lockarb"
	"github.com/signalsfoundry/mission-ledger/internal/logging"
	"github.com/signalsfoundry/mission-ledger/internal/observability"
	"github.com/signalsfoundry/mission-ledger/internal/opportunity"
	"github.com/signalsfoundry/mission-ledger/internal/store"
	"github.com/signalsfoundry/mission-ledger/internal/windows"
	"github.com/signalsfoundry/mission-ledger/model"
	"github.com/signalsfoundry/mission-ledger/timectrl"
)

func main() {
	natsURL := flag.String("nats-url", nats.DefaultURL, "NATS server URL for order intake")
	dbPath := flag.String("db", "mission-ledger.db", "Path to the sqlite database")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	scenarioPath := flag.String("scenario", "configs/scenario.json", "Path to a JSON scenario with assets and schedules")
	horizon := flag.Duration("horizon", 24*time.Hour, "Opportunity computation horizon from each schedule epoch")
	sampleStep := flag.Duration("sample-step", 10*time.Second, "Propagation sampling interval")
	minElevation := flag.Float64("min-elevation", 10, "Minimum contact elevation in degrees")
	checkpointEvery := flag.Duration("checkpoint-every", time.Minute, "Interval between checkpoint sweeps")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	collector, err := observability.NewLedgerCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	db, err := store.Open(*dbPath, log)
	if err != nil {
		log.Error(ctx, "failed to open database", logging.String("path", *dbPath), logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	cat := catalog.New(log, catalog.WithMetricsRecorder(collector))
	if err := db.Hydrate(ctx, cat); err != nil {
		log.Error(ctx, "failed to hydrate catalog", logging.String("error", err.Error()))
		os.Exit(1)
	}
	loadScenario(ctx, log, cat, db, *scenarioPath)

	tracker := windows.NewTracker(log)
	feed := opportunity.NewFeed(log,
		opportunity.WithSampleStep(*sampleStep),
		opportunity.WithMinElevation(*minElevation),
	)

	// One planning clock per schedule. Shifting the reference extends
	// opportunity coverage over the new horizon; spans already processed stay
	// covered, so a shift only computes the uncovered remainder.
	refs := make(map[string]*timectrl.ReferenceController)
	for _, sch := range cat.ListSchedules() {
		sch := sch
		rc := timectrl.NewReferenceController(sch.Epoch, sch.ReferenceTimeOffset)
		rc.AddListener(func(reference time.Time) {
			span := model.TimeRange{Start: reference, End: reference.Add(*horizon)}
			populateScheduleGaps(ctx, log, cat, tracker, feed, db, sch.ID, span)
			persistWindows(ctx, log, cat, db, sch.ID)
		})
		refs[sch.ID] = rc
	}
	populateOpportunities(ctx, log, cat, tracker, feed, db, refs, *horizon)

	engine := ledger.NewEngine(cat, log, ledger.WithCheckpointRecorder(collector))
	seedCheckpoints(ctx, log, engine, cat, db)

	arbitrator := lockarb.New(log, lockarb.WithRecorder(collector))

	nc, err := nats.Connect(*natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		log.Error(ctx, "failed to connect to NATS", logging.String("url", *natsURL), logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer nc.Drain()

	consumer := intake.NewConsumer(nc, &persistentSink{cat: cat, db: db, log: log}, log)
	if err := consumer.Start(ctx); err != nil {
		log.Error(ctx, "failed to start order intake", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer consumer.Stop()
	intake.NotifyCatalogEvents(ctx, cat, nc, log, nil)

	// Mirror request status transitions into the store.
	cat.Subscribe(func(ev catalog.Event) {
		if ev.Type != catalog.EventRequestStatusChanged || ev.Request == nil {
			return
		}
		err := db.UpdateRequestStatus(ctx, ev.Request.ID, ev.Request.Status, ev.Request.StatusMessage, ev.Request.UpdatedAt)
		if err != nil {
			log.Warn(ctx, "failed to persist request status",
				logging.String("request_id", ev.Request.ID),
				logging.String("error", err.Error()),
			)
		}
	})

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go checkpointLoop(stopCtx, log, engine, cat, db, arbitrator, refs, *checkpointEvery)

	log.Info(ctx, "scheduler daemon running",
		logging.String("db", *dbPath),
		logging.String("nats_url", *natsURL),
		logging.Duration("checkpoint_every", *checkpointEvery),
		logging.Duration("horizon", *horizon),
	)
	<-stopCtx.Done()

	log.Info(ctx, "shutting down scheduler daemon")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

// checkpointLoop advances each schedule's planning reference every tick and
// sweeps its (schedule, satellite) checkpoint chains up to the new reference,
// validating capacity against each asset's limits and flushing new
// checkpoints to the store.
func checkpointLoop(ctx context.Context, log logging.Logger, engine *ledger.Engine, cat *catalog.Catalog, db *store.Store, arb *lockarb.Arbitrator, refs map[string]*timectrl.ReferenceController, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sch := range cat.ListSchedules() {
				rc, ok := refs[sch.ID]
				if !ok {
					continue
				}
				reference := rc.Shift(every)
				sweep(ctx, log, engine, cat, db, arb, sch, every, reference)
			}
		}
	}
}

// opportunityKey names the tracker key under which feed computation spans
// for a schedule are recorded, so restarts only recompute uncovered gaps.
// Blocks are tracked per satellite; the key carries the schedule so the same
// satellite can cover different spans under different schedules.
func opportunityKey(scheduleID string) string {
	return "opportunities:" + scheduleID
}

// populateOpportunities seeds the tracker from the store and runs the feed
// over every uncovered gap of each schedule's initial horizon, anchored at
// the schedule's planning reference.
func populateOpportunities(ctx context.Context, log logging.Logger, cat *catalog.Catalog, tracker *windows.Tracker, feed *opportunity.Feed, db *store.Store, refs map[string]*timectrl.ReferenceController, horizon time.Duration) {
	for _, sch := range cat.ListSchedules() {
		for _, sat := range cat.ListAssets() {
			if !sat.IsSatellite() {
				continue
			}
			blocks, err := db.Blocks(ctx, sat.ID, opportunityKey(sch.ID))
			if err != nil {
				continue
			}
			if err := tracker.Seed(blocks); err != nil {
				log.Warn(ctx, "failed to seed processing blocks",
					logging.String("schedule_id", sch.ID),
					logging.String("asset_id", sat.ID),
					logging.String("error", err.Error()),
				)
			}
		}

		start := sch.Epoch
		if rc, ok := refs[sch.ID]; ok {
			start = rc.Now()
		}
		span := model.TimeRange{Start: start, End: start.Add(horizon)}
		populateScheduleGaps(ctx, log, cat, tracker, feed, db, sch.ID, span)
		persistWindows(ctx, log, cat, db, sch.ID)
	}
}

// populateScheduleGaps runs the feed over every uncovered gap of the span,
// marking each span processing while the computation runs and processed once
// its windows are in the catalog. Coverage is tracked per satellite, so one
// satellite's finished span never masks another's missing one.
func populateScheduleGaps(ctx context.Context, log logging.Logger, cat *catalog.Catalog, tracker *windows.Tracker, feed *opportunity.Feed, db *store.Store, scheduleID string, span model.TimeRange) {
	key := opportunityKey(scheduleID)
	for _, sat := range cat.ListAssets() {
		if !sat.IsSatellite() || sat.TLELine1 == "" || sat.TLELine2 == "" {
			continue
		}
		for _, gap := range tracker.UncoveredGaps(sat.ID, key, span) {
			block, err := tracker.BeginProcessing(ctx, sat.ID, key, gap)
			if err != nil {
				log.Warn(ctx, "opportunity gap already claimed",
					logging.String("schedule_id", scheduleID),
					logging.String("asset_id", sat.ID),
					logging.String("error", err.Error()),
				)
				continue
			}
			if err := feed.PopulateSatellite(ctx, cat, scheduleID, sat, gap); err != nil {
				log.Error(ctx, "opportunity feed failed",
					logging.String("schedule_id", scheduleID),
					logging.String("asset_id", sat.ID),
					logging.String("error", err.Error()),
				)
				continue
			}
			if err := tracker.Complete(ctx, block.ID); err != nil {
				log.Warn(ctx, "failed to complete processing block",
					logging.String("block_id", block.ID),
					logging.String("error", err.Error()),
				)
				continue
			}
			blocks := tracker.Blocks(sat.ID, key)
			for i := range blocks {
				if blocks[i].ID != block.ID {
					continue
				}
				if err := db.SaveBlock(ctx, &blocks[i]); err != nil {
					log.Warn(ctx, "failed to persist processing block",
						logging.String("block_id", block.ID),
						logging.String("error", err.Error()),
					)
				}
			}
		}
	}
}

// persistWindows flushes the schedule's contact and eclipse windows to the
// store after a feed pass.
func persistWindows(ctx context.Context, log logging.Logger, cat *catalog.Catalog, db *store.Store, scheduleID string) {
	for _, asset := range cat.ListAssets() {
		if !asset.IsSatellite() {
			continue
		}
		set, err := cat.EventSet(scheduleID, asset.ID)
		if err != nil {
			continue
		}
		for id := range set.Contacts {
			contact := set.Contacts[id]
			if err := db.SaveContact(ctx, &contact); err != nil {
				log.Warn(ctx, "failed to persist contact",
					logging.String("contact_id", id),
					logging.String("error", err.Error()),
				)
			}
		}
		for i := range set.Eclipses {
			if err := db.SaveEclipse(ctx, &set.Eclipses[i]); err != nil {
				log.Warn(ctx, "failed to persist eclipse",
					logging.String("eclipse_id", set.Eclipses[i].ID),
					logging.String("error", err.Error()),
				)
			}
		}
	}
}

// sweepPriority scales lock priority with scheduling pressure: the more
// requests still waiting, the harder a sweep fights to keep its window.
func sweepPriority(cat *catalog.Catalog, scheduleID string) int {
	pending := 0
	for _, req := range cat.ListRequests() {
		if req.ScheduleID != "" && req.ScheduleID != scheduleID {
			continue
		}
		if req.Status == model.RequestReceived || req.Status == model.RequestProcessing {
			pending++
		}
	}
	if pending > 10 {
		pending = 10
	}
	return 1 + pending
}

func sweep(ctx context.Context, log logging.Logger, engine *ledger.Engine, cat *catalog.Catalog, db *store.Store, arb *lockarb.Arbitrator, sch *model.Schedule, every time.Duration, now time.Time) {
	window := model.TimeRange{Start: now.Add(-every), End: now}
	acq, err := arb.Acquire(ctx, sch.ID, window, sweepPriority(cat, sch.ID))
	if err != nil {
		// An equal-or-higher priority pass holds the window; next tick.
		log.Debug(ctx, "sweep window locked",
			logging.String("schedule_id", sch.ID),
			logging.String("error", err.Error()),
		)
		return
	}
	// Displaced requests flow to the store and the status subjects through
	// the catalog's change notifications.
	for _, displaced := range acq.Displaced {
		cat.DisplaceRequests(sch.ID, displaced.Range, acq.Lock.ID)
	}

	for _, asset := range cat.ListAssets() {
		if !asset.IsSatellite() {
			continue
		}

		cp, err := engine.CreateCheckpoint(ctx, sch.ID, asset.ID, now)
		if errors.Is(err, ledger.ErrNoBaseline) {
			// A chain with no baseline yet starts at the epoch.
			cp, err = engine.CreateCheckpoint(ctx, sch.ID, asset.ID, sch.Epoch)
		}
		if err != nil {
			log.Warn(ctx, "checkpoint sweep skipped pair",
				logging.String("schedule_id", sch.ID),
				logging.String("asset_id", asset.ID),
				logging.String("error", err.Error()),
			)
			continue
		}
		if err := db.AppendCheckpoint(ctx, cp); err != nil {
			log.Error(ctx, "failed to persist checkpoint",
				logging.String("schedule_id", sch.ID),
				logging.String("asset_id", asset.ID),
				logging.String("error", err.Error()),
			)
		}

		report, err := engine.ValidateCapacity(ctx, sch.ID, asset.ID, asset.CapacityLimit())
		if err != nil {
			continue
		}
		if report.Overflow() {
			log.Warn(ctx, "capacity overflow projected",
				logging.String("schedule_id", sch.ID),
				logging.String("asset_id", asset.ID),
				logging.Float64("worst_storage", report.Worst.Storage),
				logging.Float64("worst_energy", report.Worst.EnergyUsage),
			)
		}
	}

	if released, err := arb.Release(ctx, acq.Lock.ID); err == nil {
		if err := db.SaveLock(ctx, released); err != nil {
			log.Warn(ctx, "failed to persist lock release",
				logging.String("lock_id", released.ID),
				logging.String("error", err.Error()),
			)
		}
	}
}

// seedCheckpoints replays persisted checkpoint chains into the engine so a
// restart continues from the last recorded state.
func seedCheckpoints(ctx context.Context, log logging.Logger, engine *ledger.Engine, cat *catalog.Catalog, db *store.Store) {
	for _, sch := range cat.ListSchedules() {
		for _, asset := range cat.ListAssets() {
			if !asset.IsSatellite() {
				continue
			}
			cps, err := db.Checkpoints(ctx, sch.ID, asset.ID)
			if err != nil {
				log.Warn(ctx, "failed to load checkpoints",
					logging.String("schedule_id", sch.ID),
					logging.String("asset_id", asset.ID),
					logging.String("error", err.Error()),
				)
				continue
			}
			engine.Seed(cps)
		}
	}
}

// persistentSink registers incoming requests in the catalog and writes them
// through to the store.
type persistentSink struct {
	cat *catalog.Catalog
	db  *store.Store
	log logging.Logger
}

func (s *persistentSink) AddRequest(r *model.ScheduleRequest) error {
	if err := s.cat.AddRequest(r); err != nil {
		return err
	}
	if err := s.db.SaveRequest(context.Background(), r); err != nil {
		s.log.Warn(context.Background(), "failed to persist request",
			logging.String("request_id", r.ID),
			logging.String("error", err.Error()),
		)
	}
	return nil
}

// scenario is the on-disk bootstrap shape: assets and schedules to register
// when the database holds none.
type scenario struct {
	Assets    []*model.Asset    `json:"assets"`
	Schedules []*model.Schedule `json:"schedules"`
}

func loadScenario(ctx context.Context, log logging.Logger, cat *catalog.Catalog, db *store.Store, path string) {
	if path == "" || len(cat.ListAssets()) > 0 {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn(ctx, "skipping scenario load", logging.String("path", path), logging.String("error", err.Error()))
		return
	}

	var sc scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		log.Warn(ctx, "failed to parse scenario", logging.String("path", path), logging.String("error", err.Error()))
		return
	}

	added := 0
	for _, a := range sc.Assets {
		if a == nil {
			continue
		}
		if err := cat.RegisterAsset(a); err != nil {
			log.Warn(ctx, "skipping asset", logging.String("id", a.ID), logging.String("error", err.Error()))
			continue
		}
		if err := db.SaveAsset(ctx, a); err != nil {
			log.Warn(ctx, "failed to persist asset", logging.String("id", a.ID), logging.String("error", err.Error()))
		}
		added++
	}
	for _, s := range sc.Schedules {
		if s == nil {
			continue
		}
		if err := cat.AddSchedule(s); err != nil {
			log.Warn(ctx, "skipping schedule", logging.String("id", s.ID), logging.String("error", err.Error()))
			continue
		}
		if err := db.SaveSchedule(ctx, s); err != nil {
			log.Warn(ctx, "failed to persist schedule", logging.String("id", s.ID), logging.String("error", err.Error()))
		}
	}

	log.Info(ctx, "loaded scenario",
		logging.String("path", path),
		logging.Int("assets", added),
		logging.Int("schedules", len(sc.Schedules)),
	)
}

func serveMetrics(addr string, collector *observability.LedgerCollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
