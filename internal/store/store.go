// Package store persists the mission ledger to a relational database. The
// in-memory catalog remains the source of truth at runtime; the store exists
// to survive restarts and to answer reporting queries without holding the
// catalog lock.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/signalsfoundry/mission-ledger/catalog"
	"github.com/signalsfoundry/mission-ledger/internal/logging"
	"github.com/signalsfoundry/mission-ledger/model"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps a GORM handle with ledger-specific operations.
type Store struct {
	db  *gorm.DB
	log logging.Logger
}

// Open connects to the sqlite database at path (":memory:" for tests),
// migrates the schema, and returns a ready Store.
func Open(path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Noop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	if err := db.AutoMigrate(
		&AssetRecord{},
		&ScheduleRecord{},
		&ContactEventRecord{},
		&TransmittedEventRecord{},
		&EclipseRecord{},
		&CaptureOpportunityRecord{},
		&OutageRecord{},
		&ScheduleRequestRecord{},
		&CheckpointRecord{},
		&ProcessingBlockRecord{},
		&ScheduleLockRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// DB exposes the underlying handle for ad-hoc queries.
func (s *Store) DB() *gorm.DB { return s.db }

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveAsset upserts an asset row.
func (s *Store) SaveAsset(ctx context.Context, a *model.Asset) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(assetRecord(a)).Error
}

// SaveSchedule upserts a schedule row.
func (s *Store) SaveSchedule(ctx context.Context, sch *model.Schedule) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(scheduleRecord(sch)).Error
}

// SaveContact upserts a contact event row, totals included.
func (s *Store) SaveContact(ctx context.Context, c *model.ContactEvent) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(contactRecord(c)).Error
}

// SaveEclipse upserts an eclipse row.
func (s *Store) SaveEclipse(ctx context.Context, e *model.SatelliteEclipse) error {
	rec := &EclipseRecord{ID: e.ID, EventColumns: eventCols(e.EventBase)}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
}

// SaveCaptureOpportunity upserts a capture opportunity row.
func (s *Store) SaveCaptureOpportunity(ctx context.Context, o *model.CaptureOpportunity) error {
	rec := &CaptureOpportunityRecord{
		ID:           o.ID,
		EventColumns: eventCols(o.EventBase),
		Latitude:     o.Latitude,
		Longitude:    o.Longitude,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
}

// SaveOutage upserts an outage row.
func (s *Store) SaveOutage(ctx context.Context, o *model.ScheduledOutage) error {
	rec := &OutageRecord{ID: o.ID, EventColumns: eventCols(o.EventBase), Reason: o.Reason}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
}

// InsertTransmitted persists a transmitted event and applies its sizes to
// the referenced contact totals in one transaction.
func (s *Store) InsertTransmitted(ctx context.Context, t *model.TransmittedEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(transmittedRecord(t)).Error; err != nil {
			return fmt.Errorf("insert transmitted event %s: %w", t.ID, err)
		}
		if err := adjustContactTotals(tx, t.UplinkContactID, t.UplinkSize, 0); err != nil {
			return err
		}
		if t.HasDownlink() {
			if err := adjustContactTotals(tx, t.DownlinkContactID, 0, t.DownlinkSize); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveTransmitted deletes a transmitted event and backs its sizes out of
// the referenced contact totals in one transaction.
func (s *Store) RemoveTransmitted(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec TransmittedEventRecord
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("transmitted event %s: %w", id, ErrNotFound)
			}
			return err
		}
		if err := adjustContactTotals(tx, rec.UplinkContactID, -rec.UplinkSize, 0); err != nil {
			return err
		}
		if rec.DownlinkContactID != "" {
			if err := adjustContactTotals(tx, rec.DownlinkContactID, 0, -rec.DownlinkSize); err != nil {
				return err
			}
		}
		return tx.Delete(&TransmittedEventRecord{}, "id = ?", id).Error
	})
}

// adjustContactTotals rewrites the cumulative totals on a contact row.
// SQLite holds a single write lock per transaction, so the read-modify-write
// cannot interleave with another writer.
func adjustContactTotals(tx *gorm.DB, contactID string, uplink, downlink float64) error {
	var contact ContactEventRecord
	if err := tx.First(&contact, "id = ?", contactID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("contact %s: %w", contactID, ErrNotFound)
		}
		return err
	}
	contact.TotalUplinkSize += uplink
	contact.TotalDownlinkSize += downlink
	return tx.Save(&contact).Error
}

// SaveRequest upserts a schedule request row.
func (s *Store) SaveRequest(ctx context.Context, r *model.ScheduleRequest) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(requestRecord(r)).Error
}

// UpdateRequestStatus flips a request's status and message.
func (s *Store) UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus, message string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&ScheduleRequestRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         string(status),
			"status_message": message,
			"updated_at":     at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	return nil
}

// AppendCheckpoint persists a checkpoint row. Checkpoints are never updated
// in place.
func (s *Store) AppendCheckpoint(ctx context.Context, cp *model.StateCheckpoint) error {
	return s.db.WithContext(ctx).Create(checkpointRecord(cp)).Error
}

// Checkpoints returns the persisted chain for a schedule/asset pair in time
// order.
func (s *Store) Checkpoints(ctx context.Context, scheduleID, assetID string) ([]*model.StateCheckpoint, error) {
	var recs []CheckpointRecord
	err := s.db.WithContext(ctx).
		Where("schedule_id = ? AND asset_id = ?", scheduleID, assetID).
		Order("time ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.StateCheckpoint, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].checkpoint())
	}
	return out, nil
}

// SaveBlock upserts a processing block row.
func (s *Store) SaveBlock(ctx context.Context, b *model.ProcessingBlock) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(blockRecord(b)).Error
}

// Blocks returns all persisted processing blocks for an asset/key pair.
func (s *Store) Blocks(ctx context.Context, assetID, key string) ([]*model.ProcessingBlock, error) {
	var recs []ProcessingBlockRecord
	err := s.db.WithContext(ctx).
		Where("asset_id = ? AND secondary_key = ?", assetID, key).
		Order("range_start ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.ProcessingBlock, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].block())
	}
	return out, nil
}

// SaveLock upserts a schedule lock row.
func (s *Store) SaveLock(ctx context.Context, l *model.ScheduleLock) error {
	rec := &ScheduleLockRecord{
		ID:              l.ID,
		ScheduleID:      l.ScheduleID,
		RangeStart:      l.Range.Start,
		RangeEnd:        l.Range.End,
		Priority:        l.Priority,
		AcquiredAt:      l.AcquiredAt,
		LastReleaseTime: l.LastReleaseTime,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
}

// DeleteLock removes a schedule lock row.
func (s *Store) DeleteLock(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&ScheduleLockRecord{}, "id = ?", id).Error
}

// Hydrate replays the persisted ledger into the catalog. Contact totals are
// zeroed before replay; re-adding the transmitted events reconstructs them,
// so the derived columns can never drift from the event set.
func (s *Store) Hydrate(ctx context.Context, cat *catalog.Catalog) error {
	var assets []AssetRecord
	if err := s.db.WithContext(ctx).Find(&assets).Error; err != nil {
		return fmt.Errorf("load assets: %w", err)
	}
	for i := range assets {
		if err := cat.RegisterAsset(assets[i].asset()); err != nil {
			return fmt.Errorf("hydrate asset %s: %w", assets[i].ID, err)
		}
	}

	var schedules []ScheduleRecord
	if err := s.db.WithContext(ctx).Find(&schedules).Error; err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	for i := range schedules {
		if err := cat.AddSchedule(schedules[i].schedule()); err != nil {
			return fmt.Errorf("hydrate schedule %s: %w", schedules[i].ID, err)
		}
	}

	var contacts []ContactEventRecord
	if err := s.db.WithContext(ctx).Order("start_time ASC").Find(&contacts).Error; err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}
	for i := range contacts {
		c := contacts[i].contact()
		c.TotalUplinkSize = 0
		c.TotalDownlinkSize = 0
		if err := cat.AddContactEvent(c); err != nil {
			return fmt.Errorf("hydrate contact %s: %w", c.ID, err)
		}
	}

	var eclipses []EclipseRecord
	if err := s.db.WithContext(ctx).Order("start_time ASC").Find(&eclipses).Error; err != nil {
		return fmt.Errorf("load eclipses: %w", err)
	}
	for i := range eclipses {
		e := &model.SatelliteEclipse{EventBase: eclipses[i].base(eclipses[i].ID)}
		if err := cat.AddEclipse(e); err != nil {
			return fmt.Errorf("hydrate eclipse %s: %w", e.ID, err)
		}
	}

	var opportunities []CaptureOpportunityRecord
	if err := s.db.WithContext(ctx).Order("start_time ASC").Find(&opportunities).Error; err != nil {
		return fmt.Errorf("load capture opportunities: %w", err)
	}
	for i := range opportunities {
		rec := &opportunities[i]
		o := &model.CaptureOpportunity{
			EventBase: rec.base(rec.ID),
			Latitude:  rec.Latitude,
			Longitude: rec.Longitude,
		}
		if err := cat.AddCaptureOpportunity(o); err != nil {
			return fmt.Errorf("hydrate capture opportunity %s: %w", o.ID, err)
		}
	}

	var outages []OutageRecord
	if err := s.db.WithContext(ctx).Order("start_time ASC").Find(&outages).Error; err != nil {
		return fmt.Errorf("load outages: %w", err)
	}
	for i := range outages {
		o := &model.ScheduledOutage{EventBase: outages[i].base(outages[i].ID), Reason: outages[i].Reason}
		if err := cat.AddOutage(o); err != nil {
			return fmt.Errorf("hydrate outage %s: %w", o.ID, err)
		}
	}

	var transmitted []TransmittedEventRecord
	if err := s.db.WithContext(ctx).Order("start_time ASC").Find(&transmitted).Error; err != nil {
		return fmt.Errorf("load transmitted events: %w", err)
	}
	for i := range transmitted {
		t := transmitted[i].transmitted()
		if err := cat.AddTransmittedEvent(t); err != nil {
			return fmt.Errorf("hydrate transmitted event %s: %w", t.ID, err)
		}
	}

	var requests []ScheduleRequestRecord
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&requests).Error; err != nil {
		return fmt.Errorf("load requests: %w", err)
	}
	for i := range requests {
		r := requests[i].request()
		if err := cat.AddRequest(r); err != nil {
			return fmt.Errorf("hydrate request %s: %w", r.ID, err)
		}
	}

	s.log.Info(ctx, "catalog hydrated",
		logging.Int("assets", len(assets)),
		logging.Int("schedules", len(schedules)),
		logging.Int("contacts", len(contacts)),
		logging.Int("transmitted", len(transmitted)),
		logging.Int("requests", len(requests)),
	)
	return nil
}
