package store

import (
	"context"

	"github.com/signalsfoundry/mission-ledger/model"
)

// KindCount is one row of a transmitted-event breakdown.
type KindCount struct {
	AssetID string
	Kind    string
	Count   int
}

// TransmittedCounts groups transmitted events by satellite and kind.
func (s *Store) TransmittedCounts(ctx context.Context) ([]KindCount, error) {
	var rows []KindCount
	err := s.db.WithContext(ctx).Model(&TransmittedEventRecord{}).
		Select("asset_id, kind, COUNT(*) AS count").
		Group("asset_id, kind").
		Order("asset_id, kind").
		Scan(&rows).Error
	return rows, err
}

// StatusCount is one row of a request-status breakdown.
type StatusCount struct {
	OrderType     string
	Status        string
	StatusMessage string
	Count         int
}

// RequestStatusCounts groups schedule requests by order type, status, and
// status message.
func (s *Store) RequestStatusCounts(ctx context.Context, orderType model.OrderType) ([]StatusCount, error) {
	q := s.db.WithContext(ctx).Model(&ScheduleRequestRecord{}).
		Select("order_type, status, status_message, COUNT(*) AS count").
		Group("order_type, status, status_message").
		Order("order_type, status, status_message")
	if orderType != "" {
		q = q.Where("order_type = ?", string(orderType))
	}
	var rows []StatusCount
	err := q.Scan(&rows).Error
	return rows, err
}

// ActiveContactCounts counts contacts with data committed to them, grouped
// by ground station.
func (s *Store) ActiveContactCounts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		GroundStationID string
		Count           int
	}
	err := s.db.WithContext(ctx).Model(&ContactEventRecord{}).
		Select("ground_station_id, COUNT(*) AS count").
		Where("total_uplink_size > 0 OR total_downlink_size > 0").
		Group("ground_station_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.GroundStationID] = r.Count
	}
	return out, nil
}
