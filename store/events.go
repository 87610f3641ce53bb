package store

import (
	"context"
	"fmt"
	"time"

	"passenger-flow-api/models"
)

// EventFilter selects passenger events. Zero-valued fields do not filter.
// From and To are inclusive.
type EventFilter struct {
	RouteID string
	StopID  string
	BusID   int64
	From    time.Time
	To      time.Time
	// Hour restricts to events whose hour-of-day, read in Location, equals *Hour.
	Hour     *int
	Location *time.Location
}

// Match applies the filter in memory with the same semantics as FindEvents.
func (f EventFilter) Match(e models.PassengerCount) bool {
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.RouteID != "" && e.RouteID != f.RouteID {
		return false
	}
	if f.StopID != "" && e.StopID != f.StopID {
		return false
	}
	if f.BusID != 0 && e.BusID != f.BusID {
		return false
	}
	if f.Hour != nil && e.Timestamp.In(f.location()).Hour() != *f.Hour {
		return false
	}
	return true
}

func (f EventFilter) location() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

// hourCondition renders the hour filter for SQL. ok is false when there is no
// hour filter or the zone has no name Postgres would know (time.Local); in the
// latter case callers rely on Match.
func (f EventFilter) hourCondition() (query string, args []any, ok bool) {
	if f.Hour == nil {
		return "", nil, false
	}
	loc := f.location()
	if loc == time.Local {
		return "", nil, false
	}
	return "EXTRACT(HOUR FROM pc.ts AT TIME ZONE ?) = ?", []any{loc.String(), *f.Hour}, true
}

const eventColumns = "pc.id, pc.bus_id, pc.stop_id, COALESCE(b.route_id, '') AS route_id, pc.entered, pc.exited, pc.ts"

// FindEvents loads events matching f, oldest first. Route, stop, bus and hour
// filters run in SQL so only the qualifying rows leave the database.
func (s *Store) FindEvents(ctx context.Context, f EventFilter) ([]models.PassengerCount, error) {
	q := s.db.WithContext(ctx).
		Table("passenger_counts AS pc").
		Select(eventColumns).
		Joins("LEFT JOIN buses b ON b.id = pc.bus_id")

	if !f.From.IsZero() {
		q = q.Where("pc.ts >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("pc.ts <= ?", f.To)
	}
	if f.RouteID != "" {
		q = q.Where("b.route_id = ?", f.RouteID)
	}
	if f.StopID != "" {
		q = q.Where("pc.stop_id = ?", f.StopID)
	}
	if f.BusID != 0 {
		q = q.Where("pc.bus_id = ?", f.BusID)
	}
	if cond, args, ok := f.hourCondition(); ok {
		q = q.Where(cond, args...)
	}

	var events []models.PassengerCount
	if err := q.Order("pc.ts").Scan(&events).Error; err != nil {
		return nil, fmt.Errorf("query passenger events: %w", err)
	}
	return events, nil
}

// PassengerQuery is a cursor page over passenger counts, newest first.
type PassengerQuery struct {
	Limit   int
	Before  *time.Time
	BusID   int64
	StopID  string
	RouteID string
}

func (s *Store) ListPassengerCounts(ctx context.Context, pq PassengerQuery) ([]models.PassengerCount, error) {
	q := s.db.WithContext(ctx).
		Table("passenger_counts AS pc").
		Select(eventColumns).
		Joins("LEFT JOIN buses b ON b.id = pc.bus_id").
		Order("pc.ts DESC").
		Limit(pq.Limit)

	if pq.Before != nil {
		q = q.Where("pc.ts < ?", *pq.Before)
	}
	if pq.BusID != 0 {
		q = q.Where("pc.bus_id = ?", pq.BusID)
	}
	if pq.StopID != "" {
		q = q.Where("pc.stop_id = ?", pq.StopID)
	}
	if pq.RouteID != "" {
		q = q.Where("b.route_id = ?", pq.RouteID)
	}

	var rows []models.PassengerCount
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list passenger counts: %w", err)
	}
	return rows, nil
}

func (s *Store) GetPassengerCount(ctx context.Context, id int64) (*models.PassengerCount, error) {
	var rows []models.PassengerCount
	err := s.db.WithContext(ctx).
		Table("passenger_counts AS pc").
		Select(eventColumns).
		Joins("LEFT JOIN buses b ON b.id = pc.bus_id").
		Where("pc.id = ?", id).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get passenger count %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (s *Store) CreatePassengerCount(ctx context.Context, pc *models.PassengerCount) error {
	if err := s.db.WithContext(ctx).Create(pc).Error; err != nil {
		return fmt.Errorf("create passenger count: %w", translate(err))
	}
	return nil
}

// UpdatePassengerCount rewrites every column of the count with pc.ID.
func (s *Store) UpdatePassengerCount(ctx context.Context, pc *models.PassengerCount) error {
	res := s.db.WithContext(ctx).
		Model(&models.PassengerCount{}).
		Where("id = ?", pc.ID).
		Updates(map[string]any{
			"bus_id":  pc.BusID,
			"stop_id": pc.StopID,
			"entered": pc.Entered,
			"exited":  pc.Exited,
			"ts":      pc.Timestamp,
		})
	if res.Error != nil {
		return fmt.Errorf("update passenger count %d: %w", pc.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeletePassengerCount(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&models.PassengerCount{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete passenger count %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// StopStatistics totals a stop's counts between from and to, inclusive. Zero
// bounds are open.
func (s *Store) StopStatistics(ctx context.Context, stopID string, from, to time.Time) (*models.StopStatistics, error) {
	stats := models.StopStatistics{StopID: stopID}
	q := s.db.WithContext(ctx).
		Model(&models.PassengerCount{}).
		Select("COALESCE(SUM(entered), 0) AS total_entered, COALESCE(SUM(exited), 0) AS total_exited, COUNT(*) AS samples").
		Where("stop_id = ?", stopID)
	if !from.IsZero() {
		q = q.Where("ts >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("ts <= ?", to)
	}
	err := q.Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("stop statistics %s: %w", stopID, err)
	}
	if stats.Samples == 0 {
		return nil, ErrNotFound
	}
	stats.NetPassengers = stats.TotalEntered - stats.TotalExited
	return &stats, nil
}
