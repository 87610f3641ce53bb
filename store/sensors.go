package store

import (
	"context"
	"fmt"
	"time"

	"passenger-flow-api/models"
)

// SensorQuery is a cursor page over sensor readings, newest first.
type SensorQuery struct {
	Limit  int
	Before *time.Time
	BusID  int64
	Type   models.SensorType
}

func (s *Store) ListSensorData(ctx context.Context, sq SensorQuery) ([]models.SensorData, error) {
	q := s.db.WithContext(ctx).Order("ts DESC").Limit(sq.Limit)
	if sq.Before != nil {
		q = q.Where("ts < ?", *sq.Before)
	}
	if sq.BusID != 0 {
		q = q.Where("bus_id = ?", sq.BusID)
	}
	if sq.Type != "" {
		q = q.Where("sensor_type = ?", sq.Type)
	}

	var rows []models.SensorData
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sensor data: %w", err)
	}
	return rows, nil
}

func (s *Store) GetSensorData(ctx context.Context, id int64) (*models.SensorData, error) {
	var d models.SensorData
	if err := s.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (s *Store) CreateSensorData(ctx context.Context, d *models.SensorData) error {
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("create sensor data: %w", translate(err))
	}
	return nil
}

func (s *Store) UpdateSensorData(ctx context.Context, d *models.SensorData) error {
	res := s.db.WithContext(ctx).
		Model(&models.SensorData{}).
		Where("id = ?", d.ID).
		Updates(map[string]any{
			"bus_id":      d.BusID,
			"sensor_type": d.SensorType,
			"value":       d.Value,
			"ts":          d.Timestamp,
			"anomaly":     d.Anomaly,
		})
	if res.Error != nil {
		return fmt.Errorf("update sensor data %d: %w", d.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSensorData(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&models.SensorData{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete sensor data %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
