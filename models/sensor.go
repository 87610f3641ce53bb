package models

import "time"

type SensorType string

const (
	SensorEngineTemp   SensorType = "engine_temp"
	SensorTirePressure SensorType = "tire_pressure"
	SensorFuelLevel    SensorType = "fuel_level"
)

func (t SensorType) Known() bool {
	switch t {
	case SensorEngineTemp, SensorTirePressure, SensorFuelLevel:
		return true
	}
	return false
}

// Anomalous reports whether value is outside the normal operating range:
// engine 60..100 °C, tires 1.8..3.5 bar, fuel at least 5%.
func (t SensorType) Anomalous(value float64) bool {
	switch t {
	case SensorEngineTemp:
		return value < 60 || value > 100
	case SensorTirePressure:
		return value < 1.8 || value > 3.5
	case SensorFuelLevel:
		return value < 5
	default:
		return false
	}
}

// SensorData is one telemetry reading from a bus.
type SensorData struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	BusID      int64      `gorm:"column:bus_id;not null;index" json:"bus_id"`
	SensorType SensorType `gorm:"column:sensor_type;not null" json:"sensor_type"`
	Value      float64    `gorm:"column:value;not null" json:"value"`
	Timestamp  time.Time  `gorm:"column:ts;not null;index" json:"ts"`
	Anomaly    bool       `gorm:"column:anomaly;not null;default:false" json:"anomaly"`
}

func (SensorData) TableName() string { return "sensor_data" }
