package models

import "time"

// PassengerCount is one sensor or manual reading of a bus visit to a stop.
// RouteID is not a column; it is filled from the bus when events are loaded.
type PassengerCount struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	BusID     int64     `gorm:"column:bus_id" json:"bus_id"`
	StopID    string    `gorm:"column:stop_id" json:"stop_id"`
	RouteID   string    `gorm:"->;column:route_id;-:migration" json:"route_id,omitempty"`
	Entered   int       `gorm:"column:entered" json:"entered"`
	Exited    int       `gorm:"column:exited" json:"exited"`
	Timestamp time.Time `gorm:"column:ts" json:"ts"`
}

func (PassengerCount) TableName() string { return "passenger_counts" }

// NetDelta is the change in onboard occupancy attributable to this reading.
func (p PassengerCount) NetDelta() int { return p.Entered - p.Exited }

type StopStatistics struct {
	StopID        string `json:"stop_id"`
	TotalEntered  int64  `json:"total_entered"`
	TotalExited   int64  `json:"total_exited"`
	NetPassengers int64  `json:"net_passengers"`
	Samples       int64  `json:"samples"`
}
