package models

import "time"

type Route struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	Name      string    `gorm:"column:name" json:"name"`
	Stops     []Stop    `gorm:"many2many:route_stops;joinForeignKey:route_id;joinReferences:stop_id" json:"stops,omitempty"`
	Buses     []Bus     `gorm:"foreignKey:RouteID" json:"buses,omitempty"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Route) TableName() string { return "routes" }

type Stop struct {
	ID   string   `gorm:"column:id;primaryKey" json:"id"`
	Name string   `gorm:"column:name" json:"name"`
	Lat  *float64 `gorm:"column:lat" json:"lat"`
	Lon  *float64 `gorm:"column:lon" json:"lon"`
}

func (Stop) TableName() string { return "stops" }

// Bus belongs to at most one route; a nil RouteID means the bus is unassigned.
type Bus struct {
	ID      int64   `gorm:"column:id;primaryKey" json:"id"`
	Model   string  `gorm:"column:model" json:"model"`
	RouteID *string `gorm:"column:route_id" json:"route_id"`
}

func (Bus) TableName() string { return "buses" }
