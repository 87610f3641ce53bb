package models

import "time"

// RoutePrediction is computed on demand and never persisted.
type RoutePrediction struct {
	RouteID       string    `json:"route_id"`
	RouteName     string    `json:"route_name,omitempty"`
	StopID        string    `json:"stop_id,omitempty"`
	DepartureTime time.Time `json:"departure_time"`
	PredictedLoad int       `json:"predicted_load"`
}
