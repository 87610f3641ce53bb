package store

import (
	"math"
	"sort"

	"passenger-flow-api/models"
)

const (
	earthRadiusKm = 6371.0
	// DefaultNearbyRadiusKm is the search radius for nearby stops.
	DefaultNearbyRadiusKm = 2.0
)

// haversineKm is the great-circle distance between two points in kilometres.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// WithinRadius returns the stops with coordinates closer than radiusKm to
// (lat, lon), nearest first.
func WithinRadius(stops []models.Stop, lat, lon, radiusKm float64) []models.Stop {
	type hit struct {
		stop models.Stop
		km   float64
	}
	var hits []hit
	for _, s := range stops {
		if s.Lat == nil || s.Lon == nil {
			continue
		}
		if km := haversineKm(lat, lon, *s.Lat, *s.Lon); km < radiusKm {
			hits = append(hits, hit{s, km})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].km < hits[j].km })

	out := make([]models.Stop, len(hits))
	for i, h := range hits {
		out[i] = h.stop
	}
	return out
}
