package prediction

import "math"

// DefaultBusCapacity is the fleet-wide capacity used when none is configured.
const DefaultBusCapacity = 50.0

// Normalizer turns an average net passenger delta into a 0..100 load percentage.
// All buses are assumed to share one capacity.
type Normalizer struct {
	Capacity float64
}

func (n Normalizer) Normalize(avgNetDelta float64) int {
	if math.IsNaN(avgNetDelta) || n.Capacity <= 0 {
		return 0
	}
	pct := math.Round(avgNetDelta / n.Capacity * 100)
	return int(math.Max(0, math.Min(100, pct)))
}
