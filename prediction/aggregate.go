package prediction

import (
	"context"
	"fmt"
	"time"

	"passenger-flow-api/models"
	"passenger-flow-api/store"

	"gonum.org/v1/gonum/stat"
)

// EventStore reads passenger events. Implementations should apply as much of
// the filter as they can; callers re-check every returned event.
type EventStore interface {
	FindEvents(ctx context.Context, f store.EventFilter) ([]models.PassengerCount, error)
}

// Aggregator reduces the trailing history of a route to an average net delta
// for one hour of the day.
type Aggregator struct {
	events       EventStore
	historyDays  int
	filterByStop bool
}

func NewAggregator(events EventStore, historyDays int, filterByStop bool) *Aggregator {
	if historyDays <= 0 {
		historyDays = 30
	}
	return &Aggregator{events: events, historyDays: historyDays, filterByStop: filterByStop}
}

// Filter builds the event filter for a prediction at target. Minutes and
// seconds of target only bound the window; bucketing is by hour.
func (a *Aggregator) Filter(routeID, stopID string, target time.Time) store.EventFilter {
	hour := target.Hour()
	f := store.EventFilter{
		RouteID:  routeID,
		From:     target.AddDate(0, 0, -a.historyDays),
		To:       target,
		Hour:     &hour,
		Location: target.Location(),
	}
	if a.filterByStop {
		f.StopID = stopID
	}
	return f
}

// HourlyLoad returns the mean of entered-exited over matching events, or 0
// when there are none. Store errors are returned, never defaulted.
func (a *Aggregator) HourlyLoad(ctx context.Context, routeID, stopID string, target time.Time) (float64, error) {
	f := a.Filter(routeID, stopID, target)

	events, err := a.events.FindEvents(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("load events for route %s: %w", routeID, err)
	}

	deltas := make([]float64, 0, len(events))
	for _, e := range events {
		if !f.Match(e) {
			continue
		}
		deltas = append(deltas, float64(e.NetDelta()))
	}
	if len(deltas) == 0 {
		return 0, nil
	}
	return stat.Mean(deltas, nil), nil
}
