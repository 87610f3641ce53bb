// Package prediction estimates route passenger load from historical counts.
//
// A single-point prediction averages the net passenger delta of a route's
// events over the trailing history window, restricted to the target's hour of
// day, and scales it against bus capacity. Results are memoized in a Cache
// that is fully cleared on a fixed interval.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"passenger-flow-api/config"
	"passenger-flow-api/models"
	"passenger-flow-api/store"

	"github.com/rs/zerolog/log"
)

var ErrRouteNotFound = errors.New("route not found")

type Catalog interface {
	FindRoute(ctx context.Context, id string) (*models.Route, error)
}

type Options struct {
	BusCapacity  float64
	HistoryDays  int
	WorkdayStart int
	WorkdayEnd   int
	Location     *time.Location
	FilterByStop bool
	Now          func() time.Time
}

func DefaultOptions() Options {
	return Options{
		BusCapacity:  DefaultBusCapacity,
		HistoryDays:  30,
		WorkdayStart: 6,
		WorkdayEnd:   22,
		Location:     time.UTC,
		FilterByStop: true,
	}
}

func OptionsFromConfig(cfg config.PredictionConfig) Options {
	return Options{
		BusCapacity:  cfg.BusCapacity,
		HistoryDays:  cfg.HistoryDays,
		WorkdayStart: cfg.WorkdayStart,
		WorkdayEnd:   cfg.WorkdayEnd,
		Location:     cfg.Location(),
		FilterByStop: cfg.FilterByStop,
	}
}

type Service struct {
	events     EventStore
	catalog    Catalog
	cache      *Cache
	aggregator *Aggregator
	normalizer Normalizer
	opts       Options
}

func NewService(events EventStore, catalog Catalog, cache *Cache, opts Options) *Service {
	if opts.BusCapacity <= 0 {
		opts.BusCapacity = DefaultBusCapacity
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		events:     events,
		catalog:    catalog,
		cache:      cache,
		aggregator: NewAggregator(events, opts.HistoryDays, opts.FilterByStop),
		normalizer: Normalizer{Capacity: opts.BusCapacity},
		opts:       opts,
	}
}

func (s *Service) Cache() *Cache { return s.cache }

func (s *Service) Location() *time.Location { return s.opts.Location }

func (s *Service) now() time.Time { return s.opts.Now().In(s.opts.Location) }

func (s *Service) resolveRoute(ctx context.Context, routeID string) (*models.Route, error) {
	route, err := s.catalog.FindRoute(ctx, routeID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && route == nil) {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve route %s: %w", routeID, err)
	}
	return route, nil
}

// SinglePoint predicts the load of routeID at the hour of at. An empty stopID
// means the whole route. Unknown routes yield ErrRouteNotFound.
func (s *Service) SinglePoint(ctx context.Context, routeID string, at time.Time, stopID string) (models.RoutePrediction, error) {
	at = at.In(s.opts.Location)
	key := PointKey{RouteID: routeID, Hour: at.Hour(), StopID: stopID}
	return s.cache.Point(ctx, key, func(ctx context.Context) (models.RoutePrediction, error) {
		return s.computePoint(ctx, routeID, at, stopID)
	})
}

func (s *Service) computePoint(ctx context.Context, routeID string, at time.Time, stopID string) (models.RoutePrediction, error) {
	route, err := s.resolveRoute(ctx, routeID)
	if err != nil {
		return models.RoutePrediction{}, err
	}

	start := time.Now()
	avg, err := s.aggregator.HourlyLoad(ctx, route.ID, stopID, at)
	computeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		predictionsFailed.Inc()
		log.Error().Err(err).Str("route", route.ID).Int("hour", at.Hour()).Msg("prediction aggregation failed")
		return models.RoutePrediction{}, err
	}
	predictionsComputed.Inc()

	return models.RoutePrediction{
		RouteID:       route.ID,
		RouteName:     route.Name,
		StopID:        stopID,
		DepartureTime: at,
		PredictedLoad: s.normalizer.Normalize(avg),
	}, nil
}

// DailyCurve predicts every working hour of today, ascending. An unknown
// route yields an empty curve and no error.
func (s *Service) DailyCurve(ctx context.Context, routeID string) ([]models.RoutePrediction, error) {
	today := s.now()
	key := DailyKey{RouteID: routeID, Date: today.Format(time.DateOnly)}

	curve, err := s.cache.Daily(ctx, key, func(ctx context.Context) ([]models.RoutePrediction, error) {
		if _, err := s.resolveRoute(ctx, routeID); err != nil {
			return nil, err
		}

		out := make([]models.RoutePrediction, 0, s.opts.WorkdayEnd-s.opts.WorkdayStart+1)
		for hour := s.opts.WorkdayStart; hour <= s.opts.WorkdayEnd; hour++ {
			at := time.Date(today.Year(), today.Month(), today.Day(), hour, 0, 0, 0, s.opts.Location)
			p, err := s.SinglePoint(ctx, routeID, at, "")
			if err != nil {
				return nil, err
			}
			// The point entry may come from another date with the same hour.
			p.DepartureTime = at
			out = append(out, p)
		}
		return out, nil
	})
	if errors.Is(err, ErrRouteNotFound) {
		return []models.RoutePrediction{}, nil
	}
	return curve, err
}

// CurrentLoad sums today's net passenger delta for busID, never below zero.
// It always reads the store.
func (s *Service) CurrentLoad(ctx context.Context, busID int64) (int, error) {
	now := s.now()
	f := store.EventFilter{
		BusID: busID,
		From:  time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.opts.Location),
		To:    now,
	}

	events, err := s.events.FindEvents(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("load today's events for bus %d: %w", busID, err)
	}

	load := 0
	for _, e := range events {
		if f.Match(e) {
			load += e.NetDelta()
		}
	}
	return max(0, load), nil
}

// Flush clears all cached predictions.
func (s *Service) Flush() (points, daily int) {
	return s.cache.Clear()
}
