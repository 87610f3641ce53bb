package prediction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"passenger-flow-api/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// PointKey partitions single-point predictions. Hour is the hour of day only,
// so the same hour on different dates shares an entry until the next clear.
type PointKey struct {
	RouteID string
	Hour    int
	StopID  string
}

func (k PointKey) String() string {
	return fmt.Sprintf("%q/%d/%q", k.RouteID, k.Hour, k.StopID)
}

// DailyKey partitions daily curves by route and calendar date (YYYY-MM-DD).
type DailyKey struct {
	RouteID string
	Date    string
}

func (k DailyKey) String() string {
	return fmt.Sprintf("%q/%s", k.RouteID, k.Date)
}

// DefaultComputeTimeout bounds one shared computation.
const DefaultComputeTimeout = 30 * time.Second

// Cache memoizes predictions until the next full Clear. It never expires
// single entries.
type Cache struct {
	mu     sync.RWMutex
	points map[PointKey]models.RoutePrediction
	daily  map[DailyKey][]models.RoutePrediction
	// gen increments on every Clear. A computation stores its result only if
	// no Clear happened since it started.
	gen     uint64
	flight  singleflight.Group
	timeout time.Duration
}

func NewCache() *Cache {
	return NewCacheWithTimeout(DefaultComputeTimeout)
}

// NewCacheWithTimeout sets how long a shared computation may run. A
// non-positive timeout falls back to DefaultComputeTimeout.
func NewCacheWithTimeout(timeout time.Duration) *Cache {
	if timeout <= 0 {
		timeout = DefaultComputeTimeout
	}
	return &Cache{
		points:  make(map[PointKey]models.RoutePrediction),
		daily:   make(map[DailyKey][]models.RoutePrediction),
		timeout: timeout,
	}
}

// Point returns the cached prediction for key or computes and stores it.
// Concurrent misses on one key share a single computation. The computation
// does not inherit ctx cancellation; a caller whose ctx ends stops waiting
// and gets ctx.Err() while the others keep waiting for the result.
func (c *Cache) Point(ctx context.Context, key PointKey, compute func(context.Context) (models.RoutePrediction, error)) (models.RoutePrediction, error) {
	return getOrCompute(ctx, c, c.points, "point", key, compute)
}

// Daily is Point for daily curves. The returned slice is a copy.
func (c *Cache) Daily(ctx context.Context, key DailyKey, compute func(context.Context) ([]models.RoutePrediction, error)) ([]models.RoutePrediction, error) {
	curve, err := getOrCompute(ctx, c, c.daily, "daily", key, compute)
	if err != nil {
		return nil, err
	}
	out := make([]models.RoutePrediction, len(curve))
	copy(out, curve)
	return out, nil
}

type cacheKey interface {
	comparable
	String() string
}

func getOrCompute[K cacheKey, V any](ctx context.Context, c *Cache, entries map[K]V, kind string, key K, compute func(context.Context) (V, error)) (V, error) {
	var zero V
	c.mu.RLock()
	v, ok := entries[key]
	gen := c.gen
	c.mu.RUnlock()
	if ok {
		cacheHits.WithLabelValues(kind).Inc()
		return v, nil
	}
	cacheMisses.WithLabelValues(kind).Inc()

	flightKey := fmt.Sprintf("%s|%d|%s", kind, gen, key)
	// The computation outlives any single caller's ctx; only its values carry over.
	detached := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(flightKey, func() (any, error) {
		// A flight that finished between our miss and Do may have stored it.
		c.mu.RLock()
		v, ok := entries[key]
		c.mu.RUnlock()
		if ok {
			return v, nil
		}

		cctx, cancel := context.WithTimeout(detached, c.timeout)
		defer cancel()
		v, err := compute(cctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.gen == gen {
			entries[key] = v
		}
		c.mu.Unlock()
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Clear drops every point and daily entry and returns how many were dropped.
func (c *Cache) Clear() (points, daily int) {
	c.mu.Lock()
	points, daily = len(c.points), len(c.daily)
	clear(c.points)
	clear(c.daily)
	c.gen++
	c.mu.Unlock()

	cacheSweeps.Inc()
	cacheEntriesEvicted.Add(float64(points + daily))
	return points, daily
}

func (c *Cache) Len() (points, daily int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.points), len(c.daily)
}

// Run clears the cache every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("prediction cache eviction running")
	for {
		select {
		case <-ticker.C:
			points, daily := c.Clear()
			log.Debug().Int("points", points).Int("daily", daily).Msg("prediction cache cleared")
		case <-ctx.Done():
			log.Info().Msg("prediction cache eviction stopped")
			return
		}
	}
}
