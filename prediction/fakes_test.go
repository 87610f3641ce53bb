package prediction

import (
	"context"
	"sync"
	"time"

	"passenger-flow-api/models"
	"passenger-flow-api/store"
)

// memEvents returns every stored event matching the filter and counts calls.
type memEvents struct {
	mu     sync.Mutex
	events []models.PassengerCount
	calls  int
	err    error
	// gate, when set, blocks FindEvents until it is closed.
	gate chan struct{}
}

func (m *memEvents) FindEvents(ctx context.Context, f store.EventFilter) ([]models.PassengerCount, error) {
	m.mu.Lock()
	m.calls++
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.PassengerCount
	for _, e := range m.events {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEvents) add(e models.PassengerCount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, e)
}

func (m *memEvents) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type memCatalog struct {
	routes map[string]*models.Route
	err    error
}

func (c *memCatalog) FindRoute(_ context.Context, id string) (*models.Route, error) {
	if c.err != nil {
		return nil, c.err
	}
	r, ok := c.routes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

func newCatalog(ids ...string) *memCatalog {
	c := &memCatalog{routes: make(map[string]*models.Route)}
	for _, id := range ids {
		c.routes[id] = &models.Route{ID: id, Name: "Route " + id}
	}
	return c
}

// fixedNow is a Tuesday noon; every test builds history relative to it.
var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func event(routeID string, busID int64, stopID string, entered, exited int, ts time.Time) models.PassengerCount {
	return models.PassengerCount{
		BusID:     busID,
		StopID:    stopID,
		RouteID:   routeID,
		Entered:   entered,
		Exited:    exited,
		Timestamp: ts,
	}
}

func newTestService(events *memEvents, catalog *memCatalog) *Service {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	return NewService(events, catalog, NewCache(), opts)
}
