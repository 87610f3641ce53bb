package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"passenger-flow-api/models"
	"passenger-flow-api/store"
)

// memStore backs the passenger, catalog and user handlers in tests.
type memStore struct {
	mu       sync.Mutex
	counts   map[int64]models.PassengerCount
	nextID   int64
	buses    map[int64]models.Bus
	stops    map[string]models.Stop
	routes   map[string]models.Route
	users    map[string]models.User
	sensors  map[int64]models.SensorData
	nextBus  int64
	err      error
	lastList store.PassengerQuery
}

func newMemStore() *memStore {
	route := "7A"
	return &memStore{
		counts: make(map[int64]models.PassengerCount),
		buses: map[int64]models.Bus{
			1: {ID: 1, Model: "MAZ-203", RouteID: &route},
			2: {ID: 2, Model: "LiAZ-5292"},
		},
		stops: map[string]models.Stop{
			"K": {ID: "K", Name: "Central Station"},
			"L": {ID: "L", Name: "Market Square"},
		},
		routes: map[string]models.Route{
			"7A": {ID: "7A", Name: "Airport Express"},
		},
		users:   make(map[string]models.User),
		sensors: make(map[int64]models.SensorData),
		nextBus: 2,
	}
}

func (m *memStore) ListPassengerCounts(_ context.Context, q store.PassengerQuery) ([]models.PassengerCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastList = q
	if m.err != nil {
		return nil, m.err
	}
	var out []models.PassengerCount
	for _, pc := range m.counts {
		if q.Before != nil && !pc.Timestamp.Before(*q.Before) {
			continue
		}
		if q.BusID != 0 && pc.BusID != q.BusID {
			continue
		}
		if q.StopID != "" && pc.StopID != q.StopID {
			continue
		}
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memStore) GetPassengerCount(_ context.Context, id int64) (*models.PassengerCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.counts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &pc, nil
}

func (m *memStore) CreatePassengerCount(_ context.Context, pc *models.PassengerCount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.nextID++
	pc.ID = m.nextID
	m.counts[pc.ID] = *pc
	return nil
}

func (m *memStore) DeletePassengerCount(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.counts[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.counts, id)
	return nil
}

func (m *memStore) UpdatePassengerCount(_ context.Context, pc *models.PassengerCount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.counts[pc.ID]; !ok {
		return store.ErrNotFound
	}
	m.counts[pc.ID] = *pc
	return nil
}

func (m *memStore) FindBus(_ context.Context, id int64) (*models.Bus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (m *memStore) FindStop(_ context.Context, id string) (*models.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stops[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) ListRoutes(context.Context) ([]models.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Route
	for _, r := range m.routes {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) FindRoute(_ context.Context, id string) (*models.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) ListStops(context.Context) ([]models.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Stop
	for _, s := range m.stops {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListBuses(context.Context) ([]models.Bus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Bus
	for _, b := range m.buses {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) StopStatistics(_ context.Context, stopID string, from, to time.Time) (*models.StopStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := models.StopStatistics{StopID: stopID}
	f := store.EventFilter{StopID: stopID, From: from, To: to}
	for _, pc := range m.counts {
		if f.Match(pc) {
			stats.TotalEntered += int64(pc.Entered)
			stats.TotalExited += int64(pc.Exited)
			stats.Samples++
		}
	}
	if stats.Samples == 0 {
		return nil, store.ErrNotFound
	}
	stats.NetPassengers = stats.TotalEntered - stats.TotalExited
	return &stats, nil
}

func (m *memStore) CreateRoute(_ context.Context, r *models.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.routes[r.ID]; ok {
		return store.ErrConflict
	}
	m.routes[r.ID] = *r
	return nil
}

func (m *memStore) ListBusesByRoute(_ context.Context, routeID string) ([]models.Bus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[routeID]; !ok {
		return nil, store.ErrNotFound
	}
	var out []models.Bus
	for _, b := range m.buses {
		if b.RouteID != nil && *b.RouteID == routeID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CreateBus(_ context.Context, b *models.Bus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.nextBus++
	b.ID = m.nextBus
	m.buses[b.ID] = *b
	return nil
}

func (m *memStore) CreateStop(_ context.Context, s *models.Stop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.stops[s.ID]; ok {
		return store.ErrConflict
	}
	m.stops[s.ID] = *s
	return nil
}

func (m *memStore) UpdateStop(_ context.Context, s *models.Stop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stops[s.ID]; !ok {
		return store.ErrNotFound
	}
	m.stops[s.ID] = *s
	return nil
}

func (m *memStore) DeleteStop(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stops[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.stops, id)
	return nil
}

func (m *memStore) NearbyStops(_ context.Context, lat, lon, radiusKm float64) ([]models.Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Stop
	for _, s := range m.stops {
		all = append(all, s)
	}
	return store.WithinRadius(all, lat, lon, radiusKm), nil
}

func (m *memStore) ListSensorData(_ context.Context, q store.SensorQuery) ([]models.SensorData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.SensorData
	for _, d := range m.sensors {
		if q.Before != nil && !d.Timestamp.Before(*q.Before) {
			continue
		}
		if q.BusID != 0 && d.BusID != q.BusID {
			continue
		}
		if q.Type != "" && d.SensorType != q.Type {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memStore) GetSensorData(_ context.Context, id int64) (*models.SensorData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.sensors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (m *memStore) CreateSensorData(_ context.Context, d *models.SensorData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	d.ID = int64(len(m.sensors) + 1)
	m.sensors[d.ID] = *d
	return nil
}

func (m *memStore) UpdateSensorData(_ context.Context, d *models.SensorData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sensors[d.ID]; !ok {
		return store.ErrNotFound
	}
	m.sensors[d.ID] = *d
	return nil
}

func (m *memStore) DeleteSensorData(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sensors[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.sensors, id)
	return nil
}

func (m *memStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.users[u.Username]; ok {
		return store.ErrConflict
	}
	u.ID = uint(len(m.users) + 1)
	u.CreatedAt = time.Now()
	m.users[u.Username] = *u
	return nil
}

func (m *memStore) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (m *memStore) seed(pcs ...models.PassengerCount) {
	for i := range pcs {
		m.CreatePassengerCount(context.Background(), &pcs[i])
	}
}
