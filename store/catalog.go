package store

import (
	"context"
	"fmt"

	"passenger-flow-api/models"

	"gorm.io/gorm"
)

func (s *Store) FindRoute(ctx context.Context, id string) (*models.Route, error) {
	var route models.Route
	err := s.db.WithContext(ctx).Preload("Buses").Preload("Stops").First(&route, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &route, nil
}

func (s *Store) ListRoutes(ctx context.Context) ([]models.Route, error) {
	var routes []models.Route
	if err := s.db.WithContext(ctx).Order("id").Find(&routes).Error; err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	return routes, nil
}

func (s *Store) FindStop(ctx context.Context, id string) (*models.Stop, error) {
	var stop models.Stop
	if err := s.db.WithContext(ctx).First(&stop, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &stop, nil
}

func (s *Store) ListStops(ctx context.Context) ([]models.Stop, error) {
	var stops []models.Stop
	if err := s.db.WithContext(ctx).Order("id").Find(&stops).Error; err != nil {
		return nil, fmt.Errorf("list stops: %w", err)
	}
	return stops, nil
}

func (s *Store) FindBus(ctx context.Context, id int64) (*models.Bus, error) {
	var bus models.Bus
	if err := s.db.WithContext(ctx).First(&bus, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &bus, nil
}

func (s *Store) ListBuses(ctx context.Context) ([]models.Bus, error) {
	var buses []models.Bus
	if err := s.db.WithContext(ctx).Order("id").Find(&buses).Error; err != nil {
		return nil, fmt.Errorf("list buses: %w", err)
	}
	return buses, nil
}

// CreateRoute inserts a route and links the given stops, which must exist.
func (s *Store) CreateRoute(ctx context.Context, route *models.Route) error {
	err := s.db.WithContext(ctx).
		Omit("Stops.*", "Buses").
		Create(route).Error
	if err != nil {
		return fmt.Errorf("create route %s: %w", route.ID, translate(err))
	}
	return nil
}

func (s *Store) CreateBus(ctx context.Context, bus *models.Bus) error {
	if err := s.db.WithContext(ctx).Create(bus).Error; err != nil {
		return fmt.Errorf("create bus: %w", translate(err))
	}
	return nil
}

// ListBusesByRoute returns the buses assigned to routeID, or ErrNotFound when
// the route does not exist.
func (s *Store) ListBusesByRoute(ctx context.Context, routeID string) ([]models.Bus, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Route{}).Where("id = ?", routeID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("find route %s: %w", routeID, err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	var buses []models.Bus
	if err := s.db.WithContext(ctx).Where("route_id = ?", routeID).Order("id").Find(&buses).Error; err != nil {
		return nil, fmt.Errorf("list buses of route %s: %w", routeID, err)
	}
	return buses, nil
}

func (s *Store) CreateStop(ctx context.Context, stop *models.Stop) error {
	if err := s.db.WithContext(ctx).Create(stop).Error; err != nil {
		return fmt.Errorf("create stop %s: %w", stop.ID, translate(err))
	}
	return nil
}

// UpdateStop overwrites name and coordinates of an existing stop.
func (s *Store) UpdateStop(ctx context.Context, stop *models.Stop) error {
	res := s.db.WithContext(ctx).
		Model(&models.Stop{}).
		Where("id = ?", stop.ID).
		Updates(map[string]any{"name": stop.Name, "lat": stop.Lat, "lon": stop.Lon})
	if res.Error != nil {
		return fmt.Errorf("update stop %s: %w", stop.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStop removes a stop and its route memberships. Recorded passenger
// counts keep their stop id.
func (s *Store) DeleteStop(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM route_stops WHERE stop_id = ?", id).Error; err != nil {
			return fmt.Errorf("unlink stop %s: %w", id, err)
		}
		res := tx.Delete(&models.Stop{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("delete stop %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// NearbyStops returns stops within radiusKm of (lat, lon), nearest first.
func (s *Store) NearbyStops(ctx context.Context, lat, lon, radiusKm float64) ([]models.Stop, error) {
	var stops []models.Stop
	err := s.db.WithContext(ctx).
		Where("lat IS NOT NULL AND lon IS NOT NULL").
		Find(&stops).Error
	if err != nil {
		return nil, fmt.Errorf("list located stops: %w", err)
	}
	return WithinRadius(stops, lat, lon, radiusKm), nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}
