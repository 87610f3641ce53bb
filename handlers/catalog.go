package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"passenger-flow-api/models"
	"passenger-flow-api/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const catalogTTL = 60 * time.Second

const (
	routesKey = "routes:all"
	stopsKey  = "stops:all"
	busesKey  = "buses:all"
)

func routeKey(id string) string { return "routes:" + id }

type CatalogStore interface {
	ListRoutes(ctx context.Context) ([]models.Route, error)
	FindRoute(ctx context.Context, id string) (*models.Route, error)
	CreateRoute(ctx context.Context, route *models.Route) error
	ListBusesByRoute(ctx context.Context, routeID string) ([]models.Bus, error)

	ListStops(ctx context.Context) ([]models.Stop, error)
	FindStop(ctx context.Context, id string) (*models.Stop, error)
	CreateStop(ctx context.Context, stop *models.Stop) error
	UpdateStop(ctx context.Context, stop *models.Stop) error
	DeleteStop(ctx context.Context, id string) error
	NearbyStops(ctx context.Context, lat, lon, radiusKm float64) ([]models.Stop, error)
	StopStatistics(ctx context.Context, stopID string, from, to time.Time) (*models.StopStatistics, error)

	ListBuses(ctx context.Context) ([]models.Bus, error)
	FindBus(ctx context.Context, id int64) (*models.Bus, error)
	CreateBus(ctx context.Context, bus *models.Bus) error
}

// CatalogCache is the read-through cache in front of catalog lists.
type CatalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type CatalogHandler struct {
	store CatalogStore
	cache CatalogCache
}

func NewCatalogHandler(s CatalogStore, cache CatalogCache) *CatalogHandler {
	return &CatalogHandler{store: s, cache: cache}
}

type CreateRouteRequest struct {
	ID      string   `json:"id" binding:"required,max=32"`
	Name    string   `json:"name" binding:"required,max=128"`
	StopIDs []string `json:"stop_ids"`
}

type CreateBusRequest struct {
	Model   string  `json:"model" binding:"required,max=64"`
	RouteID *string `json:"route_id"`
}

type StopRequest struct {
	ID   string   `json:"id"`
	Name string   `json:"name" binding:"required,max=128"`
	Lat  *float64 `json:"lat" binding:"omitempty,gte=-90,lte=90"`
	Lon  *float64 `json:"lon" binding:"omitempty,gte=-180,lte=180"`
}

// cachedList serves {"data": [...]} from redis when present, else from load.
func cachedList[T any](h *CatalogHandler, c *gin.Context, key string, load func(context.Context) ([]T, error)) {
	var cached struct {
		Data []T `json:"data"`
	}
	if hit, err := h.cache.Get(c.Request.Context(), key, &cached); err == nil && hit {
		c.JSON(http.StatusOK, cached)
		return
	}

	rows, err := load(c.Request.Context())
	if err != nil {
		respondError(c, err, "database query failed")
		return
	}
	if rows == nil {
		rows = []T{}
	}

	resp := gin.H{"data": rows}
	go h.cache.Set(context.Background(), key, resp, catalogTTL)

	c.JSON(http.StatusOK, resp)
}

// invalidate drops cached catalog reads after a write. A failure only leaves
// stale data until the TTL runs out.
func (h *CatalogHandler) invalidate(ctx context.Context, keys ...string) {
	if err := h.cache.Delete(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("catalog cache invalidation failed")
	}
}

func (h *CatalogHandler) GetRoutes(c *gin.Context) {
	cachedList(h, c, routesKey, h.store.ListRoutes)
}

func (h *CatalogHandler) GetStops(c *gin.Context) {
	cachedList(h, c, stopsKey, h.store.ListStops)
}

func (h *CatalogHandler) GetBuses(c *gin.Context) {
	cachedList(h, c, busesKey, h.store.ListBuses)
}

// GetRoute returns one route with its stops and buses.
func (h *CatalogHandler) GetRoute(c *gin.Context) {
	id := c.Param("id")
	key := routeKey(id)

	var cached models.Route
	if hit, err := h.cache.Get(c.Request.Context(), key, &cached); err == nil && hit {
		c.JSON(http.StatusOK, cached)
		return
	}

	route, err := h.store.FindRoute(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "database query failed")
		return
	}
	go h.cache.Set(context.Background(), key, route, catalogTTL)

	c.JSON(http.StatusOK, route)
}

func (h *CatalogHandler) CreateRoute(c *gin.Context) {
	var req CreateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	route := models.Route{ID: strings.TrimSpace(req.ID), Name: strings.TrimSpace(req.Name)}
	for _, id := range req.StopIDs {
		stop, err := h.store.FindStop(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown stop " + id})
			return
		}
		if err != nil {
			respondError(c, err, "stop lookup failed")
			return
		}
		route.Stops = append(route.Stops, *stop)
	}

	if err := h.store.CreateRoute(ctx, &route); err != nil {
		respondError(c, err, "failed to create route")
		return
	}
	h.invalidate(ctx, routesKey, routeKey(route.ID))

	c.JSON(http.StatusCreated, route)
}

// GetRouteBuses lists the buses assigned to a route.
func (h *CatalogHandler) GetRouteBuses(c *gin.Context) {
	buses, err := h.store.ListBusesByRoute(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "database query failed")
		return
	}
	if buses == nil {
		buses = []models.Bus{}
	}
	c.JSON(http.StatusOK, gin.H{"data": buses})
}

func (h *CatalogHandler) GetBus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	bus, err := h.store.FindBus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "database query failed")
		return
	}
	c.JSON(http.StatusOK, bus)
}

// CreateBus registers a bus, optionally assigned to an existing route.
func (h *CatalogHandler) CreateBus(c *gin.Context) {
	var req CreateBusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	bus := models.Bus{Model: strings.TrimSpace(req.Model)}
	keys := []string{busesKey}
	if req.RouteID != nil && *req.RouteID != "" {
		if _, err := h.store.FindRoute(ctx, *req.RouteID); errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown route"})
			return
		} else if err != nil {
			respondError(c, err, "route lookup failed")
			return
		}
		bus.RouteID = req.RouteID
		keys = append(keys, routeKey(*req.RouteID))
	}

	if err := h.store.CreateBus(ctx, &bus); err != nil {
		respondError(c, err, "failed to create bus")
		return
	}
	h.invalidate(ctx, keys...)

	c.JSON(http.StatusCreated, bus)
}

func (h *CatalogHandler) GetStop(c *gin.Context) {
	stop, err := h.store.FindStop(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "database query failed")
		return
	}
	c.JSON(http.StatusOK, stop)
}

func (h *CatalogHandler) CreateStop(c *gin.Context) {
	var req StopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	stop := models.Stop{ID: id, Name: strings.TrimSpace(req.Name), Lat: req.Lat, Lon: req.Lon}
	if err := h.store.CreateStop(c.Request.Context(), &stop); err != nil {
		respondError(c, err, "failed to create stop")
		return
	}
	h.invalidate(c.Request.Context(), stopsKey)

	c.JSON(http.StatusCreated, stop)
}

// UpdateStop replaces a stop's name and coordinates. The id comes from the path.
func (h *CatalogHandler) UpdateStop(c *gin.Context) {
	var req StopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stop := models.Stop{ID: c.Param("id"), Name: strings.TrimSpace(req.Name), Lat: req.Lat, Lon: req.Lon}
	if err := h.store.UpdateStop(c.Request.Context(), &stop); err != nil {
		respondError(c, err, "failed to update stop")
		return
	}
	h.invalidate(c.Request.Context(), stopsKey)

	c.JSON(http.StatusOK, stop)
}

func (h *CatalogHandler) DeleteStop(c *gin.Context) {
	if err := h.store.DeleteStop(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, "failed to delete stop")
		return
	}
	h.invalidate(c.Request.Context(), stopsKey)
	c.Status(http.StatusNoContent)
}

// GetNearbyStops serves stops within radius_km (default 2) of lat/lon.
func (h *CatalogHandler) GetNearbyStops(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil || !(lat >= -90 && lat <= 90) || !(lon >= -180 && lon <= 180) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon are required coordinates"})
		return
	}
	radius := store.DefaultNearbyRadiusKm
	if raw := c.Query("radius_km"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || !(r > 0 && r <= 50) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "radius_km must be within (0, 50]"})
			return
		}
		radius = r
	}

	stops, err := h.store.NearbyStops(c.Request.Context(), lat, lon, radius)
	if err != nil {
		respondError(c, err, "database query failed")
		return
	}
	if stops == nil {
		stops = []models.Stop{}
	}
	c.JSON(http.StatusOK, gin.H{"data": stops})
}

// GetStopStats serves totals for one stop, optionally limited to from..to
// (RFC3339 or YYYY-MM-DD; a bare to date includes that whole day).
func (h *CatalogHandler) GetStopStats(c *gin.Context) {
	from, err := parseBound(c.Query("from"), false)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
		return
	}
	to, err := parseBound(c.Query("to"), true)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to is before from"})
		return
	}

	stats, err := h.store.StopStatistics(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		respondError(c, err, "database query failed")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parseBound(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return d, nil
}
