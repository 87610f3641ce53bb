package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"passenger-flow-api/models"
	"passenger-flow-api/services"
	"passenger-flow-api/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type PassengerStore interface {
	ListPassengerCounts(ctx context.Context, q store.PassengerQuery) ([]models.PassengerCount, error)
	GetPassengerCount(ctx context.Context, id int64) (*models.PassengerCount, error)
	CreatePassengerCount(ctx context.Context, pc *models.PassengerCount) error
	UpdatePassengerCount(ctx context.Context, pc *models.PassengerCount) error
	DeletePassengerCount(ctx context.Context, id int64) error
	FindBus(ctx context.Context, id int64) (*models.Bus, error)
	FindStop(ctx context.Context, id string) (*models.Stop, error)
}

type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

type PassengerHandler struct {
	store     PassengerStore
	publisher Publisher
	now       func() time.Time
}

func NewPassengerHandler(s PassengerStore, publisher Publisher) *PassengerHandler {
	return &PassengerHandler{store: s, publisher: publisher, now: time.Now}
}

// CreatePassengerCountRequest caps a single reading at 100 passengers each way.
type CreatePassengerCountRequest struct {
	BusID     int64      `json:"bus_id" binding:"required,gt=0"`
	StopID    string     `json:"stop_id" binding:"required"`
	Entered   *int       `json:"entered" binding:"required,gte=0,lte=100"`
	Exited    *int       `json:"exited" binding:"required,gte=0,lte=100"`
	Timestamp *time.Time `json:"ts"`
}

// List serves GET /api/passengers, newest first.
func (h *PassengerHandler) List(c *gin.Context) {
	p := ParsePagination(c)
	q := store.PassengerQuery{
		Limit:   p.Limit + 1,
		Before:  p.Before,
		StopID:  c.Query("stop_id"),
		RouteID: c.Query("route_id"),
	}
	if raw := c.Query("bus_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bus_id"})
			return
		}
		q.BusID = id
	}

	rows, err := h.store.ListPassengerCounts(c.Request.Context(), q)
	if err != nil {
		respondError(c, err, "database query failed")
		return
	}

	c.JSON(http.StatusOK, pageOf(rows, p.Limit, func(pc models.PassengerCount) time.Time { return pc.Timestamp }))
}

func (h *PassengerHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	pc, err := h.store.GetPassengerCount(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "database query failed")
		return
	}
	c.JSON(http.StatusOK, pc)
}

// bindReading validates the body and resolves its bus and stop. It writes the
// error response itself and reports false on failure.
func (h *PassengerHandler) bindReading(c *gin.Context) (CreatePassengerCountRequest, *models.Bus, string, bool) {
	var req CreatePassengerCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, nil, "", false
	}
	ctx := c.Request.Context()

	bus, err := h.store.FindBus(ctx, req.BusID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown bus"})
		return req, nil, "", false
	}
	if err != nil {
		respondError(c, err, "bus lookup failed")
		return req, nil, "", false
	}
	stopID := strings.TrimSpace(req.StopID)
	_, err = h.store.FindStop(ctx, stopID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown stop"})
		return req, nil, "", false
	}
	if err != nil {
		respondError(c, err, "stop lookup failed")
		return req, nil, "", false
	}
	return req, bus, stopID, true
}

// Create records a manual or sensor reading and announces it on the live channel.
func (h *PassengerHandler) Create(c *gin.Context) {
	req, bus, stopID, ok := h.bindReading(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	ts := h.now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	pc := models.PassengerCount{
		BusID:     bus.ID,
		StopID:    stopID,
		Entered:   *req.Entered,
		Exited:    *req.Exited,
		Timestamp: ts,
	}
	if err := h.store.CreatePassengerCount(ctx, &pc); err != nil {
		respondError(c, err, "failed to save passenger count")
		return
	}
	if bus.RouteID != nil {
		pc.RouteID = *bus.RouteID
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, services.LiveChannel, pc); err != nil {
			log.Warn().Err(err).Int64("id", pc.ID).Msg("live publish failed")
		}
	}

	c.JSON(http.StatusCreated, pc)
}

// Update corrects a stored reading. Without ts the original time is kept.
func (h *PassengerHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	existing, err := h.store.GetPassengerCount(ctx, id)
	if err != nil {
		respondError(c, err, "database query failed")
		return
	}
	req, bus, stopID, ok := h.bindReading(c)
	if !ok {
		return
	}

	pc := models.PassengerCount{
		ID:        id,
		BusID:     bus.ID,
		StopID:    stopID,
		Entered:   *req.Entered,
		Exited:    *req.Exited,
		Timestamp: existing.Timestamp,
	}
	if req.Timestamp != nil {
		pc.Timestamp = *req.Timestamp
	}
	if err := h.store.UpdatePassengerCount(ctx, &pc); err != nil {
		respondError(c, err, "failed to update passenger count")
		return
	}
	if bus.RouteID != nil {
		pc.RouteID = *bus.RouteID
	}

	c.JSON(http.StatusOK, pc)
}

func (h *PassengerHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.store.DeletePassengerCount(c.Request.Context(), id); err != nil {
		respondError(c, err, "failed to delete passenger count")
		return
	}
	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
