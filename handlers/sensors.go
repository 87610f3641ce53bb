package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"passenger-flow-api/models"
	"passenger-flow-api/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var sensorAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "passengerflow_sensor_anomalies_total",
	Help: "Sensor readings outside the normal operating range, by sensor type.",
}, []string{"type"})

type SensorStore interface {
	ListSensorData(ctx context.Context, q store.SensorQuery) ([]models.SensorData, error)
	GetSensorData(ctx context.Context, id int64) (*models.SensorData, error)
	CreateSensorData(ctx context.Context, d *models.SensorData) error
	UpdateSensorData(ctx context.Context, d *models.SensorData) error
	DeleteSensorData(ctx context.Context, id int64) error
	FindBus(ctx context.Context, id int64) (*models.Bus, error)
}

type SensorHandler struct {
	store SensorStore
	now   func() time.Time
}

func NewSensorHandler(s SensorStore) *SensorHandler {
	return &SensorHandler{store: s, now: time.Now}
}

// SensorDataRequest is one reading; the anomaly flag is derived from the value.
type SensorDataRequest struct {
	BusID      int64             `json:"bus_id" binding:"required,gt=0"`
	SensorType models.SensorType `json:"sensor_type" binding:"required,oneof=engine_temp tire_pressure fuel_level"`
	Value      *float64          `json:"value" binding:"required"`
	Timestamp  *time.Time        `json:"ts"`
}

func (h *SensorHandler) bind(c *gin.Context) (SensorDataRequest, bool) {
	var req SensorDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	_, err := h.store.FindBus(c.Request.Context(), req.BusID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown bus"})
		return req, false
	}
	if err != nil {
		respondError(c, err, "bus lookup failed")
		return req, false
	}
	return req, true
}

func (h *SensorHandler) reading(req SensorDataRequest, fallback time.Time) models.SensorData {
	d := models.SensorData{
		BusID:      req.BusID,
		SensorType: req.SensorType,
		Value:      *req.Value,
		Timestamp:  fallback,
		Anomaly:    req.SensorType.Anomalous(*req.Value),
	}
	if req.Timestamp != nil {
		d.Timestamp = *req.Timestamp
	}
	return d
}

func (h *SensorHandler) flagAnomaly(d models.SensorData) {
	if !d.Anomaly {
		return
	}
	sensorAnomalies.WithLabelValues(string(d.SensorType)).Inc()
	log.Warn().
		Int64("bus_id", d.BusID).
		Str("sensor", string(d.SensorType)).
		Float64("value", d.Value).
		Msg("sensor reading out of range")
}

// List serves GET /api/sensors, newest first, filtered by type and bus_id.
func (h *SensorHandler) List(c *gin.Context) {
	p := ParsePagination(c)
	q := store.SensorQuery{
		Limit:  p.Limit + 1,
		Before: p.Before,
		Type:   models.SensorType(c.Query("type")),
	}
	if q.Type != "" && !q.Type.Known() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown sensor type"})
		return
	}
	if raw := c.Query("bus_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bus_id"})
			return
		}
		q.BusID = id
	}

	rows, err := h.store.ListSensorData(c.Request.Context(), q)
	if err != nil {
		respondError(c, err, "database query failed")
		return
	}
	c.JSON(http.StatusOK, pageOf(rows, p.Limit, func(d models.SensorData) time.Time { return d.Timestamp }))
}

func (h *SensorHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	d, err := h.store.GetSensorData(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "database query failed")
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *SensorHandler) Create(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	d := h.reading(req, h.now())
	if err := h.store.CreateSensorData(c.Request.Context(), &d); err != nil {
		respondError(c, err, "failed to save sensor data")
		return
	}
	h.flagAnomaly(d)
	c.JSON(http.StatusCreated, d)
}

// Update replaces a reading. Without ts the original time is kept.
func (h *SensorHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	existing, err := h.store.GetSensorData(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "database query failed")
		return
	}
	req, ok := h.bind(c)
	if !ok {
		return
	}

	d := h.reading(req, existing.Timestamp)
	d.ID = id
	if err := h.store.UpdateSensorData(c.Request.Context(), &d); err != nil {
		respondError(c, err, "failed to update sensor data")
		return
	}
	if !existing.Anomaly {
		h.flagAnomaly(d)
	}
	c.JSON(http.StatusOK, d)
}

func (h *SensorHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteSensorData(c.Request.Context(), id); err != nil {
		respondError(c, err, "failed to delete sensor data")
		return
	}
	c.Status(http.StatusNoContent)
}
