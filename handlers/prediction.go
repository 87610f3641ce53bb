package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"passenger-flow-api/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// LocalTimeLayout is the query format of prediction times without a zone.
const LocalTimeLayout = "2006-01-02T15:04:05"

var (
	errMissingTime = errors.New("time parameter is required")
	errBadTime     = errors.New("time must be YYYY-MM-DDTHH:MM:SS or RFC3339")
)

type Predictor interface {
	SinglePoint(ctx context.Context, routeID string, at time.Time, stopID string) (models.RoutePrediction, error)
	DailyCurve(ctx context.Context, routeID string) ([]models.RoutePrediction, error)
	CurrentLoad(ctx context.Context, busID int64) (int, error)
	Flush() (points, daily int)
	Location() *time.Location
}

type PredictionHandler struct {
	predictor Predictor
	maxPast   time.Duration
	now       func() time.Time
}

func NewPredictionHandler(predictor Predictor, maxPast time.Duration) *PredictionHandler {
	return &PredictionHandler{predictor: predictor, maxPast: maxPast, now: time.Now}
}

// GetPrediction serves GET /api/predictors?route=&time=&stop=.
func (h *PredictionHandler) GetPrediction(c *gin.Context) {
	routeID := strings.TrimSpace(c.Query("route"))
	if routeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "route parameter is required"})
		return
	}

	at, err := parsePredictionTime(c.Query("time"), h.predictor.Location())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.maxPast > 0 && at.Before(h.now().Add(-h.maxPast)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "time is too far in the past"})
		return
	}

	p, err := h.predictor.SinglePoint(c.Request.Context(), routeID, at, strings.TrimSpace(c.Query("stop")))
	if err != nil {
		respondError(c, err, "prediction failed")
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetDailyPredictions serves GET /api/predictors/daily?route=.
func (h *PredictionHandler) GetDailyPredictions(c *gin.Context) {
	routeID := strings.TrimSpace(c.Query("route"))
	if routeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "route parameter is required"})
		return
	}

	curve, err := h.predictor.DailyCurve(c.Request.Context(), routeID)
	if err != nil {
		respondError(c, err, "daily prediction failed")
		return
	}
	if len(curve) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found: " + routeID})
		return
	}
	c.JSON(http.StatusOK, curve)
}

// GetCurrentLoad serves GET /api/predictions/current-load/:busId.
func (h *PredictionHandler) GetCurrentLoad(c *gin.Context) {
	busID, err := strconv.ParseInt(c.Param("busId"), 10, 64)
	if err != nil || busID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bus id"})
		return
	}

	load, err := h.predictor.CurrentLoad(c.Request.Context(), busID)
	if err != nil {
		respondError(c, err, "current load estimation failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"bus_id": busID, "current_load": load})
}

// FlushCache serves POST /api/predictors/cache/flush.
func (h *PredictionHandler) FlushCache(c *gin.Context) {
	points, daily := h.predictor.Flush()
	log.Info().Int("points", points).Int("daily", daily).Msg("prediction cache flushed on request")
	c.JSON(http.StatusOK, gin.H{"evicted_points": points, "evicted_daily": daily})
}

func parsePredictionTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errMissingTime
	}
	if t, err := time.ParseInLocation(LocalTimeLayout, raw, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errBadTime
	}
	return t.In(loc), nil
}
