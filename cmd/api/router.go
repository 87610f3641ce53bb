package main

import (
	"context"
	"net/http"

	"passenger-flow-api/config"
	"passenger-flow-api/handlers"
	"passenger-flow-api/logging"
	"passenger-flow-api/middleware"
	"passenger-flow-api/models"
	"passenger-flow-api/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type app struct {
	auth        *services.AuthService
	cache       *services.CacheService
	authHandler *handlers.AuthHandler
	predictions *handlers.PredictionHandler
	passengers  *handlers.PassengerHandler
	catalog     *handlers.CatalogHandler
	sensors     *handlers.SensorHandler
	reports     *handlers.ReportHandler
	authLimiter *middleware.IPRateLimiter
	ready       func(ctx context.Context) error
}

func newRouter(cfg *config.Config, a app) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger(), middleware.SetupCORS(cfg.CORS))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		if a.ready != nil {
			if err := a.ready(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "UP",
			"message": "Passenger Flow API is running",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authn := middleware.Authenticate(a.auth, a.cache)
	operator := middleware.RequireRole(models.RoleOperator, models.RoleAdmin)
	admin := middleware.RequireRole(models.RoleAdmin)

	throttle := middleware.RateLimit(a.authLimiter)

	api := router.Group("/api")
	{
		api.POST("/auth/register", throttle, a.authHandler.Register)
		api.POST("/auth/login", throttle, a.authHandler.Login)
		api.POST("/auth/logout", authn, a.authHandler.Logout)

		api.GET("/predictors", a.predictions.GetPrediction)
		api.GET("/predictors/daily", a.predictions.GetDailyPredictions)
		api.GET("/predictions/current-load/:busId", a.predictions.GetCurrentLoad)
		api.POST("/predictors/cache/flush", authn, admin, a.predictions.FlushCache)

		api.GET("/routes", a.catalog.GetRoutes)
		api.GET("/routes/:id", a.catalog.GetRoute)
		api.GET("/routes/:id/buses", a.catalog.GetRouteBuses)
		api.POST("/routes", authn, operator, a.catalog.CreateRoute)

		api.GET("/stops", a.catalog.GetStops)
		api.GET("/stops/nearby", a.catalog.GetNearbyStops)
		api.GET("/stops/:id", a.catalog.GetStop)
		api.GET("/stops/:id/stats", a.catalog.GetStopStats)
		api.POST("/stops", authn, operator, a.catalog.CreateStop)
		api.PUT("/stops/:id", authn, operator, a.catalog.UpdateStop)
		api.DELETE("/stops/:id", authn, admin, a.catalog.DeleteStop)

		api.GET("/buses", a.catalog.GetBuses)
		api.GET("/buses/:id", a.catalog.GetBus)
		api.POST("/buses", authn, operator, a.catalog.CreateBus)

		api.GET("/passengers", a.passengers.List)
		api.GET("/passengers/:id", a.passengers.Get)
		api.POST("/passengers", authn, operator, a.passengers.Create)
		api.PUT("/passengers/:id", authn, operator, a.passengers.Update)
		api.DELETE("/passengers/:id", authn, admin, a.passengers.Delete)

		api.GET("/sensors", authn, a.sensors.List)
		api.GET("/sensors/:id", authn, a.sensors.Get)
		api.POST("/sensors", authn, operator, a.sensors.Create)
		api.PUT("/sensors/:id", authn, operator, a.sensors.Update)
		api.DELETE("/sensors/:id", authn, admin, a.sensors.Delete)

		api.GET("/reports/daily", authn, a.reports.GetDailyReport)
	}

	router.GET("/ws/live", authn, handlers.LiveWebSocket(a.cache))

	return router
}
