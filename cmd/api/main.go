package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"passenger-flow-api/config"
	"passenger-flow-api/handlers"
	"passenger-flow-api/logging"
	"passenger-flow-api/middleware"
	"passenger-flow-api/prediction"
	"passenger-flow-api/services"
	"passenger-flow-api/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.Log)
	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := store.Open(cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, running without cache and live feed")
	}
	defer cache.Close()

	authService := services.NewAuthService(cfg.JWT)
	authHandler := handlers.NewAuthHandler(db, authService, cache)
	if err := authHandler.EnsureAdmin(ctx, cfg.JWT.AdminUsername, cfg.JWT.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("Failed to create admin account")
	}

	predictions := prediction.NewCacheWithTimeout(cfg.Prediction.ComputeTimeout)
	predictor := prediction.NewService(db, db, predictions, prediction.OptionsFromConfig(cfg.Prediction))
	go predictions.Run(ctx, cfg.Prediction.EvictInterval)

	var authLimiter *middleware.IPRateLimiter
	if cfg.Server.AuthRatePerMinute > 0 {
		authLimiter = middleware.NewIPRateLimiter(cfg.Server.AuthRatePerMinute)
		go authLimiter.Run(ctx, time.Minute, 10*time.Minute)
	}

	router := newRouter(cfg, app{
		auth:        authService,
		cache:       cache,
		authHandler: authHandler,
		authLimiter: authLimiter,
		predictions: handlers.NewPredictionHandler(predictor, cfg.Prediction.MaxPast),
		passengers:  handlers.NewPassengerHandler(db, cache),
		catalog:     handlers.NewCatalogHandler(db, cache),
		sensors:     handlers.NewSensorHandler(db),
		reports:     handlers.NewReportHandler(services.NewReportService(db, predictor.Location()), predictor.Location()),
		ready:       db.Ping,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
