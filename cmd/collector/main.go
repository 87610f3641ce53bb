package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"passenger-flow-api/config"
	"passenger-flow-api/logging"
	"passenger-flow-api/models"
	"passenger-flow-api/services"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// CountPayload is one sensor reading published on the counts topic.
type CountPayload struct {
	TS      string `json:"ts"`
	BusID   int64  `json:"bus_id"`
	StopID  string `json:"stop_id"`
	Entered int    `json:"entered"`
	Exited  int    `json:"exited"`
}

var (
	msgsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "passengerflow_collector_messages_received_total",
		Help: "Total number of MQTT messages received by collector.",
	})
	msgsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "passengerflow_collector_messages_stored_total",
		Help: "Total number of passenger counts inserted into Postgres.",
	})
	msgsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passengerflow_collector_messages_failed_total",
		Help: "Total number of messages rejected or failed to store.",
	}, []string{"reason"})
)

var (
	errMissingIDs     = errors.New("missing bus_id or stop_id")
	errNegativeCounts = errors.New("negative passenger counts")
)

const insertCount = `
	INSERT INTO passenger_counts (bus_id, stop_id, entered, exited, ts)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, (SELECT route_id FROM buses WHERE id = $1)`

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

type collector struct {
	db   rowQuerier
	live publisher
	now  func() time.Time
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.Log)

	dbPool, err := pgxpool.New(ctx, cfg.Database.GetURL())
	if err != nil {
		log.Fatal().Err(err).Msg("db pool init failed")
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}

	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, live feed disabled")
	}
	defer cache.Close()

	c := &collector{db: dbPool, live: cache, now: time.Now}

	go serveHTTP(cfg.MQTT.MetricsAddr)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.URL)
	opts.SetClientID("collector-" + time.Now().Format("20060102150405"))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, message mqtt.Message) {
		if _, err := c.process(ctx, message.Payload()); err != nil {
			log.Warn().Err(err).Str("topic", message.Topic()).Msg("passenger count rejected")
		}
	})
	opts.OnConnect = func(client mqtt.Client) {
		token := client.Subscribe(cfg.MQTT.Topic, 0, nil)
		token.Wait()
		if token.Error() != nil {
			log.Error().Err(token.Error()).Msg("mqtt subscribe failed")
			return
		}
		log.Info().Str("topic", cfg.MQTT.Topic).Msg("collector subscribed")
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("mqtt connection failed")
	}

	log.Info().Str("mqtt", cfg.MQTT.URL).Str("metrics", cfg.MQTT.MetricsAddr).Msg("collector running")

	<-ctx.Done()
	log.Info().Msg("collector shutting down")
	client.Disconnect(250)
}

func serveHTTP(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("metrics server failed")
	}
}

// decode validates a raw payload. A missing or malformed ts means now.
func (c *collector) decode(raw []byte) (models.PassengerCount, error) {
	var payload CountPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.PassengerCount{}, fmt.Errorf("invalid payload: %w", err)
	}
	if payload.BusID <= 0 || payload.StopID == "" {
		return models.PassengerCount{}, errMissingIDs
	}
	if payload.Entered < 0 || payload.Exited < 0 {
		return models.PassengerCount{}, errNegativeCounts
	}

	ts := c.now().UTC()
	if payload.TS != "" {
		if parsed, err := time.Parse(time.RFC3339, payload.TS); err == nil {
			ts = parsed.UTC()
		}
	}

	return models.PassengerCount{
		BusID:     payload.BusID,
		StopID:    payload.StopID,
		Entered:   payload.Entered,
		Exited:    payload.Exited,
		Timestamp: ts,
	}, nil
}

// process stores one reading and republishes it on the live channel.
func (c *collector) process(ctx context.Context, raw []byte) (models.PassengerCount, error) {
	msgsReceived.Inc()

	pc, err := c.decode(raw)
	if err != nil {
		msgsFailed.WithLabelValues("invalid").Inc()
		return pc, err
	}

	var routeID *string
	err = c.db.QueryRow(ctx, insertCount, pc.BusID, pc.StopID, pc.Entered, pc.Exited, pc.Timestamp).
		Scan(&pc.ID, &routeID)
	if err != nil {
		msgsFailed.WithLabelValues("db").Inc()
		return pc, fmt.Errorf("db insert failed: %w", err)
	}
	if routeID != nil {
		pc.RouteID = *routeID
	}
	msgsStored.Inc()

	if c.live != nil {
		if err := c.live.Publish(ctx, services.LiveChannel, pc); err != nil {
			log.Warn().Err(err).Int64("id", pc.ID).Msg("live publish failed")
		}
	}
	return pc, nil
}
