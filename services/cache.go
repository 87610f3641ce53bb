package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"passenger-flow-api/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	// LiveChannel carries every new passenger count as JSON.
	LiveChannel = "passengerflow:live"

	revokedPrefix = "passengerflow:revoked:"
)

// CacheService wraps redis. A service without a client is a no-op so the API
// keeps serving when redis is down. Calls go through a circuit breaker that
// opens after consecutive failures and fails fast until redis recovers.
type CacheService struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker[any]
}

func newBreaker() *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 1,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A cache miss is not a failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
}

func (s *CacheService) do(fn func() error) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

func NewCacheService(cfg config.RedisConfig) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Retry up to 10 times (covers sidecar startup delay)
	var lastErr error
	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lastErr = client.Ping(ctx).Err()
		cancel()
		if lastErr == nil {
			return &CacheService{client: client, breaker: newBreaker()}, nil
		}
		log.Warn().Err(lastErr).Int("attempt", i+1).Msg("redis ping failed")
		time.Sleep(2 * time.Second)
	}

	client.Close()
	return &CacheService{}, fmt.Errorf("redis ping failed after 10 attempts: %w", lastErr)
}

// NewCacheServiceWithClient wraps an existing client; nil disables caching.
func NewCacheServiceWithClient(client *redis.Client) *CacheService {
	return &CacheService{client: client, breaker: newBreaker()}
}

func (s *CacheService) Client() *redis.Client {
	return s.client
}

func (s *CacheService) Available() bool {
	return s.client != nil
}

// Get decodes the value at key into dest and reports whether it was present.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if s.client == nil {
		return false, nil
	}
	var val []byte
	err := s.do(func() (err error) {
		val, err = s.client.Get(ctx, key).Bytes()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.do(func() error { return s.client.Set(ctx, key, data, ttl).Err() })
}

func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	if s.client == nil {
		return nil
	}
	return s.do(func() error { return s.client.Del(ctx, keys...).Err() })
}

func (s *CacheService) Publish(ctx context.Context, channel string, message interface{}) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return s.do(func() error { return s.client.Publish(ctx, channel, data).Err() })
}

func (s *CacheService) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	if s.client == nil {
		return nil
	}
	return s.client.Subscribe(ctx, channel)
}

// RevokeToken blocks a token id until its natural expiry.
func (s *CacheService) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if s.client == nil || tokenID == "" || ttl <= 0 {
		return nil
	}
	return s.do(func() error { return s.client.Set(ctx, revokedPrefix+tokenID, 1, ttl).Err() })
}

func (s *CacheService) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if s.client == nil || tokenID == "" {
		return false, nil
	}
	var n int64
	err := s.do(func() (err error) {
		n, err = s.client.Exists(ctx, revokedPrefix+tokenID).Result()
		return err
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *CacheService) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
