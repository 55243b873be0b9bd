// Package redis publishes trade-signal snapshots and persists engine
// state in Redis. It implements the SignalPublisher, SignalReader and
// StateStore ports.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"savantbot/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: ~2 days of 5m signals + buffer.
	signalStreamMaxLen = 600

	latestKey     = "signal:latest"
	streamKey     = "signal:stream"
	pubsubChannel = "pub:signal"
	statePrefix   = "state:"

	stateTTL = 7 * 24 * time.Hour
)

// Config configures the Redis store.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Store reads and writes signal snapshots and opaque state blobs.
type Store struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// New creates a new Redis Store and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Store{client: client}, nil
}

// PublishSignal writes a signal snapshot with a single pipeline:
// SET latest (full replace, no TTL) + XADD history + PUBLISH.
// Readers of the latest key either see the previous snapshot or this
// one, never a partial write.
func (s *Store) PublishSignal(ctx context.Context, sig model.TradeSignal) error {
	jsonData := string(sig.JSON())

	pipe := s.client.Pipeline()
	pipe.Set(ctx, latestKey, jsonData, 0)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: signalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, pubsubChannel, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis signal pipeline: %w", err)
	}
	return nil
}

// LatestSignal returns the last fully-published snapshot, or nil, nil
// when nothing has ever been published.
func (s *Store) LatestSignal(ctx context.Context) (*model.TradeSignal, error) {
	data, err := s.client.Get(ctx, latestKey).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", latestKey, err)
	}

	sig, err := model.ParseTradeSignal([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("parse latest signal: %w", err)
	}
	return sig, nil
}

// SaveStateJSON stores an opaque state blob under key.
func (s *Store) SaveStateJSON(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, statePrefix+key, string(data), stateTTL).Err(); err != nil {
		return fmt.Errorf("redis set state %s: %w", key, err)
	}
	return nil
}

// LoadStateJSON returns the state blob under key, or nil, nil when no
// state has been saved.
func (s *Store) LoadStateJSON(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, statePrefix+key).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get state %s: %w", key, err)
	}
	return []byte(data), nil
}

// SubscribeSignals subscribes to the signal pubsub channel. The caller
// listens on the returned handle's Channel().
func (s *Store) SubscribeSignals(ctx context.Context) *goredis.PubSub {
	pubsub := s.client.Subscribe(ctx, pubsubChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("[redis] subscribe to %s failed: %v", pubsubChannel, err)
		pubsub.Close()
		return nil
	}
	return pubsub
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
