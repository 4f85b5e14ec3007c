// Package redis publishes signals and entry transitions to Redis for
// downstream consumers (dashboards, alerting). Each publish is a pipelined
// XADD + SET + PUBLISH: the stream keeps recent history for backfill, the
// latest key serves point reads, pubsub drives live subscribers.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"signal-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	signalStreamMaxLen = 2000
	entryStreamMaxLen  = 1000
	defaultLatestTTL   = 30 * time.Minute
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher implements model.Publisher on Redis.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
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
	return &Publisher{client: client}, nil
}

// PublishSignal writes a scored signal to its per-pair stream, refreshes
// the latest key and notifies pubsub subscribers.
func (p *Publisher) PublishSignal(ctx context.Context, s model.Signal) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	jsonData := string(data)

	streamKey := "signal:" + string(s.Timeframe) + ":" + s.Symbol
	latestKey := "signal:latest:" + s.Symbol + ":" + string(s.Timeframe)
	pubsubCh := "pub:signal:" + s.Symbol + ":" + string(s.Timeframe)

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: signalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish signal %s: %w", s.Key(), err)
	}
	return nil
}

// PublishEntry writes an entry lifecycle transition. The event name rides
// alongside the record so subscribers can route without unmarshalling.
func (p *Publisher) PublishEntry(ctx context.Context, e model.Entry, event string) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	jsonData := string(data)

	streamKey := "entry:" + e.Symbol + ":" + string(e.Timeframe)
	pubsubCh := "pub:entry:" + e.Symbol + ":" + string(e.Timeframe)

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: entryStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"event": event, "data": jsonData},
	})
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish entry %s: %w", e.Key(), err)
	}
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
