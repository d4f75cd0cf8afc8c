// Package redis implements the Redis stream reporter plugin.
// Events are appended to a capped stream with XADD.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/pkg/models"
	"firestige.xyz/wirelab/pkg/plugin"
)

const (
	defaultAddr   = "127.0.0.1:6379"
	defaultStream = "wirelab:events"
	defaultMaxLen = 10000
)

// streamClient is the part of *redis.Client the reporter uses.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisReporter appends events to a Redis stream.
type RedisReporter struct {
	name   string
	config Config
	client streamClient

	reportedCount atomic.Uint64
}

// Config represents Redis reporter configuration.
type Config struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"` // approximate cap, 0 disables trimming
}

func NewRedisReporter() plugin.Reporter {
	return &RedisReporter{name: "redis"}
}

func (r *RedisReporter) Name() string { return r.name }

func (r *RedisReporter) Init(config map[string]any) error {
	cfg := Config{Addr: defaultAddr, Stream: defaultStream, MaxLen: defaultMaxLen}
	if err := plugin.DecodeConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.Stream == "" {
		return fmt.Errorf("stream is required")
	}
	if cfg.MaxLen < 0 {
		return fmt.Errorf("max_len must not be negative")
	}
	r.config = cfg
	return nil
}

// Start opens the client and checks the server is reachable.
func (r *RedisReporter) Start(ctx context.Context) error {
	if r.client == nil {
		r.client = redis.NewClient(&redis.Options{
			Addr:     r.config.Addr,
			Password: r.config.Password,
			DB:       r.config.DB,
		})
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", r.config.Addr, err)
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"addr":   r.config.Addr,
		"stream": r.config.Stream,
	}).Info("redis reporter started")
	return nil
}

func (r *RedisReporter) Stop(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	log.GetLogger().WithField("total_reported", r.reportedCount.Load()).Info("redis reporter stopped")
	return r.client.Close()
}

func (r *RedisReporter) Report(ctx context.Context, evt *models.Event) error {
	if evt == nil {
		return fmt.Errorf("nil event")
	}
	if r.client == nil {
		return fmt.Errorf("redis reporter not started")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: r.config.Stream,
		Values: map[string]interface{}{
			"direction": string(evt.Direction),
			"protocol":  evt.Protocol,
			"template":  evt.Template,
			"event":     data,
		},
	}
	if r.config.MaxLen > 0 {
		args.MaxLen = r.config.MaxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis xadd failed: %w", err)
	}
	r.reportedCount.Add(1)
	return nil
}

// Flush is a no-op, every XADD is a round trip.
func (r *RedisReporter) Flush(ctx context.Context) error {
	return nil
}
