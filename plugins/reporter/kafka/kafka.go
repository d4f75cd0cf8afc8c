// Package kafka implements the Kafka reporter plugin.
// Publishes identified events as JSON with batching, compression and retries.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/pkg/models"
	"firestige.xyz/wirelab/pkg/plugin"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
)

// messageWriter is the part of *kafka.Writer the reporter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter sends events to a Kafka topic.
type KafkaReporter struct {
	name   string
	writer messageWriter
	config Config

	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// Config represents Kafka reporter configuration.
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`       // required
	Topic        string        `mapstructure:"topic"`         // required
	BatchSize    int           `mapstructure:"batch_size"`    // optional, default 100
	BatchTimeout time.Duration `mapstructure:"batch_timeout"` // optional, default 100ms
	Compression  string        `mapstructure:"compression"`   // none|gzip|snappy|lz4|zstd, default snappy
	MaxAttempts  int           `mapstructure:"max_attempts"`  // optional, default 3
}

// NewKafkaReporter creates a new Kafka reporter.
func NewKafkaReporter() plugin.Reporter {
	return &KafkaReporter{name: "kafka"}
}

func (r *KafkaReporter) Name() string {
	return r.name
}

// Init validates the configuration and builds the writer. No connection is
// made until the first write.
func (r *KafkaReporter) Init(config map[string]any) error {
	if config == nil {
		return fmt.Errorf("kafka reporter requires configuration")
	}

	cfg := Config{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Compression:  defaultCompression,
		MaxAttempts:  defaultMaxAttempts,
	}
	if err := plugin.DecodeConfig(config, &cfg); err != nil {
		return err
	}
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return fmt.Errorf("topic is required")
	}

	compression, err := parseCompression(cfg.Compression)
	if err != nil {
		return err
	}

	r.config = cfg
	r.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		Compression:  compression,
		RequiredAcks: kafka.RequireOne,
	}
	return nil
}

func parseCompression(name string) (kafka.Compression, error) {
	switch name {
	case "none", "":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("invalid compression type: %s", name)
}

func (r *KafkaReporter) Start(ctx context.Context) error {
	log.GetLogger().WithFields(map[string]interface{}{
		"brokers":     r.config.Brokers,
		"topic":       r.config.Topic,
		"batch_size":  r.config.BatchSize,
		"compression": r.config.Compression,
	}).Info("kafka reporter started")
	return nil
}

// Stop flushes pending messages and closes the writer.
func (r *KafkaReporter) Stop(ctx context.Context) error {
	if r.writer != nil {
		if err := r.writer.Close(); err != nil {
			log.GetLogger().WithError(err).Error("error closing kafka writer")
			return err
		}
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"total_reported": r.reportedCount.Load(),
		"total_errors":   r.errorCount.Load(),
	}).Info("kafka reporter stopped")
	return nil
}

// Report sends one event.
func (r *KafkaReporter) Report(ctx context.Context, evt *models.Event) error {
	if evt == nil {
		return fmt.Errorf("nil event")
	}
	return r.ReportBatch(ctx, []*models.Event{evt})
}

// ReportBatch sends events in a single write.
func (r *KafkaReporter) ReportBatch(ctx context.Context, evts []*models.Event) error {
	msgs := make([]kafka.Message, 0, len(evts))
	for _, evt := range evts {
		msg, err := toMessage(evt)
		if err != nil {
			r.errorCount.Add(1)
			return fmt.Errorf("serialize event failed: %w", err)
		}
		msgs = append(msgs, msg)
	}

	if err := r.writer.WriteMessages(ctx, msgs...); err != nil {
		r.errorCount.Add(uint64(len(msgs)))
		return fmt.Errorf("kafka write failed: %w", err)
	}
	r.reportedCount.Add(uint64(len(msgs)))
	return nil
}

// toMessage keys the message by conversation so that one peer pair stays on
// one partition. Identification results travel as headers as well.
func toMessage(evt *models.Event) (kafka.Message, error) {
	value, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{
		Key:   []byte(evt.Key()),
		Value: value,
		Time:  evt.Time,
		Headers: []kafka.Header{
			{Key: "direction", Value: []byte(evt.Direction)},
		},
	}
	if evt.Protocol != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "protocol", Value: []byte(evt.Protocol)})
	}
	if evt.Template != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "template", Value: []byte(evt.Template)})
	}
	for k, v := range evt.Labels {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return msg, nil
}

// Flush is a no-op; the writer flushes on BatchSize or BatchTimeout.
func (r *KafkaReporter) Flush(ctx context.Context) error {
	return nil
}
