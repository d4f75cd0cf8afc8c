// Package nats implements the NATS reporter plugin.
// Each event is published as JSON on a subject derived from its protocol.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/pkg/models"
	"firestige.xyz/wirelab/pkg/plugin"
)

const (
	defaultURL           = nats.DefaultURL
	defaultSubjectPrefix = "wirelab.events"
	defaultFlushTimeout  = 2 * time.Second
)

// publisher is the part of *nats.Conn the reporter uses.
type publisher interface {
	PublishMsg(m *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
	Drain() error
}

// NATSReporter publishes events to NATS.
type NATSReporter struct {
	name   string
	config Config
	conn   publisher

	reportedCount atomic.Uint64
}

// Config represents NATS reporter configuration.
type Config struct {
	URL           string        `mapstructure:"url"`            // default nats://127.0.0.1:4222
	SubjectPrefix string        `mapstructure:"subject_prefix"` // default wirelab.events
	Name          string        `mapstructure:"name"`           // client connection name
	FlushTimeout  time.Duration `mapstructure:"flush_timeout"`  // default 2s
}

func NewNATSReporter() plugin.Reporter {
	return &NATSReporter{name: "nats"}
}

func (r *NATSReporter) Name() string { return r.name }

func (r *NATSReporter) Init(config map[string]any) error {
	cfg := Config{
		URL:           defaultURL,
		SubjectPrefix: defaultSubjectPrefix,
		Name:          "wirelab",
		FlushTimeout:  defaultFlushTimeout,
	}
	if err := plugin.DecodeConfig(config, &cfg); err != nil {
		return err
	}
	cfg.SubjectPrefix = strings.Trim(cfg.SubjectPrefix, ".")
	if cfg.SubjectPrefix == "" {
		return fmt.Errorf("subject_prefix must not be empty")
	}
	r.config = cfg
	return nil
}

// Start connects to the server.
func (r *NATSReporter) Start(ctx context.Context) error {
	if r.conn != nil {
		return nil
	}
	conn, err := nats.Connect(r.config.URL,
		nats.Name(r.config.Name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.GetLogger().WithError(err).Warn("nats disconnected")
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("nats connect %s: %w", r.config.URL, err)
	}
	r.conn = conn
	log.GetLogger().WithField("url", r.config.URL).Info("nats reporter started")
	return nil
}

// Stop drains pending messages and closes the connection.
func (r *NATSReporter) Stop(ctx context.Context) error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Drain()
	log.GetLogger().WithField("total_reported", r.reportedCount.Load()).Info("nats reporter stopped")
	return err
}

// Subject returns the subject an event is published on:
// <prefix>.<protocol> or <prefix>.unidentified.
func (r *NATSReporter) Subject(evt *models.Event) string {
	suffix := "unidentified"
	if evt.Protocol != "" {
		suffix = subjectToken(evt.Protocol)
	}
	return r.config.SubjectPrefix + "." + suffix
}

// subjectToken replaces characters that are special in NATS subjects.
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}

func (r *NATSReporter) Report(ctx context.Context, evt *models.Event) error {
	if evt == nil {
		return fmt.Errorf("nil event")
	}
	if r.conn == nil {
		return fmt.Errorf("nats reporter not started")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}

	msg := nats.NewMsg(r.Subject(evt))
	msg.Data = data
	msg.Header.Set("Wirelab-Direction", string(evt.Direction))
	if evt.Template != "" {
		msg.Header.Set("Wirelab-Template", evt.Template)
	}
	if err := r.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish failed: %w", err)
	}
	r.reportedCount.Add(1)
	return nil
}

func (r *NATSReporter) Flush(ctx context.Context) error {
	if r.conn == nil {
		return nil
	}
	return r.conn.FlushTimeout(r.config.FlushTimeout)
}
