// Package console implements the console reporter.
// Writes identified events to stdout as text lines or JSON lines.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/pkg/models"
	"firestige.xyz/wirelab/pkg/plugin"
	"firestige.xyz/wirelab/pkg/schema"
)

// ConsoleReporter prints events for interactive use.
type ConsoleReporter struct {
	name   string
	config Config

	mu  sync.Mutex
	out io.Writer

	reportedCount atomic.Uint64
}

// Config represents console reporter configuration.
type Config struct {
	Format string `mapstructure:"format"` // "json" or "text", default "text"
	Fields bool   `mapstructure:"fields"` // print decoded fields under each text line
}

// NewConsoleReporter creates a new console reporter.
func NewConsoleReporter() plugin.Reporter {
	return &ConsoleReporter{
		name:   "console",
		config: Config{Format: "text", Fields: true},
		out:    os.Stdout,
	}
}

// Name returns the plugin name.
func (r *ConsoleReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *ConsoleReporter) Init(config map[string]any) error {
	cfg := r.config
	if err := plugin.DecodeConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.Format != "json" && cfg.Format != "text" {
		return fmt.Errorf("invalid format %q, must be json or text", cfg.Format)
	}
	r.config = cfg
	return nil
}

func (r *ConsoleReporter) Start(ctx context.Context) error {
	log.GetLogger().WithField("format", r.config.Format).Debug("console reporter started")
	return nil
}

func (r *ConsoleReporter) Stop(ctx context.Context) error {
	log.GetLogger().WithField("total_reported", r.reportedCount.Load()).Debug("console reporter stopped")
	return nil
}

// Report writes one event.
func (r *ConsoleReporter) Report(ctx context.Context, evt *models.Event) error {
	if evt == nil {
		return fmt.Errorf("nil event")
	}

	var line string
	if r.config.Format == "json" {
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("json marshal failed: %w", err)
		}
		line = string(data) + "\n"
	} else {
		line = r.formatText(evt)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := io.WriteString(r.out, line); err != nil {
		return err
	}
	r.reportedCount.Add(1)
	return nil
}

func (r *ConsoleReporter) formatText(evt *models.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %-3s %s -> %s len=%d",
		evt.Time.Format("15:04:05.000"), evt.Direction, evt.Source, evt.Dest, len(evt.Payload))

	switch {
	case evt.Template != "":
		fmt.Fprintf(&sb, " protocol=%s template=%s", evt.Protocol, evt.Template)
	case evt.Identified():
		fmt.Fprintf(&sb, " protocol=%s", evt.Protocol)
	default:
		sb.WriteString(" unidentified")
	}
	sb.WriteByte('\n')

	if r.config.Fields {
		for _, f := range evt.Fields {
			writeField(&sb, "    ", f)
		}
	}
	return sb.String()
}

func writeField(sb *strings.Builder, indent string, f schema.DecodedField) {
	if f.Error != "" {
		fmt.Fprintf(sb, "%s%s: <%s>\n", indent, f.Name, f.Error)
	} else {
		fmt.Fprintf(sb, "%s%s: %s\n", indent, f.Name, f.DisplayValue)
	}
	for _, c := range f.Children {
		writeField(sb, indent+"  ", c)
	}
}

// Flush is a no-op, writes are unbuffered.
func (r *ConsoleReporter) Flush(ctx context.Context) error {
	return nil
}
