package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return configPath
}

func TestLoadValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
wirelab:
  workspace: "/tmp/ws.yaml"
  parsers: ["stun"]
  log:
    level: "debug"
    format: "json"
  listen:
    address: "0.0.0.0:3478"
    auto_reply: false
  replay:
    port: 5060
  metrics:
    enabled: true
    listen: "0.0.0.0:9090"
  reporters:
    enabled: ["console", "kafka"]
    batch_timeout: "200ms"
    options:
      kafka:
        brokers: ["localhost:9092"]
        topic: "wirelab-events"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Workspace != "/tmp/ws.yaml" {
		t.Errorf("Expected workspace /tmp/ws.yaml, got %s", cfg.Workspace)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected log format json, got %s", cfg.Log.Format)
	}
	if cfg.Listen.Address != "0.0.0.0:3478" || cfg.Listen.AutoReply {
		t.Errorf("Unexpected listen config: %+v", cfg.Listen)
	}
	if cfg.Listen.Network != "udp4" {
		t.Errorf("Expected default network udp4, got %s", cfg.Listen.Network)
	}
	if cfg.Replay.Port != 5060 {
		t.Errorf("Expected replay port 5060, got %d", cfg.Replay.Port)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Unexpected metrics config: %+v", cfg.Metrics)
	}
	if len(cfg.Reporters.Enabled) != 2 || cfg.Reporters.Enabled[1] != "kafka" {
		t.Errorf("Expected reporters [console kafka], got %v", cfg.Reporters.Enabled)
	}
	if cfg.Reporters.BatchTimeout != 200*time.Millisecond {
		t.Errorf("Expected batch timeout 200ms, got %v", cfg.Reporters.BatchTimeout)
	}
	if cfg.Reporters.Options["kafka"]["topic"] != "wirelab-events" {
		t.Errorf("Expected kafka topic option, got %v", cfg.Reporters.Options["kafka"])
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	if cfg.Workspace != "workspace.json" {
		t.Errorf("Expected default workspace, got %s", cfg.Workspace)
	}
	if cfg.Log.Format != "pattern" {
		t.Errorf("Expected default log format pattern, got %s", cfg.Log.Format)
	}
	if cfg.Reporters.BatchSize != 100 {
		t.Errorf("Expected default batch size 100, got %d", cfg.Reporters.BatchSize)
	}
	if len(cfg.Parsers) != 1 || cfg.Parsers[0] != "stun" {
		t.Errorf("Expected default parsers [stun], got %v", cfg.Parsers)
	}
	if cfg.Sniff.SnapLen != 65535 || cfg.Sniff.PollTimeout != 200*time.Millisecond {
		t.Errorf("Unexpected sniff defaults: %+v", cfg.Sniff)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WIRELAB_LOG_LEVEL", "warn")
	t.Setenv("WIRELAB_LISTEN_ADDRESS", "127.0.0.1:7000")

	cfg, err := Load(writeConfig(t, "wirelab:\n  log:\n    level: debug\n"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected env log level warn, got %s", cfg.Log.Level)
	}
	if cfg.Listen.Address != "127.0.0.1:7000" {
		t.Errorf("Expected env listen address, got %s", cfg.Listen.Address)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"log level", "wirelab:\n  log:\n    level: invalid\n"},
		{"log format", "wirelab:\n  log:\n    format: xml\n"},
		{"network", "wirelab:\n  listen:\n    network: tcp\n"},
		{"metrics path", "wirelab:\n  metrics:\n    path: metrics\n"},
		{"api mode", "wirelab:\n  api:\n    mode: fast\n"},
		{"snap len", "wirelab:\n  sniff:\n    snap_len: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Errorf("Expected error for invalid %s, got nil", tt.name)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}
