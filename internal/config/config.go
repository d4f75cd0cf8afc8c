// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/wirelab/internal/log"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `wirelab:` root key in YAML.
type GlobalConfig struct {
	Workspace string          `mapstructure:"workspace"` // .json / .yaml / .toml workspace file
	Parsers   []string        `mapstructure:"parsers"`   // fixed-format parsers tried after templates
	Log       log.Config      `mapstructure:"log"`
	Listen    ListenConfig    `mapstructure:"listen"`
	Replay    ReplayConfig    `mapstructure:"replay"`
	Sniff     SniffConfig     `mapstructure:"sniff"`
	API       APIConfig       `mapstructure:"api"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Reporters ReportersConfig `mapstructure:"reporters"`
}

// ─── Datagram sources ───

// ListenConfig configures the live UDP socket.
type ListenConfig struct {
	Network   string `mapstructure:"network"` // udp | udp4 | udp6
	Address   string `mapstructure:"address"`
	AutoReply bool   `mapstructure:"auto_reply"`
}

// ReplayConfig configures capture file replay.
type ReplayConfig struct {
	Port uint16 `mapstructure:"port"` // 0 = all UDP ports
}

// SniffConfig configures passive capture on a live interface.
type SniffConfig struct {
	Interface    string        `mapstructure:"interface"`
	SnapLen      int           `mapstructure:"snap_len"`
	BufferSizeMB int           `mapstructure:"buffer_size_mb"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
	FanoutID     uint16        `mapstructure:"fanout_id"`
	Port         uint16        `mapstructure:"port"` // 0 = all UDP ports
}

// ─── HTTP surfaces ───

// APIConfig configures the HTTP API of the serve command.
type APIConfig struct {
	Listen string `mapstructure:"listen"`
	Mode   string `mapstructure:"mode"` // gin mode: release | debug | test
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Reporters ───

// ReportersConfig selects reporter plugins and their batching.
type ReportersConfig struct {
	Enabled      []string                  `mapstructure:"enabled"`
	Fallback     string                    `mapstructure:"fallback"`
	BatchSize    int                       `mapstructure:"batch_size"`
	BatchTimeout time.Duration             `mapstructure:"batch_timeout"`
	Options      map[string]map[string]any `mapstructure:"options"` // keyed by reporter name
}

type configRoot struct {
	Wirelab GlobalConfig `mapstructure:"wirelab"`
}

// Load loads configuration from path. An empty path yields the defaults,
// still subject to environment overrides.
// The YAML file uses `wirelab:` as root key; env vars use the WIRELAB_ prefix
// (e.g., WIRELAB_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Key "wirelab.log.level" maps to env "WIRELAB_LOG_LEVEL".
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Wirelab

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "wirelab." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("wirelab.workspace", "workspace.json")
	v.SetDefault("wirelab.parsers", []string{"stun"})

	// Log defaults
	v.SetDefault("wirelab.log.level", "info")
	v.SetDefault("wirelab.log.format", "pattern")
	v.SetDefault("wirelab.log.pattern", log.DefaultPattern)
	v.SetDefault("wirelab.log.time", log.DefaultTime)
	v.SetDefault("wirelab.log.file.enabled", false)
	v.SetDefault("wirelab.log.file.path", "wirelab.log")
	v.SetDefault("wirelab.log.file.max_size_mb", 100)
	v.SetDefault("wirelab.log.file.max_age_days", 30)
	v.SetDefault("wirelab.log.file.max_backups", 5)
	v.SetDefault("wirelab.log.file.compress", true)

	// Source defaults
	v.SetDefault("wirelab.listen.network", "udp4")
	v.SetDefault("wirelab.listen.address", ":9000")
	v.SetDefault("wirelab.listen.auto_reply", true)
	v.SetDefault("wirelab.replay.port", 0)
	v.SetDefault("wirelab.sniff.interface", "eth0")
	v.SetDefault("wirelab.sniff.snap_len", 65535)
	v.SetDefault("wirelab.sniff.buffer_size_mb", 8)
	v.SetDefault("wirelab.sniff.poll_timeout", "200ms")
	v.SetDefault("wirelab.sniff.fanout_id", 0)
	v.SetDefault("wirelab.sniff.port", 0)

	// HTTP defaults
	v.SetDefault("wirelab.api.listen", "127.0.0.1:8080")
	v.SetDefault("wirelab.api.mode", "release")
	v.SetDefault("wirelab.metrics.enabled", false)
	v.SetDefault("wirelab.metrics.listen", ":9091")
	v.SetDefault("wirelab.metrics.path", "/metrics")

	// Reporter defaults
	v.SetDefault("wirelab.reporters.enabled", []string{"console"})
	v.SetDefault("wirelab.reporters.batch_size", 100)
	v.SetDefault("wirelab.reporters.batch_timeout", "50ms")
}

// ValidateAndApplyDefaults validates configuration and fills runtime defaults
// that viper cannot express.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "pattern", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be pattern/text/json)", cfg.Log.Format)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return fmt.Errorf("log.file.path is required when log.file.enabled=true")
	}

	if cfg.Workspace == "" {
		return fmt.Errorf("workspace path is required")
	}

	// ── Listen validation ──
	switch cfg.Listen.Network {
	case "udp", "udp4", "udp6":
	default:
		return fmt.Errorf("invalid listen.network: %s (must be udp/udp4/udp6)", cfg.Listen.Network)
	}

	// ── Sniff validation ──
	if cfg.Sniff.SnapLen <= 0 || cfg.Sniff.SnapLen > 262144 {
		return fmt.Errorf("invalid sniff.snap_len: %d (must be 1..262144)", cfg.Sniff.SnapLen)
	}
	if cfg.Sniff.BufferSizeMB <= 0 {
		return fmt.Errorf("sniff.buffer_size_mb must be positive")
	}

	// ── Metrics validation ──
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics.path: %s (must start with /)", cfg.Metrics.Path)
	}

	// ── API validation ──
	switch cfg.API.Mode {
	case "release", "debug", "test":
	default:
		return fmt.Errorf("invalid api.mode: %s (must be release/debug/test)", cfg.API.Mode)
	}

	// ── Reporters ──
	if cfg.Reporters.BatchSize < 0 {
		return fmt.Errorf("reporters.batch_size must not be negative")
	}
	if cfg.Reporters.Options == nil {
		cfg.Reporters.Options = make(map[string]map[string]any)
	}

	return nil
}
