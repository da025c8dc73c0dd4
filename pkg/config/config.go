// Package config loads the YAML configuration of the secureflow binary.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSampleCount   = 200
	DefaultAnomalyCount  = 10
	DefaultContamination = 0.05
	DefaultTrees         = 100
	DefaultSampleSize    = 256
	DefaultTimeout       = 30 * time.Second
	DefaultMaxAlerts     = 5
	DefaultListen        = ":8080"
	DefaultSessionIdle   = 30 * time.Minute
	DefaultMaxSessions   = 1000
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultServiceName   = "secureflow"
)

// Config is the root configuration.
type Config struct {
	SecureFlow SecureFlowConfig `yaml:"secureflow"`
}

// SecureFlowConfig is the project configuration.
type SecureFlowConfig struct {
	Generator GeneratorConfig `yaml:"generator"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// GeneratorConfig controls the synthetic batch.
type GeneratorConfig struct {
	SampleCount  int    `yaml:"sample_count"`
	AnomalyCount int    `yaml:"anomaly_count"`
	Seed         *int64 `yaml:"seed,omitempty"`
}

// ScoringConfig controls the isolation forest.
type ScoringConfig struct {
	Contamination float64       `yaml:"contamination"`
	Seed          *int64        `yaml:"seed,omitempty"`
	Trees         int           `yaml:"trees"`
	SampleSize    int           `yaml:"sample_size"`
	Workers       int           `yaml:"workers"`
	Timeout       time.Duration `yaml:"timeout"`
}

// AlertsConfig controls the alert feed.
type AlertsConfig struct {
	MaxCount int `yaml:"max_count"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Listen string `yaml:"listen"`
	// SessionIdleTimeout closes sessions not used for this long.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	// MaxSessions caps open sessions; the least recently used is closed
	// to make room.
	MaxSessions int `yaml:"max_sessions"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
}

// TracingConfig controls OTLP trace export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return cfg
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	sf := &cfg.SecureFlow

	if sf.Generator.SampleCount == 0 {
		sf.Generator.SampleCount = DefaultSampleCount
	}
	if sf.Generator.AnomalyCount == 0 {
		sf.Generator.AnomalyCount = DefaultAnomalyCount
	}

	if sf.Scoring.Contamination == 0 {
		sf.Scoring.Contamination = DefaultContamination
	}
	if sf.Scoring.Trees == 0 {
		sf.Scoring.Trees = DefaultTrees
	}
	if sf.Scoring.SampleSize == 0 {
		sf.Scoring.SampleSize = DefaultSampleSize
	}
	if sf.Scoring.Timeout == 0 {
		sf.Scoring.Timeout = DefaultTimeout
	}

	if sf.Alerts.MaxCount == 0 {
		sf.Alerts.MaxCount = DefaultMaxAlerts
	}
	if sf.Server.Listen == "" {
		sf.Server.Listen = DefaultListen
	}
	if sf.Server.SessionIdleTimeout == 0 {
		sf.Server.SessionIdleTimeout = DefaultSessionIdle
	}
	if sf.Server.MaxSessions == 0 {
		sf.Server.MaxSessions = DefaultMaxSessions
	}
	if sf.Logging.Level == "" {
		sf.Logging.Level = DefaultLogLevel
	}
	if sf.Logging.Format == "" {
		sf.Logging.Format = DefaultLogFormat
	}
	if sf.Tracing.ServiceName == "" {
		sf.Tracing.ServiceName = DefaultServiceName
	}
}

// Validate checks value ranges.
func Validate(cfg Config) error {
	sf := cfg.SecureFlow
	if sf.Generator.SampleCount < 0 || sf.Generator.AnomalyCount < 0 {
		return fmt.Errorf("generator counts must not be negative")
	}
	if sf.Generator.AnomalyCount > sf.Generator.SampleCount {
		return fmt.Errorf("generator.anomaly_count (%d) exceeds generator.sample_count (%d)",
			sf.Generator.AnomalyCount, sf.Generator.SampleCount)
	}
	if sf.Scoring.Contamination <= 0 || sf.Scoring.Contamination > 0.5 {
		return fmt.Errorf("scoring.contamination must be in (0, 0.5], got %g", sf.Scoring.Contamination)
	}
	if sf.Scoring.Trees < 0 || sf.Scoring.SampleSize < 0 || sf.Scoring.Workers < 0 {
		return fmt.Errorf("scoring sizes must not be negative")
	}
	if sf.Scoring.Timeout < 0 {
		return fmt.Errorf("scoring.timeout must not be negative")
	}
	if sf.Server.SessionIdleTimeout < 0 || sf.Server.MaxSessions < 0 {
		return fmt.Errorf("server session limits must not be negative")
	}
	if sf.Alerts.MaxCount < 0 {
		return fmt.Errorf("alerts.max_count must not be negative")
	}
	switch sf.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", sf.Logging.Format)
	}
	if sf.Tracing.Enabled && sf.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	return nil
}
