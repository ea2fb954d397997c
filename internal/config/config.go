package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the immutable process-wide configuration. It is built once at
// startup and passed explicitly to every component; nothing reads files or
// environment variables past this point.
type Config struct {
	Workers             int    `yaml:"workers"`
	ParseTimeoutSeconds int    `yaml:"parse_timeout_seconds"`
	ForceReparse        bool   `yaml:"force_reparse"`
	DatabasePath        string `yaml:"database_path"`
	UploadFolder        string `yaml:"upload_folder"`
	ExportFolder        string `yaml:"export_folder"`
	MetricsAddr         string `yaml:"metrics_addr"`
	LogLevel            string `yaml:"log_level"`

	Database        DatabaseConfig        `yaml:"database"`
	Reconciliation  ReconciliationConfig  `yaml:"reconciliation"`
	CrossValidation CrossValidationConfig `yaml:"cross_validation"`
	Archive         ArchiveConfig         `yaml:"archive"`
}

// DatabaseConfig selects and tunes the relational store backend.
type DatabaseConfig struct {
	Driver              string `yaml:"driver"` // sqlite3 | postgres
	DSN                 string `yaml:"dsn"`    // postgres only; sqlite3 derives from database_path
	QueryTimeoutSeconds int    `yaml:"query_timeout_seconds"`
	MaxOpenConns        int    `yaml:"max_open_conns"`
	MaxIdleConns        int    `yaml:"max_idle_conns"`
}

// ReconciliationConfig holds the Σ(hourly) vs daily tolerance bounds.
type ReconciliationConfig struct {
	AbsoluteMassT     float64 `yaml:"absolute_mass_t"`
	AbsoluteVolumeSm3 float64 `yaml:"absolute_volume_sm3"`
	RelativePct       float64 `yaml:"relative_pct"`
}

// Tolerance is a per-metric cross-validation bound pair. Pct is expressed
// in percent, matching the configuration surface (0.5 means 0.5%).
type Tolerance struct {
	Abs float64 `yaml:"abs"`
	Pct float64 `yaml:"pct"`
}

// CrossValidationConfig holds the cross-source tolerance table and the
// streak escalation threshold.
type CrossValidationConfig struct {
	EscalationDays int                  `yaml:"escalation_days"`
	Tolerances     map[string]Tolerance `yaml:"tolerances"`
}

// ArchiveConfig caps batch archive expansion.
type ArchiveConfig struct {
	MaxUncompressedBytes int64 `yaml:"max_uncompressed_bytes"`
	MaxEntries           int   `yaml:"max_entries"`
}

// Default returns the configuration with every documented default applied.
func Default() *Config {
	return &Config{
		Workers:             0, // resolved to NumCPU by EffectiveWorkers
		ParseTimeoutSeconds: 300,
		ForceReparse:        false,
		DatabasePath:        "fiscalflow.db",
		UploadFolder:        "uploads",
		ExportFolder:        "exports",
		MetricsAddr:         "",
		LogLevel:            "info",
		Database: DatabaseConfig{
			Driver:              "sqlite3",
			QueryTimeoutSeconds: 30,
			MaxOpenConns:        10,
			MaxIdleConns:        5,
		},
		Reconciliation: ReconciliationConfig{
			AbsoluteMassT:     0.5,
			AbsoluteVolumeSm3: 1.0,
			RelativePct:       0.5,
		},
		CrossValidation: CrossValidationConfig{
			EscalationDays: 10,
			Tolerances:     map[string]Tolerance{},
		},
		Archive: ArchiveConfig{
			MaxUncompressedBytes: 2 << 30,
			MaxEntries:           4096,
		},
	}
}

// Load reads a YAML configuration file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.ParseTimeoutSeconds <= 0 {
		return fmt.Errorf("parse_timeout_seconds must be positive, got %d", c.ParseTimeoutSeconds)
	}
	switch c.Database.Driver {
	case "sqlite3":
		if c.DatabasePath == "" {
			return fmt.Errorf("database_path is required for the sqlite3 driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Reconciliation.AbsoluteMassT < 0 || c.Reconciliation.AbsoluteVolumeSm3 < 0 {
		return fmt.Errorf("reconciliation absolute tolerances must be >= 0")
	}
	if c.Reconciliation.RelativePct < 0 {
		return fmt.Errorf("reconciliation.relative_pct must be >= 0")
	}
	if c.CrossValidation.EscalationDays <= 0 {
		return fmt.Errorf("cross_validation.escalation_days must be positive, got %d", c.CrossValidation.EscalationDays)
	}
	for metric, tol := range c.CrossValidation.Tolerances {
		if tol.Abs < 0 || tol.Pct < 0 {
			return fmt.Errorf("cross_validation.tolerances[%s] must be >= 0", metric)
		}
	}
	if c.Archive.MaxUncompressedBytes <= 0 {
		return fmt.Errorf("archive.max_uncompressed_bytes must be positive")
	}
	return nil
}

// EffectiveWorkers resolves the parse pool size, defaulting to CPU count.
func (c *Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// ParseTimeout returns the per-file parse deadline.
func (c *Config) ParseTimeout() time.Duration {
	return time.Duration(c.ParseTimeoutSeconds) * time.Second
}

// QueryTimeout returns the per-query store deadline.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Database.QueryTimeoutSeconds) * time.Second
}
