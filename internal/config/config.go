// Package config loads the memory subsystem's tunables the way the rest
// of this codebase loads configuration: a YAML file with code-level
// defaults, generalizing the original Config.Memory block into the
// settings this subsystem actually consumes.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MemoryConfig holds the tunables a System, CompressedCell, and Monitor
// are constructed from when an application wants config-driven defaults
// instead of hardcoding them at each call site.
type MemoryConfig struct {
	// CompressionThresholdBytes is the default byte threshold below which
	// a CompressedCell records strategy "None" instead of compressing.
	CompressionThresholdBytes int `yaml:"compression_threshold_bytes"`

	// CleanupInterval is the default tick period for a System's
	// automatic cleanup loop.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// MonitorInterval is the default tick period for a Monitor's
	// periodic metrics collection.
	MonitorInterval time.Duration `yaml:"monitor_interval"`

	// SizeThresholdBytes and CountThreshold seed a Monitor's warning
	// thresholds (spec §4.6); zero means "no threshold configured".
	SizeThresholdBytes int64 `yaml:"size_threshold_bytes"`
	CountThreshold     int   `yaml:"count_threshold"`

	// PersistenceDir is the base directory a PersistentSystem writes
	// cell records under when the caller doesn't supply one explicitly.
	PersistenceDir string `yaml:"persistence_dir"`

	// HistoryLimit bounds how many Monitor snapshots are retained.
	HistoryLimit int `yaml:"history_limit"`
}

// Config is the top-level document this package loads; today it only
// carries the memory section, mirroring the shape (not the full surface)
// of the wider application's configuration file.
type Config struct {
	Memory MemoryConfig `yaml:"memory"`
}

// DefaultConfig returns the built-in defaults, used whenever no config
// file is present or a field is left zero after loading one.
func DefaultConfig() *Config {
	return &Config{
		Memory: MemoryConfig{
			CompressionThresholdBytes: 1024,
			CleanupInterval:           5 * time.Minute,
			MonitorInterval:           1 * time.Minute,
			SizeThresholdBytes:        0,
			CountThreshold:            0,
			PersistenceDir:            "data/memory",
			HistoryLimit:              1000,
		},
	}
}

// Load reads a YAML config file, falling back to defaults on a missing
// file. Zero-valued fields left after unmarshaling are backfilled from
// the defaults so a partial override file doesn't zero out the rest.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read memory config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse memory config: %w", err)
	}

	defaults := DefaultConfig()
	if cfg.Memory.CompressionThresholdBytes == 0 {
		cfg.Memory.CompressionThresholdBytes = defaults.Memory.CompressionThresholdBytes
	}
	if cfg.Memory.CleanupInterval == 0 {
		cfg.Memory.CleanupInterval = defaults.Memory.CleanupInterval
	}
	if cfg.Memory.MonitorInterval == 0 {
		cfg.Memory.MonitorInterval = defaults.Memory.MonitorInterval
	}
	if cfg.Memory.PersistenceDir == "" {
		cfg.Memory.PersistenceDir = defaults.Memory.PersistenceDir
	}
	if cfg.Memory.HistoryLimit == 0 {
		cfg.Memory.HistoryLimit = defaults.Memory.HistoryLimit
	}

	return cfg, nil
}
