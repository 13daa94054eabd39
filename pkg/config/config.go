// Package config holds the YAML-loadable configuration for lobcore.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// LoggingConfig controls the zap logger built by pkg/logging.
type LoggingConfig struct {
	Level            string `json:"level" yaml:"level"`
	Format           string `json:"format" yaml:"format"` // "json" or "console"
	EnableCaller     bool   `json:"enable_caller" yaml:"enable_caller"`
	EnableStacktrace bool   `json:"enable_stacktrace" yaml:"enable_stacktrace"`
}

// MetricsConfig controls whether/where pkg/metrics registers collectors.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Provider string `json:"provider" yaml:"provider"`
	Path     string `json:"path" yaml:"path"`
}

// EngineConfig holds the type-level parameters spec.md §6 names as
// configurable constants.
type EngineConfig struct {
	NumWorkers           int   `json:"num_workers" yaml:"num_workers"`
	MaxSymbols           int   `json:"max_symbols" yaml:"max_symbols"`
	MaxOrders            int   `json:"max_orders" yaml:"max_orders"`
	RingSize             int   `json:"ring_size" yaml:"ring_size"`
	NumBuckets           int   `json:"num_buckets" yaml:"num_buckets"`
	TickPrecision        int64 `json:"tick_precision" yaml:"tick_precision"`
	BacktrackTicks       int   `json:"backtrack_ticks" yaml:"backtrack_ticks"`
	RetireBatch          int   `json:"retire_batch" yaml:"retire_batch"`
	HazardSlotsPerThread int   `json:"hazard_slots_per_thread" yaml:"hazard_slots_per_thread"`
	MaxHazardThreads     int   `json:"max_hazard_threads" yaml:"max_hazard_threads"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// DefaultEngineConfig returns spec.md's documented defaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		NumWorkers:           4,
		MaxSymbols:           4096,
		MaxOrders:            1 << 20,
		RingSize:             1 << 20,
		NumBuckets:           16384,
		TickPrecision:        100,
		BacktrackTicks:       25,
		RetireBatch:          64,
		HazardSlotsPerThread: 8,
		MaxHazardThreads:     256,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Provider: "prometheus",
			Path:     "/metrics",
		},
	}
}

// Validate checks the configuration for the power-of-two and
// positive-capacity requirements the lock-free structures depend on.
func (c *EngineConfig) Validate() error {
	if c.NumWorkers <= 0 {
		return fmt.Errorf("config: num_workers must be positive")
	}
	if c.MaxSymbols <= 0 {
		return fmt.Errorf("config: max_symbols must be positive")
	}
	if c.MaxOrders <= 0 {
		return fmt.Errorf("config: max_orders must be positive")
	}
	if !isPowerOfTwo(c.RingSize) {
		return fmt.Errorf("config: ring_size must be a power of two, got %d", c.RingSize)
	}
	if !isPowerOfTwo(c.NumBuckets) {
		return fmt.Errorf("config: num_buckets must be a power of two, got %d", c.NumBuckets)
	}
	if c.TickPrecision <= 0 {
		return fmt.Errorf("config: tick_precision must be positive")
	}
	if c.BacktrackTicks < 0 {
		return fmt.Errorf("config: backtrack_ticks must be non-negative")
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// LoadEngineConfig reads YAML configuration from path. An empty path, or a
// path that does not exist, yields DefaultEngineConfig.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	if path == "" {
		return DefaultEngineConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultEngineConfig(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultEngineConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return cfg, nil
}
