package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig controls the distributed per-client rate limiter.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// AdaptiveConfig controls the health-driven global throttle.
type AdaptiveConfig struct {
	Enabled         bool    `yaml:"enabled"`
	BaseRate        float64 `yaml:"baseRate"`        // requests/second at full health
	MonitorInterval string  `yaml:"monitorInterval"` // e.g. "5s"
	Source          string  `yaml:"source"`          // tracker | prometheus | simulated
	PrometheusURL   string  `yaml:"prometheusUrl"`
	TargetCPU       float64 `yaml:"targetCpu"`       // 0-1 fraction
	TargetP95Ms     float64 `yaml:"targetP95Ms"`     // milliseconds
	TargetErrorRate float64 `yaml:"targetErrorRate"` // 0-1 fraction
}

type Config struct {
	ListenAddr   string         `yaml:"listenAddr"`
	WindowSize   int            `yaml:"windowSize"` // rolling latency window capacity
	ModelVersion string         `yaml:"modelVersion"`
	LogLevel     string         `yaml:"logLevel"`
	Redis        RedisConfig    `yaml:"redis"`
	Adaptive     AdaptiveConfig `yaml:"adaptive"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		ListenAddr:   ":8000",
		WindowSize:   1000,
		ModelVersion: "1.0.0",
		LogLevel:     "info",
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Adaptive: AdaptiveConfig{
			BaseRate:        100,
			MonitorInterval: "5s",
			Source:          "tracker",
			PrometheusURL:   "http://localhost:9090",
			TargetCPU:       0.70,
			TargetP95Ms:     500,
			TargetErrorRate: 0.01,
		},
	}
}

// Load reads a YAML config file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.WindowSize < 1 {
		return fmt.Errorf("windowSize must be at least 1, got %d", c.WindowSize)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listenAddr must not be empty")
	}
	if c.Adaptive.Enabled {
		if c.Adaptive.BaseRate <= 0 {
			return fmt.Errorf("adaptive.baseRate must be positive, got %v", c.Adaptive.BaseRate)
		}
		switch c.Adaptive.Source {
		case "tracker", "prometheus", "simulated":
		default:
			return fmt.Errorf("adaptive.source must be tracker, prometheus or simulated, got %q", c.Adaptive.Source)
		}
		if _, err := c.Adaptive.Interval(); err != nil {
			return err
		}
	}
	return nil
}

// Interval parses the monitor interval string.
func (a AdaptiveConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(a.MonitorInterval)
	if err != nil {
		return 0, fmt.Errorf("adaptive.monitorInterval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("adaptive.monitorInterval must be positive, got %s", d)
	}
	return d, nil
}
