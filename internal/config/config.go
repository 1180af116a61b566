package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML configuration.
type File struct {
	Listen            string        `yaml:"listen"`
	Target            string        `yaml:"target"`
	RedisAddr         string        `yaml:"redis_addr"`
	APIKey            string        `yaml:"api_key"`
	TrustForwardedFor bool          `yaml:"trust_forwarded_for"`
	BodyCap           int           `yaml:"body_cap"`
	StoreTimeout      string        `yaml:"store_timeout"`
	Retention         string        `yaml:"retention"`
	RateLimit         RateLimitFile `yaml:"rate_limit"`
	Model             ModelFile     `yaml:"model"`
}

// RateLimitFile configures the admission gate.
type RateLimitFile struct {
	Max    int    `yaml:"max"`
	Window string `yaml:"window"`
}

// ModelFile configures the anomaly classifier.
type ModelFile struct {
	Path    string `yaml:"path"`
	Workers int    `yaml:"workers"`
}

// Config is the runtime configuration for the gateway.
type Config struct {
	Listen            string
	Target            string
	RedisAddr         string
	APIKey            string
	TrustForwardedFor bool
	BodyCap           int
	StoreTimeout      time.Duration
	Retention         time.Duration
	RateLimitMax      int
	RateLimitWindow   time.Duration
	ModelPath         string
	ClassifierWorkers int
}

// Load reads a YAML config file and produces a runtime Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses YAML data and produces a runtime Config.
func LoadBytes(data []byte) (*Config, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return fromFile(&f)
}

func fromFile(f *File) (*Config, error) {
	cfg := &Config{
		Listen:            f.Listen,
		Target:            f.Target,
		RedisAddr:         f.RedisAddr,
		APIKey:            f.APIKey,
		TrustForwardedFor: f.TrustForwardedFor,
		BodyCap:           f.BodyCap,
		RateLimitMax:      f.RateLimit.Max,
		ModelPath:         f.Model.Path,
		ClassifierWorkers: f.Model.Workers,
	}

	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.Target == "" {
		cfg.Target = DefaultTarget
	}
	if cfg.BodyCap == 0 {
		cfg.BodyCap = DefaultBodyCap
	}
	if cfg.BodyCap < 0 {
		return nil, fmt.Errorf("body_cap must not be negative, got %d", f.BodyCap)
	}
	if cfg.RateLimitMax == 0 {
		cfg.RateLimitMax = DefaultRateLimitMax
	}
	if cfg.RateLimitMax < 0 {
		return nil, fmt.Errorf("rate_limit.max must not be negative, got %d", f.RateLimit.Max)
	}
	if cfg.ClassifierWorkers <= 0 {
		cfg.ClassifierWorkers = DefaultClassifierWorkers
	}

	var err error
	if cfg.StoreTimeout, err = duration("store_timeout", f.StoreTimeout, DefaultStoreTimeout); err != nil {
		return nil, err
	}
	if cfg.Retention, err = duration("retention", f.Retention, DefaultRetention); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = duration("rate_limit.window", f.RateLimit.Window, DefaultRateLimitWindow); err != nil {
		return nil, err
	}

	return cfg, nil
}

func duration(name, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", name, raw)
	}
	return d, nil
}

// DefaultConfig returns a config with defaults for when no config file is given.
func DefaultConfig() *Config {
	cfg, _ := fromFile(&File{})
	return cfg
}
