// Package config loads process-wide dispatcher defaults (worker pool
// sizing, circuit-breaker thresholds, DDQ storage) from a YAML file:
// read the file, unmarshal with gopkg.in/yaml.v3, fill in defaults for
// anything left zero.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smartmessage/sm/circuitbreaker"
	"github.com/smartmessage/sm/dedup/sharedstore"
	"github.com/smartmessage/sm/workerpool"
)

// Config is the process-wide bootstrap configuration for a smartmessage
// process: worker pool sizing, circuit-breaker thresholds, and DDQ
// defaults.
type Config struct {
	WorkerPool     WorkerPoolConfig     `yaml:"worker_pool"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	DDQ            DDQConfig            `yaml:"ddq"`
}

// WorkerPoolConfig mirrors workerpool.Config in YAML-friendly units
// (seconds instead of time.Duration).
type WorkerPoolConfig struct {
	MaxWorkers      int `yaml:"max_workers"`
	IdleTimeoutSecs int `yaml:"idle_timeout_seconds"`
	QueueSize       int `yaml:"queue_size"`
}

// ToWorkerPoolConfig converts to the workerpool package's native Config.
func (w WorkerPoolConfig) ToWorkerPoolConfig() workerpool.Config {
	return workerpool.Config{
		MaxWorkers:  w.MaxWorkers,
		IdleTimeout: time.Duration(w.IdleTimeoutSecs) * time.Second,
		QueueSize:   w.QueueSize,
	}
}

// CircuitBreakerConfig mirrors circuitbreaker.Config in YAML-friendly
// units.
type CircuitBreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_seconds"`
}

// ToCircuitBreakerConfig converts to the circuitbreaker package's native
// Config.
func (c CircuitBreakerConfig) ToCircuitBreakerConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureThreshold: c.FailureThreshold,
		Cooldown:         time.Duration(c.CooldownSecs) * time.Second,
	}
}

// DDQConfig is the default dedup policy new message classes inherit
// unless they override it explicitly.
type DDQConfig struct {
	Enabled bool             `yaml:"enabled"`
	Size    int              `yaml:"size"`
	Storage DDQStorageConfig `yaml:"storage"`
}

// DDQStorageConfig selects and configures a DDQ backend. Kind is "memory"
// or "badger"; the Badger fields are ignored for "memory".
type DDQStorageConfig struct {
	Kind       string `yaml:"kind"`
	Dir        string `yaml:"dir"`
	Prefix     string `yaml:"prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// ToSharedStoreConfig converts the Badger-backed fields to
// sharedstore.Config.
func (s DDQStorageConfig) ToSharedStoreConfig() sharedstore.Config {
	return sharedstore.Config{
		Dir:    s.Dir,
		Prefix: s.Prefix,
		TTL:    time.Duration(s.TTLSeconds) * time.Second,
	}
}

// Load reads and parses a YAML configuration file, filling in defaults
// for any zero-valued field.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", filename, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.WorkerPool.MaxWorkers == 0 {
		cfg.WorkerPool.MaxWorkers = workerpool.DefaultConfig().MaxWorkers
	}
	if cfg.WorkerPool.IdleTimeoutSecs == 0 {
		cfg.WorkerPool.IdleTimeoutSecs = int(workerpool.DefaultConfig().IdleTimeout.Seconds())
	}
	if cfg.WorkerPool.QueueSize == 0 {
		cfg.WorkerPool.QueueSize = workerpool.DefaultConfig().QueueSize
	}
	if cfg.CircuitBreaker.FailureThreshold == 0 {
		cfg.CircuitBreaker.FailureThreshold = circuitbreaker.DefaultConfig().FailureThreshold
	}
	if cfg.CircuitBreaker.CooldownSecs == 0 {
		cfg.CircuitBreaker.CooldownSecs = int(circuitbreaker.DefaultConfig().Cooldown.Seconds())
	}
	if cfg.DDQ.Size == 0 {
		cfg.DDQ.Size = 100
	}
	if cfg.DDQ.Storage.Kind == "" {
		cfg.DDQ.Storage.Kind = "memory"
	}
}
