// Package config loads annealcycle settings from defaults, an optional YAML
// file and ANNEALCYCLE_* environment variables, in increasing priority.
package config

import (
	"fmt"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	Anneal  AnnealConfig  `koanf:"anneal"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// LogConfig selects level, format and destination of log output.
type LogConfig struct {
	Level      string `koanf:"level"`  // debug, info, warn, error
	Format     string `koanf:"format"` // text, json, logfmt
	Output     string `koanf:"output"` // stdout, stderr, file
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"` // MB
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"` // days
	Compress   bool   `koanf:"compress"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// MaxVertices rejects larger graphs on job submission. Workers hold an
	// n*n weight matrix, so this bounds the memory of a job.
	MaxVertices int `koanf:"max_vertices"`
	// MaxBodyBytes caps the size of request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// StoreConfig picks the checkpoint backend. Traces are always written
// under DataDir.
type StoreConfig struct {
	Backend string      `koanf:"backend"` // fs, redis
	DataDir string      `koanf:"data_dir"`
	Redis   RedisConfig `koanf:"redis"`
}

type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`
}

// AnnealConfig holds search defaults for jobs that do not set them.
type AnnealConfig struct {
	Method             string  `koanf:"method"`
	Iterations         int     `koanf:"iterations"`
	InitialTemperature float64 `koanf:"initial_temperature"`
	CoolingRate        float64 `koanf:"cooling_rate"`
	Seed               int64   `koanf:"seed"`
	PopSize            int     `koanf:"pop_size"`
	CheckpointInterval int     `koanf:"checkpoint_interval"` // seconds, 0 disables
}

type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace"`
}

// Validate checks values the loaders cannot type-check.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("invalid log.format %q", c.Log.Format)
	}
	switch c.Log.Output {
	case "stdout", "stderr", "file":
	default:
		return fmt.Errorf("invalid log.output %q", c.Log.Output)
	}

	switch c.Store.Backend {
	case "fs":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid store.backend %q", c.Store.Backend)
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir cannot be empty")
	}

	switch c.Anneal.Method {
	case "anneal", "mayfly":
	default:
		return fmt.Errorf("invalid anneal.method %q", c.Anneal.Method)
	}
	if c.Anneal.Iterations < 0 {
		return fmt.Errorf("anneal.iterations must be >= 0")
	}
	if c.Anneal.InitialTemperature <= 0 {
		return fmt.Errorf("anneal.initial_temperature must be positive")
	}
	if c.Anneal.CoolingRate < 0 {
		return fmt.Errorf("anneal.cooling_rate must be >= 0")
	}
	if c.Anneal.CheckpointInterval < 0 {
		return fmt.Errorf("anneal.checkpoint_interval must be >= 0")
	}
	if c.Server.MaxVertices <= 0 {
		return fmt.Errorf("server.max_vertices must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	return nil
}
