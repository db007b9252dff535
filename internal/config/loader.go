package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ANNEALCYCLE_"

// envKeyMappings maps env suffixes whose field names contain underscores.
// Everything else turns "_" into ".".
var envKeyMappings = map[string]string{
	"log_file_path":              "log.file_path",
	"log_max_size":               "log.max_size",
	"log_max_backups":            "log.max_backups",
	"log_max_age":                "log.max_age",
	"server_read_timeout":        "server.read_timeout",
	"server_shutdown_timeout":    "server.shutdown_timeout",
	"server_max_vertices":        "server.max_vertices",
	"server_max_body_bytes":      "server.max_body_bytes",
	"store_data_dir":             "store.data_dir",
	"anneal_initial_temperature": "anneal.initial_temperature",
	"anneal_cooling_rate":        "anneal.cooling_rate",
	"anneal_pop_size":            "anneal.pop_size",
	"anneal_checkpoint_interval": "anneal.checkpoint_interval",
}

// DefaultPaths are tried in order when Load gets no explicit path.
var DefaultPaths = []string{"annealcycle.yaml", "config/annealcycle.yaml"}

// Defaults returns the built-in values as a flat koanf map.
func Defaults() map[string]any {
	return map[string]any{
		"log.level":       "info",
		"log.format":      "text",
		"log.output":      "stderr",
		"log.file_path":   "logs/annealcycle.log",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		"server.addr":             ":8080",
		"server.read_timeout":     30 * time.Second,
		"server.shutdown_timeout": 10 * time.Second,
		"server.max_vertices":     5000,
		"server.max_body_bytes":   8 << 20,

		"store.backend":      "fs",
		"store.data_dir":     "./data",
		"store.redis.addr":   "",
		"store.redis.db":     0,
		"store.redis.prefix": "annealcycle",
		"store.redis.ttl":    time.Duration(0),

		"anneal.method":              "anneal",
		"anneal.iterations":          2000,
		"anneal.initial_temperature": 1000.0,
		"anneal.cooling_rate":        0.95,
		"anneal.seed":                0,
		"anneal.pop_size":            20,
		"anneal.checkpoint_interval": 0,

		"metrics.enabled":   true,
		"metrics.namespace": "annealcycle",
	}
}

// Load builds a Config. If path is empty the DefaultPaths are tried and a
// missing file is not an error; an explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := loadFile(k, path); err != nil {
		return nil, err
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		return nil
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
				return fmt.Errorf("failed to load config file %s: %w", p, err)
			}
			return nil
		}
	}
	return nil
}

func envKey(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if mapped, ok := envKeyMappings[key]; ok {
		return mapped, value
	}
	return strings.ReplaceAll(key, "_", "."), value
}
