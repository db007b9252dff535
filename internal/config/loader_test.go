package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 5000, cfg.Server.MaxVertices)
	assert.Equal(t, int64(8<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "fs", cfg.Store.Backend)
	assert.Equal(t, "./data", cfg.Store.DataDir)
	assert.Equal(t, "anneal", cfg.Anneal.Method)
	assert.Equal(t, 2000, cfg.Anneal.Iterations)
	assert.Equal(t, 1000.0, cfg.Anneal.InitialTemperature)
	assert.Equal(t, 0.95, cfg.Anneal.CoolingRate)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: json
server:
  addr: ":9000"
  read_timeout: 5s
store:
  data_dir: /tmp/cycles
anneal:
  iterations: 500
  cooling_rate: 0.5
`), 0644))

	t.Setenv("ANNEALCYCLE_ANNEAL_ITERATIONS", "750")
	t.Setenv("ANNEALCYCLE_STORE_DATA_DIR", "/var/lib/annealcycle")
	t.Setenv("ANNEALCYCLE_STORE_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 0.5, cfg.Anneal.CoolingRate)
	assert.Equal(t, 750, cfg.Anneal.Iterations, "env wins over file")
	assert.Equal(t, "/var/lib/annealcycle", cfg.Store.DataDir)
	assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ANNEALCYCLE_ANNEAL_METHOD", "genetic")
	_, err := Load("")
	assert.ErrorContains(t, err, "anneal.method")
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Chdir(t.TempDir())
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"log level", func(c *Config) { c.Log.Level = "trace" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"log output", func(c *Config) { c.Log.Output = "syslog" }},
		{"backend", func(c *Config) { c.Store.Backend = "s3" }},
		{"redis without addr", func(c *Config) { c.Store.Backend = "redis" }},
		{"empty data dir", func(c *Config) { c.Store.DataDir = "" }},
		{"negative iterations", func(c *Config) { c.Anneal.Iterations = -1 }},
		{"zero temperature", func(c *Config) { c.Anneal.InitialTemperature = 0 }},
		{"negative cooling", func(c *Config) { c.Anneal.CoolingRate = -1 }},
		{"negative max vertices", func(c *Config) { c.Server.MaxVertices = -1 }},
		{"unlimited vertices", func(c *Config) { c.Server.MaxVertices = 0 }},
		{"unlimited body", func(c *Config) { c.Server.MaxBodyBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mut(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvKey(t *testing.T) {
	k, v := envKey("ANNEALCYCLE_LOG_MAX_SIZE", "10")
	assert.Equal(t, "log.max_size", k)
	assert.Equal(t, "10", v)

	k, _ = envKey("ANNEALCYCLE_STORE_REDIS_PASSWORD", "x")
	assert.Equal(t, "store.redis.password", k)
}
