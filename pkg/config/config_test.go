package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":3001", cfg.API.Addr)
	assert.Equal(t, RuntimeNone, cfg.Runtime.Type)
	assert.Equal(t, 30*time.Second, cfg.Timing.FailureThreshold)
	assert.Empty(t, cfg.Journal.Path)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "burrow.yaml")
	content := `
api:
  addr: "127.0.0.1:8080"
runtime:
  type: docker
timing:
  failure_threshold: 45s
  probe_interval: 5s
journal:
  path: /var/lib/burrow/events.db
kafka:
  brokers: ["localhost:9092"]
strict: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:8080", cfg.API.Addr)
	assert.Equal(t, RuntimeDocker, cfg.Runtime.Type)
	assert.Equal(t, 45*time.Second, cfg.Timing.FailureThreshold)
	assert.Equal(t, 5*time.Second, cfg.Timing.ProbeInterval)
	assert.Equal(t, "/var/lib/burrow/events.db", cfg.Journal.Path)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Strict)

	// Unset fields keep their defaults
	assert.Equal(t, ":3002", cfg.API.GRPCAddr)
	assert.Equal(t, 10*time.Second, cfg.Timing.RetryInterval)
	assert.Equal(t, "burrow-events", cfg.Kafka.Topic)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [not, a, map"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BURROW_API_ADDR", "")
	t.Setenv("BURROW_RUNTIME", "containerd")
	t.Setenv("BURROW_LOG_LEVEL", "debug")
	t.Setenv("PORT", "4000")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, ":4000", cfg.API.Addr)
	assert.Equal(t, RuntimeContainerd, cfg.Runtime.Type)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnvPortKeepsHost(t *testing.T) {
	t.Setenv("BURROW_API_ADDR", "127.0.0.1:3001")
	t.Setenv("PORT", "5000")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, "127.0.0.1:5000", cfg.API.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "bad api addr",
			mutate: func(c *Config) { c.API.Addr = "nohostport" },
			want:   "api.addr",
		},
		{
			name:   "bad grpc addr",
			mutate: func(c *Config) { c.API.GRPCAddr = "nope" },
			want:   "api.grpc_addr",
		},
		{
			name:   "unknown runtime",
			mutate: func(c *Config) { c.Runtime.Type = "podman" },
			want:   "runtime.type",
		},
		{
			name:   "zero threshold",
			mutate: func(c *Config) { c.Timing.FailureThreshold = 0 },
			want:   "timing.failure_threshold",
		},
		{
			name:   "no fallback attempts",
			mutate: func(c *Config) { c.API.PortFallback = 0 },
			want:   "api.port_fallback",
		},
		{
			name: "kafka without topic",
			mutate: func(c *Config) {
				c.Kafka.Brokers = []string{"localhost:9092"}
				c.Kafka.Topic = ""
			},
			want: "kafka.topic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateDisabledGRPC(t *testing.T) {
	cfg := Default()
	cfg.API.GRPCAddr = ""
	assert.NoError(t, cfg.Validate())
}
