package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Runtime backends accepted by RuntimeConfig.Type
const (
	RuntimeNone       = "none"
	RuntimeDocker     = "docker"
	RuntimeContainerd = "containerd"
)

// Config is the control plane configuration
type Config struct {
	API     APIConfig     `yaml:"api"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Timing  TimingConfig  `yaml:"timing"`
	Log     LogConfig     `yaml:"log"`
	Journal JournalConfig `yaml:"journal"`
	Kafka   KafkaConfig   `yaml:"kafka"`

	// Strict panics on any cluster invariant violation
	Strict bool `yaml:"strict"`
}

// APIConfig configures the HTTP and gRPC listeners
type APIConfig struct {
	Addr         string `yaml:"addr"`
	GRPCAddr     string `yaml:"grpc_addr"` // empty disables the gRPC health service
	PortFallback int    `yaml:"port_fallback"`
}

// RuntimeConfig selects the node container backend
type RuntimeConfig struct {
	Type      string `yaml:"type"`
	Socket    string `yaml:"socket"` // containerd only
	Namespace string `yaml:"namespace"`
	Image     string `yaml:"image"` // empty selects the backend default
}

// TimingConfig holds the background loop intervals
type TimingConfig struct {
	ProbeInterval    time.Duration `yaml:"probe_interval"`
	RetryInterval    time.Duration `yaml:"retry_interval"`
	FailureThreshold time.Duration `yaml:"failure_threshold"`
	MetricsInterval  time.Duration `yaml:"metrics_interval"`
}

// LogConfig configures the global logger
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// JournalConfig configures the bbolt event journal. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// KafkaConfig configures the Kafka event sink. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		API: APIConfig{
			Addr:         ":3001",
			GRPCAddr:     ":3002",
			PortFallback: 10,
		},
		Runtime: RuntimeConfig{
			Type:      RuntimeNone,
			Socket:    "/run/containerd/containerd.sock",
			Namespace: "burrow",
		},
		Timing: TimingConfig{
			ProbeInterval:    10 * time.Second,
			RetryInterval:    10 * time.Second,
			FailureThreshold: 30 * time.Second,
			MetricsInterval:  15 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Kafka: KafkaConfig{
			Topic: "burrow-events",
		},
	}
}

// Load reads a YAML file over the defaults. Fields absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides the configuration from environment variables.
// PORT only replaces the port of the API address.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("BURROW_API_ADDR"); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv("PORT"); v != "" {
		host, _, err := net.SplitHostPort(c.API.Addr)
		if err != nil {
			host = ""
		}
		c.API.Addr = net.JoinHostPort(host, v)
	}
	if v := os.Getenv("BURROW_RUNTIME"); v != "" {
		c.Runtime.Type = v
	}
	if v := os.Getenv("BURROW_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration and returns every problem found
func (c *Config) Validate() error {
	var errs []error

	if _, _, err := net.SplitHostPort(c.API.Addr); err != nil {
		errs = append(errs, fmt.Errorf("api.addr %q: %w", c.API.Addr, err))
	}
	if c.API.GRPCAddr != "" {
		if _, _, err := net.SplitHostPort(c.API.GRPCAddr); err != nil {
			errs = append(errs, fmt.Errorf("api.grpc_addr %q: %w", c.API.GRPCAddr, err))
		}
	}
	if c.API.PortFallback < 1 {
		errs = append(errs, errors.New("api.port_fallback must be at least 1"))
	}

	switch c.Runtime.Type {
	case RuntimeNone, RuntimeDocker, RuntimeContainerd:
	default:
		errs = append(errs, fmt.Errorf("runtime.type %q must be one of %s", c.Runtime.Type,
			strings.Join([]string{RuntimeNone, RuntimeDocker, RuntimeContainerd}, ", ")))
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"timing.probe_interval", c.Timing.ProbeInterval},
		{"timing.retry_interval", c.Timing.RetryInterval},
		{"timing.failure_threshold", c.Timing.FailureThreshold},
		{"timing.metrics_interval", c.Timing.MetricsInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", d.name))
		}
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}

	return errors.Join(errs...)
}
