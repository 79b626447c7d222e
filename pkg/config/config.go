package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/yaml.v3"

	"github.com/burrowlabs/burrow/pkg/types"
)

// Defaults
const (
	DefaultSessionTTL     = 15
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = 250 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
)

// RetryConfig defines the bounded connect retry policy
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	Policy         string        `yaml:"policy"` // "exponential" or "fixed"
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// Backoff builds the backoff policy described by the config
func (r RetryConfig) Backoff() backoff.BackOff {
	if r.Policy == "fixed" {
		return backoff.NewConstantBackOff(r.InitialBackoff)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialBackoff
	b.MaxInterval = r.MaxBackoff
	b.MaxElapsedTime = 0 // bounded by attempts, not wall time
	return b
}

// Config is the full node configuration
type Config struct {
	Cluster types.ClusterIdentity `yaml:"cluster"`
	Node    types.NodeIdentity    `yaml:"node"`

	Etcd struct {
		Endpoints  []string `yaml:"endpoints"`
		SessionTTL int      `yaml:"session_ttl"`
		Username   string   `yaml:"username"`
		Password   string   `yaml:"password"`
	} `yaml:"etcd"`

	Retry RetryConfig `yaml:"retry"`

	DataDir     string `yaml:"data_dir"`     // enables the persistent message journal
	MetricsAddr string `yaml:"metrics_addr"` // enables the /metrics endpoint
	LogLevel    string `yaml:"log_level"`
	LogJSON     bool   `yaml:"log_json"`
}

// Default returns a config with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.Etcd.Endpoints = []string{"localhost:2379"}
	cfg.Etcd.SessionTTL = DefaultSessionTTL
	cfg.Retry = RetryConfig{
		MaxAttempts:    DefaultMaxAttempts,
		Policy:         "exponential",
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
	cfg.LogLevel = "info"
	return cfg
}

// Load reads a YAML config file over the defaults
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Etcd.Endpoints) == 0 {
		c.Etcd.Endpoints = []string{"localhost:2379"}
	}
	if c.Etcd.SessionTTL <= 0 {
		c.Etcd.SessionTTL = DefaultSessionTTL
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.Policy == "" {
		c.Retry.Policy = "exponential"
	}
	if c.Retry.InitialBackoff <= 0 {
		c.Retry.InitialBackoff = DefaultInitialBackoff
	}
	if c.Retry.MaxBackoff <= 0 {
		c.Retry.MaxBackoff = DefaultMaxBackoff
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the config for contradictions
func (c *Config) Validate() error {
	if c.Cluster.ClusterName == "" {
		return fmt.Errorf("cluster.cluster_name is required")
	}
	switch c.Node.Role {
	case types.RoleController, types.RoleParticipant, "":
	default:
		return fmt.Errorf("node.role must be %q or %q, got %q",
			types.RoleController, types.RoleParticipant, c.Node.Role)
	}
	switch c.Retry.Policy {
	case "exponential", "fixed":
	default:
		return fmt.Errorf("retry.policy must be \"exponential\" or \"fixed\", got %q", c.Retry.Policy)
	}
	return nil
}
