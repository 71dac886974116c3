package services

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pepocero/gestioneducativa-sub000/security"
)

type Config struct {
	Server            ServerConfig            `yaml:"server"`
	RateLimitPolicies map[string]PolicyConfig `yaml:"rate_limit_policies"`
	SecurityLog       SecurityLogConfig       `yaml:"security_log"`
	EventSink         S3SinkConfig            `yaml:"event_sink"`
}

type ServerConfig struct {
	Port      int `yaml:"port"`
	BodyLimit int `yaml:"body_limit"`
}

// PolicyConfig is the yaml shape of a rate-limit policy override.
// Durations are strings ("15m", "1h") since yaml has no duration type.
type PolicyConfig struct {
	MaxAttempts    int    `yaml:"max_attempts"`
	Window         string `yaml:"window"`
	BlockDuration  string `yaml:"block_duration"`
	SkipSuccessful bool   `yaml:"skip_successful"`
	SkipFailed     bool   `yaml:"skip_failed"`
}

// SecurityLogConfig is the yaml shape of the event logger tuning.
type SecurityLogConfig struct {
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval string `yaml:"flush_interval"`
	MaxBuffered   int    `yaml:"max_buffered"`
	MaxRetries    int    `yaml:"max_retries"`
	Console       bool   `yaml:"console"`
}

// LoggerConfig converts the yaml logger tuning to the security package
// config, leaving zero values for the logger's own defaulting.
func (c *Config) LoggerConfig() (security.BufferedLoggerConfig, error) {
	cfg := security.BufferedLoggerConfig{
		BatchSize:   c.SecurityLog.BatchSize,
		MaxBuffered: c.SecurityLog.MaxBuffered,
		MaxRetries:  c.SecurityLog.MaxRetries,
		Console:     c.SecurityLog.Console,
	}
	if c.SecurityLog.FlushInterval != "" {
		interval, err := time.ParseDuration(c.SecurityLog.FlushInterval)
		if err != nil {
			return cfg, fmt.Errorf("security_log.flush_interval: %w", err)
		}
		cfg.FlushInterval = interval
	}
	return cfg, nil
}

func (pc PolicyConfig) policy() (security.Policy, error) {
	p := security.Policy{
		MaxAttempts:    pc.MaxAttempts,
		SkipSuccessful: pc.SkipSuccessful,
		SkipFailed:     pc.SkipFailed,
	}
	if pc.Window != "" {
		window, err := time.ParseDuration(pc.Window)
		if err != nil {
			return p, fmt.Errorf("invalid window: %w", err)
		}
		p.Window = window
	}
	if pc.BlockDuration != "" {
		block, err := time.ParseDuration(pc.BlockDuration)
		if err != nil {
			return p, fmt.Errorf("invalid block_duration: %w", err)
		}
		p.BlockDuration = block
	}
	return p, nil
}

// Policies merges configured per-class overrides over the built-in
// policy table, so a partial config file only touches the classes it
// names.
func (c *Config) Policies() map[security.EndpointClass]security.Policy {
	policies := security.DefaultPolicies()
	for class, pc := range c.RateLimitPolicies {
		p, err := pc.policy()
		if err != nil {
			continue
		}
		policies[security.EndpointClass(class)] = p
	}
	return policies
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      8080,
			BodyLimit: 1 * 1024 * 1024,
		},
		SecurityLog: SecurityLogConfig{Console: true},
	}
}

func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Surface bad policy entries at startup instead of silently keeping
	// defaults at request time.
	for class, pc := range config.RateLimitPolicies {
		if _, err := pc.policy(); err != nil {
			return nil, fmt.Errorf("rate_limit_policies.%s: %w", class, err)
		}
	}
	if _, err := config.LoggerConfig(); err != nil {
		return nil, err
	}

	return config, nil
}
