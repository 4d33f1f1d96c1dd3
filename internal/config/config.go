package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// StorageConfig contains database settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// APIConfig contains HTTP API server settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"` // Empty = no authentication
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ListenAddr    string        `yaml:"listen_addr"`    // Default: :9090
	Path          string        `yaml:"path"`           // Default: /metrics
	FlushInterval time.Duration `yaml:"flush_interval"` // Default: 10s
	AllowedIPs    []string      `yaml:"allowed_ips"`    // IPs/CIDRs allowed to scrape
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// WorkflowConfig contains pipeline settings
type WorkflowConfig struct {
	// Stages seeds the workflow on first run. Ignored once a workflow
	// exists in the database.
	Stages []StageConfig `yaml:"stages"`

	// RemovePolicy decides what happens when a referenced stage is
	// removed: "block" rejects the removal, "reassign" moves affected
	// applications to FallbackStage first.
	RemovePolicy  string `yaml:"remove_policy"`
	FallbackStage string `yaml:"fallback_stage"`
}

// StageConfig is one seed stage
type StageConfig struct {
	Name    string `yaml:"name"`
	Color   string `yaml:"color"`
	Visible *bool  `yaml:"visible"` // Default: true
}

// AnalyticsConfig maps stage names to their conventional roles so
// custom workflows keep working
type AnalyticsConfig struct {
	InterviewStages []string `yaml:"interview_stages"` // Default: [Interview]
	OfferStages     []string `yaml:"offer_stages"`     // Default: [Offer]
}

// Load reads, defaults and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/jobtrail/jobtrail.db"
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.FlushInterval == 0 {
		c.Metrics.FlushInterval = 10 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Workflow.RemovePolicy == "" {
		c.Workflow.RemovePolicy = "block"
	}

	if len(c.Analytics.InterviewStages) == 0 {
		c.Analytics.InterviewStages = []string{"Interview"}
	}
	if len(c.Analytics.OfferStages) == 0 {
		c.Analytics.OfferStages = []string{"Offer"}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	switch c.Workflow.RemovePolicy {
	case "block":
	case "reassign":
		if c.Workflow.FallbackStage == "" {
			return fmt.Errorf("workflow.fallback_stage is required when remove_policy is reassign")
		}
	default:
		return fmt.Errorf("invalid workflow.remove_policy: %s (must be block or reassign)", c.Workflow.RemovePolicy)
	}

	seen := make(map[string]bool)
	for _, s := range c.Workflow.Stages {
		if s.Name == "" {
			return fmt.Errorf("workflow.stages entries must have a name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stage name in workflow.stages: %s", s.Name)
		}
		seen[s.Name] = true
	}

	if len(c.Workflow.Stages) > 0 && c.Workflow.RemovePolicy == "reassign" {
		if !seen[c.Workflow.FallbackStage] {
			return fmt.Errorf("workflow.fallback_stage %q is not in workflow.stages", c.Workflow.FallbackStage)
		}
	}

	return nil
}
