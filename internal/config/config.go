// Package config holds the YAML-backed configuration for the analyzer:
// reasoning and search service credentials, analysis tuning, ingest and
// logging settings. Environment variables override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all analyzer configuration.
type Config struct {
	// Reasoning service
	Reasoning ReasoningConfig `yaml:"reasoning"`

	// Search service
	Search SearchConfig `yaml:"search"`

	// Analysis tuning
	Analysis AnalysisConfig `yaml:"analysis"`

	// CI log ingest
	Ingest IngestConfig `yaml:"ingest"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ReasoningConfig configures the reasoning service provider.
type ReasoningConfig struct {
	Provider string `yaml:"provider"` // gemini, anthropic
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// SearchConfig configures the web search service.
type SearchConfig struct {
	APIKey      string `yaml:"api_key"`
	Depth       string `yaml:"depth"` // basic, advanced
	Timeout     string `yaml:"timeout"`
	EnrichPages bool   `yaml:"enrich_pages"`
}

// AnalysisConfig tunes one analysis run.
type AnalysisConfig struct {
	MaxCandidates  int    `yaml:"max_candidates"`
	MaxRetries     int    `yaml:"max_retries"`
	CallTimeout    string `yaml:"call_timeout"`
	MaxInputBytes  int    `yaml:"max_input_bytes"`
	LogExcerptSize int    `yaml:"log_excerpt_size"`
}

// IngestConfig configures CI log retrieval.
type IngestConfig struct {
	GitHubToken string `yaml:"github_token"`
	Timeout     string `yaml:"timeout"`
}

// LoggingConfig configures the category file loggers.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Reasoning: ReasoningConfig{
			Provider: "gemini",
			Timeout:  "2m",
		},
		Search: SearchConfig{
			Depth:       "advanced",
			Timeout:     "30s",
			EnrichPages: false,
		},
		Analysis: AnalysisConfig{
			MaxCandidates:  3,
			MaxRetries:     2,
			CallTimeout:    "60s",
			MaxInputBytes:  4 << 20,
			LogExcerptSize: 10000,
		},
		Ingest: IngestConfig{
			Timeout: "60s",
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// DefaultPath returns the default config location, .debrief/config.yaml in
// the working directory.
func DefaultPath() string {
	return filepath.Join(".debrief", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields defaults;
// environment variables override file values either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.Reasoning.Provider == "gemini" {
		c.Reasoning.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && c.Reasoning.Provider == "anthropic" {
		c.Reasoning.APIKey = key
	}
	// No key in file: fall back to whichever provider has one in the env.
	if c.Reasoning.APIKey == "" {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.Reasoning.Provider = "gemini"
			c.Reasoning.APIKey = key
		} else if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			c.Reasoning.Provider = "anthropic"
			c.Reasoning.APIKey = key
		}
	}
	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		c.Search.APIKey = key
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		c.Ingest.GitHubToken = token
	}
}

// GetReasoningTimeout parses the reasoning timeout with a safe fallback.
func (c *Config) GetReasoningTimeout() time.Duration {
	return parseDuration(c.Reasoning.Timeout, 2*time.Minute)
}

// GetSearchTimeout parses the search timeout with a safe fallback.
func (c *Config) GetSearchTimeout() time.Duration {
	return parseDuration(c.Search.Timeout, 30*time.Second)
}

// GetCallTimeout parses the per-stage call timeout with a safe fallback.
func (c *Config) GetCallTimeout() time.Duration {
	return parseDuration(c.Analysis.CallTimeout, 60*time.Second)
}

// GetIngestTimeout parses the ingest timeout with a safe fallback.
func (c *Config) GetIngestTimeout() time.Duration {
	return parseDuration(c.Ingest.Timeout, 60*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Reasoning.Provider {
	case "gemini", "anthropic":
	default:
		return fmt.Errorf("unknown reasoning provider: %q", c.Reasoning.Provider)
	}
	if c.Analysis.MaxCandidates < 1 {
		return fmt.Errorf("analysis.max_candidates must be at least 1")
	}
	if c.Analysis.MaxRetries < 0 {
		return fmt.Errorf("analysis.max_retries must not be negative")
	}
	return nil
}
