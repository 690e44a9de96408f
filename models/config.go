// Package models defines the data structures shared across pipeline stages.
package models

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigurationError indicates the config file or environment is unusable.
// The CLI treats it as fatal at startup rather than at first use.
type ConfigurationError struct {
	Path   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Path, e.Reason)
}

// Duration is a time.Duration that unmarshals from YAML strings like "15s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full runtime configuration, loaded from YAML with
// environment overrides for secrets.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Workers   int             `yaml:"workers"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// FetchConfig holds the retry and pacing knobs for article fetching.
type FetchConfig struct {
	Timeout        Duration `yaml:"timeout"`
	MaxRetries     int      `yaml:"max_retries"`
	RateLimitDelay Duration `yaml:"rate_limit_delay"`
	UserAgent      string   `yaml:"user_agent"`
}

type AnalysisConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"-"`
	MaxChars  int    `yaml:"max_chars"`
	MaxTokens int    `yaml:"max_tokens"`
}

type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"-"`
	MaxChars  int    `yaml:"max_chars"`
	BatchSize int    `yaml:"batch_size"`
}

type IngestConfig struct {
	DaysBack  int  `yaml:"days_back"`
	FetchFull bool `yaml:"fetch_full"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "briefpipe.db"},
		Fetch: FetchConfig{
			Timeout:        Duration(15 * time.Second),
			MaxRetries:     3,
			RateLimitDelay: Duration(time.Second),
		},
		Analysis: AnalysisConfig{
			BaseURL:   "https://api.anthropic.com",
			Model:     "claude-sonnet-4-20250514",
			MaxChars:  40000,
			MaxTokens: 4096,
		},
		Embedding: EmbeddingConfig{
			BaseURL:   "https://api.openai.com",
			Model:     "text-embedding-3-small",
			MaxChars:  30000,
			BatchSize: 10,
		},
		Ingest:  IngestConfig{DaysBack: 30, FetchFull: true},
		Workers: 4,
	}
}

// LoadConfig reads the YAML file at path, falling back to BRIEFPIPE_CONFIG
// and then to defaults when path is empty. API keys always come from the
// environment (ANALYSIS_API_KEY, EMBEDDING_API_KEY), never from the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("BRIEFPIPE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigurationError{Path: path, Reason: err.Error()}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigurationError{Path: path, Reason: fmt.Sprintf("invalid YAML: %v", err)}
		}
	}

	cfg.Analysis.APIKey = os.Getenv("ANALYSIS_API_KEY")
	cfg.Embedding.APIKey = os.Getenv("EMBEDDING_API_KEY")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return &ConfigurationError{Reason: "database.path cannot be empty"}
	}
	if c.Workers < 1 {
		return &ConfigurationError{Reason: "workers must be at least 1"}
	}
	if c.Fetch.MaxRetries < 0 {
		return &ConfigurationError{Reason: "fetch.max_retries cannot be negative"}
	}
	if c.Embedding.BatchSize < 1 {
		return &ConfigurationError{Reason: "embedding.batch_size must be at least 1"}
	}
	return nil
}
