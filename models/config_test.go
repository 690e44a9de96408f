package models

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("BRIEFPIPE_CONFIG", "")
	t.Setenv("ANALYSIS_API_KEY", "")
	t.Setenv("EMBEDDING_API_KEY", "")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Fetch.Timeout.Std() != 15*time.Second || cfg.Fetch.MaxRetries != 3 {
		t.Errorf("fetch defaults = %+v", cfg.Fetch)
	}
	if cfg.Ingest.DaysBack != 30 {
		t.Errorf("DaysBack = %d, want 30", cfg.Ingest.DaysBack)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	t.Setenv("ANALYSIS_API_KEY", "")
	t.Setenv("EMBEDDING_API_KEY", "")

	yaml := `database:
  path: /tmp/custom.db
fetch:
  timeout: 5s
workers: 8
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Database.Path != "/tmp/custom.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Fetch.Timeout.Std() != 5*time.Second {
		t.Errorf("Timeout = %v", cfg.Fetch.Timeout.Std())
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	// Unspecified fields keep defaults.
	if cfg.Fetch.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default 3", cfg.Fetch.MaxRetries)
	}
}

func TestLoadConfig_APIKeysFromEnvironment(t *testing.T) {
	t.Setenv("BRIEFPIPE_CONFIG", "")
	t.Setenv("ANALYSIS_API_KEY", "analysis-secret")
	t.Setenv("EMBEDDING_API_KEY", "embedding-secret")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Analysis.APIKey != "analysis-secret" {
		t.Errorf("Analysis.APIKey = %q", cfg.Analysis.APIKey)
	}
	if cfg.Embedding.APIKey != "embedding-secret" {
		t.Errorf("Embedding.APIKey = %q", cfg.Embedding.APIKey)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/no/such/config.yaml")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want *ConfigurationError", err)
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	t.Setenv("ANALYSIS_API_KEY", "")
	t.Setenv("EMBEDDING_API_KEY", "")

	yaml := "workers: 0\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for zero workers")
	}
}
