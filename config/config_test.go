package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 9090
  timeout: 5s
  allowed_origins: ["https://clinic.example"]
database:
  path: data/test.db
ml:
  model_path: models/chd.json
  cache_size: 16
events:
  kafka_brokers: ["localhost:9092"]
ui:
  default_lang: en
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 || cfg.HTTP.Timeout != 5*time.Second {
		t.Fatalf("unexpected http config: %+v", cfg.HTTP)
	}
	if len(cfg.HTTP.AllowedOrigins) != 1 || cfg.HTTP.AllowedOrigins[0] != "https://clinic.example" {
		t.Fatalf("unexpected origins: %v", cfg.HTTP.AllowedOrigins)
	}
	dir := filepath.Dir(path)
	if cfg.Database.Path != filepath.Join(dir, "data", "test.db") {
		t.Fatalf("database path not resolved against config dir: %s", cfg.Database.Path)
	}
	if cfg.ML.ModelPath != filepath.Join(dir, "models", "chd.json") || cfg.ML.CacheSize != 16 {
		t.Fatalf("unexpected ml config: %+v", cfg.ML)
	}
	if cfg.ML.ModelType != "pca_logistic" {
		t.Fatalf("default model type not kept: %q", cfg.ML.ModelType)
	}
	if cfg.Events.KafkaTopic != "chd-assessments" || cfg.UI.DefaultLang != "en" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "http:\n  port: 9090\n")
	t.Setenv("CHDRISK_HTTP_PORT", "7000")
	t.Setenv("CHDRISK_ML_MODEL_PATH", "/srv/models/chd.json")
	t.Setenv("CHDRISK_EVENTS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CHDRISK_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 7000 {
		t.Fatalf("expected env port, got %d", cfg.HTTP.Port)
	}
	if cfg.ML.ModelPath != "/srv/models/chd.json" {
		t.Fatalf("expected env model path, got %s", cfg.ML.ModelPath)
	}
	if len(cfg.Events.KafkaBrokers) != 2 || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "http: [not, a, map")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, false},
		{"no artifact", func(c *Config) { c.ML.ModelPath = "" }, false},
		{"s3 artifact", func(c *Config) { c.ML.ModelPath = ""; c.ML.S3Bucket = "models"; c.ML.S3Key = "chd.json" }, true},
		{"half s3", func(c *Config) { c.ML.S3Bucket = "models" }, false},
		{"watch s3", func(c *Config) { c.ML.S3Bucket = "models"; c.ML.S3Key = "chd.json"; c.ML.Watch = true }, false},
		{"unknown model", func(c *Config) { c.ML.ModelType = "decision_tree" }, false},
		{"negative cache", func(c *Config) { c.ML.CacheSize = -1 }, false},
		{"brokers without topic", func(c *Config) { c.Events.KafkaBrokers = []string{"k:9092"}; c.Events.KafkaTopic = "" }, false},
		{"no database", func(c *Config) { c.Database.Path = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
