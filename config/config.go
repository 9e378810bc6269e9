// Package config loads config.yaml and applies CHDRISK_* environment
// overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"chdrisk/logging"
	"chdrisk/ml"
)

const (
	DefaultPath = "config.yaml"
	EnvPrefix   = "CHDRISK_"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http" envPrefix:"HTTP_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Log      logging.Config `yaml:"log" envPrefix:"LOG_"`
	ML       MLConfig       `yaml:"ml" envPrefix:"ML_"`
	Events   EventsConfig   `yaml:"events" envPrefix:"EVENTS_"`
	UI       UIConfig       `yaml:"ui" envPrefix:"UI_"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port" env:"PORT"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

type MLConfig struct {
	ModelType string `yaml:"model_type" env:"MODEL_TYPE"`
	ModelPath string `yaml:"model_path" env:"MODEL_PATH"`
	S3Bucket  string `yaml:"s3_bucket" env:"S3_BUCKET"`
	S3Key     string `yaml:"s3_key" env:"S3_KEY"`
	Watch     bool   `yaml:"watch" env:"WATCH"`
	CacheSize int    `yaml:"cache_size" env:"CACHE_SIZE"`
}

// UsesS3 reports whether the artifact comes from S3 instead of disk.
func (c MLConfig) UsesS3() bool {
	return c.S3Bucket != "" && c.S3Key != ""
}

type EventsConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers" env:"KAFKA_BROKERS"`
	KafkaTopic   string   `yaml:"kafka_topic" env:"KAFKA_TOPIC"`
}

type UIConfig struct {
	DefaultLang string `yaml:"default_lang" env:"DEFAULT_LANG"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{Path: "data/chdrisk.db"},
		Log: logging.Config{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		ML: MLConfig{
			ModelType: ml.ModelTypePCALogistic,
			ModelPath: "models/chd_model.json",
			CacheSize: 1024,
		},
		Events: EventsConfig{KafkaTopic: "chd-assessments"},
		UI:     UIConfig{DefaultLang: "fr"},
	}
}

// Load reads path, or config.yaml (then ../config.yaml, for runs from cmd/)
// when path is empty. A missing default file is not an error. Relative paths
// in the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = resolveDefaultPath()
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveDefaultPath() string {
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	fallback := filepath.Join("..", DefaultPath)
	if _, err := os.Stat(fallback); err == nil {
		return fallback
	}
	return ""
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for _, p := range []*string{&c.Database.Path, &c.ML.ModelPath, &c.Log.File} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be in 1..65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative")
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.ML.ModelType != "" && !ml.SupportedModelType(c.ML.ModelType) {
		return fmt.Errorf("ml.model_type %q is not supported", c.ML.ModelType)
	}
	if c.ML.ModelPath == "" && !c.ML.UsesS3() {
		return errors.New("ml.model_path or ml.s3_bucket and ml.s3_key are required")
	}
	if (c.ML.S3Bucket == "") != (c.ML.S3Key == "") {
		return errors.New("ml.s3_bucket and ml.s3_key must be set together")
	}
	if c.ML.Watch && c.ML.UsesS3() {
		return errors.New("ml.watch only applies to a local model_path")
	}
	if c.ML.CacheSize < 0 {
		return fmt.Errorf("ml.cache_size must not be negative")
	}
	if len(c.Events.KafkaBrokers) > 0 && c.Events.KafkaTopic == "" {
		return errors.New("events.kafka_topic is required when kafka_brokers is set")
	}
	return nil
}
