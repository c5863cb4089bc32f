// Package config loads duelsync settings: built-in defaults, then an
// optional YAML file, then DUELSYNC_* environment variables. Command-line
// flags are applied last by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultPageSize = 100
	DefaultLimit    = 1000
	DefaultTimeout  = 30 * time.Second
)

// Config is the resolved configuration.
type Config struct {
	// IndexerURL is the base URL of a remote indexer. Empty selects the
	// local SQLite indexer at Database.
	IndexerURL string `yaml:"indexer_url" env:"DUELSYNC_INDEXER_URL"`
	Database   string `yaml:"database" env:"DUELSYNC_DATABASE"`

	PageSize int `yaml:"page_size" env:"DUELSYNC_PAGE_SIZE"`
	Limit    int `yaml:"limit" env:"DUELSYNC_LIMIT"`

	// TableID scopes hydration to one season table.
	TableID string `yaml:"table_id" env:"DUELSYNC_TABLE_ID"`

	// MetricsAddr serves /metrics from the watch command when set.
	MetricsAddr string `yaml:"metrics_addr" env:"DUELSYNC_METRICS_ADDR"`

	Timeout time.Duration `yaml:"timeout" env:"DUELSYNC_TIMEOUT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: "duelsync.db",
		PageSize: DefaultPageSize,
		Limit:    DefaultLimit,
		Timeout:  DefaultTimeout,
	}
}

// Load resolves the configuration from path (optional) and the process
// environment.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, nil)
}

// LoadWithEnv is Load with an explicit environment. A nil environ reads the
// process environment.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page_size must be positive, got %d", c.PageSize))
	}
	if c.Limit > 0 && c.Limit < c.PageSize {
		errs = append(errs, fmt.Errorf("limit %d is smaller than page_size %d", c.Limit, c.PageSize))
	}
	if c.IndexerURL == "" && c.Database == "" {
		errs = append(errs, errors.New("either indexer_url or database is required"))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	return errors.Join(errs...)
}

// Remote reports whether the configuration points at a remote indexer.
func (c Config) Remote() bool {
	return c.IndexerURL != ""
}
