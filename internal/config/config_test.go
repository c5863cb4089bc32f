package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "duelsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadWithEnv("", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.Remote())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
indexer_url: http://torii.local:8080
page_size: 50
limit: 500
table_id: Season1
timeout: 5s
`)
	cfg, err := LoadWithEnv(path, map[string]string{
		"DUELSYNC_PAGE_SIZE": "25",
		"DUELSYNC_DATABASE":  "/tmp/x.db",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://torii.local:8080", cfg.IndexerURL)
	assert.Equal(t, 25, cfg.PageSize, "env overrides the file")
	assert.Equal(t, 500, cfg.Limit)
	assert.Equal(t, "Season1", cfg.TableID)
	assert.Equal(t, "/tmp/x.db", cfg.Database)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.True(t, cfg.Remote())
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := LoadWithEnv(writeConfig(t, "\n"), map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		environ map[string]string
		want    string
	}{
		{"unknown field", "page_sise: 3\n", map[string]string{}, "parse config"},
		{"bad yaml", "page_size: [\n", map[string]string{}, "parse config"},
		{"bad env int", "", map[string]string{"DUELSYNC_LIMIT": "lots"}, "parse env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWithEnv(writeConfig(t, tt.body), tt.environ)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"), map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero page size", func(c *Config) { c.PageSize = 0 }, "page_size must be positive"},
		{"limit below page", func(c *Config) { c.Limit = 10 }, "smaller than page_size"},
		{"no source", func(c *Config) { c.Database = "" }, "indexer_url or database"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	unlimited := Default()
	unlimited.Limit = 0
	assert.NoError(t, unlimited.Validate(), "zero limit means unlimited")
}
