package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoad(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		configContent := `
server:
  listen: ":9090"
  timeout: 45s

database:
  dsn: "file:test.db?mode=rwc"

ingestion:
  interval: 2m
  worker_limit: 5
  max_attempts: 4
  stale_after: 48h
  rescore_debounce: 10s

fetch:
  timeout: 10s
  user_agent: discovery-test

youtube:
  max_results: 10
`
		configPath := filepath.Join(t.TempDir(), "test-config.yml")
		require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o600))

		cfg, err := Load(configPath)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, ":9090", cfg.Server.Listen)
		assert.Equal(t, 45*time.Second, cfg.Server.Timeout)
		assert.Equal(t, "file:test.db?mode=rwc", cfg.Database.DSN)
		assert.Equal(t, 2*time.Minute, cfg.Ingestion.Interval)
		assert.Equal(t, 5, cfg.Ingestion.WorkerLimit)
		assert.Equal(t, 20, cfg.Ingestion.BatchSize, "batch defaults to worker_limit*4")
		assert.Equal(t, 4, cfg.Ingestion.MaxAttempts)
		assert.Equal(t, 48*time.Hour, cfg.Ingestion.StaleAfter)
		assert.Equal(t, 10*time.Second, cfg.Ingestion.RescoreDebounce)
		assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
		assert.Equal(t, "discovery-test", cfg.Fetch.UserAgent)
		assert.Equal(t, 10, cfg.YouTube.MaxResults)
	})

	t.Run("no file means defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.Listen)
	})

	t.Run("file not found", func(t *testing.T) {
		cfg, err := Load("/non/existent/file.yml")
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "read config file")
	})
}

func TestParse(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Parse(nil, envMap(nil))
		require.NoError(t, err)

		assert.Equal(t, ":8080", cfg.Server.Listen)
		assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
		assert.Equal(t, "file:discovery.db?mode=rwc", cfg.Database.DSN)
		assert.Equal(t, time.Hour, cfg.ConnMaxLifetime())

		ing := cfg.Ingestion
		assert.Equal(t, time.Minute, ing.Interval)
		assert.Equal(t, 3, ing.WorkerLimit)
		assert.Equal(t, 12, ing.BatchSize)
		assert.Equal(t, 3, ing.MaxAttempts)
		assert.Equal(t, 15, ing.MaxRetryDelayMinutes)
		assert.Equal(t, 15*time.Minute, ing.StaleInterval)
		assert.Equal(t, 24*time.Hour, ing.StaleAfter)
		assert.Equal(t, 5*time.Minute, ing.RescoreInterval)
		assert.Equal(t, 30*time.Second, ing.RescoreDebounce)
		assert.Equal(t, 100, ing.RescoreBatch)

		assert.Equal(t, "https://youtube.googleapis.com/", cfg.YouTube.BaseURL)
		assert.Equal(t, 25, cfg.YouTube.MaxResults)
		assert.Empty(t, cfg.YouTube.APIKey)
		assert.Equal(t, 256, cfg.Events.BufferSize)
	})

	t.Run("environment overrides", func(t *testing.T) {
		cfg, err := Parse([]byte("ingestion:\n  worker_limit: 2\n"), envMap(map[string]string{
			EnvWorkerLimit:      "6",
			EnvMaxAttempts:      "5",
			EnvMaxRetryDelay:    "30",
			EnvYouTubeAPIKey:    "secret-key",
			EnvYouTubeBaseURL:   "http://localhost:9999/",
			EnvYouTubeMaxResult: "80",
		}))
		require.NoError(t, err)
		assert.Equal(t, 6, cfg.Ingestion.WorkerLimit)
		assert.Equal(t, 24, cfg.Ingestion.BatchSize)
		assert.Equal(t, 5, cfg.Ingestion.MaxAttempts)
		assert.Equal(t, 30, cfg.Ingestion.MaxRetryDelayMinutes)
		assert.Equal(t, "secret-key", cfg.YouTube.APIKey)
		assert.Equal(t, "http://localhost:9999/", cfg.YouTube.BaseURL)
		assert.Equal(t, 50, cfg.YouTube.MaxResults, "clamped to api limit")
	})

	t.Run("invalid environment values are ignored", func(t *testing.T) {
		cfg, err := Parse([]byte("ingestion:\n  worker_limit: 2\n"), envMap(map[string]string{
			EnvWorkerLimit: "many",
			EnvBatchSize:   "-1",
			EnvMaxAttempts: "0",
		}))
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Ingestion.WorkerLimit)
		assert.Equal(t, 8, cfg.Ingestion.BatchSize)
		assert.Equal(t, 3, cfg.Ingestion.MaxAttempts)
	})

	t.Run("variables expanded in file", func(t *testing.T) {
		cfg, err := Parse([]byte("youtube:\n  api_key: ${YT_KEY}\n"), envMap(map[string]string{"YT_KEY": "from-env"}))
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.YouTube.APIKey)
	})

	t.Run("invalid values", func(t *testing.T) {
		tests := []struct {
			name   string
			yaml   string
			errMsg string
		}{
			{name: "short server timeout", yaml: "server:\n  timeout: 100ms\n", errMsg: "server timeout"},
			{name: "stale window within interval", yaml: "ingestion:\n  interval: 2h\n  stale_after: 1h\n", errMsg: "stale_after"},
			{name: "negative workers", yaml: "ingestion:\n  worker_limit: -1\n", errMsg: "worker_limit"},
			{name: "short fetch timeout", yaml: "fetch:\n  timeout: 10ms\n", errMsg: "fetch timeout"},
			{name: "negative body length", yaml: "fetch:\n  max_body_length: -5\n", errMsg: "max_body_length"},
			{name: "broken yaml", yaml: "server: [", errMsg: "parse config"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Parse([]byte(tt.yaml), envMap(nil))
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			})
		}
	})
}

func TestConfig_GetServerConfig(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  listen: \":7070\"\n  timeout: 5s\n"), envMap(nil))
	require.NoError(t, err)
	listen, timeout := cfg.GetServerConfig()
	assert.Equal(t, ":7070", listen)
	assert.Equal(t, 5*time.Second, timeout)
}
