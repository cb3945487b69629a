package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-pkgz/lgr"
	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// environment overrides, applied on top of the file
const (
	EnvWorkerLimit      = "DISCOVERY_WORKER_LIMIT"
	EnvBatchSize        = "DISCOVERY_BATCH_SIZE"
	EnvMaxAttempts      = "DISCOVERY_MAX_ATTEMPTS"
	EnvMaxRetryDelay    = "DISCOVERY_MAX_RETRY_DELAY_MINUTES"
	EnvYouTubeAPIKey    = "YOUTUBE_API_KEY"
	EnvYouTubeBaseURL   = "YOUTUBE_API_BASE_URL"
	EnvYouTubeMaxResult = "YOUTUBE_MAX_RESULTS"
)

const maxYouTubeResults = 50

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Database struct {
		DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:discovery.db?mode=rwc,description=Database connection string"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	Ingestion IngestionConfig `yaml:"ingestion" json:"ingestion" jsonschema:"description=Ingestion scheduling configuration"`

	Fetch FetchConfig `yaml:"fetch" json:"fetch" jsonschema:"description=HTTP fetching configuration for page and feed sources"`

	YouTube YouTubeConfig `yaml:"youtube" json:"youtube" jsonschema:"description=YouTube Data API configuration"`

	Events struct {
		BufferSize int `yaml:"buffer_size" json:"buffer_size" jsonschema:"default=256,minimum=1,description=Event bus queue size"`
	} `yaml:"events" json:"events" jsonschema:"description=Event bus configuration"`
}

// IngestionConfig holds coordinator and scheduler settings
type IngestionConfig struct {
	Interval             time.Duration `yaml:"interval" json:"interval" jsonschema:"default=1m,description=Interval between ingestion passes"`
	WorkerLimit          int           `yaml:"worker_limit" json:"worker_limit" jsonschema:"default=3,minimum=1,description=Sources processed concurrently"`
	BatchSize            int           `yaml:"batch_size" json:"batch_size" jsonschema:"description=Due sources per pass, worker_limit*4 if not set"`
	MaxAttempts          int           `yaml:"max_attempts" json:"max_attempts" jsonschema:"default=3,minimum=1,description=Fetch attempts per source and pass"`
	MaxRetryDelayMinutes int           `yaml:"max_retry_delay_minutes" json:"max_retry_delay_minutes" jsonschema:"default=15,minimum=1,description=Cap of the retry delay in minutes"`
	StaleInterval        time.Duration `yaml:"stale_interval" json:"stale_interval" jsonschema:"default=15m,description=Interval between stale scans"`
	StaleAfter           time.Duration `yaml:"stale_after" json:"stale_after" jsonschema:"default=24h,description=Sources without a completed fetch for this long are stale"`
	RescoreInterval      time.Duration `yaml:"rescore_interval" json:"rescore_interval" jsonschema:"default=5m,description=Interval between pending rescore passes"`
	RescoreDebounce      time.Duration `yaml:"rescore_debounce" json:"rescore_debounce" jsonschema:"default=30s,description=Debounce window of triggered rescore passes"`
	RescoreBatch         int           `yaml:"rescore_batch" json:"rescore_batch" jsonschema:"default=100,minimum=1,description=Pending items per rescore pass"`
}

// FetchConfig holds HTTP fetching settings
type FetchConfig struct {
	Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Request timeout"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent" jsonschema:"description=User agent for HTTP requests, browser-like if empty"`
	MaxBodyLength int           `yaml:"max_body_length" json:"max_body_length" jsonschema:"default=20000,minimum=0,description=Max characters of extracted body text, 0 for no limit"`
}

// YouTubeConfig holds YouTube Data API settings
type YouTubeConfig struct {
	APIKey     string `yaml:"api_key" json:"api_key" jsonschema:"description=API key (can use environment variable)"`
	BaseURL    string `yaml:"base_url" json:"base_url" jsonschema:"default=https://youtube.googleapis.com/,description=API endpoint"`
	MaxResults int    `yaml:"max_results" json:"max_results" jsonschema:"default=25,minimum=1,maximum=50,description=Videos per channel or playlist fetch"`
}

// LookupFunc returns the value of an environment variable, os.LookupEnv shaped
type LookupFunc func(key string) (string, bool)

// Load reads configuration from a YAML file, empty path means defaults only.
// Environment overrides are applied after the file.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return Parse(data, os.LookupEnv)
}

// Parse makes configuration from YAML data and environment lookup
func Parse(data []byte, lookup LookupFunc) (*Config, error) {
	// expand environment variables
	expanded := os.Expand(string(data), func(key string) string {
		v, _ := lookup(key)
		return v
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(&cfg, lookup)
	setDefaults(&cfg)

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		lgr.Printf("[WARN] schema validation failed: %v", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	// server
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30 * time.Second
	}

	// database
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:discovery.db?mode=rwc"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 3600
	}

	// ingestion
	ing := &cfg.Ingestion
	if ing.Interval == 0 {
		ing.Interval = time.Minute
	}
	if ing.WorkerLimit == 0 {
		ing.WorkerLimit = 3
	}
	if ing.BatchSize == 0 {
		ing.BatchSize = ing.WorkerLimit * 4
	}
	if ing.MaxAttempts == 0 {
		ing.MaxAttempts = 3
	}
	if ing.MaxRetryDelayMinutes == 0 {
		ing.MaxRetryDelayMinutes = 15
	}
	if ing.StaleInterval == 0 {
		ing.StaleInterval = 15 * time.Minute
	}
	if ing.StaleAfter == 0 {
		ing.StaleAfter = 24 * time.Hour
	}
	if ing.RescoreInterval == 0 {
		ing.RescoreInterval = 5 * time.Minute
	}
	if ing.RescoreDebounce == 0 {
		ing.RescoreDebounce = 30 * time.Second
	}
	if ing.RescoreBatch == 0 {
		ing.RescoreBatch = 100
	}

	// fetch
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = 30 * time.Second
	}
	if cfg.Fetch.MaxBodyLength == 0 {
		cfg.Fetch.MaxBodyLength = 20000
	}

	// youtube
	if cfg.YouTube.BaseURL == "" {
		cfg.YouTube.BaseURL = "https://youtube.googleapis.com/"
	}
	if cfg.YouTube.MaxResults == 0 {
		cfg.YouTube.MaxResults = 25
	}
	cfg.YouTube.MaxResults = min(max(cfg.YouTube.MaxResults, 1), maxYouTubeResults)

	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 256
	}
}

// applyEnv overrides file values with environment variables. Invalid values are logged and ignored.
func applyEnv(cfg *Config, lookup LookupFunc) {
	envInt(lookup, EnvWorkerLimit, &cfg.Ingestion.WorkerLimit)
	envInt(lookup, EnvBatchSize, &cfg.Ingestion.BatchSize)
	envInt(lookup, EnvMaxAttempts, &cfg.Ingestion.MaxAttempts)
	envInt(lookup, EnvMaxRetryDelay, &cfg.Ingestion.MaxRetryDelayMinutes)
	envInt(lookup, EnvYouTubeMaxResult, &cfg.YouTube.MaxResults)
	if v, ok := lookup(EnvYouTubeAPIKey); ok && v != "" {
		cfg.YouTube.APIKey = v
	}
	if v, ok := lookup(EnvYouTubeBaseURL); ok && v != "" {
		cfg.YouTube.BaseURL = v
	}
}

// envInt sets *dst from a positive integer variable
func envInt(lookup LookupFunc, key string, dst *int) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		lgr.Printf("[WARN] invalid %s=%q, ignored", key, v)
		return
	}
	*dst = n
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	ing := cfg.Ingestion
	if ing.WorkerLimit < 1 {
		return fmt.Errorf("ingestion.worker_limit must be at least 1")
	}
	if ing.BatchSize < 1 {
		return fmt.Errorf("ingestion.batch_size must be at least 1")
	}
	if ing.MaxAttempts < 1 {
		return fmt.Errorf("ingestion.max_attempts must be at least 1")
	}
	if ing.MaxRetryDelayMinutes < 1 {
		return fmt.Errorf("ingestion.max_retry_delay_minutes must be at least 1")
	}
	if ing.Interval < time.Second {
		return fmt.Errorf("ingestion.interval must be at least 1 second")
	}
	if ing.StaleAfter <= ing.Interval {
		return fmt.Errorf("ingestion.stale_after must be longer than ingestion.interval")
	}
	if ing.RescoreBatch < 1 {
		return fmt.Errorf("ingestion.rescore_batch must be at least 1")
	}

	if cfg.Fetch.Timeout < time.Second {
		return fmt.Errorf("fetch timeout must be at least 1 second")
	}
	if cfg.Fetch.MaxBodyLength < 0 {
		return fmt.Errorf("fetch.max_body_length must be non-negative")
	}
	if cfg.Events.BufferSize < 1 {
		return fmt.Errorf("events.buffer_size must be at least 1")
	}
	return nil
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}

// ConnMaxLifetime returns the database connection lifetime as a duration
func (c *Config) ConnMaxLifetime() time.Duration {
	return time.Duration(c.Database.ConnMaxLifetime) * time.Second
}
