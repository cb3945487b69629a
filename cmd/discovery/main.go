package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/discovery/pkg/config"
	"github.com/umputun/discovery/pkg/domain"
	"github.com/umputun/discovery/pkg/events"
	"github.com/umputun/discovery/pkg/feed"
	"github.com/umputun/discovery/pkg/fetch"
	"github.com/umputun/discovery/pkg/metrics"
	"github.com/umputun/discovery/pkg/page"
	"github.com/umputun/discovery/pkg/repository"
	"github.com/umputun/discovery/pkg/retry"
	"github.com/umputun/discovery/pkg/scheduler"
	"github.com/umputun/discovery/pkg/scoring"
	"github.com/umputun/discovery/pkg/youtube"
	"github.com/umputun/discovery/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"c" long:"config" env:"CONFIG" description:"configuration file, defaults and environment only if not set"`
	Listen string `short:"l" long:"listen" env:"LISTEN" description:"listen address, overrides config"`
	DSN    string `long:"dsn" env:"DB_DSN" description:"database connection string, overrides config"`
	Once   bool   `long:"once" env:"ONCE" description:"run a single ingestion pass and exit"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	setupLog(opts.Debug, opts.NoColor, os.Getenv(config.EnvYouTubeAPIKey))
	log.Printf("[INFO] starting discovery version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	err := run(ctx, opts)
	cancel()
	if err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
	log.Print("[INFO] shutdown complete")
}

// run wires the pipeline and blocks until ctx is canceled, or until the single pass is done in --once mode
func run(ctx context.Context, opts Opts) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}
	if opts.DSN != "" {
		cfg.Database.DSN = opts.DSN
	}
	if cfg.YouTube.APIKey != "" {
		// the key may come from the config file, not only from the environment
		setupLog(opts.Debug, opts.NoColor, os.Getenv(config.EnvYouTubeAPIKey), cfg.YouTube.APIKey)
	}

	repos, err := repository.NewRepositories(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			log.Printf("[WARN] failed to close database: %v", err)
		}
	}()

	bus := events.NewBus(cfg.Events.BufferSize)
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := bus.Close(closeCtx); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}()

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	m.Attach(bus)

	fetcher, err := makeFetcher(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize fetchers: %w", err)
	}

	keywords := scoring.NewKeywordCache(repos.Keyword, scoring.DefaultKeywordTTL)
	keywords.Attach(bus)
	engine := &scoring.Engine{
		Items:            repos.Item,
		Scores:           repos.Score,
		Flags:            repos.Flag,
		Keywords:         keywords,
		Config:           scoring.NewConfigCache(nil),
		Events:           bus,
		PendingThreshold: scoring.PendingThreshold(nil),
	}

	coordinator := scheduler.NewCoordinator(scheduler.Params{
		Sources:     repos.Source,
		Items:       repos.Item,
		Scorer:      engine,
		Flags:       repos.Flag,
		Fetcher:     fetcher,
		Planner:     retry.New(cfg.Ingestion.MaxAttempts, cfg.Ingestion.MaxRetryDelayMinutes),
		Events:      bus,
		Tasks:       m,
		WorkerLimit: cfg.Ingestion.WorkerLimit,
		BatchSize:   cfg.Ingestion.BatchSize,
	})
	sched := scheduler.NewScheduler(coordinator, scheduler.Config{
		IngestInterval:  cfg.Ingestion.Interval,
		StaleInterval:   cfg.Ingestion.StaleInterval,
		StaleAfter:      cfg.Ingestion.StaleAfter,
		RescoreInterval: cfg.Ingestion.RescoreInterval,
		RescoreDebounce: cfg.Ingestion.RescoreDebounce,
		RescoreBatch:    cfg.Ingestion.RescoreBatch,
	})
	sched.Attach(bus)

	if opts.Once {
		stats, err := sched.RunNow(ctx, scheduler.RunOptions{})
		if err != nil {
			return fmt.Errorf("ingestion run failed: %w", err)
		}
		log.Printf("[INFO] ingestion pass done, due %d, processed %d, succeeded %d, failed %d, skipped %d",
			stats.TotalDue, stats.Processed, stats.Succeeded, stats.Failed, stats.Skipped)
		return nil
	}

	sched.Start(ctx)
	defer sched.Stop()

	srv := server.New(cfg, server.NewRepositoryAdapter(repos), sched, server.Options{
		Events:  bus,
		Metrics: m.Handler(),
		Version: revision,
		Debug:   opts.Debug,
	})
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// makeFetcher binds an adapter to every source type
func makeFetcher(ctx context.Context, cfg *config.Config) (*fetch.Registry, error) {
	if cfg.YouTube.APIKey == "" {
		log.Printf("[WARN] youtube api key is not set, youtube sources will fail to fetch")
	}
	yt, err := youtube.New(ctx, youtube.Options{
		APIKey:     cfg.YouTube.APIKey,
		BaseURL:    cfg.YouTube.BaseURL,
		MaxResults: cfg.YouTube.MaxResults,
		Timeout:    cfg.Fetch.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("youtube adapter: %w", err)
	}

	return fetch.NewRegistry(map[domain.SourceType]fetch.Adapter{
		domain.SourceRSS: feed.NewParser(cfg.Fetch.Timeout, cfg.Fetch.UserAgent, cfg.Fetch.MaxBodyLength),
		domain.SourceWebPage: page.New(page.Options{
			Timeout:       cfg.Fetch.Timeout,
			UserAgent:     cfg.Fetch.UserAgent,
			MaxBodyLength: cfg.Fetch.MaxBodyLength,
		}),
		domain.SourceYouTubeChannel:  yt,
		domain.SourceYouTubePlaylist: yt,
	})
}

func setupLog(dbg, noColor bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	if !noColor {
		colorizer := lgr.Mapper{
			ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
			WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
			InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
			DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
			CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
			TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
		}
		logOpts = append(logOpts, lgr.Map(colorizer))
	}

	var secrets []string
	for _, s := range secs {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	if len(secrets) > 0 {
		logOpts = append(logOpts, lgr.Secret(secrets...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}

