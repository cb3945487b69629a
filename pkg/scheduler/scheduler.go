package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/discovery/pkg/events"
)

// Scheduler drives the coordinator periodically. It runs three workers: ingestion of due
// sources, the stale scan and the pending rescore worker.
type Scheduler struct {
	coordinator     *Coordinator
	ingestInterval  time.Duration
	staleInterval   time.Duration
	staleAfter      time.Duration
	rescoreInterval time.Duration
	rescoreDebounce time.Duration
	rescoreBatch    int
	now             func() time.Time

	rescoreCh chan struct{}
	runMu     sync.Mutex // serializes ingestion runs started by the ticker and RunNow
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// Config holds scheduler intervals, zero values get defaults
type Config struct {
	IngestInterval  time.Duration
	StaleInterval   time.Duration
	StaleAfter      time.Duration // sources without a completed fetch for this long are stale
	RescoreInterval time.Duration
	RescoreDebounce time.Duration
	RescoreBatch    int
}

// NewScheduler creates a scheduler on top of the coordinator
func NewScheduler(coordinator *Coordinator, cfg Config) *Scheduler {
	if cfg.IngestInterval == 0 {
		cfg.IngestInterval = time.Minute
	}
	if cfg.StaleInterval == 0 {
		cfg.StaleInterval = 15 * time.Minute
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 24 * time.Hour
	}
	if cfg.RescoreInterval == 0 {
		cfg.RescoreInterval = 5 * time.Minute
	}
	if cfg.RescoreDebounce == 0 {
		cfg.RescoreDebounce = 30 * time.Second
	}
	if cfg.RescoreBatch == 0 {
		cfg.RescoreBatch = 100
	}

	return &Scheduler{
		coordinator:     coordinator,
		ingestInterval:  cfg.IngestInterval,
		staleInterval:   cfg.StaleInterval,
		staleAfter:      cfg.StaleAfter,
		rescoreInterval: cfg.RescoreInterval,
		rescoreDebounce: cfg.RescoreDebounce,
		rescoreBatch:    cfg.RescoreBatch,
		now:             time.Now,
		rescoreCh:       make(chan struct{}, 1),
	}
}

// Start begins the scheduler
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(3)
	go s.ingestWorker(ctx)
	go s.staleWorker(ctx)
	go s.rescoreWorker(ctx)

	lgr.Printf("[INFO] scheduler started with ingest interval %v, stale scan interval %v, rescore interval %v",
		s.ingestInterval, s.staleInterval, s.rescoreInterval)
}

// Stop gracefully stops the scheduler, waiting for running passes
func (s *Scheduler) Stop() {
	lgr.Printf("[INFO] stopping scheduler...")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	lgr.Printf("[INFO] scheduler stopped")
}

// Attach subscribes the scheduler to backlog events, each one schedules a debounced rescore pass
func (s *Scheduler) Attach(bus *events.Bus) func() {
	return bus.Subscribe(func(context.Context, events.Event) { s.TriggerRescore() }, events.QueueUpdated)
}

// TriggerRescore asks the rescore worker for a pass, signals arriving within the debounce
// window are collapsed into one pass
func (s *Scheduler) TriggerRescore() {
	select {
	case s.rescoreCh <- struct{}{}:
	default:
	}
}

// RunNow runs one ingestion pass immediately, waiting for a pass already in progress
func (s *Scheduler) RunNow(ctx context.Context, opts RunOptions) (RunStats, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if opts.Now.IsZero() {
		opts.Now = s.now()
	}
	return s.coordinator.Run(ctx, opts)
}

// ingestWorker periodically runs the coordinator
func (s *Scheduler) ingestWorker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.ingestInterval)
	defer ticker.Stop()

	// run immediately on start
	s.ingest(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ingest(ctx)
		}
	}
}

func (s *Scheduler) ingest(ctx context.Context) {
	if _, err := s.RunNow(ctx, RunOptions{}); err != nil {
		lgr.Printf("[ERROR] ingestion run failed: %v", err)
	}
}

// staleWorker periodically marks sources without recent fetches as stale
func (s *Scheduler) staleWorker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.staleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.now()
			if _, err := s.coordinator.ScanStale(ctx, now.Add(-s.staleAfter), now); err != nil {
				lgr.Printf("[WARN] stale scan failed: %v", err)
			}
		}
	}
}
