// Package scheduler runs discovery ingestion. The Coordinator drains due sources through a
// bounded pool of per-source tasks (claim, fetch with retries, persist, score, complete), and
// the Scheduler drives it periodically together with the stale scan and the pending rescore worker.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/umputun/discovery/pkg/domain"
	"github.com/umputun/discovery/pkg/events"
	"github.com/umputun/discovery/pkg/fetch"
	"github.com/umputun/discovery/pkg/repository"
	"github.com/umputun/discovery/pkg/retry"
	"github.com/umputun/discovery/pkg/scoring"
)

//go:generate moq -out mocks/source_store.go -pkg mocks -skip-ensure -fmt goimports . SourceStore
//go:generate moq -out mocks/item_store.go -pkg mocks -skip-ensure -fmt goimports . ItemStore
//go:generate moq -out mocks/scorer.go -pkg mocks -skip-ensure -fmt goimports . Scorer
//go:generate moq -out mocks/flag_checker.go -pkg mocks -skip-ensure -fmt goimports . FlagChecker
//go:generate moq -out mocks/fetcher.go -pkg mocks -skip-ensure -fmt goimports . Fetcher

// DefaultWorkerLimit is the number of sources processed concurrently
const DefaultWorkerLimit = 3

// SourceStore is the claim store of discovery sources
type SourceStore interface {
	ListDue(ctx context.Context, limit int, now time.Time) ([]domain.Source, error)
	Claim(ctx context.Context, id int64, now time.Time) (*domain.Source, error)
	Complete(ctx context.Context, req repository.CompleteRequest) (repository.CompleteResult, error)
	Release(ctx context.Context, claimed domain.Source, req repository.CompleteRequest) (repository.CompleteResult, error)
	MarkStale(ctx context.Context, cutoff, now time.Time) ([]repository.StaleSource, error)
}

// ItemStore persists discovered items
type ItemStore interface {
	InsertItems(ctx context.Context, items []domain.Item) (repository.InsertResult, error)
	ListPending(ctx context.Context, afterID int64, limit int) (map[string][]int64, error)
}

// Scorer scores persisted items of a client
type Scorer interface {
	ScoreItems(ctx context.Context, clientID string, itemIDs []int64, now time.Time) (scoring.Result, error)
	RescoreItems(ctx context.Context, clientID string, itemIDs []int64, now time.Time) (scoring.Result, error)
}

// FlagChecker reports per-client feature flags
type FlagChecker interface {
	IsEnabled(ctx context.Context, clientID, flag string) (bool, error)
}

// Fetcher fetches one source, fetch.Registry in production
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) domain.FetchResult
}

// Publisher accepts events
type Publisher interface {
	Publish(evt events.Event)
}

// TaskTracker observes task starts and ends, metrics.Metrics in production
type TaskTracker interface {
	TaskStarted()
	TaskDone()
}

// Params holds the dependencies and defaults of a Coordinator
type Params struct {
	Sources     SourceStore
	Items       ItemStore
	Scorer      Scorer
	Flags       FlagChecker
	Fetcher     Fetcher
	Planner     *retry.Planner
	Events      Publisher   // optional
	Tasks       TaskTracker // optional
	WorkerLimit int
	BatchSize   int
}

// RunOptions overrides coordinator defaults for a single run
type RunOptions struct {
	Now         time.Time
	WorkerLimit int
	Fetcher     Fetcher
	BatchSize   int
}

// RunStats summarizes a coordinator run. Processed counts claimed sources, each of them either
// succeeded or failed; skipped sources were disabled or claimed elsewhere.
type RunStats struct {
	TotalDue  int `json:"totalDue"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Coordinator runs ingestion of due sources with bounded concurrency. Claims in the database
// are the only exclusion, so any number of coordinators may run against the same store.
type Coordinator struct {
	sources     SourceStore
	items       ItemStore
	scorer      Scorer
	flags       FlagChecker
	fetcher     Fetcher
	planner     *retry.Planner
	events      Publisher
	tasks       TaskTracker
	workerLimit int
	batchSize   int

	rescoreMu    sync.Mutex
	rescoreAfter int64 // last item id of the previous full rescore page
}

// NewCoordinator makes a coordinator from params
func NewCoordinator(p Params) *Coordinator {
	if p.Planner == nil {
		p.Planner = retry.New(retry.DefaultMaxAttempts, retry.DefaultMaxDelayMinutes)
	}
	return &Coordinator{
		sources:     p.Sources,
		items:       p.Items,
		scorer:      p.Scorer,
		flags:       p.Flags,
		fetcher:     p.Fetcher,
		planner:     p.Planner,
		events:      p.Events,
		tasks:       p.Tasks,
		workerLimit: p.WorkerLimit,
		batchSize:   p.BatchSize,
	}
}

// Run processes one batch of due sources and returns when every task finished. Sources are
// launched in due order, at most workerLimit at a time. Task failures are counted, never
// returned; only failing to list due sources is an error.
func (c *Coordinator) Run(ctx context.Context, opts RunOptions) (RunStats, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	workers := firstPositive(opts.WorkerLimit, c.workerLimit, DefaultWorkerLimit)
	batch := firstPositive(opts.BatchSize, c.batchSize, workers*4)
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = c.fetcher
	}
	if fetcher == nil {
		return RunStats{}, errors.New("no fetcher configured")
	}

	due, err := c.sources.ListDue(ctx, batch, now)
	if err != nil {
		return RunStats{}, fmt.Errorf("list due sources: %w", err)
	}
	stats := RunStats{TotalDue: len(due)}
	if len(due) == 0 {
		lgr.Printf("[DEBUG] no due sources")
		return stats, nil
	}
	lgr.Printf("[INFO] processing %d due sources with %d workers", len(due), workers)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, src := range due {
		g.Go(func() error {
			res := c.processSource(ctx, src, now, fetcher)
			mu.Lock()
			defer mu.Unlock()
			switch res {
			case taskSucceeded:
				stats.Processed++
				stats.Succeeded++
			case taskFailed:
				stats.Processed++
				stats.Failed++
			default:
				stats.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait() // tasks never return errors

	lgr.Printf("[INFO] ingestion run done: due %d, processed %d, succeeded %d, failed %d, skipped %d",
		stats.TotalDue, stats.Processed, stats.Succeeded, stats.Failed, stats.Skipped)
	return stats, nil
}

// ScanStale marks sources without a completed fetch since cutoff as stale and publishes their
// health. The schedule of stale sources is left as is.
func (c *Coordinator) ScanStale(ctx context.Context, cutoff, now time.Time) ([]repository.StaleSource, error) {
	stale, err := c.sources.MarkStale(ctx, cutoff, now)
	for _, s := range stale {
		lgr.Printf("[INFO] source %d (%s %s) is stale since %v", s.Source.ID, s.Source.Type, s.Source.Identifier,
			staleSince(s.Source.Health))
		c.publish(events.Event{Type: events.SourceHealth, ClientID: s.Source.ClientID, SourceID: s.Source.ID,
			Payload: healthPayload(s.Source.Health, s.Previous)})
	}
	if err != nil {
		return stale, fmt.Errorf("scan stale sources: %w", err)
	}
	return stale, nil
}

// RescorePending scores up to limit items left pending_scoring, client by client, ignoring the
// backlog threshold. Clients with the discovery flag off are left alone. Items failing
// validation are excluded and the rest of the client's batch is scored.
// Consecutive calls page through the backlog by item id and wrap around after a short page,
// so items which stay pending can't hold back the ones behind them.
func (c *Coordinator) RescorePending(ctx context.Context, limit int, now time.Time) (int, error) {
	c.rescoreMu.Lock()
	defer c.rescoreMu.Unlock()

	pending, err := c.items.ListPending(ctx, c.rescoreAfter, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending items: %w", err)
	}
	c.rescoreAfter = nextRescoreCursor(pending, limit)

	scored := 0
	for clientID, ids := range pending {
		if ctx.Err() != nil {
			return scored, ctx.Err()
		}
		enabled, err := c.flags.IsEnabled(ctx, clientID, domain.FlagDiscoveryAgent)
		if err != nil || !enabled {
			continue
		}
		res, err := c.scorer.RescoreItems(ctx, clientID, ids, now)
		if code := scoring.ErrorCode(err); code == scoring.CodeInvalidItem || code == scoring.CodeNotFound {
			rest := exclude(ids, failedIDs(err))
			if len(rest) == 0 {
				continue
			}
			res, err = c.scorer.RescoreItems(ctx, clientID, rest, now)
		}
		if err != nil {
			lgr.Printf("[WARN] rescoring %d pending items of %s failed: %v", len(ids), clientID, err)
			continue
		}
		scored += res.Scored + res.Suppressed
	}
	if scored > 0 {
		lgr.Printf("[INFO] rescored %d pending items", scored)
	}
	return scored, nil
}

func (c *Coordinator) publish(evt events.Event) {
	if c.events != nil {
		c.events.Publish(evt)
	}
}

// nextRescoreCursor returns the highest listed id if the page was full, zero to start over otherwise
func nextRescoreCursor(pending map[string][]int64, limit int) int64 {
	count, maxID := 0, int64(0)
	for _, ids := range pending {
		count += len(ids)
		for _, id := range ids {
			maxID = max(maxID, id)
		}
	}
	if limit <= 0 || count < limit {
		return 0
	}
	return maxID
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func staleSince(h *domain.HealthSnapshot) any {
	if h == nil || h.StaleSince == nil {
		return "unknown"
	}
	return h.StaleSince.Format(time.RFC3339)
}

func failedIDs(err error) []int64 {
	var serr *scoring.Error
	if !errors.As(err, &serr) {
		return nil
	}
	return serr.ItemIDs
}

func exclude(ids, drop []int64) []int64 {
	skip := make(map[int64]bool, len(drop))
	for _, id := range drop {
		skip[id] = true
	}
	res := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !skip[id] {
			res = append(res, id)
		}
	}
	return res
}
