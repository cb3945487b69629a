package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/discovery/pkg/dedup"
	"github.com/umputun/discovery/pkg/domain"
	"github.com/umputun/discovery/pkg/events"
	"github.com/umputun/discovery/pkg/fetch"
	"github.com/umputun/discovery/pkg/health"
	"github.com/umputun/discovery/pkg/repository"
	"github.com/umputun/discovery/pkg/retry"
)

type taskResult int

const (
	taskSkipped taskResult = iota
	taskSucceeded
	taskFailed
)

// cycle collects the outcome of one claimed source as it moves through the pipeline
type cycle struct {
	src        domain.Source
	startedAt  time.Time
	retry      retry.Result
	failure    *domain.Failure
	inserted   []int64
	duplicates int
	scored     int
	suppressed int
	deferred   bool
	scoreError string
	finished   bool
}

// processSource runs claim, fetch with retries, persist, score and complete for one source.
// It never panics or returns an error, every problem ends up in the result and the logs.
func (c *Coordinator) processSource(ctx context.Context, src domain.Source, now time.Time, fetcher Fetcher) (res taskResult) {
	if c.tasks != nil {
		c.tasks.TaskStarted()
		defer c.tasks.TaskDone()
	}

	var cy *cycle
	wallStart := time.Now()
	defer func() {
		if r := recover(); r != nil {
			lgr.Printf("[WARN] panic processing source %d: %v\n%s", src.ID, r, debug.Stack())
			res = taskFailed
			if cy != nil && !cy.finished {
				cy.failure = &domain.Failure{Reason: domain.FailureUnknown, Message: fmt.Sprintf("panic: %v", r)}
				c.finish(ctx, cy, now.Add(time.Since(wallStart)))
			}
		}
	}()

	enabled, err := c.flags.IsEnabled(ctx, src.ClientID, domain.FlagDiscoveryAgent)
	if err != nil {
		lgr.Printf("[WARN] can't check discovery flag of %s, skipping source %d: %v", src.ClientID, src.ID, err)
		return taskSkipped
	}
	if !enabled {
		lgr.Printf("[DEBUG] discovery disabled for %s, skipping source %d", src.ClientID, src.ID)
		return taskSkipped
	}

	claimed, err := c.sources.Claim(ctx, src.ID, now)
	if err != nil {
		lgr.Printf("[WARN] failed to claim source %d: %v", src.ID, err)
		return taskSkipped
	}
	if claimed == nil {
		lgr.Printf("[DEBUG] source %d claimed elsewhere or no longer due", src.ID)
		return taskSkipped
	}

	cy = &cycle{src: *claimed, startedAt: now}

	c.publish(events.Event{Type: events.IngestionStarted, ClientID: claimed.ClientID, SourceID: claimed.ID,
		Payload: map[string]any{"sourceType": string(claimed.Type), "identifier": claimed.Identifier}})

	req := fetch.RequestFor(*claimed, now)
	cy.retry = c.planner.Run(ctx, func(ctx context.Context, _ int) domain.FetchResult {
		return fetcher.Fetch(ctx, req)
	})
	cy.failure = cy.retry.Fetch.Failure

	if cy.failure == nil {
		c.persist(ctx, cy, now)
	}
	if cy.failure == nil && len(cy.inserted) > 0 {
		c.score(ctx, cy, now)
	}

	c.finish(ctx, cy, now.Add(time.Since(wallStart)))
	if cy.failure != nil {
		return taskFailed
	}
	return taskSucceeded
}

// persist dedups and saves fetched items, a persistence error turns the cycle into a failure
func (c *Coordinator) persist(ctx context.Context, cy *cycle, fetchedAt time.Time) {
	items, batchDups, err := dedup.Prepare(cy.src.ClientID, cy.src.ID, cy.retry.Fetch.Items, fetchedAt)
	if err != nil {
		cy.failure = &domain.Failure{Reason: domain.FailureUnknown, Message: fmt.Sprintf("prepare items: %v", err)}
		return
	}
	ins, err := c.items.InsertItems(ctx, items)
	if err != nil {
		lgr.Printf("[WARN] failed to save %d items of source %d: %v", len(items), cy.src.ID, err)
		cy.failure = &domain.Failure{Reason: domain.FailureUnknown, Message: fmt.Sprintf("save items: %v", err)}
		return
	}
	cy.inserted = ins.Inserted
	cy.duplicates = batchDups + ins.Duplicates
}

// score hands new items to the scorer. Scoring problems don't fail the ingestion, the items
// stay pending and are picked up by the rescore worker.
func (c *Coordinator) score(ctx context.Context, cy *cycle, now time.Time) {
	res, err := c.scorer.ScoreItems(ctx, cy.src.ClientID, cy.inserted, now)
	if err != nil {
		lgr.Printf("[WARN] scoring %d new items of source %d failed: %v", len(cy.inserted), cy.src.ID, err)
		cy.scoreError = err.Error()
		return
	}
	cy.scored, cy.suppressed, cy.deferred = res.Scored, res.Suppressed, res.Deferred
}

// finish records the run with Complete, falling back to Release, and publishes the outcome.
// Bookkeeping is not canceled with ctx, a canceled run still has to release its claim.
func (c *Coordinator) finish(ctx context.Context, cy *cycle, completedAt time.Time) {
	cy.finished = true
	ctx = context.WithoutCancel(ctx)
	req := repository.CompleteRequest{
		SourceID:       cy.src.ID,
		StartedAt:      cy.startedAt,
		CompletedAt:    completedAt,
		RetryInMinutes: cy.retry.RetryInMinutes(),
		Metrics:        cy.metrics(),
		Telemetry:      cy.telemetry(),
	}
	if cy.failure != nil {
		req.FailureReason = cy.failure.Reason
	}

	res, err := c.sources.Complete(ctx, req)
	if err != nil {
		lgr.Printf("[WARN] failed to complete source %d, releasing: %v", cy.src.ID, err)
		var relErr error
		if res, relErr = c.sources.Release(ctx, cy.src, req); relErr != nil {
			lgr.Printf("[ERROR] source %d stuck in running state, complete: %v, release: %v", cy.src.ID, err, relErr)
			return
		}
	}

	evtType := events.IngestionCompleted
	if cy.failure != nil {
		evtType = events.IngestionFailed
		lgr.Printf("[INFO] source %d (%s) failed with %s after %d attempts, next fetch at %v",
			cy.src.ID, cy.src.Identifier, cy.failure.Reason, cy.retry.Attempts, res.NextFetchAt.Format(time.RFC3339))
	} else {
		lgr.Printf("[INFO] source %d (%s): %d new, %d duplicates", cy.src.ID, cy.src.Identifier, len(cy.inserted), cy.duplicates)
	}
	payload := cy.metrics()
	payload["sourceType"] = string(cy.src.Type)
	payload["nextFetchAt"] = res.NextFetchAt.Format(time.RFC3339)
	if cy.failure != nil {
		payload["reason"] = string(cy.failure.Reason)
		payload["message"] = cy.failure.Message
	}
	c.publish(events.Event{Type: evtType, ClientID: cy.src.ClientID, SourceID: cy.src.ID, Payload: payload})

	if health.Changed(res.Previous, res.Health) {
		c.publish(events.Event{Type: events.SourceHealth, ClientID: cy.src.ClientID, SourceID: cy.src.ID,
			Payload: healthPayload(&res.Health, res.Previous)})
	}
}

func (cy *cycle) metrics() map[string]any {
	m := map[string]any{
		"attempts":   cy.retry.Attempts,
		"fetched":    len(cy.retry.Fetch.Items),
		"inserted":   len(cy.inserted),
		"duplicates": cy.duplicates,
		"skipped":    len(cy.retry.Fetch.Metadata.Skipped),
		"scored":     cy.scored,
		"suppressed": cy.suppressed,
	}
	if cy.deferred {
		m["scoringDeferred"] = true
	}
	if cy.scoreError != "" {
		m["scoringError"] = cy.scoreError
	}
	return m
}

func (cy *cycle) telemetry() map[string]any {
	meta := cy.retry.Fetch.Metadata
	t := map[string]any{"attempts": cy.retry.History}
	if meta.StatusCode != 0 {
		t["statusCode"] = meta.StatusCode
	}
	if meta.Hops != 0 {
		t["hops"] = meta.Hops
	}
	if len(meta.Skipped) > 0 {
		t["skipped"] = meta.Skipped
	}
	if cy.retry.Decision.Outcome != "" {
		t["retryOutcome"] = string(cy.retry.Decision.Outcome)
	}
	if cy.failure != nil && cy.failure.Message != "" {
		t["failureMessage"] = cy.failure.Message
	}
	return t
}

func healthPayload(h, prev *domain.HealthSnapshot) map[string]any {
	p := map[string]any{}
	if h != nil {
		p["status"] = string(h.Status)
		p["consecutiveFailures"] = h.ConsecutiveFailures
		if h.Streak != nil {
			p["streakType"] = string(h.Streak.Type)
			p["streakCount"] = h.Streak.Count
		}
		if h.StaleSince != nil {
			p["staleSince"] = h.StaleSince.Format(time.RFC3339)
		}
		if h.FailureReason != "" {
			p["failureReason"] = string(h.FailureReason)
		}
	}
	if prev != nil {
		p["previousStatus"] = string(prev.Status)
	}
	return p
}
