// Package scoring computes relevance scores of discovered items from client keywords, item
// recency and source type, and records them as scored or suppressed.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/discovery/pkg/domain"
	"github.com/umputun/discovery/pkg/events"
)

// error codes of scoring failures
const (
	CodeDisabled    = "DISCOVERY_SCORING_DISABLED"
	CodeNotFound    = "DISCOVERY_SCORING_NOT_FOUND"
	CodeInvalidItem = "DISCOVERY_SCORING_INVALID_ITEM"
)

// Error is a typed scoring failure. Items of a failed call are left pending_scoring.
type Error struct {
	Code    string
	ItemIDs []int64
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode returns the scoring error code of err, empty if err is not a scoring error
func ErrorCode(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// ItemStore is the item persistence used by the engine
type ItemStore interface {
	FetchItemsByIDs(ctx context.Context, ids []int64) ([]domain.Item, error)
	ResetToPending(ctx context.Context, ids []int64) error
	CountPending(ctx context.Context, clientID string) (int, error)
}

// ScoreStore writes scores and item status outcomes
type ScoreStore interface {
	UpsertScores(ctx context.Context, scores []domain.Score) error
}

// FlagChecker reports per-client feature flags
type FlagChecker interface {
	IsEnabled(ctx context.Context, clientID, flag string) (bool, error)
}

// Publisher accepts events
type Publisher interface {
	Publish(evt events.Event)
}

// Engine scores batches of persisted items of one client
type Engine struct {
	Items            ItemStore
	Scores           ScoreStore
	Flags            FlagChecker
	Keywords         *KeywordCache
	Config           *ConfigCache
	Events           Publisher
	PendingThreshold int // pending items above which scoring is deferred, 0 means DefaultPendingBacklog
}

// Result summarizes one ScoreItems call
type Result struct {
	Scores     []domain.Score
	Scored     int
	Suppressed int
	Deferred   bool
	Pending    int
}

// ScoreItems scores the items of the client as of now. The call fails as a whole with an *Error
// when the client is disabled, an item is missing or an item has no title or body; the items
// are reset to pending_scoring then. When the client's backlog is above the pending threshold
// nothing is scored and the result is marked deferred.
func (e *Engine) ScoreItems(ctx context.Context, clientID string, itemIDs []int64, now time.Time) (Result, error) {
	return e.score(ctx, clientID, itemIDs, now, true)
}

// RescoreItems is ScoreItems without backlog protection, used to drain items left pending
func (e *Engine) RescoreItems(ctx context.Context, clientID string, itemIDs []int64, now time.Time) (Result, error) {
	return e.score(ctx, clientID, itemIDs, now, false)
}

func (e *Engine) score(ctx context.Context, clientID string, itemIDs []int64, now time.Time, checkBacklog bool) (Result, error) {
	ids := uniqueIDs(itemIDs)
	if len(ids) == 0 {
		return Result{}, nil
	}

	enabled, err := e.Flags.IsEnabled(ctx, clientID, domain.FlagDiscoveryAgent)
	if err != nil {
		return Result{}, fmt.Errorf("check flag for %s: %w", clientID, err)
	}
	if !enabled {
		return Result{}, e.fail(ctx, clientID, ids, &Error{Code: CodeDisabled, ItemIDs: ids,
			Err: fmt.Errorf("%s is disabled for client %s", domain.FlagDiscoveryAgent, clientID)})
	}

	pending, err := e.Items.CountPending(ctx, clientID)
	if err != nil {
		return Result{}, fmt.Errorf("count pending for %s: %w", clientID, err)
	}
	if limit := e.pendingThreshold(); checkBacklog && pending > limit {
		lgr.Printf("[INFO] scoring for %s deferred, %d items pending (threshold %d)", clientID, pending, limit)
		e.publish(events.Event{Type: events.QueueUpdated, ClientID: clientID, Payload: map[string]any{
			"pending": pending, "threshold": limit, "deferred": len(ids), "reason": "backlog",
		}})
		return Result{Deferred: true, Pending: pending}, nil
	}

	items, err := e.Items.FetchItemsByIDs(ctx, ids)
	if err != nil {
		return Result{}, fmt.Errorf("fetch items: %w", err)
	}
	if missing := missingIDs(ids, items, clientID); len(missing) > 0 {
		return Result{}, e.fail(ctx, clientID, ownedIDs(items, clientID), &Error{Code: CodeNotFound, ItemIDs: missing,
			Err: fmt.Errorf("%d of %d items not found for client %s", len(missing), len(ids), clientID)})
	}
	if invalid := invalidIDs(items); len(invalid) > 0 {
		return Result{}, e.fail(ctx, clientID, ids, &Error{Code: CodeInvalidItem, ItemIDs: invalid,
			Err: fmt.Errorf("%d items miss title or body", len(invalid))})
	}

	keywords, err := e.Keywords.Get(ctx, clientID)
	if err != nil {
		return Result{}, err
	}

	cfg := e.Config.Get()
	res := Result{Scores: make([]domain.Score, 0, len(items)), Pending: pending}
	for _, it := range items {
		s := Compute(cfg, it, keywords, now)
		res.Scores = append(res.Scores, s)
		if s.StatusOutcome == domain.ItemScored {
			res.Scored++
			continue
		}
		res.Suppressed++
	}

	if err := e.Scores.UpsertScores(ctx, res.Scores); err != nil {
		return Result{}, fmt.Errorf("save scores: %w", err)
	}

	lgr.Printf("[DEBUG] scored %d items for %s: %d scored, %d suppressed", len(items), clientID, res.Scored, res.Suppressed)
	e.publish(events.Event{Type: events.ScoreComplete, ClientID: clientID, Payload: map[string]any{
		"scored": res.Scored, "suppressed": res.Suppressed, "itemIds": ids, "weightsVersion": cfg.WeightsVersion,
	}})
	return res, nil
}

// fail resets the items to pending, publishes the failure and returns serr
func (e *Engine) fail(ctx context.Context, clientID string, resetIDs []int64, serr *Error) error {
	if err := e.Items.ResetToPending(ctx, resetIDs); err != nil {
		lgr.Printf("[WARN] failed to reset %d items of %s to pending: %v", len(resetIDs), clientID, err)
	}
	lgr.Printf("[WARN] scoring failed for %s: %v", clientID, serr)
	e.publish(events.Event{Type: events.ScoringFailed, ClientID: clientID, Payload: map[string]any{
		"code": serr.Code, "itemIds": serr.ItemIDs, "error": serr.Error(),
	}})
	return serr
}

func (e *Engine) publish(evt events.Event) {
	if e.Events != nil {
		e.Events.Publish(evt)
	}
}

func (e *Engine) pendingThreshold() int {
	if e.PendingThreshold > 0 {
		return e.PendingThreshold
	}
	return DefaultPendingBacklog
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	res := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			res = append(res, id)
		}
	}
	return res
}

func ownedIDs(items []domain.Item, clientID string) []int64 {
	var res []int64
	for _, it := range items {
		if it.ClientID == clientID {
			res = append(res, it.ID)
		}
	}
	return res
}

// missingIDs returns requested ids absent from items or owned by another client
func missingIDs(ids []int64, items []domain.Item, clientID string) []int64 {
	found := make(map[int64]bool, len(items))
	for _, it := range items {
		if it.ClientID == clientID {
			found[it.ID] = true
		}
	}
	var res []int64
	for _, id := range ids {
		if !found[id] {
			res = append(res, id)
		}
	}
	return res
}

func invalidIDs(items []domain.Item) []int64 {
	var res []int64
	for _, it := range items {
		if strings.TrimSpace(it.Normalized.Title) == "" || strings.TrimSpace(it.Normalized.Body) == "" {
			res = append(res, it.ID)
		}
	}
	return res
}
