package scoring

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/discovery/pkg/domain"
	"github.com/umputun/discovery/pkg/events"
	"github.com/umputun/discovery/pkg/repository"
)

type fakeStore struct {
	mu        sync.Mutex
	items     map[int64]domain.Item
	pending   int
	enabled   bool
	flagErr   error
	upsertErr error
	reset     [][]int64
	upserted  []domain.Score
}

func (f *fakeStore) FetchItemsByIDs(_ context.Context, ids []int64) ([]domain.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []domain.Item
	for _, id := range ids {
		if it, ok := f.items[id]; ok {
			res = append(res, it)
		}
	}
	return res, nil
}

func (f *fakeStore) ResetToPending(_ context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset = append(f.reset, ids)
	return nil
}

func (f *fakeStore) CountPending(context.Context, string) (int, error) { return f.pending, nil }

func (f *fakeStore) UpsertScores(_ context.Context, scores []domain.Score) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, scores...)
	return nil
}

func (f *fakeStore) IsEnabled(context.Context, string, string) (bool, error) { return f.enabled, f.flagErr }

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		res = append(res, e.Type)
	}
	return res
}

func newTestEngine(store *fakeStore, keywords []string) (*Engine, *recorder) {
	rec := &recorder{}
	kw := keywordSourceFunc(func(context.Context, string) ([]string, error) { return keywords, nil })
	return &Engine{
		Items:    store,
		Scores:   store,
		Flags:    store,
		Keywords: NewKeywordCache(kw, time.Minute),
		Config:   NewConfigCache(envMap(nil)),
		Events:   rec,
	}, rec
}

func engineItem(id int64, clientID, title, body string, published time.Time) domain.Item {
	return domain.Item{ID: id, ClientID: clientID, PublishedAt: &published, FetchedAt: published,
		Status: domain.ItemPendingScoring,
		Normalized: domain.NormalizedItem{Title: title, Body: body, ContentType: domain.ContentArticle}}
}

func TestEngine_ScoreItems(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("scores and publishes completion", func(t *testing.T) {
		store := &fakeStore{enabled: true, items: map[int64]domain.Item{
			1: engineItem(1, "c1", "Go release", "go and sqlite news", now),
			2: engineItem(2, "c1", "Cooking", "pasta recipe", now.Add(-240*time.Hour)),
		}}
		eng, rec := newTestEngine(store, []string{"go", "sqlite"})

		res, err := eng.ScoreItems(context.Background(), "c1", []int64{1, 2, 1}, now)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Scored)
		assert.Equal(t, 1, res.Suppressed)
		require.Len(t, store.upserted, 2)
		assert.Equal(t, domain.ItemScored, store.upserted[0].StatusOutcome)
		assert.Equal(t, domain.ItemSuppressed, store.upserted[1].StatusOutcome)
		assert.Empty(t, store.reset)

		require.Equal(t, []events.Type{events.ScoreComplete}, rec.types())
		assert.Equal(t, 1, rec.events[0].Payload["scored"])
		assert.Equal(t, 1, rec.events[0].Payload["suppressed"])
		assert.Equal(t, "c1", rec.events[0].ClientID)
	})

	t.Run("disabled client", func(t *testing.T) {
		store := &fakeStore{enabled: false, items: map[int64]domain.Item{1: engineItem(1, "c1", "t", "b", now)}}
		eng, rec := newTestEngine(store, nil)

		_, err := eng.ScoreItems(context.Background(), "c1", []int64{1}, now)
		require.Error(t, err)
		var serr *Error
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, CodeDisabled, serr.Code)
		assert.Equal(t, CodeDisabled, ErrorCode(err))
		assert.Equal(t, [][]int64{{1}}, store.reset)
		assert.Empty(t, store.upserted)
		require.Equal(t, []events.Type{events.ScoringFailed}, rec.types())
		assert.Equal(t, CodeDisabled, rec.events[0].Payload["code"])
	})

	t.Run("missing items fail the whole call", func(t *testing.T) {
		store := &fakeStore{enabled: true, items: map[int64]domain.Item{
			1: engineItem(1, "c1", "t", "b", now),
			3: engineItem(3, "other", "t", "b", now),
		}}
		eng, _ := newTestEngine(store, nil)

		_, err := eng.ScoreItems(context.Background(), "c1", []int64{1, 2, 3}, now)
		var serr *Error
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, CodeNotFound, serr.Code)
		assert.Equal(t, []int64{2, 3}, serr.ItemIDs, "items of another client are not found")
		assert.Equal(t, [][]int64{{1}}, store.reset, "only items of the client are reset")
		assert.Empty(t, store.upserted)
	})

	t.Run("invalid items fail the whole call", func(t *testing.T) {
		store := &fakeStore{enabled: true, items: map[int64]domain.Item{
			1: engineItem(1, "c1", "t", "b", now),
			2: engineItem(2, "c1", "t", "  ", now),
		}}
		eng, rec := newTestEngine(store, nil)

		_, err := eng.ScoreItems(context.Background(), "c1", []int64{1, 2}, now)
		assert.Equal(t, CodeInvalidItem, ErrorCode(err))
		var serr *Error
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, []int64{2}, serr.ItemIDs)
		assert.Empty(t, store.upserted)
		assert.Equal(t, []events.Type{events.ScoringFailed}, rec.types())
	})

	t.Run("backlog defers scoring", func(t *testing.T) {
		store := &fakeStore{enabled: true, pending: 11, items: map[int64]domain.Item{1: engineItem(1, "c1", "t", "b", now)}}
		eng, rec := newTestEngine(store, nil)
		eng.PendingThreshold = 10

		res, err := eng.ScoreItems(context.Background(), "c1", []int64{1}, now)
		require.NoError(t, err)
		assert.True(t, res.Deferred)
		assert.Equal(t, 11, res.Pending)
		assert.Empty(t, store.upserted)
		assert.Empty(t, store.reset, "items stay pending untouched")
		require.Equal(t, []events.Type{events.QueueUpdated}, rec.types())
		assert.Equal(t, 11, rec.events[0].Payload["pending"])
	})

	t.Run("flag lookup error", func(t *testing.T) {
		store := &fakeStore{flagErr: errors.New("db down")}
		eng, _ := newTestEngine(store, nil)
		_, err := eng.ScoreItems(context.Background(), "c1", []int64{1}, now)
		require.Error(t, err)
		assert.Empty(t, ErrorCode(err))
	})

	t.Run("save error", func(t *testing.T) {
		store := &fakeStore{enabled: true, upsertErr: errors.New("disk full"),
			items: map[int64]domain.Item{1: engineItem(1, "c1", "t", "b", now)}}
		eng, rec := newTestEngine(store, nil)
		_, err := eng.ScoreItems(context.Background(), "c1", []int64{1}, now)
		require.Error(t, err)
		assert.Empty(t, rec.types())
	})

	t.Run("no ids", func(t *testing.T) {
		eng, rec := newTestEngine(&fakeStore{}, nil)
		res, err := eng.ScoreItems(context.Background(), "c1", nil, now)
		require.NoError(t, err)
		assert.Equal(t, Result{}, res)
		assert.Empty(t, rec.types())
	})
}

func TestEngine_WithRepository(t *testing.T) {
	ctx := context.Background()
	repos, err := repository.NewRepositories(ctx, repository.Config{
		DSN: "file:" + filepath.Join(t.TempDir(), "scoring.db") + "?mode=rwc"})
	require.NoError(t, err)
	defer repos.Close()

	src := &domain.Source{ClientID: "acme", Type: domain.SourceWebPage, Identifier: "example.com/blog",
		URL: "https://example.com/blog"}
	require.NoError(t, repos.Source.CreateSource(ctx, src))
	require.NoError(t, repos.Flag.SetFlag(ctx, "acme", domain.FlagDiscoveryAgent, true))
	_, err = repos.Keyword.SetKeywords(ctx, "acme", []string{"observability", "tracing"})
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	item := engineItem(0, "acme", "Observability in practice", "distributed tracing for services", now)
	item.SourceID = src.ID
	item.ExternalID = "https://example.com/blog/post"
	item.Title = item.Normalized.Title
	item.URL = "https://example.com/blog/post"
	item.RawHash = "hash-1"
	ins, err := repos.Item.InsertItems(ctx, []domain.Item{item})
	require.NoError(t, err)
	require.Len(t, ins.Inserted, 1)

	eng := &Engine{Items: repos.Item, Scores: repos.Score, Flags: repos.Flag,
		Keywords: NewKeywordCache(repos.Keyword, time.Minute), Config: NewConfigCache(envMap(nil))}

	res, err := eng.ScoreItems(ctx, "acme", ins.Inserted, now)
	require.NoError(t, err)
	require.Len(t, res.Scores, 1)
	assert.Equal(t, domain.ItemScored, res.Scores[0].StatusOutcome)
	assert.Greater(t, res.Scores[0].Score, 0.6)

	first, err := repos.Score.GetScore(ctx, ins.Inserted[0])
	require.NoError(t, err)

	// rescoring with the same inputs leaves an identical score
	_, err = eng.ScoreItems(ctx, "acme", ins.Inserted, now)
	require.NoError(t, err)
	second, err := repos.Score.GetScore(ctx, ins.Inserted[0])
	require.NoError(t, err)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Components, second.Components)
	assert.True(t, first.ScoredAt.Equal(second.ScoredAt))

	items, err := repos.Item.FetchItemsByIDs(ctx, ins.Inserted)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemScored, items[0].Status)

	t.Run("disabling the flag resets to pending", func(t *testing.T) {
		require.NoError(t, repos.Flag.SetFlag(ctx, "acme", domain.FlagDiscoveryAgent, false))
		_, err := eng.ScoreItems(ctx, "acme", ins.Inserted, now)
		assert.Equal(t, CodeDisabled, ErrorCode(err))
		count, err := repos.Item.CountPending(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestEngine_RescoreItems(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{enabled: true, pending: 1000, items: map[int64]domain.Item{1: engineItem(1, "c1", "t", "b", now)}}
	eng, rec := newTestEngine(store, nil)

	res, err := eng.RescoreItems(context.Background(), "c1", []int64{1}, now)
	require.NoError(t, err)
	assert.False(t, res.Deferred, "backlog is ignored")
	assert.Equal(t, 1, res.Scored+res.Suppressed)
	assert.Equal(t, []events.Type{events.ScoreComplete}, rec.types())
}
