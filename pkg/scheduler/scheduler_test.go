package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/discovery/pkg/domain"
	"github.com/umputun/discovery/pkg/events"
	"github.com/umputun/discovery/pkg/fetch"
	"github.com/umputun/discovery/pkg/repository"
	"github.com/umputun/discovery/pkg/scheduler/mocks"
	"github.com/umputun/discovery/pkg/scoring"
)

func TestScheduler_StartStop(t *testing.T) {
	store, items, scorer, flags := testMocks()
	items.ListPendingFunc = func(context.Context, int64, int) (map[string][]int64, error) { return nil, nil }
	fetcher := &mocks.FetcherMock{}
	c := NewCoordinator(Params{Sources: store, Items: items, Scorer: scorer, Flags: flags, Fetcher: fetcher})

	s := NewScheduler(c, Config{IngestInterval: time.Hour, StaleInterval: 20 * time.Millisecond,
		RescoreInterval: time.Hour, RescoreDebounce: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	// ingestion runs immediately on start
	require.Eventually(t, func() bool { return len(store.ListDueCalls()) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(store.MarkStaleCalls()) > 0 }, time.Second, 5*time.Millisecond)
	call := store.MarkStaleCalls()[0]
	assert.Equal(t, 24*time.Hour, call.Now.Sub(call.Cutoff), "default stale window")

	assert.Empty(t, items.ListPendingCalls())
	for range 5 {
		s.TriggerRescore()
	}
	require.Eventually(t, func() bool { return len(items.ListPendingCalls()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, items.ListPendingCalls(), 1, "triggers within the debounce window make one pass")
	assert.Equal(t, 100, items.ListPendingCalls()[0].Limit)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler didn't stop")
	}
}

func TestScheduler_Attach(t *testing.T) {
	store, items, scorer, flags := testMocks()
	items.ListPendingFunc = func(context.Context, int64, int) (map[string][]int64, error) { return nil, nil }
	c := NewCoordinator(Params{Sources: store, Items: items, Scorer: scorer, Flags: flags, Fetcher: &mocks.FetcherMock{}})
	s := NewScheduler(c, Config{IngestInterval: time.Hour, StaleInterval: time.Hour, RescoreInterval: time.Hour,
		RescoreDebounce: time.Millisecond})

	bus := events.NewBus(10)
	unsubscribe := s.Attach(bus)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	bus.Publish(events.Event{Type: events.ScoreComplete, ClientID: "c1"})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, items.ListPendingCalls(), "only backlog events trigger rescoring")

	bus.Publish(events.Event{Type: events.QueueUpdated, ClientID: "c1", Payload: map[string]any{"pending": 600}})
	require.Eventually(t, func() bool { return len(items.ListPendingCalls()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Close(context.Background()))
}

func TestScheduler_RunNow(t *testing.T) {
	store, items, scorer, flags := testMocks(testSource(1, "c1"))
	fetcher := &mocks.FetcherMock{FetchFunc: func(context.Context, fetch.Request) domain.FetchResult {
		return domain.FetchSucceeded(nil, domain.FetchMetadata{})
	}}
	c := NewCoordinator(Params{Sources: store, Items: items, Scorer: scorer, Flags: flags, Fetcher: fetcher, Planner: fastPlanner()})
	s := NewScheduler(c, Config{})
	s.now = func() time.Time { return testNow }

	stats, err := s.RunNow(context.Background(), RunOptions{WorkerLimit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, testNow, store.ListDueCalls()[0].Now)
	assert.Equal(t, 4, store.ListDueCalls()[0].Limit)
}

func TestCoordinator_ConcurrentWithRepository(t *testing.T) {
	ctx := context.Background()
	repos, err := repository.NewRepositories(ctx, repository.Config{
		DSN: "file:" + filepath.Join(t.TempDir(), "scheduler.db") + "?mode=rwc"})
	require.NoError(t, err)
	defer repos.Close()

	clients := []string{"acme", "globex"}
	for _, client := range clients {
		require.NoError(t, repos.Flag.SetFlag(ctx, client, domain.FlagDiscoveryAgent, true))
		_, err = repos.Keyword.SetKeywords(ctx, client, []string{"golang"})
		require.NoError(t, err)
	}
	var sources []*domain.Source
	for i := range 8 {
		src := &domain.Source{ClientID: clients[i%2], Type: domain.SourceRSS, Identifier: fmt.Sprintf("feed-%d", i),
			URL: fmt.Sprintf("https://example.com/feed-%d.xml", i), FetchIntervalMinutes: 60}
		require.NoError(t, repos.Source.CreateSource(ctx, src))
		sources = append(sources, src)
	}

	var mu sync.Mutex
	fetches := map[int64]int{}
	adapter := fetch.AdapterFunc(func(_ context.Context, req fetch.Request) domain.FetchResult {
		mu.Lock()
		fetches[req.SourceID]++
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		if req.SourceID == sources[0].ID {
			return domain.FetchFailed(domain.Failure{Reason: domain.FailureParser, Message: "bad xml"}, domain.FetchMetadata{})
		}
		published := testNow.Add(-time.Hour)
		return domain.FetchSucceeded([]domain.NormalizedItem{
			{ExternalID: req.Identifier + "-1", Title: "golang news", Body: "golang release notes",
				URL: req.URL + "#1", ContentType: domain.ContentRSS, PublishedAt: &published,
				Raw: map[string]any{"guid": req.Identifier + "-1"}},
			{ExternalID: req.Identifier + "-1", Title: "golang news", Body: "golang release notes",
				URL: req.URL + "#1", ContentType: domain.ContentRSS, PublishedAt: &published,
				Raw: map[string]any{"guid": req.Identifier + "-1"}},
		}, domain.FetchMetadata{StatusCode: 200})
	})

	rec := &eventRecorder{}
	noEnv := func(string) (string, bool) { return "", false }
	engine := &scoring.Engine{Items: repos.Item, Scores: repos.Score, Flags: repos.Flag,
		Keywords: scoring.NewKeywordCache(repos.Keyword, time.Minute), Config: scoring.NewConfigCache(noEnv)}
	newCoordinator := func() *Coordinator {
		return NewCoordinator(Params{Sources: repos.Source, Items: repos.Item, Scorer: engine, Flags: repos.Flag,
			Fetcher: adapter, Planner: fastPlanner(), Events: rec, WorkerLimit: 3})
	}

	var wg sync.WaitGroup
	results := make([]RunStats, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, err := newCoordinator().Run(ctx, RunOptions{Now: testNow})
			assert.NoError(t, err)
			results[i] = stats
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, results[0].Processed+results[1].Processed, "every source processed once")
	assert.Equal(t, 1, results[0].Failed+results[1].Failed)
	for _, src := range sources {
		assert.Equal(t, 1, fetches[src.ID], "source %d fetched once", src.ID)
		runs, err := repos.Source.ListRuns(ctx, src.ID, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)

		stored, err := repos.Source.GetSource(ctx, src.ID)
		require.NoError(t, err)
		assert.NotEqual(t, domain.FetchRunning, stored.LastFetchStatus)
		require.NotNil(t, stored.NextFetchAt)
		assert.True(t, stored.NextFetchAt.After(testNow))
		if src.ID == sources[0].ID {
			assert.Equal(t, domain.RunFailed, runs[0].Status)
			assert.Equal(t, domain.FailureParser, stored.LastFailureReason)
			continue
		}
		assert.Equal(t, domain.RunSucceeded, runs[0].Status)
		assert.EqualValues(t, 1, runs[0].Metrics["inserted"])
		assert.EqualValues(t, 1, runs[0].Metrics["duplicates"])
	}

	// scored on ingestion, nothing left pending
	pending, err := repos.Item.ListPending(ctx, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Len(t, rec.ofType(events.IngestionCompleted), 7)
	assert.Len(t, rec.ofType(events.IngestionFailed), 1)

	// next run finds nothing due
	stats, err := newCoordinator().Run(ctx, RunOptions{Now: testNow.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, RunStats{}, stats)
}

func TestCoordinator_DisabledClientsDontBlockEnabled(t *testing.T) {
	ctx := context.Background()
	repos, err := repository.NewRepositories(ctx, repository.Config{
		DSN: "file:" + filepath.Join(t.TempDir(), "scheduler.db") + "?mode=rwc"})
	require.NoError(t, err)
	defer repos.Close()

	require.NoError(t, repos.Flag.SetFlag(ctx, "off", domain.FlagDiscoveryAgent, false))
	require.NoError(t, repos.Flag.SetFlag(ctx, "on", domain.FlagDiscoveryAgent, true))
	_, err = repos.Keyword.SetKeywords(ctx, "on", []string{"golang"})
	require.NoError(t, err)

	overdue := testNow.Add(-24 * time.Hour)
	for i := range 12 {
		src := &domain.Source{ClientID: "off", Type: domain.SourceRSS, Identifier: fmt.Sprintf("off-%d", i),
			URL: fmt.Sprintf("https://example.com/off-%d.xml", i), FetchIntervalMinutes: 60, NextFetchAt: &overdue}
		require.NoError(t, repos.Source.CreateSource(ctx, src))
	}
	recent := testNow.Add(-time.Minute)
	enabled := &domain.Source{ClientID: "on", Type: domain.SourceRSS, Identifier: "on-feed",
		URL: "https://example.com/on.xml", FetchIntervalMinutes: 60, NextFetchAt: &recent}
	require.NoError(t, repos.Source.CreateSource(ctx, enabled))

	var mu sync.Mutex
	var fetched []int64
	adapter := fetch.AdapterFunc(func(_ context.Context, req fetch.Request) domain.FetchResult {
		mu.Lock()
		fetched = append(fetched, req.SourceID)
		mu.Unlock()
		return domain.FetchSucceeded(nil, domain.FetchMetadata{StatusCode: 200})
	})
	noEnv := func(string) (string, bool) { return "", false }
	engine := &scoring.Engine{Items: repos.Item, Scores: repos.Score, Flags: repos.Flag,
		Keywords: scoring.NewKeywordCache(repos.Keyword, time.Minute), Config: scoring.NewConfigCache(noEnv)}
	c := NewCoordinator(Params{Sources: repos.Source, Items: repos.Item, Scorer: engine, Flags: repos.Flag,
		Fetcher: adapter, Planner: fastPlanner(), WorkerLimit: 3})

	// batch is workerLimit*4, exactly the size of the disabled backlog
	for range 3 {
		stats, err := c.Run(ctx, RunOptions{Now: testNow})
		require.NoError(t, err)
		assert.Zero(t, stats.Skipped)
	}
	assert.Equal(t, []int64{enabled.ID}, fetched)

	got, err := repos.Source.GetSource(ctx, enabled.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FetchSuccess, got.LastFetchStatus)
}

func TestCoordinator_RescorePendingPastDisabledBacklog(t *testing.T) {
	ctx := context.Background()
	repos, err := repository.NewRepositories(ctx, repository.Config{
		DSN: "file:" + filepath.Join(t.TempDir(), "scheduler.db") + "?mode=rwc"})
	require.NoError(t, err)
	defer repos.Close()

	require.NoError(t, repos.Flag.SetFlag(ctx, "off", domain.FlagDiscoveryAgent, false))
	require.NoError(t, repos.Flag.SetFlag(ctx, "on", domain.FlagDiscoveryAgent, true))
	_, err = repos.Keyword.SetKeywords(ctx, "on", []string{"golang"})
	require.NoError(t, err)

	mkItem := func(clientID string, sourceID int64, n int) domain.Item {
		published := testNow.Add(-time.Hour)
		return domain.Item{ClientID: clientID, SourceID: sourceID, ExternalID: fmt.Sprintf("guid-%d", n),
			Title: "golang news", URL: fmt.Sprintf("https://example.com/%d", n), RawHash: fmt.Sprintf("hash-%d", n),
			FetchedAt: testNow, PublishedAt: &published, PublishedAtSource: domain.PublishedFeed,
			Normalized: domain.NormalizedItem{ExternalID: fmt.Sprintf("guid-%d", n), Title: "golang news",
				Body: "golang release notes", URL: fmt.Sprintf("https://example.com/%d", n), ContentType: domain.ContentRSS},
			RawPayload: map[string]any{"guid": fmt.Sprintf("guid-%d", n)}}
	}
	var ids []int64
	for i, client := range []string{"off", "on"} {
		src := &domain.Source{ClientID: client, Type: domain.SourceRSS, Identifier: fmt.Sprintf("feed-%d", i),
			URL: fmt.Sprintf("https://example.com/feed-%d.xml", i), FetchIntervalMinutes: 60}
		require.NoError(t, repos.Source.CreateSource(ctx, src))
		batch := []domain.Item{mkItem(client, src.ID, i*10)}
		if client == "off" {
			batch = append(batch, mkItem(client, src.ID, i*10+1), mkItem(client, src.ID, i*10+2))
		}
		res, err := repos.Item.InsertItems(ctx, batch)
		require.NoError(t, err)
		ids = append(ids, res.Inserted...)
	}
	require.Len(t, ids, 4)

	noEnv := func(string) (string, bool) { return "", false }
	engine := &scoring.Engine{Items: repos.Item, Scores: repos.Score, Flags: repos.Flag,
		Keywords: scoring.NewKeywordCache(repos.Keyword, time.Minute), Config: scoring.NewConfigCache(noEnv)}
	c := NewCoordinator(Params{Sources: repos.Source, Items: repos.Item, Scorer: engine, Flags: repos.Flag})

	n, err := c.RescorePending(ctx, 3, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	score, err := repos.Score.GetScore(ctx, ids[3])
	require.NoError(t, err)
	assert.Equal(t, "on", score.ClientID)

	offPending, err := repos.Item.CountPending(ctx, "off")
	require.NoError(t, err)
	assert.Equal(t, 3, offPending, "disabled client's items left alone")
}
