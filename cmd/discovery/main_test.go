package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/discovery/pkg/domain"
	"github.com/umputun/discovery/pkg/repository"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Acme blog</title><link>https://acme.example.com</link>
<item><title>Go 1.23 released</title><link>https://acme.example.com/go-123</link>
<description>Range over func iterators and golang toolchain news.</description>
<pubDate>Mon, 01 Jul 2024 10:00:00 GMT</pubDate></item>
<item><title>SQLite in production</title><link>https://acme.example.com/sqlite</link>
<description>WAL mode, busy timeouts and the rest of sqlite tuning.</description>
<pubDate>Tue, 02 Jul 2024 10:00:00 GMT</pubDate></item>
</channel></rss>`

func TestRun_MissingConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := run(ctx, Opts{Config: "non-existent-config.yml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRun_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "broken yaml", content: "invalid: yaml: content: ["},
		{name: "invalid values", content: "ingestion:\n  interval: 1m\n  stale_after: 30s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := run(ctx, Opts{Config: path})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to load config")
		})
	}
}

func TestRun_Once(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, testFeed)
	}))
	defer ts.Close()

	dsn := "file:" + filepath.Join(t.TempDir(), "discovery.db") + "?mode=rwc"
	ctx := context.Background()

	// register a source for an enabled client
	repos, err := repository.NewRepositories(ctx, repository.Config{DSN: dsn})
	require.NoError(t, err)
	src := &domain.Source{ClientID: "acme", Type: domain.SourceRSS, Identifier: ts.URL + "/feed.xml", URL: ts.URL + "/feed.xml"}
	require.NoError(t, repos.Source.CreateSource(ctx, src))
	require.NoError(t, repos.Flag.SetFlag(ctx, "acme", domain.FlagDiscoveryAgent, true))
	_, err = repos.Keyword.SetKeywords(ctx, "acme", []string{"golang", "sqlite"})
	require.NoError(t, err)
	require.NoError(t, repos.Close())

	require.NoError(t, run(ctx, Opts{DSN: dsn, Once: true}))

	repos, err = repository.NewRepositories(ctx, repository.Config{DSN: dsn})
	require.NoError(t, err)
	defer repos.Close()

	runs, err := repos.Source.ListRuns(ctx, src.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunSucceeded, runs[0].Status)

	var items int
	require.NoError(t, repos.DB.GetContext(ctx, &items, "SELECT COUNT(*) FROM discovery_items WHERE source_id = ?", src.ID))
	assert.Equal(t, 2, items)

	got, err := repos.Source.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FetchSuccess, got.LastFetchStatus)
	require.NotNil(t, got.NextFetchAt)
	assert.True(t, got.NextFetchAt.After(time.Now()))

	// second pass finds nothing due
	require.NoError(t, run(ctx, Opts{DSN: dsn, Once: true}))
	runs, err = repos.Source.ListRuns(ctx, src.ID, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRun_ServerStartStop(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := Opts{
		Listen: fmt.Sprintf("127.0.0.1:%d", port),
		DSN:    "file:" + filepath.Join(t.TempDir(), "discovery.db") + "?mode=rwc",
	}
	done := make(chan error, 1)
	go func() { done <- run(ctx, opts) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/ping")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "discovery_active_tasks")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server didn't stop")
	}
}

func TestSetupLog(t *testing.T) {
	defer lgr.Setup(lgr.Out(io.Discard), lgr.Err(io.Discard))

	t.Run("debug", func(t *testing.T) {
		setupLog(true, false)
	})

	t.Run("no color", func(t *testing.T) {
		setupLog(false, true)
	})

	t.Run("secrets are masked", func(t *testing.T) {
		setupLog(false, true, "", "yt-secret-key")
		out := &captureWriter{}
		lgr.Setup(lgr.Out(out), lgr.Secret("yt-secret-key"))
		lgr.Printf("[INFO] calling api with key yt-secret-key")
		assert.NotContains(t, out.String(), "yt-secret-key")
		assert.Contains(t, out.String(), "calling api with key")
	})
}

func TestRun_MasksConfigAPIKey(t *testing.T) {
	defer func() {
		lgr.SetupStdLogger(lgr.Out(io.Discard), lgr.Err(io.Discard))
		lgr.Setup(lgr.Out(io.Discard), lgr.Err(io.Discard))
	}()
	t.Setenv("YOUTUBE_API_KEY", "")

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("youtube:\n  api_key: yaml-secret-key\n"), 0o600))
	dsn := "file:" + filepath.Join(t.TempDir(), "discovery.db") + "?mode=rwc"

	// the logger made by run writes to os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	origStdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = origStdout }()
	done := make(chan []byte)
	go func() {
		data, _ := io.ReadAll(r)
		done <- data
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, run(ctx, Opts{Config: path, DSN: dsn, Once: true, NoColor: true}))
	log.Printf("[INFO] calling api with key yaml-secret-key")
	require.NoError(t, w.Close())
	os.Stdout = origStdout
	out := string(<-done)

	assert.Contains(t, out, "calling api with key")
	assert.NotContains(t, out, "yaml-secret-key")
}

type captureWriter struct{ buf []byte }

func (c *captureWriter) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *captureWriter) String() string { return string(c.buf) }
