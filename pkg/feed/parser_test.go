package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/discovery/pkg/domain"
	"github.com/umputun/discovery/pkg/fetch"
)

const rssFive = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
	<title>Example Feed</title>
	<link>https://example.com</link>
	<language>en-us</language>
	<item>
		<title>First &amp; foremost</title>
		<link>https://example.com/1</link>
		<guid>guid-1</guid>
		<description><![CDATA[<p>First <b>post</b> body.</p>]]></description>
		<pubDate>Mon, 29 Apr 2024 10:00:00 GMT</pubDate>
		<category>go</category>
		<author>joe@example.com (Joe)</author>
	</item>
	<item>
		<title>Second</title>
		<link>https://example.com/2</link>
		<guid>guid-2</guid>
		<description>Second body</description>
	</item>
	<item>
		<title>Empty one</title>
		<link>https://example.com/3</link>
		<guid>guid-3</guid>
		<description></description>
	</item>
	<item>
		<title>Relative</title>
		<link>/posts/4</link>
		<description>Fourth body</description>
	</item>
	<item>
		<link>https://example.com/5</link>
		<guid>guid-5</guid>
		<description>Untitled entry with a body that becomes the title.</description>
	</item>
</channel>
</rss>`

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
	<title>Atom Example</title>
	<link href="https://atom.example.com/"/>
	<updated>2024-04-30T18:30:02Z</updated>
	<id>urn:uuid:feed</id>
	<entry>
		<title>Atom entry</title>
		<link href="https://atom.example.com/entry"/>
		<id>urn:uuid:entry-1</id>
		<updated>2024-04-30T18:30:02Z</updated>
		<summary>Short summary</summary>
		<content type="html">&lt;p&gt;Full atom content&lt;/p&gt;</content>
		<author><name>Alice</name></author>
	</entry>
	<entry>
		<title>No link</title>
		<id>urn:uuid:entry-2</id>
		<updated>2024-04-30T18:30:02Z</updated>
		<summary>Body without link</summary>
	</entry>
</feed>`

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
}

func TestParser_FetchRSS(t *testing.T) {
	ts := serve(t, "application/rss+xml", rssFive)
	defer ts.Close()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := NewParser(time.Second, "discovery-test", 0)
	res := p.Fetch(context.Background(), fetch.Request{Type: domain.SourceRSS, URL: ts.URL + "/feed.xml", Now: now})
	require.True(t, res.OK(), "%+v", res.Failure)
	require.Len(t, res.Items, 4)
	require.Len(t, res.Metadata.Skipped, 1)
	assert.Equal(t, domain.SkippedEntry{Index: 2, ExternalID: "guid-3", Reason: fetch.SkipEmptyContent}, res.Metadata.Skipped[0])

	first := res.Items[0]
	require.NoError(t, first.Validate())
	assert.Equal(t, "guid-1", first.ExternalID)
	assert.Equal(t, "First & foremost", first.Title)
	assert.Equal(t, "First post body.", first.Body)
	assert.Equal(t, domain.ContentRSS, first.ContentType)
	assert.Equal(t, "en", first.Language)
	assert.Equal(t, []string{"go"}, first.Categories)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, time.Date(2024, 4, 29, 10, 0, 0, 0, time.UTC), *first.PublishedAt)
	assert.Equal(t, domain.PublishedFeed, first.PublishedAtSource)
	assert.Equal(t, "guid-1", first.Raw["guid"])

	second := res.Items[1]
	require.NotNil(t, second.PublishedAt)
	assert.Equal(t, now, *second.PublishedAt)
	assert.Equal(t, domain.PublishedFallback, second.PublishedAtSource)

	relative := res.Items[2]
	assert.Equal(t, 3, relative.Position, "entry index in the feed")
	assert.Equal(t, "https://example.com/posts/4", relative.URL)
	assert.Equal(t, "https://example.com/posts/4", relative.ExternalID)

	untitled := res.Items[3]
	assert.Equal(t, "Untitled entry with a body that becomes the title.", untitled.Title)
	assert.Equal(t, 5, res.Metadata.Extra["entries"])
}

func TestParser_FetchAtom(t *testing.T) {
	ts := serve(t, "application/atom+xml", atomFeed)
	defer ts.Close()

	res := NewParser(time.Second, "", 0).Fetch(context.Background(), fetch.Request{URL: ts.URL})
	require.True(t, res.OK(), "%+v", res.Failure)
	require.Len(t, res.Items, 1)
	require.Len(t, res.Metadata.Skipped, 1)
	assert.Equal(t, fetch.SkipMissingLink, res.Metadata.Skipped[0].Reason)

	item := res.Items[0]
	assert.Equal(t, "urn:uuid:entry-1", item.ExternalID)
	assert.Equal(t, "https://atom.example.com/entry", item.URL)
	assert.Equal(t, "Full atom content", item.Body)
	assert.Equal(t, "Short summary", item.Excerpt)
	assert.Equal(t, "Alice", item.Author)
	assert.Equal(t, domain.PublishedFeed, item.PublishedAtSource)
	assert.Equal(t, "atom", res.Metadata.Extra["feedType"])
}

func TestParser_FetchFailures(t *testing.T) {
	t.Run("malformed document", func(t *testing.T) {
		ts := serve(t, "text/html", "<html><body>not a feed</body></html>")
		defer ts.Close()
		res := NewParser(time.Second, "", 0).Fetch(context.Background(), fetch.Request{URL: ts.URL})
		require.False(t, res.OK())
		assert.Equal(t, domain.FailureParser, res.Failure.Reason)
	})

	t.Run("empty document", func(t *testing.T) {
		ts := serve(t, "application/rss+xml", "")
		defer ts.Close()
		res := NewParser(time.Second, "", 0).Fetch(context.Background(), fetch.Request{URL: ts.URL})
		require.False(t, res.OK())
		assert.Equal(t, domain.FailureParser, res.Failure.Reason)
	})

	t.Run("server error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer ts.Close()
		res := NewParser(time.Second, "", 0).Fetch(context.Background(), fetch.Request{URL: ts.URL})
		require.False(t, res.OK())
		assert.Equal(t, domain.FailureHTTP5xx, res.Failure.Reason)
		assert.Equal(t, 502, res.Failure.StatusCode)
	})

	t.Run("gone", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusGone)
		}))
		defer ts.Close()
		res := NewParser(time.Second, "", 0).Fetch(context.Background(), fetch.Request{URL: ts.URL})
		require.False(t, res.OK())
		assert.Equal(t, domain.FailureHTTP4xx, res.Failure.Reason)
	})
}
