// Package feed implements the RSS/Atom discovery adapter
package feed

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/umputun/discovery/pkg/content"
	"github.com/umputun/discovery/pkg/domain"
	"github.com/umputun/discovery/pkg/fetch"
)

const acceptFeed = "application/rss+xml,application/atom+xml,application/xml;q=0.9,text/xml;q=0.8,*/*;q=0.5"

const derivedTitleLength = 120

// Parser fetches RSS/Atom feeds and normalizes their entries
type Parser struct {
	client    *http.Client
	userAgent string
	maxBody   int
}

// NewParser creates a new feed parser, maxBody limits sanitized entry bodies (0 for no limit)
func NewParser(timeout time.Duration, userAgent string, maxBody int) *Parser {
	return &Parser{client: fetch.NewHTTPClient(timeout), userAgent: userAgent, maxBody: maxBody}
}

// Fetch downloads the feed and normalizes every usable entry. Entries without content or link are
// skipped one by one, only an undecodable document fails the whole fetch.
func (p *Parser) Fetch(ctx context.Context, req fetch.Request) domain.FetchResult {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, http.NoBody)
	if err != nil {
		return domain.FetchFailed(domain.Failure{Reason: domain.FailureUnknown, Message: err.Error()}, domain.FetchMetadata{})
	}
	content.AddBrowserHeaders(httpReq, p.userAgent, acceptFeed)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return domain.FetchFailed(fetch.TransportFailure(ctx, err), domain.FetchMetadata{})
	}
	defer resp.Body.Close()

	meta := domain.FetchMetadata{StatusCode: resp.StatusCode, ContentType: resp.Header.Get("Content-Type")}
	if f, failed := fetch.StatusFailure(resp); failed {
		return domain.FetchFailed(f, meta)
	}

	body, bf := fetch.ReadBody(ctx, resp)
	if bf != nil {
		return domain.FetchFailed(*bf, meta)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return domain.FetchFailed(domain.Failure{Reason: domain.FailureParser, Message: "empty feed document"}, meta)
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return domain.FetchFailed(domain.Failure{Reason: domain.FailureParser, Message: "parse feed: " + err.Error()}, meta)
	}

	base := baseURL(parsed, req.URL)
	items := make([]domain.NormalizedItem, 0, len(parsed.Items))
	for i, entry := range parsed.Items {
		item, reason := p.normalize(entry, parsed, base, req.Now)
		if reason != "" {
			meta.Skipped = append(meta.Skipped, domain.SkippedEntry{Index: i, ExternalID: externalID(entry), Reason: reason})
			continue
		}
		item.Position = i
		items = append(items, item)
	}

	meta.Extra = map[string]any{"feedTitle": parsed.Title, "feedType": parsed.FeedType, "entries": len(parsed.Items)}
	return domain.FetchSucceeded(items, meta)
}

// normalize converts a feed entry, returns a skip reason if the entry can't be used
func (p *Parser) normalize(entry *gofeed.Item, feed *gofeed.Feed, base *url.URL, now time.Time) (domain.NormalizedItem, string) {
	if entry == nil {
		return domain.NormalizedItem{}, fetch.SkipInvalidItem
	}

	link := entryLink(entry, base)
	if link == "" {
		return domain.NormalizedItem{}, fetch.SkipMissingLink
	}

	rawBody := entry.Content
	if strings.TrimSpace(rawBody) == "" {
		rawBody = entry.Description
	}
	body := content.Sanitize(rawBody, p.maxBody)
	if body == "" {
		return domain.NormalizedItem{}, fetch.SkipEmptyContent
	}

	title := content.Sanitize(entry.Title, 0)
	if title == "" {
		title = content.Excerpt(body, derivedTitleLength)
	}

	excerpt := content.Sanitize(entry.Description, 0)
	if excerpt == "" {
		excerpt = body
	}

	id := strings.TrimSpace(entry.GUID)
	if id == "" {
		id = link
	}

	item := domain.NormalizedItem{
		ExternalID:  id,
		Title:       title,
		URL:         link,
		ContentType: domain.ContentRSS,
		Body:        body,
		Excerpt:     content.Excerpt(excerpt, content.DefaultExcerptLength),
		Language:    primaryLanguage(feed.Language),
		Author:      author(entry),
		Categories:  entry.Categories,
		Metadata:    map[string]any{"feedTitle": feed.Title},
	}

	switch {
	case entry.PublishedParsed != nil:
		ts := entry.PublishedParsed.UTC()
		item.PublishedAt, item.PublishedAtSource = &ts, domain.PublishedFeed
	case entry.UpdatedParsed != nil:
		ts := entry.UpdatedParsed.UTC()
		item.PublishedAt, item.PublishedAtSource = &ts, domain.PublishedFeed
	default:
		ts := now.UTC()
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		item.PublishedAt, item.PublishedAtSource = &ts, domain.PublishedFallback
	}

	item.Raw = map[string]any{
		"guid":        entry.GUID,
		"link":        entry.Link,
		"title":       entry.Title,
		"description": entry.Description,
		"content":     entry.Content,
		"published":   entry.Published,
		"updated":     entry.Updated,
		"categories":  entry.Categories,
	}
	return item, ""
}

func externalID(entry *gofeed.Item) string {
	if entry == nil {
		return ""
	}
	if entry.GUID != "" {
		return strings.TrimSpace(entry.GUID)
	}
	return strings.TrimSpace(entry.Link)
}

// entryLink returns the absolute entry link, relative links are resolved against the feed site
func entryLink(entry *gofeed.Item, base *url.URL) string {
	link := strings.TrimSpace(entry.Link)
	if link == "" && len(entry.Links) > 0 {
		link = strings.TrimSpace(entry.Links[0])
	}
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if !u.IsAbs() {
		if base == nil {
			return ""
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func baseURL(feed *gofeed.Feed, feedURL string) *url.URL {
	for _, candidate := range []string{feed.Link, feedURL} {
		if u, err := url.Parse(candidate); err == nil && u.IsAbs() {
			return u
		}
	}
	return nil
}

func author(entry *gofeed.Item) string {
	if entry.Author != nil && entry.Author.Name != "" {
		return entry.Author.Name
	}
	for _, a := range entry.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}

func primaryLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if idx := strings.IndexAny(lang, "-_"); idx > 0 {
		lang = lang[:idx]
	}
	return lang
}
