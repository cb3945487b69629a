// Package page implements the web-page discovery adapter. A page is fetched with a single GET,
// its metadata is read from the document head and the main text is extracted and sanitized.
package page

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"golang.org/x/net/html/charset"

	"github.com/umputun/discovery/pkg/content"
	"github.com/umputun/discovery/pkg/domain"
	"github.com/umputun/discovery/pkg/fetch"
)

const acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

var titleSelectors = []string{
	`meta[property="og:title"]`,
	`meta[name="twitter:title"]`,
	`meta[name="title"]`,
}

var publishedSelectors = []string{
	`meta[property="article:published_time"]`,
	`meta[name="article:published_time"]`,
	`meta[itemprop="datePublished"]`,
	`meta[name="pubdate"]`,
	`meta[name="publish-date"]`,
	`meta[name="date"]`,
	`meta[name="dc.date"]`,
}

// Options for the page adapter
type Options struct {
	Timeout       time.Duration
	UserAgent     string
	MaxBodyLength int // max characters of extracted body, 0 for no limit
	Client        *http.Client
}

// Adapter fetches web pages
type Adapter struct {
	client    *http.Client
	userAgent string
	extractor *content.Extractor
}

// New makes a page adapter
func New(opts Options) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = fetch.NewHTTPClient(opts.Timeout)
	}
	return &Adapter{client: client, userAgent: opts.UserAgent, extractor: content.NewExtractor(opts.MaxBodyLength)}
}

// Fetch downloads the page and returns it as a single normalized article
func (a *Adapter) Fetch(ctx context.Context, req fetch.Request) domain.FetchResult {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, http.NoBody)
	if err != nil {
		return domain.FetchFailed(domain.Failure{Reason: domain.FailureUnknown, Message: err.Error()}, domain.FetchMetadata{})
	}
	content.AddBrowserHeaders(httpReq, a.userAgent, acceptHTML)

	resp, err := a.client.Do(httpReq)
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
		return domain.FetchFailed(domain.Failure{Reason: domain.FailureParser, Message: "empty response body"}, meta)
	}
	if !isHTML(meta.ContentType) {
		return domain.FetchFailed(domain.Failure{Reason: domain.FailureParser, Message: "unsupported content type " + meta.ContentType}, meta)
	}

	doc, err := utf8Document(body, meta.ContentType)
	if err != nil {
		return domain.FetchFailed(domain.Failure{Reason: domain.FailureParser, Message: err.Error()}, meta)
	}

	item, err := a.normalize(doc, req)
	if err != nil {
		return domain.FetchFailed(domain.Failure{Reason: domain.FailureParser, Message: err.Error()}, meta)
	}
	meta.Extra = map[string]any{"finalUrl": resp.Request.URL.String(), "bytes": len(body)}
	return domain.FetchSucceeded([]domain.NormalizedItem{item}, meta)
}

// normalize builds the article item from the decoded page
func (a *Adapter) normalize(doc []byte, req fetch.Request) (domain.NormalizedItem, error) {
	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return domain.NormalizedItem{}, err
	}

	text, err := a.extractor.Extract(doc, req.URL)
	if err != nil {
		if errors.Is(err, content.ErrNoContent) {
			return domain.NormalizedItem{}, errors.New("page has no readable content")
		}
		return domain.NormalizedItem{}, err
	}

	title := pageTitle(gq)
	description := metaContent(gq, `meta[name="description"]`, `meta[property="og:description"]`)
	rawPublished, published := publishedAt(gq)

	item := domain.NormalizedItem{
		ExternalID:  req.URL,
		Title:       title,
		URL:         req.URL,
		ContentType: domain.ContentArticle,
		Body:        text,
		Language:    language(gq),
		Author:      metaContent(gq, `meta[name="author"]`, `meta[property="article:author"]`),
		Categories:  categories(gq),
		Metadata:    map[string]any{},
	}

	if description != "" {
		item.Excerpt = content.Excerpt(content.Sanitize(description, 0), content.DefaultExcerptLength)
	} else {
		item.Excerpt = content.Excerpt(text, content.DefaultExcerptLength)
	}

	if published != nil {
		item.PublishedAt, item.PublishedAtSource = published, domain.PublishedOriginal
	} else {
		now := req.Now.UTC()
		if now.IsZero() {
			now = time.Now().UTC()
		}
		item.PublishedAt, item.PublishedAtSource = &now, domain.PublishedFallback
	}

	if site := metaContent(gq, `meta[property="og:site_name"]`); site != "" {
		item.Metadata["siteName"] = site
	}
	if image := metaContent(gq, `meta[property="og:image"]`); image != "" {
		item.Metadata["image"] = image
	}

	// the fetch time is not part of raw, the same page content must hash the same on every fetch
	item.Raw = map[string]any{
		"url":         req.URL,
		"title":       title,
		"description": description,
		"published":   rawPublished,
		"body":        text,
	}
	return item, nil
}

func pageTitle(doc *goquery.Document) string {
	if t := metaContent(doc, titleSelectors...); t != "" {
		return t
	}
	if t := clean(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return clean(doc.Find("h1").First().Text())
}

// publishedAt returns the raw published value and its parsed form, nil if not found or not parsable
func publishedAt(doc *goquery.Document) (string, *time.Time) {
	candidates := make([]string, 0, len(publishedSelectors)+1)
	for _, sel := range publishedSelectors {
		if v := metaContent(doc, sel); v != "" {
			candidates = append(candidates, v)
		}
	}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok && strings.TrimSpace(v) != "" {
		candidates = append(candidates, strings.TrimSpace(v))
	}
	for _, c := range candidates {
		if ts, err := dateparse.ParseAny(c); err == nil && !ts.IsZero() {
			ts = ts.UTC()
			return c, &ts
		}
	}
	return "", nil
}

func language(doc *goquery.Document) string {
	lang, _ := doc.Find("html").First().Attr("lang")
	if strings.TrimSpace(lang) == "" {
		lang = metaContent(doc, `meta[http-equiv="content-language"]`, `meta[http-equiv="Content-Language"]`,
			`meta[property="og:locale"]`)
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	if idx := strings.IndexAny(lang, "-_"); idx > 0 {
		lang = lang[:idx]
	}
	return lang
}

func categories(doc *goquery.Document) []string {
	var res []string
	seen := map[string]bool{}
	add := func(v string) {
		v = clean(v)
		if v == "" || seen[strings.ToLower(v)] {
			return
		}
		seen[strings.ToLower(v)] = true
		res = append(res, v)
	}
	doc.Find(`meta[property="article:tag"],meta[property="article:section"]`).Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("content", ""))
	})
	for _, kw := range strings.Split(metaContent(doc, `meta[name="keywords"]`), ",") {
		add(kw)
	}
	return res
}

// metaContent returns the first non-empty content attribute among selectors
func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v := clean(doc.Find(sel).First().AttrOr("content", "")); v != "" {
			return v
		}
	}
	return ""
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true // sniff nothing, let the parser decide
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}
	return mt == "text/html" || mt == "application/xhtml+xml" || mt == "text/plain"
}

// utf8Document converts the body to UTF-8 using the declared or detected charset
func utf8Document(body []byte, contentType string) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body, nil //nolint:nilerr // unknown charset, keep bytes as is
	}
	return io.ReadAll(r)
}
