package domain

import (
	"errors"
	"fmt"
	"net/url"
	"time"
	"unicode/utf8"
)

// ItemStatus is the lifecycle status of a discovered item
type ItemStatus string

// item statuses
const (
	ItemPendingScoring ItemStatus = "pending_scoring"
	ItemScored         ItemStatus = "scored"
	ItemSuppressed     ItemStatus = "suppressed"
	ItemPromoted       ItemStatus = "promoted"
	ItemArchived       ItemStatus = "archived"
)

// PublishedAtSource tells where the published timestamp of an item came from
type PublishedAtSource string

// published-at sources
const (
	PublishedOriginal PublishedAtSource = "original"
	PublishedFallback PublishedAtSource = "fallback"
	PublishedFeed     PublishedAtSource = "feed"
	PublishedAPI      PublishedAtSource = "api"
)

// ContentType is the kind of content an item carries
type ContentType string

// content types
const (
	ContentArticle ContentType = "article"
	ContentRSS     ContentType = "rss"
	ContentYouTube ContentType = "youtube"
)

const (
	maxTitleLen   = 1000
	maxExcerptLen = 320
)

// NormalizedItem is the adapter-independent shape of a discovered content item
type NormalizedItem struct {
	ExternalID        string            `json:"externalId"`
	Title             string            `json:"title"`
	URL               string            `json:"url"`
	ContentType       ContentType       `json:"contentType"`
	Body              string            `json:"body,omitempty"`
	Excerpt           string            `json:"excerpt,omitempty"`
	PublishedAt       *time.Time        `json:"publishedAt,omitempty"`
	PublishedAtSource PublishedAtSource `json:"publishedAtSource,omitempty"`
	Language          string            `json:"language,omitempty"`
	Author            string            `json:"author,omitempty"`
	Categories        []string          `json:"categories,omitempty"`
	DurationSeconds   int               `json:"durationSeconds,omitempty"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
	Raw               map[string]any    `json:"-"`
	Position          int               `json:"-"` // index of the entry in the fetched document
}

// Validate checks the item against the normalized item schema
func (n NormalizedItem) Validate() error {
	var errs []error
	if n.ExternalID == "" {
		errs = append(errs, errors.New("externalId is required"))
	}
	if n.Title == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if utf8.RuneCountInString(n.Title) > maxTitleLen {
		errs = append(errs, fmt.Errorf("title longer than %d characters", maxTitleLen))
	}
	if u, err := url.Parse(n.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("url %q is not an absolute http(s) url", n.URL))
	}
	switch n.ContentType {
	case ContentArticle, ContentRSS, ContentYouTube:
	default:
		errs = append(errs, fmt.Errorf("unknown content type %q", n.ContentType))
	}
	switch n.PublishedAtSource {
	case "", PublishedOriginal, PublishedFallback, PublishedFeed, PublishedAPI:
	default:
		errs = append(errs, fmt.Errorf("unknown published-at source %q", n.PublishedAtSource))
	}
	if utf8.RuneCountInString(n.Excerpt) > maxExcerptLen {
		errs = append(errs, fmt.Errorf("excerpt longer than %d characters", maxExcerptLen))
	}
	if n.DurationSeconds < 0 {
		errs = append(errs, errors.New("durationSeconds must not be negative"))
	}
	return errors.Join(errs...)
}

// Item is a persisted discovered content item
type Item struct {
	ID                int64
	ClientID          string
	SourceID          int64
	ExternalID        string
	Title             string
	URL               string
	Status            ItemStatus
	RawHash           string
	FetchedAt         time.Time
	PublishedAt       *time.Time
	PublishedAtSource PublishedAtSource
	Normalized        NormalizedItem
	RawPayload        map[string]any
	SourceMetadata    map[string]any
	CreatedAt         time.Time
}
