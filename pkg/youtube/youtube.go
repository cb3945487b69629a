// Package youtube implements the discovery adapter for YouTube channels and playlists on top of
// the YouTube Data API v3. Channel handles, legacy usernames and custom urls are resolved to an
// uploads playlist in at most two API calls, playlist items are normalized into video items.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/umputun/discovery/pkg/content"
	"github.com/umputun/discovery/pkg/domain"
	"github.com/umputun/discovery/pkg/fetch"
)

// DefaultBaseURL is the YouTube Data API endpoint
const DefaultBaseURL = "https://youtube.googleapis.com/"

const (
	defaultMaxResults = 25
	maxResultsLimit   = 50
	maxResolveHops    = 2
	watchURL          = "https://www.youtube.com/watch?v="
)

var errChannelNotFound = errors.New("channel not found")

// Options for the YouTube adapter
type Options struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
	Client     *http.Client
}

// Adapter fetches recent videos of channels and playlists
type Adapter struct {
	svc        *yt.Service
	apiKey     string
	maxResults int64
}

// New makes a YouTube adapter
func New(ctx context.Context, opts Options) (*Adapter, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(opts.BaseURL, "/") {
		opts.BaseURL += "/"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = fetch.NewHTTPClient(opts.Timeout)
	}

	svc, err := yt.NewService(ctx, option.WithHTTPClient(client), option.WithEndpoint(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("make youtube service: %w", err)
	}
	return &Adapter{svc: svc, apiKey: opts.APIKey, maxResults: int64(clampResults(opts.MaxResults))}, nil
}

// Fetch lists the latest videos of a channel (its uploads playlist) or of a playlist
func (a *Adapter) Fetch(ctx context.Context, req fetch.Request) domain.FetchResult {
	meta := domain.FetchMetadata{Extra: map[string]any{}}

	playlistID := req.Config.PlaylistID
	if playlistID == "" && req.Type == domain.SourceYouTubePlaylist {
		playlistID = req.Identifier
	}
	channelID := req.Config.ChannelID
	if playlistID == "" {
		uploads, chID, hops, err := a.resolveUploads(ctx, req.Identifier, req.Config.ChannelID)
		meta.Hops = hops
		if err != nil {
			return domain.FetchFailed(a.failure(ctx, err), meta)
		}
		playlistID, channelID = uploads, chID
	}
	meta.Extra["playlistId"] = playlistID
	if channelID != "" {
		meta.Extra["channelId"] = channelID
	}

	maxResults := a.maxResults
	if req.Config.MaxResults > 0 {
		maxResults = int64(clampResults(req.Config.MaxResults))
	}
	resp, err := a.svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
		PlaylistId(playlistID).MaxResults(maxResults).Context(ctx).Do(a.callOpts()...)
	if err != nil {
		return domain.FetchFailed(a.failure(ctx, err), meta)
	}
	meta.StatusCode = resp.HTTPStatusCode

	videos := a.videoDetails(ctx, resp.Items)
	items := make([]domain.NormalizedItem, 0, len(resp.Items))
	for i, pi := range resp.Items {
		item, reason := a.normalize(pi, videos, playlistID, req.Now)
		if reason != "" {
			meta.Skipped = append(meta.Skipped, domain.SkippedEntry{Index: i, ExternalID: videoID(pi), Reason: reason})
			continue
		}
		item.Position = i
		items = append(items, item)
	}
	return domain.FetchSucceeded(items, meta)
}

// resolveUploads finds the uploads playlist of a channel identifier, returns the number of API calls made
func (a *Adapter) resolveUploads(ctx context.Context, identifier, channelID string) (uploads, chID string, hops int, err error) {
	lookup := func(call *yt.ChannelsListCall) (string, string, error) {
		hops++
		resp, err := call.MaxResults(1).Context(ctx).Do(a.callOpts()...)
		if err != nil {
			return "", "", err
		}
		if len(resp.Items) == 0 || resp.Items[0] == nil {
			return "", "", errChannelNotFound
		}
		ch := resp.Items[0]
		if ch.ContentDetails != nil && ch.ContentDetails.RelatedPlaylists != nil && ch.ContentDetails.RelatedPlaylists.Uploads != "" {
			return ch.ContentDetails.RelatedPlaylists.Uploads, ch.Id, nil
		}
		return uploadsPlaylist(ch.Id), ch.Id, nil
	}
	search := func(q string) (string, string, error) {
		hops++
		resp, err := a.svc.Search.List([]string{"snippet"}).Q(q).Type("channel").MaxResults(1).Context(ctx).Do(a.callOpts()...)
		if err != nil {
			return "", "", err
		}
		for _, r := range resp.Items {
			id := ""
			if r.Id != nil {
				id = r.Id.ChannelId
			}
			if id == "" && r.Snippet != nil {
				id = r.Snippet.ChannelId
			}
			if id != "" {
				return uploadsPlaylist(id), id, nil
			}
		}
		return "", "", errChannelNotFound
	}
	channels := func() *yt.ChannelsListCall {
		return a.svc.Channels.List([]string{"id", "contentDetails"})
	}

	identifier = strings.TrimSpace(identifier)
	switch {
	case channelID != "":
		uploads, chID, err = lookup(channels().Id(channelID))
	case isChannelID(identifier):
		uploads, chID, err = lookup(channels().Id(identifier))
	case strings.HasPrefix(identifier, "@"):
		uploads, chID, err = lookup(channels().ForHandle(identifier))
		if errors.Is(err, errChannelNotFound) && hops < maxResolveHops {
			uploads, chID, err = search(identifier)
		}
	case strings.HasPrefix(identifier, "user/"):
		name := strings.TrimPrefix(identifier, "user/")
		uploads, chID, err = lookup(channels().ForUsername(name))
		if errors.Is(err, errChannelNotFound) && hops < maxResolveHops {
			uploads, chID, err = search(name)
		}
	case strings.HasPrefix(identifier, "c/"):
		uploads, chID, err = search(strings.TrimPrefix(identifier, "c/"))
	case identifier != "":
		uploads, chID, err = search(identifier)
	default:
		err = errChannelNotFound
	}
	if err != nil {
		return "", "", hops, err
	}
	if uploads == "" {
		return "", "", hops, errChannelNotFound
	}
	return uploads, chID, hops, nil
}

// videoDetails loads durations, tags and languages, best-effort: errors leave the map empty
func (a *Adapter) videoDetails(ctx context.Context, items []*yt.PlaylistItem) map[string]*yt.Video {
	res := map[string]*yt.Video{}
	ids := make([]string, 0, len(items))
	for _, pi := range items {
		if id := videoID(pi); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return res
	}
	resp, err := a.svc.Videos.List([]string{"contentDetails", "snippet"}).Id(ids...).Context(ctx).Do(a.callOpts()...)
	if err != nil {
		lgr.Printf("[DEBUG] can't load details for %d videos: %v", len(ids), err)
		return res
	}
	for _, v := range resp.Items {
		if v != nil {
			res[v.Id] = v
		}
	}
	return res
}

// normalize converts a playlist item, returns a skip reason for unusable entries
func (a *Adapter) normalize(pi *yt.PlaylistItem, videos map[string]*yt.Video, playlistID string, now time.Time) (domain.NormalizedItem, string) {
	id := videoID(pi)
	if id == "" || pi.Snippet == nil {
		return domain.NormalizedItem{}, fetch.SkipInvalidItem
	}
	if pi.Snippet.Title == "Private video" || pi.Snippet.Title == "Deleted video" {
		return domain.NormalizedItem{}, fetch.SkipUnavailable
	}

	sn := pi.Snippet
	title := content.Sanitize(sn.Title, 0)
	body := content.Sanitize(sn.Description, 0)
	if body == "" {
		body = title
	}

	item := domain.NormalizedItem{
		ExternalID:  id,
		Title:       title,
		URL:         watchURL + id,
		ContentType: domain.ContentYouTube,
		Body:        body,
		Excerpt:     content.Excerpt(body, content.DefaultExcerptLength),
		Author:      sn.VideoOwnerChannelTitle,
		Metadata:    map[string]any{"playlistId": playlistID, "channelId": sn.ChannelId},
	}
	if item.Author == "" {
		item.Author = sn.ChannelTitle
	}
	if thumb := thumbnail(sn.Thumbnails); thumb != "" {
		item.Metadata["thumbnail"] = thumb
	}

	published := sn.PublishedAt
	if pi.ContentDetails != nil && pi.ContentDetails.VideoPublishedAt != "" {
		published = pi.ContentDetails.VideoPublishedAt
	}
	if ts, err := time.Parse(time.RFC3339, published); err == nil {
		ts = ts.UTC()
		item.PublishedAt, item.PublishedAtSource = &ts, domain.PublishedAPI
	} else {
		ts := now.UTC()
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		item.PublishedAt, item.PublishedAtSource = &ts, domain.PublishedFallback
	}

	duration := ""
	if v, ok := videos[id]; ok {
		if v.ContentDetails != nil {
			duration = v.ContentDetails.Duration
			if secs, err := ParseDuration(duration); err == nil {
				item.DurationSeconds = secs
			}
		}
		if v.Snippet != nil {
			item.Categories = v.Snippet.Tags
			lang := v.Snippet.DefaultAudioLanguage
			if lang == "" {
				lang = v.Snippet.DefaultLanguage
			}
			item.Language = primaryLanguage(lang)
		}
	}

	item.Raw = map[string]any{
		"videoId":     id,
		"title":       sn.Title,
		"description": sn.Description,
		"publishedAt": published,
		"channelId":   sn.ChannelId,
		"playlistId":  playlistID,
		"duration":    duration,
	}
	return item, ""
}

// failure maps API and transport errors to failure reasons
func (a *Adapter) failure(ctx context.Context, err error) domain.Failure {
	if errors.Is(err, errChannelNotFound) {
		return domain.Failure{Reason: domain.FailureYouTubeNotFound, Message: err.Error()}
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fetch.TransportFailure(ctx, err)
	}

	f := domain.Failure{Message: gerr.Error(), StatusCode: gerr.Code}
	if gerr.Header != nil {
		f.RetryAfter = gerr.Header.Get("Retry-After")
	}
	switch {
	case gerr.Code == http.StatusForbidden || gerr.Code == http.StatusTooManyRequests:
		f.Reason = domain.FailureYouTubeQuota
	case gerr.Code == http.StatusNotFound:
		f.Reason = domain.FailureYouTubeNotFound
	case gerr.Code >= 500:
		f.Reason, f.RetryInMinutes = domain.FailureHTTP5xx, fetch.ServerErrorRetryMinutes
	case gerr.Code >= 400:
		f.Reason = domain.FailureHTTP4xx
	default:
		f.Reason = domain.FailureUnknown
	}
	return f
}

func (a *Adapter) callOpts() []googleapi.CallOption {
	if a.apiKey == "" {
		return nil
	}
	return []googleapi.CallOption{googleapi.QueryParameter("key", a.apiKey)}
}

func videoID(pi *yt.PlaylistItem) string {
	if pi == nil {
		return ""
	}
	if pi.ContentDetails != nil && pi.ContentDetails.VideoId != "" {
		return pi.ContentDetails.VideoId
	}
	if pi.Snippet != nil && pi.Snippet.ResourceId != nil {
		return pi.Snippet.ResourceId.VideoId
	}
	return ""
}

func thumbnail(th *yt.ThumbnailDetails) string {
	if th == nil {
		return ""
	}
	for _, t := range []*yt.Thumbnail{th.Maxres, th.High, th.Medium, th.Default} {
		if t != nil && t.Url != "" {
			return t.Url
		}
	}
	return ""
}

// isChannelID checks for the canonical UC-prefixed 24 characters channel id
func isChannelID(s string) bool {
	return len(s) == 24 && strings.HasPrefix(s, "UC")
}

// uploadsPlaylist derives the uploads playlist id from a channel id
func uploadsPlaylist(channelID string) string {
	if strings.HasPrefix(channelID, "UC") {
		return "UU" + channelID[2:]
	}
	return ""
}

func clampResults(n int) int {
	switch {
	case n <= 0:
		return defaultMaxResults
	case n > maxResultsLimit:
		return maxResultsLimit
	default:
		return n
	}
}

func primaryLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if idx := strings.IndexAny(lang, "-_"); idx > 0 {
		lang = lang[:idx]
	}
	return lang
}
