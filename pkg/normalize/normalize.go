// Package normalize turns user supplied URLs into canonical discovery source targets.
// It classifies a URL as rss, youtube-channel, youtube-playlist or web-page and produces the
// type-specific identifier used for per-client duplicate detection.
package normalize

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/umputun/discovery/pkg/domain"
)

// ErrInvalidURL returned for input which is not an absolute http(s) URL
var ErrInvalidURL = errors.New("invalid url")

// Target is a normalized source location
type Target struct {
	Type         domain.SourceType
	Identifier   string
	CanonicalURL string
}

// DuplicateKey returns the per-client uniqueness key of the target
func (t Target) DuplicateKey() string {
	return domain.DuplicateKey(t.Type, t.Identifier)
}

var youtubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

var feedSuffixes = []string{"/feed", ".rss", ".xml", ".atom", ".rdf"}

// Normalize parses raw, canonicalizes it and classifies it as a source target
func Normalize(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Target{}, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if youtubeHosts[host] {
		if t, ok := youtubeTarget(u, host); ok {
			return t, nil
		}
		if v := videoID(u, host); v != "" {
			canonical := "https://www.youtube.com/watch?v=" + url.QueryEscape(v)
			return Target{Type: domain.SourceWebPage, Identifier: canonical, CanonicalURL: canonical}, nil
		}
	}

	canonical := canonicalURL(u, host)
	target := Target{Type: domain.SourceWebPage, Identifier: canonical, CanonicalURL: canonical}
	if isFeed(host, u.Path) {
		target.Type = domain.SourceRSS
	}
	return target, nil
}

// canonicalURL strips credentials, default ports, fragments and tracking params, sorting the rest
func canonicalURL(u *url.URL, host string) string {
	hostPort := host
	if port := u.Port(); port != "" && !(u.Scheme == "http" && port == "80") && !(u.Scheme == "https" && port == "443") {
		hostPort = net.JoinHostPort(host, port)
	}
	path := u.EscapedPath()
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "/" {
		path = ""
	}

	query := u.Query()
	for key := range query {
		lk := strings.ToLower(key)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" {
			query.Del(key)
		}
	}

	res := u.Scheme + "://" + hostPort + path
	if q := query.Encode(); q != "" { // Encode sorts by key
		res += "?" + q
	}
	return res
}

func isFeed(host, path string) bool {
	if strings.HasPrefix(host, "feeds.") {
		return true
	}
	p := strings.ToLower(strings.TrimRight(path, "/"))
	for _, suffix := range feedSuffixes {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// youtubeTarget recognizes channel and playlist urls, ok is false for other youtube pages
func youtubeTarget(u *url.URL, host string) (Target, bool) {
	if list := u.Query().Get("list"); list != "" {
		return Target{
			Type:         domain.SourceYouTubePlaylist,
			Identifier:   list,
			CanonicalURL: "https://www.youtube.com/playlist?list=" + url.QueryEscape(list),
		}, true
	}
	if host == "youtu.be" {
		return Target{}, false
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return Target{}, false
	}

	switch {
	case strings.HasPrefix(segments[0], "@") && len(segments[0]) > 1:
		return channelTarget(segments[0], "/"+segments[0]), true
	case len(segments) >= 2 && segments[1] != "":
		switch strings.ToLower(segments[0]) {
		case "channel":
			return channelTarget(segments[1], "/channel/"+segments[1]), true
		case "c":
			return channelTarget("c/"+segments[1], "/c/"+segments[1]), true
		case "user":
			return channelTarget("user/"+segments[1], "/user/"+segments[1]), true
		}
	}
	return Target{}, false
}

func channelTarget(identifier, path string) Target {
	return Target{
		Type:         domain.SourceYouTubeChannel,
		Identifier:   identifier,
		CanonicalURL: "https://www.youtube.com" + path,
	}
}

// videoID extracts the video id of a single video url, empty if u is not a video url
func videoID(u *url.URL, host string) string {
	if host == "youtu.be" {
		return strings.Trim(u.Path, "/")
	}
	if strings.EqualFold(strings.Trim(u.Path, "/"), "watch") {
		return u.Query().Get("v")
	}
	return ""
}
