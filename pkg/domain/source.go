package domain

import (
	"fmt"
	"strings"
	"time"
)

// SourceType is the closed set of discovery source kinds
type SourceType string

// source types
const (
	SourceRSS             SourceType = "rss"
	SourceYouTubeChannel  SourceType = "youtube-channel"
	SourceYouTubePlaylist SourceType = "youtube-playlist"
	SourceWebPage         SourceType = "web-page"
)

// SourceTypes lists every supported source type
var SourceTypes = []SourceType{SourceRSS, SourceYouTubeChannel, SourceYouTubePlaylist, SourceWebPage}

// ParseSourceType converts a string to SourceType, rejecting unknown values
func ParseSourceType(s string) (SourceType, error) {
	for _, st := range SourceTypes {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown source type %q", s)
}

// IsYouTube reports whether the source is served by the YouTube adapter
func (t SourceType) IsYouTube() bool {
	return t == SourceYouTubeChannel || t == SourceYouTubePlaylist
}

// FlagDiscoveryAgent is the feature flag gating scheduling and scoring for a client
const FlagDiscoveryAgent = "discovery-agent"

// FetchStatus is the lifecycle status of the last fetch of a source
type FetchStatus string

// fetch statuses
const (
	FetchIdle    FetchStatus = "idle"
	FetchRunning FetchStatus = "running"
	FetchSuccess FetchStatus = "success"
	FetchFailure FetchStatus = "failure"
)

// SourceConfig holds type-specific source options
type SourceConfig struct {
	ChannelID  string `json:"channelId,omitempty"`
	PlaylistID string `json:"playlistId,omitempty"`
	MaxResults int    `json:"maxResults,omitempty"`
}

// Source represents a registered discovery source of a client
type Source struct {
	ID                   int64
	ClientID             string
	Type                 SourceType
	Identifier           string
	URL                  string
	FetchIntervalMinutes int
	NextFetchAt          *time.Time
	LastFetchStatus      FetchStatus
	LastFetchStartedAt   *time.Time
	LastFetchCompletedAt *time.Time
	LastFailureReason    FailureReason
	ConsecutiveFailures  int
	LastSuccessAt        *time.Time
	Health               *HealthSnapshot
	Config               SourceConfig
	CreatedAt            time.Time
}

// DuplicateKey returns the per-client uniqueness key of the source
func (s Source) DuplicateKey() string {
	return DuplicateKey(s.Type, s.Identifier)
}

// DuplicateKey builds the uniqueness key for a source type and identifier
func DuplicateKey(t SourceType, identifier string) string {
	return string(t) + "::" + strings.ToLower(identifier)
}

// RunStatus is the final status of an ingest run
type RunStatus string

// run statuses
const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// IngestRun is the append-only audit record of one fetch attempt cycle for a source
type IngestRun struct {
	RunID          string
	SourceID       int64
	ClientID       string
	StartedAt      time.Time
	CompletedAt    time.Time
	Status         RunStatus
	FailureReason  FailureReason
	RetryInMinutes *int
	Metrics        map[string]any
	Telemetry      map[string]any
}
