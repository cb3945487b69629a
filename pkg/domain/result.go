package domain

// FailureReason classifies why a fetch failed
type FailureReason string

// failure reasons
const (
	FailureNetwork         FailureReason = "network_error"
	FailureHTTP4xx         FailureReason = "http_4xx"
	FailureHTTP5xx         FailureReason = "http_5xx"
	FailureTimeout         FailureReason = "timeout"
	FailureParser          FailureReason = "parser_error"
	FailureYouTubeQuota    FailureReason = "youtube_quota"
	FailureYouTubeNotFound FailureReason = "youtube_not_found"
	FailureUnknown         FailureReason = "unknown_error"
)

// Failure describes a failed fetch. It is a value, not an error, adapters never throw it.
type Failure struct {
	Reason         FailureReason
	Message        string
	StatusCode     int
	RetryAfter     string // raw Retry-After header, if any
	RetryInMinutes int    // adapter suggestion, 0 if none
}

// SkippedEntry records a feed entry or video dropped during normalization
type SkippedEntry struct {
	Index      int    `json:"index"`
	ExternalID string `json:"externalId,omitempty"`
	Reason     string `json:"reason"`
}

// FetchMetadata carries adapter telemetry for a fetch
type FetchMetadata struct {
	StatusCode  int            `json:"statusCode,omitempty"`
	ContentType string         `json:"contentType,omitempty"`
	Hops        int            `json:"hops,omitempty"`
	Skipped     []SkippedEntry `json:"skipped,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// FetchResult is the outcome of one adapter fetch, either ok with items or failed
type FetchResult struct {
	Items    []NormalizedItem
	Metadata FetchMetadata
	Failure  *Failure
}

// OK reports whether the fetch succeeded
func (r FetchResult) OK() bool {
	return r.Failure == nil
}

// FetchSucceeded builds a successful result
func FetchSucceeded(items []NormalizedItem, meta FetchMetadata) FetchResult {
	return FetchResult{Items: items, Metadata: meta}
}

// FetchFailed builds a failed result, status code defaults to the one in metadata
func FetchFailed(f Failure, meta FetchMetadata) FetchResult {
	if f.StatusCode == 0 {
		f.StatusCode = meta.StatusCode
	}
	return FetchResult{Metadata: meta, Failure: &f}
}
