package domain

import "time"

// HealthStatus is the coarse health state of a source
type HealthStatus string

// health statuses
const (
	HealthHealthy HealthStatus = "healthy"
	HealthWarning HealthStatus = "warning"
	HealthError   HealthStatus = "error"
)

// StreakType identifies what kind of outcomes a streak counts
type StreakType string

// streak types
const (
	StreakSuccess StreakType = "success"
	StreakFailure StreakType = "failure"
	StreakStale   StreakType = "stale"
)

// Streak counts consecutive outcomes of the same type
type Streak struct {
	Type  StreakType `json:"type"`
	Count int        `json:"count"`
}

// HealthSnapshot is the health state stored with a source
type HealthSnapshot struct {
	Status              HealthStatus  `json:"status"`
	ObservedAt          time.Time     `json:"observedAt"`
	LastFetchedAt       *time.Time    `json:"lastFetchedAt,omitempty"`
	LastSuccessAt       *time.Time    `json:"lastSuccessAt,omitempty"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	FailureReason       FailureReason `json:"failureReason,omitempty"`
	StaleSince          *time.Time    `json:"staleSince,omitempty"`
	Streak              *Streak       `json:"streak,omitempty"`
}
