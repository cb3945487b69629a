// Package health derives per-source health snapshots and outcome streaks
package health

import (
	"time"

	"github.com/umputun/discovery/pkg/domain"
)

// ErrorThreshold is the number of consecutive failures turning a source to error
const ErrorThreshold = 3

// Status maps consecutive failures to a health status
func Status(failures int) domain.HealthStatus {
	switch {
	case failures >= ErrorThreshold:
		return domain.HealthError
	case failures > 0:
		return domain.HealthWarning
	default:
		return domain.HealthHealthy
	}
}

// Next computes the snapshot after a completed fetch. An empty reason means the fetch succeeded.
// prevFailures is the consecutive failure count stored with the source.
func Next(prev *domain.HealthSnapshot, prevFailures int, reason domain.FailureReason, now time.Time) domain.HealthSnapshot {
	now = now.UTC()
	res := domain.HealthSnapshot{ObservedAt: now, LastFetchedAt: &now}
	if prev != nil {
		res.LastSuccessAt = prev.LastSuccessAt
	}

	if reason == "" {
		res.LastSuccessAt = &now
		res.Streak = nextStreak(prev, domain.StreakSuccess)
	} else {
		res.ConsecutiveFailures = max(prevFailures, 0) + 1
		res.FailureReason = reason
		res.Streak = nextStreak(prev, domain.StreakFailure)
	}
	res.Status = Status(res.ConsecutiveFailures)
	return res
}

// Stale marks the snapshot of a source which stopped reporting. Fetch timestamps and the
// failure reason are kept, staleSince is set on the first stale observation only.
func Stale(prev *domain.HealthSnapshot, failures int, now time.Time) domain.HealthSnapshot {
	now = now.UTC()
	res := domain.HealthSnapshot{ObservedAt: now, ConsecutiveFailures: max(failures, 0), StaleSince: &now}
	if prev != nil {
		res.LastFetchedAt = prev.LastFetchedAt
		res.LastSuccessAt = prev.LastSuccessAt
		res.FailureReason = prev.FailureReason
		if prev.StaleSince != nil {
			res.StaleSince = prev.StaleSince
		}
	}
	res.Status = Status(res.ConsecutiveFailures)
	res.Streak = nextStreak(prev, domain.StreakStale)
	return res
}

// Changed reports whether the status moved between two snapshots
func Changed(prev *domain.HealthSnapshot, next domain.HealthSnapshot) bool {
	if prev == nil {
		return next.Status != domain.HealthHealthy
	}
	return prev.Status != next.Status
}

func nextStreak(prev *domain.HealthSnapshot, t domain.StreakType) *domain.Streak {
	if prev != nil && prev.Streak != nil && prev.Streak.Type == t {
		return &domain.Streak{Type: t, Count: prev.Streak.Count + 1}
	}
	return &domain.Streak{Type: t, Count: 1}
}
