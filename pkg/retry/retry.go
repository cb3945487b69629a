// Package retry classifies adapter failures and plans bounded retries with backoff.
// The delay of a retry is the longest of the exponential base, the adapter suggestion
// and the Retry-After header, clamped to [1, maxDelay] minutes.
package retry

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/discovery/pkg/domain"
)

// defaults for the planner
const (
	DefaultMaxAttempts     = 3
	DefaultMaxDelayMinutes = 15
)

// Outcome is the planner decision kind
type Outcome string

// planner outcomes
const (
	OutcomeRetry     Outcome = "retry"
	OutcomePermanent Outcome = "permanent"
	OutcomeExhausted Outcome = "exhausted"
)

// Decision is the result of classifying a failure at a given attempt
type Decision struct {
	Outcome      Outcome
	DelayMinutes int // computed for transient failures, 0 for permanent ones
}

// Retryable reports whether another attempt should be made
func (d Decision) Retryable() bool {
	return d.Outcome == OutcomeRetry
}

// Planner decides on retries and runs attempts
type Planner struct {
	MaxAttempts     int
	MaxDelayMinutes int
	Unit            time.Duration // duration of one delay minute, tests set it to something tiny
	Now             func() time.Time
}

// New makes a planner, non-positive values fall back to defaults
func New(maxAttempts, maxDelayMinutes int) *Planner {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if maxDelayMinutes <= 0 {
		maxDelayMinutes = DefaultMaxDelayMinutes
	}
	return &Planner{MaxAttempts: maxAttempts, MaxDelayMinutes: maxDelayMinutes, Unit: time.Minute, Now: time.Now}
}

// IsTransient reports whether the failure may go away on its own.
// http_4xx is transient only for 429 Too Many Requests.
func IsTransient(f domain.Failure) bool {
	switch f.Reason {
	case domain.FailureNetwork, domain.FailureTimeout, domain.FailureHTTP5xx, domain.FailureYouTubeQuota:
		return true
	case domain.FailureHTTP4xx:
		return f.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}

// Plan classifies the failure of the given 1-based attempt
func (p *Planner) Plan(f domain.Failure, attempt, maxAttempts int) Decision {
	if !IsTransient(f) {
		return Decision{Outcome: OutcomePermanent}
	}
	d := Decision{Outcome: OutcomeRetry, DelayMinutes: p.Delay(f, attempt)}
	if attempt >= maxAttempts {
		d.Outcome = OutcomeExhausted
	}
	return d
}

// Delay computes the wait before the next attempt in whole minutes
func (p *Planner) Delay(f domain.Failure, attempt int) int {
	maxDelay := p.maxDelay()
	if attempt < 1 {
		attempt = 1
	}

	base := maxDelay
	if attempt-1 < 31 {
		base = min(1<<(attempt-1), maxDelay)
	}
	delay := max(base, f.RetryInMinutes, ParseRetryAfter(f.RetryAfter, p.now()))
	return min(max(delay, 1), maxDelay)
}

// ParseRetryAfter converts a Retry-After header value, either delta seconds or an HTTP-date,
// to whole minutes rounded up. Returns 0 for empty, invalid or past values.
func ParseRetryAfter(v string, now time.Time) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return int(math.Ceil(float64(secs) / 60))
	}
	ts, err := http.ParseTime(v)
	if err != nil {
		return 0
	}
	wait := ts.Sub(now)
	if wait <= 0 {
		return 0
	}
	return int(math.Ceil(wait.Minutes()))
}

// AttemptFunc performs one fetch attempt, attempt is 1-based
type AttemptFunc func(ctx context.Context, attempt int) domain.FetchResult

// AttemptInfo is the telemetry of one failed attempt
type AttemptInfo struct {
	Attempt      int                  `json:"attempt"`
	Reason       domain.FailureReason `json:"reason"`
	StatusCode   int                  `json:"statusCode,omitempty"`
	DelayMinutes int                  `json:"delayMinutes,omitempty"`
}

// Result is the final outcome of a retried fetch
type Result struct {
	Fetch    domain.FetchResult
	Attempts int
	Decision Decision // decision on the last failure, zero value on success
	History  []AttemptInfo
}

// RetryInMinutes is the delay until the next scheduled fetch: the last computed delay for
// a transient failure that ran out of attempts, nil for success and permanent failures so
// the regular fetch interval applies.
func (r Result) RetryInMinutes() *int {
	if r.Fetch.OK() || r.Decision.Outcome != OutcomeExhausted {
		return nil
	}
	d := r.Decision.DelayMinutes
	return &d
}

// Run calls fn up to MaxAttempts times, sleeping the planned delay between failed attempts.
// Attempts within one run are strictly sequential. Context cancellation stops the retries,
// keeping the last failure.
func (p *Planner) Run(ctx context.Context, fn AttemptFunc) Result {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	res := Result{}
	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		res.Fetch = fn(ctx, attempt)
		if res.Fetch.OK() {
			res.Decision = Decision{}
			return res
		}

		f := *res.Fetch.Failure
		res.Decision = p.Plan(f, attempt, maxAttempts)
		info := AttemptInfo{Attempt: attempt, Reason: f.Reason, StatusCode: f.StatusCode}
		if res.Decision.Retryable() {
			info.DelayMinutes = res.Decision.DelayMinutes
		}
		res.History = append(res.History, info)
		if !res.Decision.Retryable() {
			return res
		}

		lgr.Printf("[DEBUG] attempt %d/%d failed with %s, retry in %d min", attempt, maxAttempts, f.Reason, res.Decision.DelayMinutes)
		if err := p.sleep(ctx, time.Duration(res.Decision.DelayMinutes)*p.unit()); err != nil {
			res.Decision.Outcome = OutcomeExhausted
			return res
		}
	}
}

func (p *Planner) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Planner) maxDelay() int {
	if p.MaxDelayMinutes <= 0 {
		return DefaultMaxDelayMinutes
	}
	return p.MaxDelayMinutes
}

func (p *Planner) unit() time.Duration {
	if p.Unit <= 0 {
		return time.Minute
	}
	return p.Unit
}

func (p *Planner) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
