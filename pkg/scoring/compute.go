package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/umputun/discovery/pkg/domain"
)

// KeywordScore matches keywords case-insensitively against text. With coverage the share of
// keywords found and matches their total occurrences, the score is
// coverage + (1-coverage) * matches/(matches+2). No keywords or no matches give 0.
func KeywordScore(keywords []string, text string) (score float64, matched []string, matches int) {
	total := 0
	lower := strings.ToLower(text)
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		total++
		if n := strings.Count(lower, k); n > 0 {
			matched = append(matched, k)
			matches += n
		}
	}
	if total == 0 || matches == 0 {
		return 0, matched, matches
	}
	coverage := float64(len(matched)) / float64(total)
	return coverage + (1-coverage)*float64(matches)/float64(matches+2), matched, matches
}

// RecencyScore decays by half every halfLifeHours of age, anything not older than now gets 1
func RecencyScore(ageHours, halfLifeHours float64) float64 {
	if ageHours <= 0 {
		return 1
	}
	if halfLifeHours <= 0 {
		halfLifeHours = defaultHalfLifeHours
	}
	return math.Pow(0.5, ageHours/halfLifeHours)
}

// Composite is the weighted sum of the components clamped to [0,1] and rounded to 4 decimals
func Composite(w domain.Weights, keyword, recency, source float64) float64 {
	v := w.Keyword*keyword + w.Recency*recency + w.Source*source
	v = math.Max(0, math.Min(1, v))
	return math.Round(v*10000) / 10000
}

// Compute scores a single item. The result depends only on its arguments.
func Compute(cfg Config, item domain.Item, keywords []string, now time.Time) domain.Score {
	ref := item.FetchedAt
	if item.PublishedAt != nil {
		ref = *item.PublishedAt
	}
	ageHours := now.Sub(ref).Hours()

	text := item.Normalized.Title + "\n" + item.Normalized.Body
	kwScore, matched, matches := KeywordScore(keywords, text)
	recency := RecencyScore(ageHours, cfg.HalfLifeHours)
	source := cfg.Multiplier(item.Normalized.ContentType)
	score := Composite(cfg.Weights, kwScore, recency, source)

	status := domain.ItemSuppressed
	if score >= cfg.Threshold {
		status = domain.ItemScored
	}
	if matched == nil {
		matched = []string{}
	}

	return domain.Score{
		ItemID:           item.ID,
		ClientID:         item.ClientID,
		Score:            score,
		KeywordScore:     kwScore,
		RecencyScore:     recency,
		SourceScore:      source,
		AppliedThreshold: cfg.Threshold,
		WeightsVersion:   cfg.WeightsVersion,
		Components: domain.ScoreComponents{
			MatchedKeywords: matched,
			KeywordMatches:  matches,
			TotalKeywords:   len(keywords),
			AgeHours:        math.Max(0, ageHours),
			ContentType:     item.Normalized.ContentType,
			Weights:         cfg.Weights,
		},
		StatusOutcome: status,
		ScoredAt:      now,
	}
}
