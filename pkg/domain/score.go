package domain

import "time"

// Weights are the normalized component weights used for a composite score
type Weights struct {
	Keyword float64 `json:"keyword"`
	Recency float64 `json:"recency"`
	Source  float64 `json:"source"`
}

// ScoreComponents keeps the inputs that produced a score
type ScoreComponents struct {
	MatchedKeywords []string    `json:"matchedKeywords"`
	KeywordMatches  int         `json:"keywordMatches"`
	TotalKeywords   int         `json:"totalKeywords"`
	AgeHours        float64     `json:"ageHours"`
	ContentType     ContentType `json:"contentType"`
	Weights         Weights     `json:"weights"`
}

// Score is the relevance score of one item, upserted by item id
type Score struct {
	ItemID           int64
	ClientID         string
	Score            float64
	KeywordScore     float64
	RecencyScore     float64
	SourceScore      float64
	AppliedThreshold float64
	WeightsVersion   string
	Components       ScoreComponents
	StatusOutcome    ItemStatus
	ScoredAt         time.Time
}
