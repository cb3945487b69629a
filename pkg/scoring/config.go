package scoring

import (
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/discovery/pkg/domain"
)

// environment variables read by ConfigCache
const (
	EnvWeightKeyword    = "DISCOVERY_SCORING_WEIGHT_KEYWORD"
	EnvWeightRecency    = "DISCOVERY_SCORING_WEIGHT_RECENCY"
	EnvWeightSource     = "DISCOVERY_SCORING_WEIGHT_SOURCE"
	EnvThreshold        = "DISCOVERY_SCORING_THRESHOLD"
	EnvRecencyHalfLife  = "DISCOVERY_SCORING_RECENCY_HALF_LIFE_HOURS"
	EnvSourceArticle    = "DISCOVERY_SCORING_SOURCE_ARTICLE"
	EnvSourceRSS        = "DISCOVERY_SCORING_SOURCE_RSS"
	EnvSourceYouTube    = "DISCOVERY_SCORING_SOURCE_YOUTUBE"
	EnvWeightsVersion   = "DISCOVERY_SCORING_WEIGHTS_VERSION"
	EnvPendingThreshold = "DISCOVERY_SCORING_PENDING_THRESHOLD"
)

// DefaultPendingBacklog is the pending item count above which scoring is deferred
const DefaultPendingBacklog = 500

const (
	defaultThreshold       = 0.6
	defaultHalfLifeHours   = 48
	defaultWeightsVersion  = "v1"
	defaultArticleMultiple = 1.0
)

// Config is the resolved scoring configuration, immutable once built
type Config struct {
	Weights           domain.Weights
	SourceMultipliers map[domain.ContentType]float64
	Threshold         float64
	HalfLifeHours     float64
	WeightsVersion    string
}

// DefaultConfig returns the configuration used when nothing is set in the environment
func DefaultConfig() Config {
	return Config{
		Weights: domain.Weights{Keyword: 0.5, Recency: 0.3, Source: 0.2},
		SourceMultipliers: map[domain.ContentType]float64{
			domain.ContentArticle: defaultArticleMultiple,
			domain.ContentRSS:     0.9,
			domain.ContentYouTube: 0.85,
		},
		Threshold:      defaultThreshold,
		HalfLifeHours:  defaultHalfLifeHours,
		WeightsVersion: defaultWeightsVersion,
	}
}

// Multiplier returns the source multiplier of a content type, unknown types get the article one
func (c Config) Multiplier(ct domain.ContentType) float64 {
	if m, ok := c.SourceMultipliers[ct]; ok {
		return m
	}
	if m, ok := c.SourceMultipliers[domain.ContentArticle]; ok {
		return m
	}
	return defaultArticleMultiple
}

// LookupFunc returns the value of an environment variable, os.LookupEnv shaped
type LookupFunc func(key string) (string, bool)

// ConfigCache resolves the scoring config from the environment once and serves it afterwards.
// Each cache is independent, tests construct a fresh one with their own lookup.
type ConfigCache struct {
	lookup LookupFunc
	once   sync.Once
	cfg    Config
}

// NewConfigCache makes a cache reading the process environment, or lookup if not nil
func NewConfigCache(lookup LookupFunc) *ConfigCache {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &ConfigCache{lookup: lookup}
}

// Get returns the cached config, resolving it on the first call
func (c *ConfigCache) Get() Config {
	c.once.Do(func() { c.cfg = ResolveConfig(c.lookup) })
	return c.cfg
}

// ResolveConfig builds a config from lookup. Invalid or negative values are logged and
// replaced by defaults, weights are normalized to sum to 1.
func ResolveConfig(lookup LookupFunc) Config {
	def := DefaultConfig()
	res := def

	res.Weights = domain.Weights{
		Keyword: envFloat(lookup, EnvWeightKeyword, def.Weights.Keyword, 0, math.MaxFloat64),
		Recency: envFloat(lookup, EnvWeightRecency, def.Weights.Recency, 0, math.MaxFloat64),
		Source:  envFloat(lookup, EnvWeightSource, def.Weights.Source, 0, math.MaxFloat64),
	}
	res.Weights = normalizeWeights(res.Weights, def.Weights)

	res.Threshold = envFloat(lookup, EnvThreshold, def.Threshold, 0, 1)
	res.HalfLifeHours = envFloat(lookup, EnvRecencyHalfLife, def.HalfLifeHours, math.SmallestNonzeroFloat64, math.MaxFloat64)
	res.SourceMultipliers = map[domain.ContentType]float64{
		domain.ContentArticle: envFloat(lookup, EnvSourceArticle, def.SourceMultipliers[domain.ContentArticle], 0, math.MaxFloat64),
		domain.ContentRSS:     envFloat(lookup, EnvSourceRSS, def.SourceMultipliers[domain.ContentRSS], 0, math.MaxFloat64),
		domain.ContentYouTube: envFloat(lookup, EnvSourceYouTube, def.SourceMultipliers[domain.ContentYouTube], 0, math.MaxFloat64),
	}
	if v, ok := lookup(EnvWeightsVersion); ok && strings.TrimSpace(v) != "" {
		res.WeightsVersion = strings.TrimSpace(v)
	}
	return res
}

// PendingThreshold reads the backlog threshold from lookup, defaulting to DefaultPendingBacklog
func PendingThreshold(lookup LookupFunc) int {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, ok := lookup(EnvPendingThreshold)
	if !ok || strings.TrimSpace(v) == "" {
		return DefaultPendingBacklog
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		lgr.Printf("[WARN] invalid %s=%q, using %d", EnvPendingThreshold, v, DefaultPendingBacklog)
		return DefaultPendingBacklog
	}
	return n
}

func normalizeWeights(w, def domain.Weights) domain.Weights {
	sum := w.Keyword + w.Recency + w.Source
	if sum <= 0 {
		lgr.Printf("[WARN] scoring weights sum to zero, using defaults")
		w = def
		sum = w.Keyword + w.Recency + w.Source
	}
	return domain.Weights{Keyword: w.Keyword / sum, Recency: w.Recency / sum, Source: w.Source / sum}
}

// envFloat parses key as a float in [minVal, maxVal], falling back to def
func envFloat(lookup LookupFunc, key string, def, minVal, maxVal float64) float64 {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < minVal || f > maxVal {
		lgr.Printf("[WARN] invalid %s=%q, using %v", key, v, def)
		return def
	}
	return f
}
