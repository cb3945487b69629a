package scoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/discovery/pkg/events"
)

// DefaultKeywordTTL is how long a client's keywords are served from the cache
const DefaultKeywordTTL = 5 * time.Minute

// KeywordSource provides the keywords of a client
type KeywordSource interface {
	GetKeywordsForClient(ctx context.Context, clientID string) ([]string, error)
}

type keywordEntry struct {
	keywords []string
	loadedAt time.Time
}

// KeywordCache caches client keywords for a TTL. Entries are dropped early on keyword.updated
// events, so a stale list is served for at most one TTL window when an event is lost.
type KeywordCache struct {
	source KeywordSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]keywordEntry
}

// NewKeywordCache makes a cache in front of source, ttl <= 0 means DefaultKeywordTTL
func NewKeywordCache(source KeywordSource, ttl time.Duration) *KeywordCache {
	if ttl <= 0 {
		ttl = DefaultKeywordTTL
	}
	return &KeywordCache{source: source, ttl: ttl, now: time.Now, entries: map[string]keywordEntry{}}
}

// Get returns the keywords of the client, loading them from the source when missing or expired
func (c *KeywordCache) Get(ctx context.Context, clientID string) ([]string, error) {
	c.mu.Lock()
	e, ok := c.entries[clientID]
	c.mu.Unlock()
	if ok && c.now().Sub(e.loadedAt) < c.ttl {
		return e.keywords, nil
	}

	kws, err := c.source.GetKeywordsForClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("load keywords for %s: %w", clientID, err)
	}
	c.mu.Lock()
	c.entries[clientID] = keywordEntry{keywords: kws, loadedAt: c.now()}
	c.mu.Unlock()
	return kws, nil
}

// Invalidate drops the cached keywords of the client, all clients if clientID is empty
func (c *KeywordCache) Invalidate(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if clientID == "" {
		c.entries = map[string]keywordEntry{}
		return
	}
	delete(c.entries, clientID)
}

// Attach subscribes the cache to keyword.updated events of the bus
func (c *KeywordCache) Attach(bus *events.Bus) func() {
	return bus.Subscribe(c.onKeywordUpdated, events.KeywordUpdated)
}

func (c *KeywordCache) onKeywordUpdated(_ context.Context, evt events.Event) {
	lgr.Printf("[DEBUG] keywords of client %q updated, dropping cache entry", evt.ClientID)
	c.Invalidate(evt.ClientID)
}
