package cache

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

const (
	defaultNumCounters = 1e5
	defaultMaxCost     = 32 << 20
	defaultBufferItems = 64
	defaultTTL         = 2 * time.Minute
)

type Config struct {
	NumCounters int64
	MaxCost     int64
	TTL         time.Duration
}

// NewsCache memoizes news search results. Entries are cloned on the way in
// and out so callers can mutate what they get back.
type NewsCache struct {
	cache *ristretto.Cache
	ttl   time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewNewsCache(cfg Config) (*NewsCache, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = defaultNumCounters
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = defaultMaxCost
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: defaultBufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &NewsCache{cache: c, ttl: cfg.TTL}, nil
}

func (c *NewsCache) Get(key string) ([]domain.NewsArticle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, false
	}
	value, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	articles, ok := value.([]domain.NewsArticle)
	if !ok {
		return nil, false
	}
	return cloneArticles(articles), true
}

// Set stores articles and blocks until the write is visible to Get.
func (c *NewsCache) Set(key string, articles []domain.NewsArticle) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	stored := c.cache.SetWithTTL(key, cloneArticles(articles), estimateCost(articles), c.ttl)
	c.cache.Wait()
	return stored
}

// Clear drops all entries, e.g. after the indexes change.
func (c *NewsCache) Clear() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.closed {
		c.cache.Clear()
	}
}

func (c *NewsCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cache.Close()
}

func estimateCost(articles []domain.NewsArticle) int64 {
	cost := int64(64)
	for _, a := range articles {
		cost += int64(128 + len(a.Title) + len(a.Text) + len(a.Publisher) + len(a.Link))
		for _, t := range a.Tickers {
			cost += int64(len(t) + 16)
		}
	}
	return cost
}

func cloneArticles(in []domain.NewsArticle) []domain.NewsArticle {
	out := make([]domain.NewsArticle, len(in))
	copy(out, in)
	for i := range out {
		out[i].Tickers = append([]string(nil), in[i].Tickers...)
		if in[i].PublishedAt != nil {
			ts := *in[i].PublishedAt
			out[i].PublishedAt = &ts
		}
	}
	return out
}
