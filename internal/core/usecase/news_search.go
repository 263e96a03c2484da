package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/core/ports"
)

const (
	newsTextMaxRunes = 500
	defaultNewsK     = 5
	untitledArticle  = "No title"
	unknownPublisher = "Unknown"
)

// NewsSearch adapts hybrid retrieval results to caller-facing articles.
type NewsSearch struct {
	retriever ports.HybridSearcher
	cache     ports.SearchCache
}

// NewNewsSearch accepts a nil cache.
func NewNewsSearch(retriever ports.HybridSearcher, cache ports.SearchCache) *NewsSearch {
	return &NewsSearch{retriever: retriever, cache: cache}
}

// SearchNews never fails: retrieval errors are logged and yield an empty
// list. Ticker filtering runs after fusion, so fewer than k articles may be
// returned.
func (s *NewsSearch) SearchNews(ctx context.Context, query string, k int, tickers []string) []domain.NewsArticle {
	if strings.TrimSpace(query) == "" {
		return []domain.NewsArticle{}
	}
	if k <= 0 {
		k = defaultNewsK
	}
	wanted := normalizeTickers(tickers)
	key := searchCacheKey(query, k, wanted)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached
		}
	}

	results, err := s.retriever.Search(ctx, query, k)
	if err != nil {
		slog.Error("news_search_failed", "query", query, "k", k, "error", err)
		return []domain.NewsArticle{}
	}

	articles := make([]domain.NewsArticle, 0, len(results))
	for _, r := range results {
		if len(wanted) > 0 && !hasAnyTicker(r.Document.Metadata, wanted) {
			continue
		}
		articles = append(articles, toArticle(r))
	}
	slog.Debug("news_search_completed", "query", query, "k", k, "returned", len(articles))

	if s.cache != nil {
		s.cache.Set(key, articles)
	}
	return articles
}

// InvalidateCache drops memoized results after the indexes change.
func (s *NewsSearch) InvalidateCache() {
	if s.cache != nil {
		s.cache.Clear()
	}
}

func toArticle(r domain.FusionResult) domain.NewsArticle {
	meta := r.Document.Metadata
	title := meta.Title
	if title == "" {
		title = untitledArticle
	}
	publisher := meta.Publisher
	if publisher == "" {
		publisher = unknownPublisher
	}
	article := domain.NewsArticle{
		Title:          title,
		Text:           truncateRunes(r.Document.Text, newsTextMaxRunes),
		Tickers:        append([]string{}, meta.Tickers...),
		Publisher:      publisher,
		Link:           meta.Link,
		RelevanceScore: r.FusedScore,
	}
	if !meta.PublishedAt.IsZero() {
		ts := meta.PublishedAt
		article.PublishedAt = &ts
	}
	return article
}

func normalizeTickers(tickers []string) []string {
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func hasAnyTicker(meta domain.NewsMetadata, tickers []string) bool {
	for _, t := range tickers {
		if meta.HasTicker(t) {
			return true
		}
	}
	return false
}

func searchCacheKey(query string, k int, tickers []string) string {
	return fmt.Sprintf("%s|%d|%s", strings.ToLower(strings.TrimSpace(query)), k, strings.Join(tickers, ","))
}
