package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

type hybridFake struct {
	results []domain.FusionResult
	err     error
	calls   int
	lastK   int
}

func (f *hybridFake) Search(_ context.Context, _ string, k int) ([]domain.FusionResult, error) {
	f.calls++
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}

func (f *hybridFake) Stats() domain.RetrievalStats {
	return domain.RetrievalStats{Fusion: DefaultFusionConfig()}
}

type searchCacheFake struct {
	entries map[string][]domain.NewsArticle
	cleared int
}

func (c *searchCacheFake) Get(key string) ([]domain.NewsArticle, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *searchCacheFake) Set(key string, articles []domain.NewsArticle) bool {
	if c.entries == nil {
		c.entries = map[string][]domain.NewsArticle{}
	}
	c.entries[key] = articles
	return true
}

func (c *searchCacheFake) Clear() {
	c.entries = nil
	c.cleared++
}

func fused(text string, score float64, meta domain.NewsMetadata) domain.FusionResult {
	return domain.FusionResult{Document: domain.NewsDocument{Text: text, Metadata: meta}, FusedScore: score}
}

func TestSearchNewsFormatsArticles(t *testing.T) {
	published := time.Date(2025, 2, 3, 14, 0, 0, 0, time.UTC)
	retriever := &hybridFake{results: []domain.FusionResult{
		fused(strings.Repeat("a", 800), 0.049, domain.NewsMetadata{Tickers: []string{"AAPL"}, Title: "Apple record quarter", Publisher: "Reuters", Link: "https://x/1", PublishedAt: published}),
		fused("bare", 0.03, domain.NewsMetadata{Tickers: []string{"TSLA"}}),
	}}

	articles := NewNewsSearch(retriever, nil).SearchNews(context.Background(), "apple earnings", 5, nil)
	if len(articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(articles))
	}
	first := articles[0]
	if len(first.Text) != 500 || first.Title != "Apple record quarter" || first.PublishedAt == nil || !first.PublishedAt.Equal(published) {
		t.Fatalf("unexpected first article %+v", first)
	}
	if first.RelevanceScore != 0.049 {
		t.Fatalf("expected fused score as relevance, got %v", first.RelevanceScore)
	}
	second := articles[1]
	if second.Title != "No title" || second.Publisher != "Unknown" || second.PublishedAt != nil {
		t.Fatalf("expected defaults, got %+v", second)
	}
}

func TestSearchNewsFiltersTickersAfterFusion(t *testing.T) {
	retriever := &hybridFake{results: []domain.FusionResult{
		fused("a", 0.05, domain.NewsMetadata{Tickers: []string{"AAPL"}}),
		fused("b", 0.04, domain.NewsMetadata{Tickers: []string{"MSFT", "AMZN"}}),
		fused("c", 0.03, domain.NewsMetadata{Tickers: []string{"TSLA"}}),
	}}

	articles := NewNewsSearch(retriever, nil).SearchNews(context.Background(), "cloud", 3, []string{"amzn", " tsla "})
	if len(articles) != 2 || articles[0].Text != "b" || articles[1].Text != "c" {
		t.Fatalf("unexpected filtered articles %+v", articles)
	}
	if retriever.lastK != 3 {
		t.Fatalf("expected retrieval with k=3, got %d", retriever.lastK)
	}
}

func TestSearchNewsSwallowsRetrievalErrors(t *testing.T) {
	retriever := &hybridFake{err: errors.New("embedder down")}
	articles := NewNewsSearch(retriever, nil).SearchNews(context.Background(), "anything", 5, nil)
	if articles == nil || len(articles) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", articles)
	}
}

func TestSearchNewsUsesCache(t *testing.T) {
	retriever := &hybridFake{results: []domain.FusionResult{fused("a", 0.05, domain.NewsMetadata{})}}
	cache := &searchCacheFake{}
	svc := NewNewsSearch(retriever, cache)

	svc.SearchNews(context.Background(), "Fed rates", 5, []string{"JPM"})
	svc.SearchNews(context.Background(), "fed rates ", 5, []string{"jpm"})
	if retriever.calls != 1 {
		t.Fatalf("expected second call to hit the cache, got %d retrievals", retriever.calls)
	}

	svc.InvalidateCache()
	svc.SearchNews(context.Background(), "Fed rates", 5, []string{"JPM"})
	if retriever.calls != 2 || cache.cleared != 1 {
		t.Fatalf("expected retrieval after invalidation, got %d calls", retriever.calls)
	}
}

func TestSearchNewsDefaultsK(t *testing.T) {
	retriever := &hybridFake{}
	NewNewsSearch(retriever, nil).SearchNews(context.Background(), "q", 0, nil)
	if retriever.lastK != defaultNewsK {
		t.Fatalf("expected default k, got %d", retriever.lastK)
	}
}
