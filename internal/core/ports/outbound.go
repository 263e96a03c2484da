package ports

import (
	"context"
	"time"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

// Embedder builds dense vectors for documents and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// TextCompletion is the LLM contract shared by the primary agent and specialists.
type TextCompletion interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error)
}

// LexicalSearcher ranks documents by BM25 score, highest first.
type LexicalSearcher interface {
	Search(query string, k int, filterTicker string) []domain.ScoredDocument
	Stats() domain.IndexStats
}

// EmbeddingSearcher ranks documents by squared L2 distance, lowest first.
type EmbeddingSearcher interface {
	Search(ctx context.Context, query string, k int, filterTicker string) ([]domain.ScoredDocument, error)
	Stats() domain.IndexStats
}

// LexicalIndex is the writable, persistent form of LexicalSearcher.
type LexicalIndex interface {
	LexicalSearcher
	AddDocuments(texts []string, metadata []domain.NewsMetadata) error
	HasLink(link string) bool
	Len() int
	Save(path string) error
	Stage(path string) (*domain.StagedSnapshot, error)
}

// EmbeddingIndex is the writable, persistent form of EmbeddingSearcher.
type EmbeddingIndex interface {
	EmbeddingSearcher
	AddDocuments(ctx context.Context, texts []string, metadata []domain.NewsMetadata) error
	Len() int
	Save(basePath string) error
	Stage(basePath string) (*domain.StagedSnapshot, error)
}

// HybridSearcher fuses lexical and embedding rankings.
type HybridSearcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.FusionResult, error)
	Stats() domain.RetrievalStats
}

// MarketDataProvider returns nil for any ticker it cannot serve.
type MarketDataProvider interface {
	Price(ctx context.Context, ticker string) *domain.PriceSnapshot
	Fundamentals(ctx context.Context, ticker string) *domain.Fundamentals
	History(ctx context.Context, ticker string, days int) []domain.PriceBar
	Indicators(ctx context.Context, ticker string) *domain.TechnicalIndicators
}

// SessionStore persists conversation sessions. Returned sessions are copies.
type SessionStore interface {
	GetOrCreate(ctx context.Context, sessionID string) (*domain.Session, error)
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	AppendTurn(ctx context.Context, sessionID string, messages []domain.Message) error
	Delete(ctx context.Context, sessionID string) error
}

// SpecialistRunner executes one specialist task to completion.
type SpecialistRunner interface {
	Run(ctx context.Context, specialistType domain.SpecialistType, history []domain.Message, task string) (*domain.SpecialistResult, error)
}

// SpecialistHandle is an in-flight or finished specialist task.
type SpecialistHandle interface {
	Done() <-chan struct{}
	Wait(ctx context.Context) (*domain.SpecialistResult, error)
}

// SpecialistDispatcher runs specialist tasks in the background with result caching.
type SpecialistDispatcher interface {
	Submit(specialistType domain.SpecialistType, history []domain.Message, task, sessionID string) (SpecialistHandle, error)
	TryGetResult(specialistType domain.SpecialistType, task, sessionID string, timeout time.Duration) (*domain.SpecialistResult, bool)
	Shutdown(ctx context.Context, wait bool) error
}

// ArticleQueue publishes and consumes article batches for indexing.
type ArticleQueue interface {
	PublishArticles(ctx context.Context, articles []domain.RawArticle) error
	SubscribeArticles(ctx context.Context, handler func(context.Context, []domain.RawArticle) error) error
}

// SearchCache memoizes news search results keyed by normalized query.
type SearchCache interface {
	Get(key string) ([]domain.NewsArticle, bool)
	Set(key string, articles []domain.NewsArticle) bool
	Clear()
}
