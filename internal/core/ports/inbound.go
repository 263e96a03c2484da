package ports

import (
	"context"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

// QueryProcessor is the inbound contract for session-scoped query handling.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, query, sessionID string) (*domain.QueryResult, error)
	SessionStats(ctx context.Context, sessionID string) (*domain.SessionStats, error)
	ClearSession(ctx context.Context, sessionID string) error
	Diagnose(ctx context.Context, query, sessionID string) (*domain.Diagnostic, error)
}

// NewsSearchService returns caller-facing articles. Failures yield an empty list.
type NewsSearchService interface {
	SearchNews(ctx context.Context, query string, k int, tickers []string) []domain.NewsArticle
}

// ArticleIngestor adds raw articles to every retrieval index.
type ArticleIngestor interface {
	Ingest(ctx context.Context, articles []domain.RawArticle) (*domain.IngestReport, error)
}
