package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/core/ports"
)

// SnapshotPaths locates the persisted indexes. Empty paths disable saving.
type SnapshotPaths struct {
	Lexical   string
	Embedding string
}

// IngestObserver receives per-batch ingestion outcomes.
type IngestObserver interface {
	ObserveIngest(report domain.IngestReport, duration time.Duration, err error)
}

type cacheInvalidator interface {
	InvalidateCache()
}

// NewsIngestor adds article batches to both retrieval indexes and persists
// them. Batches are applied one at a time so both indexes keep the same
// document order.
type NewsIngestor struct {
	mu        sync.Mutex
	lexical   ports.LexicalIndex
	embedding ports.EmbeddingIndex
	paths     SnapshotPaths
	cache     cacheInvalidator
	observer  IngestObserver
}

func NewNewsIngestor(
	lexical ports.LexicalIndex,
	embedding ports.EmbeddingIndex,
	paths SnapshotPaths,
	cache cacheInvalidator,
	observer IngestObserver,
) *NewsIngestor {
	return &NewsIngestor{
		lexical:   lexical,
		embedding: embedding,
		paths:     paths,
		cache:     cache,
		observer:  observer,
	}
}

func (uc *NewsIngestor) Ingest(ctx context.Context, articles []domain.RawArticle) (*domain.IngestReport, error) {
	started := time.Now()
	report, err := uc.ingest(ctx, articles)
	if uc.observer != nil {
		uc.observer.ObserveIngest(*report, time.Since(started), err)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("articles_ingested",
		"received", report.Received,
		"duplicates", report.Duplicates,
		"indexed", report.Indexed,
		"total", report.Total,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return report, nil
}

func (uc *NewsIngestor) ingest(ctx context.Context, articles []domain.RawArticle) (*domain.IngestReport, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	report := &domain.IngestReport{Received: len(articles)}
	docs := dedupeArticles(articles)
	fresh := make([]domain.NewsDocument, 0, len(docs))
	for _, doc := range docs {
		if uc.lexical.HasLink(doc.Metadata.Link) {
			continue
		}
		fresh = append(fresh, doc)
	}
	report.Duplicates = len(articles) - len(fresh)
	report.Total = uc.lexical.Len()
	if len(fresh) == 0 {
		return report, nil
	}

	texts := make([]string, len(fresh))
	meta := make([]domain.NewsMetadata, len(fresh))
	for i, doc := range fresh {
		texts[i], meta[i] = doc.Text, doc.Metadata
	}

	// Embedding runs first: it is the step that can fail on the network, and
	// a failure here must leave the lexical index untouched.
	if err := uc.embedding.AddDocuments(ctx, texts, meta); err != nil {
		return report, fmt.Errorf("index embeddings: %w", err)
	}
	if err := uc.lexical.AddDocuments(texts, meta); err != nil {
		return report, fmt.Errorf("index bm25: %w", err)
	}
	report.Indexed = len(fresh)
	report.Total = uc.lexical.Len()

	if err := uc.saveLocked(); err != nil {
		return report, err
	}
	if uc.cache != nil {
		uc.cache.InvalidateCache()
	}
	return report, nil
}

// Reload replaces both indexes with their snapshots and drops cached
// searches. Both snapshots are decoded and checked against each other before
// either index changes. A wholly missing snapshot set is reported as
// fs.ErrNotExist; a set with only one index present is ErrIndexCorrupt.
func (uc *NewsIngestor) Reload(_ context.Context) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	var staged []*domain.StagedSnapshot
	var missing, present []string
	stage := func(name, path string, load func(string) (*domain.StagedSnapshot, error)) error {
		if path == "" {
			return nil
		}
		s, err := load(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			missing = append(missing, name)
			return nil
		case err != nil:
			return fmt.Errorf("reload %s snapshot: %w", name, err)
		}
		present = append(present, name)
		staged = append(staged, s)
		return nil
	}
	if err := stage("bm25", uc.paths.Lexical, uc.lexical.Stage); err != nil {
		return err
	}
	if err := stage("embedding", uc.paths.Embedding, uc.embedding.Stage); err != nil {
		return err
	}

	switch {
	case len(missing) > 0 && len(present) == 0:
		return fmt.Errorf("reload snapshots: %s: %w", strings.Join(missing, ", "), fs.ErrNotExist)
	case len(missing) > 0:
		return domain.WrapError(domain.ErrIndexCorrupt, "reload snapshots",
			fmt.Errorf("snapshot set incomplete: have %s, missing %s", strings.Join(present, ", "), strings.Join(missing, ", ")))
	}
	if len(staged) == 2 && staged[0].Documents != staged[1].Documents {
		return domain.WrapError(domain.ErrIndexCorrupt, "reload snapshots",
			fmt.Errorf("bm25 has %d documents, embedding has %d", staged[0].Documents, staged[1].Documents))
	}

	for _, s := range staged {
		s.Commit()
	}
	if uc.cache != nil {
		uc.cache.InvalidateCache()
	}
	slog.Info("indexes_reloaded", "documents", uc.lexical.Len())
	return nil
}

// Save persists both indexes to their snapshot paths.
func (uc *NewsIngestor) Save() error {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.saveLocked()
}

// saveLocked writes the embedding pair before bm25, the same order ingest
// applies them in.
func (uc *NewsIngestor) saveLocked() error {
	if uc.paths.Embedding != "" {
		if err := uc.embedding.Save(uc.paths.Embedding); err != nil {
			return fmt.Errorf("save embedding snapshot: %w", err)
		}
	}
	if uc.paths.Lexical != "" {
		if err := uc.lexical.Save(uc.paths.Lexical); err != nil {
			return fmt.Errorf("save bm25 snapshot: %w", err)
		}
	}
	return nil
}

// dedupeArticles keys articles by link and merges the ticker lists of
// repeats. Articles without a link or without any text are dropped.
func dedupeArticles(articles []domain.RawArticle) []domain.NewsDocument {
	out := make([]domain.NewsDocument, 0, len(articles))
	byLink := make(map[string]int, len(articles))
	for _, a := range articles {
		link := strings.TrimSpace(a.Link)
		if link == "" || strings.TrimSpace(a.Title+a.Summary) == "" {
			continue
		}
		doc := a.Document()
		if i, ok := byLink[link]; ok {
			out[i].Metadata.Tickers = unionTickers(out[i].Metadata.Tickers, doc.Metadata.Tickers)
			continue
		}
		doc.Metadata.Tickers = unionTickers(nil, doc.Metadata.Tickers)
		byLink[link] = len(out)
		out = append(out, doc)
	}
	return out
}

func unionTickers(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, t := range list {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
