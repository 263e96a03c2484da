package flatl2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/viterin/vek/vek32"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/core/ports"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/index/snapshot"
)

const (
	DefaultDimension = 384
	DefaultModelID   = "all-MiniLM-L6-v2"
)

// Index is an exhaustive nearest-neighbour index over float32 vectors
// ranked by squared Euclidean distance.
type Index struct {
	mu sync.RWMutex

	embedder  ports.Embedder
	modelID   string
	dimension int

	documents []domain.NewsDocument
	vectors   []float32
}

func New(embedder ports.Embedder, modelID string, dimension int) *Index {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = DefaultModelID
	}
	return &Index{
		embedder:  embedder,
		modelID:   modelID,
		dimension: dimension,
	}
}

func (idx *Index) AddDocuments(ctx context.Context, texts []string, metadata []domain.NewsMetadata) error {
	if len(texts) != len(metadata) {
		return domain.WrapError(domain.ErrInputMismatch, "embedding add documents",
			fmt.Errorf("texts=%d metadata=%d", len(texts), len(metadata)))
	}
	if len(texts) == 0 {
		return nil
	}

	vectors, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(texts) {
		return domain.WrapError(domain.ErrInputMismatch, "embedding add documents",
			fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts)))
	}
	for i, v := range vectors {
		if len(v) != idx.dimension {
			return fmt.Errorf("embed documents: vector %d has dimension %d, want %d", i, len(v), idx.dimension)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, text := range texts {
		idx.documents = append(idx.documents, domain.NewsDocument{Text: text, Metadata: metadata[i]}.Clone())
		idx.vectors = append(idx.vectors, vectors[i]...)
	}

	slog.Info("embedding_index_appended", "added", len(texts), "total", len(idx.documents))
	return nil
}

// Search over-fetches the whole corpus when filterTicker is set, so filtered
// queries cost a full scan regardless of k.
func (idx *Index) Search(ctx context.Context, query string, k int, filterTicker string) ([]domain.ScoredDocument, error) {
	if k <= 0 || idx.Len() == 0 {
		return []domain.ScoredDocument{}, nil
	}

	qv, err := idx.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qv) != idx.dimension {
		return nil, fmt.Errorf("embed query: vector has dimension %d, want %d", len(qv), idx.dimension)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.documents)
	fetch := k
	filterTicker = strings.TrimSpace(filterTicker)
	if filterTicker != "" || fetch > n {
		fetch = n
	}

	neighbours := idx.nearest(qv, fetch)
	out := make([]domain.ScoredDocument, 0, k)
	for _, nb := range neighbours {
		if len(out) == k {
			break
		}
		doc := idx.documents[nb.pos]
		if filterTicker != "" && !doc.Metadata.HasTicker(filterTicker) {
			continue
		}
		out = append(out, domain.ScoredDocument{Document: doc.Clone(), Score: float64(nb.dist)})
	}
	return out, nil
}

type neighbour struct {
	pos  int
	dist float32
}

func (idx *Index) nearest(query []float32, limit int) []neighbour {
	n := len(idx.documents)
	all := make([]neighbour, n)
	diff := make([]float32, idx.dimension)
	for i := 0; i < n; i++ {
		row := idx.vectors[i*idx.dimension : (i+1)*idx.dimension]
		vek32.Sub_Into(diff, row, query)
		all[i] = neighbour{pos: i, dist: vek32.Dot(diff, diff)}
	}
	sort.SliceStable(all, func(a, b int) bool {
		return all[a].dist < all[b].dist
	})
	if limit < len(all) {
		all = all[:limit]
	}
	return all
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.documents)
}

func (idx *Index) Stats() domain.IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, doc := range idx.documents {
		for _, t := range doc.Metadata.Tickers {
			seen[t] = struct{}{}
		}
	}
	tickers := make([]string, 0, len(seen))
	for t := range seen {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	return domain.IndexStats{
		NumDocuments:    len(idx.documents),
		UniqueTickers:   len(tickers),
		Tickers:         tickers,
		ModelIdentifier: idx.modelID,
		Dimension:       idx.dimension,
	}
}

// Save writes <base>.vec first and <base>.json second; the JSON sidecar
// carries the vector file checksum so a stale pair is rejected on load.
func (idx *Index) Save(basePath string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	vecBytes := encodeVectors(len(idx.documents), idx.dimension, idx.vectors)
	if err := snapshot.WriteAtomic(vectorPath(basePath), func(w io.Writer) error {
		_, err := w.Write(vecBytes)
		return err
	}); err != nil {
		return fmt.Errorf("save embedding vectors: %w", err)
	}

	meta := sidecar{
		Documents:       idx.documents,
		ModelIdentifier: idx.modelID,
		Dimension:       idx.dimension,
		VectorCount:     len(idx.documents),
		VectorChecksum:  snapshot.Checksum(vecBytes),
	}
	if err := snapshot.WriteJSON(metadataPath(basePath), snapshotKind, meta); err != nil {
		return fmt.Errorf("save embedding metadata: %w", err)
	}

	slog.Info("embedding_index_saved", "base_path", basePath, "documents", len(idx.documents))
	return nil
}

func (idx *Index) Load(basePath string) error {
	staged, err := idx.Stage(basePath)
	if err != nil {
		return err
	}
	staged.Commit()
	return nil
}

// Stage reads and validates the snapshot pair at basePath without touching
// the index. Commit swaps the decoded state in.
func (idx *Index) Stage(basePath string) (*domain.StagedSnapshot, error) {
	vecBytes, vecErr := os.ReadFile(vectorPath(basePath))
	_, metaStatErr := os.Stat(metadataPath(basePath))
	vecMissing := errors.Is(vecErr, os.ErrNotExist)
	metaMissing := errors.Is(metaStatErr, os.ErrNotExist)

	switch {
	case vecMissing && metaMissing:
		return nil, fmt.Errorf("load embedding index: %w", os.ErrNotExist)
	case vecMissing || metaMissing:
		return nil, domain.WrapError(domain.ErrIndexCorrupt, "load embedding index", errors.New("snapshot pair incomplete"))
	case vecErr != nil:
		return nil, domain.WrapError(domain.ErrIndexCorrupt, "read embedding vectors", vecErr)
	}

	var meta sidecar
	if err := snapshot.ReadJSON(metadataPath(basePath), snapshotKind, &meta); err != nil {
		return nil, err
	}
	if snapshot.Checksum(vecBytes) != meta.VectorChecksum {
		return nil, domain.WrapError(domain.ErrIndexCorrupt, "load embedding index", errors.New("vector file does not match metadata"))
	}
	count, dim, vectors, err := decodeVectors(vecBytes)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexCorrupt, "decode embedding vectors", err)
	}
	if count != len(meta.Documents) || count != meta.VectorCount || dim != meta.Dimension {
		return nil, domain.WrapError(domain.ErrIndexCorrupt, "load embedding index",
			fmt.Errorf("vectors=%d dim=%d documents=%d", count, dim, len(meta.Documents)))
	}
	if dim != idx.dimension {
		return nil, domain.WrapError(domain.ErrIndexCorrupt, "load embedding index",
			fmt.Errorf("snapshot dimension %d, index dimension %d", dim, idx.dimension))
	}

	commit := func() {
		idx.mu.Lock()
		idx.documents = meta.Documents
		idx.vectors = vectors
		if meta.ModelIdentifier != "" {
			idx.modelID = meta.ModelIdentifier
		}
		idx.mu.Unlock()
		slog.Info("embedding_index_loaded", "base_path", basePath, "documents", count)
	}
	return &domain.StagedSnapshot{Documents: count, Commit: commit}, nil
}
