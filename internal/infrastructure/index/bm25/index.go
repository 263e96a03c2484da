package bm25

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/infrastructure/index/snapshot"
)

const snapshotKind = "bm25_index"

type Index struct {
	mu sync.RWMutex

	k1      float64
	b       float64
	epsilon float64

	documents []domain.NewsDocument
	corpus    [][]string
	model     *okapi
}

func New() *Index {
	return NewWithParams(DefaultK1, DefaultB, DefaultEpsilon)
}

func NewWithParams(k1, b, epsilon float64) *Index {
	return &Index{k1: k1, b: b, epsilon: epsilon}
}

// Tokenize lower-cases text and splits it on whitespace.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// AddDocuments appends documents and rebuilds the whole model.
func (idx *Index) AddDocuments(texts []string, metadata []domain.NewsMetadata) error {
	if len(texts) != len(metadata) {
		return domain.WrapError(domain.ErrInputMismatch, "bm25 add documents",
			fmt.Errorf("texts=%d metadata=%d", len(texts), len(metadata)))
	}
	if len(texts) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i, text := range texts {
		doc := domain.NewsDocument{Text: text, Metadata: metadata[i]}.Clone()
		idx.documents = append(idx.documents, doc)
		idx.corpus = append(idx.corpus, Tokenize(text))
	}
	idx.model = buildOkapi(idx.corpus, idx.k1, idx.b, idx.epsilon)

	slog.Info("bm25_index_rebuilt", "added", len(texts), "total", len(idx.documents))
	return nil
}

func (idx *Index) Search(query string, k int, filterTicker string) []domain.ScoredDocument {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.model == nil || len(idx.documents) == 0 || k <= 0 {
		return []domain.ScoredDocument{}
	}

	scores := idx.model.scores(Tokenize(query))
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	filterTicker = strings.TrimSpace(filterTicker)
	out := make([]domain.ScoredDocument, 0, k)
	for _, i := range order {
		if len(out) == k {
			break
		}
		doc := idx.documents[i]
		if filterTicker != "" && !doc.Metadata.HasTicker(filterTicker) {
			continue
		}
		out = append(out, domain.ScoredDocument{Document: doc.Clone(), Score: scores[i]})
	}
	return out
}

func (idx *Index) Stats() domain.IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stats := domain.IndexStats{NumDocuments: len(idx.documents)}
	if len(idx.corpus) > 0 {
		lengths := make([]float64, len(idx.corpus))
		for i, tokens := range idx.corpus {
			lengths[i] = float64(len(tokens))
		}
		stats.AvgDocLength = stat.Mean(lengths, nil)
	}
	stats.Tickers = distinctTickers(idx.documents)
	stats.UniqueTickers = len(stats.Tickers)
	return stats
}

// HasLink reports whether a document with the given link is already indexed.
func (idx *Index) HasLink(link string) bool {
	if link == "" {
		return false
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, doc := range idx.documents {
		if doc.Metadata.Link == link {
			return true
		}
	}
	return false
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.documents)
}

type snapshotPayload struct {
	Documents       []domain.NewsDocument `json:"documents"`
	TokenizedCorpus [][]string            `json:"tokenized_corpus"`
	BuiltIndex      *okapi                `json:"built_index"`
}

// Save writes documents, tokenized corpus and the built model as one atomic snapshot.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	payload := snapshotPayload{
		Documents:       idx.documents,
		TokenizedCorpus: idx.corpus,
		BuiltIndex:      idx.model,
	}
	err := snapshot.WriteJSON(path, snapshotKind, payload)
	idx.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("save bm25 index: %w", err)
	}
	slog.Info("bm25_index_saved", "path", path, "documents", len(payload.Documents))
	return nil
}

// Load replaces the in-memory state with the snapshot at path.
func (idx *Index) Load(path string) error {
	staged, err := idx.Stage(path)
	if err != nil {
		return err
	}
	staged.Commit()
	return nil
}

// Stage reads and validates the snapshot at path without touching the index.
// Commit swaps the decoded state in.
func (idx *Index) Stage(path string) (*domain.StagedSnapshot, error) {
	var payload snapshotPayload
	if err := snapshot.ReadJSON(path, snapshotKind, &payload); err != nil {
		return nil, err
	}
	if err := payload.validate(); err != nil {
		return nil, domain.WrapError(domain.ErrIndexCorrupt, "load bm25 index", err)
	}

	commit := func() {
		idx.mu.Lock()
		idx.documents = payload.Documents
		idx.corpus = payload.TokenizedCorpus
		idx.model = payload.BuiltIndex
		if len(idx.documents) == 0 {
			idx.model = nil
		}
		idx.mu.Unlock()
		slog.Info("bm25_index_loaded", "path", path, "documents", len(payload.Documents))
	}
	return &domain.StagedSnapshot{Documents: len(payload.Documents), Commit: commit}, nil
}

func (p snapshotPayload) validate() error {
	if len(p.Documents) != len(p.TokenizedCorpus) {
		return fmt.Errorf("documents=%d tokenized=%d", len(p.Documents), len(p.TokenizedCorpus))
	}
	if len(p.Documents) == 0 {
		return nil
	}
	if p.BuiltIndex == nil {
		return errors.New("missing built index")
	}
	if len(p.BuiltIndex.DocLen) != len(p.Documents) || len(p.BuiltIndex.TermTF) != len(p.Documents) {
		return fmt.Errorf("built index covers %d documents, want %d", len(p.BuiltIndex.DocLen), len(p.Documents))
	}
	return nil
}

func distinctTickers(docs []domain.NewsDocument) []string {
	seen := make(map[string]struct{})
	for _, doc := range docs {
		for _, t := range doc.Metadata.Tickers {
			seen[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
