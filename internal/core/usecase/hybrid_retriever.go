package usecase

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/core/ports"
)

func DefaultFusionConfig() domain.FusionConfig {
	return domain.FusionConfig{
		LexicalWeight:   1.0,
		EmbeddingWeight: 2.0,
		KRRF:            60,
		RetrievalDepth:  20,
	}
}

type HybridRetriever struct {
	lexical   ports.LexicalSearcher
	embedding ports.EmbeddingSearcher
	cfg       domain.FusionConfig
}

func NewHybridRetriever(lexical ports.LexicalSearcher, embedding ports.EmbeddingSearcher, cfg domain.FusionConfig) *HybridRetriever {
	def := DefaultFusionConfig()
	if cfg.KRRF <= 0 {
		cfg.KRRF = def.KRRF
	}
	if cfg.RetrievalDepth <= 0 {
		cfg.RetrievalDepth = def.RetrievalDepth
	}
	if cfg.LexicalWeight < 0 {
		cfg.LexicalWeight = def.LexicalWeight
	}
	if cfg.EmbeddingWeight < 0 {
		cfg.EmbeddingWeight = def.EmbeddingWeight
	}
	return &HybridRetriever{lexical: lexical, embedding: embedding, cfg: cfg}
}

// Search runs both sub-index searches concurrently and fuses them with
// weighted reciprocal rank fusion. Either sub-index failing fails the call.
func (h *HybridRetriever) Search(ctx context.Context, query string, k int) ([]domain.FusionResult, error) {
	if k <= 0 {
		return []domain.FusionResult{}, nil
	}
	depth := h.cfg.RetrievalDepth
	if depth < k {
		depth = k
	}

	var lexical, embedding []domain.ScoredDocument
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexical = h.lexical.Search(query, depth, "")
		return nil
	})
	g.Go(func() error {
		res, err := h.embedding.Search(gctx, query, depth, "")
		if err != nil {
			return fmt.Errorf("embedding search: %w", err)
		}
		embedding = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	fused := fuseRRF(lexical, embedding, h.cfg)
	if len(fused) > k {
		fused = fused[:k]
	}

	slog.Debug("hybrid_search",
		"lexical_hits", len(lexical),
		"embedding_hits", len(embedding),
		"fused", len(fused),
	)
	return fused, nil
}

func (h *HybridRetriever) Stats() domain.RetrievalStats {
	return domain.RetrievalStats{
		Lexical:   h.lexical.Stats(),
		Embedding: h.embedding.Stats(),
		Fusion:    h.cfg,
	}
}

type fusedCandidate struct {
	doc           domain.NewsDocument
	score         float64
	lexicalRank   *int
	embeddingRank *int
	order         int
}

// fuseRRF sums weight/(k_rrf+rank) with 1-based ranks per list. Equal fused
// scores keep first-seen order, lexical list first.
func fuseRRF(lexical, embedding []domain.ScoredDocument, cfg domain.FusionConfig) []domain.FusionResult {
	acc := make(map[uint64]*fusedCandidate, len(lexical)+len(embedding))
	candidates := make([]*fusedCandidate, 0, len(lexical)+len(embedding))

	add := func(hits []domain.ScoredDocument, weight float64, lexicalList bool) {
		for i, hit := range hits {
			rank := i + 1
			key := documentKey(hit.Document.Text)
			c, ok := acc[key]
			if !ok {
				c = &fusedCandidate{doc: hit.Document, order: len(candidates)}
				acc[key] = c
				candidates = append(candidates, c)
			}
			c.score += weight / float64(cfg.KRRF+rank)
			r := rank
			if lexicalList {
				if c.lexicalRank == nil {
					c.lexicalRank = &r
				}
			} else if c.embeddingRank == nil {
				c.embeddingRank = &r
			}
		}
	}
	add(lexical, cfg.LexicalWeight, true)
	add(embedding, cfg.EmbeddingWeight, false)

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	out := make([]domain.FusionResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, domain.FusionResult{
			Document:      c.doc,
			FusedScore:    c.score,
			LexicalRank:   c.lexicalRank,
			EmbeddingRank: c.embeddingRank,
		})
	}
	return out
}

func documentKey(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}
