package domain

import (
	"strings"
	"time"
)

type NewsMetadata struct {
	Tickers     []string  `json:"tickers"`
	Title       string    `json:"title,omitempty"`
	Publisher   string    `json:"publisher,omitempty"`
	Link        string    `json:"link,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// HasTicker reports whether the metadata lists ticker (case-insensitive).
func (m NewsMetadata) HasTicker(ticker string) bool {
	for _, t := range m.Tickers {
		if strings.EqualFold(t, ticker) {
			return true
		}
	}
	return false
}

type NewsDocument struct {
	Text     string       `json:"text"`
	Metadata NewsMetadata `json:"metadata"`
}

// Clone returns a deep copy so indexes never share ticker slices with callers.
func (d NewsDocument) Clone() NewsDocument {
	out := d
	if d.Metadata.Tickers != nil {
		out.Metadata.Tickers = append([]string(nil), d.Metadata.Tickers...)
	}
	return out
}

// ScoredDocument is a single sub-index hit. Score is a BM25 score for the
// lexical index and a squared L2 distance for the embedding index.
type ScoredDocument struct {
	Document NewsDocument `json:"document"`
	Score    float64      `json:"score"`
}

type IndexStats struct {
	NumDocuments    int      `json:"num_documents"`
	AvgDocLength    float64  `json:"avg_doc_length,omitempty"`
	UniqueTickers   int      `json:"unique_tickers"`
	Tickers         []string `json:"tickers"`
	ModelIdentifier string   `json:"model_identifier,omitempty"`
	Dimension       int      `json:"dimension,omitempty"`
}

// StagedSnapshot is a decoded, validated index snapshot that has not been
// applied yet.
type StagedSnapshot struct {
	Documents int
	Commit    func()
}

type FusionResult struct {
	Document      NewsDocument `json:"document"`
	FusedScore    float64      `json:"rrf_score"`
	LexicalRank   *int         `json:"bm25_rank,omitempty"`
	EmbeddingRank *int         `json:"emb_rank,omitempty"`
}

type FusionConfig struct {
	LexicalWeight   float64 `json:"lexical_weight"`
	EmbeddingWeight float64 `json:"embedding_weight"`
	KRRF            int     `json:"k_rrf"`
	RetrievalDepth  int     `json:"retrieval_depth"`
}

type RetrievalStats struct {
	Lexical   IndexStats   `json:"bm25"`
	Embedding IndexStats   `json:"embedding"`
	Fusion    FusionConfig `json:"hybrid_config"`
}

// NewsArticle is the caller-facing shape returned by news search.
type NewsArticle struct {
	Title          string     `json:"title"`
	Text           string     `json:"text"`
	Tickers        []string   `json:"tickers"`
	Publisher      string     `json:"publisher"`
	Link           string     `json:"link,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	RelevanceScore float64    `json:"relevance_score"`
}

// RawArticle is an ingestion record as delivered by feeds and the CLI.
type RawArticle struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Link        string    `json:"link"`
	Publisher   string    `json:"publisher"`
	Tickers     []string  `json:"tickers"`
	PublishedAt time.Time `json:"published_at"`
}

func (a RawArticle) Document() NewsDocument {
	tickers := make([]string, 0, len(a.Tickers))
	for _, t := range a.Tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			tickers = append(tickers, t)
		}
	}
	return NewsDocument{
		Text: strings.TrimSpace(a.Title) + "\n\n" + strings.TrimSpace(a.Summary),
		Metadata: NewsMetadata{
			Tickers:     tickers,
			Title:       strings.TrimSpace(a.Title),
			Publisher:   strings.TrimSpace(a.Publisher),
			Link:        strings.TrimSpace(a.Link),
			PublishedAt: a.PublishedAt,
		},
	}
}

type IngestReport struct {
	Received   int `json:"received"`
	Duplicates int `json:"duplicates"`
	Indexed    int `json:"indexed"`
	Total      int `json:"total_documents"`
}
