package bm25

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	DefaultK1      = 1.5
	DefaultB       = 0.75
	DefaultEpsilon = 0.25
)

// okapi is an Okapi BM25 model built over a fixed tokenized corpus.
type okapi struct {
	K1      float64            `json:"k1"`
	B       float64            `json:"b"`
	Epsilon float64            `json:"epsilon"`
	AvgDL   float64            `json:"avgdl"`
	DocLen  []int              `json:"doc_len"`
	TermTF  []map[string]int   `json:"doc_freqs"`
	IDF     map[string]float64 `json:"idf"`
}

func buildOkapi(corpus [][]string, k1, b, epsilon float64) *okapi {
	m := &okapi{
		K1:      k1,
		B:       b,
		Epsilon: epsilon,
		DocLen:  make([]int, len(corpus)),
		TermTF:  make([]map[string]int, len(corpus)),
		IDF:     make(map[string]float64),
	}

	docsWithTerm := make(map[string]int)
	totalTokens := 0
	for i, tokens := range corpus {
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term := range tf {
			docsWithTerm[term]++
		}
		m.TermTF[i] = tf
		m.DocLen[i] = len(tokens)
		totalTokens += len(tokens)
	}
	if len(corpus) > 0 {
		m.AvgDL = float64(totalTokens) / float64(len(corpus))
	}

	n := float64(len(corpus))
	idfs := make([]float64, 0, len(docsWithTerm))
	var negative []string
	for term, df := range docsWithTerm {
		idf := math.Log(n-float64(df)+0.5) - math.Log(float64(df)+0.5)
		m.IDF[term] = idf
		idfs = append(idfs, idf)
		if idf < 0 {
			negative = append(negative, term)
		}
	}
	if len(idfs) > 0 {
		floor := epsilon * floats.Sum(idfs) / float64(len(idfs))
		for _, term := range negative {
			m.IDF[term] = floor
		}
	}
	return m
}

// scores returns one BM25 score per document. Repeated query tokens
// contribute once per occurrence and unknown tokens contribute zero.
func (m *okapi) scores(query []string) []float64 {
	out := make([]float64, len(m.DocLen))
	for _, q := range query {
		idf, ok := m.IDF[q]
		if !ok {
			continue
		}
		for i, tfMap := range m.TermTF {
			tf := float64(tfMap[q])
			if tf == 0 {
				continue
			}
			lengthRatio := 0.0
			if m.AvgDL > 0 {
				lengthRatio = float64(m.DocLen[i]) / m.AvgDL
			}
			out[i] += idf * (tf * (m.K1 + 1)) / (tf + m.K1*(1-m.B+m.B*lengthRatio))
		}
	}
	return out
}
