package index

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/dgallion1/docrag/internal/doctree"
)

// Params are the BM25 tuning constants.
type Params struct {
	K1 float64 // term-frequency saturation
	B  float64 // length-normalization strength
}

// DefaultParams returns k1 = 1.5, b = 0.75.
func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75}
}

// Validate checks that k1 is non-negative and b lies in [0, 1].
func (p Params) Validate() error {
	if p.K1 < 0 || math.IsNaN(p.K1) {
		return fmt.Errorf("bm25 k1 must be >= 0, got %v", p.K1)
	}
	if p.B < 0 || p.B > 1 || math.IsNaN(p.B) {
		return fmt.Errorf("bm25 b must be within [0, 1], got %v", p.B)
	}
	return nil
}

// Hit is one ranked chunk.
type Hit struct {
	Chunk doctree.Chunk
	Score float64
}

// IDF is the BM25 inverse document frequency for a token found in df of n chunks.
func IDF(n, df int) float64 {
	return math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
}

// Scores returns the BM25 score of every chunk against the query tokens,
// indexed like the chunk list. Tokens outside the vocabulary are skipped;
// a repeated query token is counted once per occurrence.
func (s *Snapshot) Scores(query []string, p Params) []float64 {
	scores := make([]float64, len(s.chunks))
	n := len(s.chunks)
	for _, tok := range query {
		df := s.docFreq[tok]
		if df == 0 {
			continue
		}
		idf := IDF(n, df)
		for _, post := range s.postings[tok] {
			tf := float64(post.tf)
			norm := 1 - p.B + p.B*float64(s.lengths[post.chunk])/s.avgLen
			scores[post.chunk] += idf * (tf * (p.K1 + 1)) / (tf + p.K1*norm)
		}
	}
	return scores
}

// Search ranks chunks against question and returns at most k hits, best
// first. Ties keep chunk order; chunks scoring zero are never returned.
func (s *Snapshot) Search(question string, k int, p Params) []Hit {
	if k <= 0 || len(s.chunks) == 0 {
		return nil
	}
	query := Tokenize(question)
	if len(query) == 0 {
		return nil
	}

	scores := s.Scores(query, p)
	ranked := make([]int, 0, len(scores))
	for i, sc := range scores {
		if sc > 0 {
			ranked = append(ranked, i)
		}
	}
	slices.SortStableFunc(ranked, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	hits := make([]Hit, len(ranked))
	for i, idx := range ranked {
		hits[i] = Hit{Chunk: s.chunks[idx], Score: scores[idx]}
	}
	return hits
}
