package index

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dgallion1/docrag/internal/doctree"
)

// posting records how often a token occurs in one chunk.
type posting struct {
	chunk int // position in Snapshot.chunks
	tf    int
}

// Snapshot is an immutable, fully built index: the chunk list, its
// tokenization, and the corpus aggregates derived from them. A Snapshot is
// never modified after construction, so any number of goroutines may query it.
type Snapshot struct {
	chunks  []doctree.Chunk
	tokens  [][]string
	lengths []int
	docFreq map[string]int
	avgLen  float64

	postings    map[string][]posting
	fingerprint string
}

// Build tokenizes chunks and computes the corpus aggregates. Chunk ids must
// be unique; chunk order is preserved and used to break ranking ties.
func Build(chunks []doctree.Chunk) (*Snapshot, error) {
	seen := make(map[string]struct{}, len(chunks))
	tokens := make([][]string, len(chunks))
	for i, c := range chunks {
		if _, dup := seen[c.ID]; dup {
			return nil, &IndexError{Op: "build", Err: fmt.Errorf("duplicate chunk id %q", c.ID)}
		}
		seen[c.ID] = struct{}{}
		tokens[i] = Tokenize(c.Text)
	}
	return newSnapshot(chunks, tokens), nil
}

// newSnapshot derives aggregates and postings from a chunk list and its
// tokenization. Callers guarantee len(chunks) == len(tokens).
func newSnapshot(chunks []doctree.Chunk, tokens [][]string) *Snapshot {
	s := &Snapshot{
		chunks:   append([]doctree.Chunk(nil), chunks...),
		tokens:   tokens,
		lengths:  make([]int, len(chunks)),
		docFreq:  make(map[string]int),
		postings: make(map[string][]posting),
	}

	total := 0
	for i, toks := range tokens {
		s.lengths[i] = len(toks)
		total += len(toks)

		tf := make(map[string]int, len(toks))
		order := make([]string, 0, len(toks))
		for _, t := range toks {
			if tf[t] == 0 {
				order = append(order, t)
			}
			tf[t]++
		}
		for _, t := range order {
			s.docFreq[t]++
			s.postings[t] = append(s.postings[t], posting{chunk: i, tf: tf[t]})
		}
	}
	if len(chunks) > 0 {
		s.avgLen = float64(total) / float64(len(chunks))
	}
	s.fingerprint = fingerprint(chunks)
	return s
}

func fingerprint(chunks []doctree.Chunk) string {
	h := sha256.New()
	for _, c := range chunks {
		fmt.Fprintf(h, "%d:%s\x00%d:%s\x00%d:%s\x00", len(c.ID), c.ID, len(c.Source), c.Source, len(c.Text), c.Text)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Len returns the number of chunks.
func (s *Snapshot) Len() int { return len(s.chunks) }

// Chunk returns the i-th chunk in index order.
func (s *Snapshot) Chunk(i int) doctree.Chunk { return s.chunks[i] }

// Chunks returns a copy of the chunk list.
func (s *Snapshot) Chunks() []doctree.Chunk {
	return append([]doctree.Chunk(nil), s.chunks...)
}

// Tokens returns a copy of the i-th chunk's tokens.
func (s *Snapshot) Tokens(i int) []string {
	return append([]string(nil), s.tokens[i]...)
}

// DocFreq returns the number of chunks containing token at least once.
func (s *Snapshot) DocFreq(token string) int { return s.docFreq[token] }

// VocabularySize returns the number of distinct tokens.
func (s *Snapshot) VocabularySize() int { return len(s.docFreq) }

// AvgLen returns the mean chunk length in tokens.
func (s *Snapshot) AvgLen() float64 { return s.avgLen }

// Fingerprint is a content hash over chunk ids, sources and text.
func (s *Snapshot) Fingerprint() string { return s.fingerprint }

// SourceStat summarizes one source document inside a snapshot.
type SourceStat struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

// Sources lists the distinct sources in first-seen order with their chunk counts.
func (s *Snapshot) Sources() []SourceStat {
	var out []SourceStat
	pos := make(map[string]int)
	for _, c := range s.chunks {
		i, ok := pos[c.Source]
		if !ok {
			i = len(out)
			pos[c.Source] = i
			out = append(out, SourceStat{Source: c.Source})
		}
		out[i].Chunks++
	}
	return out
}
