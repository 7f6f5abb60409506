package chunker

import (
	"fmt"

	"github.com/dgallion1/docrag/internal/doctree"
)

// Config controls chunking behavior. Sizes are in characters (runes).
type Config struct {
	ChunkSize    int // Maximum chunk length.
	ChunkOverlap int // Characters shared by consecutive chunks.
}

// DefaultConfig returns the retrieval defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1100,
		ChunkOverlap: 180,
	}
}

// Validate rejects configurations the splitter would have to clamp.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunk overlap must not be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Stride is the number of characters a window advances. The overlap is
// clamped the same way Split clamps it.
func (c Config) Stride() int {
	size, overlap := c.normalized()
	return size - overlap
}

func (c Config) normalized() (size, overlap int) {
	size = c.ChunkSize
	if size <= 0 {
		size = DefaultConfig().ChunkSize
	}
	overlap = c.ChunkOverlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return size, overlap
}

// Split cuts text into windows of at most ChunkSize runes. Each window after
// the first starts ChunkOverlap runes before the previous one ended, and the
// last window always ends at the end of text. text must be valid UTF-8;
// invalid bytes come back as U+FFFD, so the windows would no longer
// reassemble into text. doctree.PlainText output is always valid.
func Split(text string, cfg Config) []string {
	if text == "" {
		return nil
	}
	size, overlap := cfg.normalized()

	runes := []rune(text)
	n := len(runes)
	var parts []string
	for start := 0; start < n; {
		end := min(n, start+size)
		parts = append(parts, string(runes[start:end]))
		if end >= n {
			break
		}
		start = end - overlap
	}
	return parts
}

// ChunkDocument splits one source's text and assigns ids "<source>:<ordinal>".
func ChunkDocument(source, text string, cfg Config) []doctree.Chunk {
	parts := Split(text, cfg)
	if len(parts) == 0 {
		return nil
	}
	chunks := make([]doctree.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = doctree.Chunk{
			ID:      ChunkID(source, i),
			Source:  source,
			Ordinal: i,
			Text:    p,
		}
	}
	return chunks
}

// ChunkID formats the stable identifier of a source's i-th chunk.
func ChunkID(source string, ordinal int) string {
	return fmt.Sprintf("%s:%d", source, ordinal)
}
