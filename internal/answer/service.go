// Package answer turns a question into a grounded reply from the indexed
// documents and a Claude model.
package answer

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/docrag/internal/index"
)

// ExcerptRunes is how much chunk text a citation shows.
const ExcerptRunes = 220

// Retriever ranks chunks for a question.
type Retriever interface {
	Query(question string, k int) ([]index.Hit, error)
}

// Completer sends a conversation to a language model.
type Completer interface {
	Complete(ctx context.Context, system string, messages []Message) (string, error)
}

// Streamer is a Completer that can deliver the reply as text deltas.
type Streamer interface {
	Stream(ctx context.Context, system string, messages []Message, onText func(string) error) error
}

// Citation points at a chunk used to answer.
type Citation struct {
	Source  string  `json:"source"`
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Excerpt string  `json:"excerpt"`
}

// Response is a model answer with the chunks it was grounded on.
type Response struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// Settings sizes retrieval and history for Service.
type Settings struct {
	TopK          int
	CitationCount int
	HistoryTurns  int
}

// Service answers questions from the index.
type Service struct {
	index    Retriever
	llm      Completer
	settings Settings
	log      *slog.Logger
}

func NewService(ix Retriever, llm Completer, settings Settings, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{index: ix, llm: llm, settings: settings, log: log}
}

// Answer retrieves context for question and asks the model. An index that
// has never been built yields an empty context rather than an error.
func (s *Service) Answer(ctx context.Context, question string, history []Message) (Response, error) {
	msgs, hits, err := s.prepare(question, history)
	if err != nil {
		return Response{}, err
	}

	start := time.Now()
	text, err := s.llm.Complete(ctx, BuildSystemPrompt(hits), msgs)
	if err != nil {
		s.log.Error("answer failed", "error", err, "hits", len(hits))
		return Response{}, err
	}
	s.log.Info("answered",
		"hits", len(hits),
		"history", len(msgs)-1,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Response{Answer: text, Citations: Citations(hits, s.settings.CitationCount)}, nil
}

// Stream answers like Answer but hands the citations to onCitations before
// the model is called, then each piece of the reply to onText. Errors
// returned before onCitations runs mean nothing was sent. A model without
// streaming support delivers its whole reply as one piece.
func (s *Service) Stream(ctx context.Context, question string, history []Message,
	onCitations func([]Citation) error, onText func(string) error) error {
	msgs, hits, err := s.prepare(question, history)
	if err != nil {
		return err
	}
	if err := onCitations(Citations(hits, s.settings.CitationCount)); err != nil {
		return err
	}

	start := time.Now()
	system := BuildSystemPrompt(hits)
	if st, ok := s.llm.(Streamer); ok {
		err = st.Stream(ctx, system, msgs, onText)
	} else {
		var text string
		if text, err = s.llm.Complete(ctx, system, msgs); err == nil {
			err = onText(text)
		}
	}
	if err != nil {
		s.log.Error("streamed answer failed", "error", err, "hits", len(hits))
		return err
	}
	s.log.Info("answered",
		"hits", len(hits),
		"history", len(msgs)-1,
		"streamed", true,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *Service) prepare(question string, history []Message) ([]Message, []index.Hit, error) {
	msgs, err := Conversation(history, s.settings.HistoryTurns, question)
	if err != nil {
		return nil, nil, err
	}
	hits, err := s.index.Query(question, s.settings.TopK)
	if err != nil && !errors.Is(err, index.ErrNotBuilt) {
		return nil, nil, err
	}
	return msgs, hits, nil
}

// Citations returns the first n hits as citations.
func Citations(hits []index.Hit, n int) []Citation {
	n = max(0, min(n, len(hits)))
	out := make([]Citation, n)
	for i, h := range hits[:n] {
		out[i] = Citation{
			Source:  h.Chunk.Source,
			ChunkID: h.Chunk.ID,
			Score:   h.Score,
			Excerpt: Excerpt(h.Chunk.Text, ExcerptRunes),
		}
	}
	return out
}

// Excerpt returns the first n runes of text, with "..." appended when text
// was cut.
func Excerpt(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "..."
}
