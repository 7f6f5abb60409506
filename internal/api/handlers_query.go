package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docrag/internal/answer"
	"github.com/dgallion1/docrag/internal/index"
)

// maxSearchK bounds k on /api/search.
const maxSearchK = 50

type searchRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

type searchHit struct {
	Source  string  `json:"source"`
	ChunkID string  `json:"chunk_id"`
	Ordinal int     `json:"ordinal"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	question, ok := s.checkQuestion(w, req.Question)
	if !ok {
		return
	}
	k := req.K
	if k <= 0 {
		k = s.cfg.DefaultTopK
	}
	k = min(k, maxSearchK)

	hits, err := s.index.Query(question, k)
	if errors.Is(err, index.ErrNotBuilt) {
		jsonError(w, "index has not been built", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		jsonError(w, "search failed", http.StatusInternalServerError)
		return
	}

	out := make([]searchHit, len(hits))
	for i, h := range hits {
		out[i] = searchHit{
			Source:  h.Chunk.Source,
			ChunkID: h.Chunk.ID,
			Ordinal: h.Chunk.Ordinal,
			Score:   h.Score,
			Text:    h.Chunk.Text,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": out})
}

type chatRequest struct {
	Question string           `json:"question"`
	Messages []answer.Message `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	question, ok := s.checkQuestion(w, req.Question)
	if !ok {
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamChat(w, r, question, req.Messages)
		return
	}

	resp, err := s.answers.Answer(r.Context(), question, req.Messages)
	if errors.Is(err, answer.ErrInvalidRole) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		jsonError(w, "answer failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamChat answers as server-sent events: one "citations" event, then
// "content" events with pieces of the reply, then "[DONE]". A failure after
// the stream has started ends it with an "error" event instead.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, question string, history []answer.Message) {
	rc := http.NewResponseController(w)
	send := func(event map[string]any) error {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		return nil
	}

	started := false
	err := s.answers.Stream(r.Context(), question, history,
		func(citations []answer.Citation) error {
			started = true
			h := w.Header()
			h.Set("Content-Type", "text/event-stream")
			h.Set("Cache-Control", "no-cache")
			h.Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			return send(map[string]any{"type": "citations", "citations": citations})
		},
		func(text string) error {
			return send(map[string]any{"type": "content", "content": text})
		})

	switch {
	case err == nil:
		fmt.Fprint(w, "data: [DONE]\n\n")
		rc.Flush()
	case !started && errors.Is(err, answer.ErrInvalidRole):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case !started:
		jsonError(w, "answer failed", http.StatusBadGateway)
	case r.Context().Err() == nil:
		send(map[string]any{"type": "error", "detail": "answer failed"})
	}
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) checkQuestion(w http.ResponseWriter, q string) (string, bool) {
	q = strings.TrimSpace(q)
	if q == "" {
		jsonError(w, "question is required", http.StatusBadRequest)
		return "", false
	}
	if utf8.RuneCountInString(q) > s.cfg.MaxQuestionChars {
		jsonError(w, fmt.Sprintf("question exceeds %d characters", s.cfg.MaxQuestionChars), http.StatusBadRequest)
		return "", false
	}
	return q, true
}
