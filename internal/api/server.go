package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/docrag/internal/answer"
	"github.com/dgallion1/docrag/internal/config"
	"github.com/dgallion1/docrag/internal/corpus"
	"github.com/dgallion1/docrag/internal/index"
	"github.com/dgallion1/docrag/internal/pipeline"
)

// Server is the HTTP API server for docrag.
type Server struct {
	router       chi.Router
	index        *index.Index
	orchestrator *pipeline.Orchestrator
	answers      *answer.Service
	stats        *answer.LLMStats
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(cfg config.Config, ix *index.Index, orch *pipeline.Orchestrator, answers *answer.Service, stats *answer.LLMStats, log *slog.Logger) *Server {
	s := &Server{
		index:        ix,
		orchestrator: orch,
		answers:      answers,
		stats:        stats,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(CORS(s.cfg.AllowedOrigins))

	// Public endpoints.
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/documents", s.handleListDocuments)
	r.Post("/api/search", s.handleSearch)
	r.With(RateLimit(s.cfg.ChatRatePerMinute, s.log)).Post("/api/chat", s.handleChat)

	// Admin endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AdminToken(s.cfg.AdminToken, s.log))

		r.Post("/api/admin/reindex", s.handleReindex)
		r.Post("/api/admin/upload", s.handleUpload)
		r.Post("/api/admin/upload-pdf", s.handleUpload)
		r.Delete("/api/admin/documents/{name}", s.handleDeleteDocument)
		r.Get("/api/admin/jobs/{jobID}", s.handleJobStatus)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

type healthResponse struct {
	OK          bool        `json:"ok"`
	Model       string      `json:"model"`
	SourceCount int         `json:"sourceCount"`
	PDFCount    int         `json:"pdfCount"`
	HasIndex    bool        `json:"hasIndex"`
	State       index.State `json:"state"`
	Chunks      int         `json:"chunks"`
	Error       string      `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.index.Status()
	sources, err := corpus.ListSources(s.cfg.SourceDir())
	if err != nil {
		s.log.Warn("list sources failed", "error", err)
	}
	writeJSON(w, http.StatusOK, healthResponse{
		OK:          true,
		Model:       s.cfg.AnthropicModel,
		SourceCount: len(sources),
		PDFCount:    countPDFs(sources),
		HasIndex:    s.index.Snapshot() != nil,
		State:       st.State,
		Chunks:      st.Chunks,
		Error:       st.Error,
	})
}

func countPDFs(names []string) int {
	n := 0
	for _, name := range names {
		if strings.EqualFold(filepath.Ext(name), ".pdf") {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
