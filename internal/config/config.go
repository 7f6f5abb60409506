package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/docrag/internal/chunker"
	"github.com/dgallion1/docrag/internal/corpus"
	"github.com/dgallion1/docrag/internal/index"
	"github.com/dgallion1/docrag/internal/parser"
)

type Config struct {
	Port string

	// Auth
	AdminToken string

	// Claude answering
	AnthropicAPIKey string
	AnthropicModel  string

	// Storage
	StorageDir string

	// HTTP surface
	AllowedOrigins    []string
	ChatRatePerMinute int
	MaxUploadBytes    int64
	MaxQuestionChars  int

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Ranking
	BM25K1 float64
	BM25B  float64

	// Retrieval sizes
	DefaultTopK   int
	ChatTopK      int
	CitationCount int
	HistoryTurns  int

	// Rebuilds
	IngestPolicy         string
	MaxConcurrentExtract int
	JobTTL               time.Duration

	// PDF
	PDFFallbackPdftotext bool
}

// Retrieval is the optional YAML overlay selected by DOCRAG_CONFIG.
// Only the retrieval knobs live there; everything else is environment only.
type Retrieval struct {
	ChunkSize     *int     `yaml:"chunk_size"`
	ChunkOverlap  *int     `yaml:"chunk_overlap"`
	BM25K1        *float64 `yaml:"bm25_k1"`
	BM25B         *float64 `yaml:"bm25_b"`
	DefaultTopK   *int     `yaml:"default_top_k"`
	ChatTopK      *int     `yaml:"chat_top_k"`
	CitationCount *int     `yaml:"citation_count"`
	IngestPolicy  *string  `yaml:"ingest_policy"`
}

// Load reads .env (if present), then the optional YAML overlay, then the
// environment. Environment variables win over the overlay.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port: envOr("PORT", "8000"),

		AdminToken: os.Getenv("ADMIN_TOKEN"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),

		StorageDir: envOr("RAG_STORAGE_DIR", "./rag_storage"),

		AllowedOrigins:    envList("ALLOWED_ORIGINS"),
		ChatRatePerMinute: envInt("CHAT_RATE_PER_MINUTE", 5),
		MaxUploadBytes:    envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
		MaxQuestionChars:  envInt("MAX_QUESTION_CHARS", 4000),

		ChunkSize:    1100,
		ChunkOverlap: 180,
		BM25K1:       1.5,
		BM25B:        0.75,

		DefaultTopK:   4,
		ChatTopK:      12,
		CitationCount: 4,
		HistoryTurns:  envInt("HISTORY_TURNS", 12),

		IngestPolicy:         string(corpus.PolicyFailRebuild),
		MaxConcurrentExtract: envInt("MAX_CONCURRENT_EXTRACT", 4),
		JobTTL:               envDuration("JOB_TTL", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if path := os.Getenv("DOCRAG_CONFIG"); path != "" {
		r, err := LoadRetrieval(path)
		if err != nil {
			return Config{}, err
		}
		r.apply(&cfg)
	}

	cfg.ChunkSize = envInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = envInt("CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.BM25K1 = envFloat("BM25_K1", cfg.BM25K1)
	cfg.BM25B = envFloat("BM25_B", cfg.BM25B)
	cfg.DefaultTopK = envInt("DEFAULT_TOP_K", cfg.DefaultTopK)
	cfg.ChatTopK = envInt("CHAT_TOP_K", cfg.ChatTopK)
	cfg.CitationCount = envInt("CITATION_COUNT", cfg.CitationCount)
	cfg.IngestPolicy = envOr("INGEST_POLICY", cfg.IngestPolicy)

	if cfg.ChatRatePerMinute <= 0 {
		cfg.ChatRatePerMinute = 5
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.MaxQuestionChars <= 0 {
		cfg.MaxQuestionChars = 4000
	}
	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = 0
	}
	if cfg.MaxConcurrentExtract <= 0 {
		cfg.MaxConcurrentExtract = 4
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg, nil
}

// LoadRetrieval reads a YAML retrieval overlay.
func LoadRetrieval(path string) (Retrieval, error) {
	var r Retrieval
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("parse config %s: %w", path, err)
	}
	return r, nil
}

func (r Retrieval) apply(cfg *Config) {
	if r.ChunkSize != nil {
		cfg.ChunkSize = *r.ChunkSize
	}
	if r.ChunkOverlap != nil {
		cfg.ChunkOverlap = *r.ChunkOverlap
	}
	if r.BM25K1 != nil {
		cfg.BM25K1 = *r.BM25K1
	}
	if r.BM25B != nil {
		cfg.BM25B = *r.BM25B
	}
	if r.DefaultTopK != nil {
		cfg.DefaultTopK = *r.DefaultTopK
	}
	if r.ChatTopK != nil {
		cfg.ChatTopK = *r.ChatTopK
	}
	if r.CitationCount != nil {
		cfg.CitationCount = *r.CitationCount
	}
	if r.IngestPolicy != nil {
		cfg.IngestPolicy = *r.IngestPolicy
	}
}

// Validate checks everything the HTTP server needs.
func (c Config) Validate() error {
	if c.AdminToken == "" {
		return fmt.Errorf("ADMIN_TOKEN is required")
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	return c.ValidateRetrieval()
}

// ValidateRetrieval checks the chunking, ranking and rebuild settings.
func (c Config) ValidateRetrieval() error {
	var errs []error
	if err := c.Chunking().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.BM25().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := corpus.ParsePolicy(c.IngestPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.DefaultTopK <= 0 || c.ChatTopK <= 0 {
		errs = append(errs, fmt.Errorf("top-k values must be positive (default %d, chat %d)", c.DefaultTopK, c.ChatTopK))
	}
	if c.CitationCount < 0 {
		errs = append(errs, fmt.Errorf("CITATION_COUNT must not be negative"))
	}
	return errors.Join(errs...)
}

// Chunking returns the ingestor window settings.
func (c Config) Chunking() chunker.Config {
	return chunker.Config{ChunkSize: c.ChunkSize, ChunkOverlap: c.ChunkOverlap}
}

// BM25 returns the ranking constants.
func (c Config) BM25() index.Params {
	return index.Params{K1: c.BM25K1, B: c.BM25B}
}

// IndexOptions bundles chunking and ranking for index.New.
func (c Config) IndexOptions() index.Options {
	return index.Options{Chunking: c.Chunking(), Params: c.BM25()}
}

// CorpusOptions returns the extraction settings for a rebuild. An unknown
// policy falls back to PolicyFailRebuild; Validate reports it.
func (c Config) CorpusOptions() corpus.Options {
	policy, err := corpus.ParsePolicy(c.IngestPolicy)
	if err != nil {
		policy = corpus.PolicyFailRebuild
	}
	return corpus.Options{
		Policy:        policy,
		MaxConcurrent: c.MaxConcurrentExtract,
		Parser:        parser.Options{PDFFallbackPdftotext: c.PDFFallbackPdftotext},
	}
}

// SourceDir holds the documents that make up the corpus.
func (c Config) SourceDir() string {
	return filepath.Join(c.StorageDir, "pdfs")
}

// IndexDir holds the persisted snapshot.
func (c Config) IndexDir() string {
	return c.StorageDir
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
