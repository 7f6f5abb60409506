package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/docrag/internal/answer"
	"github.com/dgallion1/docrag/internal/api"
	"github.com/dgallion1/docrag/internal/config"
	"github.com/dgallion1/docrag/internal/corpus"
	"github.com/dgallion1/docrag/internal/index"
	"github.com/dgallion1/docrag/internal/pipeline"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load the stored snapshot. A broken snapshot leaves the index failed
	// until the next successful rebuild; the server still starts.
	ix := index.New(index.NewFileStore(cfg.IndexDir()), cfg.IndexOptions(), log)
	if err := ix.Open(); err != nil {
		log.Error("snapshot unusable, serving without an index", "error", err)
	}

	stats := answer.NewLLMStats(time.Hour)
	claude := answer.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, stats, log)
	answers := answer.NewService(ix, claude, answer.Settings{
		TopK:          cfg.ChatTopK,
		CitationCount: cfg.CitationCount,
		HistoryTurns:  cfg.HistoryTurns,
	}, log)

	orch := pipeline.NewOrchestrator(cfg, ix, log)
	orch.Start(ctx)

	if ix.Snapshot() == nil {
		sources, err := corpus.ListSources(cfg.SourceDir())
		if err != nil {
			log.Warn("list sources failed", "dir", cfg.SourceDir(), "error", err)
		}
		if len(sources) > 0 {
			if job, err := orch.Submit("startup"); err == nil {
				log.Info("no snapshot, building from sources", "job_id", job.ID, "sources", len(sources))
			}
		}
	}

	srv := api.NewServer(cfg, ix, orch, answers, stats, log)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		claude.Close()
	}()

	log.Info("starting docrag",
		"port", cfg.Port,
		"storage", cfg.StorageDir,
		"state", ix.Status().State,
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
