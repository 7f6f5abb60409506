package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docrag/internal/corpus"
	"github.com/dgallion1/docrag/internal/index"
)

// Indexer publishes a new snapshot built from documents.
type Indexer interface {
	Rebuild(ctx context.Context, docs []index.Document) (index.Summary, error)
}

// Worker runs a rebuild of the index from the source directory.
type Worker struct {
	index     Indexer
	log       *slog.Logger
	sourceDir string
	opts      corpus.Options
}

func NewWorker(ix Indexer, log *slog.Logger, sourceDir string, opts corpus.Options) *Worker {
	return &Worker{
		index:     ix,
		log:       log,
		sourceDir: sourceDir,
		opts:      opts,
	}
}

// Process extracts every source and rebuilds the index for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID)
	start := time.Now()

	// Phase 1: Extract
	job.SetStatus(StatusExtracting, "extracting")
	res, err := corpus.Load(ctx, w.sourceDir, w.opts, log)
	for _, s := range res.Skipped {
		job.AddSkipped(s.Source)
		job.AddError(s.Error())
	}
	if err != nil {
		log.Error("extraction failed", "error", err, "skipped", len(res.Skipped))
		if len(res.Skipped) == 0 {
			job.AddError(fmt.Sprintf("extract: %s", err))
		}
		job.SetStatus(StatusFailed, "extracting")
		return
	}
	job.SetSources(len(res.Documents))
	log.Info("extracted sources", "sources", len(res.Documents), "skipped", len(res.Skipped))

	// Phase 2: Index
	job.SetStatus(StatusIndexing, "indexing")
	sum, err := w.index.Rebuild(ctx, res.Documents)
	if err != nil {
		log.Error("rebuild failed", "error", err)
		job.AddError(fmt.Sprintf("index: %s", err))
		job.SetStatus(StatusFailed, "indexing")
		return
	}
	job.SetResult(sum)
	job.SetStatus(StatusCompleted, "done")
	log.Info("reindex complete",
		"chunks", sum.Chunks,
		"sources", sum.Sources,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
