package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/docrag/internal/config"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("reindex pipeline is stopped")

// Orchestrator runs reindex jobs one at a time. Requests that arrive while a
// job is still queued are folded into that job.
type Orchestrator struct {
	jobs   *JobStore
	wake   chan struct{}
	worker *Worker
	log    *slog.Logger

	mu      sync.Mutex
	pending *Job
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to begin processing.
func NewOrchestrator(cfg config.Config, ix Indexer, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:   NewJobStore(cfg.JobTTL),
		wake:   make(chan struct{}, 1),
		worker: NewWorker(ix, log, cfg.SourceDir(), cfg.CorpusOptions()),
		log:    log,
	}
}

// Start launches the worker goroutine.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-o.wake:
				if job := o.take(); job != nil {
					o.worker.Process(workerCtx, job)
				}
			}
		}
	}()

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop cancels any running rebuild and waits for the worker to exit.
// A job still queued is marked failed.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.stopped = true
	pending := o.pending
	o.pending = nil
	o.mu.Unlock()

	if pending != nil {
		pending.AddError("pipeline stopped")
		pending.SetStatus(StatusFailed, "stopped")
	}
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit schedules a rebuild. If a job is already queued and not yet
// started, reason is added to it and that job is returned.
func (o *Orchestrator) Submit(reason string) (*Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return nil, ErrStopped
	}
	if o.pending != nil {
		o.pending.AddReason(reason)
		o.log.Info("reindex coalesced", "job_id", o.pending.ID, "reason", reason)
		return o.pending, nil
	}

	job := NewJob(reason)
	o.jobs.Put(job)
	o.pending = job
	select {
	case o.wake <- struct{}{}:
	default:
	}
	o.log.Info("reindex queued", "job_id", job.ID, "reason", reason)
	return job, nil
}

func (o *Orchestrator) take() *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	job := o.pending
	o.pending = nil
	return job
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// Pending reports whether a job is waiting to start.
func (o *Orchestrator) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending != nil
}
