package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/docrag/internal/index"
)

// JobStatus represents the state of a reindex job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusExtracting JobStatus = "extracting"
	StatusIndexing   JobStatus = "indexing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Done reports whether the status is terminal.
func (s JobStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job tracks one rebuild of the index from the source directory.
type Job struct {
	mu sync.Mutex

	ID      string   `json:"job_id"`
	Reasons []string `json:"reasons"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	Fingerprint string    `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Progress tracks what a rebuild has done so far.
type Progress struct {
	Sources int      `json:"sources"`
	Chunks  int      `json:"chunks"`
	Skipped []string `json:"skipped"`
	Errors  []string `json:"errors"`
}

// NewJob creates a queued job.
func NewJob(reason string) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Reasons:   []string{reason},
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes finished jobs that have not changed within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		snap := job.Snapshot()
		if snap.Status.Done() && now.Sub(snap.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddReason records another request folded into this job.
func (j *Job) AddReason(reason string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Reasons = append(j.Reasons, reason)
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Errors = append(j.Progress.Errors, err)
	j.UpdatedAt = time.Now()
}

// AddSkipped records a source left out of the rebuild.
func (j *Job) AddSkipped(source string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Skipped = append(j.Progress.Skipped, source)
	j.UpdatedAt = time.Now()
}

// SetSources records how many sources were extracted.
func (j *Job) SetSources(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Sources = n
	j.UpdatedAt = time.Now()
}

// SetResult records the published snapshot.
func (j *Job) SetResult(sum index.Summary) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Chunks = sum.Chunks
	j.Progress.Sources = sum.Sources
	j.Fingerprint = sum.Fingerprint
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	Reasons     []string  `json:"reasons"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Progress    Progress  `json:"progress"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		ID:          j.ID,
		Reasons:     append([]string{}, j.Reasons...),
		Status:      j.Status,
		Phase:       j.Phase,
		Fingerprint: j.Fingerprint,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		Progress: Progress{
			Sources: j.Progress.Sources,
			Chunks:  j.Progress.Chunks,
			Skipped: append([]string{}, j.Progress.Skipped...),
			Errors:  append([]string{}, j.Progress.Errors...),
		},
	}
}
