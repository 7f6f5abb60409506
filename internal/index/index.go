package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/docrag/internal/chunker"
	"github.com/dgallion1/docrag/internal/doctree"
)

// State is the externally observable lifecycle of an Index.
type State string

const (
	StateEmpty  State = "empty"  // nothing built or loaded yet
	StateBuilt  State = "built"  // a snapshot is being served
	StateFailed State = "failed" // the stored snapshot could not be loaded
)

// Document is one source's extracted plain text.
type Document struct {
	ID   string
	Text string
}

// Summary describes the snapshot produced by a rebuild. Sources counts only
// the documents that produced at least one chunk; empty documents are left out.
type Summary struct {
	Chunks      int    `json:"chunks"`
	Sources     int    `json:"sources"`
	Fingerprint string `json:"fingerprint"`
}

// Options configures chunking and ranking.
type Options struct {
	Chunking chunker.Config
	Params   Params
}

// DefaultOptions returns 1100/180 character windows and k1 = 1.5, b = 0.75.
func DefaultOptions() Options {
	return Options{Chunking: chunker.DefaultConfig(), Params: DefaultParams()}
}

// Status is a point-in-time view of the index for health reporting.
type Status struct {
	State       State     `json:"state"`
	Chunks      int       `json:"chunks"`
	Sources     int       `json:"sources"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	BuiltAt     time.Time `json:"built_at,omitzero"`
	Error       string    `json:"error,omitempty"`
}

// Index serves queries from the current snapshot and replaces it wholesale
// on rebuild. Readers never observe a partially built snapshot.
type Index struct {
	store Store
	opts  Options
	log   *slog.Logger

	current atomic.Pointer[Snapshot]

	rebuildMu sync.Mutex

	mu      sync.RWMutex
	state   State
	lastErr error
	builtAt time.Time
}

// New creates an empty index backed by store.
func New(store Store, opts Options, log *slog.Logger) *Index {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Index{store: store, opts: opts, log: log, state: StateEmpty}
}

// Open loads the stored snapshot. A missing snapshot leaves the index
// empty and is not an error. Any other failure leaves it empty in
// StateFailed and is returned.
func (ix *Index) Open() error {
	snap, err := ix.store.Load()
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			ix.log.Info("no stored snapshot")
			return nil
		}
		ix.mu.Lock()
		ix.state = StateFailed
		ix.lastErr = err
		ix.mu.Unlock()
		return err
	}

	ix.current.Store(snap)
	ix.mu.Lock()
	ix.state = StateBuilt
	ix.lastErr = nil
	ix.builtAt = time.Now()
	ix.mu.Unlock()
	ix.log.Info("snapshot loaded", "chunks", snap.Len(), "fingerprint", snap.Fingerprint())
	return nil
}

// Rebuild chunks every document, builds a new snapshot, persists it and
// publishes it. On failure the previous snapshot keeps serving.
func (ix *Index) Rebuild(ctx context.Context, docs []Document) (Summary, error) {
	ix.rebuildMu.Lock()
	defer ix.rebuildMu.Unlock()

	start := time.Now()
	seen := make(map[string]struct{}, len(docs))
	var chunks []doctree.Chunk
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		if d.ID == "" {
			return Summary{}, &IndexError{Op: "build", Err: errors.New("document with empty id")}
		}
		if !utf8.ValidString(d.ID) {
			return Summary{}, &IndexError{Op: "build", Err: fmt.Errorf("document id %q is not valid UTF-8", d.ID)}
		}
		if !utf8.ValidString(d.Text) {
			return Summary{}, &IndexError{Op: "build", Err: fmt.Errorf("document %q text is not valid UTF-8", d.ID)}
		}
		if _, dup := seen[d.ID]; dup {
			return Summary{}, &IndexError{Op: "build", Err: fmt.Errorf("duplicate document id %q", d.ID)}
		}
		seen[d.ID] = struct{}{}
		chunks = append(chunks, chunker.ChunkDocument(d.ID, d.Text, ix.opts.Chunking)...)
	}

	snap, err := Build(chunks)
	if err != nil {
		return Summary{}, err
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	if err := ix.store.Save(snap); err != nil {
		ix.log.Error("snapshot save failed", "error", err)
		return Summary{}, err
	}

	ix.current.Store(snap)
	ix.mu.Lock()
	ix.state = StateBuilt
	ix.lastErr = nil
	ix.builtAt = time.Now()
	ix.mu.Unlock()

	sum := Summary{Chunks: snap.Len(), Sources: len(snap.Sources()), Fingerprint: snap.Fingerprint()}
	ix.log.Info("index rebuilt",
		"chunks", sum.Chunks,
		"sources", sum.Sources,
		"vocabulary", snap.VocabularySize(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return sum, nil
}

// Snapshot returns the snapshot currently served, or nil.
func (ix *Index) Snapshot() *Snapshot {
	return ix.current.Load()
}

// Query returns up to k hits for question from the current snapshot.
// It fails only with ErrNotBuilt when no snapshot has ever been served.
func (ix *Index) Query(question string, k int) ([]Hit, error) {
	snap := ix.current.Load()
	if snap == nil {
		return nil, ErrNotBuilt
	}
	return snap.Search(question, k, ix.opts.Params), nil
}

// Options returns the chunking and ranking settings.
func (ix *Index) Options() Options { return ix.opts }

// Status reports the lifecycle state and the served snapshot's size.
func (ix *Index) Status() Status {
	ix.mu.RLock()
	st := Status{State: ix.state, BuiltAt: ix.builtAt}
	if ix.lastErr != nil {
		st.Error = ix.lastErr.Error()
	}
	ix.mu.RUnlock()

	if snap := ix.current.Load(); snap != nil {
		st.Chunks = snap.Len()
		st.Sources = len(snap.Sources())
		st.Fingerprint = snap.Fingerprint()
	}
	return st
}
