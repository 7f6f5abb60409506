package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/dgallion1/docrag/internal/doctree"
)

const (
	// SnapshotFormat identifies docrag snapshot files.
	SnapshotFormat = "docrag.index"
	// SnapshotVersion is bumped whenever the encoding or tokenizer changes.
	SnapshotVersion = 2

	// SnapshotFile is the snapshot's name inside a FileStore directory.
	SnapshotFile = "index.json"
)

// Store persists snapshots. Load returns an error wrapping
// ErrSnapshotNotFound when nothing has been saved yet.
type Store interface {
	Load() (*Snapshot, error)
	Save(s *Snapshot) error
}

type snapshotHeader struct {
	Format  string `json:"format"`
	Version int    `json:"version"`
}

type snapshotFile struct {
	snapshotHeader
	Fingerprint string          `json:"fingerprint"`
	Chunks      []doctree.Chunk `json:"chunks"`
	Tokens      [][]string      `json:"tokens"`
	DocFreq     map[string]int  `json:"doc_freq"`
	AvgLen      float64         `json:"avg_len"`
}

// WriteSnapshot encodes s as versioned JSON.
func WriteSnapshot(w io.Writer, s *Snapshot) error {
	f := snapshotFile{
		snapshotHeader: snapshotHeader{Format: SnapshotFormat, Version: SnapshotVersion},
		Fingerprint:    s.fingerprint,
		Chunks:         s.chunks,
		Tokens:         s.tokens,
		DocFreq:        s.docFreq,
		AvgLen:         s.avgLen,
	}
	if f.Chunks == nil {
		f.Chunks = []doctree.Chunk{}
		f.Tokens = [][]string{}
	}
	return json.NewEncoder(w).Encode(f)
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot. The stored
// tokens are checked against each chunk's text and the aggregates against
// the ones recomputed from the tokens.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var hdr snapshotHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatibleSnapshot, err)
	}
	if hdr.Format != SnapshotFormat || hdr.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: format %q version %d, want %q version %d",
			ErrIncompatibleSnapshot, hdr.Format, hdr.Version, SnapshotFormat, SnapshotVersion)
	}

	var f snapshotFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if len(f.Chunks) != len(f.Tokens) {
		return nil, fmt.Errorf("%w: %d chunks but %d tokenized chunks", ErrCorruptSnapshot, len(f.Chunks), len(f.Tokens))
	}
	ids := make(map[string]struct{}, len(f.Chunks))
	for i, c := range f.Chunks {
		if _, dup := ids[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate chunk id %q", ErrCorruptSnapshot, c.ID)
		}
		ids[c.ID] = struct{}{}
		if !slices.Equal(Tokenize(c.Text), f.Tokens[i]) {
			return nil, fmt.Errorf("%w: tokens of chunk %q do not match its text", ErrCorruptSnapshot, c.ID)
		}
	}

	s := newSnapshot(f.Chunks, f.Tokens)
	if f.DocFreq == nil {
		f.DocFreq = map[string]int{}
	}
	if !maps.Equal(s.docFreq, f.DocFreq) || s.avgLen != f.AvgLen {
		return nil, fmt.Errorf("%w: stored aggregates do not match tokens", ErrCorruptSnapshot)
	}
	if s.fingerprint != f.Fingerprint {
		return nil, fmt.Errorf("%w: fingerprint mismatch", ErrCorruptSnapshot)
	}
	return s, nil
}

// FileStore keeps a single snapshot file in Dir.
type FileStore struct {
	Dir string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the snapshot file location.
func (fs *FileStore) Path() string {
	return filepath.Join(fs.Dir, SnapshotFile)
}

// Exists reports whether a snapshot file is present.
func (fs *FileStore) Exists() bool {
	_, err := os.Stat(fs.Path())
	return err == nil
}

// Load reads the snapshot file.
func (fs *FileStore) Load() (*Snapshot, error) {
	path := fs.Path()
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &IndexError{Op: "load", Path: path, Err: ErrSnapshotNotFound}
		}
		return nil, &IndexError{Op: "load", Path: path, Err: err}
	}
	defer f.Close()

	s, err := ReadSnapshot(f)
	if err != nil {
		return nil, &IndexError{Op: "load", Path: path, Err: err}
	}
	return s, nil
}

// Save writes the snapshot to a temp file in Dir and renames it over the
// previous one, so readers see either the old or the new file.
func (fs *FileStore) Save(s *Snapshot) error {
	path := fs.Path()
	if err := os.MkdirAll(fs.Dir, 0o755); err != nil {
		return &IndexError{Op: "save", Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(fs.Dir, ".index-*.json.tmp")
	if err != nil {
		return &IndexError{Op: "save", Path: path, Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if err := WriteSnapshot(tmp, s); err != nil {
		tmp.Close()
		return &IndexError{Op: "save", Path: path, Err: fmt.Errorf("encode: %w", err)}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &IndexError{Op: "save", Path: path, Err: fmt.Errorf("sync: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		return &IndexError{Op: "save", Path: path, Err: fmt.Errorf("close temp file: %w", err)}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &IndexError{Op: "save", Path: path, Err: fmt.Errorf("rename: %w", err)}
	}
	committed = true
	return nil
}
