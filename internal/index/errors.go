package index

import (
	"errors"
	"fmt"
)

var (
	// ErrNotBuilt is returned by queries against an index that has never been built.
	ErrNotBuilt = errors.New("index has not been built")

	// ErrSnapshotNotFound means storage holds no snapshot yet.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrIncompatibleSnapshot means the stored snapshot has an unknown format or version.
	ErrIncompatibleSnapshot = errors.New("incompatible snapshot")

	// ErrCorruptSnapshot means the stored snapshot decoded but its parts disagree.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)

// IndexError reports a snapshot read/write or build failure.
type IndexError struct {
	Op   string // "load", "save", "build"
	Path string
	Err  error
}

func (e *IndexError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("index %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("index %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }
