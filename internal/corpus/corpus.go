// Package corpus turns the files in a source directory into index documents.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docrag/internal/index"
	"github.com/dgallion1/docrag/internal/parser"
)

// Policy decides what a rebuild does with sources that fail extraction.
type Policy string

const (
	// PolicyFailRebuild aborts the whole rebuild if any source fails.
	PolicyFailRebuild Policy = "fail"
	// PolicySkipInvalid indexes the remaining sources and reports the skipped ones.
	PolicySkipInvalid Policy = "skip"
)

// ParsePolicy accepts "fail" or "skip"; the empty string means PolicyFailRebuild.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFailRebuild:
		return PolicyFailRebuild, nil
	case PolicySkipInvalid:
		return PolicySkipInvalid, nil
	}
	return "", fmt.Errorf("unknown ingest policy %q (want %q or %q)", s, PolicyFailRebuild, PolicySkipInvalid)
}

// ErrInvalidSourceName marks a source whose file name is not valid UTF-8.
var ErrInvalidSourceName = errors.New("source name is not valid UTF-8")

// IngestionError reports a source that could not be converted to text.
type IngestionError struct {
	Source string
	Err    error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Source, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Options configures Load.
type Options struct {
	Policy        Policy
	MaxConcurrent int
	Parser        parser.Options
}

// Result is the outcome of loading a source directory.
type Result struct {
	Documents []index.Document
	Skipped   []*IngestionError
}

// SkippedSources returns the names of skipped sources.
func (r Result) SkippedSources() []string {
	names := make([]string, len(r.Skipped))
	for i, e := range r.Skipped {
		names[i] = e.Source
	}
	return names
}

// ListSources returns the supported files directly inside dir, sorted by
// name. A missing directory holds no sources.
func ListSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sources: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && parser.IsSupportedExtension(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Load extracts the text of every source in dir. Documents keep the sorted
// source order. Under PolicyFailRebuild any extraction failure fails the
// call with all IngestionErrors joined; under PolicySkipInvalid failures
// are returned in Result.Skipped.
func Load(ctx context.Context, dir string, opts Options, log *slog.Logger) (Result, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	names, err := ListSources(dir)
	if err != nil {
		return Result{}, err
	}

	texts := make([]string, len(names))
	failures := make([]*IngestionError, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.MaxConcurrent))
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if !utf8.ValidString(name) {
				failures[i] = &IngestionError{Source: name, Err: ErrInvalidSourceName}
				return nil
			}
			text, err := ExtractFile(filepath.Join(dir, name), opts.Parser)
			if err != nil {
				failures[i] = &IngestionError{Source: name, Err: err}
				return nil
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	var errs []error
	for i, name := range names {
		if f := failures[i]; f != nil {
			log.Warn("source extraction failed", "source", name, "error", f.Err)
			res.Skipped = append(res.Skipped, f)
			errs = append(errs, f)
			continue
		}
		res.Documents = append(res.Documents, index.Document{ID: name, Text: texts[i]})
	}

	if len(errs) > 0 && opts.Policy != PolicySkipInvalid {
		return Result{Skipped: res.Skipped}, errors.Join(errs...)
	}
	return res, nil
}

// ExtractFile parses one file and returns its normalized plain text.
func ExtractFile(path string, opts parser.Options) (string, error) {
	p, err := parser.ForFile(path, opts)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	tree, err := p.Parse(f, filepath.Base(path))
	if err != nil {
		return "", err
	}
	return tree.PlainText(), nil
}
