package index

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docrag/internal/doctree"
)

func sampleSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	return buildSnapshot(t,
		chunk("a.pdf", 0, "Alpha project uses Python and Go."),
		chunk("a.pdf", 1, "Beta project uses Rust."),
		chunk("b.pdf", 0, "   "),
	)
}

func TestFileStore_RoundTrip(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	orig := sampleSnapshot(t)
	require.NoError(t, fs.Save(orig))
	assert.True(t, fs.Exists())

	loaded, err := fs.Load()
	require.NoError(t, err)

	assert.Equal(t, orig.Chunks(), loaded.Chunks())
	for i := range orig.Len() {
		assert.Equal(t, orig.Tokens(i), loaded.Tokens(i))
	}
	assert.Equal(t, orig.docFreq, loaded.docFreq)
	assert.Equal(t, orig.AvgLen(), loaded.AvgLen())
	assert.Equal(t, orig.Fingerprint(), loaded.Fingerprint())
	assert.Equal(t,
		orig.Search("project go", 4, DefaultParams()),
		loaded.Search("project go", 4, DefaultParams()))
}

func TestFileStore_EmptySnapshotRoundTrip(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	require.NoError(t, fs.Save(buildSnapshot(t)))

	loaded, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
}

func TestFileStore_LoadMissing(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	_, err := fs.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	var ie *IndexError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "load", ie.Op)
	assert.False(t, fs.Exists())
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)
	require.NoError(t, fs.Save(sampleSnapshot(t)))
	require.NoError(t, fs.Save(sampleSnapshot(t)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, SnapshotFile, entries[0].Name())
}

func TestFileStore_SaveFailureKeepsPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)
	orig := sampleSnapshot(t)
	require.NoError(t, fs.Save(orig))

	// A directory squatting on the target name makes the final rename fail.
	blocked := NewFileStore(filepath.Join(dir, "blocked"))
	require.NoError(t, os.MkdirAll(filepath.Join(blocked.Path(), "child"), 0o755))
	err := blocked.Save(orig)
	require.Error(t, err)
	var ie *IndexError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "save", ie.Op)

	loaded, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, orig.Fingerprint(), loaded.Fingerprint())
}

func TestReadSnapshot_RejectsIncompatibleVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, sampleSnapshot(t)))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	raw["version"] = SnapshotVersion + 1
	data, err := json.Marshal(raw)
	require.NoError(t, err)

	_, err = ReadSnapshot(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrIncompatibleSnapshot)
}

func TestReadSnapshot_RejectsForeignFormat(t *testing.T) {
	_, err := ReadSnapshot(bytes.NewReader([]byte(`[{"id":"a.pdf:0","source":"a.pdf","text":"x"}]`)))
	assert.ErrorIs(t, err, ErrIncompatibleSnapshot)

	_, err = ReadSnapshot(bytes.NewReader([]byte(`{"format":"other","version":1}`)))
	assert.ErrorIs(t, err, ErrIncompatibleSnapshot)
}

func TestReadSnapshot_DetectsDivergence(t *testing.T) {
	mutate := func(t *testing.T, fn func(f *snapshotFile)) []byte {
		t.Helper()
		var buf bytes.Buffer
		require.NoError(t, WriteSnapshot(&buf, sampleSnapshot(t)))
		var f snapshotFile
		require.NoError(t, json.Unmarshal(buf.Bytes(), &f))
		fn(&f)
		data, err := json.Marshal(f)
		require.NoError(t, err)
		return data
	}

	cases := map[string]func(f *snapshotFile){
		"missing tokens": func(f *snapshotFile) { f.Tokens = f.Tokens[:1] },
		"extra chunk": func(f *snapshotFile) {
			f.Chunks = append(f.Chunks, doctree.Chunk{ID: "c.pdf:0", Source: "c.pdf", Text: "x"})
		},
		"doc freq":        func(f *snapshotFile) { f.DocFreq["project"] = 7 },
		"avg len":         func(f *snapshotFile) { f.AvgLen += 1 },
		"fingerprint":     func(f *snapshotFile) { f.Fingerprint = "deadbeef" },
		"duplicate ids":   func(f *snapshotFile) { f.Chunks[1].ID = f.Chunks[0].ID },
		"edited chunk":    func(f *snapshotFile) { f.Chunks[0].Text = "tampered" },
		"stale tokens": func(f *snapshotFile) {
			f.Tokens[0] = []string{"zulu", "yankee"}
			f.DocFreq = map[string]int{}
			total := 0
			for _, toks := range f.Tokens {
				total += len(toks)
				seen := map[string]bool{}
				for _, tok := range toks {
					if !seen[tok] {
						seen[tok] = true
						f.DocFreq[tok]++
					}
				}
			}
			f.AvgLen = float64(total) / float64(len(f.Tokens))
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadSnapshot(bytes.NewReader(mutate(t, fn)))
			assert.ErrorIs(t, err, ErrCorruptSnapshot)
		})
	}
}

func TestFileStore_LoadGarbage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SnapshotFile), []byte("not json"), 0o644))

	_, err := NewFileStore(dir).Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncompatibleSnapshot)
}
