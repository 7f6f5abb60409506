package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestListSources_SortedAndFiltered(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"b.txt":     "b",
		"a.md":      "a",
		"c.PDF":     "%PDF",
		"notes.csv": "x,y",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755))

	names, err := ListSources(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.txt", "c.PDF"}, names)
}

func TestListSources_MissingDir(t *testing.T) {
	names, err := ListSources(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLoad_ExtractsInSortedOrder(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"beta.txt":  "Beta project\n\nuses   Rust.",
		"alpha.txt": "Alpha project uses Python and Go.",
		"empty.txt": "",
	})

	res, err := Load(context.Background(), dir, Options{MaxConcurrent: 2}, nil)
	require.NoError(t, err)
	require.Len(t, res.Documents, 3)
	assert.Empty(t, res.Skipped)

	assert.Equal(t, "alpha.txt", res.Documents[0].ID)
	assert.Equal(t, "Alpha project uses Python and Go.", res.Documents[0].Text)
	assert.Equal(t, "beta.txt", res.Documents[1].ID)
	assert.Equal(t, "Beta project\nuses Rust.", res.Documents[1].Text)
	assert.Equal(t, "empty.txt", res.Documents[2].ID)
	assert.Empty(t, res.Documents[2].Text)
}

func TestLoad_FailRebuildPolicy(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"good.txt":   "fine",
		"broken.pdf": "not really a pdf",
		"bad.docx":   "not a zip",
	})

	res, err := Load(context.Background(), dir, Options{Policy: PolicyFailRebuild}, nil)
	require.Error(t, err)
	assert.Empty(t, res.Documents)
	assert.ElementsMatch(t, []string{"bad.docx", "broken.pdf"}, res.SkippedSources())

	var ie *IngestionError
	require.True(t, errors.As(err, &ie))
	assert.Contains(t, err.Error(), "broken.pdf")
	assert.Contains(t, err.Error(), "bad.docx")
}

func TestLoad_DefaultPolicyFailsRebuild(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"good.txt":   "fine",
		"broken.pdf": "garbage",
	})
	_, err := Load(context.Background(), dir, Options{}, nil)
	require.Error(t, err)
}

func TestLoad_SkipInvalidPolicy(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"good.txt":   "fine",
		"broken.pdf": "not really a pdf",
	})

	res, err := Load(context.Background(), dir, Options{Policy: PolicySkipInvalid}, nil)
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "good.txt", res.Documents[0].ID)
	assert.Equal(t, []string{"broken.pdf"}, res.SkippedSources())
}

func TestLoad_InvalidUTF8NameIsIngestionError(t *testing.T) {
	dir := writeFiles(t, map[string]string{"good.txt": "fine"})
	bad := "r\xe9sum\xe9.txt"
	if err := os.WriteFile(filepath.Join(dir, bad), []byte("resume"), 0o644); err != nil {
		t.Skipf("filesystem rejects non-UTF-8 names: %v", err)
	}

	res, err := Load(context.Background(), dir, Options{Policy: PolicySkipInvalid}, nil)
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "good.txt", res.Documents[0].ID)
	require.Len(t, res.Skipped, 1)
	assert.ErrorIs(t, res.Skipped[0], ErrInvalidSourceName)

	_, err = Load(context.Background(), dir, Options{}, nil)
	assert.ErrorIs(t, err, ErrInvalidSourceName)
}

func TestLoad_CanceledContext(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.txt": "a", "b.txt": "b"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, dir, Options{MaxConcurrent: 1}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFailRebuild, p)

	p, err = ParsePolicy("skip")
	require.NoError(t, err)
	assert.Equal(t, PolicySkipInvalid, p)

	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}
