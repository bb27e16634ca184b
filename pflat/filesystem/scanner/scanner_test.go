package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/common"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/types"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func relPaths(entries []types.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, filepath.ToSlash(e.RelPath))
	}
	return out
}

func TestScanExcludesPatternsAndKeepsDirectories(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/b/file1.txt":     "one",
		"a/file2.txt":       "two!",
		"Thumbs.db":         "x",
		"a/.DS_Store":       "x",
		"a/b/~$draft.doc":   "x",
		"a/b/c/desktop.ini": "x",
	})

	entries, err := New(root, nil).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "a/b", "a/b/c", "a/b/file1.txt", "a/file2.txt"}, relPaths(entries))

	for _, e := range entries {
		if e.IsDir {
			continue
		}
		for _, p := range []string{"Thumbs.db", ".DS_Store", "~$", "desktop.ini"} {
			assert.NotContains(t, e.Name, p)
		}
	}

	file2 := entries[4]
	assert.Equal(t, "file2.txt", file2.Name)
	assert.Equal(t, ".txt", file2.Ext)
	assert.Equal(t, int64(4), file2.Size)
}

func TestScanEmptyDirectory(t *testing.T) {
	entries, err := New(t.TempDir(), nil).Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestScanIsOrderStable(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"z.txt": "", "b/y.txt": "", "b/a.txt": "", "a/x.txt": "", "A.txt": "",
	})

	s := New(root, nil)
	first, err := s.Scan(context.Background())
	require.NoError(t, err)
	second, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"A.txt", "a", "a/x.txt", "b", "b/a.txt", "b/y.txt", "z.txt"}, relPaths(first))
}

func TestScanPatternsAreCaseSensitive(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"thumbs.db": "", "keep.TMP": "", "drop.tmp": ""})

	entries, err := New(root, nil).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.TMP", "thumbs.db"}, relPaths(entries))
}

func TestScanEmptyPatternListKeepsEverything(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"Thumbs.db": "", "file.txt": ""})

	entries, err := New(root, []string{}).Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestScanWithIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".pflatignore":  "*.log\nbuild/\n",
		"app.log":       "",
		"src/main.go":   "",
		"src/debug.log": "",
		"build/out.bin": "",
	})

	entries, err := New(root, nil, WithIgnoreFile(".pflatignore")).Scan(context.Background())
	require.NoError(t, err)

	paths := relPaths(entries)
	assert.Contains(t, paths, "src/main.go")
	assert.Contains(t, paths, "build", "directories are never dropped")
	assert.NotContains(t, paths, "app.log")
	assert.NotContains(t, paths, "src/debug.log")
	assert.NotContains(t, paths, "build/out.bin")
}

func TestScanMissingIgnoreFileIsFine(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.log": ""})

	entries, err := New(root, nil, WithIgnoreFile(".pflatignore")).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.log"}, relPaths(entries))
}

func TestScanRootErrors(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), nil).Scan(context.Background())
	assert.ErrorIs(t, err, common.ErrSourceNotExist)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(file, nil).Scan(context.Background())
	assert.ErrorIs(t, err, common.ErrNotDirectory)
}

func TestScanCanceled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": ""})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(root, nil).Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecommendZipTargets(t *testing.T) {
	entries := []types.Entry{
		{RelPath: "icons", IsDir: true},
		{RelPath: filepath.Join("icons", "app.ICO"), Ext: ".ico"},
		{RelPath: filepath.Join("icons", "b.ico"), Ext: ".ico"},
		{RelPath: filepath.Join("docs", "x", "manual.pdf"), Ext: ".pdf"},
		{RelPath: "root.pdf", Ext: ".pdf"},
		{RelPath: filepath.Join("src", "main.go"), Ext: ".go"},
		{RelPath: "pdf", IsDir: true},
	}

	tests := []struct {
		name string
		exts []string
		want []string
	}{
		{"defaults", []string{".ico", "PDF", ".ASW"}, []string{filepath.Join("docs", "x"), "icons"}},
		{"dot optional", []string{"go"}, []string{"src"}},
		{"no match", []string{".zip"}, []string{}},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecommendZipTargets(entries, tt.exts))
		})
	}
}

func TestSummarize(t *testing.T) {
	entries := []types.Entry{
		{RelPath: "a", IsDir: true},
		{RelPath: filepath.Join("a", "b"), IsDir: true},
		{RelPath: filepath.Join("a", "b", "f1.txt"), Ext: ".txt", Size: 10},
		{RelPath: filepath.Join("a", "f2.txt"), Ext: ".txt", Size: 5},
		{RelPath: filepath.Join("a", "skip.tmp"), Ext: ".tmp", Size: 100},
		{RelPath: "top.bin", Ext: ".bin", Size: -1},
	}

	sum := Summarize(entries, []string{"tmp"})
	assert.Equal(t, int64(3), sum.TotalCount)
	assert.Equal(t, int64(15), sum.TotalSize)
	assert.Equal(t, 2, sum.DirCount)
	assert.Equal(t, int64(15), sum.DirSizes["."])
	assert.Equal(t, int64(15), sum.DirSizes["a"])
	assert.Equal(t, int64(10), sum.DirSizes[filepath.Join("a", "b")])
	assert.Equal(t, 1, sum.FileCounts["a"])
	assert.Equal(t, 1, sum.FileCounts["."])
}
