package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/path-flattener/pflat/codec"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filemap"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/common"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/options"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/types"
)

func flattenOpts(src, dst string) options.FlattenOptions {
	opts := options.DefaultFlattenOptions()
	opts.SourceDir = src
	opts.DestDir = dst
	return opts
}

func TestFlattenBasicTree(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{
		"a/b/file1.txt": "one",
		"a/file2.txt":   "two",
		"Thumbs.db":     "junk",
	})

	events := &eventLog{}
	res, records, err := newTestFlatten().Run(context.Background(), flattenOpts(src, dst), events.emit)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 0, res.Zipped)
	assert.Equal(t, 0, res.Errors)
	assert.False(t, res.Canceled)
	assert.Equal(t, filepath.Join(dst, "filemap.csv"), res.ManifestPath)

	assert.Equal(t, []string{"a__b__file1.txt", "a__file2.txt", "filemap.csv"}, listTree(t, dst))
	assert.Equal(t, "one", readFile(t, filepath.Join(dst, "a__b__file1.txt")))

	want := []filemap.Record{
		{OriginalPath: filepath.FromSlash("a/b/file1.txt"), FlattenedName: "a__b__file1.txt"},
		{OriginalPath: filepath.FromSlash("a/file2.txt"), FlattenedName: "a__file2.txt"},
	}
	assert.Equal(t, want, records)

	saved, err := filemap.LoadCSV(res.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, want, saved)

	done := events.ofType(types.EventDone)
	require.Len(t, done, 1)
	assert.Same(t, res, done[0].Flatten)
	assert.NoError(t, done[0].Err)

	progress := events.ofType(types.EventProgress)
	require.NotEmpty(t, progress)
	last := progress[len(progress)-1].Progress
	assert.Equal(t, int64(2), last.TotalCount)
	assert.Equal(t, int64(2), last.DoneCount)
	assert.Equal(t, int64(6), last.DoneSize)
	assert.Zero(t, last.RemainingCount())

	for _, ev := range events.events {
		assert.Equal(t, res.RunID, ev.RunID)
	}
}

func TestFlattenOutputsMatchRecords(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	files := map[string]string{}
	for _, rel := range []string{"x.txt", "d1/x.txt", "d1/d2/x.txt", "d3/y.md", "d3/z.bin", "d4/d5/d6/w"} {
		files[rel] = rel
	}
	writeTree(t, src, files)

	res, records, err := newTestFlatten().Run(context.Background(), flattenOpts(src, dst), nil)
	require.NoError(t, err)
	assert.Equal(t, len(files), res.Processed)
	require.Len(t, records, len(files))

	seen := map[string]bool{}
	for _, r := range records {
		assert.False(t, seen[r.FlattenedName], "duplicate flat name %s", r.FlattenedName)
		seen[r.FlattenedName] = true
		assert.Equal(t, files[filepath.ToSlash(r.OriginalPath)], readFile(t, filepath.Join(dst, r.FlattenedName)))
	}
	assert.Len(t, listTree(t, dst), len(files)+1)
}

func TestFlattenZipTarget(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{
		"D/x.txt":     "x",
		"D/sub/y.txt": "yy",
		"top.txt":     "top",
	})

	opts := flattenOpts(src, dst)
	opts.ZipTargets = []string{"D"}

	events := &eventLog{}
	res, records, err := newTestFlatten().Run(context.Background(), opts, events.emit)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Zipped)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, []string{"D.zip", "filemap.csv", "top.txt"}, listTree(t, dst))
	assert.Equal(t, []filemap.Record{
		{OriginalPath: "D", FlattenedName: "D.zip"},
		{OriginalPath: "top.txt", FlattenedName: "top.txt"},
	}, records)

	progress := events.ofType(types.EventProgress)
	last := progress[len(progress)-1].Progress
	assert.Equal(t, int64(3), last.TotalCount)
	assert.Equal(t, int64(3), last.DoneCount)
}

func TestFlattenNestedZipTargets(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{
		"D/x.txt":   "x",
		"D/E/y.txt": "y",
	})

	opts := flattenOpts(src, dst)
	opts.ZipTargets = []string{"D/E", "D"}

	res, records, err := newTestFlatten().Run(context.Background(), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Zipped)
	assert.Equal(t, 0, res.Processed)
	require.Len(t, records, 2)
	assert.Equal(t, "D.zip", records[0].FlattenedName)
	assert.Equal(t, "D__E.zip", records[1].FlattenedName)
}

func TestFlattenExclusions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*options.FlattenOptions)
		want    []string
		skipped int
	}{
		{
			name:    "exclude target",
			mutate:  func(o *options.FlattenOptions) { o.ExcludeTargets = []string{"a/b"} },
			want:    []string{"a__file2.txt", "a__note.log", "filemap.csv", "keep.txt"},
			skipped: 1,
		},
		{
			name:    "exclude extension",
			mutate:  func(o *options.FlattenOptions) { o.ExcludeExtensions = []string{"LOG"} },
			want:    []string{"a__b__file1.txt", "a__file2.txt", "filemap.csv", "keep.txt"},
			skipped: 1,
		},
		{
			name: "zip target below exclude target",
			mutate: func(o *options.FlattenOptions) {
				o.ZipTargets = []string{"a/b"}
				o.ExcludeTargets = []string{"a"}
			},
			want:    []string{"filemap.csv", "keep.txt"},
			skipped: 3,
		},
		{
			name: "exclude pattern",
			mutate: func(o *options.FlattenOptions) {
				o.ExcludePatterns = []string{"file"}
			},
			want: []string{"a__note.log", "filemap.csv", "keep.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, dst := t.TempDir(), t.TempDir()
			writeTree(t, src, map[string]string{
				"a/b/file1.txt": "1",
				"a/file2.txt":   "2",
				"a/note.log":    "3",
				"keep.txt":      "4",
			})
			opts := flattenOpts(src, dst)
			tt.mutate(&opts)

			res, _, err := newTestFlatten().Run(context.Background(), opts, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, listTree(t, dst))
			assert.Equal(t, tt.skipped, res.Skipped)
			assert.Equal(t, 0, res.Zipped)
		})
	}
}

func TestFlattenValidation(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name   string
		mutate func(*options.FlattenOptions)
		target error
	}{
		{"missing source", func(o *options.FlattenOptions) { o.SourceDir = filepath.Join(dir, "nope") }, common.ErrSourceNotExist},
		{"empty source", func(o *options.FlattenOptions) { o.SourceDir = "" }, common.ErrPathEmpty},
		{"missing destination", func(o *options.FlattenOptions) { o.DestDir = filepath.Join(dir, "nope") }, common.ErrDestNotExist},
		{"source is a file", func(o *options.FlattenOptions) { o.SourceDir = file }, common.ErrNotDirectory},
		{"bad codec", func(o *options.FlattenOptions) { o.Codec = codec.Config{PathSep: "_", PathSepEsc: "_", EscSeq: "_"} }, codec.ErrInvalidConfig},
		{"escaping zip target", func(o *options.FlattenOptions) { o.ZipTargets = []string{"../up"} }, nil},
		{"manifest in subdirectory", func(o *options.FlattenOptions) { o.ManifestName = "sub/filemap.csv" }, common.ErrPathInvalid},
		{"unknown naming", func(o *options.FlattenOptions) { o.Naming = "hashed" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := flattenOpts(dir, t.TempDir())
			tt.mutate(&opts)

			fs := newTestFlatten()
			err := fs.ValidateFlatten(opts)
			var verr *common.ValidationError
			require.ErrorAs(t, err, &verr)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}

			events := &eventLog{}
			res, records, runErr := fs.Run(context.Background(), opts, events.emit)
			assert.Error(t, runErr)
			assert.Nil(t, res)
			assert.Nil(t, records)
			assert.Empty(t, events.events)
		})
	}
}

func TestFlattenCollisions(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{
		"a/x.txt":     "a",
		"b/x.txt":     "b",
		"filemap.csv": "not the map",
	})

	opts := flattenOpts(src, dst)
	opts.Naming = options.NamingBasename

	events := &eventLog{}
	res, records, err := newTestFlatten().Run(context.Background(), opts, events.emit)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Renamed)
	assert.Len(t, events.warnings(), 2)

	assert.Equal(t, []filemap.Record{
		{OriginalPath: filepath.FromSlash("a/x.txt"), FlattenedName: "x.txt"},
		{OriginalPath: filepath.FromSlash("b/x.txt"), FlattenedName: "x_001.txt"},
		{OriginalPath: "filemap.csv", FlattenedName: "filemap_001.csv"},
	}, records)
	assert.Equal(t, "b", readFile(t, filepath.Join(dst, "x_001.txt")))
	assert.Equal(t, "not the map", readFile(t, filepath.Join(dst, "filemap_001.csv")))
}

func TestFlattenIrreversibleName(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"a_/b.txt": "x"})

	res, records, err := newTestFlatten().Run(context.Background(), flattenOpts(src, dst), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Irreversible)
	require.Len(t, records, 1)
	assert.Equal(t, "a___b.txt", records[0].FlattenedName)
}

func TestFlattenRemoveSource(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"a/f.txt": "x", "g.txt": "y"})

	opts := flattenOpts(src, dst)
	opts.RemoveSource = true

	res, _, err := newTestFlatten().Run(context.Background(), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Empty(t, listTree(t, src))
	assert.Equal(t, []string{"a__f.txt", "filemap.csv", "g.txt"}, listTree(t, dst))
}

func TestFlattenJSONManifest(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"a/f.txt": "x", "filemap.json": "{}"})

	opts := flattenOpts(src, dst)
	opts.WriteJSONManifest = true

	_, records, err := newTestFlatten().Run(context.Background(), opts, nil)
	require.NoError(t, err)

	saved, err := filemap.LoadJSON(filepath.Join(dst, "filemap.json"))
	require.NoError(t, err)
	assert.Equal(t, records, saved)
	assert.Equal(t, "filemap_001.json", records[1].FlattenedName)
}

func TestFlattenDestinationInsideSource(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a", "out/old.txt": "old"})
	dst := filepath.Join(src, "out")

	res, records, err := newTestFlatten().Run(context.Background(), flattenOpts(src, dst), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, []filemap.Record{{OriginalPath: "a.txt", FlattenedName: "a.txt"}}, records)
}

func TestFlattenZipTargetNotScanned(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"D/x.txt": "x", "y.txt": "y"})

	opts := flattenOpts(src, dst)
	opts.ZipTargets = []string{"D", "missing"}
	events := &eventLog{}
	res, records, err := newTestFlatten().Run(context.Background(), opts, events.emit)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Zipped)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Errors)
	assert.Len(t, records, 2)
	assert.Equal(t, []string{"D.zip", "filemap.csv", "y.txt"}, listTree(t, dst))

	var itemErr *common.ItemError
	var found bool
	for _, ev := range events.ofType(types.EventLog) {
		if ev.Level == types.LevelError && errors.As(ev.Err, &itemErr) {
			found = true
			assert.ErrorIs(t, ev.Err, common.ErrNotDirectory)
		}
	}
	assert.True(t, found)
}

func TestFlattenDestinationInsideZipTarget(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a/x.txt": "x", "a/out/old.bin": "stale"})
	dst := filepath.Join(src, "a", "out")

	opts := flattenOpts(src, dst)
	opts.ZipTargets = []string{"a"}
	res, records, err := newTestFlatten().Run(context.Background(), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Zipped)
	assert.Equal(t, []filemap.Record{{OriginalPath: "a", FlattenedName: "a.zip"}}, records)

	zr, err := zip.OpenReader(filepath.Join(dst, "a.zip"))
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"x.txt"}, names)
}

func TestFlattenReservesJSONCompanion(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"a/b.txt": "b", "filemap.json": "user data"})

	res, records, err := newTestFlatten().Run(context.Background(), flattenOpts(src, dst), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Renamed)
	assert.Equal(t, []filemap.Record{
		{OriginalPath: "a/b.txt", FlattenedName: "a__b.txt"},
		{OriginalPath: "filemap.json", FlattenedName: "filemap_001.json"},
	}, records)
	assert.NoFileExists(t, filepath.Join(dst, "filemap.json"))
}

func TestFlattenCanceledBeforeStart(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := &eventLog{}
	res, _, err := newTestFlatten().Run(ctx, flattenOpts(src, dst), events.emit)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Canceled)
	assert.Zero(t, res.Processed)
	assert.Len(t, events.ofType(types.EventDone), 1)
}

func TestFlattenCanceledMidRun(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := &eventLog{}
	emit := func(ev types.Event) {
		events.emit(ev)
		if ev.Type == types.EventProgress && ev.Progress.DoneCount == 1 {
			cancel()
		}
	}

	res, records, err := newTestFlatten().Run(ctx, flattenOpts(src, dst), emit)
	require.True(t, errors.Is(err, context.Canceled))
	assert.True(t, res.Canceled)
	assert.Equal(t, 1, res.Processed)

	saved, loadErr := filemap.LoadCSV(filepath.Join(dst, "filemap.csv"))
	require.NoError(t, loadErr)
	assert.Equal(t, records, saved)
	assert.Len(t, saved, 1)

	done := events.ofType(types.EventDone)
	require.Len(t, done, 1)
	assert.ErrorIs(t, done[0].Err, context.Canceled)
}

func TestNestedRel(t *testing.T) {
	base := t.TempDir()

	rel, ok := nestedRel(base, filepath.Join(base, "x", "y"))
	assert.True(t, ok)
	assert.Equal(t, filepath.Join("x", "y"), rel)

	_, ok = nestedRel(base, base)
	assert.False(t, ok)

	_, ok = nestedRel(filepath.Join(base, "x"), base)
	assert.False(t, ok)
}
