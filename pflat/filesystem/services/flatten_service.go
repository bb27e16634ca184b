package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	internal "github.com/ZanzyTHEbar/path-flattener/pflat"
	"github.com/ZanzyTHEbar/path-flattener/pflat/codec"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filemap"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/common"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/fileops"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/interfaces"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/options"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/scanner"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/types"
	"github.com/ZanzyTHEbar/path-flattener/pflat/indexing"
	"github.com/ZanzyTHEbar/path-flattener/pflat/trees"
)

// FlattenService copies a directory tree into a single flat directory
type FlattenService struct {
	fileOps   fileops.FileOpsInterface
	resolver  interfaces.ConflictResolver
	logger    zerolog.Logger
	cacheSize int
}

// NewFlattenService creates a new flatten service
func NewFlattenService(fileOps fileops.FileOpsInterface, resolver interfaces.ConflictResolver, logger zerolog.Logger) *FlattenService {
	return &FlattenService{
		fileOps:   fileOps,
		resolver:  resolver,
		logger:    logger.With().Str("service", "flatten").Logger(),
		cacheSize: codec.DefaultCacheSize,
	}
}

// flattenPlan is a validated FlattenOptions. companion is the structured
// map name next to the tabular one; it is reserved on every run so restore
// can tell it apart from flattened files.
type flattenPlan struct {
	opts      options.FlattenOptions
	codec     *codec.Codec
	zip       *trees.PathIndex
	exclude   *trees.PathIndex
	manifest  string
	jsonName  string
	companion string
}

// ValidateFlatten checks the run parameters without touching the destination.
func (fs *FlattenService) ValidateFlatten(opts options.FlattenOptions) error {
	_, err := fs.plan(opts)
	return err
}

func (fs *FlattenService) plan(opts options.FlattenOptions) (*flattenPlan, error) {
	if err := common.ValidateDirectoryExists("source", opts.SourceDir, common.ErrSourceNotExist); err != nil {
		return nil, err
	}
	if err := common.ValidateDirectoryExists("destination", opts.DestDir, common.ErrDestNotExist); err != nil {
		return nil, err
	}

	c, err := codec.New(opts.Codec)
	if err != nil {
		return nil, &common.ValidationError{Field: "codec", Err: err}
	}

	naming, err := options.ParseNamingMode(string(opts.Naming))
	if err != nil {
		return nil, &common.ValidationError{Field: "naming", Err: err}
	}
	opts.Naming = naming

	zipIdx, err := trees.NewPathIndexFrom(opts.ZipTargets)
	if err != nil {
		return nil, &common.ValidationError{Field: "zip target", Err: err}
	}
	excludeIdx, err := trees.NewPathIndexFrom(opts.ExcludeTargets)
	if err != nil {
		return nil, &common.ValidationError{Field: "exclude target", Err: err}
	}

	manifest := opts.ManifestName
	if manifest == "" {
		manifest = internal.DefaultManifestName
	}
	if manifest != filepath.Base(manifest) || strings.ContainsAny(manifest, `/\`) {
		return nil, &common.ValidationError{Field: "manifest name", Path: manifest, Err: common.ErrPathInvalid}
	}
	if _, err := filemap.FormatFromPath(manifest); err != nil {
		return nil, &common.ValidationError{Field: "manifest name", Path: manifest, Err: err}
	}

	companion := filemap.CompanionName(manifest)
	var jsonName string
	if opts.WriteJSONManifest && companion != manifest {
		jsonName = companion
	}

	return &flattenPlan{
		opts:     opts,
		codec:    c,
		zip:      zipIdx,
		exclude:  excludeIdx,
		manifest:  manifest,
		jsonName:  jsonName,
		companion: companion,
	}, nil
}

// Run flattens opts.SourceDir into opts.DestDir.
//
// Zip targets are archived first, in lexical order, then every remaining
// eligible file is copied in scan order. Per-item failures are reported and
// skipped. The file map is written at the end, also after a cancellation,
// and lists exactly the entries that reached the destination.
func (fs *FlattenService) Run(ctx context.Context, opts options.FlattenOptions, emit types.EmitFunc) (*types.FlattenResult, []filemap.Record, error) {
	p, err := fs.plan(opts)
	if err != nil {
		return nil, nil, err
	}
	opts = p.opts

	start := time.Now()
	runID := uuid.New()
	rep := newReporter(runID, emit, fs.logger)
	result := &types.FlattenResult{RunID: runID, SourcePath: opts.SourceDir, TargetPath: opts.DestDir}

	// The file map is only written once the copy phase has started, so a
	// failed scan never replaces the map of an earlier run.
	started := false
	finish := func(records []filemap.Record, runErr error) (*types.FlattenResult, []filemap.Record, error) {
		zs, es := p.zip.GetStats(), p.exclude.GetStats()
		fs.logger.Debug().
			Str("run_id", runID.String()).
			Int64("zip_prefixes", zs.Prefixes).
			Int64("exclude_prefixes", es.Prefixes).
			Int64("exclude_lookups", es.Lookups).
			Int64("exclude_hits", es.CoverHits).
			Msg("target index stats")
		if started {
			fs.persist(p, records, result, rep)
		}
		result.Duration = time.Since(start)
		if runErr != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)) {
			result.Canceled = true
			rep.warn(runErr, "flatten canceled")
		}
		rep.info(fmt.Sprintf("done: %d files, %d archives, %d errors in %s",
			result.Processed, result.Zipped, result.Errors, result.Duration.Round(time.Millisecond)))
		rep.doneFlatten(result, runErr)
		return result, records, runErr
	}

	rep.info(fmt.Sprintf("scanning %s", opts.SourceDir))
	sc := scanner.New(opts.SourceDir, opts.ExcludePatterns,
		scanner.WithIgnoreFile(opts.IgnoreFile),
		scanner.WithLogger(fs.logger),
	)
	entries, err := sc.Scan(ctx)
	if err != nil {
		rep.error(err, "scan failed")
		return finish(nil, err)
	}

	var archiveSkip []string
	if rel, ok := nestedRel(opts.SourceDir, opts.DestDir); ok {
		if err := p.exclude.Insert(rel); err == nil {
			rep.warn(nil, fmt.Sprintf("destination lies inside the source, skipping %s", rel))
		}
		archiveSkip = append(archiveSkip, opts.DestDir)
	}

	idx := indexing.NewEntryIndex(entries)
	files := idx.Files()
	eligible := files.Clone()
	eligible.AndNot(idx.WithExtensions(opts.ExcludeExtensions...))
	eligible.AndNot(idx.Select(eligible, func(e types.Entry) bool { return p.exclude.Covers(e.RelPath) }))
	result.Skipped = int(files.GetCardinality() - eligible.GetCardinality())

	targets := fs.survivingZipTargets(p, rep)
	zipIdx, _ := trees.NewPathIndexFrom(targets)
	zipped := idx.Select(eligible, func(e types.Entry) bool { return zipIdx.Covers(e.RelPath) })

	type tally struct{ count, size int64 }
	perTarget := make(map[string]tally, len(targets))
	idx.Each(zipped, func(_ indexing.EntryID, e types.Entry) bool {
		top, _ := zipIdx.Covering(e.RelPath)
		t := perTarget[top]
		t.count++
		if e.Size > 0 {
			t.size += e.Size
		}
		perTarget[top] = t
		return true
	})

	flat := eligible.Clone()
	flat.AndNot(zipped)

	totalCount, totalSize := idx.Totals(eligible)
	tracker := common.NewProgressTracker(totalCount, totalSize)
	rep.info(fmt.Sprintf("%d entries scanned, %d files (%s) to process, %d zip targets, %d exclude targets, %d skipped",
		idx.Len(), totalCount, humanize.IBytes(uint64(totalSize)), len(targets), p.exclude.Len(), result.Skipped))
	rep.progress(tracker.Snapshot())

	names := NewNameSet(foldCase(), p.manifest, p.companion)
	encoder, err := codec.NewCachedEncoder(p.codec, fs.cacheSize)
	if err != nil {
		return finish(nil, err)
	}
	copyOpts := opts.CopyOptions()
	started = true
	records := make([]filemap.Record, 0, int(flat.GetCardinality())+len(targets))

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return finish(records, err)
		}

		rel := filepath.FromSlash(t)
		srcDir := filepath.Join(opts.SourceDir, rel)
		if e, ok := idx.Lookup(rel); !ok || !e.IsDir {
			result.Errors++
			err := fmt.Errorf("%w: not found in the scan", common.ErrNotDirectory)
			rep.error(common.NewItemError(common.KindArchive, srcDir, "", err), fmt.Sprintf("zip target skipped: %s", rel))
			continue
		}

		name, renamed := names.Claim(fs.resolver, fs.flatName(p, encoder, rel, filepath.Base(rel))+".zip")
		fs.noteName(p, rep, result, rel, name, renamed)

		dst := filepath.Join(opts.DestDir, name)
		if _, err := fs.fileOps.ArchiveDirectory(ctx, srcDir, dst, archiveSkip...); err != nil {
			names.Remove(name)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return finish(records, ctxErr)
			}
			result.Errors++
			rep.error(common.NewItemError(common.KindArchive, srcDir, dst, err), fmt.Sprintf("archive failed: %s", rel))
			continue
		}

		records = append(records, filemap.Record{OriginalPath: rel, FlattenedName: name})
		result.Zipped++
		tl := perTarget[t]
		tracker.Advance(tl.count, tl.size)
		rep.info(fmt.Sprintf("zipped %s -> %s", rel, name))
		rep.progress(tracker.Snapshot())
	}

	var loopErr error
	idx.Each(flat, func(_ indexing.EntryID, e types.Entry) bool {
		if err := ctx.Err(); err != nil {
			loopErr = err
			return false
		}

		name, renamed := names.Claim(fs.resolver, fs.flatName(p, encoder, e.RelPath, e.Name))
		fs.noteName(p, rep, result, e.RelPath, name, renamed)

		src := filepath.Join(opts.SourceDir, e.RelPath)
		dst := filepath.Join(opts.DestDir, name)
		n, err := fs.fileOps.CopyFile(ctx, src, dst, copyOpts)
		if err != nil {
			names.Remove(name)
			if ctxErr := ctx.Err(); ctxErr != nil {
				loopErr = ctxErr
				return false
			}
			result.Errors++
			rep.error(common.NewItemError(common.KindCopy, src, dst, err), fmt.Sprintf("copy failed: %s", e.RelPath))
			return true
		}

		if opts.RemoveSource {
			if err := fs.fileOps.RemoveFile(ctx, src); err != nil {
				rep.warn(common.NewItemError(common.KindRemove, src, "", err), fmt.Sprintf("source not removed: %s", e.RelPath))
			}
		}

		records = append(records, filemap.Record{OriginalPath: e.RelPath, FlattenedName: name})
		result.Processed++
		tracker.Advance(1, n)
		rep.info(fmt.Sprintf("copied %s -> %s", e.RelPath, name))
		rep.progress(tracker.Snapshot())
		return true
	})

	fs.logger.Debug().Str("run_id", runID.String()).Int("cached_names", encoder.Len()).Msg("codec cache")
	return finish(records, loopErr)
}

// survivingZipTargets returns the zip targets not covered by an exclude
// target, sorted.
func (fs *FlattenService) survivingZipTargets(p *flattenPlan, rep *reporter) []string {
	all := p.zip.Prefixes()
	sort.Strings(all)

	out := make([]string, 0, len(all))
	for _, t := range all {
		if p.exclude.Covers(t) {
			rep.info(fmt.Sprintf("zip target excluded: %s", t))
			continue
		}
		out = append(out, t)
	}
	return out
}

func (fs *FlattenService) flatName(p *flattenPlan, enc *codec.CachedEncoder, relpath, base string) string {
	if p.opts.Naming == options.NamingBasename {
		return base
	}
	return enc.Encode(relpath)
}

func (fs *FlattenService) noteName(p *flattenPlan, rep *reporter, res *types.FlattenResult, relpath, name string, renamed bool) {
	if p.opts.Naming == options.NamingEncoded && !p.codec.Reversible(relpath) {
		res.Irreversible++
		rep.warn(nil, fmt.Sprintf("name of %s only restores through the file map", relpath))
	}
	if renamed {
		res.Renamed++
		rep.warn(nil, fmt.Sprintf("name collision for %s, stored as %s", relpath, name))
	}
}

func (fs *FlattenService) persist(p *flattenPlan, records []filemap.Record, res *types.FlattenResult, rep *reporter) {
	if records == nil {
		records = []filemap.Record{}
	}

	path := filepath.Join(p.opts.DestDir, p.manifest)
	if err := filemap.Save(path, records); err != nil {
		rep.warn(common.NewItemError(common.KindPersist, "", path, err), "file map not saved")
	} else {
		res.ManifestPath = path
		rep.info(fmt.Sprintf("file map saved: %s (%d rows)", path, len(records)))
	}

	if p.jsonName == "" {
		return
	}
	jsonPath := filepath.Join(p.opts.DestDir, p.jsonName)
	if err := filemap.SaveJSON(jsonPath, records); err != nil {
		rep.warn(common.NewItemError(common.KindPersist, "", jsonPath, err), "json file map not saved")
	}
}

// nestedRel returns dest relative to src when dest lies strictly inside src.
func nestedRel(src, dest string) (string, bool) {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return "", false
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absSrc, absDest)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", false
	}
	return rel, true
}

// foldCase reports whether destination names should be compared
// case-insensitively on this platform.
func foldCase() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}

var _ interfaces.FlattenService = (*FlattenService)(nil)
