package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	internal "github.com/ZanzyTHEbar/path-flattener/pflat"
	"github.com/ZanzyTHEbar/path-flattener/pflat/codec"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filemap"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/common"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/fileops"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/interfaces"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/options"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/types"
)

const archiveExt = ".zip"

// collisionSuffix matches the counter the conflict resolver appends
var collisionSuffix = regexp.MustCompile(`_[0-9]{3,}$`)

// RestoreService rebuilds a directory tree from a flat directory
type RestoreService struct {
	fileOps   fileops.FileOpsInterface
	pathUtils *common.PathUtils
	logger    zerolog.Logger
}

// NewRestoreService creates a new restore service
func NewRestoreService(fileOps fileops.FileOpsInterface, logger zerolog.Logger) *RestoreService {
	return &RestoreService{
		fileOps:   fileOps,
		pathUtils: common.NewPathUtils(),
		logger:    logger.With().Str("service", "restore").Logger(),
	}
}

type restorePlan struct {
	opts      options.RestoreOptions
	codec     *codec.Codec
	manifest  string
	companion string
}

// flatFile is one regular file of the flat directory
type flatFile struct {
	name string
	size int64
}

// ValidateRestore checks the run parameters without touching the destination.
func (rs *RestoreService) ValidateRestore(opts options.RestoreOptions) error {
	_, err := rs.plan(opts)
	return err
}

func (rs *RestoreService) plan(opts options.RestoreOptions) (*restorePlan, error) {
	if err := common.ValidateDirectoryExists("source", opts.SourceDir, common.ErrSourceNotExist); err != nil {
		return nil, err
	}
	if err := common.ValidateDirectoryExists("destination", opts.DestDir, common.ErrDestNotExist); err != nil {
		return nil, err
	}

	method, err := options.ParseRestoreMethod(string(opts.Method))
	if err != nil {
		return nil, &common.ValidationError{Field: "method", Err: err}
	}
	opts.Method = method

	c, err := codec.New(opts.Codec)
	if err != nil {
		return nil, &common.ValidationError{Field: "codec", Err: err}
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

	return &restorePlan{opts: opts, codec: c, manifest: manifest, companion: filemap.CompanionName(manifest)}, nil
}

// listFlatFiles returns the regular files of the flat directory, sorted by
// name, without the file map. The structured companion is skipped unless
// index has a record for a flattened file of that name.
func (rs *RestoreService) listFlatFiles(p *restorePlan, index map[string]string) ([]flatFile, error) {
	dirEntries, err := os.ReadDir(p.opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p.opts.SourceDir, err)
	}

	files := make([]flatFile, 0, len(dirEntries))
	for _, d := range dirEntries {
		if d.Name() == p.manifest {
			continue
		}
		if _, recorded := index[d.Name()]; d.Name() == p.companion && !recorded {
			continue
		}
		info, err := d.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, flatFile{name: d.Name(), size: info.Size()})
	}
	return files, nil
}

// loadManifest reads the file map. A missing map yields an empty index.
func (rs *RestoreService) loadManifest(p *restorePlan) (map[string]string, error) {
	records, err := filemap.Load(filepath.Join(p.opts.SourceDir, p.manifest))
	if err != nil {
		return map[string]string{}, err
	}
	return filemap.Index(records), nil
}

// resolve maps a flat name to a relative target path
func (rs *RestoreService) resolve(p *restorePlan, index map[string]string, name string) (string, error) {
	switch p.opts.Method {
	case options.MethodGuess:
		return codec.GuessDecode(name)
	case options.MethodDecode:
		rel := p.codec.Decode(name)
		if rel == "" {
			return "", codec.ErrEmptyGuess
		}
		return rel, nil
	default:
		rel, ok := index[name]
		if !ok {
			return "", common.ErrUnresolved
		}
		return codec.Normalize(rel), nil
	}
}

// isArchive reports whether a flat file is the archive of a zip target.
// Without a record every .zip file is one. With a record whose original
// path itself ends in .zip, the file is an archive only when its name is
// the encoded or base form of that path plus .zip, allowing for a
// collision counter; otherwise it was a plain file.
func isArchive(c *codec.Codec, name, rel string, recorded bool) bool {
	if !strings.EqualFold(filepath.Ext(name), archiveExt) {
		return false
	}
	if !recorded || !strings.EqualFold(filepath.Ext(rel), archiveExt) {
		return true
	}
	stem := name[:len(name)-len(archiveExt)]
	for _, s := range []string{stem, collisionSuffix.ReplaceAllString(stem, "")} {
		if s == c.Encode(rel) || s == filepath.Base(rel) {
			return true
		}
	}
	return false
}

// extractDir returns the directory an archive unpacks into. A recorded
// target is the original directory; a decoded one loses its .zip suffix.
func extractDir(target string, recorded bool) string {
	if !recorded && strings.EqualFold(filepath.Ext(target), archiveExt) {
		return target[:len(target)-len(archiveExt)]
	}
	return target
}

// archiveCopyPath returns where an archive is copied when it is not
// extracted.
func archiveCopyPath(target string, recorded bool) string {
	if !recorded && strings.EqualFold(filepath.Ext(target), archiveExt) {
		return target
	}
	return target + archiveExt
}

// Run restores every flat file of opts.SourceDir below opts.DestDir.
func (rs *RestoreService) Run(ctx context.Context, opts options.RestoreOptions, emit types.EmitFunc) (*types.RestoreResult, error) {
	p, err := rs.plan(opts)
	if err != nil {
		return nil, err
	}
	opts = p.opts

	start := time.Now()
	runID := uuid.New()
	rep := newReporter(runID, emit, rs.logger)
	result := &types.RestoreResult{RunID: runID, SourcePath: opts.SourceDir, TargetPath: opts.DestDir}

	finish := func(runErr error) (*types.RestoreResult, error) {
		result.Duration = time.Since(start)
		if runErr != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)) {
			result.Canceled = true
			rep.warn(runErr, "restore canceled")
		}
		rep.info(fmt.Sprintf("done: %d restored, %d unresolved, %d errors in %s",
			result.Restored, result.Unresolved, result.Errors, result.Duration.Round(time.Millisecond)))
		rep.doneRestore(result, runErr)
		return result, runErr
	}

	index := map[string]string{}
	if opts.Method == options.MethodManifest {
		index, err = rs.loadManifest(p)
		if err != nil {
			rep.warn(err, fmt.Sprintf("file map %s not loaded, every file is unresolved", p.manifest))
		} else {
			rep.info(fmt.Sprintf("file map loaded: %d records", len(index)))
		}
	}

	files, err := rs.listFlatFiles(p, index)
	if err != nil {
		rep.error(err, "listing failed")
		return finish(err)
	}

	var totalSize int64
	for _, f := range files {
		totalSize += f.size
	}
	tracker := common.NewProgressTracker(int64(len(files)), totalSize)
	rep.info(fmt.Sprintf("%d files to restore with method %s", len(files), opts.Method))
	rep.progress(tracker.Snapshot())

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		src := filepath.Join(opts.SourceDir, f.name)
		if err := rs.restoreOne(ctx, p, index, src, f.name, result, rep); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return finish(ctxErr)
			}
		}
		tracker.Advance(1, f.size)
		rep.progress(tracker.Snapshot())
	}

	return finish(nil)
}

func (rs *RestoreService) restoreOne(ctx context.Context, p *restorePlan, index map[string]string, src, name string, res *types.RestoreResult, rep *reporter) error {
	rel, err := rs.resolve(p, index, name)
	if err != nil {
		if errors.Is(err, common.ErrUnresolved) {
			res.Unresolved++
			rep.error(common.NewItemError(common.KindUnresolved, src, "", err), fmt.Sprintf("unresolved: %s", name))
			return err
		}
		res.Errors++
		rep.error(common.NewItemError(common.KindResolve, src, "", err), fmt.Sprintf("cannot resolve: %s", name))
		return err
	}

	target, err := rs.pathUtils.JoinWithin(p.opts.DestDir, rel)
	if err != nil {
		res.Errors++
		rep.error(common.NewItemError(common.KindResolve, src, rel, err), fmt.Sprintf("rejected target for %s", name))
		return err
	}

	if err := rs.fileOps.EnsureDir(ctx, filepath.Dir(target)); err != nil {
		res.Errors++
		rep.error(common.NewItemError(common.KindCopy, src, target, err), fmt.Sprintf("cannot create parent of %s", rel))
		return err
	}

	recorded := p.opts.Method == options.MethodManifest
	archive := isArchive(p.codec, name, rel, recorded)

	switch {
	case archive && p.opts.Unzip:
		dir := extractDir(target, recorded)
		if _, err := rs.fileOps.ExtractArchive(ctx, src, dir); err != nil {
			res.Errors++
			rep.error(common.NewItemError(common.KindExtract, src, dir, err), fmt.Sprintf("extract failed: %s", name))
			return err
		}
		rep.info(fmt.Sprintf("extracted %s -> %s", name, dir))
	case archive:
		dst := archiveCopyPath(target, recorded)
		if _, err := rs.fileOps.CopyFile(ctx, src, dst, options.DefaultCopyOptions()); err != nil {
			res.Errors++
			rep.error(common.NewItemError(common.KindCopy, src, dst, err), fmt.Sprintf("copy failed: %s", name))
			return err
		}
		rep.info(fmt.Sprintf("copied %s -> %s", name, dst))
	default:
		if _, err := rs.fileOps.CopyFile(ctx, src, target, options.DefaultCopyOptions()); err != nil {
			res.Errors++
			rep.error(common.NewItemError(common.KindCopy, src, target, err), fmt.Sprintf("copy failed: %s", name))
			return err
		}
		rep.info(fmt.Sprintf("copied %s -> %s", name, target))
	}

	res.Restored++
	return nil
}

// Preview lists, per flat file, where each restore method would put it.
// Nothing is written.
func (rs *RestoreService) Preview(ctx context.Context, opts options.RestoreOptions) ([]types.RestorePreviewItem, error) {
	if err := common.ValidateDirectoryExists("source", opts.SourceDir, common.ErrSourceNotExist); err != nil {
		return nil, err
	}
	if opts.DestDir == "" {
		opts.DestDir = opts.SourceDir
	}
	if opts.Method == "" {
		opts.Method = options.MethodManifest
	}
	p, err := rs.plan(opts)
	if err != nil {
		return nil, err
	}

	index, err := rs.loadManifest(p)
	if err != nil && !os.IsNotExist(err) {
		rs.logger.Warn().Err(err).Str("manifest", p.manifest).Msg("file map not loaded for preview")
	}

	files, err := rs.listFlatFiles(p, index)
	if err != nil {
		return nil, err
	}

	items := make([]types.RestorePreviewItem, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		rel, recorded := index[f.name]
		item := types.RestorePreviewItem{
			FlatName:     f.name,
			ManifestPath: rel,
			DecodedPath:  p.codec.Decode(f.name),
			Archive:      isArchive(p.codec, f.name, codec.Normalize(rel), recorded),
		}
		if guess, err := codec.GuessDecode(f.name); err == nil {
			item.GuessPath = guess
		}
		items = append(items, item)
	}
	return items, nil
}

var _ interfaces.RestoreService = (*RestoreService)(nil)
