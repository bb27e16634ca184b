package filesystem

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/path-flattener/pflat/filemap"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/common"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/fileops"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/interfaces"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/options"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/scanner"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/services"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/types"
)

// FileSystem is the entry point of the flattener. It wires the scanner,
// the flatten and restore services and the background runner.
type FileSystem struct {
	// Core services
	fileOps          *fileops.FileOps
	conflictResolver *services.ConflictResolverService
	flattenService   *services.FlattenService
	restoreService   *services.RestoreService

	runner *Runner
	logger zerolog.Logger
}

// New creates a filesystem manager logging to logger
func New(logger zerolog.Logger) *FileSystem {
	fileOps := fileops.NewFileOps(logger)
	resolver := services.NewConflictResolverService()
	flatten := services.NewFlattenService(fileOps, resolver, logger)
	restore := services.NewRestoreService(fileOps, logger)

	return &FileSystem{
		fileOps:          fileOps,
		conflictResolver: resolver,
		flattenService:   flatten,
		restoreService:   restore,
		runner:           NewRunner(flatten, restore, logger),
		logger:           logger,
	}
}

// Scan lists root without modifying anything and recommends zip targets
// for opts.ZipExtensions.
func (dfs *FileSystem) Scan(ctx context.Context, root string, opts options.ScanOptions) (*types.ScanReport, error) {
	if err := common.ValidateDirectoryExists("source", root, common.ErrSourceNotExist); err != nil {
		return nil, err
	}

	sc := scanner.New(root, opts.ExcludePatterns,
		scanner.WithIgnoreFile(opts.IgnoreFile),
		scanner.WithLogger(dfs.logger),
	)
	entries, err := sc.Scan(ctx)
	if err != nil {
		return nil, err
	}

	return &types.ScanReport{
		Root:        root,
		Entries:     entries,
		Recommended: scanner.RecommendZipTargets(entries, opts.ZipExtensions),
		Summary:     scanner.Summarize(entries, nil),
	}, nil
}

// Flatten runs a flatten synchronously on the calling goroutine.
func (dfs *FileSystem) Flatten(ctx context.Context, opts options.FlattenOptions, emit types.EmitFunc) (*types.FlattenResult, []filemap.Record, error) {
	return dfs.flattenService.Run(ctx, opts, emit)
}

// Restore runs a restore synchronously on the calling goroutine.
func (dfs *FileSystem) Restore(ctx context.Context, opts options.RestoreOptions, emit types.EmitFunc) (*types.RestoreResult, error) {
	return dfs.restoreService.Run(ctx, opts, emit)
}

// PreviewRestore lists where every flat file of opts.SourceDir would be restored.
func (dfs *FileSystem) PreviewRestore(ctx context.Context, opts options.RestoreOptions) ([]types.RestorePreviewItem, error) {
	return dfs.restoreService.Preview(ctx, opts)
}

// Runner returns the background runner
func (dfs *FileSystem) Runner() *Runner {
	return dfs.runner
}

// GetFlattenService returns the flatten service
func (dfs *FileSystem) GetFlattenService() interfaces.FlattenService {
	return dfs.flattenService
}

// GetRestoreService returns the restore service
func (dfs *FileSystem) GetRestoreService() interfaces.RestoreService {
	return dfs.restoreService
}

// GetConflictResolver returns the conflict resolver
func (dfs *FileSystem) GetConflictResolver() interfaces.ConflictResolver {
	return dfs.conflictResolver
}

// GetMetrics returns the copy/archive counters of the file operations layer
func (dfs *FileSystem) GetMetrics() map[string]interface{} {
	return dfs.fileOps.GetMetrics()
}
