package fileops

import (
	"context"

	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/options"
)

// FileOperations defines the interface for basic file operations
type FileOperations interface {
	CopyFile(ctx context.Context, srcPath, dstPath string, opts options.CopyOptions) (int64, error)
	RemoveFile(ctx context.Context, path string) error
	EnsureDir(ctx context.Context, path string) error
	ValidatePath(path string) error
	GetMetrics() map[string]interface{}
}

// ArchiveOperations defines the interface for zip archive handling
type ArchiveOperations interface {
	ArchiveDirectory(ctx context.Context, srcDir, archivePath string, skip ...string) (ArchiveStats, error)
	ExtractArchive(ctx context.Context, archivePath, dstDir string) (ArchiveStats, error)
}

// FileOpsInterface combines all file operation interfaces
type FileOpsInterface interface {
	FileOperations
	ArchiveOperations
}

var _ FileOpsInterface = (*FileOps)(nil)
