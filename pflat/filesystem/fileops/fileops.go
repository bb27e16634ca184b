package fileops

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/common"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/options"
)

// partialSuffix marks in-flight temp files in a destination directory.
const partialSuffix = ".part"

// FileOps provides low-level file system operations
type FileOps struct {
	metrics   *common.FileOperationMetrics
	pathUtils *common.PathUtils
	fileUtils *common.FileUtils
	logger    zerolog.Logger
}

// NewFileOps creates a new file operations instance
func NewFileOps(logger zerolog.Logger) *FileOps {
	return &FileOps{
		metrics:   &common.FileOperationMetrics{},
		pathUtils: common.NewPathUtils(),
		fileUtils: common.NewFileUtils(),
		logger:    logger,
	}
}

// CopyFile copies the bytes of srcPath to dstPath. The data is written to a
// temporary file next to dstPath and renamed into place, so a failed copy
// never leaves a partial destination. An existing dstPath is replaced.
func (fo *FileOps) CopyFile(ctx context.Context, srcPath, dstPath string, opts options.CopyOptions) (int64, error) {
	// Check for context cancellation
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	if err := fo.pathUtils.ValidatePath(srcPath); err != nil {
		return 0, fmt.Errorf("invalid source path: %w", err)
	}
	if err := fo.pathUtils.ValidatePath(dstPath); err != nil {
		return 0, fmt.Errorf("invalid destination path: %w", err)
	}

	n, err := fo.performFileCopy(ctx, srcPath, dstPath, opts)
	fo.metrics.UpdateMetrics(err == nil, n)
	if err != nil {
		return 0, fmt.Errorf("failed to copy file from %s to %s: %w", srcPath, dstPath, err)
	}
	return n, nil
}

// RemoveFile deletes a single regular file
func (fo *FileOps) RemoveFile(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := fo.pathUtils.ValidatePath(path); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if !fo.fileUtils.IsRegularFile(path) {
		return fmt.Errorf("not a regular file: %s", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	return nil
}

// EnsureDir creates path and its parents
func (fo *FileOps) EnsureDir(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := fo.pathUtils.ValidatePath(path); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// ValidatePath validates that a path is safe and accessible
func (fo *FileOps) ValidatePath(path string) error {
	return fo.pathUtils.ValidatePath(path)
}

// GetMetrics returns performance metrics
func (fo *FileOps) GetMetrics() map[string]interface{} {
	return fo.metrics.GetMetrics()
}

// Private helper methods

func (fo *FileOps) performFileCopy(ctx context.Context, srcPath, dstPath string, opts options.CopyOptions) (int64, error) {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat source file: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("source is a directory: %s", srcPath)
	}

	var copied int64
	err = fo.writeAtomic(dstPath, func(dst *os.File) error {
		n, err := fo.copyWithProgress(ctx, dst, srcFile)
		copied = n
		if err != nil {
			return fmt.Errorf("failed to copy file content: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if opts.PreservePerms || opts.PreserveTimes {
		if err := fo.fileUtils.CopyFileAttributes(srcPath, dstPath, opts.PreservePerms, opts.PreserveTimes); err != nil {
			fo.logger.Warn().Err(err).Str("src", srcPath).Str("dst", dstPath).Msg("Failed to copy file attributes")
		}
	}
	return copied, nil
}

// writeAtomic creates a temp file in the directory of dstPath, hands it to
// fill, and renames it over dstPath once fill and Close succeed.
func (fo *FileOps) writeAtomic(dstPath string, fill func(*os.File) error) error {
	dir := filepath.Dir(dstPath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dstPath)+".*"+partialSuffix)
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, dstPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename %s to %s: %w", tmpName, dstPath, err)
	}
	return nil
}

func (fo *FileOps) copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buffer := make([]byte, 32*1024) // 32KB buffer
	var totalBytes int64

	for {
		select {
		case <-ctx.Done():
			return totalBytes, ctx.Err()
		default:
		}

		n, readErr := src.Read(buffer)
		if n > 0 {
			if _, writeErr := dst.Write(buffer[:n]); writeErr != nil {
				return totalBytes, writeErr
			}
			totalBytes += int64(n)
		}

		if readErr != nil {
			if readErr == io.EOF {
				return totalBytes, nil
			}
			return totalBytes, readErr
		}
	}
}
