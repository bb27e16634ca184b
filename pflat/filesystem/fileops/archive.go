package fileops

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/common"
)

// ErrUnsafeArchive is returned when an archive entry would land outside
// the extraction directory.
var ErrUnsafeArchive = errors.New("archive entry escapes the extraction directory")

// ArchiveStats describes what went into or came out of an archive
type ArchiveStats struct {
	Files int
	Dirs  int
	Bytes int64
}

// ArchiveDirectory writes the full subtree of srcDir into a zip archive at
// archivePath, with entry names relative to srcDir. Directories listed in
// skip, and everything below them, are left out; nothing else is filtered.
// The archive is written to a temp file and renamed on success.
func (fo *FileOps) ArchiveDirectory(ctx context.Context, srcDir, archivePath string, skip ...string) (ArchiveStats, error) {
	var stats ArchiveStats

	select {
	case <-ctx.Done():
		return stats, ctx.Err()
	default:
	}

	info, err := os.Stat(srcDir)
	if err != nil {
		return stats, fmt.Errorf("failed to access source directory: %w", err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("%w: %s", common.ErrNotDirectory, srcDir)
	}

	absSrc, err := filepath.Abs(srcDir)
	if err != nil {
		return stats, fmt.Errorf("failed to resolve %s: %w", srcDir, err)
	}
	skipped := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		abs, err := filepath.Abs(s)
		if err != nil {
			return stats, fmt.Errorf("failed to resolve %s: %w", s, err)
		}
		skipped[abs] = struct{}{}
	}

	err = fo.writeAtomic(archivePath, func(out *os.File) error {
		zw := zip.NewWriter(out)
		walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			rel, err := filepath.Rel(srcDir, path)
			if err != nil {
				return fmt.Errorf("failed to get relative path: %w", err)
			}
			if rel == "." {
				return nil
			}
			if _, ok := skipped[filepath.Join(absSrc, rel)]; ok && d.IsDir() {
				fo.logger.Debug().Str("path", path).Msg("skipping directory in archive")
				return filepath.SkipDir
			}

			fi, err := d.Info()
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", path, err)
			}
			hdr, err := zip.FileInfoHeader(fi)
			if err != nil {
				return fmt.Errorf("failed to build header for %s: %w", path, err)
			}
			hdr.Name = filepath.ToSlash(rel)

			if d.IsDir() {
				hdr.Name += "/"
				hdr.Method = zip.Store
				if _, err := zw.CreateHeader(hdr); err != nil {
					return fmt.Errorf("failed to add directory %s: %w", rel, err)
				}
				stats.Dirs++
				return nil
			}
			if !fi.Mode().IsRegular() {
				fo.logger.Debug().Str("path", path).Msg("skipping non-regular file in archive")
				return nil
			}

			hdr.Method = zip.Deflate
			w, err := zw.CreateHeader(hdr)
			if err != nil {
				return fmt.Errorf("failed to add file %s: %w", rel, err)
			}
			src, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			n, err := fo.copyWithProgress(ctx, w, src)
			src.Close()
			if err != nil {
				return fmt.Errorf("failed to compress %s: %w", path, err)
			}
			stats.Files++
			stats.Bytes += n
			return nil
		})
		if walkErr != nil {
			zw.Close()
			return walkErr
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to finish archive: %w", err)
		}
		return nil
	})
	fo.metrics.UpdateMetrics(err == nil, stats.Bytes)
	if err != nil {
		return ArchiveStats{}, fmt.Errorf("failed to archive %s to %s: %w", srcDir, archivePath, err)
	}
	return stats, nil
}

// ExtractArchive unpacks archivePath into dstDir, creating it as needed.
// Every entry is checked before anything is written; an entry that would
// escape dstDir fails the whole archive. Existing files are overwritten.
func (fo *FileOps) ExtractArchive(ctx context.Context, archivePath, dstDir string) (ArchiveStats, error) {
	var stats ArchiveStats

	select {
	case <-ctx.Done():
		return stats, ctx.Err()
	default:
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return stats, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer zr.Close()

	targets := make([]string, len(zr.File))
	for i, f := range zr.File {
		name := strings.ReplaceAll(f.Name, `\`, "/")
		name = strings.TrimSuffix(name, "/")
		if name == "" {
			targets[i] = ""
			continue
		}
		target, err := fo.pathUtils.JoinWithin(dstDir, filepath.FromSlash(name))
		if err != nil {
			return stats, fmt.Errorf("%w: %s: %v", ErrUnsafeArchive, f.Name, err)
		}
		targets[i] = target
	}

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return stats, fmt.Errorf("failed to create directory %s: %w", dstDir, err)
	}

	for i, f := range zr.File {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		target := targets[i]
		if target == "" {
			continue
		}
		mode := f.Mode()

		switch {
		case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
			if err := os.MkdirAll(target, 0o755); err != nil {
				return stats, fmt.Errorf("failed to create directory %s: %w", target, err)
			}
			stats.Dirs++
		case mode&fs.ModeSymlink != 0:
			fo.logger.Warn().Str("archive", archivePath).Str("entry", f.Name).Msg("skipping symlink entry")
		default:
			n, err := fo.extractFile(ctx, f, target)
			if err != nil {
				return stats, err
			}
			stats.Files++
			stats.Bytes += n
		}
	}

	fo.metrics.UpdateMetrics(true, stats.Bytes)
	return stats, nil
}

func (fo *FileOps) extractFile(ctx context.Context, f *zip.File, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", target, err)
	}

	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", target, err)
	}

	n, err := fo.copyWithProgress(ctx, out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}

	if !f.Modified.IsZero() {
		if err := os.Chtimes(target, f.Modified, f.Modified); err != nil {
			fo.logger.Debug().Err(err).Str("path", target).Msg("failed to set times")
		}
	}
	return n, nil
}
