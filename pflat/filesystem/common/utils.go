package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PathUtils provides path manipulation utilities used across filesystem packages
type PathUtils struct{}

// NewPathUtils creates a new PathUtils instance
func NewPathUtils() *PathUtils {
	return &PathUtils{}
}

// ValidatePath validates that a path is safe and accessible
func (pu *PathUtils) ValidatePath(path string) error {
	if path == "" {
		return ErrPathEmpty
	}
	if strings.Contains(path, "\x00") {
		return ErrPathInvalid
	}
	if len(path) > 4096 {
		return ErrPathTooLong
	}
	return nil
}

// JoinWithin joins rel onto root and fails when the result leaves root.
func (pu *PathUtils) JoinWithin(root, rel string) (string, error) {
	if err := pu.ValidatePath(rel); err != nil {
		return "", err
	}
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, rel)
	}
	joined := filepath.Join(root, rel)
	back, err := filepath.Rel(root, joined)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, rel)
	}
	if back == "." || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, rel)
	}
	return joined, nil
}

// SplitName splits a file name into stem and extension.
// Dot files such as ".env" have no extension.
func (pu *PathUtils) SplitName(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

// NormalizeExtension lowercases ext and guarantees a leading dot.
// Blank input yields "".
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	ext = strings.TrimLeft(ext, ".")
	if ext == "" {
		return ""
	}
	return "." + ext
}

// NormalizeExtensions normalises every entry and drops blanks.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		if n := NormalizeExtension(e); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// FileUtils provides file manipulation utilities used across packages
type FileUtils struct{}

// NewFileUtils creates a new FileUtils instance
func NewFileUtils() *FileUtils {
	return &FileUtils{}
}

// CopyFileAttributes copies file attributes from source to destination
func (fu *FileUtils) CopyFileAttributes(srcPath, dstPath string, preservePerms, preserveTimes bool) error {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return fmt.Errorf("failed to stat source %s: %w", srcPath, err)
	}

	if preservePerms {
		if err := os.Chmod(dstPath, srcInfo.Mode().Perm()); err != nil {
			return fmt.Errorf("failed to set permissions on %s: %w", dstPath, err)
		}
	}

	if preserveTimes {
		if err := os.Chtimes(dstPath, time.Now(), srcInfo.ModTime()); err != nil {
			return fmt.Errorf("failed to set times on %s: %w", dstPath, err)
		}
	}

	return nil
}

// IsRegularFile reports whether path is a regular file.
func (fu *FileUtils) IsRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
