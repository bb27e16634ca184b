// Package scanner walks a source tree into a deterministic list of entries.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	ignore "github.com/sabhiram/go-gitignore"

	internal "github.com/ZanzyTHEbar/path-flattener/pflat"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/common"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/types"
)

// IgnoreChecker reports whether a slash-separated relative path is ignored
type IgnoreChecker interface {
	MatchesPath(path string) bool
}

// Scanner enumerates files and directories below a root
type Scanner struct {
	root       string
	patterns   []string
	ignoreFile string
	logger     zerolog.Logger
	pathUtils  *common.PathUtils
}

// Option configures a Scanner
type Option func(*Scanner)

// WithIgnoreFile reads a gitignore-style file of the given name from the root.
// An empty name disables it.
func WithIgnoreFile(name string) Option {
	return func(s *Scanner) {
		s.ignoreFile = name
	}
}

// WithLogger sets the logger used for skipped subtrees.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scanner) {
		s.logger = l
	}
}

// New creates a scanner for root. A nil pattern list uses the default set;
// an empty, non-nil list disables pattern exclusion.
func New(root string, patterns []string, opts ...Option) *Scanner {
	if patterns == nil {
		patterns = internal.DefaultExcludePatterns
	}
	clean := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p != "" {
			clean = append(clean, p)
		}
	}

	s := &Scanner{
		root:      root,
		patterns:  clean,
		logger:    zerolog.Nop(),
		pathUtils: common.NewPathUtils(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Excluded reports whether a file name contains one of the exclusion substrings.
func (s *Scanner) Excluded(name string) bool {
	for _, p := range s.patterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

func (s *Scanner) loadIgnore() (IgnoreChecker, error) {
	if s.ignoreFile == "" {
		return nil, nil
	}
	ignorePath := filepath.Join(s.root, s.ignoreFile)
	if _, err := os.Stat(ignorePath); err == nil {
		ignored, err := ignore.CompileIgnoreFile(ignorePath)
		if err != nil {
			return nil, fmt.Errorf("error reading %s file: %w", s.ignoreFile, err)
		}
		return ignored, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error checking for %s file: %w", s.ignoreFile, err)
	}
	return nil, nil
}

// Scan walks the root in lexical order. Directories are always listed,
// except the root itself; files whose name matches an exclusion substring
// or the ignore file are left out. Unreadable subdirectories are logged
// and skipped.
func (s *Scanner) Scan(ctx context.Context) ([]types.Entry, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrSourceNotExist, s.root)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", s.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", common.ErrNotDirectory, s.root)
	}

	ignorer, err := s.loadIgnore()
	if err != nil {
		s.logger.Warn().Err(err).Str("root", s.root).Msg("ignore file not applied")
		ignorer = nil
	}

	entries := make([]types.Entry, 0, 64)
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if walkErr != nil {
			if path == s.root {
				return walkErr
			}
			s.logger.Warn().Err(walkErr).Str("path", path).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == s.root {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", path, err)
		}
		name := d.Name()

		if d.IsDir() {
			entries = append(entries, types.Entry{RelPath: rel, IsDir: true, Name: name})
			return nil
		}

		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		if s.Excluded(name) {
			return nil
		}
		if ignorer != nil && ignorer.MatchesPath(filepath.ToSlash(rel)) {
			return nil
		}

		size := int64(-1)
		if fi, err := os.Stat(path); err == nil {
			if !fi.Mode().IsRegular() {
				return nil
			}
			size = fi.Size()
		} else {
			s.logger.Warn().Err(err).Str("path", path).Msg("size unavailable")
		}

		_, ext := s.pathUtils.SplitName(name)
		entries = append(entries, types.Entry{
			RelPath: rel,
			Name:    name,
			Ext:     common.NormalizeExtension(ext),
			Size:    size,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return entries, err
		}
		return entries, fmt.Errorf("scan of %s failed: %w", s.root, err)
	}
	return entries, nil
}

// RecommendZipTargets returns, sorted, every directory other than the root
// that directly contains a file whose extension is one of exts.
func RecommendZipTargets(entries []types.Entry, exts []string) []string {
	wanted := make(map[string]struct{})
	for _, e := range common.NormalizeExtensions(exts) {
		wanted[e] = struct{}{}
	}
	if len(wanted) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		if _, ok := wanted[strings.ToLower(e.Ext)]; !ok {
			continue
		}
		parent := filepath.Dir(e.RelPath)
		if parent == "." || parent == "" {
			continue
		}
		if _, dup := seen[parent]; dup {
			continue
		}
		seen[parent] = struct{}{}
		out = append(out, parent)
	}
	sort.Strings(out)
	return out
}

// Summarize totals the files that survive the extension filter. DirSizes
// is recursive; FileCounts counts direct children only. The root is ".".
func Summarize(entries []types.Entry, excludeExts []string) types.ScanSummary {
	excluded := make(map[string]struct{})
	for _, e := range common.NormalizeExtensions(excludeExts) {
		excluded[e] = struct{}{}
	}

	sum := types.ScanSummary{
		DirSizes:   map[string]int64{".": 0},
		FileCounts: map[string]int{".": 0},
	}
	for _, e := range entries {
		if e.IsDir {
			sum.DirCount++
			if _, ok := sum.DirSizes[e.RelPath]; !ok {
				sum.DirSizes[e.RelPath] = 0
				sum.FileCounts[e.RelPath] = 0
			}
			continue
		}
		if _, skip := excluded[strings.ToLower(e.Ext)]; skip {
			continue
		}

		size := e.Size
		if size < 0 {
			size = 0
		}
		sum.TotalCount++
		sum.TotalSize += size

		dir := filepath.Dir(e.RelPath)
		sum.FileCounts[dir]++
		for {
			sum.DirSizes[dir] += size
			if dir == "." {
				break
			}
			dir = filepath.Dir(dir)
		}
	}
	return sum
}
