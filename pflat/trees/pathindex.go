package trees

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/armon/go-radix"
)

// ErrInvalidPrefix is returned for prefixes that name the root or leave it.
var ErrInvalidPrefix = errors.New("invalid relative prefix")

// PathIndexStats tracks lookups against the path index
type PathIndexStats struct {
	Prefixes   int64
	Lookups    int64
	CoverHits  int64
	Insertions int64
	mu         sync.RWMutex
}

// PathIndex is a set of relative directory prefixes stored in a patricia
// tree. A path is covered by the index when it equals one of the prefixes
// or lies below one of them, compared component by component.
//
// Keys are stored with a trailing '/', so a plain string prefix match on
// the tree is also a component boundary match ("a/b/" never covers "a/bc").
type PathIndex struct {
	tree  *radix.Tree
	mu    sync.RWMutex
	stats *PathIndexStats
}

// NewPathIndex creates an empty index.
func NewPathIndex() *PathIndex {
	return &PathIndex{
		tree:  radix.New(),
		stats: &PathIndexStats{},
	}
}

// NewPathIndexFrom builds an index from prefixes, stopping at the first invalid one.
func NewPathIndexFrom(prefixes []string) (*PathIndex, error) {
	idx := NewPathIndex()
	for _, p := range prefixes {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := idx.Insert(p); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Insert adds a relative prefix. Re-inserting an existing prefix is a no-op.
func (idx *PathIndex) Insert(prefix string) error {
	key, err := NormalizeRelPath(prefix)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, updated := idx.tree.Insert(key+"/", key)

	idx.stats.mu.Lock()
	if !updated {
		idx.stats.Prefixes++
	}
	idx.stats.Insertions++
	idx.stats.mu.Unlock()

	return nil
}

// Covering returns the outermost inserted prefix equal to or above relpath.
func (idx *PathIndex) Covering(relpath string) (string, bool) {
	key, err := NormalizeRelPath(relpath)
	if err != nil {
		return "", false
	}
	key += "/"

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	idx.stats.mu.Lock()
	idx.stats.Lookups++
	idx.stats.mu.Unlock()

	// Walk the ancestors from the top so nested prefixes resolve to the outermost one.
	for i := 0; i < len(key); i++ {
		if key[i] != '/' {
			continue
		}
		if v, ok := idx.tree.Get(key[:i+1]); ok {
			idx.stats.mu.Lock()
			idx.stats.CoverHits++
			idx.stats.mu.Unlock()
			return v.(string), true
		}
	}
	return "", false
}

// Covers reports whether relpath equals or lies below an inserted prefix.
func (idx *PathIndex) Covers(relpath string) bool {
	key, err := NormalizeRelPath(relpath)
	if err != nil {
		return false
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	idx.stats.mu.Lock()
	idx.stats.Lookups++
	idx.stats.mu.Unlock()

	_, _, ok := idx.tree.LongestPrefix(key + "/")
	if ok {
		idx.stats.mu.Lock()
		idx.stats.CoverHits++
		idx.stats.mu.Unlock()
	}
	return ok
}

// Prefixes returns every inserted prefix in lexical order.
func (idx *PathIndex) Prefixes() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]string, 0, idx.tree.Len())
	idx.tree.Walk(func(_ string, v interface{}) bool {
		out = append(out, v.(string))
		return false
	})
	return out
}

// Len returns the number of prefixes.
func (idx *PathIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}

// GetStats returns a copy of the current statistics
func (idx *PathIndex) GetStats() PathIndexStats {
	idx.stats.mu.RLock()
	defer idx.stats.mu.RUnlock()

	return PathIndexStats{
		Prefixes:   idx.stats.Prefixes,
		Lookups:    idx.stats.Lookups,
		CoverHits:  idx.stats.CoverHits,
		Insertions: idx.stats.Insertions,
	}
}

// NormalizeRelPath returns p as a clean slash-separated relative path.
// Empty, root, absolute and parent-escaping paths are rejected.
func NormalizeRelPath(p string) (string, error) {
	s := strings.ReplaceAll(p, `\`, "/")
	if s == "" || strings.HasPrefix(s, "/") || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrefix, p)
	}
	s = filepath.ToSlash(filepath.Clean(filepath.FromSlash(s)))
	if s == "." || s == ".." || strings.HasPrefix(s, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrefix, p)
	}
	return s, nil
}
