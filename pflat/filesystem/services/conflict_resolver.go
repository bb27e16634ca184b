package services

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/common"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/interfaces"
)

// maxSuffix bounds the numbered candidates tried before widening the counter.
const maxSuffix = 999

// ConflictResolverService derives unique flat names within one run
type ConflictResolverService struct {
	pathUtils *common.PathUtils
}

// NewConflictResolverService creates a new conflict resolver service
func NewConflictResolverService() *ConflictResolverService {
	return &ConflictResolverService{pathUtils: common.NewPathUtils()}
}

// Resolve returns base unchanged when it is free. Otherwise it appends
// _001, _002, ... to the stem, before the extension, until a free name is
// found: "file1.txt" becomes "file1_001.txt". Past 999 the counter keeps
// growing without padding.
func (cr *ConflictResolverService) Resolve(base string, existing interfaces.NameLookup) string {
	if existing == nil || !existing.Has(base) {
		return base
	}

	stem, ext := cr.pathUtils.SplitName(base)
	for i := 1; ; i++ {
		var candidate string
		if i <= maxSuffix {
			candidate = fmt.Sprintf("%s_%03d%s", stem, i, ext)
		} else {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		if !existing.Has(candidate) {
			return candidate
		}
	}
}

// NameSet is the set of flat names used in a destination directory.
// Names are compared case-insensitively when foldCase is set, which
// matches destinations on case-insensitive file systems.
type NameSet struct {
	names    map[string]struct{}
	foldCase bool
}

// NewNameSet creates a set seeded with names.
func NewNameSet(foldCase bool, names ...string) *NameSet {
	ns := &NameSet{names: make(map[string]struct{}, len(names)), foldCase: foldCase}
	for _, n := range names {
		ns.Add(n)
	}
	return ns
}

func (ns *NameSet) key(name string) string {
	if ns.foldCase {
		return strings.ToLower(name)
	}
	return name
}

// Has reports whether name is taken.
func (ns *NameSet) Has(name string) bool {
	_, ok := ns.names[ns.key(name)]
	return ok
}

// Add marks name as taken.
func (ns *NameSet) Add(name string) {
	ns.names[ns.key(name)] = struct{}{}
}

// Remove releases name.
func (ns *NameSet) Remove(name string) {
	delete(ns.names, ns.key(name))
}

// Claim resolves base against the set, adds the result, and reports
// whether it differs from base.
func (ns *NameSet) Claim(cr interfaces.ConflictResolver, base string) (string, bool) {
	name := cr.Resolve(base, ns)
	ns.Add(name)
	return name, name != base
}

// Ensure ConflictResolverService implements the interface
var _ interfaces.ConflictResolver = (*ConflictResolverService)(nil)

// Ensure NameSet implements the interface
var _ interfaces.NameLookup = (*NameSet)(nil)
