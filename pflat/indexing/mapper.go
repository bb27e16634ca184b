package indexing

import (
	"path/filepath"
	"strings"
)

// SimpleEntryMapper is a map-based mapper from canonical relpath to EntryID.
type SimpleEntryMapper struct {
	pathToID map[string]EntryID
}

// NewSimpleEntryMapper creates an empty mapper.
func NewSimpleEntryMapper() *SimpleEntryMapper {
	return &SimpleEntryMapper{pathToID: make(map[string]EntryID)}
}

func (m *SimpleEntryMapper) add(relpath string, id EntryID) {
	m.pathToID[canonicalize(relpath)] = id
}

// Lookup returns the id of relpath.
func (m *SimpleEntryMapper) Lookup(relpath string) (EntryID, bool) {
	id, ok := m.pathToID[canonicalize(relpath)]
	return id, ok
}

func canonicalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
