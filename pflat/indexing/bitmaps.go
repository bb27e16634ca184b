package indexing

import (
	"strings"

	roaring "github.com/RoaringBitmap/roaring"

	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/common"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/types"
)

// AttributeBitmaps holds roaring bitmaps keyed by attribute value id.
// Example: ExtID -> bitmap of EntryIDs with that extension.
type AttributeBitmaps struct {
	Ext map[uint32]*roaring.Bitmap
}

func NewAttributeBitmaps() *AttributeBitmaps {
	return &AttributeBitmaps{Ext: make(map[uint32]*roaring.Bitmap)}
}

func (ab *AttributeBitmaps) AddExt(extID uint32, id EntryID) {
	bm, ok := ab.Ext[extID]
	if !ok {
		bm = roaring.New()
		ab.Ext[extID] = bm
	}
	bm.Add(id)
}

// OrExt returns the union of multiple extension bitmaps.
func (ab *AttributeBitmaps) OrExt(extIDs ...uint32) *roaring.Bitmap {
	res := roaring.New()
	for _, id := range extIDs {
		if bm, ok := ab.Ext[id]; ok {
			res.Or(bm)
		}
	}
	return res
}

// EntryIndex keeps a scan in memory and answers set queries over it.
type EntryIndex struct {
	entries []types.Entry
	mapper  *SimpleEntryMapper
	files   *roaring.Bitmap
	extDict map[string]uint32
	attrs   *AttributeBitmaps
}

// NewEntryIndex indexes entries in the order given. The order is kept by
// every iteration over the index.
func NewEntryIndex(entries []types.Entry) *EntryIndex {
	idx := &EntryIndex{
		entries: entries,
		mapper:  NewSimpleEntryMapper(),
		files:   roaring.New(),
		extDict: make(map[string]uint32),
		attrs:   NewAttributeBitmaps(),
	}
	for i, e := range entries {
		id := EntryID(i)
		idx.mapper.add(e.RelPath, id)
		if e.IsDir {
			continue
		}
		idx.files.Add(id)
		if e.Ext == "" {
			continue
		}
		ext := strings.ToLower(e.Ext)
		extID, ok := idx.extDict[ext]
		if !ok {
			extID = uint32(len(idx.extDict))
			idx.extDict[ext] = extID
		}
		idx.attrs.AddExt(extID, id)
	}
	return idx
}

// Len returns the number of indexed entries.
func (idx *EntryIndex) Len() int { return len(idx.entries) }

// Lookup finds an entry by relative path.
func (idx *EntryIndex) Lookup(relpath string) (types.Entry, bool) {
	id, ok := idx.mapper.Lookup(relpath)
	if !ok {
		return types.Entry{}, false
	}
	return idx.entries[id], true
}

// Files returns a fresh bitmap of every file entry.
func (idx *EntryIndex) Files() *roaring.Bitmap { return idx.files.Clone() }

// WithExtensions returns the files whose extension is one of exts.
// Extensions are matched case-insensitively with the dot optional.
func (idx *EntryIndex) WithExtensions(exts ...string) *roaring.Bitmap {
	ids := make([]uint32, 0, len(exts))
	for _, e := range common.NormalizeExtensions(exts) {
		if id, ok := idx.extDict[e]; ok {
			ids = append(ids, id)
		}
	}
	return idx.attrs.OrExt(ids...)
}

// Select returns the ids within set whose entry satisfies keep.
func (idx *EntryIndex) Select(set *roaring.Bitmap, keep func(types.Entry) bool) *roaring.Bitmap {
	out := roaring.New()
	it := set.Iterator()
	for it.HasNext() {
		id := it.Next()
		if keep(idx.entries[id]) {
			out.Add(id)
		}
	}
	return out
}

// Totals sums the count and the known sizes of the entries in set.
func (idx *EntryIndex) Totals(set *roaring.Bitmap) (count, size int64) {
	it := set.Iterator()
	for it.HasNext() {
		e := idx.entries[it.Next()]
		count++
		if e.Size > 0 {
			size += e.Size
		}
	}
	return count, size
}

// Each calls fn for every entry in set in scan order until fn returns false.
func (idx *EntryIndex) Each(set *roaring.Bitmap, fn func(EntryID, types.Entry) bool) {
	it := set.Iterator()
	for it.HasNext() {
		id := it.Next()
		if !fn(id, idx.entries[id]) {
			return
		}
	}
}
