package indexing

// EntryID is the position of an entry in the scan that built the index.
// IDs are contiguous from zero, so sets of entries fit roaring bitmaps.
type EntryID = uint32

// EntryMapper maps slash-separated relative paths to EntryIDs.
type EntryMapper interface {
	Lookup(relpath string) (EntryID, bool)
	Size() int
}
