package codec

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of memoised flat names.
const DefaultCacheSize = 4096

// CachedEncoder memoises Encode results per relative path.
type CachedEncoder struct {
	codec *Codec
	cache *lru.Cache[string, string]
}

// NewCachedEncoder wraps c with an LRU cache of the given size.
func NewCachedEncoder(c *Codec, size int) (*CachedEncoder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &CachedEncoder{codec: c, cache: cache}, nil
}

// Encode returns the flat name for relpath, computing it at most once while cached.
func (ce *CachedEncoder) Encode(relpath string) string {
	if name, ok := ce.cache.Get(relpath); ok {
		return name
	}
	name := ce.codec.Encode(relpath)
	ce.cache.Add(relpath, name)
	return name
}

// Codec returns the wrapped codec.
func (ce *CachedEncoder) Codec() *Codec {
	return ce.codec
}

// Len reports how many names are cached.
func (ce *CachedEncoder) Len() int {
	return ce.cache.Len()
}
