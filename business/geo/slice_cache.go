package geo

import (
	"github.com/bluele/gcache"
)

// SliceCache memoizes the chunked slice of a line between two points.
// Entries are keyed by the rounded coordinates of both points so equal coordinates share an entry.
// A SliceCache belongs to a single line, it is safe for concurrent use.
type SliceCache struct {
	line             []Point
	maxSegmentMeters float64
	cache            gcache.Cache
}

// NewSliceCache creates a SliceCache over line holding up to size slices
func NewSliceCache(line []Point, maxSegmentMeters float64, size int) *SliceCache {
	if size <= 0 {
		size = 64
	}
	return &SliceCache{
		line:             line,
		maxSegmentMeters: maxSegmentMeters,
		cache:            gcache.New(size).LRU().Build(),
	}
}

func sliceKey(a, b Point) string {
	return a.Key() + "|" + b.Key()
}

// Chunks returns the chunks of the line sliced between a and b, computing them on first use
func (s *SliceCache) Chunks(a, b Point) [][]Point {
	key := sliceKey(a, b)
	if cached, err := s.cache.Get(key); err == nil {
		if chunks, ok := cached.([][]Point); ok {
			return chunks
		}
	}
	chunks := Chunk(SliceBetween(a, b, s.line), s.maxSegmentMeters)
	_ = s.cache.Set(key, chunks)
	return chunks
}

// Len returns the number of memoized slices
func (s *SliceCache) Len() int {
	return s.cache.Len(false)
}
