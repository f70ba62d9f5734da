package seekgzip

import "sort"

// Index is an ordered sequence of access points, strictly increasing by
// Out, supporting O(log n) lookup by uncompressed offset. It is built
// once by a Builder and is read-only thereafter; the zero Index is
// empty and ready to use via Append.
type Index struct {
	points []AccessPoint
}

// Append adds point to the index. Points must be appended in strictly
// increasing Out order; the builder is responsible for that ordering,
// Index does not re-sort.
func (idx *Index) Append(point AccessPoint) {
	idx.points = append(idx.points, point)
}

// Len returns the number of access points in the index.
func (idx *Index) Len() int {
	return len(idx.points)
}

// At returns the i'th access point, for iteration.
func (idx *Index) At(i int) AccessPoint {
	return idx.points[i]
}

// Shrink releases any excess capacity accumulated during Append's
// geometric growth, matching the builder's finalization step.
func (idx *Index) Shrink() {
	if cap(idx.points) == len(idx.points) {
		return
	}
	shrunk := make([]AccessPoint, len(idx.points))
	copy(shrunk, idx.points)
	idx.points = shrunk
}

// Lookup returns the access point with the greatest Out <= offset, and
// true. If offset is strictly less than the first point's Out, or the
// index is empty, it returns the zero AccessPoint and false.
func (idx *Index) Lookup(offset uint64) (AccessPoint, bool) {
	// Find the first point with Out > offset; its predecessor is the
	// point we want.
	i := sort.Search(len(idx.points), func(i int) bool {
		return idx.points[i].Out > offset
	})
	if i == 0 {
		return AccessPoint{}, false
	}
	return idx.points[i-1], true
}
