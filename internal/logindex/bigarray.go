package logindex

// segmentShift sizes BigArray chunks at 1M entries. Chunks are never
// reallocated, so element addresses stay stable while the array grows.
const (
	segmentShift = 20
	segmentSize  = 1 << segmentShift
	segmentMask  = segmentSize - 1
)

// BigArray is a segmented growable array of ContentLines. Appending
// allocates fixed-size chunks instead of copying, which matters once
// the merged index reaches millions of entries.
type BigArray struct {
	segments [][]ContentLine
	size     int
}

// Len returns the number of stored entries.
func (a *BigArray) Len() int {
	return a.size
}

// At returns entry i. i must be < Len().
func (a *BigArray) At(i int) ContentLine {
	return a.segments[i>>segmentShift][i&segmentMask]
}

// Back returns the last entry. Len() must be > 0.
func (a *BigArray) Back() ContentLine {
	return a.At(a.size - 1)
}

// Append adds an entry at the end.
func (a *BigArray) Append(cl ContentLine) {
	seg := a.size >> segmentShift
	if seg == len(a.segments) {
		a.segments = append(a.segments, make([]ContentLine, 0, segmentSize))
	}
	a.segments[seg] = append(a.segments[seg], cl)
	a.size++
}

// Reserve is a growth hint. The segment size is fixed, so reserving
// never invalidates anything and always reports false.
func (a *BigArray) Reserve(n int) bool {
	return false
}

// Clear drops all entries but keeps allocated segments for reuse.
func (a *BigArray) Clear() {
	for i := range a.segments {
		a.segments[i] = a.segments[i][:0]
	}
	a.size = 0
}

// Each calls fn for entries [start, Len()) in order.
func (a *BigArray) Each(start int, fn func(i int, cl ContentLine)) {
	for i := start; i < a.size; i++ {
		fn(i, a.At(i))
	}
}
