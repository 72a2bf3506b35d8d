package logindex

import "sort"

// BookmarkKind names a typed set of rows in the bookmark store.
type BookmarkKind int

const (
	BookmarkUser BookmarkKind = iota
	BookmarkError
	BookmarkWarning
	BookmarkSearch
	BookmarkMeta
	BookmarkFileBoundary
)

// RowSet is a sorted set of view rows (positions into the filtered
// index).
type RowSet struct {
	rows []int
}

// InsertOnce adds a row, keeping the set sorted and duplicate-free.
func (s *RowSet) InsertOnce(row int) {
	i := sort.SearchInts(s.rows, row)
	if i < len(s.rows) && s.rows[i] == row {
		return
	}
	s.rows = append(s.rows, 0)
	copy(s.rows[i+1:], s.rows[i:])
	s.rows[i] = row
}

// Remove deletes a row if present.
func (s *RowSet) Remove(row int) {
	i := sort.SearchInts(s.rows, row)
	if i < len(s.rows) && s.rows[i] == row {
		s.rows = append(s.rows[:i], s.rows[i+1:]...)
	}
}

// Contains reports whether a row is in the set.
func (s *RowSet) Contains(row int) bool {
	i := sort.SearchInts(s.rows, row)
	return i < len(s.rows) && s.rows[i] == row
}

// Prev returns the largest member strictly before row, or -1.
func (s *RowSet) Prev(row int) int {
	i := sort.SearchInts(s.rows, row)
	if i == 0 {
		return -1
	}
	return s.rows[i-1]
}

// Next returns the smallest member strictly after row, or -1.
func (s *RowSet) Next(row int) int {
	i := sort.SearchInts(s.rows, row+1)
	if i == len(s.rows) {
		return -1
	}
	return s.rows[i]
}

// PrevOrEqual returns the largest member at or before row, or -1.
func (s *RowSet) PrevOrEqual(row int) int {
	i := sort.SearchInts(s.rows, row+1)
	if i == 0 {
		return -1
	}
	return s.rows[i-1]
}

// Len returns the set size.
func (s *RowSet) Len() int {
	return len(s.rows)
}

// Rows returns the sorted members. Callers must not mutate the slice.
func (s *RowSet) Rows() []int {
	return s.rows
}

// Clear empties the set.
func (s *RowSet) Clear() {
	s.rows = s.rows[:0]
}

// ClearRange removes members in [start, stop).
func (s *RowSet) ClearRange(start, stop int) {
	lo := sort.SearchInts(s.rows, start)
	hi := sort.SearchInts(s.rows, stop)
	if lo < hi {
		s.rows = append(s.rows[:lo], s.rows[hi:]...)
	}
}

// BookmarkStore maps bookmark kinds to row sets. Rows are positions
// into the filtered index, so the store is rebuilt after any reload
// that changes the projection.
type BookmarkStore struct {
	sets map[BookmarkKind]*RowSet
}

// NewBookmarkStore creates a store with all built-in kinds present.
func NewBookmarkStore() *BookmarkStore {
	return &BookmarkStore{sets: map[BookmarkKind]*RowSet{
		BookmarkUser:         {},
		BookmarkError:        {},
		BookmarkWarning:      {},
		BookmarkSearch:       {},
		BookmarkMeta:         {},
		BookmarkFileBoundary: {},
	}}
}

// Get returns the row set for a kind, creating it on first use.
func (b *BookmarkStore) Get(kind BookmarkKind) *RowSet {
	set, ok := b.sets[kind]
	if !ok {
		set = &RowSet{}
		b.sets[kind] = set
	}
	return set
}

// Metadata is free-form annotation a user attaches to a marked row.
type Metadata struct {
	Name    string
	Comment string
}
