package logindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowSetInsertOnce(t *testing.T) {
	var s RowSet
	s.InsertOnce(5)
	s.InsertOnce(1)
	s.InsertOnce(3)
	s.InsertOnce(3)

	assert.Equal(t, []int{1, 3, 5}, s.Rows())
	assert.Equal(t, 3, s.Len())
}

func TestRowSetPrevNext(t *testing.T) {
	var s RowSet
	for _, r := range []int{2, 5, 9} {
		s.InsertOnce(r)
	}

	assert.Equal(t, -1, s.Prev(2))
	assert.Equal(t, 2, s.Prev(5))
	assert.Equal(t, 9, s.Prev(100))

	assert.Equal(t, 5, s.Next(2))
	assert.Equal(t, 2, s.Next(-1))
	assert.Equal(t, -1, s.Next(9))

	assert.Equal(t, 2, s.PrevOrEqual(2))
	assert.Equal(t, -1, s.PrevOrEqual(1))
}

func TestRowSetRemoveAndContains(t *testing.T) {
	var s RowSet
	s.InsertOnce(1)
	s.InsertOnce(2)

	assert.True(t, s.Contains(1))
	s.Remove(1)
	assert.False(t, s.Contains(1))
	assert.True(t, s.Contains(2))

	// Removing a missing member is a no-op.
	s.Remove(42)
	assert.Equal(t, 1, s.Len())
}

func TestRowSetClearRange(t *testing.T) {
	var s RowSet
	for i := 0; i < 10; i++ {
		s.InsertOnce(i)
	}

	s.ClearRange(3, 7)
	assert.Equal(t, []int{0, 1, 2, 7, 8, 9}, s.Rows())
}

func TestBookmarkStoreKinds(t *testing.T) {
	bm := NewBookmarkStore()

	bm.Get(BookmarkSearch).InsertOnce(4)
	bm.Get(BookmarkUser).InsertOnce(7)

	assert.Equal(t, 1, bm.Get(BookmarkSearch).Len())
	assert.Equal(t, 1, bm.Get(BookmarkUser).Len())
	assert.Zero(t, bm.Get(BookmarkError).Len())
}
