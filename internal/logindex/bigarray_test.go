package logindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBigArrayGrowsAcrossSegments(t *testing.T) {
	var a BigArray

	n := segmentSize*2 + 17
	for i := 0; i < n; i++ {
		a.Append(ContentLine(i))
	}

	assert.Equal(t, n, a.Len())
	assert.Equal(t, ContentLine(0), a.At(0))
	assert.Equal(t, ContentLine(segmentSize), a.At(segmentSize))
	assert.Equal(t, ContentLine(n-1), a.Back())
}

func TestBigArrayReserveNeverInvalidates(t *testing.T) {
	var a BigArray
	a.Append(ContentLine(42))

	assert.False(t, a.Reserve(10_000_000))
	assert.Equal(t, ContentLine(42), a.At(0))
}

func TestBigArrayClearKeepsSegments(t *testing.T) {
	var a BigArray
	for i := 0; i < 100; i++ {
		a.Append(ContentLine(i))
	}

	a.Clear()
	assert.Equal(t, 0, a.Len())

	a.Append(ContentLine(7))
	assert.Equal(t, ContentLine(7), a.At(0))
}

func TestBigArrayEach(t *testing.T) {
	var a BigArray
	for i := 0; i < 10; i++ {
		a.Append(ContentLine(i * 2))
	}

	var seen []ContentLine
	a.Each(4, func(i int, cl ContentLine) {
		assert.Equal(t, a.At(i), cl)
		seen = append(seen, cl)
	})
	assert.Len(t, seen, 6)
	assert.Equal(t, ContentLine(8), seen[0])
}
