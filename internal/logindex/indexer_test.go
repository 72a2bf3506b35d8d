package logindex

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TimelordUK/mview/pkg/logformat"
)

var base = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return base.Add(time.Duration(sec) * time.Second)
}

func contentLines(x *Indexer) []ContentLine {
	out := make([]ContentLine, 0, x.TotalCount())
	x.index.Each(0, func(_ int, cl ContentLine) {
		out = append(out, cl)
	})
	return out
}

func mustCL(t *testing.T, slot, line int) ContentLine {
	t.Helper()
	cl, err := NewContentLine(slot, line)
	require.NoError(t, err)
	return cl
}

func TestMergeTwoFiles(t *testing.T) {
	view := newFakeView()
	x := NewIndexer(view, NewFilterSet())

	a := newFakeFile("a.log")
	a.stage(at(1), "a one").stage(at(3), "a three").stage(at(5), "a five")
	b := newFakeFile("b.log")
	b.stage(at(2), "b two").stage(at(4), "b four").stage(at(6), "b six")

	_, err := x.AttachFile(a)
	require.NoError(t, err)
	_, err = x.AttachFile(b)
	require.NoError(t, err)

	res := x.RebuildIndex()
	assert.Equal(t, RebuildAppended, res)

	want := []ContentLine{
		mustCL(t, 0, 0), mustCL(t, 1, 0),
		mustCL(t, 0, 1), mustCL(t, 1, 1),
		mustCL(t, 0, 2), mustCL(t, 1, 2),
	}
	assert.Equal(t, want, contentLines(x))

	require.Equal(t, 6, x.RowCount())
	for row := 0; row < 6; row++ {
		assert.Equal(t, want[row], x.At(row))
	}
}

func TestFilteredIndexStrictlyIncreasing(t *testing.T) {
	x := NewIndexer(newFakeView(), NewFilterSet())

	a := newFakeFile("a.log")
	for i := 0; i < 50; i++ {
		a.stage(at(i), "line")
	}
	_, err := x.AttachFile(a)
	require.NoError(t, err)
	x.RebuildIndex()

	prev := -1
	for row := 0; row < x.RowCount(); row++ {
		pos := int(x.filtered[row])
		assert.Less(t, pos, x.TotalCount())
		assert.Greater(t, pos, prev)
		prev = pos
	}
}

func TestIncrementalAppend(t *testing.T) {
	view := newFakeView()
	x := NewIndexer(view, NewFilterSet())

	a := newFakeFile("a.log")
	a.stage(at(1), "a one")
	b := newFakeFile("b.log")
	b.stage(at(2), "b two")

	_, err := x.AttachFile(a)
	require.NoError(t, err)
	_, err = x.AttachFile(b)
	require.NoError(t, err)

	require.Equal(t, RebuildAppended, x.RebuildIndex())
	before := contentLines(x)

	a.stage(at(3), "a three")
	newData := view.newDataCount
	res := x.RebuildIndex()

	assert.Equal(t, RebuildAppended, res)
	assert.Equal(t, view.newDataCount, newData+1, "append should trigger search over new data")

	after := contentLines(x)
	require.Len(t, after, 3)
	assert.Equal(t, before, after[:len(before)], "prefix must be bitwise unchanged")
	assert.Equal(t, mustCL(t, 0, 1), after[2])
}

func TestNoChangeTickIsIdempotent(t *testing.T) {
	view := newFakeView()
	x := NewIndexer(view, NewFilterSet())

	a := newFakeFile("a.log")
	a.stage(at(1), "one")
	_, err := x.AttachFile(a)
	require.NoError(t, err)

	x.RebuildIndex()
	before := contentLines(x)

	assert.Equal(t, RebuildNoChange, x.RebuildIndex())
	assert.Equal(t, RebuildNoChange, x.RebuildIndex())
	assert.Equal(t, before, contentLines(x))
}

func TestReorderForcesFullRebuild(t *testing.T) {
	view := newFakeView()
	x := NewIndexer(view, NewFilterSet())

	a := newFakeFile("a.log")
	a.stage(at(1), "one").stage(at(3), "three").stage(at(5), "five")
	_, err := x.AttachFile(a)
	require.NoError(t, err)
	require.Equal(t, RebuildAppended, x.RebuildIndex())

	// A late line predating the tail arrives.
	a.stage(at(2), "two")
	redos := view.redoCount
	res := x.RebuildIndex()

	assert.Equal(t, RebuildFull, res)
	assert.Equal(t, redos+1, view.redoCount, "full rebuild should redo the search")

	want := []ContentLine{
		mustCL(t, 0, 0), mustCL(t, 0, 3), mustCL(t, 0, 1), mustCL(t, 0, 2),
	}
	assert.Equal(t, want, contentLines(x))

	// Exactly one full rebuild; the next tick settles down.
	assert.Equal(t, RebuildNoChange, x.RebuildIndex())
}

func TestNewOrderForcesFullRebuild(t *testing.T) {
	x := NewIndexer(newFakeView(), NewFilterSet())

	a := newFakeFile("a.log")
	a.stage(at(1), "one")
	_, err := x.AttachFile(a)
	require.NoError(t, err)
	x.RebuildIndex()

	a.forceResult(ObserveNewOrder)
	assert.Equal(t, RebuildFull, x.RebuildIndex())
}

func TestObserveErrorMarksFileGone(t *testing.T) {
	x := NewIndexer(newFakeView(), NewFilterSet())

	a := newFakeFile("a.log")
	a.stage(at(1), "one")
	slot, err := x.AttachFile(a)
	require.NoError(t, err)
	x.RebuildIndex()

	a.observeErr = errors.New("stat: no such file")
	assert.Equal(t, RebuildFull, x.RebuildIndex())

	f, _ := x.Find(mustCL(t, slot, 0))
	assert.Nil(t, f, "slot should report a gone file")
	assert.Zero(t, x.TotalCount())
}

func TestFilterToggling(t *testing.T) {
	view := newFakeView()
	filters := NewFilterSet()
	x := NewIndexer(view, filters)

	a := newFakeFile("a.log")
	a.stage(at(1), "foo bar").stage(at(2), "baz").stage(at(3), "foo secret")
	_, err := x.AttachFile(a)
	require.NoError(t, err)
	x.RebuildIndex()
	require.Equal(t, 3, x.RowCount())

	_, err = filters.Add(FilterIn, "foo")
	require.NoError(t, err)
	_, err = filters.Add(FilterOut, "secret")
	require.NoError(t, err)
	x.TextFiltersChanged()

	require.Equal(t, 1, x.RowCount())
	assert.Equal(t, mustCL(t, 0, 0), x.At(0))
	assert.Equal(t, 3, x.TotalCount(), "global index keeps excluded lines")
	assert.Equal(t, 1, view.reloadCount)
}

func TestExcludeEverythingLeavesGlobalPopulated(t *testing.T) {
	filters := NewFilterSet()
	x := NewIndexer(newFakeView(), filters)

	a := newFakeFile("a.log")
	a.stage(at(1), "alpha").stage(at(2), "beta")
	_, err := x.AttachFile(a)
	require.NoError(t, err)
	x.RebuildIndex()

	_, err = filters.Add(FilterIn, "nomatch")
	require.NoError(t, err)
	x.TextFiltersChanged()

	assert.Zero(t, x.RowCount())
	assert.Equal(t, 2, x.TotalCount())
}

func TestMessageContinuationAdmitsAllLines(t *testing.T) {
	filters := NewFilterSet()
	x := NewIndexer(newFakeView(), filters)

	c := newFakeFile("c.log")
	c.stage(at(1), "ERR exploded")
	c.stageCont("  at frame one")
	c.stageCont("  at frame two")
	_, err := x.AttachFile(c)
	require.NoError(t, err)
	x.RebuildIndex()

	_, err = filters.Add(FilterIn, "ERR")
	require.NoError(t, err)
	x.TextFiltersChanged()

	assert.Equal(t, 3, x.RowCount(), "head and both continuations survive")
}

func TestContinuationAcrossObservationBatches(t *testing.T) {
	filters := NewFilterSet()
	x := NewIndexer(newFakeView(), filters)
	_, err := filters.Add(FilterIn, "ERR")
	require.NoError(t, err)

	c := newFakeFile("c.log")
	c.stage(at(1), "ERR first half")
	_, err = x.AttachFile(c)
	require.NoError(t, err)
	x.RebuildIndex()

	c.stageCont("  second half")
	x.RebuildIndex()

	assert.Equal(t, 2, x.RowCount(), "late continuation joins the matched message")
}

func TestMergeDrainsAllSnapshotsInOnePass(t *testing.T) {
	x := NewIndexer(newFakeView(), NewFilterSet())

	a := newFakeFile("a.log")
	a.stage(at(1), "a one")
	b := newFakeFile("b.log")
	b.stage(at(2), "b two").stage(at(3), "b three")

	_, err := x.AttachFile(a)
	require.NoError(t, err)
	_, err = x.AttachFile(b)
	require.NoError(t, err)

	x.RebuildIndex()

	want := []ContentLine{mustCL(t, 0, 0), mustCL(t, 1, 0), mustCL(t, 1, 1)}
	assert.Equal(t, want, contentLines(x))
}

func TestAttachDetachWithoutReads(t *testing.T) {
	x := NewIndexer(newFakeView(), NewFilterSet())

	a := newFakeFile("a.log")
	slot, err := x.AttachFile(a)
	require.NoError(t, err)
	x.DetachFile(slot)

	assert.Equal(t, RebuildNoChange, x.RebuildIndex())
	assert.Zero(t, x.TotalCount())
	assert.Zero(t, x.RowCount())
}

func TestDetachAfterIndexingForcesRebuild(t *testing.T) {
	x := NewIndexer(newFakeView(), NewFilterSet())

	a := newFakeFile("a.log")
	a.stage(at(1), "one")
	b := newFakeFile("b.log")
	b.stage(at(2), "two")

	slotA, err := x.AttachFile(a)
	require.NoError(t, err)
	_, err = x.AttachFile(b)
	require.NoError(t, err)
	x.RebuildIndex()
	require.Equal(t, 2, x.RowCount())

	x.DetachFile(slotA)
	assert.Equal(t, RebuildFull, x.RebuildIndex())
	assert.Equal(t, 1, x.RowCount())
	assert.Equal(t, mustCL(t, 1, 0), x.At(0))
}

func TestDelegateNotifications(t *testing.T) {
	x := NewIndexer(newFakeView(), NewFilterSet())
	delegate := &recordingDelegate{}
	x.SetDelegate(delegate)

	a := newFakeFile("a.log")
	a.stage(at(1), "one").stage(at(2), "two")
	_, err := x.AttachFile(a)
	require.NoError(t, err)

	x.RebuildIndex()
	assert.Equal(t, 1, delegate.starts, "index_start on first extension")
	assert.Equal(t, 1, delegate.completes)
	assert.Equal(t, []int{0, 1}, delegate.lines)

	a.stage(at(3), "three")
	x.RebuildIndex()
	assert.Equal(t, 1, delegate.starts, "no index_start for a tail extension")
	assert.Equal(t, 2, delegate.completes)
}

func TestExtraFilterMinLevel(t *testing.T) {
	filters := NewFilterSet()
	x := NewIndexer(newFakeView(), filters)

	a := newFakeFile("a.log")
	a.stage(at(1), "fine")
	a.stage(at(2), "bad").stageLevel(logformat.LevelFatal)
	_, err := x.AttachFile(a)
	require.NoError(t, err)
	x.RebuildIndex()
	require.Equal(t, 2, x.RowCount())

	filters.MinLevel = logformat.LevelError
	x.TextFiltersChanged()
	assert.Equal(t, 1, x.RowCount())
}

func TestExtraFilterTimeWindow(t *testing.T) {
	filters := NewFilterSet()
	x := NewIndexer(newFakeView(), filters)

	a := newFakeFile("a.log")
	a.stage(at(1), "early").stage(at(10), "middle").stage(at(20), "late")
	_, err := x.AttachFile(a)
	require.NoError(t, err)
	x.RebuildIndex()

	filters.MinTime = at(5)
	filters.MaxTime = at(15)
	x.TextFiltersChanged()

	require.Equal(t, 1, x.RowCount())
	assert.Equal(t, mustCL(t, 0, 1), x.At(0))
}

func TestExtraFilterMarkedOnly(t *testing.T) {
	filters := NewFilterSet()
	x := NewIndexer(newFakeView(), filters)

	a := newFakeFile("a.log")
	a.stage(at(1), "one").stage(at(2), "two")
	_, err := x.AttachFile(a)
	require.NoError(t, err)
	x.RebuildIndex()

	x.ToggleUserMark(mustCL(t, 0, 1))
	filters.MarkedOnly = true
	x.TextFiltersChanged()

	require.Equal(t, 1, x.RowCount())
	assert.Equal(t, mustCL(t, 0, 1), x.At(0))
}

func TestUpdateMarks(t *testing.T) {
	view := newFakeView()
	x := NewIndexer(view, NewFilterSet())

	a := newFakeFile("a.log")
	a.stage(at(1), "a info")
	a.stage(at(2), "a error").stageLevel(logformat.LevelError)
	b := newFakeFile("b.log")
	b.stage(at(3), "b warn").stageLevel(logformat.LevelWarning)

	_, err := x.AttachFile(a)
	require.NoError(t, err)
	_, err = x.AttachFile(b)
	require.NoError(t, err)
	x.RebuildIndex()

	bm := view.Bookmarks()
	x.UpdateMarks(bm)

	assert.Equal(t, []int{0, 2}, bm.Get(BookmarkFileBoundary).Rows())
	assert.Equal(t, []int{1}, bm.Get(BookmarkError).Rows())
	assert.Equal(t, []int{2}, bm.Get(BookmarkWarning).Rows())
}

func TestSingleLineFileBoundaries(t *testing.T) {
	view := newFakeView()
	x := NewIndexer(view, NewFilterSet())

	a := newFakeFile("a.log")
	a.stage(at(1), "only line")
	b := newFakeFile("b.log")
	b.stage(at(2), "next file")

	_, err := x.AttachFile(a)
	require.NoError(t, err)
	_, err = x.AttachFile(b)
	require.NoError(t, err)
	x.RebuildIndex()

	bm := view.Bookmarks()
	x.UpdateMarks(bm)

	files := bm.Get(BookmarkFileBoundary)
	assert.True(t, files.Contains(0))
	assert.True(t, files.Contains(1), "a single-line file is bounded on both sides")
}

func TestFromContentAndFromTime(t *testing.T) {
	x := NewIndexer(newFakeView(), NewFilterSet())

	a := newFakeFile("a.log")
	a.stage(at(1), "one").stage(at(3), "three").stage(at(5), "five")
	_, err := x.AttachFile(a)
	require.NoError(t, err)
	x.RebuildIndex()

	row, ok := x.FromContent(mustCL(t, 0, 1))
	require.True(t, ok)
	assert.Equal(t, 1, row)

	row, ok = x.FromTime(at(2))
	require.True(t, ok)
	assert.Equal(t, 1, row)

	_, ok = x.FromTime(at(100))
	assert.False(t, ok)
}

func TestPausedViewSkipsObservation(t *testing.T) {
	view := newFakeView()
	x := NewIndexer(view, NewFilterSet())

	a := newFakeFile("a.log")
	a.stage(at(1), "one")
	_, err := x.AttachFile(a)
	require.NoError(t, err)

	view.paused = true
	assert.Equal(t, RebuildNoChange, x.RebuildIndex())
	assert.Zero(t, x.TotalCount())

	view.paused = false
	assert.Equal(t, RebuildAppended, x.RebuildIndex())
	assert.Equal(t, 1, x.TotalCount())
}

func TestSortStability(t *testing.T) {
	x := NewIndexer(newFakeView(), NewFilterSet())

	// Two files with identical timestamps: heads order by (slot, line).
	a := newFakeFile("a.log")
	a.stage(at(1), "a first").stage(at(1), "a second")
	b := newFakeFile("b.log")
	b.stage(at(1), "b first")

	_, err := x.AttachFile(a)
	require.NoError(t, err)
	_, err = x.AttachFile(b)
	require.NoError(t, err)
	x.RebuildIndex()
	x.RebuildIndex()

	want := []ContentLine{mustCL(t, 0, 0), mustCL(t, 0, 1), mustCL(t, 1, 0)}
	assert.Equal(t, want, contentLines(x))
}
