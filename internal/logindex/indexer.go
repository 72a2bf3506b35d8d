package logindex

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/TimelordUK/mview/pkg/logformat"
)

// RebuildResult says what a RebuildIndex pass did.
type RebuildResult int

const (
	// RebuildNoChange means no file had anything new.
	RebuildNoChange RebuildResult = iota
	// RebuildAppended means lines were folded onto the tail; the
	// prefix of the global index is untouched.
	RebuildAppended
	// RebuildFull means the whole index was rebuilt from scratch.
	RebuildFull
)

// fileData is the registration record for one attached file slot.
type fileData struct {
	slot          int
	file          LogFile
	filterState   *FilterState
	linesIndexed  int
	linesFiltered int
}

// Indexer maintains the chronologically merged index over all
// attached files and its filtered projection. All methods must be
// called from the view thread.
type Indexer struct {
	files    []*fileData
	index    BigArray
	filtered []uint32

	filters  *FilterSet
	view     View
	delegate IndexDelegate

	forceRebuild  bool
	longestLine   int
	filenameWidth int
	basenameWidth int

	userMarks map[BookmarkKind][]ContentLine
	markMeta  map[ContentLine]*Metadata
}

// NewIndexer creates an indexer bound to a view and filter set.
func NewIndexer(view View, filters *FilterSet) *Indexer {
	if filters == nil {
		filters = NewFilterSet()
	}
	return &Indexer{
		filters:   filters,
		view:      view,
		userMarks: make(map[BookmarkKind][]ContentLine),
		markMeta:  make(map[ContentLine]*Metadata),
	}
}

// SetDelegate installs the index observer.
func (x *Indexer) SetDelegate(d IndexDelegate) {
	x.delegate = d
}

// SetView binds the host view. The view and indexer reference each
// other, so one side is wired after construction.
func (x *Indexer) SetView(v View) {
	x.view = v
}

// Filters returns the owned filter set.
func (x *Indexer) Filters() *FilterSet {
	return x.filters
}

// AttachFile registers a file in the next free slot. Slots form a
// contiguous prefix and are never reused while attached.
func (x *Indexer) AttachFile(f LogFile) (int, error) {
	if len(x.files) >= MaxFiles {
		return 0, fmt.Errorf("cannot attach %q: slot limit of %d reached", f.Filename(), MaxFiles)
	}
	fd := &fileData{
		slot:        len(x.files),
		file:        f,
		filterState: NewFilterState(),
	}
	x.files = append(x.files, fd)
	return fd.slot, nil
}

// DetachFile marks a slot's file as gone. The slot keeps its index so
// ContentLines stay stable; the next rebuild pass goes full.
func (x *Indexer) DetachFile(slot int) {
	if slot < 0 || slot >= len(x.files) {
		return
	}
	x.files[slot].file = nil
}

// FileCount returns the number of slots with a live file.
func (x *Indexer) FileCount() int {
	n := 0
	for _, fd := range x.files {
		if fd.file != nil {
			n++
		}
	}
	return n
}

// EachFile calls fn for every live file in slot order.
func (x *Indexer) EachFile(fn func(slot int, f LogFile)) {
	for _, fd := range x.files {
		if fd.file != nil {
			fn(fd.slot, fd.file)
		}
	}
}

// FilterStateFor returns a slot's filter state.
func (x *Indexer) FilterStateFor(slot int) *FilterState {
	return x.files[slot].filterState
}

// RowCount returns the size of the filtered projection.
func (x *Indexer) RowCount() int {
	return len(x.filtered)
}

// TotalCount returns the size of the global index.
func (x *Indexer) TotalCount() int {
	return x.index.Len()
}

// At resolves a view row to its ContentLine. row must be a valid row;
// anything else is a caller bug.
func (x *Indexer) At(row int) ContentLine {
	if row < 0 || row >= len(x.filtered) {
		panic(fmt.Sprintf("logindex: row %d out of range [0,%d)", row, len(x.filtered)))
	}
	return x.index.At(int(x.filtered[row]))
}

// Find resolves a ContentLine to its owning file and line number. The
// file is nil if the slot's file is gone.
func (x *Indexer) Find(cl ContentLine) (LogFile, int) {
	slot := cl.Slot()
	if slot >= len(x.files) {
		return nil, 0
	}
	return x.files[slot].file, cl.LineNumber()
}

// LineFor returns the metadata for a ContentLine, or nil if the file
// is gone.
func (x *Indexer) LineFor(cl ContentLine) Line {
	f, n := x.Find(cl)
	if f == nil || n >= f.Size() {
		return nil
	}
	return f.LineAt(n)
}

// FromTime returns the first row whose line time is at or after t.
func (x *Indexer) FromTime(t time.Time) (int, bool) {
	row := sort.Search(len(x.filtered), func(i int) bool {
		line := x.LineFor(x.At(i))
		return line != nil && !line.Time().Before(t)
	})
	if row >= len(x.filtered) {
		return 0, false
	}
	return row, true
}

// FromContent resolves a ContentLine back to its current row, if the
// line survived filtering.
func (x *Indexer) FromContent(cl ContentLine) (int, bool) {
	line := x.LineFor(cl)
	if line == nil {
		return 0, false
	}
	t := line.Time()
	// Rows are time ordered; binary search to the first candidate and
	// scan the run of equal times.
	row := sort.Search(len(x.filtered), func(i int) bool {
		l := x.LineFor(x.At(i))
		return l != nil && !l.Time().Before(t)
	})
	for ; row < len(x.filtered); row++ {
		if x.At(row) == cl {
			return row, true
		}
		l := x.LineFor(x.At(row))
		if l == nil || l.Time().After(t) {
			break
		}
	}
	return 0, false
}

// RebuildIndex polls every file for new lines and extends the global
// and filtered indexes. It is called between frames and bounded by
// the number of new lines per pass.
func (x *Indexer) RebuildIndex() RebuildResult {
	force := x.forceRebuild
	x.forceRebuild = false

	retval := RebuildNoChange
	if force {
		retval = RebuildFull
	}

	paused := x.view != nil && x.view.IsPaused()

	fileCount := 0
	totalLines := 0
	for _, fd := range x.files {
		if fd.file == nil {
			if fd.linesIndexed > 0 {
				force = true
				retval = RebuildFull
			}
			continue
		}

		if !paused {
			res, err := fd.file.Observe()
			if err != nil {
				slog.Warn("file vanished during observation",
					"file", fd.file.Filename(), "error", err)
				fd.file = nil
				force = true
				retval = RebuildFull
				continue
			}
			if res == ObserveNoNewLines && fd.linesIndexed < fd.file.Size() {
				res = ObserveNewLines
			}

			switch res {
			case ObserveNoNewLines:
			case ObserveNewLines:
				if retval == RebuildNoChange {
					retval = RebuildAppended
				}
				if x.index.Len() > 0 {
					newLine := fd.file.LineAt(fd.linesIndexed)
					tail := x.LineFor(x.index.Back())
					if tail == nil || newLine.Time().Before(tail.Time()) {
						force = true
						retval = RebuildFull
					}
				}
			case ObserveNewOrder, ObserveInvalid:
				force = true
				retval = RebuildFull
			}
		}

		fileCount++
		totalLines += fd.file.Size()
	}

	if x.index.Reserve(totalLines) {
		force = true
		retval = RebuildFull
	}

	if force {
		for _, fd := range x.files {
			fd.linesIndexed = 0
			fd.linesFiltered = 0
			fd.filterState.Reset()
		}
		x.index.Clear()
		x.filtered = x.filtered[:0]
		x.longestLine = 0
		x.filenameWidth = 0
		x.basenameWidth = 0
	}

	if retval != RebuildNoChange {
		startSize := x.index.Len()

		for _, fd := range x.files {
			if fd.file == nil {
				continue
			}
			x.observeFilters(fd)
			if n := fd.file.LongestLineLength(); n > x.longestLine {
				x.longestLine = n
			}
			if n := len(fd.file.Filename()); n > x.filenameWidth {
				x.filenameWidth = n
			}
			if n := len(fd.file.UniquePath()); n > x.basenameWidth {
				x.basenameWidth = n
			}
		}

		if force {
			x.fullSort()
		} else {
			x.incrementalMerge()
		}

		x.extendFiltered(startSize)
	}

	switch retval {
	case RebuildFull:
		if x.view != nil {
			x.view.RedoSearch()
		}
	case RebuildAppended:
		if x.view != nil {
			x.view.SearchNewData()
		}
	}

	return retval
}

// observeFilters feeds a file's unprocessed lines through its filter
// state. A message that straddled the previous batch is reopened so
// late continuations fold into it.
func (x *Indexer) observeFilters(fd *fileData) {
	size := fd.file.Size()
	if fd.linesFiltered >= size {
		return
	}

	if fd.linesFiltered > 0 && fd.file.LineAt(fd.linesFiltered).Continued() {
		fd.filterState.RevertToLast(x.filters, 0)
	}

	for i := fd.linesFiltered; i < size; i++ {
		body, err := fd.file.ReadLine(i)
		if err != nil {
			body = nil
		}
		fd.filterState.AddLine(x.filters, body, fd.file.LineAt(i).Continued())
	}
	fd.filterState.EndOfMessage(x.filters)
	fd.linesFiltered = size
}

// fullSort rebuilds the global index from every file's full contents
// with a stable sort under the global ordering.
func (x *Indexer) fullSort() {
	var all []ContentLine
	for _, fd := range x.files {
		if fd.file == nil {
			continue
		}
		for i := 0; i < fd.file.Size(); i++ {
			cl, err := NewContentLine(fd.slot, i)
			if err != nil {
				slog.Error("line beyond addressable range, dropping",
					"file", fd.file.Filename(), "line", i)
				break
			}
			all = append(all, cl)
		}
		fd.linesIndexed = fd.file.Size()
	}

	slog.Info("sorting global index", "lines", len(all))
	sort.SliceStable(all, func(i, j int) bool {
		return x.contentLess(all[i], all[j])
	})

	x.index.Clear()
	for _, cl := range all {
		x.index.Append(cl)
	}
}

// contentLess is the global ordering: timestamp, then (slot, line) for
// message heads. Continuations compare equal on time so stability
// keeps them glued to their head.
func (x *Indexer) contentLess(a, b ContentLine) bool {
	la := x.LineFor(a)
	lb := x.LineFor(b)
	if la == nil || lb == nil {
		return false
	}
	ta, tb := la.Time(), lb.Time()
	if ta.Before(tb) {
		return true
	}
	if tb.Before(ta) {
		return false
	}
	if la.Continued() || lb.Continued() {
		return false
	}
	if a.Slot() != b.Slot() {
		return a.Slot() < b.Slot()
	}
	return a.LineNumber() < b.LineNumber()
}

// incrementalMerge extends the global index by a k-way merge over each
// file's unindexed tail. Each file's tail is bounded by its size at the
// start of the pass. When a file's tail is consumed the round restarts
// without it, so the other files keep merging up to their bounds in
// the same pass.
func (x *Indexer) incrementalMerge() {
	for {
		var inputs []*mergeInput
		for _, fd := range x.files {
			if fd.file == nil {
				continue
			}
			if fd.linesIndexed >= fd.file.Size() {
				continue
			}
			inputs = append(inputs, &mergeInput{
				data: fd,
				cur:  fd.linesIndexed,
				end:  fd.file.Size(),
			})
		}
		if len(inputs) == 0 {
			return
		}

		merge := newKMerge(inputs)
		for {
			in := merge.Top()
			if in == nil {
				return
			}

			cl, err := NewContentLine(in.data.slot, in.cur)
			if err != nil {
				slog.Error("line beyond addressable range, stopping merge",
					"slot", in.data.slot, "line", in.cur)
				return
			}
			x.index.Append(cl)
			in.data.linesIndexed++

			if in.cur+1 == in.end {
				// This source is drained; restart the round without it
				// so the survivors keep merging up to their snapshots.
				break
			}
			merge.Next()
		}
	}
}

// extendFiltered projects new global index entries through the filter
// masks and extra filters, notifying the delegate.
func (x *Indexer) extendFiltered(startSize int) {
	inMask, outMask := x.filters.EnabledMask()

	if startSize == 0 && x.delegate != nil {
		x.delegate.IndexStart()
	}

	for i := startSize; i < x.index.Len(); i++ {
		cl := x.index.At(i)
		fd := x.files[cl.Slot()]
		if fd.file == nil {
			continue
		}
		n := cl.LineNumber()
		line := fd.file.LineAt(n)

		if fd.filterState.Excluded(inMask, outMask, n) {
			continue
		}
		if !x.checkExtraFilters(line) {
			continue
		}

		x.filtered = append(x.filtered, uint32(i))
		if x.delegate != nil {
			x.delegate.IndexLine(fd.file, n)
		}
	}

	if x.delegate != nil {
		x.delegate.IndexComplete()
	}
}

// checkExtraFilters applies the predicates that cannot be precomputed
// into the mask: minimum level, marked-only, and the time window.
func (x *Indexer) checkExtraFilters(line Line) bool {
	if x.filters.MinLevel != logformat.LevelUnknown &&
		line.Level() < x.filters.MinLevel {
		return false
	}
	if x.filters.MarkedOnly && !line.Marked() {
		return false
	}
	if !x.filters.MinTime.IsZero() && line.Time().Before(x.filters.MinTime) {
		return false
	}
	if !x.filters.MaxTime.IsZero() && line.Time().After(x.filters.MaxTime) {
		return false
	}
	return true
}

// TextFiltersChanged rebuilds the filtered projection after the
// predicate set or an extra filter changed. Each file's lines are
// replayed through its filter state so the masks reflect the current
// predicates.
func (x *Indexer) TextFiltersChanged() {
	for _, fd := range x.files {
		fd.filterState.Reset()
		fd.linesFiltered = 0
		if fd.file != nil {
			fd.file.ReobserveFrom(0)
			x.observeFilters(fd)
		}
	}

	if x.delegate != nil {
		x.delegate.IndexStart()
	}

	inMask, outMask := x.filters.EnabledMask()
	x.filtered = x.filtered[:0]
	for i := 0; i < x.index.Len(); i++ {
		cl := x.index.At(i)
		fd := x.files[cl.Slot()]
		if fd.file == nil {
			continue
		}
		n := cl.LineNumber()
		line := fd.file.LineAt(n)
		if fd.filterState.Excluded(inMask, outMask, n) {
			continue
		}
		if !x.checkExtraFilters(line) {
			continue
		}
		x.filtered = append(x.filtered, uint32(i))
		if x.delegate != nil {
			x.delegate.IndexLine(fd.file, n)
		}
	}

	if x.delegate != nil {
		x.delegate.IndexComplete()
	}

	if x.view != nil {
		x.view.ReloadData()
		x.view.RedoSearch()
	}
}

// ForceRebuild requests a full rebuild on the next pass.
func (x *Indexer) ForceRebuild() {
	x.forceRebuild = true
}

// ToggleUserMark flips the user mark on a ContentLine.
func (x *Indexer) ToggleUserMark(cl ContentLine) {
	marks := x.userMarks[BookmarkUser]
	i := sort.Search(len(marks), func(i int) bool { return marks[i] >= cl })
	if i < len(marks) && marks[i] == cl {
		marks = append(marks[:i], marks[i+1:]...)
		if line := x.LineFor(cl); line != nil {
			line.SetMark(false)
		}
	} else {
		marks = append(marks, 0)
		copy(marks[i+1:], marks[i:])
		marks[i] = cl
		if line := x.LineFor(cl); line != nil {
			line.SetMark(true)
		}
	}
	x.userMarks[BookmarkUser] = marks
}

// IsUserMarked reports whether a ContentLine carries a user mark.
func (x *Indexer) IsUserMarked(cl ContentLine) bool {
	marks := x.userMarks[BookmarkUser]
	i := sort.Search(len(marks), func(i int) bool { return marks[i] >= cl })
	return i < len(marks) && marks[i] == cl
}

// SetMarkMetadata attaches annotation to a ContentLine; nil removes.
func (x *Indexer) SetMarkMetadata(cl ContentLine, meta *Metadata) {
	if meta == nil {
		delete(x.markMeta, cl)
		return
	}
	x.markMeta[cl] = meta
}

// MarkMetadata returns the annotation for a ContentLine, or nil.
func (x *Indexer) MarkMetadata(cl ContentLine) *Metadata {
	return x.markMeta[cl]
}

// UpdateMarks repopulates the row-keyed bookmark sets from scratch by
// walking the filtered projection.
func (x *Indexer) UpdateMarks(bm *BookmarkStore) {
	bm.Get(BookmarkWarning).Clear()
	bm.Get(BookmarkError).Clear()
	bm.Get(BookmarkFileBoundary).Clear()
	bm.Get(BookmarkUser).Clear()
	bm.Get(BookmarkMeta).Clear()

	var lastFile LogFile
	for row := 0; row < len(x.filtered); row++ {
		cl := x.At(row)
		f, n := x.Find(cl)
		if f == nil {
			continue
		}

		if x.IsUserMarked(cl) {
			bm.Get(BookmarkUser).InsertOnce(row)
			f.LineAt(n).SetMark(true)
		}
		if x.markMeta[cl] != nil {
			bm.Get(BookmarkMeta).InsertOnce(row)
		}

		if f != lastFile {
			bm.Get(BookmarkFileBoundary).InsertOnce(row)
		}

		line := f.LineAt(n)
		if !line.Continued() {
			switch line.Level() {
			case logformat.LevelWarning:
				bm.Get(BookmarkWarning).InsertOnce(row)
			case logformat.LevelError, logformat.LevelCritical, logformat.LevelFatal:
				bm.Get(BookmarkError).InsertOnce(row)
			}
		}

		lastFile = f
	}
}

// AccelDirectionAt classifies the message-rate trend ending at a row,
// skipping continuation lines.
func (x *Indexer) AccelDirectionAt(row int) AccelDirection {
	var la Accel

	for ; row >= 0; row-- {
		line := x.LineFor(x.At(row))
		if line == nil {
			break
		}
		if line.Continued() {
			continue
		}
		if !la.AddPoint(line.TimeInMillis()) {
			break
		}
	}

	return la.Direction()
}

// LongestLine returns the longest line length across live files.
func (x *Indexer) LongestLine() int { return x.longestLine }

// FilenameWidth returns the widest filename across live files.
func (x *Indexer) FilenameWidth() int { return x.filenameWidth }

// BasenameWidth returns the widest unique path across live files.
func (x *Indexer) BasenameWidth() int { return x.basenameWidth }
